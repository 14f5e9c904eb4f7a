// Package access narrows collections to what a principal may see.
//
// Rules, checked in order:
//   - ADMIN: everything
//   - GENERAL: items it owns, or items owned by a user whose parent is the principal
//   - OPERATOR: items it owns, or items owned by its own parent
//
// Delegation is exactly one hop in either direction. Filters are evaluated on
// every read so role or hierarchy edits apply immediately.
package access

import "github.com/mamadbah2/avicontrol/internal/domain/models"

// Owned is implemented by every filterable entity.
type Owned interface {
	OwnerID() string
}

// Filter evaluates visibility for one principal against a user directory.
type Filter struct {
	principal models.Principal
	parentOf  map[string]string
}

// NewFilter builds a filter. users is the directory used to resolve the parent
// of an item's owner.
func NewFilter(principal models.Principal, users []models.User) *Filter {
	parentOf := make(map[string]string, len(users))
	for _, u := range users {
		parentOf[u.ID] = u.ParentID
	}
	return &Filter{principal: principal, parentOf: parentOf}
}

// CanSee reports whether an item owned by ownerID is visible.
func (f *Filter) CanSee(ownerID string) bool {
	p := f.principal
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleGeneral:
		if ownerID == "" || p.ID == "" {
			return false
		}
		return ownerID == p.ID || f.parentOf[ownerID] == p.ID
	case models.RoleOperator:
		if ownerID == "" || p.ID == "" {
			return false
		}
		return ownerID == p.ID || (p.ParentID != "" && ownerID == p.ParentID)
	}
	return false
}

// Visible returns the subset of items the filter's principal may see, in
// input order.
func Visible[T Owned](f *Filter, items []T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if f.CanSee(item.OwnerID()) {
			out = append(out, item)
		}
	}
	return out
}

// CanManageUser reports whether principal may create, edit or delete target.
// ADMIN manages everyone; GENERAL manages only its direct subordinates.
func CanManageUser(principal models.Principal, target models.User) bool {
	switch principal.Role {
	case models.RoleAdmin:
		return true
	case models.RoleGeneral:
		return target.ParentID != "" && target.ParentID == principal.ID
	}
	return false
}
