package models

// Role enumerates the access levels a user can hold.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleGeneral  Role = "GENERAL"
	RoleOperator Role = "OPERATOR"
)

// Valid reports whether the role is one of the known levels.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleGeneral, RoleOperator:
		return true
	}
	return false
}

// User is an operator account. Password is stored in plaintext, mirroring the
// data already shared with other devices; do not deploy as-is where secrets matter.
type User struct {
	ID           string         `json:"id"`
	Username     string         `json:"username"`
	Password     string         `json:"password"`
	Name         string         `json:"name"`
	Role         Role           `json:"role"`
	ParentID     string         `json:"parentId,omitempty"`
	AllowedModes []WeighingMode `json:"allowedModes,omitempty"`
}

// EntityID implements store.Entity.
func (u User) EntityID() string { return u.ID }

// OwnerID is the user itself: a user record is owned by the account it describes.
func (u User) OwnerID() string { return u.ID }

// Principal returns the filter identity of the user.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, ParentID: u.ParentID}
}

// CanUseMode reports whether the user may open orders in the given weighing mode.
// An empty AllowedModes set means every mode is permitted.
func (u User) CanUseMode(mode WeighingMode) bool {
	if u.Role == RoleAdmin || len(u.AllowedModes) == 0 {
		return true
	}
	for _, m := range u.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Principal is the authenticated identity on whose behalf reads are scoped.
type Principal struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	ParentID string `json:"parentId,omitempty"`
}
