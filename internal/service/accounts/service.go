package accounts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/access"
	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/store"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("not allowed to manage this user")
	ErrSelfDelete         = errors.New("users cannot delete themselves")
	ErrUsernameTaken      = errors.New("username already in use")
)

// UserInput carries the editable user fields. An empty password on update
// keeps the current one.
type UserInput struct {
	Username     string                `json:"username" validate:"required"`
	Password     string                `json:"password"`
	Name         string                `json:"name"`
	Role         models.Role           `json:"role" validate:"required,oneof=ADMIN GENERAL OPERATOR"`
	ParentID     string                `json:"parentId"`
	AllowedModes []models.WeighingMode `json:"allowedModes" validate:"dive,oneof=BATCH SOLO_POLLO SOLO_JABAS"`
}

// Service manages user accounts within the role hierarchy.
type Service struct {
	store    *store.Store
	validate *validator.Validate
	logger   *zap.Logger
	newID    func() string
}

// NewService creates the accounts service.
func NewService(st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, validate: validator.New(), logger: logger, newID: uuid.NewString}
}

// Login checks credentials. Passwords are compared in plaintext.
func (s *Service) Login(username, password string) (models.User, error) {
	u, ok := s.store.Login(strings.TrimSpace(username), password)
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	s.logger.Info("user logged in", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

// ListUsers returns the accounts visible to actor.
func (s *Service) ListUsers(actor models.User) []models.User {
	users := s.store.GetUsers()
	return access.Visible(access.NewFilter(actor.Principal(), users), users)
}

func (s *Service) check(in UserInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *Service) usernameTaken(username, exceptID string) bool {
	for _, u := range s.store.GetUsers() {
		if u.ID != exceptID && strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}

// CreateUser adds an account. ADMIN may create any role; GENERAL may only
// create OPERATORs, which are attached to it.
func (s *Service) CreateUser(actor models.User, in UserInput) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := s.check(in); err != nil {
		return models.User{}, err
	}
	if in.Password == "" {
		return models.User{}, fmt.Errorf("%w: password is required", ErrValidation)
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleGeneral:
		if in.Role != models.RoleOperator {
			return models.User{}, fmt.Errorf("%w: GENERAL users may only create OPERATOR accounts", ErrForbidden)
		}
		in.ParentID = actor.ID
	default:
		return models.User{}, ErrForbidden
	}

	if s.usernameTaken(in.Username, "") {
		return models.User{}, ErrUsernameTaken
	}

	u := models.User{
		ID:           s.newID(),
		Username:     in.Username,
		Password:     in.Password,
		Name:         strings.TrimSpace(in.Name),
		Role:         in.Role,
		ParentID:     in.ParentID,
		AllowedModes: in.AllowedModes,
	}
	if err := s.store.SaveUser(u); err != nil {
		return models.User{}, err
	}
	s.logger.Info("user created", zap.String("user_id", u.ID), zap.String("by", actor.ID))
	return u, nil
}

// UpdateUser edits an account. Users may change their own name and password;
// everything else requires managing rights over the target.
func (s *Service) UpdateUser(actor models.User, id string, in UserInput) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := s.check(in); err != nil {
		return models.User{}, err
	}
	target, ok := s.store.GetUser(id)
	if !ok {
		return models.User{}, ErrUserNotFound
	}

	self := actor.ID == target.ID
	if !self && !access.CanManageUser(actor.Principal(), target) {
		return models.User{}, ErrForbidden
	}
	if s.usernameTaken(in.Username, target.ID) {
		return models.User{}, ErrUsernameTaken
	}

	target.Username = in.Username
	target.Name = strings.TrimSpace(in.Name)
	if in.Password != "" {
		target.Password = in.Password
	}
	if actor.Role == models.RoleAdmin {
		target.Role = in.Role
		target.ParentID = in.ParentID
		target.AllowedModes = in.AllowedModes
	} else if !self {
		target.AllowedModes = in.AllowedModes
	}

	if err := s.store.SaveUser(target); err != nil {
		return models.User{}, err
	}
	return target, nil
}

// DeleteUser removes an account the actor manages.
func (s *Service) DeleteUser(actor models.User, id string) error {
	if actor.ID == id {
		return ErrSelfDelete
	}
	target, ok := s.store.GetUser(id)
	if !ok {
		return ErrUserNotFound
	}
	if !access.CanManageUser(actor.Principal(), target) {
		return ErrForbidden
	}
	if err := s.store.DeleteUser(id); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.String("user_id", id), zap.String("by", actor.ID))
	return nil
}
