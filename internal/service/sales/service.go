// Package sales runs the weighing workflow: batches, client orders, scale
// records, checkout and payments. Every mutation is validated against the
// current record log before it reaches the store, so a rejected request
// never leaves partial state behind.
package sales

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/access"
	"github.com/mamadbah2/avicontrol/internal/aggregate"
	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/store"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrBatchNotFound      = errors.New("batch not found")
	ErrBatchClosed        = errors.New("batch is closed")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderClosed        = errors.New("order is closed")
	ErrOrderOpen          = errors.New("order is not checked out yet")
	ErrRecordNotFound     = errors.New("weighing record not found")
	ErrCrateLimitExceeded = errors.New("full crates would exceed the order target")
	ErrTareExceedsGross   = errors.New("empty crates would exceed full crates")
	ErrModeNotAllowed     = errors.New("weighing mode not allowed for this user")
)

// Service implements the sales use cases on top of the collection store.
type Service struct {
	store    *store.Store
	policy   aggregate.Policy
	validate *validator.Validate
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewService wires the sales workflow.
func NewService(st *store.Store, policy aggregate.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		policy:   policy,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Policy exposes the aggregation constants in use.
func (s *Service) Policy() aggregate.Policy { return s.policy }

func (s *Service) check(in any) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *Service) filter(actor models.User) *access.Filter {
	return access.NewFilter(actor.Principal(), s.store.GetUsers())
}

func (s *Service) timestamp() int64 { return s.now().UnixMilli() }

// BatchInput carries the editable batch fields.
type BatchInput struct {
	Name             string `json:"name" validate:"required"`
	TotalCratesLimit int    `json:"totalCratesLimit" validate:"gte=0"`
}

// CreateBatch opens a new ACTIVE batch owned by actor.
func (s *Service) CreateBatch(actor models.User, in BatchInput) (models.Batch, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return models.Batch{}, err
	}
	b := models.Batch{
		ID:               s.newID(),
		Name:             in.Name,
		CreatedAt:        s.timestamp(),
		TotalCratesLimit: in.TotalCratesLimit,
		Status:           models.BatchActive,
		CreatedBy:        actor.ID,
	}
	if err := s.store.SaveBatch(b); err != nil {
		return models.Batch{}, err
	}
	s.logger.Debug("batch created", zap.String("batch_id", b.ID), zap.String("by", actor.ID))
	return b, nil
}

// UpdateBatch renames a batch or changes its crate limit.
func (s *Service) UpdateBatch(actor models.User, id string, in BatchInput) (models.Batch, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return models.Batch{}, err
	}
	b, err := s.GetBatch(actor, id)
	if err != nil {
		return models.Batch{}, err
	}
	b.Name = in.Name
	b.TotalCratesLimit = in.TotalCratesLimit
	if err := s.store.SaveBatch(b); err != nil {
		return models.Batch{}, err
	}
	return b, nil
}

// CloseBatch marks a batch CLOSED. Closing twice is harmless.
func (s *Service) CloseBatch(actor models.User, id string) (models.Batch, error) {
	b, err := s.GetBatch(actor, id)
	if err != nil {
		return models.Batch{}, err
	}
	if b.Status == models.BatchClosed {
		return b, nil
	}
	b.Status = models.BatchClosed
	if err := s.store.SaveBatch(b); err != nil {
		return models.Batch{}, err
	}
	s.logger.Debug("batch closed", zap.String("batch_id", b.ID))
	return b, nil
}

// DeleteBatch removes a batch and every order in it.
func (s *Service) DeleteBatch(actor models.User, id string) error {
	if _, err := s.GetBatch(actor, id); err != nil {
		return err
	}
	return s.store.DeleteBatch(id)
}

// GetBatch returns a batch visible to actor.
func (s *Service) GetBatch(actor models.User, id string) (models.Batch, error) {
	b, ok := s.store.GetBatch(id)
	if !ok || !s.filter(actor).CanSee(b.OwnerID()) {
		return models.Batch{}, ErrBatchNotFound
	}
	return b, nil
}

// ListBatches returns the batches visible to actor.
func (s *Service) ListBatches(actor models.User) []models.Batch {
	return access.Visible(s.filter(actor), s.store.GetBatches())
}

// BatchTotals aggregates every order of a visible batch.
func (s *Service) BatchTotals(actor models.User, id string) (aggregate.BatchTotals, error) {
	b, err := s.GetBatch(actor, id)
	if err != nil {
		return aggregate.BatchTotals{}, err
	}
	return s.policy.Batch(b, s.store.GetOrders()), nil
}
