package sales

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/access"
	"github.com/mamadbah2/avicontrol/internal/aggregate"
	"github.com/mamadbah2/avicontrol/internal/domain/models"
)

// OrderInput opens a client order. BATCH orders need a batch; the SOLO modes
// are direct sales outside any batch.
type OrderInput struct {
	ClientName   string              `json:"clientName" validate:"required"`
	TargetCrates int                 `json:"targetCrates" validate:"gte=0"`
	BatchID      string              `json:"batchId"`
	WeighingMode models.WeighingMode `json:"weighingMode" validate:"omitempty,oneof=BATCH SOLO_POLLO SOLO_JABAS"`
}

// OrderUpdate edits an open order's header.
type OrderUpdate struct {
	ClientName   string `json:"clientName" validate:"required"`
	TargetCrates int    `json:"targetCrates" validate:"gte=0"`
}

// RecordInput is one scale reading.
type RecordInput struct {
	Type     models.RecordType `json:"type" validate:"required,oneof=FULL EMPTY MORTALITY"`
	Weight   float64           `json:"weight" validate:"gt=0"`
	Quantity int               `json:"quantity" validate:"gte=1"`
}

// CheckoutInput closes an order.
type CheckoutInput struct {
	PricePerKg    float64              `json:"pricePerKg" validate:"gt=0"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod" validate:"required,oneof=CASH CREDIT"`
}

// PaymentInput is a manual payment against a closed order.
type PaymentInput struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Note   string  `json:"note"`
}

// OrderQuery narrows ListOrders. Empty fields match everything.
type OrderQuery struct {
	BatchID       string
	Mode          models.WeighingMode
	PaymentStatus models.PaymentStatus
	DirectOnly    bool
}

// CreateOrder opens an order for actor. Client names are stored uppercase.
func (s *Service) CreateOrder(actor models.User, in OrderInput) (models.ClientOrder, error) {
	in.ClientName = strings.ToUpper(strings.TrimSpace(in.ClientName))
	if in.WeighingMode == "" {
		in.WeighingMode = models.ModeBatch
	}
	if err := s.check(in); err != nil {
		return models.ClientOrder{}, err
	}
	if !actor.CanUseMode(in.WeighingMode) {
		return models.ClientOrder{}, fmt.Errorf("%w: %s", ErrModeNotAllowed, in.WeighingMode)
	}

	switch {
	case in.WeighingMode == models.ModeBatch && in.BatchID == "":
		return models.ClientOrder{}, fmt.Errorf("%w: batchId is required in BATCH mode", ErrValidation)
	case in.WeighingMode != models.ModeBatch && in.BatchID != "":
		return models.ClientOrder{}, fmt.Errorf("%w: %s orders are direct sales and take no batch", ErrValidation, in.WeighingMode)
	}
	if in.BatchID != "" {
		b, err := s.GetBatch(actor, in.BatchID)
		if err != nil {
			return models.ClientOrder{}, err
		}
		if b.Status == models.BatchClosed {
			return models.ClientOrder{}, ErrBatchClosed
		}
	}

	o := models.ClientOrder{
		ID:           s.newID(),
		ClientName:   in.ClientName,
		TargetCrates: in.TargetCrates,
		BatchID:      in.BatchID,
		WeighingMode: in.WeighingMode,
		CreatedBy:    actor.ID,
	}
	o.Normalize()
	if err := s.store.SaveOrder(o); err != nil {
		return models.ClientOrder{}, err
	}
	s.logger.Debug("order created", zap.String("order_id", o.ID), zap.String("batch_id", o.BatchID))
	return o, nil
}

// GetOrder returns an order visible to actor.
func (s *Service) GetOrder(actor models.User, id string) (models.ClientOrder, error) {
	o, ok := s.store.GetOrder(id)
	if !ok || !s.filter(actor).CanSee(o.OwnerID()) {
		return models.ClientOrder{}, ErrOrderNotFound
	}
	return o, nil
}

// ListOrders returns the visible orders matching q.
func (s *Service) ListOrders(actor models.User, q OrderQuery) []models.ClientOrder {
	visible := access.Visible(s.filter(actor), s.store.GetOrders())
	out := make([]models.ClientOrder, 0, len(visible))
	for _, o := range visible {
		if q.BatchID != "" && o.BatchID != q.BatchID {
			continue
		}
		if q.DirectOnly && !o.DirectSale() {
			continue
		}
		if q.Mode != "" && o.WeighingMode != q.Mode {
			continue
		}
		if q.PaymentStatus != "" && s.policy.PaymentStatus(o) != q.PaymentStatus {
			continue
		}
		out = append(out, o)
	}
	return out
}

// UpdateOrder edits the client name and crate target of an open order. The
// target cannot drop below the crates already weighed.
func (s *Service) UpdateOrder(actor models.User, id string, in OrderUpdate) (models.ClientOrder, error) {
	in.ClientName = strings.ToUpper(strings.TrimSpace(in.ClientName))
	if err := s.check(in); err != nil {
		return models.ClientOrder{}, err
	}
	o, err := s.openOrder(actor, id)
	if err != nil {
		return models.ClientOrder{}, err
	}
	full, _, _ := aggregate.Units(o.Records)
	if in.TargetCrates > 0 && in.TargetCrates < full {
		return models.ClientOrder{}, fmt.Errorf("%w: %d crates already weighed", ErrCrateLimitExceeded, full)
	}
	o.ClientName = in.ClientName
	o.TargetCrates = in.TargetCrates
	if err := s.store.SaveOrder(o); err != nil {
		return models.ClientOrder{}, err
	}
	return o, nil
}

// DeleteOrder removes an order visible to actor.
func (s *Service) DeleteOrder(actor models.User, id string) error {
	if _, err := s.GetOrder(actor, id); err != nil {
		return err
	}
	return s.store.DeleteOrder(id)
}

func (s *Service) openOrder(actor models.User, id string) (models.ClientOrder, error) {
	o, err := s.GetOrder(actor, id)
	if err != nil {
		return models.ClientOrder{}, err
	}
	if o.IsClosed() {
		return o, ErrOrderClosed
	}
	return o, nil
}

// AddRecord appends a scale reading to an open order. FULL crates may not
// pass a non-zero target and EMPTY crates may not outnumber FULL crates.
func (s *Service) AddRecord(actor models.User, orderID string, in RecordInput) (models.ClientOrder, error) {
	if err := s.check(in); err != nil {
		return models.ClientOrder{}, err
	}
	o, err := s.openOrder(actor, orderID)
	if err != nil {
		return models.ClientOrder{}, err
	}

	full, empty, _ := aggregate.Units(o.Records)
	switch in.Type {
	case models.RecordFull:
		if o.TargetCrates > 0 && full+in.Quantity > o.TargetCrates {
			return models.ClientOrder{}, fmt.Errorf("%w: %d of %d crates used", ErrCrateLimitExceeded, full, o.TargetCrates)
		}
	case models.RecordEmpty:
		if empty+in.Quantity > full {
			return models.ClientOrder{}, fmt.Errorf("%w: %d full, %d empty", ErrTareExceedsGross, full, empty)
		}
	}

	o.Records = append(o.Records, models.WeighingRecord{
		ID:        s.newID(),
		Timestamp: s.timestamp(),
		Weight:    in.Weight,
		Quantity:  in.Quantity,
		Type:      in.Type,
	})
	if err := s.store.SaveOrder(o); err != nil {
		return models.ClientOrder{}, err
	}
	return o, nil
}

// DeleteRecord removes one reading from an open order. Removing FULL crates
// that EMPTY readings still depend on is refused.
func (s *Service) DeleteRecord(actor models.User, orderID, recordID string) (models.ClientOrder, error) {
	o, err := s.openOrder(actor, orderID)
	if err != nil {
		return models.ClientOrder{}, err
	}

	idx := -1
	for i, r := range o.Records {
		if r.ID == recordID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.ClientOrder{}, ErrRecordNotFound
	}

	remaining := make([]models.WeighingRecord, 0, len(o.Records)-1)
	remaining = append(remaining, o.Records[:idx]...)
	remaining = append(remaining, o.Records[idx+1:]...)
	if full, empty, _ := aggregate.Units(remaining); empty > full {
		return models.ClientOrder{}, fmt.Errorf("%w: %d full, %d empty after removal", ErrTareExceedsGross, full, empty)
	}

	o.Records = remaining
	if err := s.store.SaveOrder(o); err != nil {
		return models.ClientOrder{}, err
	}
	return o, nil
}

// Checkout closes an open order at a price. A CASH checkout records the full
// amount as paid. Checking out a closed order changes nothing and returns the
// stored order with ErrOrderClosed.
func (s *Service) Checkout(actor models.User, orderID string, in CheckoutInput) (models.ClientOrder, error) {
	if err := s.check(in); err != nil {
		return models.ClientOrder{}, err
	}
	o, err := s.openOrder(actor, orderID)
	if err != nil {
		return o, err
	}

	o.PricePerKg = in.PricePerKg
	o.PaymentMethod = in.PaymentMethod
	o.Status = models.OrderClosed
	if in.PaymentMethod == models.MethodCash {
		if due := s.policy.AmountDue(o); due > 0 {
			o.Payments = append(o.Payments, models.Payment{
				ID:        s.newID(),
				Amount:    due,
				Timestamp: s.timestamp(),
				Note:      "cash checkout",
			})
		}
	}
	o.PaymentStatus = s.policy.PaymentStatus(o)

	if err := s.store.SaveOrder(o); err != nil {
		return models.ClientOrder{}, err
	}
	s.logger.Debug("order checked out",
		zap.String("order_id", o.ID),
		zap.String("method", string(o.PaymentMethod)),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	return o, nil
}

// RegisterPayment appends a manual payment to a closed order and marks it
// PAID once the balance is within the settle tolerance.
func (s *Service) RegisterPayment(actor models.User, orderID string, in PaymentInput) (models.ClientOrder, error) {
	if err := s.check(in); err != nil {
		return models.ClientOrder{}, err
	}
	o, err := s.GetOrder(actor, orderID)
	if err != nil {
		return models.ClientOrder{}, err
	}
	if !o.IsClosed() {
		return models.ClientOrder{}, ErrOrderOpen
	}

	o.Payments = append(o.Payments, models.Payment{
		ID:        s.newID(),
		Amount:    in.Amount,
		Timestamp: s.timestamp(),
		Note:      strings.TrimSpace(in.Note),
	})
	o.PaymentStatus = s.policy.PaymentStatus(o)
	if err := s.store.SaveOrder(o); err != nil {
		return models.ClientOrder{}, err
	}
	return o, nil
}

// OrderTotals derives the totals of a visible order.
func (s *Service) OrderTotals(actor models.User, orderID string) (aggregate.OrderTotals, error) {
	o, err := s.GetOrder(actor, orderID)
	if err != nil {
		return aggregate.OrderTotals{}, err
	}
	return s.policy.Order(o), nil
}
