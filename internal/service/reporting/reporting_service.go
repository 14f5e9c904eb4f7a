package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/aggregate"
	"github.com/mamadbah2/avicontrol/internal/domain/models"
	repo "github.com/mamadbah2/avicontrol/internal/repository/sheets"
	"github.com/mamadbah2/avicontrol/internal/store"
)

const (
	dateLayout    = "2006-01-02"
	batchesRange  = "Batches!A:L"
	ordersRange   = "Orders!A:N"
	orderIDsRange = "Orders!A:A"
)

// ErrBatchNotFound is returned when a report targets an unknown batch.
var ErrBatchNotFound = errors.New("batch not found")

// OrderLine is one order's row in a report.
type OrderLine struct {
	Order  models.ClientOrder    `json:"order"`
	Totals aggregate.OrderTotals `json:"totals"`
}

// BatchReport is a batch with its roll-up and the per-order lines behind it.
type BatchReport struct {
	Batch  models.Batch          `json:"batch"`
	Totals aggregate.BatchTotals `json:"totals"`
	Orders []OrderLine           `json:"orders"`
}

// Service builds batch reports and exports them to a spreadsheet.
type Service struct {
	repo   repo.Repository
	store  *store.Store
	policy aggregate.Policy
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a new reporting service instance. repository may be nil,
// in which case reports are available but exports fail.
func NewService(repository repo.Repository, st *store.Store, policy aggregate.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repository, store: st, policy: policy, logger: logger, now: time.Now}
}

// OrderReport derives the line for a single order.
func (s *Service) OrderReport(o models.ClientOrder) OrderLine {
	return OrderLine{Order: o, Totals: s.policy.Order(o)}
}

// BatchReport assembles the report for one batch.
func (s *Service) BatchReport(batchID string) (BatchReport, error) {
	b, ok := s.store.GetBatch(batchID)
	if !ok {
		return BatchReport{}, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	orders := s.store.GetOrders()
	report := BatchReport{
		Batch:  b,
		Totals: s.policy.Batch(b, orders),
		Orders: make([]OrderLine, 0),
	}
	for _, o := range orders {
		if o.BatchID == batchID {
			report.Orders = append(report.Orders, s.OrderReport(o))
		}
	}
	return report, nil
}

// ExportBatch appends the batch summary row and every closed order not yet
// present in the orders sheet. Open orders are exported once they close.
func (s *Service) ExportBatch(ctx context.Context, batchID string) error {
	if s.repo == nil {
		return errors.New("spreadsheet export is not configured")
	}
	report, err := s.BatchReport(batchID)
	if err != nil {
		return err
	}

	exported, err := s.exportedOrderIDs(ctx)
	if err != nil {
		return err
	}

	var rows [][]interface{}
	for _, line := range report.Orders {
		if !line.Order.IsClosed() || exported[line.Order.ID] {
			continue
		}
		rows = append(rows, orderRow(report.Batch, line))
	}
	if err := s.repo.AppendRows(ctx, ordersRange, rows); err != nil {
		return fmt.Errorf("export orders of batch %s: %w", batchID, err)
	}

	if err := s.repo.WriteRow(ctx, batchesRange, s.batchRow(report)); err != nil {
		return fmt.Errorf("export batch %s: %w", batchID, err)
	}

	s.logger.Info("batch exported",
		zap.String("batch_id", batchID),
		zap.Int("new_orders", len(rows)),
	)
	return nil
}

// ExportActiveBatches exports every ACTIVE batch and returns how many
// succeeded. Failures are joined into the returned error.
func (s *Service) ExportActiveBatches(ctx context.Context) (int, error) {
	var (
		done int
		errs []error
	)
	for _, b := range s.store.GetBatches() {
		if b.Status != models.BatchActive {
			continue
		}
		if err := s.ExportBatch(ctx, b.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (s *Service) exportedOrderIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.repo.ReadRange(ctx, orderIDsRange)
	if err != nil {
		return nil, fmt.Errorf("load exported orders: %w", err)
	}
	ids := make(map[string]bool, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if id := fmt.Sprint(row[0]); id != "" {
			ids[id] = true
		}
	}
	return ids, nil
}

func (s *Service) batchRow(r BatchReport) []interface{} {
	t := r.Totals
	return []interface{}{
		s.now().Format(dateLayout),
		r.Batch.ID,
		r.Batch.Name,
		string(r.Batch.Status),
		t.OrderCount,
		t.PendingOrders,
		t.FullUnits,
		round2(t.NetWeight),
		t.FinalBirds,
		round2(t.AmountDue),
		round2(t.Balance),
		round2(t.FillPercentage),
	}
}

func orderRow(b models.Batch, line OrderLine) []interface{} {
	o, t := line.Order, line.Totals
	return []interface{}{
		o.ID,
		b.Name,
		o.ClientName,
		string(o.WeighingMode),
		string(o.PaymentMethod),
		string(o.PaymentStatus),
		t.FullUnits,
		t.EmptyUnits,
		round2(t.GrossWeight),
		round2(t.NetWeight),
		t.FinalBirds,
		round2(o.PricePerKg),
		round2(t.AmountDue),
		round2(t.Balance),
	}
}

func round2(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
