package sales

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/avicontrol/internal/aggregate"
	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/events"
	"github.com/mamadbah2/avicontrol/internal/repository/kv"
	"github.com/mamadbah2/avicontrol/internal/store"
)

var (
	admin    = models.User{ID: "1", Username: "admin", Role: models.RoleAdmin}
	general  = models.User{ID: "g1", Username: "jefe", Role: models.RoleGeneral}
	operator = models.User{ID: "op1", Username: "pesador", Role: models.RoleOperator, ParentID: "g1"}
	outsider = models.User{ID: "op9", Username: "otro", Role: models.RoleOperator, ParentID: "g9"}
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st := store.New(kv.NewMemory(), events.NewBus(), zaptest.NewLogger(t))
	for _, u := range []models.User{general, operator, outsider} {
		require.NoError(t, st.SaveUser(u))
	}
	svc := NewService(st, aggregate.DefaultPolicy(), zaptest.NewLogger(t))
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc, st
}

func newOpenOrder(t *testing.T, svc *Service, actor models.User, target int) models.ClientOrder {
	t.Helper()
	b, err := svc.CreateBatch(actor, BatchInput{Name: "Lote 1", TotalCratesLimit: 100})
	require.NoError(t, err)
	o, err := svc.CreateOrder(actor, OrderInput{ClientName: "rosa", TargetCrates: target, BatchID: b.ID})
	require.NoError(t, err)
	return o
}

func TestCreateBatch(t *testing.T) {
	svc, st := newTestService(t)

	b, err := svc.CreateBatch(general, BatchInput{Name: "  Lote Norte ", TotalCratesLimit: 120})
	require.NoError(t, err)
	assert.Equal(t, "Lote Norte", b.Name)
	assert.Equal(t, models.BatchActive, b.Status)
	assert.Equal(t, "g1", b.CreatedBy)
	assert.Equal(t, int64(1700000000000), b.CreatedAt)

	stored, ok := st.GetBatch(b.ID)
	require.True(t, ok)
	assert.Equal(t, b, stored)

	_, err = svc.CreateBatch(general, BatchInput{Name: " "})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateBatch(general, BatchInput{Name: "x", TotalCratesLimit: -1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBatchVisibility(t *testing.T) {
	svc, _ := newTestService(t)
	b, err := svc.CreateBatch(general, BatchInput{Name: "Lote"})
	require.NoError(t, err)

	_, err = svc.GetBatch(operator, b.ID)
	assert.NoError(t, err, "operator sees its supervisor's batch")
	_, err = svc.GetBatch(outsider, b.ID)
	assert.ErrorIs(t, err, ErrBatchNotFound)
	assert.Empty(t, svc.ListBatches(outsider))
	assert.Len(t, svc.ListBatches(admin), 1)

	assert.ErrorIs(t, svc.DeleteBatch(outsider, b.ID), ErrBatchNotFound)
}

func TestCloseBatch_RejectsNewOrders(t *testing.T) {
	svc, _ := newTestService(t)
	b, err := svc.CreateBatch(admin, BatchInput{Name: "Lote"})
	require.NoError(t, err)

	closed, err := svc.CloseBatch(admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchClosed, closed.Status)

	_, err = svc.CreateOrder(admin, OrderInput{ClientName: "rosa", BatchID: b.ID})
	assert.ErrorIs(t, err, ErrBatchClosed)
}

func TestCreateOrder(t *testing.T) {
	svc, _ := newTestService(t)
	o := newOpenOrder(t, svc, operator, 10)

	assert.Equal(t, "ROSA", o.ClientName)
	assert.Equal(t, models.OrderOpen, o.Status)
	assert.Equal(t, models.PaymentPending, o.PaymentStatus)
	assert.Equal(t, models.ModeBatch, o.WeighingMode)
	assert.Equal(t, "op1", o.CreatedBy)
	assert.NotNil(t, o.Records)
	assert.NotNil(t, o.Payments)
}

func TestCreateOrder_ModeRules(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateOrder(admin, OrderInput{ClientName: "rosa"})
	assert.ErrorIs(t, err, ErrValidation, "BATCH mode needs a batch")

	_, err = svc.CreateOrder(admin, OrderInput{ClientName: "rosa", BatchID: "b1", WeighingMode: models.ModeSoloPollo})
	assert.ErrorIs(t, err, ErrValidation, "direct sales take no batch")

	_, err = svc.CreateOrder(admin, OrderInput{ClientName: "rosa", BatchID: "missing"})
	assert.ErrorIs(t, err, ErrBatchNotFound)

	_, err = svc.CreateOrder(admin, OrderInput{ClientName: "rosa", WeighingMode: "BULK"})
	assert.ErrorIs(t, err, ErrValidation)

	limited := operator
	limited.AllowedModes = []models.WeighingMode{models.ModeSoloJabas}
	_, err = svc.CreateOrder(limited, OrderInput{ClientName: "rosa", WeighingMode: models.ModeSoloPollo})
	assert.ErrorIs(t, err, ErrModeNotAllowed)

	o, err := svc.CreateOrder(limited, OrderInput{ClientName: "rosa", WeighingMode: models.ModeSoloJabas})
	require.NoError(t, err)
	assert.True(t, o.DirectSale())
}

func TestAddRecord_CrateLimit(t *testing.T) {
	svc, st := newTestService(t)
	o := newOpenOrder(t, svc, admin, 10)

	_, err := svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 80, Quantity: 8})
	require.NoError(t, err)

	_, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 30, Quantity: 3})
	assert.ErrorIs(t, err, ErrCrateLimitExceeded)

	stored, _ := st.GetOrder(o.ID)
	assert.Len(t, stored.Records, 1, "rejected record must not mutate the order")

	_, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 20, Quantity: 2})
	assert.NoError(t, err, "reaching the target exactly is allowed")
}

func TestAddRecord_UnlimitedTarget(t *testing.T) {
	svc, _ := newTestService(t)
	o := newOpenOrder(t, svc, admin, 0)

	got, err := svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 500, Quantity: 50})
	require.NoError(t, err)
	assert.Len(t, got.Records, 1)
}

func TestAddRecord_TareCannotExceedGross(t *testing.T) {
	svc, _ := newTestService(t)
	o := newOpenOrder(t, svc, admin, 0)

	_, err := svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordEmpty, Weight: 2, Quantity: 1})
	assert.ErrorIs(t, err, ErrTareExceedsGross)

	_, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 50, Quantity: 5})
	require.NoError(t, err)
	_, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordEmpty, Weight: 10, Quantity: 5})
	require.NoError(t, err)
	_, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordEmpty, Weight: 2, Quantity: 1})
	assert.ErrorIs(t, err, ErrTareExceedsGross)

	_, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordMortality, Weight: 2, Quantity: 1})
	assert.NoError(t, err)
}

func TestAddRecord_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	o := newOpenOrder(t, svc, admin, 0)

	for _, in := range []RecordInput{
		{Type: models.RecordFull, Weight: 0, Quantity: 1},
		{Type: models.RecordFull, Weight: 10, Quantity: 0},
		{Type: "HALF", Weight: 10, Quantity: 1},
	} {
		_, err := svc.AddRecord(admin, o.ID, in)
		assert.ErrorIs(t, err, ErrValidation, "%+v", in)
	}

	_, err := svc.AddRecord(admin, "missing", RecordInput{Type: models.RecordFull, Weight: 1, Quantity: 1})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestDeleteRecord(t *testing.T) {
	svc, _ := newTestService(t)
	o := newOpenOrder(t, svc, admin, 0)

	o, err := svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 50, Quantity: 5})
	require.NoError(t, err)
	fullID := o.Records[0].ID
	o, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordEmpty, Weight: 10, Quantity: 5})
	require.NoError(t, err)
	emptyID := o.Records[1].ID

	_, err = svc.DeleteRecord(admin, o.ID, fullID)
	assert.ErrorIs(t, err, ErrTareExceedsGross)

	_, err = svc.DeleteRecord(admin, o.ID, "nope")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	o, err = svc.DeleteRecord(admin, o.ID, emptyID)
	require.NoError(t, err)
	o, err = svc.DeleteRecord(admin, o.ID, fullID)
	require.NoError(t, err)
	assert.Empty(t, o.Records)

	totals, err := svc.OrderTotals(admin, o.ID)
	require.NoError(t, err)
	assert.Zero(t, totals.NetWeight)
	assert.True(t, totals.Settled)
}

func TestCheckout_CashScenario(t *testing.T) {
	svc, _ := newTestService(t)
	o := newOpenOrder(t, svc, admin, 0)
	_, err := svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 50, Quantity: 5})
	require.NoError(t, err)
	_, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordEmpty, Weight: 10, Quantity: 5})
	require.NoError(t, err)

	closed, err := svc.Checkout(admin, o.ID, CheckoutInput{PricePerKg: 5, PaymentMethod: models.MethodCash})
	require.NoError(t, err)

	assert.Equal(t, models.OrderClosed, closed.Status)
	assert.Equal(t, models.PaymentPaid, closed.PaymentStatus)
	require.Len(t, closed.Payments, 1)
	assert.InDelta(t, 200.0, closed.Payments[0].Amount, 1e-9)

	totals, err := svc.OrderTotals(admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, totals.InitialBirds)
	assert.InDelta(t, 0.889, totals.AverageWeightPerBird, 0.001)
	assert.InDelta(t, 0, totals.Balance, 1e-9)

	again, err := svc.Checkout(admin, o.ID, CheckoutInput{PricePerKg: 9, PaymentMethod: models.MethodCash})
	assert.ErrorIs(t, err, ErrOrderClosed)
	assert.InDelta(t, 5.0, again.PricePerKg, 1e-9)
	assert.Len(t, again.Payments, 1)

	_, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 1, Quantity: 1})
	assert.ErrorIs(t, err, ErrOrderClosed)
	_, err = svc.DeleteRecord(admin, o.ID, closed.Records[0].ID)
	assert.ErrorIs(t, err, ErrOrderClosed)
}

func TestCheckout_CreditThenPayments(t *testing.T) {
	svc, _ := newTestService(t)
	o := newOpenOrder(t, svc, admin, 0)
	_, err := svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 40, Quantity: 4})
	require.NoError(t, err)

	_, err = svc.RegisterPayment(admin, o.ID, PaymentInput{Amount: 10})
	assert.ErrorIs(t, err, ErrOrderOpen)

	closed, err := svc.Checkout(admin, o.ID, CheckoutInput{PricePerKg: 2.5, PaymentMethod: models.MethodCredit})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, closed.PaymentStatus)
	assert.Empty(t, closed.Payments)

	assert.Len(t, svc.ListOrders(admin, OrderQuery{PaymentStatus: models.PaymentPending}), 1)

	partial, err := svc.RegisterPayment(admin, o.ID, PaymentInput{Amount: 60, Note: " abono "})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, partial.PaymentStatus)
	assert.Equal(t, "abono", partial.Payments[0].Note)

	paid, err := svc.RegisterPayment(admin, o.ID, PaymentInput{Amount: 39.95})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus, "balance of 0.05 is within tolerance")

	assert.Empty(t, svc.ListOrders(admin, OrderQuery{PaymentStatus: models.PaymentPending}))
	assert.Len(t, svc.ListOrders(admin, OrderQuery{PaymentStatus: models.PaymentPaid}), 1)
}

func TestCheckout_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	o := newOpenOrder(t, svc, admin, 0)

	_, err := svc.Checkout(admin, o.ID, CheckoutInput{PricePerKg: 0, PaymentMethod: models.MethodCash})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Checkout(admin, o.ID, CheckoutInput{PricePerKg: 5, PaymentMethod: "BARTER"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateOrder(t *testing.T) {
	svc, _ := newTestService(t)
	o := newOpenOrder(t, svc, admin, 10)
	_, err := svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 60, Quantity: 6})
	require.NoError(t, err)

	_, err = svc.UpdateOrder(admin, o.ID, OrderUpdate{ClientName: "rosa", TargetCrates: 5})
	assert.ErrorIs(t, err, ErrCrateLimitExceeded)

	updated, err := svc.UpdateOrder(admin, o.ID, OrderUpdate{ClientName: "maria", TargetCrates: 12})
	require.NoError(t, err)
	assert.Equal(t, "MARIA", updated.ClientName)
	assert.Equal(t, 12, updated.TargetCrates)
}

func TestListOrders_ScopeAndContext(t *testing.T) {
	svc, _ := newTestService(t)
	a := newOpenOrder(t, svc, general, 0)
	b := newOpenOrder(t, svc, operator, 0)
	direct, err := svc.CreateOrder(outsider, OrderInput{ClientName: "luis", WeighingMode: models.ModeSoloPollo})
	require.NoError(t, err)

	ids := func(orders []models.ClientOrder) []string {
		out := make([]string, 0, len(orders))
		for _, o := range orders {
			out = append(out, o.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{a.ID, b.ID, direct.ID}, ids(svc.ListOrders(admin, OrderQuery{})))
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids(svc.ListOrders(general, OrderQuery{})))
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids(svc.ListOrders(operator, OrderQuery{})))
	assert.ElementsMatch(t, []string{direct.ID}, ids(svc.ListOrders(outsider, OrderQuery{})))

	assert.ElementsMatch(t, []string{a.ID}, ids(svc.ListOrders(admin, OrderQuery{BatchID: a.BatchID})))
	assert.ElementsMatch(t, []string{direct.ID}, ids(svc.ListOrders(admin, OrderQuery{DirectOnly: true, Mode: models.ModeSoloPollo})))

	_, err = svc.GetOrder(outsider, a.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestBatchTotals(t *testing.T) {
	svc, _ := newTestService(t)
	b, err := svc.CreateBatch(admin, BatchInput{Name: "Lote", TotalCratesLimit: 20})
	require.NoError(t, err)
	for _, name := range []string{"rosa", "luis"} {
		o, err := svc.CreateOrder(admin, OrderInput{ClientName: name, BatchID: b.ID})
		require.NoError(t, err)
		_, err = svc.AddRecord(admin, o.ID, RecordInput{Type: models.RecordFull, Weight: 50, Quantity: 5})
		require.NoError(t, err)
	}

	totals, err := svc.BatchTotals(admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.OrderCount)
	assert.Equal(t, 10, totals.FullUnits)
	assert.InDelta(t, 100.0, totals.GrossWeight, 1e-9)
	assert.InDelta(t, 50.0, totals.FillPercentage, 1e-9)
}

func TestDeleteBatch_CascadesOrders(t *testing.T) {
	svc, st := newTestService(t)
	o := newOpenOrder(t, svc, admin, 0)

	require.NoError(t, svc.DeleteBatch(admin, o.BatchID))
	_, ok := st.GetOrder(o.ID)
	assert.False(t, ok)
}
