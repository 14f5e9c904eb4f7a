// Package aggregate derives weight and money totals from an order's weighing
// records. Nothing is cached: totals are recomputed from the records on every
// call.
package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
)

const (
	// DefaultCrateCapacity is the estimated number of birds in a full crate.
	DefaultCrateCapacity = 9
	// DefaultSettleEpsilon is the balance at or under which an order counts as paid.
	DefaultSettleEpsilon = 0.1
)

// Policy holds the constants the derivations depend on.
type Policy struct {
	CrateCapacity int
	SettleEpsilon float64
}

// DefaultPolicy returns the observed production constants.
func DefaultPolicy() Policy {
	return Policy{CrateCapacity: DefaultCrateCapacity, SettleEpsilon: DefaultSettleEpsilon}
}

// OrderTotals are the derived figures of one order.
type OrderTotals struct {
	RecordCount          int     `json:"recordCount"`
	GrossWeight          float64 `json:"grossWeight"`
	TareWeight           float64 `json:"tareWeight"`
	MortalityWeight      float64 `json:"mortalityWeight"`
	NetWeight            float64 `json:"netWeight"`
	FullUnits            int     `json:"fullUnits"`
	EmptyUnits           int     `json:"emptyUnits"`
	MortalityUnits       int     `json:"mortalityUnits"`
	InitialBirds         int     `json:"initialBirds"`
	FinalBirds           int     `json:"finalBirds"`
	AverageWeightPerBird float64 `json:"averageWeightPerBird"`
	AmountDue            float64 `json:"amountDue"`
	Paid                 float64 `json:"paid"`
	Balance              float64 `json:"balance"`
	Settled              bool    `json:"settled"`
}

type weights struct {
	gross, tare, mortality decimal.Decimal
	full, empty, dead      int
	count                  int
}

func sumRecords(records []models.WeighingRecord) weights {
	w := weights{gross: decimal.Zero, tare: decimal.Zero, mortality: decimal.Zero}
	for _, r := range records {
		weight := decimal.NewFromFloat(r.Weight)
		switch r.Type {
		case models.RecordFull:
			w.gross = w.gross.Add(weight)
			w.full += r.Quantity
		case models.RecordEmpty:
			w.tare = w.tare.Add(weight)
			w.empty += r.Quantity
		case models.RecordMortality:
			w.mortality = w.mortality.Add(weight)
			w.dead += r.Quantity
		default:
			continue
		}
		w.count++
	}
	return w
}

// Units returns the FULL, EMPTY and MORTALITY quantity sums of records.
func Units(records []models.WeighingRecord) (full, empty, mortality int) {
	w := sumRecords(records)
	return w.full, w.empty, w.dead
}

// NetWeight is gross minus tare minus mortality, except in SOLO_POLLO mode
// where no tare is collected and net equals gross.
func NetWeight(mode models.WeighingMode, records []models.WeighingRecord) float64 {
	return netWeight(mode, sumRecords(records)).InexactFloat64()
}

func netWeight(mode models.WeighingMode, w weights) decimal.Decimal {
	if mode == models.ModeSoloPollo {
		return w.gross
	}
	return w.gross.Sub(w.tare).Sub(w.mortality)
}

// AmountDue is net weight times the order's price per kg.
func (p Policy) AmountDue(o models.ClientOrder) float64 {
	return p.amountDue(o, sumRecords(o.Records)).InexactFloat64()
}

func (p Policy) amountDue(o models.ClientOrder, w weights) decimal.Decimal {
	return netWeight(o.WeighingMode, w).Mul(decimal.NewFromFloat(o.PricePerKg))
}

// Order computes every derived figure of o.
func (p Policy) Order(o models.ClientOrder) OrderTotals {
	w := sumRecords(o.Records)
	net := netWeight(o.WeighingMode, w)

	initialBirds := w.full * p.CrateCapacity
	finalBirds := initialBirds - w.dead
	if finalBirds < 0 {
		finalBirds = 0
	}

	avg := decimal.Zero
	if initialBirds > 0 {
		avg = w.gross.Sub(w.tare).Div(decimal.NewFromInt(int64(initialBirds)))
	}

	due := p.amountDue(o, w)
	paid := decimal.Zero
	for _, pay := range o.Payments {
		paid = paid.Add(decimal.NewFromFloat(pay.Amount))
	}
	balance := due.Sub(paid)

	return OrderTotals{
		RecordCount:          w.count,
		GrossWeight:          w.gross.InexactFloat64(),
		TareWeight:           w.tare.InexactFloat64(),
		MortalityWeight:      w.mortality.InexactFloat64(),
		NetWeight:            net.InexactFloat64(),
		FullUnits:            w.full,
		EmptyUnits:           w.empty,
		MortalityUnits:       w.dead,
		InitialBirds:         initialBirds,
		FinalBirds:           finalBirds,
		AverageWeightPerBird: avg.InexactFloat64(),
		AmountDue:            due.InexactFloat64(),
		Paid:                 paid.InexactFloat64(),
		Balance:              balance.InexactFloat64(),
		Settled:              p.settled(balance),
	}
}

func (p Policy) settled(balance decimal.Decimal) bool {
	return balance.LessThanOrEqual(decimal.NewFromFloat(p.SettleEpsilon))
}

// PaymentStatus classifies an order by its outstanding balance.
func (p Policy) PaymentStatus(o models.ClientOrder) models.PaymentStatus {
	if p.Order(o).Settled {
		return models.PaymentPaid
	}
	return models.PaymentPending
}

// BatchTotals roll up every order of a batch.
type BatchTotals struct {
	OrderCount      int     `json:"orderCount"`
	PendingOrders   int     `json:"pendingOrders"`
	RecordCount     int     `json:"recordCount"`
	GrossWeight     float64 `json:"grossWeight"`
	TareWeight      float64 `json:"tareWeight"`
	MortalityWeight float64 `json:"mortalityWeight"`
	NetWeight       float64 `json:"netWeight"`
	FullUnits       int     `json:"fullUnits"`
	EmptyUnits      int     `json:"emptyUnits"`
	MortalityUnits  int     `json:"mortalityUnits"`
	InitialBirds    int     `json:"initialBirds"`
	FinalBirds      int     `json:"finalBirds"`
	AmountDue       float64 `json:"amountDue"`
	Paid            float64 `json:"paid"`
	Balance         float64 `json:"balance"`
	FillPercentage  float64 `json:"fillPercentage"`
}

// Batch sums the totals of every order whose BatchID matches b.ID. Orders of
// other batches in the slice are ignored.
func (p Policy) Batch(b models.Batch, orders []models.ClientOrder) BatchTotals {
	var out BatchTotals
	gross, tare, mortality := decimal.Zero, decimal.Zero, decimal.Zero
	net, due, paid, bal := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, o := range orders {
		if o.BatchID != b.ID {
			continue
		}
		t := p.Order(o)
		out.OrderCount++
		if !t.Settled {
			out.PendingOrders++
		}
		out.RecordCount += t.RecordCount
		out.FullUnits += t.FullUnits
		out.EmptyUnits += t.EmptyUnits
		out.MortalityUnits += t.MortalityUnits
		out.InitialBirds += t.InitialBirds
		out.FinalBirds += t.FinalBirds
		gross = gross.Add(decimal.NewFromFloat(t.GrossWeight))
		tare = tare.Add(decimal.NewFromFloat(t.TareWeight))
		mortality = mortality.Add(decimal.NewFromFloat(t.MortalityWeight))
		net = net.Add(decimal.NewFromFloat(t.NetWeight))
		due = due.Add(decimal.NewFromFloat(t.AmountDue))
		paid = paid.Add(decimal.NewFromFloat(t.Paid))
		bal = bal.Add(decimal.NewFromFloat(t.Balance))
	}

	out.GrossWeight = gross.InexactFloat64()
	out.TareWeight = tare.InexactFloat64()
	out.MortalityWeight = mortality.InexactFloat64()
	out.NetWeight = net.InexactFloat64()
	out.AmountDue = due.InexactFloat64()
	out.Paid = paid.InexactFloat64()
	out.Balance = bal.InexactFloat64()
	out.FillPercentage = FillPercentage(out.FullUnits, b.TotalCratesLimit)
	return out
}

// FillPercentage is full crates over the batch limit, capped at 100. An
// unlimited batch reports 0.
func FillPercentage(fullUnits, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	pct := float64(fullUnits) / float64(limit) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
