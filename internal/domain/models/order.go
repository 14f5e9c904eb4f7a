package models

// WeighingMode selects how an order is weighed.
type WeighingMode string

const (
	ModeBatch     WeighingMode = "BATCH"
	ModeSoloPollo WeighingMode = "SOLO_POLLO"
	ModeSoloJabas WeighingMode = "SOLO_JABAS"
)

// Valid reports whether the mode is known.
func (m WeighingMode) Valid() bool {
	switch m {
	case ModeBatch, ModeSoloPollo, ModeSoloJabas:
		return true
	}
	return false
}

// OrderStatus is OPEN while weighing and CLOSED after checkout.
type OrderStatus string

const (
	OrderOpen   OrderStatus = "OPEN"
	OrderClosed OrderStatus = "CLOSED"
)

// PaymentStatus tracks whether an order has been settled.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// PaymentMethod is fixed at checkout.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "CASH"
	MethodCredit PaymentMethod = "CREDIT"
)

// Valid reports whether the method is known.
func (m PaymentMethod) Valid() bool {
	return m == MethodCash || m == MethodCredit
}

// RecordType tags a scale reading.
type RecordType string

const (
	RecordFull      RecordType = "FULL"
	RecordEmpty     RecordType = "EMPTY"
	RecordMortality RecordType = "MORTALITY"
)

// Valid reports whether the record type is known.
func (t RecordType) Valid() bool {
	switch t {
	case RecordFull, RecordEmpty, RecordMortality:
		return true
	}
	return false
}

// WeighingRecord is one scale reading. Quantity counts crates for FULL and
// EMPTY readings and birds for MORTALITY readings.
type WeighingRecord struct {
	ID        string     `json:"id"`
	Timestamp int64      `json:"timestamp"`
	Weight    float64    `json:"weight"`
	Quantity  int        `json:"quantity"`
	Type      RecordType `json:"type"`
}

// Payment is an amount received against an order.
type Payment struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
	Note      string  `json:"note,omitempty"`
}

// ClientOrder is one client's weighing session, inside a batch or as a direct sale.
type ClientOrder struct {
	ID            string           `json:"id"`
	ClientName    string           `json:"clientName"`
	TargetCrates  int              `json:"targetCrates"`
	PricePerKg    float64          `json:"pricePerKg"`
	Status        OrderStatus      `json:"status"`
	BatchID       string           `json:"batchId,omitempty"`
	WeighingMode  WeighingMode     `json:"weighingMode"`
	PaymentStatus PaymentStatus    `json:"paymentStatus"`
	PaymentMethod PaymentMethod    `json:"paymentMethod,omitempty"`
	Records       []WeighingRecord `json:"records"`
	Payments      []Payment        `json:"payments"`
	CreatedBy     string           `json:"createdBy,omitempty"`
}

// EntityID implements store.Entity.
func (o ClientOrder) EntityID() string { return o.ID }

// OwnerID returns the creating user id.
func (o ClientOrder) OwnerID() string { return o.CreatedBy }

// IsClosed reports whether checkout already happened.
func (o ClientOrder) IsClosed() bool { return o.Status == OrderClosed }

// DirectSale reports whether the order lives outside any batch.
func (o ClientOrder) DirectSale() bool { return o.BatchID == "" }

// Normalize fills the fields older payloads may omit so every device sees the
// same shape.
func (o *ClientOrder) Normalize() {
	if o.Records == nil {
		o.Records = []WeighingRecord{}
	}
	if o.Payments == nil {
		o.Payments = []Payment{}
	}
	if o.Status == "" {
		o.Status = OrderOpen
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	if o.WeighingMode == "" {
		o.WeighingMode = ModeBatch
	}
}
