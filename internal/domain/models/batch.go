package models

// BatchStatus tracks whether a batch still accepts new orders.
type BatchStatus string

const (
	BatchActive BatchStatus = "ACTIVE"
	BatchClosed BatchStatus = "CLOSED"
)

// Batch groups client sales under one crate-capacity target.
type Batch struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	CreatedAt        int64       `json:"createdAt"`
	TotalCratesLimit int         `json:"totalCratesLimit"`
	Status           BatchStatus `json:"status"`
	CreatedBy        string      `json:"createdBy,omitempty"`
}

// EntityID implements store.Entity.
func (b Batch) EntityID() string { return b.ID }

// OwnerID returns the creating user id.
func (b Batch) OwnerID() string { return b.CreatedBy }
