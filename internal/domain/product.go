package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product is the inventory unit. Quantity never goes below zero, even under
// concurrent reservations: all decrements happen through the conditional
// update in the repository. Revision is bumped on every write and backs
// optimistic conflict detection on the non-atomic update paths.
type Product struct {
	ID       uuid.UUID
	Name     string
	Price    Money
	Quantity int32
	Revision int64
	Active   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
