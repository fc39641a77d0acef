package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a random identifier for any stored entity.
func New() string {
	return uuid.NewString()
}

// InvoiceNumber formats a sequence value as INV-YYYYMMDD-000042. The date part is
// informational; uniqueness comes from the sequence alone.
func InvoiceNumber(seq int64, at time.Time) string {
	return fmt.Sprintf("INV-%s-%06d", at.UTC().Format("20060102"), seq)
}
