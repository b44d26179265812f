package models

import (
	"database/sql"
	"time"
)

// QRIS payload kinds.
const (
	QrisKindMPM = "MPM" // merchant-presented mode
	QrisKindCPM = "CPM" // customer-presented mode
)

// Qris is a persisted payment payload record. A row is created unused with
// an expiry (24h for MPM, 1 minute for CPM) and transitions used=false ->
// true exactly once on successful redemption. Pre-existing static merchant
// codes have no row at all. "Expired" is derived from ExpiredAt, never
// stored.
type Qris struct {
	ID        int           `json:"id" db:"id"`
	TrxID     string        `json:"trxId" db:"trx_id"`
	Kind      string        `json:"kind" db:"kind"`
	Payload   string        `json:"payload" db:"payload"`
	Used      bool          `json:"used" db:"used"`
	ExpiredAt time.Time     `json:"expiredAt" db:"expired_at"`
	UserID    sql.NullInt64 `json:"-" db:"user_id"` // null for merchant-issued codes
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
}

// IsExpired reports whether the record's expiry has passed at the given
// instant.
func (q *Qris) IsExpired(now time.Time) bool {
	return now.After(q.ExpiredAt)
}
