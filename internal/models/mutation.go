package models

import "time"

// Mutation directions.
const (
	DirectionDebit  = "DEBIT"
	DirectionCredit = "CREDIT"
)

// Mutation kinds.
const (
	MutationKindTransfer = "TRANSFER"
	MutationKindQris     = "QRIS"
)

// Mutation is one immutable side of a balance change. A two-sided transfer
// produces exactly two rows sharing TrxID, Amount and CreatedAt with
// opposite directions; a merchant QRIS payment produces the debit row only.
type Mutation struct {
	ID                  int       `json:"id" db:"id"`
	TrxID               string    `json:"trxId" db:"trx_id"`
	UserID              int       `json:"userId" db:"user_id"`
	Amount              int64     `json:"amount" db:"amount"` // always positive
	Description         string    `json:"description" db:"description"`
	Direction           string    `json:"direction" db:"direction"`
	Kind                string    `json:"kind" db:"kind"`
	Purpose             string    `json:"purpose" db:"purpose"`
	CounterpartyName    string    `json:"counterpartyName" db:"counterparty_name"`
	CounterpartyAccount string    `json:"counterpartyAccount" db:"counterparty_account"`
	CreatedAt           time.Time `json:"createdAt" db:"created_at"`
}

// TransferView is the caller-facing projection of a two-sided transfer.
type TransferView struct {
	TrxID           string    `json:"trxId"`
	Amount          int64     `json:"amount"`
	Purpose         string    `json:"purpose"`
	Description     string    `json:"description"`
	SenderName      string    `json:"senderName"`
	SenderAccount   string    `json:"senderAccount"`
	ReceiverName    string    `json:"receiverName"`
	ReceiverAccount string    `json:"receiverAccount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// QrisView is the caller-facing projection of a QRIS debit.
type QrisView struct {
	TrxID        string    `json:"trxId"`
	Amount       int64     `json:"amount"`
	Description  string    `json:"description"`
	MerchantName string    `json:"merchantName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MutationDetail is the kind-shaped view returned by the ledger query.
// Exactly one of Transfer or Qris is set.
type MutationDetail struct {
	ID       int           `json:"id"`
	Kind     string        `json:"kind"`
	Transfer *TransferView `json:"transfer,omitempty"`
	Qris     *QrisView     `json:"qris,omitempty"`
}
