package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	TrxID     string    `json:"trx_id"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Details   any       `json:"details"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogTransfer(trxID, fromAccount, toAccount string, amount int64, status string) {
	event := Event{
		Timestamp: time.Now(),
		EventType: "TRANSFER",
		TrxID:     trxID,
		Amount:    amount,
		Status:    status,
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	}
	a.log(event)
}

func (a *Logger) LogQrisRedemption(trxID, account, branch string, amount int64, status string) {
	event := Event{
		Timestamp: time.Now(),
		EventType: "QRIS_REDEMPTION",
		TrxID:     trxID,
		AccountID: account,
		Amount:    amount,
		Status:    status,
		Details:   map[string]string{"branch": branch},
	}
	a.log(event)
}

func (a *Logger) LogError(trxID, accountID string, err error) {
	event := Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		TrxID:     trxID,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
