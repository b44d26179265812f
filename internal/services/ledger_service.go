package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sakubank/backend/internal/apperr"
	"github.com/sakubank/backend/internal/models"
)

// LedgerService performs the balance mutations and paired ledger inserts of
// a payment inside a caller-owned SQL transaction. Rows are locked in
// consistent id order to prevent deadlocks; balance writes carry an
// optimistic version check on top of the row lock.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// EntryParams describes one logical money movement. CreatedAt is shared by
// both sides of a transfer so the paired rows carry an identical timestamp.
type EntryParams struct {
	TrxID       string
	Amount      int64
	Kind        string
	Purpose     string
	Description string
	CreatedAt   time.Time
}

// TransferTx debits the sender and credits the receiver, appending one
// DEBIT and one CREDIT mutation with cross-populated counterparty fields.
func (s *LedgerService) TransferTx(tx *sql.Tx, senderID, receiverID int, p EntryParams) (*models.Mutation, *models.Mutation, error) {
	firstLock, secondLock := senderID, receiverID
	if senderID > receiverID {
		firstLock, secondLock = receiverID, senderID
	}

	first, err := s.lockUser(tx, firstLock)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.lockUser(tx, secondLock)
	if err != nil {
		return nil, nil, err
	}

	sender, receiver := first, second
	if firstLock != senderID {
		sender, receiver = second, first
	}

	if sender.Balance < p.Amount {
		return nil, nil, apperr.InsufficientFunds("Insufficient balance")
	}

	debit := &models.Mutation{
		TrxID:               p.TrxID,
		UserID:              sender.ID,
		Amount:              p.Amount,
		Description:         p.Description,
		Direction:           models.DirectionDebit,
		Kind:                p.Kind,
		Purpose:             p.Purpose,
		CounterpartyName:    receiver.FullName,
		CounterpartyAccount: receiver.AccountNumber,
		CreatedAt:           p.CreatedAt,
	}
	credit := &models.Mutation{
		TrxID:               p.TrxID,
		UserID:              receiver.ID,
		Amount:              p.Amount,
		Description:         p.Description,
		Direction:           models.DirectionCredit,
		Kind:                p.Kind,
		Purpose:             p.Purpose,
		CounterpartyName:    sender.FullName,
		CounterpartyAccount: sender.AccountNumber,
		CreatedAt:           p.CreatedAt,
	}

	if err := s.insertMutation(tx, debit); err != nil {
		return nil, nil, err
	}
	if err := s.insertMutation(tx, credit); err != nil {
		return nil, nil, err
	}

	if err := s.updateBalance(tx, sender.ID, sender.Balance-p.Amount, sender.Version); err != nil {
		return nil, nil, err
	}
	if err := s.updateBalance(tx, receiver.ID, receiver.Balance+p.Amount, receiver.Version); err != nil {
		return nil, nil, err
	}

	return debit, credit, nil
}

// DebitTx performs a single-sided debit with no receiving ledger account
// (merchant settlement happens externally).
func (s *LedgerService) DebitTx(tx *sql.Tx, payerID int, p EntryParams, counterpartyName, counterpartyAccount string) (*models.Mutation, error) {
	payer, err := s.lockUser(tx, payerID)
	if err != nil {
		return nil, err
	}

	if payer.Balance < p.Amount {
		return nil, apperr.InsufficientFunds("Insufficient balance")
	}

	debit := &models.Mutation{
		TrxID:               p.TrxID,
		UserID:              payer.ID,
		Amount:              p.Amount,
		Description:         p.Description,
		Direction:           models.DirectionDebit,
		Kind:                p.Kind,
		Purpose:             p.Purpose,
		CounterpartyName:    counterpartyName,
		CounterpartyAccount: counterpartyAccount,
		CreatedAt:           p.CreatedAt,
	}

	if err := s.insertMutation(tx, debit); err != nil {
		return nil, err
	}

	if err := s.updateBalance(tx, payer.ID, payer.Balance-p.Amount, payer.Version); err != nil {
		return nil, err
	}

	return debit, nil
}

func (s *LedgerService) lockUser(tx *sql.Tx, userID int) (*models.User, error) {
	var user models.User
	err := tx.QueryRow(`
		SELECT id, full_name, account_number, balance, version
		FROM users
		WHERE id = $1
		FOR UPDATE`, userID).
		Scan(&user.ID, &user.FullName, &user.AccountNumber, &user.Balance, &user.Version)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Account not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *LedgerService) insertMutation(tx *sql.Tx, m *models.Mutation) error {
	return tx.QueryRow(`
		INSERT INTO mutations (trx_id, user_id, amount, description, direction, kind, purpose, counterparty_name, counterparty_account, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		m.TrxID, m.UserID, m.Amount, m.Description, m.Direction, m.Kind,
		m.Purpose, m.CounterpartyName, m.CounterpartyAccount, m.CreatedAt).
		Scan(&m.ID)
}

func (s *LedgerService) updateBalance(tx *sql.Tx, userID int, newBalance int64, version int) error {
	result, err := tx.Exec(`
		UPDATE users
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), userID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for user %d", userID)
	}

	return nil
}
