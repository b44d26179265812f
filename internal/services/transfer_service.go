package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sakubank/backend/internal/apperr"
	"github.com/sakubank/backend/internal/audit"
	"github.com/sakubank/backend/internal/metrics"
	"github.com/sakubank/backend/internal/models"
)

// TransferService moves money between two accounts of this bank. Every
// validation happens before any mutation; the debit, credit and both ledger
// rows commit as one unit or not at all.
type TransferService struct {
	db     *sql.DB
	ledger *LedgerService
	audit  *audit.Logger
}

func NewTransferService(db *sql.DB) *TransferService {
	return &TransferService{
		db:     db,
		ledger: NewLedgerService(db),
		audit:  audit.NewLogger(),
	}
}

type TransferRequest struct {
	DestinationID int    `json:"destinationId" validate:"required,gt=0"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	PIN           string `json:"pin" validate:"required,pin"`
	Purpose       string `json:"purpose" validate:"max=50"`
	Description   string `json:"description" validate:"max=200"`
}

// Transfer executes an intrabank transfer against a saved destination.
func (s *TransferService) Transfer(ctx context.Context, userID int, req *TransferRequest) (*models.TransferView, error) {
	sender, err := s.fetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ok, err := VerifyCredential(req.PIN, sender.PINHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.Unauthorized("Invalid PIN")
	}

	destination, err := s.fetchDestination(ctx, req.DestinationID)
	if err != nil {
		return nil, err
	}
	if destination.UserID != sender.ID {
		return nil, apperr.Invalid("Invalid destination")
	}

	receiver, err := s.fetchUserByAccountNumber(ctx, destination.AccountNumber)
	if err != nil {
		return nil, err
	}

	if sender.Balance < req.Amount {
		return nil, apperr.InsufficientFunds("Insufficient balance")
	}

	trxID := uuid.New().String()
	params := EntryParams{
		TrxID:       trxID,
		Amount:      req.Amount,
		Kind:        models.MutationKindTransfer,
		Purpose:     req.Purpose,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer tx.Rollback()

	debit, _, err := s.ledger.TransferTx(tx, sender.ID, receiver.ID, params)
	if err != nil {
		s.audit.LogError(trxID, sender.AccountNumber, err)
		metrics.PaymentsFailed.Inc()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[TRANSFER] Failed to commit transaction: %v", err)
		s.audit.LogError(trxID, sender.AccountNumber, err)
		return nil, apperr.Internal(err)
	}

	s.audit.LogTransfer(trxID, sender.AccountNumber, receiver.AccountNumber, req.Amount, "SUCCESS")
	metrics.TransfersTotal.Inc()

	return &models.TransferView{
		TrxID:           trxID,
		Amount:          req.Amount,
		Purpose:         req.Purpose,
		Description:     req.Description,
		SenderName:      sender.FullName,
		SenderAccount:   sender.AccountNumber,
		ReceiverName:    receiver.FullName,
		ReceiverAccount: receiver.AccountNumber,
		CreatedAt:       debit.CreatedAt,
	}, nil
}

func (s *TransferService) fetchUser(ctx context.Context, userID int) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, account_number, balance, pin_hash, version
		FROM users
		WHERE id = $1`, userID).
		Scan(&user.ID, &user.FullName, &user.AccountNumber, &user.Balance, &user.PINHash, &user.Version)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Account not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &user, nil
}

func (s *TransferService) fetchUserByAccountNumber(ctx context.Context, accountNumber string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, account_number, balance, version
		FROM users
		WHERE account_number = $1`, accountNumber).
		Scan(&user.ID, &user.FullName, &user.AccountNumber, &user.Balance, &user.Version)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Account not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &user, nil
}

func (s *TransferService) fetchDestination(ctx context.Context, destinationID int) (*models.Destination, error) {
	var d models.Destination
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, account_number
		FROM destinations
		WHERE id = $1`, destinationID).
		Scan(&d.ID, &d.UserID, &d.Name, &d.AccountNumber)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Destination not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &d, nil
}
