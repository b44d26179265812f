package services

import (
	"context"
	"database/sql"

	"github.com/sakubank/backend/internal/apperr"
	"github.com/sakubank/backend/internal/models"
)

// MutationService answers ledger queries: the mutation history of an account
// and the kind-shaped detail of a single entry.
type MutationService struct {
	db *sql.DB
}

func NewMutationService(db *sql.DB) *MutationService {
	return &MutationService{db: db}
}

const maxHistoryPageSize = 100

// ListRecent returns the caller's mutations, newest first.
func (s *MutationService) ListRecent(ctx context.Context, userID, limit int) ([]models.Mutation, error) {
	if limit <= 0 || limit > maxHistoryPageSize {
		limit = maxHistoryPageSize
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trx_id, user_id, amount, description, direction, kind,
		       purpose, counterparty_name, counterparty_account, created_at
		FROM mutations
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	mutations := make([]models.Mutation, 0, limit)
	for rows.Next() {
		var m models.Mutation
		if err := rows.Scan(&m.ID, &m.TrxID, &m.UserID, &m.Amount, &m.Description,
			&m.Direction, &m.Kind, &m.Purpose, &m.CounterpartyName,
			&m.CounterpartyAccount, &m.CreatedAt); err != nil {
			return nil, apperr.Internal(err)
		}
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err)
	}
	return mutations, nil
}

// GetDetails resolves one ledger entry into its kind-shaped projection.
// QRIS entries are visible to their owner only; transfer entries also to
// the account on the other side.
func (s *MutationService) GetDetails(ctx context.Context, entryID, callerID int) (*models.MutationDetail, error) {
	m, ownerName, ownerAccount, err := s.fetchEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	switch m.Kind {
	case models.MutationKindQris:
		if m.UserID != callerID {
			return nil, apperr.Forbidden("Access denied")
		}
		return &models.MutationDetail{
			ID:   m.ID,
			Kind: m.Kind,
			Qris: &models.QrisView{
				TrxID:        m.TrxID,
				Amount:       m.Amount,
				Description:  m.Description,
				MerchantName: m.CounterpartyName,
				CreatedAt:    m.CreatedAt,
			},
		}, nil

	case models.MutationKindTransfer:
		if m.UserID != callerID {
			callerAccount, err := s.fetchAccountNumber(ctx, callerID)
			if err != nil {
				return nil, err
			}
			if m.CounterpartyAccount != callerAccount {
				return nil, apperr.Forbidden("Access denied")
			}
		}

		view := &models.TransferView{
			TrxID:       m.TrxID,
			Amount:      m.Amount,
			Purpose:     m.Purpose,
			Description: m.Description,
			CreatedAt:   m.CreatedAt,
		}
		if m.Direction == models.DirectionDebit {
			view.SenderName = ownerName
			view.SenderAccount = ownerAccount
			view.ReceiverName = m.CounterpartyName
			view.ReceiverAccount = m.CounterpartyAccount
		} else {
			view.SenderName = m.CounterpartyName
			view.SenderAccount = m.CounterpartyAccount
			view.ReceiverName = ownerName
			view.ReceiverAccount = ownerAccount
		}
		return &models.MutationDetail{ID: m.ID, Kind: m.Kind, Transfer: view}, nil

	default:
		return nil, apperr.NotFound("Transaction not found")
	}
}

func (s *MutationService) fetchEntry(ctx context.Context, entryID int) (*models.Mutation, string, string, error) {
	var m models.Mutation
	var ownerName, ownerAccount string
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.trx_id, m.user_id, m.amount, m.description, m.direction,
		       m.kind, m.purpose, m.counterparty_name, m.counterparty_account,
		       m.created_at, u.full_name, u.account_number
		FROM mutations m
		JOIN users u ON u.id = m.user_id
		WHERE m.id = $1`, entryID).
		Scan(&m.ID, &m.TrxID, &m.UserID, &m.Amount, &m.Description, &m.Direction,
			&m.Kind, &m.Purpose, &m.CounterpartyName, &m.CounterpartyAccount,
			&m.CreatedAt, &ownerName, &ownerAccount)
	if err == sql.ErrNoRows {
		return nil, "", "", apperr.NotFound("Transaction not found")
	}
	if err != nil {
		return nil, "", "", apperr.Internal(err)
	}
	return &m, ownerName, ownerAccount, nil
}

func (s *MutationService) fetchAccountNumber(ctx context.Context, userID int) (string, error) {
	var accountNumber string
	err := s.db.QueryRowContext(ctx, `
		SELECT account_number FROM users WHERE id = $1`, userID).Scan(&accountNumber)
	if err == sql.ErrNoRows {
		return "", apperr.NotFound("Account not found")
	}
	if err != nil {
		return "", apperr.Internal(err)
	}
	return accountNumber, nil
}
