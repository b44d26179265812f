package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/sakubank/backend/internal/apperr"
	"github.com/sakubank/backend/internal/models"
)

// AccountService serves account profile reads and the saved-destination
// list used by the transfer flow.
type AccountService struct {
	db *sql.DB
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{db: db}
}

// GetProfile returns the caller's account including current balance.
func (s *AccountService) GetProfile(ctx context.Context, userID int) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, phone_number, account_number, balance, created_at
		FROM users
		WHERE id = $1`, userID).
		Scan(&user.ID, &user.FullName, &user.Email, &user.PhoneNumber, &user.AccountNumber, &user.Balance, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Account not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &user, nil
}

// ListDestinations returns the caller's saved beneficiaries, newest first.
func (s *AccountService) ListDestinations(ctx context.Context, userID int) ([]models.Destination, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, account_number, created_at
		FROM destinations
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	destinations := []models.Destination{}
	for rows.Next() {
		var d models.Destination
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.AccountNumber, &d.CreatedAt); err != nil {
			return nil, apperr.Internal(err)
		}
		destinations = append(destinations, d)
	}
	return destinations, rows.Err()
}

// AddDestination saves a beneficiary after resolving its display name from
// the destination account.
func (s *AccountService) AddDestination(ctx context.Context, userID int, accountNumber string) (*models.Destination, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT full_name FROM users WHERE account_number = $1`, accountNumber).
		Scan(&name)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Account not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	d := models.Destination{
		UserID:        userID,
		Name:          name,
		AccountNumber: accountNumber,
		CreatedAt:     time.Now(),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO destinations (user_id, name, account_number, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		d.UserID, d.Name, d.AccountNumber, d.CreatedAt).
		Scan(&d.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, apperr.Conflict("Destination already exists")
		}
		return nil, apperr.Internal(err)
	}
	return &d, nil
}
