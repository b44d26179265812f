package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sakubank/backend/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func senderRows(t *testing.T, id int, name, account string, balance int64, pin string, version int) *sqlmock.Rows {
	t.Helper()
	pinHash, err := HashCredential(pin)
	assert.NoError(t, err)
	return sqlmock.NewRows([]string{"id", "full_name", "account_number", "balance", "pin_hash", "version"}).
		AddRow(id, name, account, balance, pinHash, version)
}

func TestTransferService_Transfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransferService(db)
	ctx := context.Background()

	request := func() *TransferRequest {
		return &TransferRequest{
			DestinationID: 9,
			Amount:        1000,
			PIN:           "123456",
			Purpose:       "Family",
			Description:   "allowance",
		}
	}

	t.Run("successful transfer", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, pin_hash, version").
			WithArgs(1).
			WillReturnRows(senderRows(t, 1, "Andi Wijaya", "1111111111", 100000, "123456", 4))

		mock.ExpectQuery("FROM destinations").
			WithArgs(9).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "account_number"}).
				AddRow(9, 1, "Budi Santoso", "2222222222"))

		mock.ExpectQuery("WHERE account_number").
			WithArgs("2222222222").
			WillReturnRows(lockRows(2, "Budi Santoso", "2222222222", 5000, 1))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(1).
			WillReturnRows(lockRows(1, "Andi Wijaya", "1111111111", 100000, 4))
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(2).
			WillReturnRows(lockRows(2, "Budi Santoso", "2222222222", 5000, 1))
		mock.ExpectQuery("INSERT INTO mutations").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
		mock.ExpectQuery("INSERT INTO mutations").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(99000), sqlmock.AnyArg(), 1, 4).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(6000), sqlmock.AnyArg(), 2, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		view, err := service.Transfer(ctx, 1, request())
		assert.NoError(t, err)
		assert.NotEmpty(t, view.TrxID)
		assert.Equal(t, int64(1000), view.Amount)
		assert.Equal(t, "Andi Wijaya", view.SenderName)
		assert.Equal(t, "Budi Santoso", view.ReceiverName)
		assert.Equal(t, "2222222222", view.ReceiverAccount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid PIN", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, pin_hash, version").
			WithArgs(1).
			WillReturnRows(senderRows(t, 1, "Andi Wijaya", "1111111111", 100000, "999999", 4))

		req := request()
		req.PIN = "123456"
		_, err := service.Transfer(ctx, 1, req)
		assert.Error(t, err)
		assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("destination not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, pin_hash, version").
			WithArgs(1).
			WillReturnRows(senderRows(t, 1, "Andi Wijaya", "1111111111", 100000, "123456", 4))

		mock.ExpectQuery("FROM destinations").
			WithArgs(9).
			WillReturnError(sql.ErrNoRows)

		_, err := service.Transfer(ctx, 1, request())
		assert.Error(t, err)
		assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("destination owned by someone else", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, pin_hash, version").
			WithArgs(1).
			WillReturnRows(senderRows(t, 1, "Andi Wijaya", "1111111111", 100000, "123456", 4))

		mock.ExpectQuery("FROM destinations").
			WithArgs(9).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "account_number"}).
				AddRow(9, 77, "Budi Santoso", "2222222222"))

		_, err := service.Transfer(ctx, 1, request())
		assert.Error(t, err)
		assert.Equal(t, apperr.CodeInvalid, apperr.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance before any write", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, pin_hash, version").
			WithArgs(1).
			WillReturnRows(senderRows(t, 1, "Andi Wijaya", "1111111111", 500, "123456", 4))

		mock.ExpectQuery("FROM destinations").
			WithArgs(9).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "account_number"}).
				AddRow(9, 1, "Budi Santoso", "2222222222"))

		mock.ExpectQuery("WHERE account_number").
			WithArgs("2222222222").
			WillReturnRows(lockRows(2, "Budi Santoso", "2222222222", 5000, 1))

		_, err := service.Transfer(ctx, 1, request())
		assert.Error(t, err)
		assert.Equal(t, apperr.CodeInsufficientFunds, apperr.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
