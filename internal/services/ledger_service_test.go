package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sakubank/backend/internal/apperr"
	"github.com/sakubank/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func lockRows(id int, name, account string, balance int64, version int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "full_name", "account_number", "balance", "version"}).
		AddRow(id, name, account, balance, version)
}

func TestLedgerService_TransferTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	params := EntryParams{
		TrxID:       "trx-123",
		Amount:      1000,
		Kind:        models.MutationKindTransfer,
		Purpose:     "Family",
		Description: "monthly allowance",
		CreatedAt:   time.Now(),
	}

	t.Run("successful transfer", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(1).
			WillReturnRows(lockRows(1, "Andi Wijaya", "1111111111", 5000, 3))
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(2).
			WillReturnRows(lockRows(2, "Budi Santoso", "2222222222", 2000, 7))

		mock.ExpectQuery("INSERT INTO mutations").
			WithArgs("trx-123", 1, int64(1000), "monthly allowance", models.DirectionDebit,
				models.MutationKindTransfer, "Family", "Budi Santoso", "2222222222", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
		mock.ExpectQuery("INSERT INTO mutations").
			WithArgs("trx-123", 2, int64(1000), "monthly allowance", models.DirectionCredit,
				models.MutationKindTransfer, "Family", "Andi Wijaya", "1111111111", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(4000), sqlmock.AnyArg(), 1, 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(3000), sqlmock.AnyArg(), 2, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		debit, credit, err := service.TransferTx(tx, 1, 2, params)
		assert.NoError(t, err)
		assert.Equal(t, 10, debit.ID)
		assert.Equal(t, 11, credit.ID)

		// Paired rows share trx id, amount and timestamp.
		assert.Equal(t, debit.TrxID, credit.TrxID)
		assert.Equal(t, debit.Amount, credit.Amount)
		assert.Equal(t, debit.CreatedAt, credit.CreatedAt)
		assert.Equal(t, models.DirectionDebit, debit.Direction)
		assert.Equal(t, models.DirectionCredit, credit.Direction)
		assert.Equal(t, "Budi Santoso", debit.CounterpartyName)
		assert.Equal(t, "Andi Wijaya", credit.CounterpartyName)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locks rows in id order when sender id is higher", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		// Receiver (id 2) must be locked before sender (id 5).
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(2).
			WillReturnRows(lockRows(2, "Budi Santoso", "2222222222", 2000, 1))
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(5).
			WillReturnRows(lockRows(5, "Citra Lestari", "5555555555", 8000, 1))

		mock.ExpectQuery("INSERT INTO mutations").
			WithArgs("trx-123", 5, int64(1000), "monthly allowance", models.DirectionDebit,
				models.MutationKindTransfer, "Family", "Budi Santoso", "2222222222", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(20))
		mock.ExpectQuery("INSERT INTO mutations").
			WithArgs("trx-123", 2, int64(1000), "monthly allowance", models.DirectionCredit,
				models.MutationKindTransfer, "Family", "Citra Lestari", "5555555555", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(7000), sqlmock.AnyArg(), 5, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(3000), sqlmock.AnyArg(), 2, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		debit, credit, err := service.TransferTx(tx, 5, 2, params)
		assert.NoError(t, err)
		assert.Equal(t, 5, debit.UserID)
		assert.Equal(t, 2, credit.UserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(1).
			WillReturnRows(lockRows(1, "Andi Wijaya", "1111111111", 500, 1))
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(2).
			WillReturnRows(lockRows(2, "Budi Santoso", "2222222222", 2000, 1))

		_, _, err := service.TransferTx(tx, 1, 2, params)
		assert.Error(t, err)
		assert.Equal(t, apperr.CodeInsufficientFunds, apperr.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(1).
			WillReturnError(sql.ErrNoRows)

		_, _, err := service.TransferTx(tx, 1, 2, params)
		assert.Error(t, err)
		assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version aborts the transfer", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(1).
			WillReturnRows(lockRows(1, "Andi Wijaya", "1111111111", 5000, 3))
		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(2).
			WillReturnRows(lockRows(2, "Budi Santoso", "2222222222", 2000, 7))

		mock.ExpectQuery("INSERT INTO mutations").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
		mock.ExpectQuery("INSERT INTO mutations").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(4000), sqlmock.AnyArg(), 1, 3).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, _, err := service.TransferTx(tx, 1, 2, params)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "optimistic lock failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_DebitTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	params := EntryParams{
		TrxID:       "trx-456",
		Amount:      25000,
		Kind:        models.MutationKindQris,
		Purpose:     "QRIS",
		Description: "QRIS payment to Toko Makmur",
		CreatedAt:   time.Now(),
	}

	t.Run("single sided debit", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(1).
			WillReturnRows(lockRows(1, "Andi Wijaya", "1111111111", 50000, 2))

		mock.ExpectQuery("INSERT INTO mutations").
			WithArgs("trx-456", 1, int64(25000), "QRIS payment to Toko Makmur", models.DirectionDebit,
				models.MutationKindQris, "QRIS", "Toko Makmur", "", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))

		mock.ExpectExec("UPDATE users").
			WithArgs(int64(25000), sqlmock.AnyArg(), 1, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))

		debit, err := service.DebitTx(tx, 1, params, "Toko Makmur", "")
		assert.NoError(t, err)
		assert.Equal(t, 30, debit.ID)
		assert.Equal(t, models.DirectionDebit, debit.Direction)
		assert.Equal(t, "Toko Makmur", debit.CounterpartyName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("SELECT id, full_name, account_number, balance, version").
			WithArgs(1).
			WillReturnRows(lockRows(1, "Andi Wijaya", "1111111111", 10000, 2))

		_, err := service.DebitTx(tx, 1, params, "Toko Makmur", "")
		assert.Error(t, err)
		assert.Equal(t, apperr.CodeInsufficientFunds, apperr.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
