package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sakubank/backend/internal/signature"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func init() {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 1)
}

func authedRequest(method, target string, body []byte, userID string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(context.WithValue(req.Context(), "userID", userID))
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	passwordHash, err := HashCredential("password123")
	assert.NoError(t, err)

	loginRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "full_name", "email", "phone_number", "account_number", "password_hash"}).
			AddRow(1, "Andi Wijaya", "andi@example.com", "+628123456789", "1111111111", passwordHash)
	}

	t.Run("successful login", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, full_name, email, phone_number, account_number, password_hash").
			WithArgs("+628123456789").
			WillReturnRows(loginRows())

		body, _ := json.Marshal(LoginRequest{PhoneNumber: "+628123456789", Password: "password123"})
		rec := httptest.NewRecorder()
		service.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp AuthResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "1111111111", resp.User.AccountNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, full_name, email, phone_number, account_number, password_hash").
			WithArgs("+628123456789").
			WillReturnRows(loginRows())

		body, _ := json.Marshal(LoginRequest{PhoneNumber: "+628123456789", Password: "wrongpass"})
		rec := httptest.NewRecorder()
		service.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		rec := httptest.NewRecorder()
		service.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			bytes.NewReader([]byte(`{"phoneNumber":"+628123456789","password":"x","extra":true}`))))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	t.Run("creates the user with a generated account number", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("Andi Wijaya", "andi@example.com", "+628123456789",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		body, _ := json.Marshal(RegisterRequest{
			FullName:    "Andi Wijaya",
			Email:       "Andi@Example.com",
			PhoneNumber: "+628123456789",
			Password:    "password123",
			PIN:         "123456",
		})
		rec := httptest.NewRecorder()
		service.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp AuthResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "andi@example.com", resp.User.Email)
		assert.Regexp(t, `^[0-9]{10}$`, resp.User.AccountNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries on an account number collision", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("Andi Wijaya", "andi@example.com", "+628123456789",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_account_number_key"})
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("Andi Wijaya", "andi@example.com", "+628123456789",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

		body, _ := json.Marshal(RegisterRequest{
			FullName:    "Andi Wijaya",
			Email:       "andi@example.com",
			PhoneNumber: "+628123456789",
			Password:    "password123",
			PIN:         "123456",
		})
		rec := httptest.NewRecorder()
		service.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("Andi Wijaya", "andi@example.com", "+628123456789",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

		body, _ := json.Marshal(RegisterRequest{
			FullName:    "Andi Wijaya",
			Email:       "andi@example.com",
			PhoneNumber: "+628123456789",
			Password:    "password123",
			PIN:         "123456",
		})
		rec := httptest.NewRecorder()
		service.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))

		assert.Equal(t, http.StatusConflict, rec.Code)

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Email Already Exists", resp.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate phone number", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("Andi Wijaya", "andi@example.com", "+628123456789",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_phone_number_key"})

		body, _ := json.Marshal(RegisterRequest{
			FullName:    "Andi Wijaya",
			Email:       "andi@example.com",
			PhoneNumber: "+628123456789",
			Password:    "password123",
			PIN:         "123456",
		})
		rec := httptest.NewRecorder()
		service.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))

		assert.Equal(t, http.StatusConflict, rec.Code)

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Phone Number Already Exists", resp.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a malformed PIN", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{
			FullName:    "Andi Wijaya",
			Email:       "andi@example.com",
			PhoneNumber: "+628123456789",
			Password:    "password123",
			PIN:         "12ab56",
		})
		rec := httptest.NewRecorder()
		service.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestAuthService_StepUpFlow(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	passwordHash, err := HashCredential("password123")
	assert.NoError(t, err)
	pinHash, err := HashCredential("123456")
	assert.NoError(t, err)

	credentialRows := func(pwHash, pHash string) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"account_number", "password_hash", "pin_hash"}).
			AddRow("1111111111", pwHash, pHash)
	}

	t.Run("step-up issues a token bound to the current PIN hash", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_number, password_hash, pin_hash").
			WithArgs(1).
			WillReturnRows(credentialRows(passwordHash, pinHash))

		body, _ := json.Marshal(StepUpRequest{Password: "password123", Target: "pin"})
		rec := httptest.NewRecorder()
		service.StepUp(rec, authedRequest(http.MethodPost, "/api/v1/auth/step-up", body, "1"))

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, signature.Verify("1111111111", pinHash, resp["token"]))
		assert.False(t, signature.Verify("1111111111", passwordHash, resp["token"]))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("step-up with the wrong password", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_number, password_hash, pin_hash").
			WithArgs(1).
			WillReturnRows(credentialRows(passwordHash, pinHash))

		body, _ := json.Marshal(StepUpRequest{Password: "wrongpass", Target: "password"})
		rec := httptest.NewRecorder()
		service.StepUp(rec, authedRequest(http.MethodPost, "/api/v1/auth/step-up", body, "1"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("step-up without a target credential", func(t *testing.T) {
		body, _ := json.Marshal(StepUpRequest{Password: "password123"})
		rec := httptest.NewRecorder()
		service.StepUp(rec, authedRequest(http.MethodPost, "/api/v1/auth/step-up", body, "1"))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("change PIN with a valid token", func(t *testing.T) {
		token, err := signature.Sign("1111111111", pinHash)
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT account_number, password_hash, pin_hash").
			WithArgs(1).
			WillReturnRows(credentialRows(passwordHash, pinHash))
		mock.ExpectExec("UPDATE users SET pin_hash").
			WithArgs(sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(ChangePINRequest{Token: token, NewPIN: "654321"})
		rec := httptest.NewRecorder()
		service.ChangePIN(rec, authedRequest(http.MethodPut, "/api/v1/auth/pin", body, "1"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("change PIN with a forged token", func(t *testing.T) {
		token, err := signature.Sign("some-other-secret", pinHash)
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT account_number, password_hash, pin_hash").
			WithArgs(1).
			WillReturnRows(credentialRows(passwordHash, pinHash))

		body, _ := json.Marshal(ChangePINRequest{Token: token, NewPIN: "654321"})
		rec := httptest.NewRecorder()
		service.ChangePIN(rec, authedRequest(http.MethodPut, "/api/v1/auth/pin", body, "1"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("PIN-change token cannot be replayed after the change", func(t *testing.T) {
		token, err := signature.Sign("1111111111", pinHash)
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT account_number, password_hash, pin_hash").
			WithArgs(1).
			WillReturnRows(credentialRows(passwordHash, pinHash))
		mock.ExpectExec("UPDATE users SET pin_hash").
			WithArgs(sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(ChangePINRequest{Token: token, NewPIN: "654321"})
		rec := httptest.NewRecorder()
		service.ChangePIN(rec, authedRequest(http.MethodPut, "/api/v1/auth/pin", body, "1"))
		assert.Equal(t, http.StatusOK, rec.Code)

		// Second attempt with the same token: the stored PIN hash has
		// changed, so verification fails and no update runs.
		newPinHash, err := HashCredential("654321")
		assert.NoError(t, err)
		mock.ExpectQuery("SELECT account_number, password_hash, pin_hash").
			WithArgs(1).
			WillReturnRows(credentialRows(passwordHash, newPinHash))

		body, _ = json.Marshal(ChangePINRequest{Token: token, NewPIN: "999999"})
		rec = httptest.NewRecorder()
		service.ChangePIN(rec, authedRequest(http.MethodPut, "/api/v1/auth/pin", body, "1"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("password-change token dies with the password", func(t *testing.T) {
		token, err := signature.Sign("1111111111", passwordHash)
		assert.NoError(t, err)

		// Same account, new password hash: the old token must not verify.
		newHash, err := HashCredential("newpassword")
		assert.NoError(t, err)
		assert.False(t, signature.Verify("1111111111", newHash, token))
	})

	t.Run("change password rewrites the stored hash", func(t *testing.T) {
		token, err := signature.Sign("1111111111", passwordHash)
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT account_number, password_hash, pin_hash").
			WithArgs(1).
			WillReturnRows(credentialRows(passwordHash, pinHash))
		mock.ExpectExec("UPDATE users SET password_hash").
			WithArgs(sqlmock.AnyArg(), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(ChangePasswordRequest{Token: token, NewPassword: "newpassword"})
		rec := httptest.NewRecorder()
		service.ChangePassword(rec, authedRequest(http.MethodPut, "/api/v1/auth/password", body, "1"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unauthenticated request", func(t *testing.T) {
		body, _ := json.Marshal(StepUpRequest{Password: "password123", Target: "pin"})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/step-up", bytes.NewReader(body))
		service.StepUp(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
