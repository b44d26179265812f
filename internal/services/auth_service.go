package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"github.com/sakubank/backend/internal/signature"
	"github.com/spf13/viper"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required" example:"+628123456789"` // User phone number
	Password    string `json:"password" validate:"required,min=6" example:"password123"` // User password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	FullName    string `json:"fullName" validate:"required,min=2" example:"Andi Wijaya"`      // User full name
	Email       string `json:"email" validate:"required,email" example:"user@example.com"`    // User email address
	PhoneNumber string `json:"phoneNumber" validate:"required" example:"+628123456789"`       // Phone number
	Password    string `json:"password" validate:"required,min=6" example:"password123"`      // User password
	PIN         string `json:"pin" validate:"required,pin" example:"123456"`                  // 6-digit transaction PIN
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token string   `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User  UserView `json:"user"`                                                    // User information
}

// UserView represents user information
// @Description User structure
type UserView struct {
	ID            int    `json:"id" example:"1"`                       // User ID
	FullName      string `json:"fullName" example:"Andi Wijaya"`       // User full name
	Email         string `json:"email" example:"user@example.com"`     // User email
	PhoneNumber   string `json:"phoneNumber" example:"+628123456789"`  // Phone number
	AccountNumber string `json:"accountNumber" example:"1234567890"`   // 10-digit account number
}

// StepUpRequest asks for a fresh proof of password knowledge before a
// credential change. Target names the credential the caller intends to
// replace; the issued token is only valid for that change.
type StepUpRequest struct {
	Password string `json:"password" validate:"required"`
	Target   string `json:"target" validate:"required,oneof=pin password"`
}

// ChangePINRequest carries a step-up token and the new PIN.
type ChangePINRequest struct {
	Token  string `json:"token" validate:"required"`
	NewPIN string `json:"newPin" validate:"required,pin"`
}

// ChangePasswordRequest carries a step-up token and the new password.
type ChangePasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// AuthenticatedUserID reads the user id the auth middleware stored on the
// request context.
func AuthenticatedUserID(r *http.Request) (int, bool) {
	raw, ok := r.Context().Value("userID").(string)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// decodeJSON applies the shared strict-decoding policy: bounded body, no
// unknown fields, exactly one JSON object.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("body must only contain a single JSON object")
	}
	return nil
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user with contact details, password and PIN
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 409 {string} string "Email already exists"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	log.Printf("[AUTH] Registration request for email: %s", req.Email)

	hashedPassword, err := HashCredential(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	hashedPIN, err := HashCredential(req.PIN)
	if err != nil {
		log.Printf("[AUTH] PIN hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	var userID int
	var accountNumber string
	// The account number is random, so an unlucky draw can collide with
	// an existing row. Retry the draw on that specific constraint; every
	// other unique violation means the contact details are taken.
	for attempt := 0; ; attempt++ {
		accountNumber = generateAccountNumber()
		err = s.db.QueryRow(`
			INSERT INTO users (full_name, email, phone_number, account_number, balance,
			                   password_hash, pin_hash, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, $5, $6, 1, NOW(), NOW())
			RETURNING id`,
			req.FullName, strings.ToLower(req.Email), req.PhoneNumber, accountNumber,
			hashedPassword, hashedPIN).Scan(&userID)
		if err == nil {
			break
		}
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "account_number") {
				if attempt < 2 {
					log.Printf("[AUTH] Account number collision, retrying (%d)", attempt+1)
					continue
				}
				log.Printf("[AUTH] Account number collisions exhausted for %s", req.Email)
				SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
				return
			}
			if strings.Contains(pqErr.Constraint, "phone_number") {
				log.Printf("[AUTH] Duplicate phone number for %s", req.Email)
				SendErrorResponse(w, "Phone Number Already Exists", http.StatusConflict, nil)
				return
			}
			log.Printf("[AUTH] Duplicate registration for %s", req.Email)
			SendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] User created successfully - ID: %d, Email: %s", userID, req.Email)

	token, err := generateJWT(userID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	response := AuthResponse{
		Token: token,
		User: UserView{
			ID:            userID,
			FullName:      req.FullName,
			Email:         strings.ToLower(req.Email),
			PhoneNumber:   req.PhoneNumber,
			AccountNumber: accountNumber,
		},
	}

	log.Printf("[AUTH] Registration successful for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with phone number and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Invalid credentials"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	log.Printf("[AUTH] Login request for phone number: %s", req.PhoneNumber)

	var user UserView
	var hashedPassword string
	err := s.db.QueryRow(`
		SELECT id, full_name, email, phone_number, account_number, password_hash
		FROM users
		WHERE phone_number = $1`, req.PhoneNumber).
		Scan(&user.ID, &user.FullName, &user.Email, &user.PhoneNumber, &user.AccountNumber, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] User not found for phone number: %s", req.PhoneNumber)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	ok, err := VerifyCredential(req.Password, hashedPassword)
	if err != nil || !ok {
		log.Printf("[AUTH] Invalid password for user: %s", req.PhoneNumber)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	log.Printf("[AUTH] Password verified for user ID: %d", user.ID)

	token, err := generateJWT(user.ID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user})
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and denylist the presented token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("denylist:%s", token)
			// Deny the token until its own expiry would have passed.
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to denylist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// StepUp issues a credential-change token
// @Summary Step-up authentication
// @Description Verify the password and issue a token authorizing a credential change
// @Tags auth
// @Accept json
// @Produce json
// @Param request body StepUpRequest true "Step-up request"
// @Success 200 {object} map[string]string "Token issued"
// @Failure 401 {string} string "Invalid credentials"
// @Router /auth/step-up [post]
func (s *AuthService) StepUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := AuthenticatedUserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req StepUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	accountNumber, hashedPassword, hashedPIN, err := s.fetchCredentials(userID)
	if err != nil {
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	match, err := VerifyCredential(req.Password, hashedPassword)
	if err != nil || !match {
		log.Printf("[AUTH] Step-up rejected for user %d", userID)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	// The token signs the current hash of the credential it authorizes
	// replacing, keyed by the account number. Once that credential
	// changes, its hash no longer matches and every outstanding token
	// for it is dead, including the one that authorized the change.
	guardedHash := hashedPassword
	if req.Target == "pin" {
		guardedHash = hashedPIN
	}
	token, err := signature.Sign(accountNumber, guardedHash)
	if err != nil {
		log.Printf("[AUTH] Step-up token generation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Step-up token issued for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// ChangePIN updates the transaction PIN
// @Summary Change PIN
// @Description Replace the transaction PIN, authorized by a step-up token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ChangePINRequest true "Change PIN request"
// @Success 200 {object} map[string]string "PIN changed"
// @Failure 401 {string} string "Invalid token"
// @Router /auth/pin [put]
func (s *AuthService) ChangePIN(w http.ResponseWriter, r *http.Request) {
	userID, ok := AuthenticatedUserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req ChangePINRequest
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	accountNumber, _, hashedPIN, err := s.fetchCredentials(userID)
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if !signature.Verify(accountNumber, hashedPIN, req.Token) {
		log.Printf("[AUTH] PIN change rejected for user %d: bad step-up token", userID)
		SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
		return
	}

	hashedPIN, err = HashCredential(req.NewPIN)
	if err != nil {
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if _, err := s.db.Exec(`
		UPDATE users SET pin_hash = $1, updated_at = NOW() WHERE id = $2`,
		hashedPIN, userID); err != nil {
		log.Printf("[AUTH] PIN update failed for user %d: %v", userID, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] PIN changed for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "PIN changed"})
}

// ChangePassword updates the login password
// @Summary Change password
// @Description Replace the login password, authorized by a step-up token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Change password request"
// @Success 200 {object} map[string]string "Password changed"
// @Failure 401 {string} string "Invalid token"
// @Router /auth/password [put]
func (s *AuthService) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := AuthenticatedUserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusUnprocessableEntity, err)
		return
	}

	accountNumber, hashedPassword, _, err := s.fetchCredentials(userID)
	if err != nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if !signature.Verify(accountNumber, hashedPassword, req.Token) {
		log.Printf("[AUTH] Password change rejected for user %d: bad step-up token", userID)
		SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
		return
	}

	newHash, err := HashCredential(req.NewPassword)
	if err != nil {
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if _, err := s.db.Exec(`
		UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		newHash, userID); err != nil {
		log.Printf("[AUTH] Password update failed for user %d: %v", userID, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Password changed for user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Password changed"})
}

func (s *AuthService) fetchCredentials(userID int) (accountNumber, hashedPassword, hashedPIN string, err error) {
	err = s.db.QueryRow(`
		SELECT account_number, password_hash, pin_hash FROM users WHERE id = $1`, userID).
		Scan(&accountNumber, &hashedPassword, &hashedPIN)
	return accountNumber, hashedPassword, hashedPIN, err
}

func generateJWT(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"nameid":  userID,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func generateAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return string(b)
}
