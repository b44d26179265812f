package models

import "time"

// User is a customer account. The transaction engine only reads account
// identity, moves Balance, and compares credential hashes; everything else
// is owned by the auth surface.
type User struct {
	ID            int       `json:"id" db:"id"`
	FullName      string    `json:"fullName" db:"full_name"`
	Email         string    `json:"email" db:"email"`
	PhoneNumber   string    `json:"phoneNumber" db:"phone_number"`
	AccountNumber string    `json:"accountNumber" db:"account_number"` // 10 digits, unique
	Balance       int64     `json:"balance" db:"balance"`              // minor units, never negative
	PasswordHash  string    `json:"-" db:"password_hash"`
	PINHash       string    `json:"-" db:"pin_hash"`
	Version       int       `json:"-" db:"version"` // optimistic locking
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// Destination is a saved transfer beneficiary owned by one user.
type Destination struct {
	ID            int       `json:"id" db:"id"`
	UserID        int       `json:"userId" db:"user_id"`
	Name          string    `json:"name" db:"name"`
	AccountNumber string    `json:"accountNumber" db:"account_number"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
