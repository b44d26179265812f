package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"image/png"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sakubank/backend/internal/apperr"
	"github.com/sakubank/backend/internal/audit"
	"github.com/sakubank/backend/internal/config"
	"github.com/sakubank/backend/internal/emv"
	"github.com/sakubank/backend/internal/metrics"
	"github.com/sakubank/backend/internal/models"
	"github.com/skip2/go-qrcode"
)

// Redemption branches, used for metrics and audit labels.
const (
	branchPersonToPerson  = "p2p"
	branchMerchantDynamic = "merchant_dynamic"
	branchMerchantStatic  = "merchant_static"
)

// QrisService interprets scanned payment payloads into balance changes and
// generates payloads for receiving money.
type QrisService struct {
	db         *sql.DB
	redis      *redis.Client
	cfg        *config.QRISConfig
	ledger     *LedgerService
	settlement *SettlementService
	audit      *audit.Logger
}

func NewQrisService(db *sql.DB, redisClient *redis.Client, cfg *config.QRISConfig, settlement *SettlementService) *QrisService {
	return &QrisService{
		db:         db,
		redis:      redisClient,
		cfg:        cfg,
		ledger:     NewLedgerService(db),
		settlement: settlement,
		audit:      audit.NewLogger(),
	}
}

type RedeemRequest struct {
	Payload string `json:"payload" validate:"required"`
	Amount  int64  `json:"amount" validate:"omitempty,gte=0"`
	PIN     string `json:"pin" validate:"required,pin"`
}

type RedeemResult struct {
	TrxID            string    `json:"trxId"`
	Amount           int64     `json:"amount"`
	Branch           string    `json:"branch"`
	CounterpartyName string    `json:"counterpartyName"`
	CreatedAt        time.Time `json:"createdAt"`
}

// GeneratedPayload is the response of the MPM/CPM generators.
type GeneratedPayload struct {
	TrxID     string    `json:"trxId"`
	Payload   string    `json:"payload"`
	Image     string    `json:"image"` // base64 PNG
	ExpiredAt time.Time `json:"expiredAt"`
}

// Redeem turns a scanned payload into a payment on behalf of userID.
func (s *QrisService) Redeem(ctx context.Context, userID int, req *RedeemRequest) (*RedeemResult, error) {
	user, err := s.fetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ok, err := VerifyCredential(req.PIN, user.PINHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.Unauthorized("Invalid PIN")
	}

	tags, err := emv.Decode(req.Payload)
	if err != nil {
		return nil, err
	}

	initiation := tags[emv.TagPointOfInitation]

	switch {
	case tags[emv.TagMerchantCategory] == emv.CategoryPersonToPerson:
		return s.redeemPersonToPerson(ctx, user, tags, req.Amount)
	case initiation == emv.InitiationDynamic:
		return s.redeemDynamicMerchant(ctx, user, tags)
	case initiation == emv.InitiationStatic:
		return s.redeemStaticMerchant(ctx, user, tags, req.Amount)
	default:
		return nil, apperr.Invalid("Invalid QRIS")
	}
}

func (s *QrisService) redeemPersonToPerson(ctx context.Context, user *models.User, tags map[string]string, suppliedAmount int64) (*RedeemResult, error) {
	blob := tags[emv.TagAdditionalData]

	accountNumber, err := emv.ExtractAccountNumber(blob)
	if err != nil {
		return nil, err
	}
	if accountNumber == user.AccountNumber {
		return nil, apperr.Conflict("can't transfer to your own account")
	}

	receiver, err := s.fetchUserByAccountNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}

	var amount int64
	if tags[emv.TagPointOfInitation] == emv.InitiationStatic {
		// Static codes carry no amount; the payer supplies it.
		if suppliedAmount <= 0 {
			return nil, apperr.Invalid("Amount is required")
		}
		amount = suppliedAmount
	} else {
		amount, err = parseAmount(tags[emv.TagAmount])
		if err != nil || amount <= 0 {
			return nil, apperr.Invalid("Invalid QRIS")
		}
	}

	trxRef, err := emv.TransactionRef(blob)
	if err != nil || trxRef == "" {
		trxRef = blob
	}

	record, err := s.fetchQris(ctx, trxRef)
	if err != nil {
		return nil, err
	}
	if record != nil {
		if record.Used {
			return nil, apperr.Conflict("Transaction already exists")
		}
		if record.IsExpired(time.Now()) {
			return nil, apperr.Conflict("Qris is expired")
		}
	}

	if user.Balance < amount {
		return nil, apperr.InsufficientFunds("Insufficient balance")
	}

	params := EntryParams{
		TrxID:       trxRef,
		Amount:      amount,
		Kind:        models.MutationKindQris,
		Purpose:     "QRIS",
		Description: "QRIS transfer to " + receiver.FullName,
		CreatedAt:   time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer tx.Rollback()

	debit, _, err := s.ledger.TransferTx(tx, user.ID, receiver.ID, params)
	if err != nil {
		s.audit.LogError(trxRef, user.AccountNumber, err)
		metrics.PaymentsFailed.Inc()
		return nil, err
	}

	if record != nil {
		err = s.markQrisUsedTx(tx, trxRef)
	} else {
		err = s.insertRedeemedQrisTx(tx, trxRef, models.QrisKindMPM)
	}
	if err != nil {
		s.audit.LogError(trxRef, user.AccountNumber, err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[QRIS] Failed to commit redemption: %v", err)
		return nil, apperr.Internal(err)
	}

	s.audit.LogQrisRedemption(trxRef, user.AccountNumber, branchPersonToPerson, amount, "SUCCESS")
	metrics.QrisRedemptionsTotal.WithLabelValues(branchPersonToPerson).Inc()

	return &RedeemResult{
		TrxID:            trxRef,
		Amount:           amount,
		Branch:           branchPersonToPerson,
		CounterpartyName: receiver.FullName,
		CreatedAt:        debit.CreatedAt,
	}, nil
}

func (s *QrisService) redeemDynamicMerchant(ctx context.Context, user *models.User, tags map[string]string) (*RedeemResult, error) {
	amount, err := parseAmount(tags[emv.TagAmount])
	if err != nil || amount <= 0 {
		return nil, apperr.Invalid("Invalid QRIS")
	}

	trxRef := tags[emv.TagAdditionalData]
	if trxRef == "" {
		trxRef = uuid.New().String()
	}

	record, err := s.fetchQris(ctx, trxRef)
	if err != nil {
		return nil, err
	}
	if record != nil {
		if record.Used {
			return nil, apperr.Conflict("Transaction already exists")
		}
		if record.IsExpired(time.Now()) {
			return nil, apperr.Conflict("Qris is expired")
		}
	}

	return s.debitMerchant(ctx, user, tags, trxRef, amount, record != nil, branchMerchantDynamic)
}

func (s *QrisService) redeemStaticMerchant(ctx context.Context, user *models.User, tags map[string]string, suppliedAmount int64) (*RedeemResult, error) {
	if suppliedAmount <= 0 {
		return nil, apperr.Invalid("Amount is required")
	}

	// Static merchant codes are reusable by design: no record is persisted
	// and no replay guard applies.
	trxRef := uuid.New().String()
	return s.debitMerchant(ctx, user, tags, trxRef, suppliedAmount, false, branchMerchantStatic)
}

func (s *QrisService) debitMerchant(ctx context.Context, user *models.User, tags map[string]string, trxRef string, amount int64, recordExists bool, branch string) (*RedeemResult, error) {
	if user.Balance < amount {
		return nil, apperr.InsufficientFunds("Insufficient balance")
	}

	merchantName := tags[emv.TagMerchantName]
	params := EntryParams{
		TrxID:       trxRef,
		Amount:      amount,
		Kind:        models.MutationKindQris,
		Purpose:     "QRIS",
		Description: "QRIS payment to " + merchantName,
		CreatedAt:   time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer tx.Rollback()

	debit, err := s.ledger.DebitTx(tx, user.ID, params, merchantName, "")
	if err != nil {
		s.audit.LogError(trxRef, user.AccountNumber, err)
		metrics.PaymentsFailed.Inc()
		return nil, err
	}

	if branch == branchMerchantDynamic {
		if recordExists {
			err = s.markQrisUsedTx(tx, trxRef)
		} else {
			err = s.insertRedeemedQrisTx(tx, trxRef, models.QrisKindMPM)
		}
		if err != nil {
			s.audit.LogError(trxRef, user.AccountNumber, err)
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[QRIS] Failed to commit redemption: %v", err)
		return nil, apperr.Internal(err)
	}

	s.audit.LogQrisRedemption(trxRef, user.AccountNumber, branch, amount, "SUCCESS")
	metrics.QrisRedemptionsTotal.WithLabelValues(branch).Inc()

	// Merchant settlement happens outside our ledger; queue after commit.
	if s.settlement != nil {
		go func(m models.Mutation, merchant string) {
			if err := s.settlement.QueueMerchantPayment(context.Background(), &m, merchant); err != nil {
				log.Printf("[QRIS] Failed to queue settlement for %s: %v", m.TrxID, err)
			}
		}(*debit, merchantName)
	}

	return &RedeemResult{
		TrxID:            trxRef,
		Amount:           amount,
		Branch:           branch,
		CounterpartyName: merchantName,
		CreatedAt:        debit.CreatedAt,
	}, nil
}

// GenerateMPM builds a merchant-presented receive code for the caller. No
// PIN is required: displaying a receive code moves no funds.
func (s *QrisService) GenerateMPM(ctx context.Context, userID int, amount int64) (*GeneratedPayload, error) {
	user, err := s.fetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	trxID := uuid.New().String()
	initiation := emv.InitiationStatic
	amountValue := ""
	if amount > 0 {
		initiation = emv.InitiationDynamic
		amountValue = strconv.FormatInt(amount, 10)
	}

	payload, err := emv.EncodeMPM([]emv.Field{
		{Tag: emv.TagPayloadFormat, Value: "01"},
		{Tag: emv.TagPointOfInitation, Value: initiation},
		{Tag: emv.TagMerchantCategory, Value: emv.CategoryPersonToPerson},
		{Tag: emv.TagCurrency, Value: s.cfg.CurrencyCode},
		{Tag: emv.TagAmount, Value: amountValue},
		{Tag: emv.TagCountryCode, Value: s.cfg.CountryCode},
		{Tag: emv.TagMerchantName, Value: displayName(user.FullName)},
		{Tag: emv.TagMerchantCity, Value: s.cfg.MerchantCity},
		{Tag: emv.TagAdditionalData, Value: emv.CrossReference(trxID, user.AccountNumber)},
	})
	if err != nil {
		return nil, err
	}

	expiredAt := time.Now().Add(s.cfg.MPMExpiry)
	if err := s.insertQris(ctx, trxID, models.QrisKindMPM, payload, expiredAt, user.ID); err != nil {
		return nil, err
	}
	s.cachePayload(ctx, trxID, payload, s.cfg.PayloadCacheTTL)

	image, err := renderQR(payload)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return &GeneratedPayload{TrxID: trxID, Payload: payload, Image: image, ExpiredAt: expiredAt}, nil
}

// GenerateCPM builds a customer-presented code. The merchant POS supplies
// the amount at scan time, so the payload carries none; presenting it is a
// funds-moving intent and therefore requires the PIN.
func (s *QrisService) GenerateCPM(ctx context.Context, userID int, pin string) (*GeneratedPayload, error) {
	user, err := s.fetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ok, err := VerifyCredential(pin, user.PINHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.Unauthorized("Invalid PIN")
	}

	trxID := uuid.New().String()
	payload, err := emv.Encode(emv.Payload{
		PayloadFormatIndicator: "CPV01",
		Applications: []emv.Template{
			{
				DataFields: emv.DataFields{
					ADFName:            "A0000006022020",
					ApplicationLabel:   s.cfg.InstitutionName,
					ApplicationPAN:     user.AccountNumber,
					CardholderName:     displayName(user.FullName),
					LanguagePreference: "id",
				},
				Transparent: []emv.DataFields{
					{
						IssuerApplicationData: trxID,
						UnpredictableNumber:   uuid.New().String()[:8],
					},
				},
			},
		},
		CommonData: &emv.Template{
			DataFields: emv.DataFields{
				PaymentAccountReference: trxID,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	expiredAt := time.Now().Add(s.cfg.CPMExpiry)
	if err := s.insertQris(ctx, trxID, models.QrisKindCPM, payload, expiredAt, user.ID); err != nil {
		return nil, err
	}
	s.cachePayload(ctx, trxID, payload, s.cfg.CPMExpiry)

	image, err := renderQR(payload)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return &GeneratedPayload{TrxID: trxID, Payload: payload, Image: image, ExpiredAt: expiredAt}, nil
}

// Persistence helpers

func (s *QrisService) fetchUser(ctx context.Context, userID int) (*models.User, error) {
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

func (s *QrisService) fetchUserByAccountNumber(ctx context.Context, accountNumber string) (*models.User, error) {
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

func (s *QrisService) fetchQris(ctx context.Context, trxRef string) (*models.Qris, error) {
	var q models.Qris
	err := s.db.QueryRowContext(ctx, `
		SELECT id, trx_id, kind, used, expired_at
		FROM qris
		WHERE trx_id = $1`, trxRef).
		Scan(&q.ID, &q.TrxID, &q.Kind, &q.Used, &q.ExpiredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &q, nil
}

func (s *QrisService) insertQris(ctx context.Context, trxID, kind, payload string, expiredAt time.Time, userID int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO qris (trx_id, kind, payload, used, expired_at, user_id, created_at)
		VALUES ($1, $2, $3, FALSE, $4, $5, $6)`,
		trxID, kind, payload, expiredAt, userID, time.Now())
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// markQrisUsedTx flips used false -> true. The conditional update makes two
// racing redemptions resolve to one success and one Conflict.
func (s *QrisService) markQrisUsedTx(tx *sql.Tx, trxRef string) error {
	result, err := tx.Exec(`
		UPDATE qris SET used = TRUE WHERE trx_id = $1 AND used = FALSE`, trxRef)
	if err != nil {
		return apperr.Internal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperr.Internal(err)
	}
	if rowsAffected == 0 {
		return apperr.Conflict("Transaction already exists")
	}
	return nil
}

// insertRedeemedQrisTx records a redemption of an externally issued code.
// The unique trx_id constraint turns the loser of an insert race into a
// Conflict.
func (s *QrisService) insertRedeemedQrisTx(tx *sql.Tx, trxRef, kind string) error {
	_, err := tx.Exec(`
		INSERT INTO qris (trx_id, kind, payload, used, expired_at, user_id, created_at)
		VALUES ($1, $2, '', TRUE, $3, NULL, $3)`,
		trxRef, kind, time.Now())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperr.Conflict("Transaction already exists")
		}
		return apperr.Internal(err)
	}
	return nil
}

func (s *QrisService) cachePayload(ctx context.Context, trxID, payload string, ttl time.Duration) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, "qris:"+trxID, payload, ttl).Err(); err != nil {
		log.Printf("[QRIS] Failed to cache payload %s: %v", trxID, err)
	}
}

func renderQR(payload string) (string, error) {
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func displayName(name string) string {
	if len(name) > 25 {
		return name[:25]
	}
	return name
}

// parseAmount reads a tag-54 value. Amounts are usually plain integers in
// minor units; a decimal point is tolerated and rounded.
func parseAmount(v string) (int64, error) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}
