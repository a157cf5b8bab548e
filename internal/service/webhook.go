package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/events"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrDepositPayloadMismatch = errors.New("deposit payload does not match existing reference")
)

// WebhookService funds wallets from signed deposit notifications of the banking partner.
type WebhookService struct {
	store     QueryStore
	ledger    *LedgerService
	hmacKey   []byte
	skipSig   bool
	audit     *AuditService
	publisher events.Publisher
}

// NewWebhookService creates a new WebhookService instance.
func NewWebhookService(store QueryStore, ledger *LedgerService, hmacKey string, skipSignature bool, publisher events.Publisher) *WebhookService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &WebhookService{
		store:     store,
		ledger:    ledger,
		hmacKey:   []byte(hmacKey),
		skipSig:   skipSignature,
		audit:     NewAuditService(),
		publisher: publisher,
	}
}

// DepositWebhookPayload represents the incoming deposit webhook payload.
type DepositWebhookPayload struct {
	OrgID        string `json:"org_id"`
	AmountMicros int64  `json:"amount_micros"`
	Currency     string `json:"currency"`
	Reference    string `json:"reference"` // Unique reference from external system
}

// DepositWebhookResponse represents the response to a deposit webhook.
type DepositWebhookResponse struct {
	Reference string         `json:"reference"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Wallet    *models.Wallet `json:"wallet,omitempty"`
}

// HandleDepositWebhook verifies the signature and credits the wallet once per reference.
// Replays with the same payload report the original result.
func (s *WebhookService) HandleDepositWebhook(ctx context.Context, payload []byte, signature string) (*DepositWebhookResponse, error) {
	if !s.verifyHMAC(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var deposit DepositWebhookPayload
	if err := json.Unmarshal(payload, &deposit); err != nil {
		return nil, fmt.Errorf("%w: invalid payload: %v", domain.ErrValidation, err)
	}
	deposit.Currency = domain.NormalizeCurrency(deposit.Currency)
	deposit.Reference = strings.TrimSpace(deposit.Reference)
	deposit.OrgID = strings.TrimSpace(deposit.OrgID)

	if deposit.AmountMicros <= 0 {
		return nil, fmt.Errorf("%w: invalid amount: %d", domain.ErrValidation, deposit.AmountMicros)
	}
	if deposit.Reference == "" {
		return nil, fmt.Errorf("%w: reference is required", domain.ErrValidation)
	}
	if !domain.ValidCurrencyCode(deposit.Currency) {
		return nil, fmt.Errorf("%w: unsupported currency: %s", domain.ErrValidation, deposit.Currency)
	}
	orgID, err := uuid.Parse(deposit.OrgID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid org_id", domain.ErrValidation)
	}

	if resp, err := s.replay(ctx, orgID, deposit); resp != nil || err != nil {
		return resp, err
	}

	metadataJSON, err := json.Marshal(map[string]any{
		"webhook_reference": deposit.Reference,
		"amount_micros":     deposit.AmountMicros,
		"currency":          deposit.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	var wallet models.Wallet
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		ref := deposit.Reference
		if err := s.ledger.Credit(ctx, q, Posting{
			OrgID:        orgID,
			Currency:     deposit.Currency,
			AmountMicros: deposit.AmountMicros,
			Reference:    &ref,
		}); err != nil {
			return err
		}
		w, err := q.GetWallet(ctx, repository.WalletKey{OrgID: orgID, Currency: deposit.Currency})
		if err != nil {
			return lookupErr(err, "wallet")
		}
		wallet = w
		return s.audit.Write(ctx, q, "wallet", w.ID, nil, "deposit_credited", "", "", metadataJSON)
	})
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent delivery of the same reference won.
			if resp, rerr := s.replay(ctx, orgID, deposit); resp != nil || rerr != nil {
				return resp, rerr
			}
		}
		return nil, err
	}

	zap.L().Info("deposit credited",
		zap.String("org_id", orgID.String()),
		zap.String("currency", deposit.Currency),
		zap.Int64("amount_micros", deposit.AmountMicros),
		zap.String("reference", deposit.Reference),
	)
	publish(ctx, s.publisher, events.New(events.TypeWalletCredited, wallet.ID, deposit))
	return &DepositWebhookResponse{
		Reference: deposit.Reference,
		Status:    "credited",
		Message:   "Deposit processed successfully",
		Wallet:    &wallet,
	}, nil
}

// replay returns the stored outcome when the reference was already credited.
func (s *WebhookService) replay(ctx context.Context, orgID uuid.UUID, deposit DepositWebhookPayload) (*DepositWebhookResponse, error) {
	q := s.store.Queries()
	entry, err := q.GetWalletEntryByReference(ctx, deposit.Reference)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	wallet, err := q.GetWallet(ctx, repository.WalletKey{OrgID: orgID, Currency: deposit.Currency})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if err != nil || entry.Kind != domain.EntryKindCredit || entry.WalletID != wallet.ID || entry.AmountMicros != deposit.AmountMicros {
		return nil, ErrDepositPayloadMismatch
	}
	return &DepositWebhookResponse{
		Reference: deposit.Reference,
		Status:    "credited",
		Message:   "Deposit already processed",
		Wallet:    &wallet,
	}, nil
}

// verifyHMAC verifies the HMAC signature of the payload.
func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 {
		return false
	}

	expectedSig := SignPayload(s.hmacKey, payload)

	// Use hmac.Equal for constant-time comparison
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}

// SignPayload produces the signature header value for payload. Used by clients and tests.
func SignPayload(key, payload []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
