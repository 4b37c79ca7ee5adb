package safebatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"folioscope/observability/metrics"
	"folioscope/registry"
)

// Submitter is the gateway write surface the direct path uses.
type Submitter interface {
	Submit(ctx context.Context, tx *gethtypes.Transaction) (common.Hash, error)
	WaitForTransaction(ctx context.Context, txHash common.Hash) (bool, error)
}

// Builder encodes, submits, and tracks batched authorizations, and carries
// the separate direct submission path.
type Builder struct {
	backend  Backend
	store    *Store
	registry *registry.Registry
	gateway  Submitter
	logger   *slog.Logger
	metrics  *metrics.CoreMetrics
	nowFn    func() time.Time
}

// NewBuilder wires the builder. The store may be nil when no audit trail is
// configured.
func NewBuilder(backend Backend, store *Store, reg *registry.Registry, gw Submitter, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		backend:  backend,
		store:    store,
		registry: reg,
		gateway:  gw,
		logger:   logger,
		metrics:  metrics.Core(),
		nowFn:    time.Now,
	}
}

// Encode serializes the operations into the backend's payload shape: one
// item per operation, value defaulting to zero.
func Encode(ops []Operation) []PayloadItem {
	payload := make([]PayloadItem, 0, len(ops))
	for _, op := range ops {
		value := "0"
		if op.Value != nil && op.Value.Sign() > 0 {
			value = op.Value.String()
		}
		payload = append(payload, PayloadItem{
			To:    op.Target.Hex(),
			Data:  hexutil.Encode(op.Args),
			Value: value,
		})
	}
	return payload
}

// SubmitBatched validates, encodes, and submits the operations for
// co-signing, returning the backend's opaque authorization id. Submissions
// are user-triggered only and never retried here.
func (b *Builder) SubmitBatched(ctx context.Context, ops []Operation) (Authorization, error) {
	if b == nil || b.backend == nil {
		return Authorization{}, fmt.Errorf("safebatch: builder not configured")
	}
	if err := ValidateOperations(b.registry, ops); err != nil {
		return Authorization{}, err
	}

	payload := Encode(ops)
	requestID := uuid.NewString()
	authorizationID, err := b.backend.Submit(ctx, requestID, payload)
	if err != nil {
		b.metrics.ObserveSubmission("batched", "error")
		return Authorization{}, fmt.Errorf("safebatch: submit batch: %w", err)
	}
	b.metrics.ObserveSubmission("batched", "submitted")

	authorization := Authorization{
		AuthorizationID: authorizationID,
		RequestID:       requestID,
		Status:          StatusPending,
		Operations:      len(ops),
	}
	if b.store != nil {
		record := AuditRecord{
			AuthorizationID: authorizationID,
			RequestID:       requestID,
			OpsCount:        len(ops),
			OpsDigest:       opsDigest(payload),
			Status:          StatusPending,
			CreatedAt:       b.nowFn(),
		}
		if err := b.store.InsertAuthorization(ctx, record); err != nil {
			b.logger.Warn("audit insert failed", "authorization", authorizationID, "error", err)
		}
	}
	return authorization, nil
}

// PollStatus reads the authorization's current state from the backend. It is
// idempotent; calling it twice without a backend state change returns the
// same result. A Settled result does not imply on-chain finality; callers
// wanting confirmation depth wait on the settlement transaction themselves.
func (b *Builder) PollStatus(ctx context.Context, authorizationID string) (Authorization, error) {
	if b == nil || b.backend == nil {
		return Authorization{}, fmt.Errorf("safebatch: builder not configured")
	}
	authorizationID = strings.TrimSpace(authorizationID)
	if authorizationID == "" {
		return Authorization{}, &ValidationError{Field: "authorization_id", Reason: "required"}
	}

	backendStatus, err := b.backend.GetStatus(ctx, authorizationID)
	if err != nil {
		return Authorization{}, fmt.Errorf("safebatch: poll status: %w", err)
	}
	status, err := ParseStatus(backendStatus.Status)
	if err != nil {
		return Authorization{}, err
	}

	authorization := Authorization{
		AuthorizationID: authorizationID,
		Status:          status,
	}
	if status == StatusSettled && backendStatus.SettlementTx != "" {
		authorization.SettlementTx = common.HexToHash(backendStatus.SettlementTx)
	}
	if status == StatusDeclined {
		// A declined co-signing request is a neutral outcome, not a failure.
		b.logger.Info("authorization declined by signer", "authorization", authorizationID)
	}
	if b.store != nil && status.Terminal() {
		settlement := ""
		if authorization.SettlementTx != (common.Hash{}) {
			settlement = authorization.SettlementTx.Hex()
		}
		if err := b.store.UpdateStatus(ctx, authorizationID, status, settlement, b.nowFn()); err != nil {
			b.logger.Warn("audit update failed", "authorization", authorizationID, "error", err)
		}
	}
	return authorization, nil
}

// SubmitDirect sends one pre-signed transaction straight through the ledger
// gateway. No authorization id exists on this path.
func (b *Builder) SubmitDirect(ctx context.Context, tx *gethtypes.Transaction) (DirectResult, error) {
	if b == nil || b.gateway == nil {
		return DirectResult{}, fmt.Errorf("safebatch: direct path not configured")
	}
	txID, err := b.gateway.Submit(ctx, tx)
	if err != nil {
		if isUserDeclined(err) {
			b.metrics.ObserveSubmission("direct", "declined")
			return DirectResult{Status: StatusDeclined}, nil
		}
		b.metrics.ObserveSubmission("direct", "error")
		return DirectResult{}, fmt.Errorf("safebatch: direct submit: %w", err)
	}
	b.metrics.ObserveSubmission("direct", "submitted")
	return DirectResult{TxID: txID, Status: StatusPending}, nil
}

// WaitDirect blocks until the direct submission's receipt appears and
// reports the terminal status.
func (b *Builder) WaitDirect(ctx context.Context, txID common.Hash) (DirectResult, error) {
	if b == nil || b.gateway == nil {
		return DirectResult{}, fmt.Errorf("safebatch: direct path not configured")
	}
	ok, err := b.gateway.WaitForTransaction(ctx, txID)
	if err != nil {
		return DirectResult{}, fmt.Errorf("safebatch: wait for transaction: %w", err)
	}
	status := StatusSettled
	if !ok {
		status = StatusFailed
	}
	return DirectResult{TxID: txID, Status: status}, nil
}

// isUserDeclined detects wallet-side rejection of a signature request.
func isUserDeclined(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "user denied") || strings.Contains(message, "user rejected")
}

func opsDigest(payload []PayloadItem) string {
	digest := sha256.New()
	for _, item := range payload {
		digest.Write([]byte(item.To))
		digest.Write([]byte(item.Data))
		digest.Write([]byte(item.Value))
	}
	return hex.EncodeToString(digest.Sum(nil))
}
