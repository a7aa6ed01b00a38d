package signing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agreement-service/internal/model"
	"agreement-service/internal/persona"
	"agreement-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config holds the signing-session policy knobs
type Config struct {
	TokenTTL time.Duration
	BaseURL  string
}

// Actor is the authenticated identity initiating a signing session
type Actor struct {
	UserID   uint
	Email    string
	FullName string
}

// Result is the payload returned for a usable signing session
type Result struct {
	SigningURL string    `json:"signing_url"`
	PDFURL     string    `json:"pdf_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	SignerType string    `json:"signer_type"`
}

// Manager orchestrates signing sessions: it decides who signs next, reuses
// live sessions, and mints new ones atomically with the agreement's FK and
// status advance.
type Manager struct {
	db       *gorm.DB
	resolver persona.Resolver
	cfg      Config
	log      *zap.Logger
}

// NewManager creates a signing session manager
func NewManager(db *gorm.DB, resolver persona.Resolver, cfg Config, log *zap.Logger) *Manager {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	return &Manager{db: db, resolver: resolver, cfg: cfg, log: log}
}

// errRaceLost aborts the session transaction when the conditional FK write
// finds the agreement already changed underneath us.
var errRaceLost = errors.New("agreement changed concurrently")

// InitiateSigning returns a usable signing session for the acting user on the
// agreement, creating one only when no live session exists for the target
// slot. Re-invoking it never issues a second live link for the same slot.
func (m *Manager) InitiateSigning(ctx context.Context, agreementID string, actor Actor) (*Result, error) {
	var agr model.Agreement
	if err := m.db.WithContext(ctx).First(&agr, "id = ?", agreementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("agreement not found")
		}
		m.log.Error("Failed to load agreement",
			zap.String("agreement_id", agreementID),
			zap.Error(err))
		return nil, storeFailure("could not load agreement")
	}

	personas, err := m.resolver.GetUserPersonas(ctx, actor.UserID)
	if err != nil {
		m.log.Error("Persona resolution failed",
			zap.Uint("user_id", actor.UserID),
			zap.Error(err))
		return nil, storeFailure("could not resolve signing permissions")
	}

	decision, derr := Authorize(&agr, personas)
	if derr != nil {
		prometheus.RecordSigningDenied(derr.Code)
		return nil, derr
	}

	// Idempotent reuse: an existing pending, unexpired session for the slot is
	// returned unchanged. No new token, no state mutation.
	existingID := agr.SlotRequestID(decision.Slot)
	var prior *model.SignatureRequest
	if existingID != nil {
		var req model.SignatureRequest
		if err := m.db.WithContext(ctx).First(&req, "id = ?", *existingID).Error; err != nil {
			m.log.Error("Failed to load signature request",
				zap.String("agreement_id", agr.ID),
				zap.String("signature_request_id", *existingID),
				zap.Error(err))
			return nil, storeFailure("could not load signature request")
		}
		if req.IsPending() {
			prometheus.RecordSessionReused(agr.DocumentType, decision.Slot)
			return m.result(&req, decision.Slot), nil
		}
		prior = &req
	}

	// The external slot's first session is created when the internal party's
	// signature completes. Fabricating one here would bypass signer ordering,
	// so a missing FK is a support error; only an expired or terminal prior
	// request may be replaced.
	if decision.Position == model.PositionPartyB && prior == nil {
		prometheus.RecordSigningDenied(CodeSessionInconsistency)
		return nil, sessionInconsistency("no valid signature request found for this agreement; contact support")
	}

	req, err := m.buildRequest(ctx, &agr, decision, actor, prior)
	if err != nil {
		return nil, err
	}

	txErr := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}

		column := model.SlotColumn(decision.Slot)
		updates := map[string]interface{}{column: req.ID}

		var write *gorm.DB
		if existingID == nil {
			// First session for the internal slot: advance approved ->
			// pending_{internal}_signature atomically with the FK write.
			updates["status"] = agr.PendingInternalStatus()
			write = tx.Model(&model.Agreement{}).
				Where("id = ? AND status = ? AND "+column+" IS NULL", agr.ID, model.StatusApproved).
				Updates(updates)
		} else {
			// Replacing an expired/terminal request: swing the FK only if it
			// still points at the request we examined.
			write = tx.Model(&model.Agreement{}).
				Where("id = ? AND "+column+" = ?", agr.ID, *existingID).
				Updates(updates)
		}
		if write.Error != nil {
			return write.Error
		}
		if write.RowsAffected == 0 {
			return errRaceLost
		}
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, errRaceLost) {
			return m.recoverFromRace(ctx, agr.ID, decision.Slot)
		}
		m.log.Error("Failed to create signing session",
			zap.String("agreement_id", agr.ID),
			zap.String("slot", decision.Slot),
			zap.Error(txErr))
		return nil, storeFailure("could not create signing session")
	}

	prometheus.RecordSessionCreated(agr.DocumentType, decision.Slot)
	if existingID == nil {
		prometheus.RecordStatusTransition(agr.DocumentType, agr.PendingInternalStatus())
	}
	m.log.Info("Signing session created",
		zap.String("agreement_id", agr.ID),
		zap.String("signature_request_id", req.ID),
		zap.String("slot", decision.Slot),
		zap.String("position", decision.Position),
		zap.Time("expires_at", req.ExpiresAt))

	return m.result(req, decision.Slot), nil
}

// buildRequest assembles a new SignatureRequest for the slot, minting a fresh
// token. For a re-mint the prior request supplies the signer identity; for a
// first internal session it derives from the acting user.
func (m *Manager) buildRequest(ctx context.Context, agr *model.Agreement, decision *Decision, actor Actor, prior *model.SignatureRequest) (*model.SignatureRequest, error) {
	token, err := NewSigningToken()
	if err != nil {
		m.log.Error("Token generation failed", zap.Error(err))
		return nil, storeFailure("could not create signing session")
	}

	req := &model.SignatureRequest{
		AgreementID:       agr.ID,
		ExternalPartyID:   agr.ExternalPartyID(),
		SignerRole:        decision.SignerRole,
		SignaturePosition: decision.Position,
		Token:             token,
		ExpiresAt:         time.Now().Add(m.cfg.TokenTTL),
		Status:            model.RequestStatusPending,
		PDFURL:            snapshotURL(agr, decision.Position),
		CreatedBy:         actor.UserID,
	}

	if prior != nil && decision.Position == model.PositionPartyB {
		req.SignerEmail = prior.SignerEmail
		req.SignerName = prior.SignerName
	} else {
		req.SignerEmail = actor.Email
		req.SignerName = m.signerDisplayName(ctx, agr, decision, actor)
	}

	return req, nil
}

// signerDisplayName falls back, in order: explicit full name, the entity's
// registered name, the email local-part, a generic role label.
func (m *Manager) signerDisplayName(ctx context.Context, agr *model.Agreement, decision *Decision, actor Actor) string {
	if actor.FullName != "" {
		return actor.FullName
	}
	if decision.Slot == model.SlotArranger && agr.ArrangerID != nil {
		var arranger model.Arranger
		if err := m.db.WithContext(ctx).First(&arranger, *agr.ArrangerID).Error; err == nil && arranger.Name != "" {
			return arranger.Name
		}
	}
	if local := emailLocalPart(actor.Email); local != "" {
		return local
	}
	if decision.Slot == model.SlotArranger {
		return "Arranger"
	}
	return "CEO"
}

// snapshotURL picks the document the signer must review: the current unsigned
// PDF for the internal slot, the signed PDF (once present) for the external
// slot, which must show the first signature.
func snapshotURL(agr *model.Agreement, position string) string {
	if position == model.PositionPartyB && agr.SignedPDFURL != nil && *agr.SignedPDFURL != "" {
		return *agr.SignedPDFURL
	}
	return agr.PDFURL
}

// recoverFromRace is the loser's path for two concurrent initiate calls: fall
// back into the reuse check instead of creating a divergent live session.
func (m *Manager) recoverFromRace(ctx context.Context, agreementID, slot string) (*Result, error) {
	var agr model.Agreement
	if err := m.db.WithContext(ctx).First(&agr, "id = ?", agreementID).Error; err != nil {
		return nil, storeFailure("could not load agreement")
	}
	if fk := agr.SlotRequestID(slot); fk != nil {
		var req model.SignatureRequest
		if err := m.db.WithContext(ctx).First(&req, "id = ?", *fk).Error; err == nil && req.IsPending() {
			prometheus.RecordSessionReused(agr.DocumentType, slot)
			return m.result(&req, slot), nil
		}
	}
	return nil, conflict("agreement was updated concurrently; retry")
}

// CancelPendingRequests marks every pending signature request for an
// agreement cancelled. Called when the agreement itself is cancelled or
// rejected; rows are kept for the audit trail.
func (m *Manager) CancelPendingRequests(ctx context.Context, agreementID string) error {
	return m.db.WithContext(ctx).Model(&model.SignatureRequest{}).
		Where("agreement_id = ? AND status = ?", agreementID, model.RequestStatusPending).
		Update("status", model.RequestStatusCancelled).Error
}

func (m *Manager) result(req *model.SignatureRequest, slot string) *Result {
	return &Result{
		SigningURL: m.signingURL(req.Token),
		PDFURL:     req.PDFURL,
		ExpiresAt:  req.ExpiresAt,
		SignerType: slot,
	}
}

func (m *Manager) signingURL(token string) string {
	return fmt.Sprintf("%s/sign/%s", strings.TrimRight(m.cfg.BaseURL, "/"), token)
}

func emailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return ""
}
