package signing

import (
	"context"
	"errors"
	"time"

	"agreement-service/internal/model"
	"agreement-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionView is what the signing UI needs to render a session
type SessionView struct {
	AgreementID       string    `json:"agreement_id"`
	DocumentType      string    `json:"document_type"`
	AgreementStatus   string    `json:"agreement_status"`
	SignerName        string    `json:"signer_name"`
	SignerEmail       string    `json:"signer_email"`
	SignerRole        string    `json:"signer_role"`
	SignaturePosition string    `json:"signature_position"`
	PDFURL            string    `json:"pdf_url"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// CompleteResult reports the agreement state after a captured signature
type CompleteResult struct {
	AgreementID       string `json:"agreement_id"`
	DocumentType      string `json:"document_type"`
	SignaturePosition string `json:"signature_position"`
	AgreementStatus   string `json:"agreement_status"`
}

// GetSession resolves a signing token to a renderable session. Possession of
// the token is the only credential here.
func (m *Manager) GetSession(ctx context.Context, token string) (*SessionView, error) {
	req, agr, err := m.loadByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	return &SessionView{
		AgreementID:       agr.ID,
		DocumentType:      agr.DocumentType,
		AgreementStatus:   agr.Status,
		SignerName:        req.SignerName,
		SignerEmail:       req.SignerEmail,
		SignerRole:        req.SignerRole,
		SignaturePosition: req.SignaturePosition,
		PDFURL:            req.PDFURL,
		ExpiresAt:         req.ExpiresAt,
	}, nil
}

// CompleteSigning captures a signature for a pending session and advances the
// agreement: internal completion moves it to the pending-external status and
// creates the external slot's session; external completion fully executes it.
// The request update, agreement advance, and next-slot creation commit in one
// transaction, each conditional on the state observed, so a concurrent
// completion loses cleanly with a conflict.
func (m *Manager) CompleteSigning(ctx context.Context, token, signatureImage, signedPDFURL string) (*CompleteResult, error) {
	if signatureImage == "" {
		return nil, invalidState("signature image is required")
	}

	req, agr, err := m.loadByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	pol, ok := PolicyFor(agr.DocumentType)
	if !ok {
		return nil, invalidState("unsupported document type")
	}

	var expectedStatus, nextStatus string
	if req.SignaturePosition == model.PositionPartyA {
		expectedStatus = agr.PendingInternalStatus()
		nextStatus = pol.PendingExternalStatus
	} else {
		expectedStatus = pol.PendingExternalStatus
		nextStatus = model.StatusFullyExecuted
	}
	if agr.Status != expectedStatus {
		return nil, invalidState("agreement is no longer awaiting this signature")
	}

	// The signed rendition for the counterparty to review. The renderer is
	// external; absent its URL the unsigned snapshot is carried forward.
	signedURL := signedPDFURL
	if signedURL == "" {
		signedURL = req.PDFURL
	}

	txErr := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		write := tx.Model(&model.SignatureRequest{}).
			Where("id = ? AND status = ?", req.ID, model.RequestStatusPending).
			Updates(map[string]interface{}{
				"status":          model.RequestStatusSigned,
				"signature_image": signatureImage,
				"signed_at":       now,
			})
		if write.Error != nil {
			return write.Error
		}
		if write.RowsAffected == 0 {
			return errRaceLost
		}

		updates := map[string]interface{}{
			"status":         nextStatus,
			"signed_pdf_url": signedURL,
		}

		if req.SignaturePosition == model.PositionPartyA {
			next, err := m.buildExternalRequest(tx, agr, pol, signedURL, req.CreatedBy)
			if err != nil {
				return err
			}
			if err := tx.Create(next).Error; err != nil {
				return err
			}
			updates[model.SlotColumn(pol.ExternalSlot)] = next.ID
		}

		advance := tx.Model(&model.Agreement{}).
			Where("id = ? AND status = ?", agr.ID, expectedStatus).
			Updates(updates)
		if advance.Error != nil {
			return advance.Error
		}
		if advance.RowsAffected == 0 {
			return errRaceLost
		}
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, errRaceLost) {
			return nil, conflict("signature was already processed")
		}
		var serr *Error
		if errors.As(txErr, &serr) {
			return nil, serr
		}
		m.log.Error("Failed to complete signing",
			zap.String("agreement_id", agr.ID),
			zap.String("signature_request_id", req.ID),
			zap.Error(txErr))
		return nil, storeFailure("could not record signature")
	}

	prometheus.RecordSignatureCompleted(agr.DocumentType, req.SignaturePosition)
	prometheus.RecordStatusTransition(agr.DocumentType, nextStatus)
	if req.SignaturePosition == model.PositionPartyA {
		prometheus.RecordSessionCreated(agr.DocumentType, pol.ExternalSlot)
	}
	m.log.Info("Signature captured",
		zap.String("agreement_id", agr.ID),
		zap.String("signature_request_id", req.ID),
		zap.String("position", req.SignaturePosition),
		zap.String("new_status", nextStatus))

	return &CompleteResult{
		AgreementID:       agr.ID,
		DocumentType:      agr.DocumentType,
		SignaturePosition: req.SignaturePosition,
		AgreementStatus:   nextStatus,
	}, nil
}

// buildExternalRequest prepares the party_b session created as a side effect
// of the internal party's completed signature. Signer identity comes from the
// external entity's registration.
func (m *Manager) buildExternalRequest(tx *gorm.DB, agr *model.Agreement, pol Policy, signedURL string, createdBy uint) (*model.SignatureRequest, error) {
	externalID := agr.ExternalPartyID()
	if externalID == nil {
		return nil, sessionInconsistency("agreement has no external party linked")
	}

	name, email := m.externalSignerIdentity(tx, agr.DocumentType, *externalID, pol)

	token, err := NewSigningToken()
	if err != nil {
		return nil, err
	}

	return &model.SignatureRequest{
		AgreementID:       agr.ID,
		ExternalPartyID:   externalID,
		SignerEmail:       email,
		SignerName:        name,
		SignerRole:        pol.ExternalSignerRole,
		SignaturePosition: model.PositionPartyB,
		Token:             token,
		ExpiresAt:         time.Now().Add(m.cfg.TokenTTL),
		Status:            model.RequestStatusPending,
		PDFURL:            signedURL,
		CreatedBy:         createdBy,
	}, nil
}

func (m *Manager) externalSignerIdentity(tx *gorm.DB, documentType string, externalID uint, pol Policy) (name, email string) {
	switch documentType {
	case model.DocumentTypeIntroducer:
		var entity model.Introducer
		if err := tx.First(&entity, externalID).Error; err == nil {
			name, email = entity.Name, entity.Email
		}
	case model.DocumentTypePlacement:
		var entity model.CommercialPartner
		if err := tx.First(&entity, externalID).Error; err == nil {
			name, email = entity.Name, entity.Email
		}
	}
	if name == "" {
		name = pol.ExternalPartyLabel
	}
	return name, email
}

// loadByToken resolves a signing token to its request and agreement,
// rejecting terminal and expired sessions.
func (m *Manager) loadByToken(ctx context.Context, token string) (*model.SignatureRequest, *model.Agreement, error) {
	if token == "" {
		return nil, nil, notFound("signing link not found")
	}

	var req model.SignatureRequest
	if err := m.db.WithContext(ctx).First(&req, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, notFound("signing link not found")
		}
		m.log.Error("Failed to load signature request by token", zap.Error(err))
		return nil, nil, storeFailure("could not load signing session")
	}

	switch req.Status {
	case model.RequestStatusSigned:
		return nil, nil, invalidState("this signing link has already been used")
	case model.RequestStatusCancelled:
		return nil, nil, invalidState("this signing link has been cancelled")
	}
	if req.IsExpired() {
		return nil, nil, invalidState("this signing link has expired")
	}

	var agr model.Agreement
	if err := m.db.WithContext(ctx).First(&agr, "id = ?", req.AgreementID).Error; err != nil {
		m.log.Error("Failed to load agreement for signing session",
			zap.String("signature_request_id", req.ID),
			zap.Error(err))
		return nil, nil, storeFailure("could not load signing session")
	}

	return &req, &agr, nil
}
