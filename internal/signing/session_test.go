package signing

import (
	"context"
	"testing"
	"time"

	"agreement-service/internal/model"
	"agreement-service/internal/persona"
	"agreement-service/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// fakeResolver returns canned personas per user id
type fakeResolver struct {
	personas map[uint][]persona.Persona
}

func (f *fakeResolver) GetUserPersonas(_ context.Context, userID uint) ([]persona.Persona, error) {
	return f.personas[userID], nil
}

func newTestManager(db *gorm.DB, resolver persona.Resolver) *Manager {
	return NewManager(db, resolver, Config{
		TokenTTL: 7 * 24 * time.Hour,
		BaseURL:  "http://localhost:8086",
	}, zap.NewNop())
}

func uintPtr(v uint) *uint {
	return &v
}

const (
	staffUserID      = 1
	arrangerUserID   = 2
	introducerUserID = 3
	strangerUserID   = 4
	cpUserID         = 5
)

func defaultResolver() *fakeResolver {
	return &fakeResolver{personas: map[uint][]persona.Persona{
		staffUserID:      {{Type: persona.TypeStaff, RoleInEntity: persona.RoleCEO}},
		arrangerUserID:   {{Type: persona.TypeArranger, EntityID: uintPtr(10)}},
		introducerUserID: {{Type: persona.TypeIntroducer, EntityID: uintPtr(20)}},
		cpUserID:         {{Type: persona.TypeCommercialPartner, EntityID: uintPtr(30)}},
		strangerUserID:   {},
	}}
}

func seedParties(t *testing.T, db *gorm.DB) {
	require.NoError(t, db.Create(&model.Arranger{ID: 10, Name: "Arc Capital", Email: "sign@arc.example", IsActive: true}).Error)
	require.NoError(t, db.Create(&model.Introducer{ID: 20, Name: "Northgate Advisory", Email: "legal@northgate.example", IsActive: true}).Error)
	require.NoError(t, db.Create(&model.CommercialPartner{ID: 30, Name: "Harbor Partners", Email: "ops@harbor.example", IsActive: true}).Error)
}

func seedAgreement(t *testing.T, db *gorm.DB, mutate func(*model.Agreement)) *model.Agreement {
	agr := &model.Agreement{
		DocumentType: model.DocumentTypeIntroducer,
		IntroducerID: uintPtr(20),
		Status:       model.StatusApproved,
		PDFURL:       "documents/agr-unsigned.pdf",
		CreatedBy:    staffUserID,
	}
	if mutate != nil {
		mutate(agr)
	}
	require.NoError(t, db.Create(agr).Error)
	return agr
}

func staffActor() Actor {
	return Actor{UserID: staffUserID, Email: "ceo@operator.example", FullName: "Dana Reeve"}
}

func TestInitiateSigningCEOSlot(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, nil)

	result, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.NoError(t, err)

	assert.Equal(t, model.SlotCEO, result.SignerType)
	assert.Contains(t, result.SigningURL, "http://localhost:8086/sign/")
	assert.Equal(t, "documents/agr-unsigned.pdf", result.PDFURL)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), result.ExpiresAt, time.Minute)

	var reloaded model.Agreement
	require.NoError(t, db.First(&reloaded, "id = ?", agr.ID).Error)
	assert.Equal(t, model.StatusPendingCEOSignature, reloaded.Status)
	require.NotNil(t, reloaded.CEOSignatureRequestID)

	var req model.SignatureRequest
	require.NoError(t, db.First(&req, "id = ?", *reloaded.CEOSignatureRequestID).Error)
	assert.Equal(t, model.PositionPartyA, req.SignaturePosition)
	assert.Equal(t, model.SignerRoleAdmin, req.SignerRole)
	assert.Equal(t, "Dana Reeve", req.SignerName)
	assert.Equal(t, model.RequestStatusPending, req.Status)
}

func TestInitiateSigningIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, nil)

	first, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.NoError(t, err)

	second, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.NoError(t, err)

	assert.Equal(t, first.SigningURL, second.SigningURL)
	assert.Equal(t, first.ExpiresAt.Unix(), second.ExpiresAt.Unix())

	var count int64
	require.NoError(t, db.Model(&model.SignatureRequest{}).Where("agreement_id = ?", agr.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInitiateSigningArrangerSlot(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, func(a *model.Agreement) {
		a.ArrangerID = uintPtr(10)
	})

	result, err := m.InitiateSigning(context.Background(), agr.ID, Actor{UserID: arrangerUserID, Email: "sign@arc.example"})
	require.NoError(t, err)
	assert.Equal(t, model.SlotArranger, result.SignerType)

	var reloaded model.Agreement
	require.NoError(t, db.First(&reloaded, "id = ?", agr.ID).Error)
	assert.Equal(t, model.StatusPendingArrangerSignature, reloaded.Status)
	require.NotNil(t, reloaded.ArrangerSignatureRequestID)
	assert.Nil(t, reloaded.CEOSignatureRequestID)

	// No explicit full name on the actor: the arranger's registered name wins
	var req model.SignatureRequest
	require.NoError(t, db.First(&req, "id = ?", *reloaded.ArrangerSignatureRequestID).Error)
	assert.Equal(t, "Arc Capital", req.SignerName)
	assert.Equal(t, model.SignerRoleArranger, req.SignerRole)
}

func TestInitiateSigningStaffDeniedWhenArrangerLinked(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, func(a *model.Agreement) {
		a.ArrangerID = uintPtr(10)
	})

	_, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.Error(t, err)
	assert.Equal(t, CodeForbidden, CodeOf(err))
}

func TestInitiateSigningArrangerEntityMustMatch(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	resolver := defaultResolver()
	// Arranger persona bound to a different arranger entity
	resolver.personas[arrangerUserID] = []persona.Persona{{Type: persona.TypeArranger, EntityID: uintPtr(99)}}
	m := newTestManager(db, resolver)
	agr := seedAgreement(t, db, func(a *model.Agreement) {
		a.ArrangerID = uintPtr(10)
	})

	_, err := m.InitiateSigning(context.Background(), agr.ID, Actor{UserID: arrangerUserID, Email: "sign@arc.example"})
	require.Error(t, err)
	assert.Equal(t, CodeForbidden, CodeOf(err))
}

func TestInitiateSigningExternalBeforeInternalFails(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, nil)

	_, err := m.InitiateSigning(context.Background(), agr.ID, Actor{UserID: introducerUserID, Email: "legal@northgate.example"})
	require.Error(t, err)
	assert.Equal(t, CodeInvalidState, CodeOf(err))
	assert.Contains(t, err.Error(), "must sign first")

	// No session may be fabricated for the external party
	var count int64
	require.NoError(t, db.Model(&model.SignatureRequest{}).Where("agreement_id = ?", agr.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestInitiateSigningExternalMissingRequestIsInconsistency(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	// Pending-external status but no FK: the completion collaborator should
	// have created the session, so this is a support error, not auto-repair.
	agr := seedAgreement(t, db, func(a *model.Agreement) {
		a.Status = model.StatusPendingIntroducerSignature
	})

	_, err := m.InitiateSigning(context.Background(), agr.ID, Actor{UserID: introducerUserID, Email: "legal@northgate.example"})
	require.Error(t, err)
	assert.Equal(t, CodeSessionInconsistency, CodeOf(err))
}

func TestInitiateSigningExpiryForcesRegeneration(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, nil)

	first, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.NoError(t, err)

	var reloaded model.Agreement
	require.NoError(t, db.First(&reloaded, "id = ?", agr.ID).Error)
	oldID := *reloaded.CEOSignatureRequestID

	// Age the session past its absolute expiry
	require.NoError(t, db.Model(&model.SignatureRequest{}).
		Where("id = ?", oldID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	second, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.NoError(t, err)
	assert.NotEqual(t, first.SigningURL, second.SigningURL)

	require.NoError(t, db.First(&reloaded, "id = ?", agr.ID).Error)
	assert.NotEqual(t, oldID, *reloaded.CEOSignatureRequestID)
	assert.Equal(t, model.StatusPendingCEOSignature, reloaded.Status)

	// The expired request stays behind as audit trail
	var count int64
	require.NoError(t, db.Model(&model.SignatureRequest{}).Where("agreement_id = ?", agr.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestInitiateSigningDraftAgreement(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, func(a *model.Agreement) {
		a.Status = model.StatusDraft
	})

	_, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.Error(t, err)
	assert.Equal(t, CodeInvalidState, CodeOf(err))
	assert.Contains(t, err.Error(), "approved")
}

func TestInitiateSigningUnknownAgreement(t *testing.T) {
	db := setupTestDB(t)
	m := newTestManager(db, defaultResolver())

	_, err := m.InitiateSigning(context.Background(), "agr_missing", staffActor())
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestInitiateSigningStrangerIsForbidden(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, nil)

	_, err := m.InitiateSigning(context.Background(), agr.ID, Actor{UserID: strangerUserID, Email: "who@example.com"})
	require.Error(t, err)
	assert.Equal(t, CodeForbidden, CodeOf(err))
}

func TestInitiateSigningExternalReusesCompletionSession(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, nil)

	// Internal party signs; completion creates the external session
	_, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.NoError(t, err)
	internalToken := pendingTokenForSlot(t, db, agr.ID, model.PositionPartyA)
	_, err = m.CompleteSigning(context.Background(), internalToken, "data:image/png;base64,aaa", "documents/agr-signed.pdf")
	require.NoError(t, err)

	// The introducer's initiate call reuses the completion-created session
	first, err := m.InitiateSigning(context.Background(), agr.ID, Actor{UserID: introducerUserID, Email: "legal@northgate.example"})
	require.NoError(t, err)
	assert.Equal(t, model.SlotIntroducer, first.SignerType)
	assert.Equal(t, "documents/agr-signed.pdf", first.PDFURL)

	second, err := m.InitiateSigning(context.Background(), agr.ID, Actor{UserID: introducerUserID, Email: "legal@northgate.example"})
	require.NoError(t, err)
	assert.Equal(t, first.SigningURL, second.SigningURL)

	// One internal (signed) + one external (pending)
	var count int64
	require.NoError(t, db.Model(&model.SignatureRequest{}).Where("agreement_id = ?", agr.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestInitiateSigningExpiredExternalKeepsSignerIdentity(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, nil)

	_, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.NoError(t, err)
	internalToken := pendingTokenForSlot(t, db, agr.ID, model.PositionPartyA)
	_, err = m.CompleteSigning(context.Background(), internalToken, "data:image/png;base64,aaa", "documents/agr-signed.pdf")
	require.NoError(t, err)

	var reloaded model.Agreement
	require.NoError(t, db.First(&reloaded, "id = ?", agr.ID).Error)
	oldID := *reloaded.IntroducerSignatureRequestID
	require.NoError(t, db.Model(&model.SignatureRequest{}).
		Where("id = ?", oldID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	_, err = m.InitiateSigning(context.Background(), agr.ID, Actor{UserID: introducerUserID, Email: "legal@northgate.example"})
	require.NoError(t, err)

	require.NoError(t, db.First(&reloaded, "id = ?", agr.ID).Error)
	require.NotEqual(t, oldID, *reloaded.IntroducerSignatureRequestID)

	var fresh model.SignatureRequest
	require.NoError(t, db.First(&fresh, "id = ?", *reloaded.IntroducerSignatureRequestID).Error)
	assert.Equal(t, "Northgate Advisory", fresh.SignerName)
	assert.Equal(t, "legal@northgate.example", fresh.SignerEmail)
	assert.Equal(t, model.PositionPartyB, fresh.SignaturePosition)
	// Still the signed rendition, per the prior session's snapshot
	assert.Equal(t, "documents/agr-signed.pdf", fresh.PDFURL)
}

func TestCancelPendingRequests(t *testing.T) {
	db := setupTestDB(t)
	seedParties(t, db)
	m := newTestManager(db, defaultResolver())
	agr := seedAgreement(t, db, nil)

	_, err := m.InitiateSigning(context.Background(), agr.ID, staffActor())
	require.NoError(t, err)

	require.NoError(t, m.CancelPendingRequests(context.Background(), agr.ID))

	var count int64
	require.NoError(t, db.Model(&model.SignatureRequest{}).
		Where("agreement_id = ? AND status = ?", agr.ID, model.RequestStatusCancelled).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// pendingTokenForSlot digs the live token for a position out of the store
func pendingTokenForSlot(t *testing.T, db *gorm.DB, agreementID, position string) string {
	var req model.SignatureRequest
	require.NoError(t, db.First(&req,
		"agreement_id = ? AND signature_position = ? AND status = ?",
		agreementID, position, model.RequestStatusPending).Error)
	return req.Token
}
