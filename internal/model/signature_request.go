package model

import (
	"time"

	"gorm.io/gorm"
)

// Signature positions within an agreement
const (
	PositionPartyA = "party_a" // first/internal signer
	PositionPartyB = "party_b" // second/external signer
)

// SignatureRequest statuses. Expiry is evaluated lazily against ExpiresAt and
// is not always persisted.
const (
	RequestStatusPending   = "pending"
	RequestStatusSigned    = "signed"
	RequestStatusExpired   = "expired"
	RequestStatusCancelled = "cancelled"
)

// Signer roles recorded on a request
const (
	SignerRoleAdmin             = "admin"
	SignerRoleArranger          = "arranger"
	SignerRoleIntroducer        = "introducer"
	SignerRoleCommercialPartner = "commercial_partner"
)

// SignatureRequest represents one single-use signing session for one signer
// slot of one agreement. Rows are never deleted; superseded or expired
// requests remain as an audit trail.
type SignatureRequest struct {
	ID          string `gorm:"primaryKey" json:"id"`
	AgreementID string `gorm:"index;not null" json:"agreement_id"`

	// Redundant external party linkage, to support lookups independent of
	// agreement type.
	ExternalPartyID *uint `gorm:"index" json:"external_party_id,omitempty"`

	SignerEmail       string `gorm:"type:varchar(100)" json:"signer_email"`
	SignerName        string `gorm:"type:varchar(100)" json:"signer_name"`
	SignerRole        string `gorm:"type:varchar(30)" json:"signer_role"`
	SignaturePosition string `gorm:"type:varchar(10);not null" json:"signature_position"`

	Token     string    `gorm:"uniqueIndex;type:varchar(64)" json:"-"` // Never expose the signing token in JSON responses
	ExpiresAt time.Time `json:"expires_at"`

	Status string `gorm:"type:varchar(20);index;not null;default:'pending'" json:"status"`

	// Unsigned PDF snapshot at creation time (the signed PDF for the external
	// slot, which must show the first signature).
	PDFURL string `gorm:"type:text" json:"pdf_url"`

	SignatureImage *string    `gorm:"type:text" json:"-"` // Base64 encoded signature image
	SignedAt       *time.Time `json:"signed_at,omitempty"`

	CreatedBy uint           `gorm:"index" json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook will be called before creating a new SignatureRequest record
func (r *SignatureRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = generateSecureID("sig_")
	}
	return nil
}

// IsExpired checks if the signing session is past its absolute expiry
func (r *SignatureRequest) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// IsPending checks if the session can still be signed (pending and not expired)
func (r *SignatureRequest) IsPending() bool {
	return r.Status == RequestStatusPending && !r.IsExpired()
}

// IsTerminal reports whether the request can never become signable again
func (r *SignatureRequest) IsTerminal() bool {
	return r.Status == RequestStatusSigned || r.Status == RequestStatusCancelled
}
