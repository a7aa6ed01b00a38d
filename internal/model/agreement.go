package model

import (
	"time"

	"gorm.io/gorm"
)

// Document types for countersigned instruments
const (
	DocumentTypeIntroducer = "introducer"
	DocumentTypePlacement  = "placement"
)

// Agreement lifecycle statuses
const (
	StatusDraft                      = "draft"
	StatusApproved                   = "approved"
	StatusPendingArrangerSignature   = "pending_arranger_signature"
	StatusPendingCEOSignature        = "pending_ceo_signature"
	StatusPendingIntroducerSignature = "pending_introducer_signature"
	StatusPendingCPSignature         = "pending_cp_signature"
	StatusFullyExecuted              = "fully_executed"
	StatusRejected                   = "rejected"
	StatusCancelled                  = "cancelled"
)

// Signer slots. The internal slot is arranger or ceo depending on whether the
// agreement has an arranger linked; the external slot depends on document type.
const (
	SlotArranger   = "arranger"
	SlotCEO        = "ceo"
	SlotIntroducer = "introducer"
	SlotCP         = "cp"
)

// Agreement represents one countersigned legal document
type Agreement struct {
	ID           string `gorm:"primaryKey" json:"id"`
	DocumentType string `gorm:"type:varchar(30);index;not null" json:"document_type"`

	// Party linkage: at most one internal party (arranger, else staff/CEO signs)
	// and exactly one external party matching the document type.
	ArrangerID          *uint `gorm:"index" json:"arranger_id,omitempty"`
	IntroducerID        *uint `gorm:"index" json:"introducer_id,omitempty"`
	CommercialPartnerID *uint `gorm:"index" json:"commercial_partner_id,omitempty"`

	Status string `gorm:"type:varchar(40);index;not null;default:'draft'" json:"status"`

	// Denormalized signature-request FKs, one per signer slot. A slot's FK is
	// only reassigned once the prior request is terminal or expired.
	ArrangerSignatureRequestID   *string `json:"arranger_signature_request_id,omitempty"`
	CEOSignatureRequestID        *string `json:"ceo_signature_request_id,omitempty"`
	IntroducerSignatureRequestID *string `json:"introducer_signature_request_id,omitempty"`
	CPSignatureRequestID         *string `json:"cp_signature_request_id,omitempty"`

	PDFURL       string  `gorm:"type:text" json:"pdf_url"`
	SignedPDFURL *string `gorm:"type:text" json:"signed_pdf_url,omitempty"`

	CreatedBy uint           `gorm:"index" json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook will be called before creating a new Agreement record
func (a *Agreement) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = generateSecureID("agr_")
	}
	return nil
}

// InternalSlot returns the slot expected to sign first
func (a *Agreement) InternalSlot() string {
	if a.ArrangerID != nil {
		return SlotArranger
	}
	return SlotCEO
}

// PendingInternalStatus returns the status the agreement enters once the
// internal slot's signing session exists
func (a *Agreement) PendingInternalStatus() string {
	if a.ArrangerID != nil {
		return StatusPendingArrangerSignature
	}
	return StatusPendingCEOSignature
}

// SlotRequestID returns the signature-request FK for a slot
func (a *Agreement) SlotRequestID(slot string) *string {
	switch slot {
	case SlotArranger:
		return a.ArrangerSignatureRequestID
	case SlotCEO:
		return a.CEOSignatureRequestID
	case SlotIntroducer:
		return a.IntroducerSignatureRequestID
	case SlotCP:
		return a.CPSignatureRequestID
	}
	return nil
}

// SlotColumn returns the database column holding a slot's FK, for conditional updates
func SlotColumn(slot string) string {
	switch slot {
	case SlotArranger:
		return "arranger_signature_request_id"
	case SlotCEO:
		return "ceo_signature_request_id"
	case SlotIntroducer:
		return "introducer_signature_request_id"
	case SlotCP:
		return "cp_signature_request_id"
	}
	return ""
}

// ExternalPartyID returns the linked external counterparty id for the document type
func (a *Agreement) ExternalPartyID() *uint {
	switch a.DocumentType {
	case DocumentTypeIntroducer:
		return a.IntroducerID
	case DocumentTypePlacement:
		return a.CommercialPartnerID
	}
	return nil
}

// IsTerminal reports whether no further lifecycle transitions are possible
func (a *Agreement) IsTerminal() bool {
	switch a.Status {
	case StatusFullyExecuted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}
