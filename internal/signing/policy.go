package signing

import (
	"agreement-service/internal/model"
	"agreement-service/internal/persona"
)

// Policy describes the signer choreography for one document type. The
// internal slot is not fixed here: it resolves to arranger or ceo from the
// agreement's party linkage. Adding a countersigned document type means
// adding one entry to the registry.
type Policy struct {
	DocumentType          string
	ExternalSlot          string // model.SlotIntroducer or model.SlotCP
	ExternalPersonaType   string // persona type with standing for the external slot
	ExternalSignerRole    string // signer role recorded on the external request
	PendingExternalStatus string // status while waiting on the external party
	ExternalPartyLabel    string // human label used in denial messages
}

var policies = map[string]Policy{
	model.DocumentTypeIntroducer: {
		DocumentType:          model.DocumentTypeIntroducer,
		ExternalSlot:          model.SlotIntroducer,
		ExternalPersonaType:   persona.TypeIntroducer,
		ExternalSignerRole:    model.SignerRoleIntroducer,
		PendingExternalStatus: model.StatusPendingIntroducerSignature,
		ExternalPartyLabel:    "Introducer",
	},
	model.DocumentTypePlacement: {
		DocumentType:          model.DocumentTypePlacement,
		ExternalSlot:          model.SlotCP,
		ExternalPersonaType:   persona.TypeCommercialPartner,
		ExternalSignerRole:    model.SignerRoleCommercialPartner,
		PendingExternalStatus: model.StatusPendingCPSignature,
		ExternalPartyLabel:    "Commercial Partner",
	},
}

// PolicyFor returns the signing policy for a document type
func PolicyFor(documentType string) (Policy, bool) {
	p, ok := policies[documentType]
	return p, ok
}

// InternalPartyLabel returns the human label for the internal slot of an agreement
func InternalPartyLabel(agr *model.Agreement) string {
	if agr.ArrangerID != nil {
		return "Arranger"
	}
	return "CEO"
}
