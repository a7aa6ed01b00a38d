package signing

import (
	"fmt"

	"agreement-service/internal/model"
	"agreement-service/internal/persona"
)

// Decision is the guard's answer: which slot the actor may sign, right now.
type Decision struct {
	Slot       string // model.Slot* — also the signer_type reported to the caller
	Position   string // model.PositionPartyA or model.PositionPartyB
	SignerRole string // role recorded on the signature request
}

// Authorize decides whether the acting personas grant a signing slot on the
// agreement in its current status. Denials are split three ways: a party with
// standing blocked by status gets invalid_state with a message naming who
// must act first; an actor with no standing at all gets forbidden.
//
// Internal standing is checked before external standing. An arranger-linked
// agreement never grants the internal slot to staff, even staff with the CEO
// role; entity-scoped personas must match the agreement's linked entity id.
func Authorize(agr *model.Agreement, personas []persona.Persona) (*Decision, *Error) {
	pol, ok := PolicyFor(agr.DocumentType)
	if !ok {
		return nil, invalidState(fmt.Sprintf("unsupported document type %q", agr.DocumentType))
	}

	hasInternal := hasInternalStanding(agr, personas)
	hasExternal := hasExternalStanding(agr, pol, personas)

	if hasInternal {
		if agr.Status == model.StatusApproved || agr.Status == agr.PendingInternalStatus() {
			decision := &Decision{
				Slot:       agr.InternalSlot(),
				Position:   model.PositionPartyA,
				SignerRole: model.SignerRoleArranger,
			}
			if agr.ArrangerID == nil {
				decision.SignerRole = model.SignerRoleAdmin
			}
			return decision, nil
		}
	}

	if hasExternal && agr.Status == pol.PendingExternalStatus {
		return &Decision{
			Slot:       pol.ExternalSlot,
			Position:   model.PositionPartyB,
			SignerRole: pol.ExternalSignerRole,
		}, nil
	}

	if !hasInternal && !hasExternal {
		return nil, forbidden("you are not authorized to sign this agreement")
	}

	return nil, statusDenial(agr, pol)
}

func hasInternalStanding(agr *model.Agreement, personas []persona.Persona) bool {
	if agr.ArrangerID != nil {
		for _, p := range personas {
			if p.Type == persona.TypeArranger && p.MatchesEntity(*agr.ArrangerID) {
				return true
			}
		}
		return false
	}
	for _, p := range personas {
		if p.IsStaff() {
			return true
		}
	}
	return false
}

func hasExternalStanding(agr *model.Agreement, pol Policy, personas []persona.Persona) bool {
	externalID := agr.ExternalPartyID()
	if externalID == nil {
		return false
	}
	for _, p := range personas {
		if p.Type == pol.ExternalPersonaType && p.MatchesEntity(*externalID) {
			return true
		}
	}
	return false
}

// statusDenial explains why an actor with standing cannot sign right now
func statusDenial(agr *model.Agreement, pol Policy) *Error {
	switch agr.Status {
	case model.StatusDraft:
		return invalidState("agreement must be approved before signing")
	case model.StatusApproved, agr.PendingInternalStatus():
		return invalidState(fmt.Sprintf("%s must sign first", InternalPartyLabel(agr)))
	case pol.PendingExternalStatus:
		return invalidState(fmt.Sprintf("waiting on %s signature", pol.ExternalPartyLabel))
	case model.StatusFullyExecuted:
		return invalidState("agreement is already fully executed")
	case model.StatusRejected, model.StatusCancelled:
		return invalidState(fmt.Sprintf("agreement has been %s", agr.Status))
	}
	return invalidState(fmt.Sprintf("agreement cannot be signed in status %q", agr.Status))
}
