package persona

import "context"

// Persona types: the capacities in which a portal user may act
const (
	TypeStaff             = "staff"
	TypeArranger          = "arranger"
	TypeIntroducer        = "introducer"
	TypeCommercialPartner = "commercial_partner"
)

// Staff roles carried in RoleInEntity for staff personas
const (
	RoleStaffAdmin  = "staff_admin"
	RoleCEO         = "ceo"
	RoleStaffMember = "staff_member"
)

// Persona is one capacity a user holds, scoped to zero or one entity.
// Entity-scoped personas (arranger, introducer, commercial partner) must be
// matched by entity id, not just by type: a user may hold an arranger persona
// for an entity that is not the one linked to a given agreement.
type Persona struct {
	Type         string `json:"persona_type"`
	EntityID     *uint  `json:"entity_id,omitempty"`
	RoleInEntity string `json:"role_in_entity,omitempty"`
}

// MatchesEntity reports whether the persona is bound to the given entity id
func (p Persona) MatchesEntity(entityID uint) bool {
	return p.EntityID != nil && *p.EntityID == entityID
}

// IsStaff reports whether the persona grants one of the recognized staff roles
func (p Persona) IsStaff() bool {
	if p.Type != TypeStaff {
		return false
	}
	switch p.RoleInEntity {
	case RoleStaffAdmin, RoleCEO, RoleStaffMember:
		return true
	}
	return false
}

// Resolver resolves the personas a user may act in. Implemented by the
// identity service client; tests substitute a fake.
type Resolver interface {
	GetUserPersonas(ctx context.Context, userID uint) ([]Persona, error)
}
