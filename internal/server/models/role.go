package models

import (
	"slices"
	"time"
)

// Capability is a right granted by a role.
type Capability string

const (
	CapAdministrator   Capability = "administrator"
	CapManageUsers     Capability = "users:manage"
	CapManageCampaigns Capability = "campaigns:manage"
)

// Recognized role names. Matching is case-sensitive.
const (
	RoleNameAdmin         = "ADMIN"
	RoleNameAdministrador = "ADMINISTRADOR"
	RoleNameManager       = "MANAGER"
	RoleNameViewer        = "VIEWER"
)

// CapabilitySet is an immutable-by-convention list of capabilities. It is
// never stored; CapabilitiesFor derives it from the role name.
type CapabilitySet []Capability

func (s CapabilitySet) Has(c Capability) bool {
	return slices.Contains(s, c)
}

// Role is reference data resolved once when loaded; capabilities are fixed
// at that point so later checks never look at the display name.
type Role struct {
	ID           int64
	Name         string
	Description  string
	Active       bool
	Capabilities CapabilitySet
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewRole builds a Role and resolves its capabilities from name.
func NewRole(id int64, name string, active bool) Role {
	return Role{
		ID:           id,
		Name:         name,
		Active:       active,
		Capabilities: CapabilitiesFor(name),
	}
}

// CapabilitiesFor maps a role name to its capability set.
func CapabilitiesFor(name string) CapabilitySet {
	switch name {
	case RoleNameAdmin, RoleNameAdministrador:
		return CapabilitySet{CapAdministrator, CapManageUsers, CapManageCampaigns}
	case RoleNameManager:
		return CapabilitySet{CapManageUsers, CapManageCampaigns}
	case RoleNameViewer:
		return CapabilitySet{}
	default:
		return CapabilitySet{CapManageCampaigns}
	}
}

func (r Role) IsAdmin() bool {
	return r.Capabilities.Has(CapAdministrator)
}

func (r Role) Can(c Capability) bool {
	return r.Capabilities.Has(c)
}
