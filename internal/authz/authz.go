// Package authz maps roles to the operations they may perform.
//
// Roles form a closed set. Every operation exposed by an adapter is named by a
// Capability, and the table below is the only place that decides who may
// perform it. Ownership checks (a CLIENT acting on its own data) are applied
// by the caller using Scoped.
package authz

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a user role. The zero value is not a valid role.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleBoutiquier Role = "BOUTIQUIER"
	RoleClient     Role = "CLIENT"
)

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleBoutiquier, RoleClient:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string { return string(r) }

// IsStaff reports whether r works in the shop (ADMIN or BOUTIQUIER).
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleBoutiquier
}

// Capability names one operation.
type Capability string

const (
	// Dettes
	CapSubmitDemande       Capability = "dette:submit"
	CapCreateDette         Capability = "dette:create"
	CapListDettes          Capability = "dette:list"
	CapListOwnDettes       Capability = "dette:list-own"
	CapViewDette           Capability = "dette:view"
	CapUpdateDetteStatus   Capability = "dette:status"
	CapRelaunchDette       Capability = "dette:relaunch"
	CapCancelClientDemande Capability = "dette:cancel-client"
	CapRegisterPayment     Capability = "dette:pay"
	CapViewPayments        Capability = "dette:payments"
	CapDeleteDette         Capability = "dette:delete"

	// Clients
	CapManageClients    Capability = "client:manage"
	CapListClients      Capability = "client:list"
	CapViewClient       Capability = "client:view"
	CapListClientDettes Capability = "client:dettes"
	CapDraftReminder    Capability = "client:reminder"

	// Catalog
	CapManageArticles   Capability = "article:manage"
	CapListArticles     Capability = "article:list"
	CapViewArticle      Capability = "article:view"
	CapManageCategories Capability = "category:manage"
	CapListCategories   Capability = "category:list"

	// Users
	CapManageUsers Capability = "user:manage"
	CapListUsers   Capability = "user:list"

	// Notifications
	CapSendNotification  Capability = "notification:send"
	CapReadNotifications Capability = "notification:read"
)

var (
	staff    = []Role{RoleAdmin, RoleBoutiquier}
	everyone = []Role{RoleAdmin, RoleBoutiquier, RoleClient}
	admin    = []Role{RoleAdmin}
)

var table = map[Capability][]Role{
	CapSubmitDemande:       everyone,
	CapCreateDette:         staff,
	CapListDettes:          staff,
	CapListOwnDettes:       everyone,
	CapViewDette:           everyone,
	CapUpdateDetteStatus:   staff,
	CapRelaunchDette:       everyone,
	CapCancelClientDemande: staff,
	CapRegisterPayment:     staff,
	CapViewPayments:        everyone,
	CapDeleteDette:         staff,

	CapManageClients:    staff,
	CapListClients:      staff,
	CapViewClient:       everyone,
	CapListClientDettes: everyone,
	CapDraftReminder:    staff,

	CapManageArticles:   staff,
	CapListArticles:     everyone,
	CapViewArticle:      staff,
	CapManageCategories: admin,
	CapListCategories:   staff,

	CapManageUsers: admin,
	CapListUsers:   staff,

	CapSendNotification:  staff,
	CapReadNotifications: everyone,
}

// Allowed reports whether role may perform cap. Unknown capabilities are denied.
func Allowed(role Role, cap Capability) bool {
	for _, r := range table[cap] {
		if r == role {
			return true
		}
	}
	return false
}

// Scoped reports whether role is restricted to its own client's data when it
// performs an allowed capability.
func Scoped(role Role) bool {
	return role == RoleClient
}

// CanAccessClient combines the capability check with client ownership.
// ownClientID is the caller's linked client (nil for staff).
func CanAccessClient(role Role, cap Capability, ownClientID *int, clientID int) bool {
	if !Allowed(role, cap) {
		return false
	}
	if !Scoped(role) {
		return true
	}
	return ownClientID != nil && *ownClientID == clientID
}

// Capabilities lists what role may do, sorted.
func Capabilities(role Role) []Capability {
	var caps []Capability
	for cap := range table {
		if Allowed(role, cap) {
			caps = append(caps, cap)
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
