package services

import (
	"strings"

	"github.com/pocketbase/pocketbase/core"
)

type Role string

const (
	RoleCustomer  Role = "customer"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Authorizer is the single place role decisions happen. Admins come from the
// configured allowlist; organizers are flagged on their auth record.
type Authorizer struct {
	adminEmails map[string]struct{}
}

func NewAuthorizer(adminEmails []string) *Authorizer {
	allow := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		allow[strings.ToLower(email)] = struct{}{}
	}
	return &Authorizer{adminEmails: allow}
}

// ResolveRole maps an authenticated record to its platform role. A nil
// record is a customer with no standing.
func (a *Authorizer) ResolveRole(auth *core.Record) Role {
	if auth == nil {
		return RoleCustomer
	}

	email := strings.ToLower(auth.GetString("email"))
	if _, ok := a.adminEmails[email]; ok {
		return RoleAdmin
	}

	if auth.GetBool("is_organizer") {
		return RoleOrganizer
	}

	return RoleCustomer
}

// IsAdmin is a convenience wrapper for handler guards.
func (a *Authorizer) IsAdmin(auth *core.Record) bool {
	return a.ResolveRole(auth) == RoleAdmin
}
