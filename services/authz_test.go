package services

import (
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
)

func authRecord(email string, organizer bool) *core.Record {
	collection := core.NewAuthCollection("users")
	collection.Fields.Add(&core.BoolField{Name: "is_organizer"})

	record := core.NewRecord(collection)
	record.Set("email", email)
	record.Set("is_organizer", organizer)
	return record
}

func TestResolveRole(t *testing.T) {
	authorizer := NewAuthorizer([]string{"Admin@SteppersLife.com"})

	tests := []struct {
		name string
		auth *core.Record
		want Role
	}{
		{"nil auth", nil, RoleCustomer},
		{"plain customer", authRecord("buyer@example.com", false), RoleCustomer},
		{"organizer flag", authRecord("organizer@example.com", true), RoleOrganizer},
		{"admin allowlist", authRecord("admin@stepperslife.com", false), RoleAdmin},
		{"admin beats organizer", authRecord("admin@stepperslife.com", true), RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, authorizer.ResolveRole(tt.auth))
		})
	}
}

func TestIsAdmin(t *testing.T) {
	authorizer := NewAuthorizer([]string{"admin@stepperslife.com"})

	assert.True(t, authorizer.IsAdmin(authRecord("admin@stepperslife.com", false)))
	assert.False(t, authorizer.IsAdmin(authRecord("buyer@example.com", false)))
	assert.False(t, authorizer.IsAdmin(nil))
}
