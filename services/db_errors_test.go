package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUniqueConstraintErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"guard index conflict", errors.New("constraint failed: UNIQUE constraint failed: issuances.intent (2067)"), true},
		{"ticket code conflict", errors.New("UNIQUE constraint failed: tickets.code"), true},
		{"locked database", errors.New("database is locked (5) (SQLITE_BUSY)"), false},
		{"validation failure", errors.New("quantity: cannot be blank"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueConstraintErr(tt.err))
		})
	}
}
