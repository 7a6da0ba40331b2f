package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Both binaries run Setup on startup, so every statement has to be safe to
// replay against an already-provisioned database.
func TestSchemaStatementsAreIdempotent(t *testing.T) {
	for _, stmt := range schema {
		idempotent := strings.Contains(stmt, "IF NOT EXISTS") ||
			strings.Contains(stmt, "ON CONFLICT")
		assert.True(t, idempotent, "statement is not replay-safe:\n%s", stmt)
	}
}
