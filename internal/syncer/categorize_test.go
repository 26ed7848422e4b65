package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		message string
		want    Category
	}{
		{"missing required field error_type", CategorySchemaMismatch},
		{"Invalid payload schema", CategorySchemaMismatch},
		{"value has wrong type", CategorySchemaMismatch},
		{"access token expired", CategoryAuthExpired},
		{"Unauthorized", CategoryAuthExpired},
		{"HTTP 401", CategoryAuthExpired},
		{"internal server error", CategoryServerError},
		{"upstream timeout", CategoryServerError},
		{"service unavailable", CategoryServerError},
		{"HTTP 500", CategoryServerError},
		{"quota exceeded", CategoryUnknown},
		{"", CategoryUnknown},
		// Priority: schema keywords outrank auth keywords.
		{"invalid token", CategorySchemaMismatch},
		// Case-insensitive.
		{"MISSING FIELD", CategorySchemaMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeError(tt.message))
		})
	}
}
