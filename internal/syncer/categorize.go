package syncer

import "strings"

// Category classifies why the server rejected an event.
type Category string

const (
	CategorySchemaMismatch Category = "schema_mismatch"
	CategoryAuthExpired    Category = "auth_expired"
	CategoryServerError    Category = "server_error"
	CategoryUnknown        Category = "unknown"
)

// categoryKeywords is evaluated in priority order; the first category
// with a matching keyword wins. Order matters: "invalid token" is a
// schema_mismatch by this table ("invalid" outranks "token").
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategorySchemaMismatch, []string{"invalid", "schema", "field", "missing", "type"}},
	{CategoryAuthExpired, []string{"token", "expired", "unauthorized", "401"}},
	{CategoryServerError, []string{"internal", "500", "timeout", "unavailable"}},
}

// CategorizeError maps a server rejection message to a category by
// case-insensitive keyword match, first match wins.
func CategorizeError(message string) Category {
	m := strings.ToLower(message)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(m, kw) {
				return entry.category
			}
		}
	}
	return CategoryUnknown
}
