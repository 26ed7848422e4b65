package envelope

import (
	"crypto/rand"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idPattern matches a 26-char Crockford-Base32 ULID.
var idPattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

// idGen serializes access to a monotonic entropy source so IDs minted
// within the same millisecond still sort in emit order.
var idGen = struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}{
	entropy: ulid.Monotonic(rand.Reader, 0),
}

// NewID returns a fresh ULID string. IDs from one process are strictly
// increasing even when minted within one millisecond.
func NewID() string {
	idGen.mu.Lock()
	defer idGen.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idGen.entropy).String()
}

// ValidID reports whether s is a well-formed ULID.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}
