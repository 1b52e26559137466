package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// tokenSep separates the holder identity from the embedded timestamp in the
// stored lock value. Identities must not contain it.
const tokenSep = "|"

// Token is the stored proof of ownership: which instance claimed the lock
// and when its liveness was last observed. The heartbeat rewrites the
// timestamp half; the identity half only changes on takeover.
type Token struct {
	Identity   string
	ObservedAt time.Time
}

// String renders the wire form written to the lock row.
func (t Token) String() string {
	return t.Identity + tokenSep + strconv.FormatInt(t.ObservedAt.UnixNano(), 10)
}

// ParseToken parses a stored lock value. A value that does not parse belongs
// to no live protocol participant; callers treat it as stale.
func ParseToken(value string) (Token, error) {
	idx := strings.LastIndex(value, tokenSep)
	if idx <= 0 {
		return Token{}, fmt.Errorf("malformed lock value %q", value)
	}
	nanos, err := strconv.ParseInt(value[idx+1:], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("malformed lock timestamp in %q: %w", value, err)
	}
	return Token{Identity: value[:idx], ObservedAt: time.Unix(0, nanos)}, nil
}

// DefaultIdentity derives a stable identity for this instance: the hostname
// (the pod name, stable across a container restart) with a random fallback.
func DefaultIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "instance-" + uuid.NewString()
	}
	return strings.ReplaceAll(host, tokenSep, "_")
}
