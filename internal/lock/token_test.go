package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	orig := Token{Identity: "replica-0", ObservedAt: time.Unix(0, 1234567890)}
	parsed, err := ParseToken(orig.String())
	require.NoError(t, err)
	assert.Equal(t, orig.Identity, parsed.Identity)
	assert.True(t, orig.ObservedAt.Equal(parsed.ObservedAt))
}

func TestTokenIdentityMayContainSeparatorLookalikes(t *testing.T) {
	// Only the last separator splits; earlier ones belong to the identity.
	tok, err := ParseToken("host|with|pipes|42")
	require.NoError(t, err)
	assert.Equal(t, "host|with|pipes", tok.Identity)
	assert.Equal(t, int64(42), tok.ObservedAt.UnixNano())
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "noseparator", "|123", "host|notanumber"} {
		_, err := ParseToken(value)
		assert.Error(t, err, "value %q", value)
	}
}

func TestDefaultIdentityIsStable(t *testing.T) {
	a := DefaultIdentity()
	b := DefaultIdentity()
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.NotContains(t, a, tokenSep)
}
