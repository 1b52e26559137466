package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPHPSerialStringMapRoundTrip(t *testing.T) {
	c := PHPSerial{}
	in := map[string]int64{"blog": 2, "shop": 5}

	data, err := c.EncodeStringMap(in)
	require.NoError(t, err)
	out, err := c.DecodeStringMap(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPHPSerialDecodeLegacyIntValues(t *testing.T) {
	c := PHPSerial{}
	out, err := c.DecodeStringMap([]byte(`a:1:{s:3:"old";i:5;}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"old": 5}, out)
}

func TestPHPSerialDecodeLegacyStringValues(t *testing.T) {
	// Some legacy writers store ids as numeric strings.
	c := PHPSerial{}
	out, err := c.DecodeStringMap([]byte(`a:1:{s:4:"shop";s:1:"7";}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"shop": 7}, out)
}

func TestPHPSerialDecodeEmpty(t *testing.T) {
	c := PHPSerial{}
	m, err := c.DecodeStringMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	l, err := c.DecodeStringList(nil)
	require.NoError(t, err)
	assert.Empty(t, l)
}

func TestPHPSerialStringListRoundTrip(t *testing.T) {
	c := PHPSerial{}
	in := []string{"akismet/akismet.php", "hello.php"}

	data, err := c.EncodeStringList(in)
	require.NoError(t, err)
	out, err := c.DecodeStringList(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPHPSerialEncodeIsDeterministic(t *testing.T) {
	c := PHPSerial{}
	in := map[string]int64{"a": 1, "b": 2, "c": 3}
	first, err := c.EncodeStringMap(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := c.EncodeStringMap(in)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestPHPSerialDecodeRejectsNonNumericValue(t *testing.T) {
	c := PHPSerial{}
	_, err := c.DecodeStringMap([]byte(`a:1:{s:4:"blog";s:3:"abc";}`))
	assert.Error(t, err)
}

func TestJSONRoundTrips(t *testing.T) {
	c := JSON{}
	m := map[string]int64{"blog": 2}
	data, err := c.EncodeStringMap(m)
	require.NoError(t, err)
	out, err := c.DecodeStringMap(data)
	require.NoError(t, err)
	assert.Equal(t, m, out)

	l := []string{"x", "y"}
	data, err = c.EncodeStringList(l)
	require.NoError(t, err)
	outList, err := c.DecodeStringList(data)
	require.NoError(t, err)
	assert.Equal(t, l, outList)
}
