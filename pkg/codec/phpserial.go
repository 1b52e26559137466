package codec

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/elliotchance/phpserialize"
)

// PHPSerial reads and writes the store's native serialized-array format.
// Legacy writers are inconsistent about numeric types (some store ids as
// integers, some as numeric strings), so decoding accepts both.
type PHPSerial struct{}

func (PHPSerial) Name() string { return "phpserial" }

func (PHPSerial) EncodeStringMap(m map[string]int64) ([]byte, error) {
	// The array is assembled pair by pair in sorted key order: marshalling a
	// Go map directly would serialize in map iteration order, and the value
	// must stay byte-identical across runs for write-back dirty checks.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "a:%d:{", len(m))
	for _, k := range keys {
		kb, err := phpserialize.Marshal(k, nil)
		if err != nil {
			return nil, fmt.Errorf("encoding string map key %q: %w", k, err)
		}
		vb, err := phpserialize.Marshal(m[k], nil)
		if err != nil {
			return nil, fmt.Errorf("encoding string map value for %q: %w", k, err)
		}
		buf.Write(kb)
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (PHPSerial) DecodeStringMap(data []byte) (map[string]int64, error) {
	result := map[string]int64{}
	if len(data) == 0 {
		return result, nil
	}
	arr, err := phpserialize.UnmarshalAssociativeArray(data)
	if err != nil {
		return nil, fmt.Errorf("decoding string map: %w", err)
	}
	for k, v := range arr {
		name, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("decoding string map: non-string key %v", k)
		}
		id, err := coerceInt64(v)
		if err != nil {
			return nil, fmt.Errorf("decoding string map: value for %q: %w", name, err)
		}
		result[name] = id
	}
	return result, nil
}

func (PHPSerial) EncodeStringList(items []string) ([]byte, error) {
	arr := make([]interface{}, len(items))
	for i, s := range items {
		arr[i] = s
	}
	out, err := phpserialize.Marshal(arr, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding string list: %w", err)
	}
	return out, nil
}

func (PHPSerial) DecodeStringList(data []byte) ([]string, error) {
	if len(data) == 0 {
		return []string{}, nil
	}
	arr, err := phpserialize.UnmarshalIndexedArray(data)
	if err != nil {
		return nil, fmt.Errorf("decoding string list: %w", err)
	}
	result := make([]string, 0, len(arr))
	for i, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("decoding string list: element %d is %T, not string", i, v)
		}
		result = append(result, s)
	}
	return result, nil
}

func coerceInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", n)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
