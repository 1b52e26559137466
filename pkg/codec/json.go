package codec

import (
	"encoding/json"
	"fmt"
)

// JSON encodes values this job owns itself, where no legacy reader exists.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) EncodeStringMap(m map[string]int64) ([]byte, error) {
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding string map: %w", err)
	}
	return out, nil
}

func (JSON) DecodeStringMap(data []byte) (map[string]int64, error) {
	result := map[string]int64{}
	if len(data) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding string map: %w", err)
	}
	return result, nil
}

func (JSON) EncodeStringList(items []string) ([]byte, error) {
	out, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encoding string list: %w", err)
	}
	return out, nil
}

func (JSON) DecodeStringList(data []byte) ([]string, error) {
	result := []string{}
	if len(data) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding string list: %w", err)
	}
	return result, nil
}
