package codec

// Codec translates between plain collections and one on-store value encoding.
// The configuration store predates this job and holds values written by
// several generations of tooling; each legacy format gets one implementation
// so the rest of the engine only ever sees ordered Go collections.
type Codec interface {
	// Name identifies the encoding in logs.
	Name() string

	// EncodeStringMap serializes a name -> numeric id map.
	EncodeStringMap(m map[string]int64) ([]byte, error)

	// DecodeStringMap parses a serialized name -> numeric id map. An empty
	// input decodes to an empty map.
	DecodeStringMap(data []byte) (map[string]int64, error)

	// EncodeStringList serializes an ordered list of strings.
	EncodeStringList(items []string) ([]byte, error)

	// DecodeStringList parses a serialized ordered list of strings. An empty
	// input decodes to an empty list.
	DecodeStringList(data []byte) ([]string, error)
}
