package capability

import "encoding/json"

// EncodeJSON implements the json.encode convenience helper exposed to
// the scripting backend.
func EncodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeJSON implements json.decode into a generic map/slice shape,
// the form the scripting backend's table conversion expects.
func DecodeJSON(data string) (any, error) {
	var out any
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, err
	}
	return out, nil
}
