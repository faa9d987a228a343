package database

import "encoding/json"

// marshalJSONB encodes v for storage in a JSONB column, normalizing a nil
// map to an empty JSON object so callers never have to special-case NULL.
func marshalJSONB(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// unmarshalJSONBMap decodes a JSONB column into a string-keyed map, treating
// NULL/empty as an empty (non-nil) map.
func unmarshalJSONBMap(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
