package storage

import "encoding/json"

func encodeJSON(v interface{}) ([]byte, error) { return json.Marshal(v) }

func decodeJSON(b []byte, v interface{}) error { return json.Unmarshal(b, v) }
