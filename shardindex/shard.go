package shardindex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Shard is the content of one index partition: digest suffix to archive
// snapshot ID (a Wayback timestamp such as "20210101000000").
type Shard map[string]string

// Lookup returns the snapshot ID stored under suffix. Empty IDs count as
// absent.
func (s Shard) Lookup(suffix string) (string, bool) {
	id, ok := s[suffix]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

var errNotObject = errors.New("shard is not a JSON object")

// ParseShard decodes and validates shard content. Anything other than a JSON
// object whose values are all strings is rejected.
func ParseShard(data []byte) (Shard, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}

	shard := make(Shard, len(raw))
	for k, v := range raw {
		var id string
		if err := json.Unmarshal(v, &id); err != nil {
			return nil, fmt.Errorf("key %q: value is not a string", k)
		}
		shard[k] = id
	}
	return shard, nil
}
