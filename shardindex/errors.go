package shardindex

import (
	"errors"
	"fmt"
)

// ErrLookupMiss is returned when a shard parsed fine but does not hold the
// suffix, or holds it with an empty snapshot ID.
var ErrLookupMiss = errors.New("shardindex: suffix not in shard")

// ErrBadPrefix is returned when a shard is requested for a malformed prefix.
var ErrBadPrefix = errors.New("shardindex: invalid shard prefix")

// FetchError means the shard resource could not be retrieved: transport
// failure, non-OK status, missing file.
type FetchError struct {
	Address string
	Status  int // HTTP status when there was a response, 0 otherwise
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("shardindex: fetch %s: status %d", e.Address, e.Status)
	}
	return fmt.Sprintf("shardindex: fetch %s: %v", e.Address, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ParseError means the shard resource was retrieved but is not a JSON object
// of string to string.
type ParseError struct {
	Address string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("shardindex: parse %s: %v", e.Address, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Kind names the failure class of err for logs and history rows:
// "fetch", "parse", "miss", or "" for nil.
func Kind(err error) string {
	var fe *FetchError
	var pe *ParseError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLookupMiss):
		return "miss"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &fe):
		return "fetch"
	default:
		return "fetch"
	}
}
