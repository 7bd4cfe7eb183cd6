// Package fingerprint maps candidate URLs to the fixed-length digests used
// as keys by the sharded archive index.
//
// The digest is SHA-1 over the exact UTF-8 bytes of the text, rendered as 40
// lowercase hex characters. The offline index builder hashes URLs the same
// way; changing the algorithm or the input encoding invalidates every
// deployed shard. SHA-1 is used as a partitioning key, not for integrity.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
)

// PrefixLen is the number of hex characters that select a shard.
// Two characters give 256 shards.
const PrefixLen = 2

// Size is the length of a Digest in hex characters.
const Size = sha1.Size * 2

// Digest is the lowercase hex fingerprint of a candidate URL.
type Digest string

// Of returns the digest of text. No normalisation is applied: scheme, case
// and trailing slashes are all significant.
func Of(text string) Digest {
	sum := sha1.Sum([]byte(text))
	return Digest(hex.EncodeToString(sum[:]))
}

// Prefix returns the shard selector, the first PrefixLen characters.
func (d Digest) Prefix() string {
	if len(d) < PrefixLen {
		return string(d)
	}
	return string(d[:PrefixLen])
}

// Suffix returns the lookup key inside the shard.
func (d Digest) Suffix() string {
	if len(d) < PrefixLen {
		return ""
	}
	return string(d[PrefixLen:])
}

// Split returns Prefix and Suffix. Prefix+Suffix always equals d.
func (d Digest) Split() (prefix, suffix string) {
	return d.Prefix(), d.Suffix()
}

// Valid reports whether d has the expected length and alphabet.
func (d Digest) Valid() bool {
	if len(d) != Size {
		return false
	}
	for i := 0; i < len(d); i++ {
		c := d[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func (d Digest) String() string { return string(d) }

// ValidPrefix reports whether p could name a shard.
func ValidPrefix(p string) bool {
	if len(p) != PrefixLen {
		return false
	}
	for i := 0; i < len(p); i++ {
		c := p[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
