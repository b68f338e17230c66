package model

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// KeySeparator separates topic levels in storage keys.
const KeySeparator = "/"

// Target identifies where a subscription lives in the storage key space.
// It is implemented by Pattern (hierarchical topic) and ID (opaque subscriber id).
type Target interface {
	// SubscriberKey returns the storage key of the subscription of url under this target.
	SubscriberKey(url string) (string, error)

	// Prefix returns the listing prefix that holds this target's subscriptions.
	Prefix() (string, error)

	// Layers returns every prefix to list for a layered (hierarchical) search,
	// ordered from the most general to the most specific.
	Layers() ([]string, error)
}

var (
	_ Target = Pattern("")
	_ Target = ID("")
)

// Pattern is a dot-delimited hierarchical topic predicate, optionally terminated by
// a ".*" wildcard (e.g. "UN.CEFACT.TRADE.*").
//
// Patterns map onto a prefix-searchable key space: "aaaa.bbbb.cccc.*" becomes the
// key "AAAA/BBBB/CCCC/". Matching is on whole levels, so a subscription to
// "AA.BB.CCCC" receives notifications on "AA.BB.CCCC.EE" but a subscription to
// "AA.BB.CC" does not.
type Pattern string

// Validate checks the predicate syntax.
func (p Pattern) Validate() error {
	s := string(p)
	if s == "" {
		return &ValidationError{Reason: "non-empty predicate is required"}
	}
	if strings.Contains(s, KeySeparator) {
		return &ValidationError{Reason: "predicate should contain dots, not slashes"}
	}
	if strings.HasSuffix(s, "*") && (len(s) < 2 || s[len(s)-2] != '.') {
		return &ValidationError{Reason: "* character is supported only after a dot"}
	}
	if len(p.levels()) == 0 {
		return &ValidationError{Reason: "predicate must contain at least one element"}
	}
	return nil
}

// levels returns the non-empty upper-cased levels left after the trailing
// "." and "*" are stripped.
func (p Pattern) levels() []string {
	s := string(p)
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimSuffix(s, "*")

	parts := strings.Split(strings.ToUpper(s), ".")
	levels := parts[:0]
	for _, part := range parts {
		if part != "" {
			levels = append(levels, part)
		}
	}
	return levels
}

// Key returns the canonical storage prefix of the pattern.
// Trailing "." and "*" are stripped, levels are upper-cased and joined with "/",
// and the result always ends with "/".
func (p Pattern) Key() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	return strings.Join(p.levels(), KeySeparator) + KeySeparator, nil
}

// Layers returns the cumulative key prefixes of the pattern, shortest first.
//
//	Pattern("a.b.c").Layers() // ["A/", "A/B/", "A/B/C/"]
func (p Pattern) Layers() ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	levels := p.levels()
	layers := make([]string, 0, len(levels))
	for i := range levels {
		layers = append(layers, strings.Join(levels[:i+1], KeySeparator)+KeySeparator)
	}
	return layers, nil
}

// Prefix implements Target.
func (p Pattern) Prefix() (string, error) {
	return p.Key()
}

// SubscriberKey implements Target. The key is the pattern key followed by the
// digest of the callback URL, so many subscribers can share one topic level.
func (p Pattern) SubscriberKey(url string) (string, error) {
	key, err := p.Key()
	if err != nil {
		return "", err
	}
	return key + URLDigest(url), nil
}

// String returns the raw predicate.
func (p Pattern) String() string {
	return string(p)
}

// ID is an externally assigned subscriber id. Its storage key is the id itself
// and it holds exactly one subscription.
type ID string

// SubscriberKey implements Target; the url does not contribute to the key.
func (id ID) SubscriberKey(_ string) (string, error) {
	return id.Prefix()
}

// Prefix implements Target.
func (id ID) Prefix() (string, error) {
	if id == "" {
		return "", &ValidationError{Reason: "non-empty id is required"}
	}
	return string(id), nil
}

// Layers implements Target. An id has a single layer.
func (id ID) Layers() ([]string, error) {
	prefix, err := id.Prefix()
	if err != nil {
		return nil, err
	}
	return []string{prefix}, nil
}

// URLDigest returns the fixed-width hex MD5 digest of a callback URL.
func URLDigest(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// IsDirectChild reports whether key sits directly under prefix, i.e. the part of
// key after prefix contains no further separator. Object stores list recursively
// by prefix, so every adapter filters its listing with this.
//
// A prefix without a trailing separator is an ID key and matches only itself.
func IsDirectChild(prefix, key string) bool {
	if !strings.HasSuffix(prefix, KeySeparator) {
		return key == prefix
	}
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return false
	}
	return !strings.Contains(key[len(prefix):], KeySeparator)
}

// IsWildcard reports whether the predicate ends with the ".*" wildcard.
func (p Pattern) IsWildcard() bool {
	return strings.HasSuffix(string(p), ".*")
}

// SearchPrefixes returns the listing prefixes of a search on target: every
// layer when layered is set, otherwise only the target prefix.
func SearchPrefixes(target Target, layered bool) ([]string, error) {
	if layered {
		return target.Layers()
	}
	prefix, err := target.Prefix()
	if err != nil {
		return nil, err
	}
	return []string{prefix}, nil
}
