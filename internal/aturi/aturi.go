// Package aturi parses and formats at:// record URIs.
//
// An AT URI addresses a single record: at://{did}/{collection}/{rkey}.
package aturi

import (
	"fmt"
	"strings"
)

const scheme = "at://"

// URI is a parsed AT record URI.
type URI struct {
	DID        string
	Collection string
	Rkey       string
}

// Parse splits an at:// URI into its three components.
// All three segments must be present and non-empty.
func Parse(raw string) (URI, error) {
	if !strings.HasPrefix(raw, scheme) {
		return URI{}, fmt.Errorf("invalid AT URI %q: missing at:// scheme", raw)
	}
	parts := strings.Split(strings.TrimPrefix(raw, scheme), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return URI{}, fmt.Errorf("invalid AT URI %q: want at://did/collection/rkey", raw)
	}
	return URI{DID: parts[0], Collection: parts[1], Rkey: parts[2]}, nil
}

// String formats the URI back to its at:// form.
func (u URI) String() string {
	return scheme + u.DID + "/" + u.Collection + "/" + u.Rkey
}

// Make builds an AT URI string from its components.
func Make(did, collection, rkey string) string {
	return URI{DID: did, Collection: collection, Rkey: rkey}.String()
}

// Rkey returns the final path segment of an AT URI without full parsing.
// Returns an empty string if the URI has no slash-separated segments.
func Rkey(raw string) string {
	idx := strings.LastIndex(raw, "/")
	if idx < 0 || idx == len(raw)-1 {
		return ""
	}
	return raw[idx+1:]
}
