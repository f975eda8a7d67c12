package rpc

import (
	"encoding/base32"
	"fmt"
	"strings"
)

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// PrincipalBytes decodes the textual form of a principal, dropping its
// CRC32 prefix.
func PrincipalBytes(text string) ([]byte, error) {
	raw, err := principalEncoding.DecodeString(strings.ToUpper(strings.ReplaceAll(text, "-", "")))
	if err != nil {
		return nil, fmt.Errorf("invalid principal %q: %w", text, err)
	}
	if len(raw) < 4 || len(raw) > 33 {
		return nil, fmt.Errorf("invalid principal %q: bad length", text)
	}
	return raw[4:], nil
}

// PrincipalSubaccount is the 32-byte subaccount a pool reserves for a user's
// deposits: length byte followed by the principal bytes.
func PrincipalSubaccount(text string) ([]byte, error) {
	b, err := PrincipalBytes(text)
	if err != nil {
		return nil, err
	}
	if len(b) > 31 {
		return nil, fmt.Errorf("invalid principal %q: too long for a subaccount", text)
	}
	sub := make([]byte, 32)
	sub[0] = byte(len(b))
	copy(sub[1:], b)
	return sub, nil
}
