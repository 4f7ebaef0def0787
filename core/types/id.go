package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ID is an opaque 128-bit unsigned identifier used for accounts, pools and
// markets. The zero value is a valid identifier but is rejected by the
// operations that create entities.
type ID struct {
	v uint256.Int
}

// NewID returns an identifier holding v.
func NewID(v uint64) ID {
	var id ID
	id.v.SetUint64(v)
	return id
}

// ParseID parses a decimal or 0x-prefixed hexadecimal identifier.
func ParseID(s string) (ID, error) {
	var id ID
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return id, fmt.Errorf("id: empty value")
	}
	var err error
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		err = id.v.SetFromHex(trimmed)
	} else {
		err = id.v.SetFromDecimal(trimmed)
	}
	if err != nil {
		return ID{}, fmt.Errorf("id: parse %q: %w", trimmed, err)
	}
	if id.v.BitLen() > 128 {
		return ID{}, fmt.Errorf("id: %q exceeds 128 bits", trimmed)
	}
	return id, nil
}

// IsZero reports whether the identifier is zero.
func (id ID) IsZero() bool { return id.v.IsZero() }

// Uint64 returns the low 64 bits of the identifier.
func (id ID) Uint64() uint64 { return id.v.Uint64() }

// Next returns id+1.
func (id ID) Next() ID {
	var out ID
	out.v.AddUint64(&id.v, 1)
	return out
}

// Cmp compares two identifiers.
func (id ID) Cmp(other ID) int { return id.v.Cmp(&other.v) }

// Bytes returns the 16-byte big-endian encoding.
func (id ID) Bytes() []byte {
	full := id.v.Bytes32()
	out := make([]byte, 16)
	copy(out, full[16:])
	return out
}

// String renders the identifier in decimal.
func (id ID) String() string { return id.v.Dec() }

// MarshalJSON encodes the identifier as a decimal string.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts decimal or hex strings as well as bare numbers.
func (id *ID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	parsed, err := ParseID(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalText lets identifiers be used as JSON map keys.
func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText is the inverse of MarshalText.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
