package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ID represents a unique identifier for accounts, auctions and descriptors
type ID [32]byte

// Empty is the zero ID
var Empty = ID{}

// NewID derives an ID by hashing the given byte slices with BLAKE2b-256
func NewID(data ...[]byte) ID {
	h, _ := blake2b.New256(nil)
	for _, d := range data {
		h.Write(d)
	}
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// GenerateTestID creates a random ID for testing
func GenerateTestID() ID {
	var id ID
	rand.Read(id[:])
	return id
}

// String returns the hex representation of the ID
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the byte representation of the ID
func (id ID) Bytes() []byte {
	return id[:]
}

// IsZero returns true if the ID is the zero value
func (id ID) IsZero() bool {
	return id == Empty
}

// MarshalText implements encoding.TextMarshaler so IDs render as hex in
// JSON bodies and map keys
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// FromString creates an ID from a hex string
func FromString(s string) (ID, error) {
	var id ID
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(bytes) != 32 {
		return id, fmt.Errorf("invalid ID length: expected 32, got %d", len(bytes))
	}
	copy(id[:], bytes)
	return id, nil
}

// FromBytes creates an ID from a byte slice
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != 32 {
		return id, fmt.Errorf("invalid ID length: expected 32, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}
