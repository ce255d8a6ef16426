package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Checksum identifies a published ABI descriptor.
// It is the SHA-256 hash of the descriptor's canonical encoding.
type Checksum [ChecksumLen]byte

func (cs Checksum) String() string {
	return hex.EncodeToString(cs[:])
}

// MarshalJSON implements the json.Marshaler interface for Checksum.
// It converts the checksum to a hex-encoded string.
func (cs Checksum) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(cs[:]))
}

// UnmarshalJSON implements the json.Unmarshaler interface for Checksum.
// It parses a hex-encoded string into a checksum.
func (cs *Checksum) UnmarshalJSON(input []byte) error {
	var hexString string
	err := json.Unmarshal(input, &hexString)
	if err != nil {
		return err
	}
	parsed, err := ParseChecksum(hexString)
	if err != nil {
		return err
	}
	*cs = parsed
	return nil
}

// ChecksumLen is the length of a checksum in bytes.
const ChecksumLen = 32

// ParseChecksum decodes a hex string into a Checksum.
func ParseChecksum(input string) (Checksum, error) {
	data, err := hex.DecodeString(input)
	if err != nil {
		return Checksum{}, fmt.Errorf("invalid checksum hex: %w", err)
	}
	return NewChecksum(data)
}

// Bytes returns the checksum as a byte slice.
func (cs Checksum) Bytes() []byte {
	return cs[:]
}

// NewChecksum creates a new Checksum from a byte slice.
// Returns an error if the slice length is not ChecksumLen.
func NewChecksum(b []byte) (Checksum, error) {
	if len(b) != ChecksumLen {
		return Checksum{}, errors.New("got wrong number of bytes for checksum")
	}
	var cs Checksum
	copy(cs[:], b)
	return cs, nil
}
