package authority

import (
	"bytes"

	"github.com/btcsuite/btcutil/base58"
	"github.com/pkg/errors"
)

const ADDRESS_LENGTH = 32

var (
	ErrInvalidAddress = errors.New("Invalid address")
)

// Address identifies an account, a mint, a participant or a program
type Address [ADDRESS_LENGTH]byte

func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != ADDRESS_LENGTH {
		return a, errors.Wrapf(ErrInvalidAddress, "expected %d bytes, got %d", ADDRESS_LENGTH, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress decodes a base58 address string
func ParseAddress(s string) (Address, error) {
	decoded := base58.Decode(s)
	if len(decoded) == 0 {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "not base58: %q", s)
	}
	return AddressFromBytes(decoded)
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Equal(o Address) bool {
	return bytes.Equal(a[:], o[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
