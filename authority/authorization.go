package authority

import (
	"crypto/subtle"
	"strings"

	"github.com/Messer4/base58check"
	"github.com/btcsuite/btcutil/base58"
	"github.com/pkg/errors"

	"rankclaim/util"
)

const (
	TOKEN_VERSION = 0x01

	invokeSignedMarker = "rankclaim/invoke-signed"
)

var (
	ErrInvalidAuthorization = errors.New("Invalid program authorization")
)

// Authorization lets a program-derived address act as the signer of exactly
// one operation. The token can only be produced by Program.Authorize; callers
// outside this package can carry an Authorization but not build one.
type Authorization struct {
	Address Address
	Seeds   [][]byte
	Bump    uint8
	Nonce   uint64

	token []byte
}

// Token returns the base58check form of the capability token
func (a *Authorization) Token() string {
	if a == nil || len(a.token) == 0 {
		return ""
	}
	return base58.CheckEncode(a.token, TOKEN_VERSION)
}

// Authorize derives the program address for seeds and binds it to the operation
// digest and nonce. The nonce must be the next unused nonce for the address;
// the verifier rejects anything else.
func (p *Program) Authorize(digest []byte, nonce uint64, seeds ...[]byte) (*Authorization, error) {

	addr, bump, err := p.FindProgramAddress(seeds...)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to derive signing address")
	}

	token, err := p.capabilityToken(addr, nonce, digest)
	if err != nil {
		return nil, err
	}

	copied := make([][]byte, len(seeds))
	for i := range seeds {
		copied[i] = append([]byte{}, seeds[i]...)
	}

	return &Authorization{
		Address: addr,
		Seeds:   copied,
		Bump:    bump,
		Nonce:   nonce,
		token:   token,
	}, nil
}

// Verify checks that auth was produced by this program for the given digest.
// Nonce ordering is the caller's concern.
func (p *Program) Verify(auth *Authorization, digest []byte) error {

	if auth == nil || len(auth.token) == 0 {
		return errors.Wrap(ErrInvalidAuthorization, "missing authorization")
	}

	// Re-derive; the address must come from these seeds under this program
	addr, err := p.CreateProgramAddress(auth.Seeds, auth.Bump)
	if err != nil {
		return errors.Wrap(ErrInvalidAuthorization, err.Error())
	}
	if !addr.Equal(auth.Address) {
		return errors.Wrap(ErrInvalidAuthorization, "address does not match seeds")
	}

	expected, err := p.capabilityToken(auth.Address, auth.Nonce, digest)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(expected, auth.token) != 1 {
		return errors.Wrap(ErrInvalidAuthorization, "token does not match operation")
	}

	return nil
}

func (p *Program) capabilityToken(addr Address, nonce uint64, digest []byte) ([]byte, error) {

	token, err := util.CryptoKeyedHash(p.id[:], []byte(invokeSignedMarker), addr[:], util.AmountBytes(nonce), digest)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to compute capability token")
	}

	return token, nil
}

// DecodeToken returns the raw capability token from its base58check form
func DecodeToken(encoded string) ([]byte, error) {

	// base58check slices off a 4 byte checksum without a length check;
	// six significant digits always decode to more than that
	if len(strings.TrimLeft(encoded, "1")) < 6 {
		return nil, errors.New("token too short")
	}

	decBytes, err := base58check.Decode(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode token")
	}

	// sanity; first byte is the version
	if len(decBytes) < 2 || decBytes[0] != TOKEN_VERSION {
		return nil, errors.New("decoded token has invalid version or length")
	}

	return decBytes[1:], nil
}
