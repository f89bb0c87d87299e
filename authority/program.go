package authority

import (
	"filippo.io/edwards25519"
	"github.com/pkg/errors"

	"rankclaim/util"
)

const (
	MAX_SEEDS       = 16
	MAX_SEED_LENGTH = 32

	// Seeds of the identities this program signs for
	GLOBAL_STATE_SEED    = "global-state"
	FRAGMENT_MINTER_SEED = "fragment-minter"
	METADATA_SEED        = "metadata"
	DAY_STATE_SEED       = "day-state"

	programAddressMarker = "rankclaim/program-derived-address"
)

var (
	ErrMaxSeedLength = errors.New("Length of a seed exceeds the maximum")
	ErrTooManySeeds  = errors.New("Too many seeds")
	ErrOnCurve       = errors.New("Derived address lies on the ed25519 curve")
	ErrNoViableBump  = errors.New("Unable to find a viable program address bump")
	ErrZeroProgramID = errors.New("Program id is not set")
)

// Program is the execution scope that owns program-derived addresses. Its
// addresses are not public keys, so nobody holds a private key for them; the
// program authorizes operations for them instead (see Authorize).
type Program struct {
	id Address
}

func NewProgram(id Address) (*Program, error) {
	if id.IsZero() {
		return nil, ErrZeroProgramID
	}
	return &Program{id: id}, nil
}

func (p *Program) ID() Address {
	return p.id
}

// CreateProgramAddress hashes seeds, bump and program id into an address. It fails
// with ErrOnCurve when the result could be an ed25519 public key.
func (p *Program) CreateProgramAddress(seeds [][]byte, bump uint8) (Address, error) {

	if len(seeds) > MAX_SEEDS {
		return Address{}, ErrTooManySeeds
	}

	parts := make([][]byte, 0, len(seeds)+3)
	for _, seed := range seeds {
		if len(seed) > MAX_SEED_LENGTH {
			return Address{}, ErrMaxSeedLength
		}
		parts = append(parts, seed)
	}
	parts = append(parts, []byte{bump}, p.id[:], []byte(programAddressMarker))

	hash, err := util.CryptoKeyedHash(nil, parts...)
	if err != nil {
		return Address{}, errors.Wrap(err, "Unable to hash program address")
	}

	if IsOnCurve(hash) {
		return Address{}, ErrOnCurve
	}

	return AddressFromBytes(hash)
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address along with its bump
func (p *Program) FindProgramAddress(seeds ...[]byte) (Address, uint8, error) {

	for bump := 255; bump >= 0; bump-- {
		addr, err := p.CreateProgramAddress(seeds, uint8(bump))
		switch {
		case err == nil:
			return addr, uint8(bump), nil
		case errors.Is(err, ErrOnCurve):
			continue
		default:
			return Address{}, 0, err
		}
	}

	return Address{}, 0, ErrNoViableBump
}

// GlobalState is the identity that controls the reward pool
func (p *Program) GlobalState() (Address, uint8, error) {
	return p.FindProgramAddress([]byte(GLOBAL_STATE_SEED))
}

// FragmentMinter is the identity allowed to mint bonus credentials
func (p *Program) FragmentMinter() (Address, uint8, error) {
	return p.FindProgramAddress([]byte(FRAGMENT_MINTER_SEED))
}

// IsOnCurve reports whether b is a valid compressed ed25519 point
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
