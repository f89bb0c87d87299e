package bonus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"rankclaim/authority"
	"rankclaim/storage"
	"rankclaim/tokens"
	"rankclaim/util"
)

const (
	CATEGORY_TOP_DAILY    = "day-rank-top"
	TOP_DAILY_FRAGMENT_ID = 8

	// Every credential is unique
	CREDENTIAL_SUPPLY = 1

	freshMintMarker = "rankclaim/fragment-mint"
)

var (
	ErrMissingContext    = errors.New("No bonus context supplied")
	ErrIncompleteContext = errors.New("Bonus context is missing a collaborator")
	ErrWrongMinter       = errors.New("Minting authority is not the fragment minter")
	ErrWrongReceiver     = errors.New("Receiving account is not the recipient's account for the mint")
	ErrWrongMetadata     = errors.New("Metadata target does not belong to the mint")
	ErrMintUsed          = errors.New("Bonus mint was already used")
	ErrUnknownCategory   = errors.New("Unknown credential category")
)

// Context is the set of collaborators a top-tier claim needs to issue a
// credential. Callers build it with NewContext or supply each address explicitly.
type Context struct {
	Mint             authority.Address `json:"mint"`
	ReceivingAccount authority.Address `json:"receivingAccount"`
	MetadataTarget   authority.Address `json:"metadataTarget"`
	MintingAuthority authority.Address `json:"mintingAuthority"`
}

// IssueRequest asks an Issuer for one credential
type IssueRequest struct {
	Day        uint64
	Recipient  authority.Address
	Treasury   authority.Address // identity funding the claim, recorded on the credential
	Context    *Context
	Category   string
	FragmentID uint8
}

// Credential is the record of an issued bonus
type Credential struct {
	ID             string            `json:"id"`
	Mint           authority.Address `json:"mint"`
	Recipient      authority.Address `json:"recipient"`
	HoldingAccount authority.Address `json:"account"`
	MetadataTarget authority.Address `json:"metadata"`
	Treasury       authority.Address `json:"treasury"`
	Category       string            `json:"category"`
	FragmentID     uint8             `json:"fragment"`
	Day            uint64            `json:"day"`
	Supply         uint64            `json:"supply"`
	IssuedAt       time.Time         `json:"issuedAt"`

	// Base58check capability token that authorized the fragment mint
	Authorization string `json:"authorization"`
}

// Issuer creates a bonus credential inside the caller's transaction. An error
// must leave the caller free to roll back everything.
type Issuer interface {
	Issue(tx *bolt.Tx, req IssueRequest) (*Credential, error)
}

// MetadataAddress is the program address holding metadata for a mint
func MetadataAddress(p *authority.Program, mint authority.Address) (authority.Address, error) {
	addr, _, err := p.FindProgramAddress([]byte(authority.METADATA_SEED), mint[:])
	return addr, err
}

// NewContext builds a complete context for recipient around a fresh, never used mint
func NewContext(p *authority.Program, recipient authority.Address) (*Context, error) {

	id := uuid.New()

	mintBytes, err := util.CryptoKeyedHash(nil, []byte(freshMintMarker), id[:], recipient[:])
	if err != nil {
		return nil, errors.Wrap(err, "Unable to derive bonus mint")
	}

	mint, err := authority.AddressFromBytes(mintBytes)
	if err != nil {
		return nil, err
	}

	receiving, err := tokens.AssociatedAddress(recipient, mint)
	if err != nil {
		return nil, err
	}

	metadata, err := MetadataAddress(p, mint)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to derive metadata target")
	}

	minter, _, err := p.FragmentMinter()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to derive fragment minter")
	}

	return &Context{
		Mint:             mint,
		ReceivingAccount: receiving,
		MetadataTarget:   metadata,
		MintingAuthority: minter,
	}, nil
}

// Validate checks every collaborator against what the program expects for recipient
func (c *Context) Validate(p *authority.Program, recipient authority.Address) error {

	if c == nil {
		return ErrMissingContext
	}

	if c.Mint.IsZero() || c.ReceivingAccount.IsZero() || c.MetadataTarget.IsZero() || c.MintingAuthority.IsZero() {
		return ErrIncompleteContext
	}

	minter, _, err := p.FragmentMinter()
	if err != nil {
		return err
	}
	if !c.MintingAuthority.Equal(minter) {
		return ErrWrongMinter
	}

	receiving, err := tokens.AssociatedAddress(recipient, c.Mint)
	if err != nil {
		return err
	}
	if !c.ReceivingAccount.Equal(receiving) {
		return ErrWrongReceiver
	}

	metadata, err := MetadataAddress(p, c.Mint)
	if err != nil {
		return err
	}
	if !c.MetadataTarget.Equal(metadata) {
		return ErrWrongMetadata
	}

	return nil
}

// FragmentMinter issues credentials as single-unit mints whose authority is
// closed right after the unit is minted
type FragmentMinter struct {
	program *authority.Program
	ledger  *tokens.Ledger
}

func NewFragmentMinter(p *authority.Program, l *tokens.Ledger) *FragmentMinter {
	return &FragmentMinter{
		program: p,
		ledger:  l,
	}
}

func (f *FragmentMinter) Issue(tx *bolt.Tx, req IssueRequest) (*Credential, error) {

	if req.Category != CATEGORY_TOP_DAILY {
		return nil, errors.Wrapf(ErrUnknownCategory, "%q", req.Category)
	}

	if err := req.Context.Validate(f.program, req.Recipient); err != nil {
		return nil, err
	}
	bctx := req.Context

	if _, err := f.ledger.CreateMint(tx, bctx.Mint, bctx.MintingAuthority); err != nil {
		if errors.Is(err, tokens.ErrMintExists) {
			return nil, errors.Wrapf(ErrMintUsed, "%s", bctx.Mint)
		}
		return nil, errors.Wrap(err, "Unable to create bonus mint")
	}

	acct, _, err := f.ledger.EnsureAccount(tx, req.Recipient, bctx.Mint)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create receiving account")
	}

	digest, err := tokens.MintToDigest(bctx.Mint, acct.Address, CREDENTIAL_SUPPLY)
	if err != nil {
		return nil, err
	}

	auth, err := f.program.Authorize(digest, f.ledger.NextNonce(tx, bctx.MintingAuthority), []byte(authority.FRAGMENT_MINTER_SEED))
	if err != nil {
		return nil, errors.Wrap(err, "Unable to authorize fragment mint")
	}

	if err := f.ledger.MintTo(tx, bctx.Mint, acct.Address, CREDENTIAL_SUPPLY, auth); err != nil {
		return nil, errors.Wrap(err, "Unable to mint fragment")
	}

	if err := f.ledger.CloseMint(tx, bctx.Mint); err != nil {
		return nil, errors.Wrap(err, "Unable to close fragment mint")
	}

	cred := &Credential{
		ID:             uuid.NewString(),
		Mint:           bctx.Mint,
		Recipient:      req.Recipient,
		HoldingAccount: acct.Address,
		MetadataTarget: bctx.MetadataTarget,
		Treasury:       req.Treasury,
		Category:       req.Category,
		FragmentID:     req.FragmentID,
		Day:            req.Day,
		Supply:         CREDENTIAL_SUPPLY,
		IssuedAt:       time.Now().UTC(),
		Authorization:  auth.Token(),
	}

	if err := putCredential(tx, cred); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"ID": cred.ID, "Mint": cred.Mint, "Recipient": cred.Recipient,
		"Day": cred.Day, "Fragment": cred.FragmentID, "Authorization": cred.Authorization,
	}).Info("Issued bonus credential")

	return cred, nil
}

func putCredential(tx *bolt.Tx, cred *Credential) error {

	b := tx.Bucket([]byte(storage.BONUS_BUCKET))
	if b == nil {
		return errors.New("Unable to locate bonus bucket")
	}

	credBytes, err := json.Marshal(cred)
	if err != nil {
		return errors.Wrap(err, "Unable to encode credential")
	}

	return b.Put([]byte(cred.ID), credBytes)
}

// ListCredentials returns every credential held by recipient
func ListCredentials(tx *bolt.Tx, recipient authority.Address) ([]Credential, error) {

	b := tx.Bucket([]byte(storage.BONUS_BUCKET))
	if b == nil {
		return nil, errors.New("Unable to locate bonus bucket")
	}

	creds := make([]Credential, 0)

	err := b.ForEach(func(k, v []byte) error {
		var cred Credential
		if err := json.Unmarshal(v, &cred); err != nil {
			return errors.Wrapf(err, "Unable to decode credential %s", k)
		}
		if cred.Recipient.Equal(recipient) {
			creds = append(creds, cred)
		}
		return nil
	})

	return creds, err
}
