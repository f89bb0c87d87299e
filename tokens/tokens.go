package tokens

import (
	"encoding/json"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"rankclaim/authority"
	"rankclaim/storage"
	"rankclaim/util"
)

const (
	associatedAccountMarker = "rankclaim/associated-account"

	transferOp = "transfer"
	mintToOp   = "mint-to"
)

var (
	ErrInsufficientFunds = errors.New("Insufficient funds")
	ErrAccountNotFound   = errors.New("Account not found")
	ErrMintNotFound      = errors.New("Mint not found")
	ErrMintExists        = errors.New("Mint already exists")
	ErrMintClosed        = errors.New("Mint authority is closed")
	ErrMintMismatch      = errors.New("Account holds a different mint")
	ErrOwnerMismatch     = errors.New("Authority does not own account")
	ErrNonceMismatch     = errors.New("Authorization nonce is not the next nonce")
	ErrInvalidAmount     = errors.New("Amount must be positive")
	ErrOverflow          = errors.New("Balance overflow")
	ErrSelfTransfer      = errors.New("Source and destination are the same account")
)

// Account holds a balance of a single mint for one owner
type Account struct {
	Address authority.Address `json:"a"`
	Owner   authority.Address `json:"o"`
	Mint    authority.Address `json:"m"`
	Balance uint64            `json:"b"`
}

// Mint describes an asset. A zero Authority means no more units can be minted.
type Mint struct {
	Address   authority.Address `json:"a"`
	Authority authority.Address `json:"au"`
	Supply    uint64            `json:"s"`
}

// Ledger is the asset-transfer primitive. Every method works inside a caller
// supplied bbolt transaction so that several operations commit or roll back together.
type Ledger struct {
	program *authority.Program
}

func NewLedger(p *authority.Program) *Ledger {
	return &Ledger{program: p}
}

// AssociatedAddress is the deterministic account address of owner for mint
func AssociatedAddress(owner, mint authority.Address) (authority.Address, error) {

	hash, err := util.CryptoKeyedHash(nil, []byte(associatedAccountMarker), owner[:], mint[:])
	if err != nil {
		return authority.Address{}, errors.Wrap(err, "Unable to derive associated address")
	}

	return authority.AddressFromBytes(hash)
}

// TransferDigest identifies a transfer for authorization purposes
func TransferDigest(from, to authority.Address, amount uint64) ([]byte, error) {
	return util.CryptoKeyedHash(nil, []byte(transferOp), from[:], to[:], util.AmountBytes(amount))
}

// MintToDigest identifies a mint-to for authorization purposes
func MintToDigest(mint, to authority.Address, amount uint64) ([]byte, error) {
	return util.CryptoKeyedHash(nil, []byte(mintToOp), mint[:], to[:], util.AmountBytes(amount))
}

func (l *Ledger) GetAccount(tx *bolt.Tx, addr authority.Address) (*Account, error) {

	b := tx.Bucket([]byte(storage.ACCOUNTS_BUCKET))
	if b == nil {
		return nil, errors.New("Unable to locate accounts bucket")
	}

	accountBytes := b.Get(addr[:])
	if accountBytes == nil {
		return nil, errors.Wrapf(ErrAccountNotFound, "%s", addr)
	}

	var acct Account
	if err := json.Unmarshal(accountBytes, &acct); err != nil {
		return nil, errors.Wrap(err, "Unable to decode account")
	}

	return &acct, nil
}

func (l *Ledger) putAccount(tx *bolt.Tx, acct *Account) error {

	accountBytes, err := json.Marshal(acct)
	if err != nil {
		return errors.Wrap(err, "Unable to encode account")
	}

	return tx.Bucket([]byte(storage.ACCOUNTS_BUCKET)).Put(acct.Address[:], accountBytes)
}

// EnsureAccount returns the associated account of owner for mint, creating an
// empty one if absent. The boolean reports whether it was created.
func (l *Ledger) EnsureAccount(tx *bolt.Tx, owner, mint authority.Address) (*Account, bool, error) {

	addr, err := AssociatedAddress(owner, mint)
	if err != nil {
		return nil, false, err
	}

	acct, err := l.GetAccount(tx, addr)
	switch {
	case err == nil:
		if !acct.Mint.Equal(mint) {
			return nil, false, ErrMintMismatch
		}
		return acct, false, nil
	case !errors.Is(err, ErrAccountNotFound):
		return nil, false, err
	}

	acct = &Account{
		Address: addr,
		Owner:   owner,
		Mint:    mint,
	}
	if err := l.putAccount(tx, acct); err != nil {
		return nil, false, errors.Wrap(err, "Unable to create account")
	}

	log.WithFields(log.Fields{
		"Account": addr, "Owner": owner, "Mint": mint,
	}).Debug("Created associated account")

	return acct, true, nil
}

// NextNonce returns the nonce the next authorization for addr must carry
func (l *Ledger) NextNonce(tx *bolt.Tx, addr authority.Address) uint64 {
	return storage.Btoi(tx.Bucket([]byte(storage.AUTHORITY_BUCKET)).Get(addr[:])) + 1
}

// consumeAuthorization verifies auth for digest and burns its nonce
func (l *Ledger) consumeAuthorization(tx *bolt.Tx, auth *authority.Authorization, digest []byte) error {

	if err := l.program.Verify(auth, digest); err != nil {
		return err
	}

	if auth.Nonce != l.NextNonce(tx, auth.Address) {
		return ErrNonceMismatch
	}

	return tx.Bucket([]byte(storage.AUTHORITY_BUCKET)).Put(auth.Address[:], storage.Itob(auth.Nonce))
}

// Transfer moves amount from one account to another. The source account must be
// owned by the authorization's program address.
func (l *Ledger) Transfer(tx *bolt.Tx, from, to authority.Address, amount uint64, auth *authority.Authorization) error {

	if amount == 0 {
		return ErrInvalidAmount
	}

	if from.Equal(to) {
		return ErrSelfTransfer
	}

	digest, err := TransferDigest(from, to, amount)
	if err != nil {
		return err
	}

	if err := l.consumeAuthorization(tx, auth, digest); err != nil {
		return errors.Wrap(err, "Transfer not authorized")
	}

	src, err := l.GetAccount(tx, from)
	if err != nil {
		return err
	}

	dst, err := l.GetAccount(tx, to)
	if err != nil {
		return err
	}

	if !src.Owner.Equal(auth.Address) {
		return ErrOwnerMismatch
	}

	if !src.Mint.Equal(dst.Mint) {
		return ErrMintMismatch
	}

	if src.Balance < amount {
		return errors.Wrapf(ErrInsufficientFunds, "balance %d, need %d", src.Balance, amount)
	}

	if dst.Balance+amount < dst.Balance {
		return ErrOverflow
	}

	src.Balance -= amount
	dst.Balance += amount

	if err := l.putAccount(tx, src); err != nil {
		return err
	}

	return l.putAccount(tx, dst)
}

func (l *Ledger) GetMint(tx *bolt.Tx, addr authority.Address) (*Mint, error) {

	mintBytes := tx.Bucket([]byte(storage.MINTS_BUCKET)).Get(addr[:])
	if mintBytes == nil {
		return nil, errors.Wrapf(ErrMintNotFound, "%s", addr)
	}

	var m Mint
	if err := json.Unmarshal(mintBytes, &m); err != nil {
		return nil, errors.Wrap(err, "Unable to decode mint")
	}

	return &m, nil
}

func (l *Ledger) putMint(tx *bolt.Tx, m *Mint) error {

	mintBytes, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "Unable to encode mint")
	}

	return tx.Bucket([]byte(storage.MINTS_BUCKET)).Put(m.Address[:], mintBytes)
}

// CreateMint registers a new mint controlled by mintAuthority. Fails if the
// address was ever used as a mint.
func (l *Ledger) CreateMint(tx *bolt.Tx, addr, mintAuthority authority.Address) (*Mint, error) {

	if _, err := l.GetMint(tx, addr); err == nil {
		return nil, errors.Wrapf(ErrMintExists, "%s", addr)
	} else if !errors.Is(err, ErrMintNotFound) {
		return nil, err
	}

	m := &Mint{Address: addr, Authority: mintAuthority}
	if err := l.putMint(tx, m); err != nil {
		return nil, err
	}

	return m, nil
}

// MintTo issues amount new units of mint into the account at to
func (l *Ledger) MintTo(tx *bolt.Tx, mint, to authority.Address, amount uint64, auth *authority.Authorization) error {

	if amount == 0 {
		return ErrInvalidAmount
	}

	digest, err := MintToDigest(mint, to, amount)
	if err != nil {
		return err
	}

	if err := l.consumeAuthorization(tx, auth, digest); err != nil {
		return errors.Wrap(err, "Mint not authorized")
	}

	m, err := l.GetMint(tx, mint)
	if err != nil {
		return err
	}

	if m.Authority.IsZero() {
		return ErrMintClosed
	}

	if !m.Authority.Equal(auth.Address) {
		return ErrOwnerMismatch
	}

	dst, err := l.GetAccount(tx, to)
	if err != nil {
		return err
	}

	if !dst.Mint.Equal(mint) {
		return ErrMintMismatch
	}

	if m.Supply+amount < m.Supply || dst.Balance+amount < dst.Balance {
		return ErrOverflow
	}

	m.Supply += amount
	dst.Balance += amount

	if err := l.putMint(tx, m); err != nil {
		return err
	}

	return l.putAccount(tx, dst)
}

// CloseMint removes the mint authority; the supply is fixed from then on
func (l *Ledger) CloseMint(tx *bolt.Tx, mint authority.Address) error {

	m, err := l.GetMint(tx, mint)
	if err != nil {
		return err
	}

	m.Authority = authority.Address{}

	return l.putMint(tx, m)
}
