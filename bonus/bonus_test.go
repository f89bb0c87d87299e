package bonus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"rankclaim/authority"
	"rankclaim/storage"
	"rankclaim/tokens"
	"rankclaim/util"
)

func testAddress(t *testing.T, name string) authority.Address {
	t.Helper()
	h, err := util.CryptoGenericHash([]byte(name), nil)
	require.NoError(t, err)
	a, err := authority.AddressFromBytes(h)
	require.NoError(t, err)
	return a
}

func setup(t *testing.T) (*storage.Storage, *authority.Program, *tokens.Ledger, *FragmentMinter) {
	t.Helper()

	db, err := storage.InitStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	p, err := authority.NewProgram(testAddress(t, "bonus-program"))
	require.NoError(t, err)

	l := tokens.NewLedger(p)

	return db, p, l, NewFragmentMinter(p, l)
}

func request(recipient authority.Address, ctx *Context) IssueRequest {
	return IssueRequest{
		Day:        19000,
		Recipient:  recipient,
		Context:    ctx,
		Category:   CATEGORY_TOP_DAILY,
		FragmentID: TOP_DAILY_FRAGMENT_ID,
	}
}

func TestNewContextIsValidAndFresh(t *testing.T) {

	_, p, _, _ := setup(t)
	winner := testAddress(t, "winner")

	a, err := NewContext(p, winner)
	require.NoError(t, err)
	require.NoError(t, a.Validate(p, winner))

	b, err := NewContext(p, winner)
	require.NoError(t, err)
	assert.NotEqual(t, a.Mint, b.Mint)

	minter, _, err := p.FragmentMinter()
	require.NoError(t, err)
	assert.Equal(t, minter, a.MintingAuthority)

	// Context is tied to its recipient
	assert.ErrorIs(t, a.Validate(p, testAddress(t, "someone-else")), ErrWrongReceiver)
}

func TestValidateRejectsBadContexts(t *testing.T) {

	_, p, _, _ := setup(t)
	winner := testAddress(t, "winner")

	good, err := NewContext(p, winner)
	require.NoError(t, err)

	var missing *Context
	assert.ErrorIs(t, missing.Validate(p, winner), ErrMissingContext)

	incomplete := *good
	incomplete.MetadataTarget = authority.Address{}
	assert.ErrorIs(t, incomplete.Validate(p, winner), ErrIncompleteContext)

	wrongMinter := *good
	wrongMinter.MintingAuthority = testAddress(t, "impostor")
	assert.ErrorIs(t, wrongMinter.Validate(p, winner), ErrWrongMinter)

	wrongMetadata := *good
	wrongMetadata.MetadataTarget = testAddress(t, "elsewhere")
	assert.ErrorIs(t, wrongMetadata.Validate(p, winner), ErrWrongMetadata)
}

func TestIssueMintsSingleClosedUnit(t *testing.T) {

	db, p, l, issuer := setup(t)
	winner := testAddress(t, "winner")

	bctx, err := NewContext(p, winner)
	require.NoError(t, err)

	var cred *Credential
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		var err error
		cred, err = issuer.Issue(tx, request(winner, bctx))
		return err
	}))

	assert.NotEmpty(t, cred.ID)
	assert.Equal(t, CATEGORY_TOP_DAILY, cred.Category)
	assert.Equal(t, uint8(TOP_DAILY_FRAGMENT_ID), cred.FragmentID)
	assert.Equal(t, bctx.ReceivingAccount, cred.HoldingAccount)
	assert.Equal(t, uint64(1), cred.Supply)

	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		m, err := l.GetMint(tx, bctx.Mint)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), m.Supply)
		assert.True(t, m.Authority.IsZero(), "mint authority must be closed")

		acct, err := l.GetAccount(tx, bctx.ReceivingAccount)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), acct.Balance)
		assert.Equal(t, winner, acct.Owner)

		creds, err := ListCredentials(tx, winner)
		require.NoError(t, err)
		require.Len(t, creds, 1)
		assert.Equal(t, cred.ID, creds[0].ID)
		assert.Equal(t, cred.Mint, creds[0].Mint)

		others, err := ListCredentials(tx, testAddress(t, "loser"))
		require.NoError(t, err)
		assert.Empty(t, others)

		return nil
	}))
}

func TestIssueRejectsReusedMint(t *testing.T) {

	db, p, _, issuer := setup(t)
	winner := testAddress(t, "winner")

	bctx, err := NewContext(p, winner)
	require.NoError(t, err)

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		_, err := issuer.Issue(tx, request(winner, bctx))
		return err
	}))

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := issuer.Issue(tx, request(winner, bctx))
		return err
	})
	assert.ErrorIs(t, err, ErrMintUsed)
}

func TestIssueRejectsMissingContextAndCategory(t *testing.T) {

	db, p, _, issuer := setup(t)
	winner := testAddress(t, "winner")

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := issuer.Issue(tx, request(winner, nil))
		return err
	})
	assert.ErrorIs(t, err, ErrMissingContext)

	bctx, err := NewContext(p, winner)
	require.NoError(t, err)

	req := request(winner, bctx)
	req.Category = "week-rank-top"
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := issuer.Issue(tx, req)
		return err
	})
	assert.ErrorIs(t, err, ErrUnknownCategory)

	// Nothing was recorded by the failed attempts
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		creds, err := ListCredentials(tx, winner)
		require.NoError(t, err)
		assert.Empty(t, creds)
		return nil
	}))
}
