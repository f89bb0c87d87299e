package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rankclaim/authority"
	"rankclaim/bonus"
	"rankclaim/notifications"
	"rankclaim/rewards"
	"rankclaim/storage"
	"rankclaim/tokens"
	"rankclaim/util"
)

const day = 19000

func testAddress(t *testing.T, name string) authority.Address {
	t.Helper()
	h, err := util.CryptoGenericHash([]byte(name), nil)
	require.NoError(t, err)
	a, err := authority.AddressFromBytes(h)
	require.NoError(t, err)
	return a
}

func newTestServer(t *testing.T, funding uint64) (*httptest.Server, *rewards.ClaimHandler) {
	t.Helper()

	db, err := storage.InitStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	program, err := authority.NewProgram(testAddress(t, "api-program"))
	require.NoError(t, err)

	ledger := tokens.NewLedger(program)
	store := rewards.NewStore(db, program)

	nh, err := notifications.NewHandler(db)
	require.NoError(t, err)

	claims := rewards.NewClaimHandler(store, ledger, bonus.NewFragmentMinter(program, ledger), testAddress(t, "api-mint"), nh)

	if funding > 0 {
		_, err := claims.Fund(context.Background(), funding)
		require.NoError(t, err)
	}

	ws := New(WebServerArgs{
		Claims:              claims,
		Store:               store,
		Program:             program,
		NotificationHandler: nh,
	})

	srv := httptest.NewServer(ws.Router())
	t.Cleanup(srv.Close)

	return srv, claims
}

func post(t *testing.T, srv *httptest.Server, path string, body interface{}) (int, []byte) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func get(t *testing.T, srv *httptest.Server, path string) (int, []byte) {
	t.Helper()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func publish(t *testing.T, srv *httptest.Server) {
	t.Helper()
	status, body := post(t, srv, "/api/schedule", map[string]interface{}{
		"day":           day,
		"tiers":         []uint64{1000, 500, 100},
		"rewardPerTier": []uint64{50, 20, 5},
	})
	require.Equal(t, http.StatusOK, status, string(body))
}

func activity(t *testing.T, srv *httptest.Server, p authority.Address, amount uint64) {
	t.Helper()
	status, body := post(t, srv, "/api/activity", map[string]interface{}{
		"day": day, "participant": p.String(), "amount": amount,
	})
	require.Equal(t, http.StatusOK, status, string(body))
}

func claim(t *testing.T, srv *httptest.Server, p authority.Address) (int, []byte) {
	t.Helper()
	return post(t, srv, "/api/claim", map[string]interface{}{
		"day": day, "participant": p.String(),
	})
}

func TestClaimFlow(t *testing.T) {

	srv, _ := newTestServer(t, 1000)
	publish(t, srv)

	p := testAddress(t, "api-middle")
	activity(t, srv, p, 300)

	status, body := claim(t, srv, p)
	require.Equal(t, http.StatusOK, status, string(body))

	var receipt rewards.Receipt
	require.NoError(t, json.Unmarshal(body, &receipt))
	assert.Equal(t, 2, receipt.Tier)
	assert.Equal(t, uint64(5), receipt.Amount)
	assert.Nil(t, receipt.Credential)
	assert.Equal(t, p, receipt.Participant)

	status, _ = claim(t, srv, p)
	assert.Equal(t, http.StatusConflict, status)

	status, body = get(t, srv, fmt.Sprintf("/api/entry?day=%d&p=%s", day, p))
	require.Equal(t, http.StatusOK, status)
	var entry rewards.Entry
	require.NoError(t, json.Unmarshal(body, &entry))
	assert.True(t, entry.Claimed)

	status, body = get(t, srv, "/api/pool")
	require.Equal(t, http.StatusOK, status)
	var pool tokens.Account
	require.NoError(t, json.Unmarshal(body, &pool))
	assert.Equal(t, uint64(995), pool.Balance)
}

func TestClaimTopTierBuildsBonusContext(t *testing.T) {

	srv, claims := newTestServer(t, 1000)
	publish(t, srv)

	winner := testAddress(t, "api-winner")
	activity(t, srv, winner, 1500)

	status, body := claim(t, srv, winner)
	require.Equal(t, http.StatusOK, status, string(body))

	var receipt rewards.Receipt
	require.NoError(t, json.Unmarshal(body, &receipt))
	assert.Equal(t, 0, receipt.Tier)
	require.NotNil(t, receipt.Credential)
	assert.Equal(t, uint8(bonus.TOP_DAILY_FRAGMENT_ID), receipt.Credential.FragmentID)

	creds, err := claims.Credentials(winner)
	require.NoError(t, err)
	assert.Len(t, creds, 1)

	status, body = get(t, srv, "/api/balance?p="+winner.String())
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"balance":50`)
}

func TestClaimErrorStatuses(t *testing.T) {

	srv, _ := newTestServer(t, 0)
	publish(t, srv)

	low := testAddress(t, "api-low")
	activity(t, srv, low, 20)

	status, _ := claim(t, srv, low)
	assert.Equal(t, http.StatusNotFound, status)

	// Pool was never funded
	p := testAddress(t, "api-unfunded")
	activity(t, srv, p, 300)

	status, body := claim(t, srv, p)
	assert.Equal(t, http.StatusServiceUnavailable, status, string(body))

	status, _ = post(t, srv, "/api/claim", map[string]interface{}{"day": day, "participant": "not-base58-0OIl"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, srv, "/api/entry?day=abc&p="+p.String())
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, srv, fmt.Sprintf("/api/entry?day=%d&p=%s", day+1, p))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestScheduleEndpoints(t *testing.T) {

	srv, _ := newTestServer(t, 0)
	publish(t, srv)

	status, body := post(t, srv, "/api/schedule", map[string]interface{}{
		"day": day, "tiers": []uint64{1}, "rewardPerTier": []uint64{1},
	})
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, _ = post(t, srv, "/api/schedule", map[string]interface{}{
		"day": day + 1, "tiers": []uint64{1, 2}, "rewardPerTier": []uint64{1},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = get(t, srv, fmt.Sprintf("/api/schedule?day=%d", day))
	require.Equal(t, http.StatusOK, status)

	var s rewards.Schedule
	require.NoError(t, json.Unmarshal(body, &s))
	assert.Equal(t, []uint64{1000, 500, 100}, s.Tiers)

	status, _ = get(t, srv, fmt.Sprintf("/api/schedule?day=%d", day+1))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSettingsAndMetrics(t *testing.T) {

	srv, _ := newTestServer(t, 10)

	status, body := get(t, srv, "/api/settings")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"program"`)
	assert.Contains(t, string(body), `"notifications"`)

	status, _ = post(t, srv, "/api/settings/telegram", "not an object")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "rankclaim_pool_balance")

	status, _ = get(t, srv, "/api/health")
	assert.Equal(t, http.StatusOK, status)
}

func TestEntryEndpoints(t *testing.T) {

	srv, _ := newTestServer(t, 0)

	a := testAddress(t, "entry-a")
	b := testAddress(t, "entry-b")

	activity(t, srv, a, 120)
	activity(t, srv, a, 30)
	activity(t, srv, b, 10)

	status, body := get(t, srv, fmt.Sprintf("/api/entry?day=%d&p=%s", day, a))
	require.Equal(t, http.StatusOK, status, string(body))

	var entry rewards.Entry
	require.NoError(t, json.Unmarshal(body, &entry))
	assert.Equal(t, uint64(150), entry.Metric)
	assert.Equal(t, a, entry.Participant)
	assert.False(t, entry.Claimed)

	status, body = get(t, srv, fmt.Sprintf("/api/entries?day=%d", day))
	require.Equal(t, http.StatusOK, status, string(body))

	var list struct {
		Day     uint64          `json:"day"`
		Entries []rewards.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, uint64(day), list.Day)
	assert.Len(t, list.Entries, 2)

	status, _ = get(t, srv, fmt.Sprintf("/api/entry?day=%d&p=%s", day+1, a))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get(t, srv, "/api/entry?day=abc&p="+a.String())
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, srv, fmt.Sprintf("/api/entry?day=%d&p=not-an-address", day))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestClaimRejectsBadBonusContext(t *testing.T) {

	srv, _ := newTestServer(t, 1000)
	publish(t, srv)

	program, err := authority.NewProgram(testAddress(t, "api-program"))
	require.NoError(t, err)

	winner := testAddress(t, "api-bonus-winner")
	other := testAddress(t, "api-bonus-other")
	activity(t, srv, winner, 1500)
	activity(t, srv, other, 1500)

	claimWith := func(p authority.Address, bctx interface{}) (int, []byte) {
		return post(t, srv, "/api/claim", map[string]interface{}{
			"day": day, "participant": p.String(), "bonus": bctx,
		})
	}

	// Built for someone else
	foreign, err := bonus.NewContext(program, other)
	require.NoError(t, err)

	status, body := claimWith(winner, foreign)
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	status, body = claimWith(winner, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	// Nothing was settled by the rejected attempts
	status, body = claimWith(winner, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var receipt rewards.Receipt
	require.NoError(t, json.Unmarshal(body, &receipt))
	require.NotNil(t, receipt.Credential)

	// A well formed context around a mint that was already used
	used := receipt.Credential.Mint
	receiving, err := tokens.AssociatedAddress(other, used)
	require.NoError(t, err)
	metadata, err := bonus.MetadataAddress(program, used)
	require.NoError(t, err)
	minter, _, err := program.FragmentMinter()
	require.NoError(t, err)

	status, body = claimWith(other, &bonus.Context{
		Mint:             used,
		ReceivingAccount: receiving,
		MetadataTarget:   metadata,
		MintingAuthority: minter,
	})
	assert.Equal(t, http.StatusBadRequest, status, string(body))
	assert.Contains(t, string(body), "used")
}
