package notifications

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rankclaim/storage"
)

type fakeNotifier struct {
	mu      sync.Mutex
	enabled bool
	fail    bool
	sent    []string
}

func (f *fakeNotifier) Send(msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.fail {
		return errors.New("unreachable")
	}
	return nil
}

func (f *fakeNotifier) IsEnabled() bool {
	return f.enabled
}

func newHandler(t *testing.T) *NotificationHandler {
	t.Helper()

	db, err := storage.InitStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	n, err := NewHandler(db)
	require.NoError(t, err)

	return n
}

func TestNewHandlerWithoutConfig(t *testing.T) {

	n := newHandler(t)

	require.Contains(t, n.notifiers, TELEGRAM)
	assert.False(t, n.notifiers[TELEGRAM].IsEnabled())

	// Nothing enabled, nothing sent, nothing fails
	n.Send("hello")
}

func TestConfigurePersists(t *testing.T) {

	n := newHandler(t)

	cfg := []byte(`{"chatids":[42,43],"apikey":"123:abc","enabled":true}`)
	require.NoError(t, n.Configure(TELEGRAM, cfg, true))

	stored, err := n.storage.GetNotifiersConfig(TELEGRAM)
	require.NoError(t, err)
	assert.JSONEq(t, string(cfg), string(stored))

	// A fresh handler on the same database picks up the saved config
	reloaded, err := NewHandler(n.storage)
	require.NoError(t, err)

	nt, ok := reloaded.notifiers[TELEGRAM].(*NotifyTelegram)
	require.True(t, ok)
	assert.Equal(t, []int{42, 43}, nt.ChatIDs)
	assert.True(t, nt.IsEnabled())

	raw, err := reloaded.GetConfig()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"chatids":[42,43]`)
}

func TestConfigureRejectsBadInput(t *testing.T) {

	n := newHandler(t)

	assert.ErrorIs(t, n.Configure("email", []byte(`{}`), false), ErrUnknownNotifier)
	assert.Error(t, n.Configure(TELEGRAM, []byte(`{not json`), true))

	stored, err := n.storage.GetNotifiersConfig(TELEGRAM)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestSendFansOutToEnabledNotifiers(t *testing.T) {

	n := newHandler(t)

	on := &fakeNotifier{enabled: true}
	off := &fakeNotifier{}
	broken := &fakeNotifier{enabled: true, fail: true}

	n.notifiers = map[string]Notifier{"on": on, "off": off, "broken": broken}

	n.Send("top rank claimed")

	assert.Equal(t, []string{"top rank claimed"}, on.sent)
	assert.Empty(t, off.sent)
	assert.Equal(t, []string{"top rank claimed"}, broken.sent)

	// Test sends ignore the enabled flag
	require.NoError(t, n.TestSend("off", "ping"))
	assert.Equal(t, []string{"ping"}, off.sent)
	assert.ErrorIs(t, n.TestSend("pager", "ping"), ErrUnknownNotifier)
}

func TestTelegramSend(t *testing.T) {

	var (
		mu    sync.Mutex
		chats []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		assert.Equal(t, "bonus minted", r.URL.Query().Get("text"))

		mu.Lock()
		chats = append(chats, r.URL.Query().Get("chat_id"))
		mu.Unlock()

		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	nt, err := NewTelegram([]byte(`{"chatids":[7,8],"apikey":"123:abc","enabled":true}`))
	require.NoError(t, err)
	nt.APIBase = srv.URL

	require.NoError(t, nt.Send("bonus minted"))
	assert.Equal(t, []string{"7", "8"}, chats)
}

func TestTelegramSendReportsFailure(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	nt, err := NewTelegram([]byte(`{"chatids":[7],"apikey":"bad","enabled":true}`))
	require.NoError(t, err)
	nt.APIBase = srv.URL

	assert.Error(t, nt.Send("hello"))

	noKey, err := NewTelegram(nil)
	require.NoError(t, err)
	assert.Error(t, noKey.Send("hello"))
}
