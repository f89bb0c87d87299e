package notifications

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"rankclaim/storage"
)

const (
	TELEGRAM = "telegram"
)

var ErrUnknownNotifier = errors.New("Unknown notification type")

type Notifier interface {
	Send(string) error
	IsEnabled() bool
}

// NotificationHandler owns the configured notifiers and their persisted config
type NotificationHandler struct {
	storage *storage.Storage

	mu        sync.RWMutex
	notifiers map[string]Notifier
}

func NewHandler(db *storage.Storage) (*NotificationHandler, error) {

	n := &NotificationHandler{
		storage:   db,
		notifiers: make(map[string]Notifier, 1),
	}

	if err := n.LoadNotifiers(); err != nil {
		return n, errors.Wrap(err, "Failed New Notification")
	}

	return n, nil
}

func (n *NotificationHandler) LoadNotifiers() error {

	// Get telegram notifications config from DB, as []byte string
	tConfig, err := n.storage.GetNotifiersConfig(TELEGRAM)
	if err != nil {
		return errors.Wrap(err, "Unable to load telegram config")
	}

	// Configure telegram; Don't save what we just loaded
	if err := n.Configure(TELEGRAM, tConfig, false); err != nil {
		return errors.Wrap(err, "Unable to init telegram")
	}

	return nil
}

// Configure replaces a notifier from its JSON config, optionally persisting it
func (n *NotificationHandler) Configure(notifier string, config []byte, saveConfig bool) error {

	switch notifier {
	case TELEGRAM:
		nt, err := NewTelegram(config)
		if err != nil {
			return err
		}

		if saveConfig {
			if err := n.saveConfig(TELEGRAM, nt); err != nil {
				return err
			}
		}

		n.mu.Lock()
		n.notifiers[TELEGRAM] = nt
		n.mu.Unlock()

	default:
		return errors.Wrapf(ErrUnknownNotifier, "%q", notifier)
	}

	return nil
}

func (n *NotificationHandler) saveConfig(notifier string, v interface{}) error {

	config, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "Unable to marshal %s config", notifier)
	}

	if err := n.storage.SaveNotifiersConfig(notifier, config); err != nil {
		return errors.Wrapf(err, "Unable to save %s config", notifier)
	}

	return nil
}

// Send delivers msg to every enabled notifier. Failures are logged, never returned.
func (n *NotificationHandler) Send(msg string) {

	n.mu.RLock()
	defer n.mu.RUnlock()

	for name, notifier := range n.notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		if err := notifier.Send(msg); err != nil {
			log.WithError(err).WithField("Notifier", name).Error("Unable to send notification")
		}
	}
}

// TestSend delivers msg through one notifier regardless of its enabled state
func (n *NotificationHandler) TestSend(notifier string, msg string) error {

	n.mu.RLock()
	nt, ok := n.notifiers[notifier]
	n.mu.RUnlock()

	if !ok {
		return errors.Wrapf(ErrUnknownNotifier, "%q", notifier)
	}

	return nt.Send(msg)
}

func (n *NotificationHandler) GetConfig() (json.RawMessage, error) {

	n.mu.RLock()
	defer n.mu.RUnlock()

	// Return RawMessage so as not to double Marshal
	bts, err := json.Marshal(n.notifiers)
	return json.RawMessage(bts), err
}
