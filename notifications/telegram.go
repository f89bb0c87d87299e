package notifications

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
)

const TELEGRAM_API = "https://api.telegram.org"

type NotifyTelegram struct {
	ChatIDs []int  `json:"chatids"`
	APIKey  string `json:"apikey"`
	Enabled bool   `json:"enabled"`

	// Overridden in tests
	APIBase string `json:"-"`

	client *http.Client
}

// NewTelegram creates a new NotifyTelegram object using a JSON byte-stream
// provided from either DB lookup or the settings API. A nil config yields a
// disabled notifier.
func NewTelegram(config []byte) (*NotifyTelegram, error) {

	nt := &NotifyTelegram{
		APIBase: TELEGRAM_API,
		client: &http.Client{
			Timeout: time.Second * 10,
		},
	}

	// empty config from db?
	if config == nil {
		log.Debug("No telegram config stored")
		return nt, nil
	}

	if err := json.Unmarshal(config, nt); err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal telegram config")
	}

	return nt, nil
}

func (n *NotifyTelegram) IsEnabled() bool {
	return n.Enabled && n.APIKey != "" && len(n.ChatIDs) > 0
}

// Send delivers msg to every chat id; the first failure is returned after all
// chats were attempted
func (n *NotifyTelegram) Send(msg string) error {

	if n.APIKey == "" {
		return errors.New("Telegram API key not set")
	}

	var firstErr error

	for _, id := range n.ChatIDs {
		if err := n.sendMessage(id, msg); err != nil {
			log.WithField("ChatId", id).WithError(err).Error("Unable to send telegram message")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr == nil {
		log.WithField("MSG", msg).Info("Sent Telegram Message(s)")
	}

	return firstErr
}

func (n *NotifyTelegram) sendMessage(chatID int, msg string) error {

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/bot%s/sendMessage", n.APIBase, n.APIKey), nil)
	if err != nil {
		return errors.Wrap(err, "Unable to make telegram request")
	}

	q := req.URL.Query()
	q.Set("chat_id", strconv.Itoa(chatID))
	q.Set("text", msg)
	req.URL.RawQuery = q.Encode()

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "Telegram request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "Unable to read telegram response")
	}

	log.WithField("Resp", string(body)).Trace("Telegram Reply")

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("Telegram replied %d", resp.StatusCode)
	}

	return nil
}
