package storage

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// GetNotifiersConfig returns the stored JSON config for notifier, or nil
func (s *Storage) GetNotifiersConfig(notifier string) ([]byte, error) {
	return s.getConfigValue(notifier, NOTIFICATIONS_BUCKET)
}

// SaveNotifiersConfig stores notifier's config; anything but a JSON object is
// refused so a bad write cannot stop notifiers loading on the next start
func (s *Storage) SaveNotifiersConfig(notifier string, config []byte) error {

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(config, &obj); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%s: %s", notifier, err)
	}

	return s.putConfigValue(notifier, config, NOTIFICATIONS_BUCKET)
}
