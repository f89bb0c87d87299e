package webserver

import (
	"io"
	"net/http"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"rankclaim/notifications"
)

func (ws *WebServer) saveTelegram(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - SaveTelegram")

	if ws.notificationHandler == nil {
		apiErrorStatus(errors.New("Notifications are not available"), http.StatusServiceUnavailable, w)
		return
	}

	// Read the POST body as a string
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.WithError(err).Error("API SaveTelegram")
		apiErrorStatus(errors.Wrap(err, "Failed to parse body"), http.StatusBadRequest, w)

		return
	}

	// Send string to configure for JSON unmarshaling; make sure to save config to db
	if err := ws.notificationHandler.Configure(notifications.TELEGRAM, body, true); err != nil {
		log.WithError(err).Error("API SaveTelegram")
		apiErrorStatus(errors.Wrap(err, "Failed to configure telegram"), http.StatusBadRequest, w)

		return
	}

	if err := ws.notificationHandler.TestSend(notifications.TELEGRAM, "Test message from rankclaim"); err != nil {
		log.WithError(err).Error("API SaveTelegram")
		apiErrorStatus(errors.Wrap(err, "Failed to execute telegram test"), http.StatusBadGateway, w)

		return
	}

	apiReturnOk(w)
}

func (ws *WebServer) getSettings(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - GetSettings")

	pool, err := ws.claims.PoolAccount(r.Context())
	if err != nil {
		apiError(errors.Wrap(err, "Cannot get pool"), w)

		return
	}

	settings := map[string]interface{}{
		"program": ws.program.ID(),
		"pool":    pool.Address,
		"mint":    pool.Mint,
	}

	if ws.notificationHandler != nil {
		// Get Notification settings
		notifications, err := ws.notificationHandler.GetConfig() // Returns json.RawMessage
		if err != nil {
			apiError(errors.Wrap(err, "Cannot get notification settings"), w)

			return
		}
		log.WithField("Notifications", string(notifications)).Debug("API Settings Notifications")

		settings["notifications"] = notifications
	}

	apiReturn(settings, w)
}
