package webserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"

	"rankclaim/authority"
	"rankclaim/notifications"
	"rankclaim/rewards"
)

type WebServer struct {
	claims              *rewards.ClaimHandler
	store               *rewards.Store
	program             *authority.Program
	notificationHandler *notifications.NotificationHandler

	router  http.Handler
	httpSvr *http.Server
}

type WebServerArgs struct {
	Claims              *rewards.ClaimHandler
	Store               *rewards.Store
	Program             *authority.Program
	NotificationHandler *notifications.NotificationHandler
	BindAddr            string
	BindPort            int
	ShutdownChannel     <-chan interface{}
	WG                  *sync.WaitGroup
}

// New builds the API router without starting a listener
func New(args WebServerArgs) *WebServer {

	ws := &WebServer{
		claims:              args.Claims,
		store:               args.Store,
		program:             args.Program,
		notificationHandler: args.NotificationHandler,
	}

	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		apiReturnOk(w)
	})

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/claim", ws.claim).Methods("POST")
	apiRouter.HandleFunc("/preview", ws.preview).Methods("GET")
	apiRouter.HandleFunc("/entry", ws.getEntry).Methods("GET")
	apiRouter.HandleFunc("/entries", ws.listEntries).Methods("GET")
	apiRouter.HandleFunc("/schedule", ws.getSchedule).Methods("GET")
	apiRouter.HandleFunc("/schedule", ws.publishSchedule).Methods("POST")
	apiRouter.HandleFunc("/activity", ws.recordActivity).Methods("POST")
	apiRouter.HandleFunc("/pool", ws.getPool).Methods("GET")
	apiRouter.HandleFunc("/balance", ws.getBalance).Methods("GET")

	apiRouter.HandleFunc("/settings", ws.getSettings).Methods("GET")
	apiRouter.HandleFunc("/settings/telegram", ws.saveTelegram).Methods("POST")

	router.Handle("/metrics", promhttp.Handler())

	// For CORS
	headersOk := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	originsOk := handlers.AllowedOrigins([]string{"*"})

	ws.router = handlers.RecoveryHandler(handlers.RecoveryLogger(log.StandardLogger()))(
		handlers.CORS(originsOk, headersOk, methodsOk)(router))

	return ws
}

func (ws *WebServer) Router() http.Handler {
	return ws.router
}

// Start launches the API in the background. It shuts down, and calls
// args.WG.Done, once the shutdown channel closes.
func Start(args WebServerArgs) (*WebServer, error) {

	if args.Claims == nil || args.Store == nil || args.Program == nil {
		return nil, errors.New("Web server requires claim handler, store and program")
	}

	ws := New(args)

	httpAddr := fmt.Sprintf("%s:%d", args.BindAddr, args.BindPort)
	ws.httpSvr = &http.Server{
		Handler:      ws.router,
		Addr:         httpAddr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.WithField("Addr", httpAddr).Info("Claim API Listening")

	// Launch webserver in background
	go func() {
		if err := ws.httpSvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Errorf("Httpserver: ListenAndServe()")
		}
		log.Info("Httpserver: Shutdown")
	}()

	// Wait for shutdown signal on channel
	go func() {
		<-args.ShutdownChannel

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ws.httpSvr.Shutdown(ctx); err != nil {
			log.WithError(err).Errorf("Httpserver: Shutdown()")
		}

		args.WG.Done()
	}()

	return ws, nil
}
