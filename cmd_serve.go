package main

import (
	"sync"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"rankclaim/webserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the claim API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {

		bindAddr, err := cmd.Flags().GetString("webuiaddr")
		if err != nil {
			return err
		}

		bindPort, err := cmd.Flags().GetInt("webuiport")
		if err != nil {
			return err
		}

		var wg sync.WaitGroup

		// Clean exits
		shutdownChannel := setupCloseChannel()

		wg.Add(1)
		server.WebServer, err = webserver.Start(webserver.WebServerArgs{
			Claims:              server.claims,
			Store:               server.store,
			Program:             server.program,
			NotificationHandler: server.NotificationHandler,
			BindAddr:            bindAddr,
			BindPort:            bindPort,
			ShutdownChannel:     shutdownChannel,
			WG:                  &wg,
		})
		if err != nil {
			return err
		}

		<-shutdownChannel
		log.Warn("Shutting things down...")

		// Wait for the web server to drain
		wg.Wait()

		return nil
	},
}

func init() {
	serveCmd.Flags().String("webuiaddr", "127.0.0.1", "Address on which to bind the API server")
	serveCmd.Flags().Int("webuiport", 8082, "Port on which to bind the API server")

	RootCmd.AddCommand(serveCmd)
}
