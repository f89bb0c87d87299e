package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	log "github.com/sirupsen/logrus"

	"rankclaim/authority"
	"rankclaim/bonus"
	"rankclaim/notifications"
	"rankclaim/rewards"
	"rankclaim/storage"
	"rankclaim/tokens"
	"rankclaim/webserver"
)

var (
	version    = "dev"
	commitHash = "unknown"
)

type RankClaimServer struct {
	*storage.Storage
	*notifications.NotificationHandler
	*webserver.WebServer

	program *authority.Program
	ledger  *tokens.Ledger
	store   *rewards.Store
	claims  *rewards.ClaimHandler
}

var server = new(RankClaimServer)

var RootCmd = &cobra.Command{
	Use:   "rankclaim",
	Short: "daily rank reward claims",

	// Silence usage when a command fails after flags were accepted
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {

		setupLogging(viper.GetBool("debug"), viper.GetBool("trace"), viper.GetString("logdir"))

		log.Infof("=== rankclaim %s (%s) ===", version, commitHash)

		return server.open(viper.GetString("datadir"), viper.GetString("treasury"))
	},
}

func init() {
	RootCmd.PersistentFlags().String("datadir", "./", "Location of database")
	RootCmd.PersistentFlags().String("logdir", "", "Location of log file; defaults to the working directory")
	RootCmd.PersistentFlags().Bool("debug", false, "Enable debug-level logging")
	RootCmd.PersistentFlags().Bool("trace", false, "Enable trace-level logging")
	RootCmd.PersistentFlags().String("treasury", "", "Treasury address recorded on bonus credentials; saved for later runs")

	// RANKCLAIM_DATADIR and friends override defaults
	viper.SetEnvPrefix("rankclaim")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(RootCmd.PersistentFlags()); err != nil {
		log.WithError(err).Fatal("Failed to bind persistent flags")
	}

	// Runs after every command, failed or not
	cobra.OnFinalize(server.close)
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// open initializes the database, the program identity and every component
// hanging off it
func (s *RankClaimServer) open(dataDir, treasury string) error {

	var err error

	s.Storage, err = storage.InitStorage(dataDir)
	if err != nil {
		return errors.Wrap(err, "Could not open storage")
	}

	programID, rewardMint, err := s.Storage.InitProgramKeys()
	if err != nil {
		return errors.Wrap(err, "Could not init program keys")
	}

	id, err := authority.AddressFromBytes(programID)
	if err != nil {
		return err
	}

	mint, err := authority.AddressFromBytes(rewardMint)
	if err != nil {
		return err
	}

	s.program, err = authority.NewProgram(id)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"Program": id, "RewardMint": mint,
	}).Debug("Loaded program keys")

	// Notification failures never stop claims
	s.NotificationHandler, err = notifications.NewHandler(s.Storage)
	if err != nil {
		log.WithError(err).Error("Unable to load notifiers")
	}

	s.ledger = tokens.NewLedger(s.program)
	s.store = rewards.NewStore(s.Storage, s.program)
	s.claims = rewards.NewClaimHandler(s.store, s.ledger, bonus.NewFragmentMinter(s.program, s.ledger), mint, s.NotificationHandler)

	return s.loadTreasury(treasury)
}

// loadTreasury saves a newly supplied treasury, then applies whatever is stored
func (s *RankClaimServer) loadTreasury(treasury string) error {

	if treasury != "" {
		addr, err := authority.ParseAddress(treasury)
		if err != nil {
			return errors.Wrap(err, "Invalid treasury")
		}
		if err := s.Storage.SaveTreasury(addr[:]); err != nil {
			return errors.Wrap(err, "Could not save treasury")
		}
	}

	stored, err := s.Storage.GetTreasury()
	if err != nil {
		return errors.Wrap(err, "Could not load treasury")
	}
	if stored == nil {
		return nil
	}

	addr, err := authority.AddressFromBytes(stored)
	if err != nil {
		return err
	}

	s.claims.SetTreasury(addr)
	log.WithField("Treasury", addr).Debug("Loaded treasury")

	return nil
}

func (s *RankClaimServer) close() {

	if s.Storage != nil {
		s.Storage.Close()
		s.Storage = nil
	}

	closeLogging()
}

func setupCloseChannel() chan interface{} {

	// Create channels for signals
	signalChan := make(chan os.Signal, 1)
	closingChan := make(chan interface{}, 1)

	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChan
		close(closingChan)
	}()

	return closingChan
}
