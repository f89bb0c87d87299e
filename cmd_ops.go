package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"rankclaim/authority"
	"rankclaim/bonus"
	"rankclaim/rewards"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadSchedule reads a day's schedule from a YAML file:
//
//	day: 19000
//	tiers: [1000, 500, 100]
//	reward_per_tier: [50, 20, 5]
func loadSchedule(path string) (*rewards.Schedule, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to open schedule file")
	}
	defer f.Close()

	schedule := new(rewards.Schedule)

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(schedule); err != nil {
		return nil, errors.Wrapf(err, "Unable to parse %s", path)
	}

	return schedule, nil
}

func participantFlag(cmd *cobra.Command) (authority.Address, error) {
	p, err := cmd.Flags().GetString("participant")
	if err != nil {
		return authority.Address{}, err
	}
	return authority.ParseAddress(p)
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a day's reward schedule from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {

		path, err := cmd.Flags().GetString("file")
		if err != nil {
			return err
		}

		schedule, err := loadSchedule(path)
		if err != nil {
			return err
		}

		published, err := server.store.PublishSchedule(*schedule)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), published)
	},
}

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Mint reward units into the pool",
	RunE: func(cmd *cobra.Command, args []string) error {

		amount, err := cmd.Flags().GetUint64("amount")
		if err != nil {
			return err
		}

		pool, err := server.claims.Fund(context.Background(), amount)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), pool)
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Record activity for a participant on a day",
	RunE: func(cmd *cobra.Command, args []string) error {

		day, err := cmd.Flags().GetUint64("day")
		if err != nil {
			return err
		}

		amount, err := cmd.Flags().GetUint64("amount")
		if err != nil {
			return err
		}

		p, err := participantFlag(cmd)
		if err != nil {
			return err
		}

		entry, err := server.store.RecordActivity(day, p, amount)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), entry)
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim a participant's reward for a day",
	RunE: func(cmd *cobra.Command, args []string) error {

		day, err := cmd.Flags().GetUint64("day")
		if err != nil {
			return err
		}

		p, err := participantFlag(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		req := rewards.ClaimRequest{Day: day, Participant: p}

		// Top tier claims carry a fresh bonus context
		if preview, err := server.claims.Preview(ctx, day, p); err == nil && preview.Bonus {
			req.Bonus, err = bonus.NewContext(server.program, p)
			if err != nil {
				return err
			}
		}

		receipt, err := server.claims.Claim(ctx, req)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), receipt)
	},
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Show the reward pool account",
	RunE: func(cmd *cobra.Command, args []string) error {

		pool, err := server.claims.PoolAccount(context.Background())
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), pool)
	},
}

func init() {
	publishCmd.Flags().String("file", "", "YAML schedule file")
	_ = publishCmd.MarkFlagRequired("file")

	fundCmd.Flags().Uint64("amount", 0, "Units to mint into the pool")
	_ = fundCmd.MarkFlagRequired("amount")

	activityCmd.Flags().Uint64("day", 0, "Day ordinal")
	activityCmd.Flags().String("participant", "", "Participant address (base58)")
	activityCmd.Flags().Uint64("amount", 0, "Activity amount to add")
	_ = activityCmd.MarkFlagRequired("day")
	_ = activityCmd.MarkFlagRequired("participant")
	_ = activityCmd.MarkFlagRequired("amount")

	claimCmd.Flags().Uint64("day", 0, "Day ordinal")
	claimCmd.Flags().String("participant", "", "Participant address (base58)")
	_ = claimCmd.MarkFlagRequired("day")
	_ = claimCmd.MarkFlagRequired("participant")

	RootCmd.AddCommand(publishCmd, fundCmd, activityCmd, claimCmd, poolCmd)
}
