package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/adsync/internal/ingest"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage inventory snapshots",
}

var (
	snapshotAccount string
	snapshotDate    string
)

var snapshotLoadCmd = &cobra.Command{
	Use:   "load [bulk-file.xlsx]",
	Short: "Load a bulk inventory export as a dated snapshot",
	Long:  "Parses a bulk export file and stores it as the account's immutable inventory snapshot for the given date. Loading the same date twice is an error.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		accountID, err := requireAccount(snapshotAccount)
		if err != nil {
			return err
		}
		if snapshotDate == "" {
			return eris.New("--date is required")
		}
		date, err := time.ParseInLocation("2006-01-02", snapshotDate, time.UTC)
		if err != nil {
			return eris.Errorf("bad --date %q (want YYYY-MM-DD)", snapshotDate)
		}

		snap, err := ingest.LoadSnapshotFile(args[0], accountID, date)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SaveSnapshot(ctx, snap); err != nil {
			return err
		}

		zap.L().Info("snapshot loaded",
			zap.String("account_id", accountID),
			zap.String("snapshot_date", snapshotDate),
			zap.Int("campaigns", len(snap.Campaigns)),
			zap.Int("ad_groups", len(snap.AdGroups)),
			zap.Int("targets", len(snap.Targets)),
			zap.Int("portfolios", len(snap.Portfolios)),
		)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an account's snapshot dates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		accountID, err := requireAccount(snapshotAccount)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		dates, err := st.SnapshotDates(ctx, accountID)
		if err != nil {
			return err
		}
		if len(dates) == 0 {
			fmt.Println("no snapshots")
			return nil
		}
		for _, d := range dates {
			fmt.Println(d.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	snapshotCmd.PersistentFlags().StringVar(&snapshotAccount, "account", "", "account ID (defaults to ingest.account_id)")
	snapshotLoadCmd.Flags().StringVar(&snapshotDate, "date", "", "snapshot date YYYY-MM-DD")
	snapshotCmd.AddCommand(snapshotLoadCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	rootCmd.AddCommand(snapshotCmd)
}
