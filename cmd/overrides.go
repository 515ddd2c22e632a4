package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/adsync/internal/ingest"
)

var overridesCmd = &cobra.Command{
	Use:   "overrides",
	Short: "Manage manual name-to-ID overrides",
}

var overridesAccount string

var overridesImportCmd = &cobra.Command{
	Use:   "import [overrides.yaml]",
	Short: "Import a manual overrides file",
	Long:  "Parses an operator-maintained YAML overrides file and upserts its entries for the account. Existing entries with the same key have their validity window replaced.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		accountID, err := requireAccount(overridesAccount)
		if err != nil {
			return err
		}

		overrides, err := ingest.LoadOverridesFile(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SaveOverrides(ctx, accountID, overrides); err != nil {
			return err
		}

		zap.L().Info("overrides imported",
			zap.String("account_id", accountID),
			zap.Int("count", len(overrides)),
		)
		return nil
	},
}

func init() {
	overridesCmd.PersistentFlags().StringVar(&overridesAccount, "account", "", "account ID (defaults to ingest.account_id)")
	overridesCmd.AddCommand(overridesImportCmd)
	rootCmd.AddCommand(overridesCmd)
}
