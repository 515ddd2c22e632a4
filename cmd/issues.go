package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var issuesCmd = &cobra.Command{
	Use:   "issues [upload-id]",
	Short: "List an upload's mapping issues",
	Long:  "Prints the mapping issues recorded for an upload batch as JSON lines, one issue per line.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		issues, err := st.ListIssues(ctx, args[0])
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			fmt.Println("no issues")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		for _, issue := range issues {
			if err := enc.Encode(issue); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(issuesCmd)
}
