package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/adsync/internal/ingest"
	"github.com/sells-group/adsync/internal/model"
	"github.com/sells-group/adsync/internal/reconcile"
	"github.com/sells-group/adsync/internal/store"
)

var (
	ingestAccount  string
	ingestType     string
	ingestExported string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest and reconcile report files",
	Long:  "Parses one or more report files, registers each as an upload batch, and reconciles its rows against the best-matching inventory snapshot. Independent files run concurrently.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		accountID, err := requireAccount(ingestAccount)
		if err != nil {
			return err
		}

		reportType := model.ReportType(ingestType)
		if !reportType.Valid() {
			return eris.Errorf("unknown report type %q (want %s, %s, or %s)",
				ingestType, model.ReportCampaigns, model.ReportTargeting, model.ReportSearchTerms)
		}

		var exportedAt time.Time
		if ingestExported != "" {
			exportedAt, err = time.ParseInLocation("2006-01-02", ingestExported, time.UTC)
			if err != nil {
				return eris.Errorf("bad --exported date %q (want YYYY-MM-DD)", ingestExported)
			}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pipe := reconcile.NewPipeline(st, st, st)
		pipe.LookAheadDays = cfg.Selector.LookAheadDays

		log := zap.L().With(zap.String("component", "cmd.ingest"))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Ingest.MaxConcurrentUploads)

		for _, path := range args {
			path := path
			g.Go(func() error {
				result, err := ingestFile(gctx, st, pipe, accountID, reportType, path, exportedAt)
				if err != nil {
					return eris.Wrapf(err, "ingest %s", path)
				}
				log.Info("batch complete",
					zap.String("file", path),
					zap.String("upload_id", result.UploadID),
					zap.Int("rows_in", result.RowsIn),
					zap.Int("facts", result.Facts),
					zap.Int("issues", result.Issues),
					zap.Int64("upserted", result.Upserted),
					zap.Int("failed_keys", len(result.FailedKeys)),
				)
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestAccount, "account", "", "account ID (defaults to ingest.account_id)")
	ingestCmd.Flags().StringVar(&ingestType, "type", "", "report type: sp_campaigns, sp_targeting, or sp_search_terms")
	ingestCmd.Flags().StringVar(&ingestExported, "exported", "", "export date YYYY-MM-DD (defaults to the latest row date in the file)")
	_ = ingestCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(ingestCmd)
}

// ingestFile parses, registers, and reconciles one report file.
func ingestFile(ctx context.Context, st store.Store, pipe *reconcile.Pipeline, accountID string, reportType model.ReportType, path string, exportedAt time.Time) (*reconcile.BatchResult, error) {
	log := zap.L().With(zap.String("component", "cmd.ingest"), zap.String("file", path))

	uploadID, err := ingest.UploadIDFor(accountID, reportType, path)
	if err != nil {
		return nil, err
	}

	parsed, err := ingest.ParseReport(path, reportType)
	if err != nil {
		return nil, err
	}
	for _, skip := range parsed.Skipped {
		log.Warn("skipped malformed row", zap.Int("row", skip.RowNum), zap.String("reason", skip.Reason))
	}
	if len(parsed.Rows) == 0 {
		return nil, eris.Errorf("no parseable rows in %s", path)
	}

	if exportedAt.IsZero() {
		for _, row := range parsed.Rows {
			if row.Date.After(exportedAt) {
				exportedAt = row.Date
			}
		}
	}

	if err := st.CreateUpload(ctx, model.ReportUpload{
		ID:         uploadID,
		AccountID:  accountID,
		ReportType: reportType,
		ExportedAt: exportedAt,
		SourceFile: path,
	}); err != nil {
		return nil, err
	}
	if err := st.SaveRawRows(ctx, uploadID, parsed.Rows); err != nil {
		return nil, err
	}

	return pipe.Run(ctx, accountID, uploadID, reportType, exportedAt)
}
