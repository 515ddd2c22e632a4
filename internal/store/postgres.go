package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/adsync/internal/db"
	"github.com/sells-group/adsync/internal/model"
	"github.com/sells-group/adsync/internal/reconcile"
	"github.com/sells-group/adsync/internal/resilience"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool      db.Pool
	chunkSize int
	limiter   *rate.Limiter
	retry     *resilience.RetryConfig
}

// Option configures a Postgres store.
type Option func(*Postgres)

// WithChunkSize bounds rows/IDs per store round-trip.
func WithChunkSize(n int) Option {
	return func(s *Postgres) { s.chunkSize = n }
}

// WithWriteRate throttles fact-write chunks to at most perSec chunks per
// second, to keep bulk backfills from starving the store.
func WithWriteRate(perSec float64) Option {
	return func(s *Postgres) {
		if perSec > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithWriteRetry retries transiently failed fact-write chunks before they are
// reported as failed. The upsert keys on natural_key, so a retry after an
// ambiguous failure cannot double-count.
func WithWriteRetry(cfg resilience.RetryConfig) Option {
	return func(s *Postgres) { s.retry = &cfg }
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool db.Pool, opts ...Option) *Postgres {
	s := &Postgres{pool: pool, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	s.chunkSize = chunkSizeOrDefault(s.chunkSize)
	return s
}

func (s *Postgres) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

func (s *Postgres) Close() error {
	if c, implemented := s.pool.(interface{ Close() }); implemented {
		c.Close()
	}
	return nil
}

// --- snapshot reads ---

func (s *Postgres) SnapshotDates(ctx context.Context, accountID string) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT snapshot_date FROM adsync.bulk_snapshots
		 WHERE account_id = $1 ORDER BY snapshot_date`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: snapshot dates for %s", accountID)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot date")
		}
		dates = append(dates, model.Date(d))
	}
	return dates, rows.Err()
}

func (s *Postgres) CountCampaignNames(ctx context.Context, accountID string, snapshotDate time.Time, nameNorms []string) (int, error) {
	total := 0
	for _, chunk := range db.Chunk(nameNorms, s.chunkSize) {
		var n int
		err := s.pool.QueryRow(ctx,
			`SELECT COUNT(DISTINCT name_norm) FROM adsync.snapshot_campaigns
			 WHERE account_id = $1 AND snapshot_date = $2 AND name_norm = ANY($3)`,
			accountID, snapshotDate, chunk,
		).Scan(&n)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: count campaign names in %s", snapshotDate.Format("2006-01-02"))
		}
		total += n
	}
	return total, nil
}

func (s *Postgres) LoadSnapshot(ctx context.Context, accountID string, snapshotDate time.Time) (*model.InventorySnapshot, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM adsync.bulk_snapshots WHERE account_id = $1 AND snapshot_date = $2)`,
		accountID, snapshotDate,
	).Scan(&exists)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: check snapshot")
	}
	if !exists {
		return nil, eris.Errorf("postgres: no snapshot for %s on %s", accountID, snapshotDate.Format("2006-01-02"))
	}

	snap := &model.InventorySnapshot{AccountID: accountID, SnapshotDate: model.Date(snapshotDate)}

	if err := s.loadCampaigns(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadAdGroups(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadTargets(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadPortfolios(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadCategories(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Postgres) loadCampaigns(ctx context.Context, snap *model.InventorySnapshot) error {
	rows, err := s.pool.Query(ctx,
		`SELECT campaign_id, name_raw, name_norm, portfolio_id
		 FROM adsync.snapshot_campaigns WHERE account_id = $1 AND snapshot_date = $2`,
		snap.AccountID, snap.SnapshotDate,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: load campaigns")
	}
	defer rows.Close()

	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.NameRaw, &c.NameNorm, &c.PortfolioID); err != nil {
			return eris.Wrap(err, "postgres: scan campaign")
		}
		snap.Campaigns = append(snap.Campaigns, c)
	}
	return rows.Err()
}

func (s *Postgres) loadAdGroups(ctx context.Context, snap *model.InventorySnapshot) error {
	rows, err := s.pool.Query(ctx,
		`SELECT ad_group_id, campaign_id, name_raw, name_norm
		 FROM adsync.snapshot_ad_groups WHERE account_id = $1 AND snapshot_date = $2`,
		snap.AccountID, snap.SnapshotDate,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: load ad groups")
	}
	defer rows.Close()

	for rows.Next() {
		var g model.AdGroup
		if err := rows.Scan(&g.ID, &g.CampaignID, &g.NameRaw, &g.NameNorm); err != nil {
			return eris.Wrap(err, "postgres: scan ad group")
		}
		snap.AdGroups = append(snap.AdGroups, g)
	}
	return rows.Err()
}

func (s *Postgres) loadTargets(ctx context.Context, snap *model.InventorySnapshot) error {
	rows, err := s.pool.Query(ctx,
		`SELECT target_id, ad_group_id, expression_raw, expression_norm, match_type_norm, is_negative
		 FROM adsync.snapshot_targets WHERE account_id = $1 AND snapshot_date = $2`,
		snap.AccountID, snap.SnapshotDate,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: load targets")
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Target
		var mt string
		if err := rows.Scan(&t.ID, &t.AdGroupID, &t.ExpressionRaw, &t.ExpressionNorm, &mt, &t.IsNegative); err != nil {
			return eris.Wrap(err, "postgres: scan target")
		}
		t.MatchTypeNorm = model.MatchType(mt)
		snap.Targets = append(snap.Targets, t)
	}
	return rows.Err()
}

func (s *Postgres) loadPortfolios(ctx context.Context, snap *model.InventorySnapshot) error {
	rows, err := s.pool.Query(ctx,
		`SELECT portfolio_id, name_raw, name_norm
		 FROM adsync.snapshot_portfolios WHERE account_id = $1 AND snapshot_date = $2`,
		snap.AccountID, snap.SnapshotDate,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: load portfolios")
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Portfolio
		if err := rows.Scan(&p.ID, &p.NameRaw, &p.NameNorm); err != nil {
			return eris.Wrap(err, "postgres: scan portfolio")
		}
		snap.Portfolios = append(snap.Portfolios, p)
	}
	return rows.Err()
}

func (s *Postgres) loadCategories(ctx context.Context, snap *model.InventorySnapshot) error {
	rows, err := s.pool.Query(ctx, `SELECT category_id, name_norm FROM adsync.product_categories`)
	if err != nil {
		return eris.Wrap(err, "postgres: load categories")
	}
	defer rows.Close()

	for rows.Next() {
		var c model.ProductCategory
		if err := rows.Scan(&c.ID, &c.NameNorm); err != nil {
			return eris.Wrap(err, "postgres: scan category")
		}
		snap.Categories = append(snap.Categories, c)
	}
	return rows.Err()
}

func (s *Postgres) Overrides(ctx context.Context, accountID string) ([]model.ManualOverride, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entity_level, entity_id, name_norm, valid_from, valid_to
		 FROM adsync.manual_overrides WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: overrides for %s", accountID)
	}
	defer rows.Close()

	var overrides []model.ManualOverride
	for rows.Next() {
		var o model.ManualOverride
		var level string
		if err := rows.Scan(&level, &o.EntityID, &o.NameNorm, &o.ValidFrom, &o.ValidTo); err != nil {
			return nil, eris.Wrap(err, "postgres: scan override")
		}
		o.EntityLevel = model.EntityLevel(level)
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (s *Postgres) NameHistory(ctx context.Context, accountID string) ([]model.NameHistoryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entity_level, entity_id, name_norm, valid_from, valid_to
		 FROM adsync.name_history WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: name history for %s", accountID)
	}
	defer rows.Close()

	var history []model.NameHistoryRecord
	for rows.Next() {
		var h model.NameHistoryRecord
		var level string
		if err := rows.Scan(&level, &h.EntityID, &h.NameNorm, &h.ValidFrom, &h.ValidTo); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history record")
		}
		h.EntityLevel = model.EntityLevel(level)
		history = append(history, h)
	}
	return history, rows.Err()
}

// --- report reads ---

func (s *Postgres) DistinctCampaignNames(ctx context.Context, uploadID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT campaign_name_norm FROM adsync.raw_report_rows
		 WHERE upload_id = $1 AND campaign_name_norm != ''`,
		uploadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: distinct campaign names for %s", uploadID)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign name")
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Postgres) RawRows(ctx context.Context, uploadID string) ([]model.RawReportRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.row_num, u.report_type, r.date,
		        r.campaign_name_raw, r.campaign_name_norm,
		        r.portfolio_name_raw, r.portfolio_name_norm,
		        r.ad_group_name_raw, r.ad_group_name_norm,
		        r.targeting_raw, r.targeting_norm, r.match_type_norm, r.is_negative,
		        r.search_term_raw, r.search_term_norm,
		        r.impressions, r.clicks, r.spend, r.sales, r.orders, r.units
		 FROM adsync.raw_report_rows r
		 JOIN adsync.report_uploads u ON u.id = r.upload_id
		 WHERE r.upload_id = $1
		 ORDER BY r.row_num`,
		uploadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: raw rows for %s", uploadID)
	}
	defer rows.Close()

	var out []model.RawReportRow
	for rows.Next() {
		r := model.RawReportRow{UploadID: uploadID}
		var reportType, matchType string
		if err := rows.Scan(
			&r.RowNum, &reportType, &r.Date,
			&r.CampaignNameRaw, &r.CampaignNameNorm,
			&r.PortfolioNameRaw, &r.PortfolioNameNorm,
			&r.AdGroupNameRaw, &r.AdGroupNameNorm,
			&r.TargetingRaw, &r.TargetingNorm, &matchType, &r.IsNegative,
			&r.SearchTermRaw, &r.SearchTermNorm,
			&r.Metrics.Impressions, &r.Metrics.Clicks, &r.Metrics.Spend,
			&r.Metrics.Sales, &r.Metrics.Orders, &r.Metrics.Units,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw row")
		}
		r.ReportType = model.ReportType(reportType)
		r.MatchTypeNorm = model.MatchType(matchType)
		r.Date = model.Date(r.Date)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- fact writes ---

var factColumns = []string{
	"natural_key", "account_id", "upload_id", "report_type", "date",
	"campaign_id", "ad_group_id", "target_id", "target_key",
	"campaign_name_raw", "ad_group_name_raw", "targeting_raw",
	"match_type_norm", "search_term_norm",
	"impressions", "clicks", "spend", "sales", "orders", "units",
}

func factValues(f model.MappedFactRow, naturalKey string) []any {
	return []any{
		naturalKey, f.AccountID, f.UploadID, string(f.ReportType), f.Date,
		f.CampaignID, f.AdGroupID, f.TargetID, f.TargetKey,
		f.CampaignNameRaw, f.AdGroupNameRaw, f.TargetingRaw,
		string(f.MatchTypeNorm), f.SearchTermNorm,
		f.Metrics.Impressions, f.Metrics.Clicks, f.Metrics.Spend,
		f.Metrics.Sales, f.Metrics.Orders, f.Metrics.Units,
	}
}

// UpsertFacts writes deduplicated fact rows in bounded chunks, keyed exactly
// on their natural keys. A failed chunk is reported and skipped; the
// remaining chunks still run, so the caller can retry precisely the failed
// subset. No automatic retry happens here.
func (s *Postgres) UpsertFacts(ctx context.Context, facts []model.MappedFactRow) (*reconcile.WriteReport, error) {
	report := &reconcile.WriteReport{}

	for _, chunk := range db.Chunk(facts, s.chunkSize) {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return report, eris.Wrap(err, "postgres: write throttle")
			}
		}

		keys := make([]string, len(chunk))
		rows := make([][]any, len(chunk))
		for i, f := range chunk {
			keys[i] = reconcile.NaturalKey(f)
			rows[i] = factValues(f, keys[i])
		}

		upsert := func(ctx context.Context) (int64, error) {
			return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
				Table:        "adsync.fact_rows",
				Columns:      factColumns,
				ConflictKeys: []string{"natural_key"},
			}, rows)
		}

		var n int64
		var err error
		if s.retry != nil {
			n, err = resilience.DoVal(ctx, *s.retry, upsert)
		} else {
			n, err = upsert(ctx)
		}
		if err != nil {
			report.Failed = append(report.Failed, reconcile.FailedChunk{NaturalKeys: keys, Err: err.Error()})
			continue
		}
		report.Upserted += n
	}
	return report, nil
}

func (s *Postgres) ReplaceIssues(ctx context.Context, uploadID string, reportType model.ReportType, issues []model.MappingIssue) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin issue tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM adsync.mapping_issues WHERE upload_id = $1 AND report_type = $2`,
		uploadID, string(reportType),
	); err != nil {
		return eris.Wrapf(err, "postgres: clear issues for %s", uploadID)
	}

	for _, issue := range issues {
		var candidates *string
		if issue.CandidatesJSON != "" {
			candidates = &issue.CandidatesJSON
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO adsync.mapping_issues
			     (upload_id, report_type, entity_level, issue_type, key_json, candidates_json, row_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			issue.UploadID, string(issue.ReportType), string(issue.EntityLevel),
			string(issue.IssueType), issue.KeyJSON, candidates, issue.RowCount,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert issue for %s", uploadID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit issue tx")
	}
	return nil
}

// --- upload and snapshot writes ---

func (s *Postgres) CreateUpload(ctx context.Context, up model.ReportUpload) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO adsync.report_uploads (id, account_id, report_type, exported_at, source_file)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET exported_at = EXCLUDED.exported_at, source_file = EXCLUDED.source_file`,
		up.ID, up.AccountID, string(up.ReportType), model.Date(up.ExportedAt), up.SourceFile,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: create upload %s", up.ID)
	}
	return nil
}

func (s *Postgres) GetUpload(ctx context.Context, uploadID string) (*model.ReportUpload, error) {
	var up model.ReportUpload
	var reportType string
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, report_type, exported_at, created_at
		 FROM adsync.report_uploads WHERE id = $1`,
		uploadID,
	).Scan(&up.ID, &up.AccountID, &reportType, &up.ExportedAt, &up.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get upload %s", uploadID)
	}
	up.ReportType = model.ReportType(reportType)
	return &up, nil
}

func (s *Postgres) SaveRawRows(ctx context.Context, uploadID string, rows []model.RawReportRow) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM adsync.raw_report_rows WHERE upload_id = $1`, uploadID,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear raw rows for %s", uploadID)
	}

	columns := []string{
		"upload_id", "row_num", "date",
		"campaign_name_raw", "campaign_name_norm",
		"portfolio_name_raw", "portfolio_name_norm",
		"ad_group_name_raw", "ad_group_name_norm",
		"targeting_raw", "targeting_norm", "match_type_norm", "is_negative",
		"search_term_raw", "search_term_norm",
		"impressions", "clicks", "spend", "sales", "orders", "units",
	}
	for _, chunk := range db.Chunk(rows, s.chunkSize) {
		values := make([][]any, len(chunk))
		for i, r := range chunk {
			values[i] = []any{
				uploadID, r.RowNum, model.Date(r.Date),
				r.CampaignNameRaw, r.CampaignNameNorm,
				r.PortfolioNameRaw, r.PortfolioNameNorm,
				r.AdGroupNameRaw, r.AdGroupNameNorm,
				r.TargetingRaw, r.TargetingNorm, string(r.MatchTypeNorm), r.IsNegative,
				r.SearchTermRaw, r.SearchTermNorm,
				r.Metrics.Impressions, r.Metrics.Clicks, r.Metrics.Spend,
				r.Metrics.Sales, r.Metrics.Orders, r.Metrics.Units,
			}
		}
		if _, err := db.CopyFrom(ctx, s.pool, "adsync.raw_report_rows", columns, values); err != nil {
			return eris.Wrapf(err, "postgres: save raw rows for %s", uploadID)
		}
	}
	return nil
}

func (s *Postgres) SaveSnapshot(ctx context.Context, snap *model.InventorySnapshot) error {
	snapshotDate := model.Date(snap.SnapshotDate)

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM adsync.bulk_snapshots WHERE account_id = $1 AND snapshot_date = $2)`,
		snap.AccountID, snapshotDate,
	).Scan(&exists)
	if err != nil {
		return eris.Wrap(err, "postgres: check existing snapshot")
	}
	if exists {
		// Snapshots are immutable; a later export gets its own date.
		return eris.Errorf("postgres: snapshot for %s on %s already exists", snap.AccountID, snapshotDate.Format("2006-01-02"))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin snapshot tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO adsync.bulk_snapshots (account_id, snapshot_date) VALUES ($1, $2)`,
		snap.AccountID, snapshotDate,
	); err != nil {
		return eris.Wrap(err, "postgres: insert snapshot header")
	}

	campaignRows := make([][]any, len(snap.Campaigns))
	for i, c := range snap.Campaigns {
		campaignRows[i] = []any{snap.AccountID, snapshotDate, c.ID, c.NameRaw, c.NameNorm, c.PortfolioID}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"adsync", "snapshot_campaigns"},
		[]string{"account_id", "snapshot_date", "campaign_id", "name_raw", "name_norm", "portfolio_id"},
		pgx.CopyFromRows(campaignRows)); err != nil {
		return eris.Wrap(err, "postgres: copy snapshot campaigns")
	}

	adGroupRows := make([][]any, len(snap.AdGroups))
	for i, g := range snap.AdGroups {
		adGroupRows[i] = []any{snap.AccountID, snapshotDate, g.ID, g.CampaignID, g.NameRaw, g.NameNorm}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"adsync", "snapshot_ad_groups"},
		[]string{"account_id", "snapshot_date", "ad_group_id", "campaign_id", "name_raw", "name_norm"},
		pgx.CopyFromRows(adGroupRows)); err != nil {
		return eris.Wrap(err, "postgres: copy snapshot ad groups")
	}

	targetRows := make([][]any, len(snap.Targets))
	for i, t := range snap.Targets {
		targetRows[i] = []any{snap.AccountID, snapshotDate, t.ID, t.AdGroupID, t.ExpressionRaw, t.ExpressionNorm, string(t.MatchTypeNorm), t.IsNegative}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"adsync", "snapshot_targets"},
		[]string{"account_id", "snapshot_date", "target_id", "ad_group_id", "expression_raw", "expression_norm", "match_type_norm", "is_negative"},
		pgx.CopyFromRows(targetRows)); err != nil {
		return eris.Wrap(err, "postgres: copy snapshot targets")
	}

	portfolioRows := make([][]any, len(snap.Portfolios))
	for i, p := range snap.Portfolios {
		portfolioRows[i] = []any{snap.AccountID, snapshotDate, p.ID, p.NameRaw, p.NameNorm}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"adsync", "snapshot_portfolios"},
		[]string{"account_id", "snapshot_date", "portfolio_id", "name_raw", "name_norm"},
		pgx.CopyFromRows(portfolioRows)); err != nil {
		return eris.Wrap(err, "postgres: copy snapshot portfolios")
	}

	for _, c := range snap.Categories {
		if _, err := tx.Exec(ctx,
			`INSERT INTO adsync.product_categories (category_id, name_norm)
			 VALUES ($1, $2) ON CONFLICT (category_id) DO UPDATE SET name_norm = EXCLUDED.name_norm`,
			c.ID, c.NameNorm,
		); err != nil {
			return eris.Wrap(err, "postgres: upsert product category")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit snapshot tx")
	}
	return nil
}

func (s *Postgres) SaveOverrides(ctx context.Context, accountID string, overrides []model.ManualOverride) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin override tx")
	}
	defer tx.Rollback(ctx)

	for _, o := range overrides {
		if _, err := tx.Exec(ctx,
			`INSERT INTO adsync.manual_overrides (account_id, entity_level, entity_id, name_norm, valid_from, valid_to)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (account_id, entity_level, entity_id, name_norm)
			 DO UPDATE SET valid_from = EXCLUDED.valid_from, valid_to = EXCLUDED.valid_to`,
			accountID, string(o.EntityLevel), o.EntityID, o.NameNorm, o.ValidFrom, o.ValidTo,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert override %s/%s", o.EntityLevel, o.EntityID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit override tx")
	}
	return nil
}

func (s *Postgres) ListIssues(ctx context.Context, uploadID string) ([]model.MappingIssue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT upload_id, report_type, entity_level, issue_type, key_json, candidates_json, row_count
		 FROM adsync.mapping_issues WHERE upload_id = $1
		 ORDER BY entity_level, key_json`,
		uploadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list issues for %s", uploadID)
	}
	defer rows.Close()

	var issues []model.MappingIssue
	for rows.Next() {
		var issue model.MappingIssue
		var reportType, level, issueType string
		var candidates *string
		if err := rows.Scan(&issue.UploadID, &reportType, &level, &issueType, &issue.KeyJSON, &candidates, &issue.RowCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan issue")
		}
		issue.ReportType = model.ReportType(reportType)
		issue.EntityLevel = model.EntityLevel(level)
		issue.IssueType = model.IssueType(issueType)
		if candidates != nil {
			issue.CandidatesJSON = *candidates
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}
