package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/adsync/internal/db"
	"github.com/sells-group/adsync/internal/model"
	"github.com/sells-group/adsync/internal/reconcile"
)

// SQLite implements Store on a local SQLite file via the pure-Go modernc
// driver. It is the zero-infrastructure backend for local runs and tests;
// the semantics match the Postgres store exactly.
type SQLite struct {
	conn      *sql.DB
	chunkSize int
}

// NewSQLite opens (creating if needed) a SQLite store at path.
func NewSQLite(path string, chunkSize int) (*SQLite, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	// modernc's driver is not safe for concurrent writes on one file.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	return &SQLite{conn: conn, chunkSize: chunkSizeOrDefault(chunkSize)}, nil
}

func (s *SQLite) Close() error { return s.conn.Close() }

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bulk_snapshots (
    account_id    TEXT NOT NULL,
    snapshot_date TEXT NOT NULL,
    loaded_at     TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (account_id, snapshot_date)
);

CREATE TABLE IF NOT EXISTS snapshot_campaigns (
    account_id    TEXT NOT NULL,
    snapshot_date TEXT NOT NULL,
    campaign_id   TEXT NOT NULL,
    name_raw      TEXT NOT NULL,
    name_norm     TEXT NOT NULL,
    portfolio_id  TEXT,
    PRIMARY KEY (account_id, snapshot_date, campaign_id)
);
CREATE INDEX IF NOT EXISTS idx_snapshot_campaigns_name
    ON snapshot_campaigns (account_id, snapshot_date, name_norm);

CREATE TABLE IF NOT EXISTS snapshot_ad_groups (
    account_id    TEXT NOT NULL,
    snapshot_date TEXT NOT NULL,
    ad_group_id   TEXT NOT NULL,
    campaign_id   TEXT NOT NULL,
    name_raw      TEXT NOT NULL,
    name_norm     TEXT NOT NULL,
    PRIMARY KEY (account_id, snapshot_date, ad_group_id)
);

CREATE TABLE IF NOT EXISTS snapshot_targets (
    account_id      TEXT NOT NULL,
    snapshot_date   TEXT NOT NULL,
    target_id       TEXT NOT NULL,
    ad_group_id     TEXT NOT NULL,
    expression_raw  TEXT NOT NULL,
    expression_norm TEXT NOT NULL,
    match_type_norm TEXT NOT NULL,
    is_negative     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (account_id, snapshot_date, target_id)
);

CREATE TABLE IF NOT EXISTS snapshot_portfolios (
    account_id    TEXT NOT NULL,
    snapshot_date TEXT NOT NULL,
    portfolio_id  TEXT NOT NULL,
    name_raw      TEXT NOT NULL,
    name_norm     TEXT NOT NULL,
    PRIMARY KEY (account_id, snapshot_date, portfolio_id)
);

CREATE TABLE IF NOT EXISTS product_categories (
    category_id TEXT PRIMARY KEY,
    name_norm   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS name_history (
    account_id   TEXT NOT NULL,
    entity_level TEXT NOT NULL,
    entity_id    TEXT NOT NULL,
    name_norm    TEXT NOT NULL,
    valid_from   TEXT NOT NULL,
    valid_to     TEXT,
    PRIMARY KEY (account_id, entity_level, entity_id, name_norm, valid_from)
);

CREATE TABLE IF NOT EXISTS manual_overrides (
    account_id   TEXT NOT NULL,
    entity_level TEXT NOT NULL,
    entity_id    TEXT NOT NULL,
    name_norm    TEXT NOT NULL,
    valid_from   TEXT,
    valid_to     TEXT,
    PRIMARY KEY (account_id, entity_level, entity_id, name_norm)
);

CREATE TABLE IF NOT EXISTS report_uploads (
    id          TEXT PRIMARY KEY,
    account_id  TEXT NOT NULL,
    report_type TEXT NOT NULL,
    exported_at TEXT NOT NULL,
    source_file TEXT,
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS raw_report_rows (
    upload_id           TEXT NOT NULL,
    row_num             INTEGER NOT NULL,
    date                TEXT NOT NULL,
    campaign_name_raw   TEXT NOT NULL,
    campaign_name_norm  TEXT NOT NULL,
    portfolio_name_raw  TEXT NOT NULL DEFAULT '',
    portfolio_name_norm TEXT NOT NULL DEFAULT '',
    ad_group_name_raw   TEXT NOT NULL DEFAULT '',
    ad_group_name_norm  TEXT NOT NULL DEFAULT '',
    targeting_raw       TEXT NOT NULL DEFAULT '',
    targeting_norm      TEXT NOT NULL DEFAULT '',
    match_type_norm     TEXT NOT NULL DEFAULT 'unknown',
    is_negative         INTEGER NOT NULL DEFAULT 0,
    search_term_raw     TEXT NOT NULL DEFAULT '',
    search_term_norm    TEXT NOT NULL DEFAULT '',
    impressions         INTEGER NOT NULL DEFAULT 0,
    clicks              INTEGER NOT NULL DEFAULT 0,
    spend               REAL NOT NULL DEFAULT 0,
    sales               REAL NOT NULL DEFAULT 0,
    orders              INTEGER NOT NULL DEFAULT 0,
    units               INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (upload_id, row_num)
);

CREATE TABLE IF NOT EXISTS fact_rows (
    natural_key       TEXT PRIMARY KEY,
    account_id        TEXT NOT NULL,
    upload_id         TEXT NOT NULL,
    report_type       TEXT NOT NULL,
    date              TEXT NOT NULL,
    campaign_id       TEXT NOT NULL,
    ad_group_id       TEXT,
    target_id         TEXT,
    target_key        TEXT NOT NULL DEFAULT '',
    campaign_name_raw TEXT NOT NULL DEFAULT '',
    ad_group_name_raw TEXT NOT NULL DEFAULT '',
    targeting_raw     TEXT NOT NULL DEFAULT '',
    match_type_norm   TEXT NOT NULL DEFAULT '',
    search_term_norm  TEXT NOT NULL DEFAULT '',
    impressions       INTEGER NOT NULL DEFAULT 0,
    clicks            INTEGER NOT NULL DEFAULT 0,
    spend             REAL NOT NULL DEFAULT 0,
    sales             REAL NOT NULL DEFAULT 0,
    orders            INTEGER NOT NULL DEFAULT 0,
    units             INTEGER NOT NULL DEFAULT 0,
    updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_fact_rows_upload ON fact_rows (upload_id);

CREATE TABLE IF NOT EXISTS mapping_issues (
    upload_id       TEXT NOT NULL,
    report_type     TEXT NOT NULL,
    entity_level    TEXT NOT NULL,
    issue_type      TEXT NOT NULL,
    key_json        TEXT NOT NULL,
    candidates_json TEXT,
    row_count       INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (upload_id, report_type, entity_level, key_json)
);
`

func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "sqlite: apply schema")
	}
	return nil
}

// Dates cross the driver boundary as ISO strings so lexicographic and
// chronological order agree.
const dateLayout = "2006-01-02"

func dateString(t time.Time) string { return model.Date(t).Format(dateLayout) }

func parseDate(s string) (time.Time, error) {
	// Accept both bare dates and the datetime form sqlite may hand back.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

func dateStringPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := dateString(*t)
	return &s
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// --- snapshot reads ---

func (s *SQLite) SnapshotDates(ctx context.Context, accountID string) ([]time.Time, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT snapshot_date FROM bulk_snapshots WHERE account_id = ? ORDER BY snapshot_date`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: snapshot dates for %s", accountID)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot date")
		}
		d, err := parseDate(raw)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse snapshot date")
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (s *SQLite) CountCampaignNames(ctx context.Context, accountID string, snapshotDate time.Time, nameNorms []string) (int, error) {
	total := 0
	for _, chunk := range db.Chunk(nameNorms, s.chunkSize) {
		args := make([]any, 0, len(chunk)+2)
		args = append(args, accountID, dateString(snapshotDate))
		for _, n := range chunk {
			args = append(args, n)
		}
		var n int
		err := s.conn.QueryRowContext(ctx,
			`SELECT COUNT(DISTINCT name_norm) FROM snapshot_campaigns
			 WHERE account_id = ? AND snapshot_date = ? AND name_norm IN (`+placeholders(len(chunk))+`)`,
			args...,
		).Scan(&n)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: count campaign names")
		}
		total += n
	}
	return total, nil
}

func (s *SQLite) LoadSnapshot(ctx context.Context, accountID string, snapshotDate time.Time) (*model.InventorySnapshot, error) {
	date := dateString(snapshotDate)

	var exists int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bulk_snapshots WHERE account_id = ? AND snapshot_date = ?`,
		accountID, date,
	).Scan(&exists)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: check snapshot")
	}
	if exists == 0 {
		return nil, eris.Errorf("sqlite: no snapshot for %s on %s", accountID, date)
	}

	snap := &model.InventorySnapshot{AccountID: accountID, SnapshotDate: model.Date(snapshotDate)}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT campaign_id, name_raw, name_norm, portfolio_id
		 FROM snapshot_campaigns WHERE account_id = ? AND snapshot_date = ?`,
		accountID, date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load campaigns")
	}
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.NameRaw, &c.NameNorm, &c.PortfolioID); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		snap.Campaigns = append(snap.Campaigns, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load campaigns")
	}

	rows, err = s.conn.QueryContext(ctx,
		`SELECT ad_group_id, campaign_id, name_raw, name_norm
		 FROM snapshot_ad_groups WHERE account_id = ? AND snapshot_date = ?`,
		accountID, date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load ad groups")
	}
	for rows.Next() {
		var g model.AdGroup
		if err := rows.Scan(&g.ID, &g.CampaignID, &g.NameRaw, &g.NameNorm); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan ad group")
		}
		snap.AdGroups = append(snap.AdGroups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load ad groups")
	}

	rows, err = s.conn.QueryContext(ctx,
		`SELECT target_id, ad_group_id, expression_raw, expression_norm, match_type_norm, is_negative
		 FROM snapshot_targets WHERE account_id = ? AND snapshot_date = ?`,
		accountID, date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load targets")
	}
	for rows.Next() {
		var t model.Target
		var mt string
		if err := rows.Scan(&t.ID, &t.AdGroupID, &t.ExpressionRaw, &t.ExpressionNorm, &mt, &t.IsNegative); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan target")
		}
		t.MatchTypeNorm = model.MatchType(mt)
		snap.Targets = append(snap.Targets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load targets")
	}

	rows, err = s.conn.QueryContext(ctx,
		`SELECT portfolio_id, name_raw, name_norm
		 FROM snapshot_portfolios WHERE account_id = ? AND snapshot_date = ?`,
		accountID, date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load portfolios")
	}
	for rows.Next() {
		var p model.Portfolio
		if err := rows.Scan(&p.ID, &p.NameRaw, &p.NameNorm); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan portfolio")
		}
		snap.Portfolios = append(snap.Portfolios, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load portfolios")
	}

	rows, err = s.conn.QueryContext(ctx, `SELECT category_id, name_norm FROM product_categories`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load categories")
	}
	for rows.Next() {
		var c model.ProductCategory
		if err := rows.Scan(&c.ID, &c.NameNorm); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan category")
		}
		snap.Categories = append(snap.Categories, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load categories")
	}

	return snap, nil
}

func (s *SQLite) Overrides(ctx context.Context, accountID string) ([]model.ManualOverride, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT entity_level, entity_id, name_norm, valid_from, valid_to
		 FROM manual_overrides WHERE account_id = ?`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: overrides for %s", accountID)
	}
	defer rows.Close()

	var overrides []model.ManualOverride
	for rows.Next() {
		var o model.ManualOverride
		var level string
		var from, to *string
		if err := rows.Scan(&level, &o.EntityID, &o.NameNorm, &from, &to); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan override")
		}
		o.EntityLevel = model.EntityLevel(level)
		if o.ValidFrom, err = parseDatePtr(from); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse override valid_from")
		}
		if o.ValidTo, err = parseDatePtr(to); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse override valid_to")
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (s *SQLite) NameHistory(ctx context.Context, accountID string) ([]model.NameHistoryRecord, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT entity_level, entity_id, name_norm, valid_from, valid_to
		 FROM name_history WHERE account_id = ?`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: name history for %s", accountID)
	}
	defer rows.Close()

	var history []model.NameHistoryRecord
	for rows.Next() {
		var h model.NameHistoryRecord
		var level, from string
		var to *string
		if err := rows.Scan(&level, &h.EntityID, &h.NameNorm, &from, &to); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history record")
		}
		h.EntityLevel = model.EntityLevel(level)
		if h.ValidFrom, err = parseDate(from); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse history valid_from")
		}
		if h.ValidTo, err = parseDatePtr(to); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse history valid_to")
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// --- report reads ---

func (s *SQLite) DistinctCampaignNames(ctx context.Context, uploadID string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT DISTINCT campaign_name_norm FROM raw_report_rows
		 WHERE upload_id = ? AND campaign_name_norm != ''`,
		uploadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: distinct campaign names for %s", uploadID)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign name")
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *SQLite) RawRows(ctx context.Context, uploadID string) ([]model.RawReportRow, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT r.row_num, u.report_type, r.date,
		        r.campaign_name_raw, r.campaign_name_norm,
		        r.portfolio_name_raw, r.portfolio_name_norm,
		        r.ad_group_name_raw, r.ad_group_name_norm,
		        r.targeting_raw, r.targeting_norm, r.match_type_norm, r.is_negative,
		        r.search_term_raw, r.search_term_norm,
		        r.impressions, r.clicks, r.spend, r.sales, r.orders, r.units
		 FROM raw_report_rows r
		 JOIN report_uploads u ON u.id = r.upload_id
		 WHERE r.upload_id = ?
		 ORDER BY r.row_num`,
		uploadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: raw rows for %s", uploadID)
	}
	defer rows.Close()

	var out []model.RawReportRow
	for rows.Next() {
		r := model.RawReportRow{UploadID: uploadID}
		var reportType, matchType, date string
		if err := rows.Scan(
			&r.RowNum, &reportType, &date,
			&r.CampaignNameRaw, &r.CampaignNameNorm,
			&r.PortfolioNameRaw, &r.PortfolioNameNorm,
			&r.AdGroupNameRaw, &r.AdGroupNameNorm,
			&r.TargetingRaw, &r.TargetingNorm, &matchType, &r.IsNegative,
			&r.SearchTermRaw, &r.SearchTermNorm,
			&r.Metrics.Impressions, &r.Metrics.Clicks, &r.Metrics.Spend,
			&r.Metrics.Sales, &r.Metrics.Orders, &r.Metrics.Units,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw row")
		}
		r.ReportType = model.ReportType(reportType)
		r.MatchTypeNorm = model.MatchType(matchType)
		if r.Date, err = parseDate(date); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse row date")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- fact writes ---

func (s *SQLite) UpsertFacts(ctx context.Context, facts []model.MappedFactRow) (*reconcile.WriteReport, error) {
	report := &reconcile.WriteReport{}

	for _, chunk := range db.Chunk(facts, s.chunkSize) {
		keys := make([]string, len(chunk))
		for i, f := range chunk {
			keys[i] = reconcile.NaturalKey(f)
		}
		if err := s.upsertFactChunk(ctx, chunk, keys); err != nil {
			report.Failed = append(report.Failed, reconcile.FailedChunk{NaturalKeys: keys, Err: err.Error()})
			continue
		}
		report.Upserted += int64(len(chunk))
	}
	return report, nil
}

func (s *SQLite) upsertFactChunk(ctx context.Context, chunk []model.MappedFactRow, keys []string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin fact tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fact_rows
		     (natural_key, account_id, upload_id, report_type, date,
		      campaign_id, ad_group_id, target_id, target_key,
		      campaign_name_raw, ad_group_name_raw, targeting_raw,
		      match_type_norm, search_term_norm,
		      impressions, clicks, spend, sales, orders, units, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (natural_key) DO UPDATE SET
		     account_id = excluded.account_id,
		     upload_id = excluded.upload_id,
		     report_type = excluded.report_type,
		     date = excluded.date,
		     campaign_id = excluded.campaign_id,
		     ad_group_id = excluded.ad_group_id,
		     target_id = excluded.target_id,
		     target_key = excluded.target_key,
		     campaign_name_raw = excluded.campaign_name_raw,
		     ad_group_name_raw = excluded.ad_group_name_raw,
		     targeting_raw = excluded.targeting_raw,
		     match_type_norm = excluded.match_type_norm,
		     search_term_norm = excluded.search_term_norm,
		     impressions = excluded.impressions,
		     clicks = excluded.clicks,
		     spend = excluded.spend,
		     sales = excluded.sales,
		     orders = excluded.orders,
		     units = excluded.units,
		     updated_at = excluded.updated_at`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare fact upsert")
	}
	defer stmt.Close()

	for i, f := range chunk {
		if _, err := stmt.ExecContext(ctx,
			keys[i], f.AccountID, f.UploadID, string(f.ReportType), dateString(f.Date),
			f.CampaignID, f.AdGroupID, f.TargetID, f.TargetKey,
			f.CampaignNameRaw, f.AdGroupNameRaw, f.TargetingRaw,
			string(f.MatchTypeNorm), f.SearchTermNorm,
			f.Metrics.Impressions, f.Metrics.Clicks, f.Metrics.Spend,
			f.Metrics.Sales, f.Metrics.Orders, f.Metrics.Units,
		); err != nil {
			return eris.Wrap(err, "sqlite: upsert fact row")
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit fact tx")
	}
	return nil
}

func (s *SQLite) ReplaceIssues(ctx context.Context, uploadID string, reportType model.ReportType, issues []model.MappingIssue) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin issue tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM mapping_issues WHERE upload_id = ? AND report_type = ?`,
		uploadID, string(reportType),
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear issues for %s", uploadID)
	}

	for _, issue := range issues {
		var candidates *string
		if issue.CandidatesJSON != "" {
			candidates = &issue.CandidatesJSON
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mapping_issues
			     (upload_id, report_type, entity_level, issue_type, key_json, candidates_json, row_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			issue.UploadID, string(issue.ReportType), string(issue.EntityLevel),
			string(issue.IssueType), issue.KeyJSON, candidates, issue.RowCount,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert issue for %s", uploadID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit issue tx")
	}
	return nil
}

// --- upload and snapshot writes ---

func (s *SQLite) CreateUpload(ctx context.Context, up model.ReportUpload) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO report_uploads (id, account_id, report_type, exported_at, source_file)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET exported_at = excluded.exported_at, source_file = excluded.source_file`,
		up.ID, up.AccountID, string(up.ReportType), dateString(up.ExportedAt), up.SourceFile,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create upload %s", up.ID)
	}
	return nil
}

func (s *SQLite) GetUpload(ctx context.Context, uploadID string) (*model.ReportUpload, error) {
	var up model.ReportUpload
	var reportType, exportedAt, createdAt string
	var sourceFile *string
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, account_id, report_type, exported_at, source_file, created_at
		 FROM report_uploads WHERE id = ?`,
		uploadID,
	).Scan(&up.ID, &up.AccountID, &reportType, &exportedAt, &sourceFile, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get upload %s", uploadID)
	}
	up.ReportType = model.ReportType(reportType)
	if up.ExportedAt, err = parseDate(exportedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse exported_at")
	}
	if sourceFile != nil {
		up.SourceFile = *sourceFile
	}
	if up.CreatedAt, err = time.ParseInLocation("2006-01-02 15:04:05", createdAt, time.UTC); err != nil {
		// created_at is informational; tolerate alternate layouts.
		up.CreatedAt = time.Time{}
	}
	return &up, nil
}

func (s *SQLite) SaveRawRows(ctx context.Context, uploadID string, rows []model.RawReportRow) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin raw-row tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM raw_report_rows WHERE upload_id = ?`, uploadID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear raw rows for %s", uploadID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_report_rows
		     (upload_id, row_num, date,
		      campaign_name_raw, campaign_name_norm,
		      portfolio_name_raw, portfolio_name_norm,
		      ad_group_name_raw, ad_group_name_norm,
		      targeting_raw, targeting_norm, match_type_norm, is_negative,
		      search_term_raw, search_term_norm,
		      impressions, clicks, spend, sales, orders, units)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare raw-row insert")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			uploadID, r.RowNum, dateString(r.Date),
			r.CampaignNameRaw, r.CampaignNameNorm,
			r.PortfolioNameRaw, r.PortfolioNameNorm,
			r.AdGroupNameRaw, r.AdGroupNameNorm,
			r.TargetingRaw, r.TargetingNorm, string(r.MatchTypeNorm), r.IsNegative,
			r.SearchTermRaw, r.SearchTermNorm,
			r.Metrics.Impressions, r.Metrics.Clicks, r.Metrics.Spend,
			r.Metrics.Sales, r.Metrics.Orders, r.Metrics.Units,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert raw row %d", r.RowNum)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit raw-row tx")
	}
	return nil
}

func (s *SQLite) SaveSnapshot(ctx context.Context, snap *model.InventorySnapshot) error {
	date := dateString(snap.SnapshotDate)

	var exists int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bulk_snapshots WHERE account_id = ? AND snapshot_date = ?`,
		snap.AccountID, date,
	).Scan(&exists)
	if err != nil {
		return eris.Wrap(err, "sqlite: check existing snapshot")
	}
	if exists > 0 {
		return eris.Errorf("sqlite: snapshot for %s on %s already exists", snap.AccountID, date)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin snapshot tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bulk_snapshots (account_id, snapshot_date) VALUES (?, ?)`,
		snap.AccountID, date,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert snapshot header")
	}

	for _, c := range snap.Campaigns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_campaigns (account_id, snapshot_date, campaign_id, name_raw, name_norm, portfolio_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			snap.AccountID, date, c.ID, c.NameRaw, c.NameNorm, c.PortfolioID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert campaign %s", c.ID)
		}
	}
	for _, g := range snap.AdGroups {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_ad_groups (account_id, snapshot_date, ad_group_id, campaign_id, name_raw, name_norm)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			snap.AccountID, date, g.ID, g.CampaignID, g.NameRaw, g.NameNorm,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert ad group %s", g.ID)
		}
	}
	for _, t := range snap.Targets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_targets (account_id, snapshot_date, target_id, ad_group_id, expression_raw, expression_norm, match_type_norm, is_negative)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.AccountID, date, t.ID, t.AdGroupID, t.ExpressionRaw, t.ExpressionNorm, string(t.MatchTypeNorm), t.IsNegative,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert target %s", t.ID)
		}
	}
	for _, p := range snap.Portfolios {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_portfolios (account_id, snapshot_date, portfolio_id, name_raw, name_norm)
			 VALUES (?, ?, ?, ?, ?)`,
			snap.AccountID, date, p.ID, p.NameRaw, p.NameNorm,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert portfolio %s", p.ID)
		}
	}
	for _, c := range snap.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_categories (category_id, name_norm) VALUES (?, ?)
			 ON CONFLICT (category_id) DO UPDATE SET name_norm = excluded.name_norm`,
			c.ID, c.NameNorm,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert category %s", c.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit snapshot tx")
	}
	return nil
}

func (s *SQLite) SaveOverrides(ctx context.Context, accountID string, overrides []model.ManualOverride) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin override tx")
	}
	defer tx.Rollback()

	for _, o := range overrides {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manual_overrides (account_id, entity_level, entity_id, name_norm, valid_from, valid_to)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (account_id, entity_level, entity_id, name_norm)
			 DO UPDATE SET valid_from = excluded.valid_from, valid_to = excluded.valid_to`,
			accountID, string(o.EntityLevel), o.EntityID, o.NameNorm,
			dateStringPtr(o.ValidFrom), dateStringPtr(o.ValidTo),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert override %s/%s", o.EntityLevel, o.EntityID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit override tx")
	}
	return nil
}

func (s *SQLite) ListIssues(ctx context.Context, uploadID string) ([]model.MappingIssue, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT upload_id, report_type, entity_level, issue_type, key_json, candidates_json, row_count
		 FROM mapping_issues WHERE upload_id = ?
		 ORDER BY entity_level, key_json`,
		uploadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list issues for %s", uploadID)
	}
	defer rows.Close()

	var issues []model.MappingIssue
	for rows.Next() {
		var issue model.MappingIssue
		var reportType, level, issueType string
		var candidates *string
		if err := rows.Scan(&issue.UploadID, &reportType, &level, &issueType, &issue.KeyJSON, &candidates, &issue.RowCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan issue")
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
