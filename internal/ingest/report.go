package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/adsync/internal/model"
	"github.com/sells-group/adsync/internal/reconcile"
)

// RowError describes one report line that could not be parsed. The line is
// skipped; everything else in the file still ingests.
type RowError struct {
	RowNum int
	Reason string
}

// ParsedReport is the outcome of parsing one report file.
type ParsedReport struct {
	Rows    []model.RawReportRow
	Skipped []RowError
}

// Column keys used internally after header aliasing.
const (
	colDate       = "date"
	colCampaign   = "campaign"
	colPortfolio  = "portfolio"
	colAdGroup    = "ad_group"
	colTargeting  = "targeting"
	colMatchType  = "match_type"
	colSearchTerm = "search_term"
	colImpr       = "impressions"
	colClicks     = "clicks"
	colSpend      = "spend"
	colSales      = "sales"
	colOrders     = "orders"
	colUnits      = "units"
)

// headerAliases maps normalized vendor header names onto column keys. Vendors
// rename columns between export versions; every historical spelling we have
// seen is listed.
var headerAliases = map[string]string{
	"date": colDate,
	"day":  colDate,

	"campaign name": colCampaign,
	"campaign":      colCampaign,

	"portfolio name": colPortfolio,
	"portfolio":      colPortfolio,

	"ad group name": colAdGroup,
	"ad group":      colAdGroup,

	"targeting":                    colTargeting,
	"targeting expression":         colTargeting,
	"keyword text":                 colTargeting,
	"product targeting expression": colTargeting,

	"match type": colMatchType,

	"customer search term": colSearchTerm,
	"search term":          colSearchTerm,

	"impressions": colImpr,
	"clicks":      colClicks,

	"spend":     colSpend,
	"cost":      colSpend,
	"spend($)":  colSpend,
	"spend ($)": colSpend,

	"sales":                   colSales,
	"7 day total sales":       colSales,
	"7 day total sales ($)":   colSales,
	"14 day total sales":      colSales,
	"total advertising sales": colSales,

	"orders":                   colOrders,
	"7 day total orders (#)":   colOrders,
	"14 day total orders (#)":  colOrders,
	"total advertising orders": colOrders,

	"units":                  colUnits,
	"7 day total units (#)":  colUnits,
	"14 day total units (#)": colUnits,
}

// requiredColumns lists the columns a report shape cannot be parsed without.
func requiredColumns(t model.ReportType) []string {
	switch t {
	case model.ReportCampaigns:
		return []string{colDate, colCampaign}
	case model.ReportTargeting:
		return []string{colDate, colCampaign, colAdGroup, colTargeting}
	case model.ReportSearchTerms:
		return []string{colDate, colCampaign, colAdGroup, colTargeting, colSearchTerm}
	}
	return nil
}

// ParseReport reads a CSV or XLSX report file into raw report rows. The
// format is chosen by file extension.
func ParseReport(path string, reportType model.ReportType) (*ParsedReport, error) {
	if !reportType.Valid() {
		return nil, eris.Errorf("ingest: unknown report type %q", reportType)
	}

	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSXRows(path)
	default:
		return nil, eris.Errorf("ingest: unsupported report file %s", filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Errorf("ingest: %s is empty", filepath.Base(path))
	}

	cols, err := mapHeader(records[0], reportType)
	if err != nil {
		return nil, err
	}

	parsed := &ParsedReport{}
	for i, record := range records[1:] {
		rowNum := i + 1
		row, err := parseRow(record, cols, reportType, rowNum)
		if err != nil {
			parsed.Skipped = append(parsed.Skipped, RowError{RowNum: rowNum, Reason: err.Error()})
			continue
		}
		if row == nil {
			continue // blank line
		}
		parsed.Rows = append(parsed.Rows, *row)
	}
	return parsed, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", filepath.Base(path))
		}
		records = append(records, record)
	}
	return records, nil
}

func readXLSXRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: %s has no sheets", filepath.Base(path))
	}

	sheet := f.Sheets[0]
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return records, nil
}

// mapHeader resolves header cells to column indexes and checks the report
// shape's required columns are all present.
func mapHeader(header []string, reportType model.ReportType) (map[string]int, error) {
	cols := make(map[string]int)
	for i, cell := range header {
		key, ok := headerAliases[strings.ToLower(strings.TrimSpace(cell))]
		if !ok {
			continue
		}
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}

	var missing []string
	for _, key := range requiredColumns(reportType) {
		if _, ok := cols[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("ingest: report missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func cell(record []string, cols map[string]int, key string) string {
	i, ok := cols[key]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseRow(record []string, cols map[string]int, reportType model.ReportType, rowNum int) (*model.RawReportRow, error) {
	blank := true
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			blank = false
			break
		}
	}
	if blank {
		return nil, nil
	}

	campaign := cell(record, cols, colCampaign)
	if campaign == "" {
		return nil, fmt.Errorf("missing campaign name")
	}

	date, err := parseReportDate(cell(record, cols, colDate))
	if err != nil {
		return nil, err
	}

	row := &model.RawReportRow{
		ReportType:       reportType,
		RowNum:           rowNum,
		Date:             date,
		CampaignNameRaw:  campaign,
		CampaignNameNorm: reconcile.NormalizeName(campaign),
	}

	if portfolio := cell(record, cols, colPortfolio); portfolio != "" {
		row.PortfolioNameRaw = portfolio
		row.PortfolioNameNorm = reconcile.NormalizeName(portfolio)
	}

	if reportType.NeedsAdGroup() {
		adGroup := cell(record, cols, colAdGroup)
		if adGroup == "" {
			return nil, fmt.Errorf("missing ad group name")
		}
		row.AdGroupNameRaw = adGroup
		row.AdGroupNameNorm = reconcile.NormalizeName(adGroup)

		targeting := cell(record, cols, colTargeting)
		if targeting == "" {
			return nil, fmt.Errorf("missing targeting expression")
		}
		row.TargetingRaw = targeting
		row.TargetingNorm = reconcile.NormalizeName(targeting)
		row.MatchTypeNorm = reconcile.NormalizeMatchType(cell(record, cols, colMatchType))
	}

	if reportType == model.ReportSearchTerms {
		term := cell(record, cols, colSearchTerm)
		if term == "" {
			return nil, fmt.Errorf("missing customer search term")
		}
		row.SearchTermRaw = term
		row.SearchTermNorm = reconcile.NormalizeName(term)
	}

	if row.Metrics, err = parseMetrics(record, cols); err != nil {
		return nil, err
	}
	return row, nil
}

var reportDateLayouts = []string{
	"2006-01-02",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"01/02/2006",
	"2006/01/02",
}

func parseReportDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	for _, layout := range reportDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return model.Date(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func parseMetrics(record []string, cols map[string]int) (model.Metrics, error) {
	var m model.Metrics
	var err error
	if m.Impressions, err = parseCount(cell(record, cols, colImpr)); err != nil {
		return m, fmt.Errorf("impressions: %v", err)
	}
	if m.Clicks, err = parseCount(cell(record, cols, colClicks)); err != nil {
		return m, fmt.Errorf("clicks: %v", err)
	}
	if m.Spend, err = parseMoney(cell(record, cols, colSpend)); err != nil {
		return m, fmt.Errorf("spend: %v", err)
	}
	if m.Sales, err = parseMoney(cell(record, cols, colSales)); err != nil {
		return m, fmt.Errorf("sales: %v", err)
	}
	if m.Orders, err = parseCount(cell(record, cols, colOrders)); err != nil {
		return m, fmt.Errorf("orders: %v", err)
	}
	if m.Units, err = parseCount(cell(record, cols, colUnits)); err != nil {
		return m, fmt.Errorf("units: %v", err)
	}
	return m, nil
}

func parseCount(s string) (int64, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some exports render counts as "12.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("bad integer %q", s)
		}
		return int64(f), nil
	}
	return n, nil
}

func parseMoney(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", ""))
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q", s)
	}
	return f, nil
}
