package ingest

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/adsync/internal/model"
	"github.com/sells-group/adsync/internal/reconcile"
)

// Bulk export sheet names. The entity sheet carries one row per campaign,
// ad group, keyword, or product target, discriminated by the Entity column.
const (
	entitySheetName    = "Sponsored Products Campaigns"
	portfolioSheetName = "Portfolios"
	categorySheetName  = "Product Categories"
)

// LoadSnapshotFile parses a bulk inventory export into a snapshot dated
// snapshotDate. Rows with no usable ID are skipped; the export tooling emits
// summary lines that carry none.
func LoadSnapshotFile(path, accountID string, snapshotDate time.Time) (*model.InventorySnapshot, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}

	snap := &model.InventorySnapshot{
		AccountID:    accountID,
		SnapshotDate: model.Date(snapshotDate),
	}

	entitySheet := findSheet(f, entitySheetName)
	if entitySheet == nil {
		return nil, eris.Errorf("ingest: %s has no %q sheet", filepath.Base(path), entitySheetName)
	}
	if err := parseEntitySheet(entitySheet, snap); err != nil {
		return nil, err
	}

	if sheet := findSheet(f, portfolioSheetName); sheet != nil {
		parsePortfolioSheet(sheet, snap)
	}
	if sheet := findSheet(f, categorySheetName); sheet != nil {
		parseCategorySheet(sheet, snap)
	}

	if len(snap.Campaigns) == 0 {
		return nil, eris.Errorf("ingest: %s contains no campaigns", filepath.Base(path))
	}
	return snap, nil
}

func findSheet(f *xlsx.File, name string) *xlsx.Sheet {
	for _, sheet := range f.Sheets {
		if strings.EqualFold(sheet.Name, name) {
			return sheet
		}
	}
	return nil
}

func sheetRows(sheet *xlsx.Sheet) [][]string {
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = strings.TrimSpace(c.String())
		}
		rows = append(rows, cells)
	}
	return rows
}

// bulkColumns indexes the entity sheet header by normalized column name.
func bulkColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, cell := range header {
		key := strings.ToLower(strings.TrimSpace(cell))
		if _, dup := cols[key]; !dup && key != "" {
			cols[key] = i
		}
	}
	return cols
}

func bulkCell(row []string, cols map[string]int, key string) string {
	i, ok := cols[key]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func parseEntitySheet(sheet *xlsx.Sheet, snap *model.InventorySnapshot) error {
	rows := sheetRows(sheet)
	if len(rows) == 0 {
		return eris.New("ingest: entity sheet is empty")
	}
	cols := bulkColumns(rows[0])
	if _, ok := cols["entity"]; !ok {
		return eris.New("ingest: entity sheet has no Entity column")
	}

	for _, row := range rows[1:] {
		switch strings.ToLower(bulkCell(row, cols, "entity")) {
		case "campaign":
			id := bulkCell(row, cols, "campaign id")
			name := bulkCell(row, cols, "campaign name")
			if id == "" || name == "" {
				continue
			}
			c := model.Campaign{ID: id, NameRaw: name, NameNorm: reconcile.NormalizeName(name)}
			if pid := bulkCell(row, cols, "portfolio id"); pid != "" {
				c.PortfolioID = &pid
			}
			snap.Campaigns = append(snap.Campaigns, c)

		case "ad group":
			id := bulkCell(row, cols, "ad group id")
			campaignID := bulkCell(row, cols, "campaign id")
			name := bulkCell(row, cols, "ad group name")
			if id == "" || campaignID == "" || name == "" {
				continue
			}
			snap.AdGroups = append(snap.AdGroups, model.AdGroup{
				ID:         id,
				CampaignID: campaignID,
				NameRaw:    name,
				NameNorm:   reconcile.NormalizeName(name),
			})

		case "keyword", "negative keyword":
			t, ok := bulkTarget(row, cols, "keyword id", "keyword text")
			if !ok {
				continue
			}
			t.IsNegative = strings.HasPrefix(strings.ToLower(bulkCell(row, cols, "entity")), "negative")
			snap.Targets = append(snap.Targets, t)

		case "product targeting", "negative product targeting":
			t, ok := bulkTarget(row, cols, "product targeting id", "product targeting expression")
			if !ok {
				continue
			}
			t.IsNegative = strings.HasPrefix(strings.ToLower(bulkCell(row, cols, "entity")), "negative")
			snap.Targets = append(snap.Targets, t)
		}
	}
	return nil
}

func bulkTarget(row []string, cols map[string]int, idCol, exprCol string) (model.Target, bool) {
	id := bulkCell(row, cols, idCol)
	adGroupID := bulkCell(row, cols, "ad group id")
	expr := bulkCell(row, cols, exprCol)
	if id == "" || adGroupID == "" || expr == "" {
		return model.Target{}, false
	}
	return model.Target{
		ID:             id,
		AdGroupID:      adGroupID,
		ExpressionRaw:  expr,
		ExpressionNorm: reconcile.NormalizeName(expr),
		MatchTypeNorm:  reconcile.NormalizeMatchType(bulkCell(row, cols, "match type")),
	}, true
}

func parsePortfolioSheet(sheet *xlsx.Sheet, snap *model.InventorySnapshot) {
	rows := sheetRows(sheet)
	if len(rows) < 2 {
		return
	}
	cols := bulkColumns(rows[0])
	for _, row := range rows[1:] {
		id := bulkCell(row, cols, "portfolio id")
		name := bulkCell(row, cols, "portfolio name")
		if id == "" || name == "" {
			continue
		}
		snap.Portfolios = append(snap.Portfolios, model.Portfolio{
			ID:       id,
			NameRaw:  name,
			NameNorm: reconcile.NormalizeName(name),
		})
	}
}

func parseCategorySheet(sheet *xlsx.Sheet, snap *model.InventorySnapshot) {
	rows := sheetRows(sheet)
	if len(rows) < 2 {
		return
	}
	cols := bulkColumns(rows[0])
	for _, row := range rows[1:] {
		id := bulkCell(row, cols, "category id")
		name := bulkCell(row, cols, "category name")
		if id == "" || name == "" {
			continue
		}
		snap.Categories = append(snap.Categories, model.ProductCategory{
			ID:       id,
			NameNorm: reconcile.NormalizeName(name),
		})
	}
}
