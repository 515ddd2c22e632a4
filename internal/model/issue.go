package model

// IssueType classifies why a name chain failed to resolve.
type IssueType string

const (
	// IssueUnmapped means a name chain step found zero matches at every
	// tier (snapshot, history, override).
	IssueUnmapped IssueType = "unmapped"

	// IssueAmbiguous means a step found multiple matches and no
	// disambiguating signal narrowed them to one.
	IssueAmbiguous IssueType = "ambiguous"

	// IssueMissingBulkSnapshot means no eligible inventory snapshot exists
	// for the batch; the whole batch maps to zero facts plus this one issue.
	IssueMissingBulkSnapshot IssueType = "missing_bulk_snapshot"
)

// MappingIssue is a deduplicated, structured record of an unresolved or
// ambiguous name chain. One issue exists per distinct key per batch; RowCount
// aggregates every raw row sharing that key.
type MappingIssue struct {
	UploadID       string      `json:"upload_id"`
	ReportType     ReportType  `json:"report_type"`
	EntityLevel    EntityLevel `json:"entity_level"`
	IssueType      IssueType   `json:"issue_type"`
	KeyJSON        string      `json:"key_json"`
	CandidatesJSON string      `json:"candidates_json,omitempty"`
	RowCount       int         `json:"row_count"`
}
