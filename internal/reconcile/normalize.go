// Package reconcile maps raw advertising report rows, which reference
// entities only by mutable display names, onto the stable IDs enumerated by a
// point-in-time inventory snapshot. Unresolved or ambiguous rows become
// structured mapping issues; the batch never fails as a whole.
package reconcile

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/adsync/internal/model"
)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// NormalizeName canonicalizes a display name for use as a resolution join
// key: unicode NFKC fold, lowercase, and whitespace collapse. Exact equality
// on the normalized form is the only automatic matching the engine performs;
// anything looser is surfaced as an issue instead of guessed.
func NormalizeName(name string) string {
	name = norm.NFKC.String(name)
	name = strings.ToLower(strings.TrimSpace(name))
	name = multiSpaceRe.ReplaceAllString(name, " ")
	return name
}

// NormalizeMatchType maps a report's match type column onto the normalized
// enum. Empty or unrecognized values collapse to MatchUnknown, which acts as
// a wildcard at resolve time.
func NormalizeMatchType(s string) model.MatchType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return model.MatchExact
	case "phrase":
		return model.MatchPhrase
	case "broad":
		return model.MatchBroad
	case "auto", "-":
		return model.MatchAuto
	default:
		return model.MatchUnknown
	}
}

// categoryExprRe matches product-category targeting expressions of the form
// category="Home & Kitchen" (whitespace-tolerant).
var categoryExprRe = regexp.MustCompile(`^category\s*=\s*"(.+)"$`)

// NormalizeExpression canonicalizes a targeting expression. Keyword
// expressions get the same treatment as names. Category expressions that
// reference a human-readable category name are rewritten to reference the
// category's stable ID, because snapshots store expressions with IDs while
// reports sometimes carry the display name. categoryIDByName maps normalized
// category names to IDs; unknown names are left as-is and will surface as
// unmapped targets.
func NormalizeExpression(expr string, categoryIDByName map[string]string) string {
	expr = NormalizeName(expr)

	m := categoryExprRe.FindStringSubmatch(expr)
	if m == nil {
		return expr
	}
	name := NormalizeName(m[1])
	id, ok := categoryIDByName[name]
	if !ok {
		return expr
	}
	return `category="` + id + `"`
}

// WildcardExpression is the targeting value auto campaigns report instead of
// a real expression. Rows carrying it resolve to no target.
const WildcardExpression = "*"
