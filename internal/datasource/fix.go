package datasource

import (
	"regexp"
	"strings"
)

var (
	backtickIdent = regexp.MustCompile("`([^`]+)`")
	trailingLimit = regexp.MustCompile(`(?is)^SELECT\s+(DISTINCT\s+)?(.+?)\s+LIMIT\s+(\d+)$`)
	ilikeKeyword  = regexp.MustCompile(`(?i)\bILIKE\b`)
	nowCall       = regexp.MustCompile(`(?i)\bNOW\s*\(\s*\)`)
)

// RewriteForSQLServer repairs common non T-SQL constructs that models emit.
// It reports whether anything was changed.
func RewriteForSQLServer(query string) (string, bool) {
	original := strings.TrimSpace(query)

	out := strings.TrimSpace(strings.TrimRight(original, "; \t\n"))
	out = backtickIdent.ReplaceAllString(out, "[$1]")
	if !strings.Contains(strings.ToUpper(out), " TOP ") {
		out = trailingLimit.ReplaceAllString(out, "SELECT ${1}TOP ${3} ${2}")
	}
	out = ilikeKeyword.ReplaceAllString(out, "LIKE")
	out = nowCall.ReplaceAllString(out, "GETDATE()")

	return out, out != original
}
