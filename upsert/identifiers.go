package upsert

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// maxIdentifierLength is Postgres' NAMEDATALEN-1; longer names are truncated silently by the server.
const maxIdentifierLength = 63

// QuoteIdentifier folds a source field name to lower case and quotes it as a
// Postgres identifier. Folding matches what unquoted DDL produces, so
// "DailyReportID" and an unquoted DailyReportID column name the same column.
func QuoteIdentifier(name string) (string, error) {
	if !isSafeIdentifier(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	folded := strings.ToLower(name)
	if len(folded) > maxIdentifierLength {
		return "", fmt.Errorf("identifier %q exceeds %d bytes", name, maxIdentifierLength)
	}
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(folded, "\"", "\"\"")), nil
}

// isSafeIdentifier reports whether the identifier meets simple SQL safety rules.
func isSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' {
			continue
		}
		if unicode.IsLetter(r) {
			continue
		}
		if unicode.IsDigit(r) {
			if i == 0 {
				return false
			}
			continue
		}
		return false
	}
	return true
}

// quoteAll quotes every name, reporting the position of the first bad one.
func quoteAll(names []string) ([]string, error) {
	quoted := make([]string, len(names))
	for i, name := range names {
		q, err := QuoteIdentifier(name)
		if err != nil {
			return nil, fmt.Errorf("column[%d]: %w", i, err)
		}
		quoted[i] = q
	}
	return quoted, nil
}

// DeriveIndexName builds a safe deterministic name for indexes over the given table and keys.
func DeriveIndexName(table string, keys []string, suffix string) string {
	h := sha1.New()
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	writePart := func(part string) {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{'|'})
	}

	writePart(strings.ToLower(table))
	for _, key := range sorted {
		writePart(strings.ToLower(key))
	}
	writePart(strings.ToLower(suffix))

	digest := fmt.Sprintf("%x", h.Sum(nil))
	return fmt.Sprintf("idx_%s", digest[:16])
}
