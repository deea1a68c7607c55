package sqlflow

import (
	"regexp"
	"strings"
)

// Checker performs the static half of check-run: safety first, then a syntax
// sanity pass. Execution happens separately so validation failures never
// reach the target database.
type Checker struct{}

// deniedKeywords are statement kinds the pipeline must never execute. The
// engine answers questions; it does not mutate the target database.
var deniedKeywords = []string{
	"insert", "update", "delete", "drop", "truncate", "alter",
	"create", "grant", "revoke", "rename", "replace", "load",
	"call", "lock", "unlock", "set",
}

var leadingKeyword = regexp.MustCompile(`^\s*([a-zA-Z]+)`)

// Check validates one statement. It reports syntax validity and safety along
// with human-readable errors and warnings for the correction agent.
func (Checker) Check(sql string) (isValid, isSafe bool, errs, warnings []string) {
	isValid, isSafe = true, true
	trimmed := strings.TrimSpace(sql)

	if trimmed == "" {
		return false, true, []string{"empty SQL statement"}, nil
	}

	// Single statement only: a trailing semicolon is fine, an embedded one
	// is not.
	body := strings.TrimSuffix(trimmed, ";")
	if strings.Contains(body, ";") {
		isSafe = false
		errs = append(errs, "multiple statements are not allowed")
	}

	m := leadingKeyword.FindStringSubmatch(body)
	if m == nil {
		return false, isSafe, append(errs, "statement does not start with a keyword"), warnings
	}
	first := strings.ToLower(m[1])
	if first != "select" && first != "with" && first != "show" && first != "describe" && first != "explain" {
		isSafe = false
		errs = append(errs, "only read statements are allowed, got "+strings.ToUpper(first))
	}

	lower := " " + strings.ToLower(stripStrings(body)) + " "
	for _, kw := range deniedKeywords {
		if strings.Contains(lower, " "+kw+" ") {
			isSafe = false
			errs = append(errs, "forbidden keyword: "+strings.ToUpper(kw))
		}
	}

	if !balanced(body, '(', ')') {
		isValid = false
		errs = append(errs, "unbalanced parentheses")
	}
	if strings.Count(stripEscapes(body), "'")%2 != 0 {
		isValid = false
		errs = append(errs, "unterminated string literal")
	}
	if first == "select" && !strings.Contains(lower, " from ") && !selectWithoutFrom(lower) {
		warnings = append(warnings, "SELECT without FROM clause")
	}

	return isValid, isSafe, errs, warnings
}

// selectWithoutFrom allows constant selects like SELECT 1.
func selectWithoutFrom(lower string) bool {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lower), "select"))
	return rest != "" && !strings.ContainsAny(rest, "(")
}

// stripStrings blanks out single-quoted literals so keywords inside them do
// not trip the deny list.
func stripStrings(s string) string {
	var b strings.Builder
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && !inString:
			inString = true
			b.WriteByte(' ')
		case c == '\'' && inString:
			inString = false
			b.WriteByte(' ')
		case inString:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func stripEscapes(s string) string {
	return strings.ReplaceAll(s, `\'`, "")
}

func balanced(s string, open, close rune) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case open:
			depth++
		case close:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
