package sqlstore

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Any of these words outside a string literal refuses the statement.
	mutationPattern = regexp.MustCompile(`(?i)\b(insert|update|delete|alter|drop|truncate|create|merge|upsert|grant|revoke|attach|detach|vacuum|reindex|copy|pragma|lock|into)\b`)
	replaceInto     = regexp.MustCompile(`(?i)\breplace\s+into\b`)
	readPrefix      = regexp.MustCompile(`(?is)^\s*(\(\s*)*(select|with)\b`)
	dollarQuote     = regexp.MustCompile(`\$\w*\$`)
)

// Guard validates that statement is a single read-only query and returns it
// normalized. It never executes anything.
func Guard(statement string) (string, error) {
	stmt := strings.TrimSpace(statement)
	stmt = strings.TrimSpace(strings.TrimRight(stmt, "; \t\r\n"))
	if stmt == "" {
		return "", fmt.Errorf("%w: empty statement", ErrUnsafeStatement)
	}

	inspect, err := inspectable(stmt)
	if err != nil {
		return "", err
	}

	if dollarQuote.MatchString(inspect) {
		return "", fmt.Errorf("%w: dollar-quoted strings are not allowed", ErrUnsafeStatement)
	}
	if m := mutationPattern.FindString(inspect); m != "" {
		return "", fmt.Errorf("%w: contains %s", ErrUnsafeStatement, strings.ToUpper(m))
	}
	if replaceInto.MatchString(inspect) {
		return "", fmt.Errorf("%w: contains REPLACE INTO", ErrUnsafeStatement)
	}
	if strings.Contains(inspect, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrUnsafeStatement)
	}
	if !readPrefix.MatchString(inspect) {
		return "", fmt.Errorf("%w: only SELECT statements are allowed", ErrUnsafeStatement)
	}
	return stmt, nil
}

// inspectable returns stmt with comments removed and the contents of string
// literals blanked, scanned left to right so that comment markers inside a
// literal and quotes inside a comment are both seen for what they are.
// Quoted identifiers are kept verbatim: their text is still inspected.
// Anything the scanner cannot delimit with certainty is refused.
func inspectable(stmt string) (string, error) {
	var b strings.Builder
	b.Grow(len(stmt))

	for i := 0; i < len(stmt); {
		c := stmt[i]
		switch {
		case c == '-' && i+1 < len(stmt) && stmt[i+1] == '-':
			end := strings.IndexByte(stmt[i:], '\n')
			if end < 0 {
				i = len(stmt)
			} else {
				i += end
			}
			b.WriteByte(' ')

		case c == '/' && i+1 < len(stmt) && stmt[i+1] == '*':
			end := strings.Index(stmt[i+2:], "*/")
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated comment", ErrUnsafeStatement)
			}
			i += 2 + end + 2
			b.WriteByte(' ')

		case c == '\'':
			end, ok := closingQuote(stmt, i, '\'')
			if !ok {
				return "", fmt.Errorf("%w: unterminated string literal", ErrUnsafeStatement)
			}
			body := stmt[i+1 : end]
			// Backslash escapes are dialect dependent, so the literal's end is uncertain.
			if strings.ContainsRune(body, '\\') {
				return "", fmt.Errorf("%w: backslash in string literal", ErrUnsafeStatement)
			}
			b.WriteByte('\'')
			b.WriteString(strings.Repeat(" ", len(body)))
			b.WriteByte('\'')
			i = end + 1

		case c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			end, ok := closingQuote(stmt, i, closer)
			if !ok {
				return "", fmt.Errorf("%w: unterminated quoted identifier", ErrUnsafeStatement)
			}
			b.WriteString(stmt[i : end+1])
			i = end + 1

		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// closingQuote finds the index of the quote closing the one opened at start.
// A doubled quote is an escaped quote.
func closingQuote(s string, start int, quote byte) (int, bool) {
	for j := start + 1; j < len(s); j++ {
		if s[j] != quote {
			continue
		}
		if quote != ']' && j+1 < len(s) && s[j+1] == quote {
			j++
			continue
		}
		return j, true
	}
	return 0, false
}
