package specialist

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

const noResultsText = "No results were found."

// formatTable renders rows as "a | b" lines under a header and a rule, with
// at most displayRows rows followed by a total line.
func formatTable(result contractx.QueryResult, displayRows int) string {
	if len(result.Rows) == 0 {
		return noResultsText
	}
	if displayRows <= 0 {
		displayRows = len(result.Rows)
	}

	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteByte('\n')

	width := len(result.Columns) * 3
	for _, c := range result.Columns {
		width += len(c)
	}
	b.WriteString(strings.Repeat("-", width))
	b.WriteByte('\n')

	cells := make([]string, 0, len(result.Columns))
	for i, row := range result.Rows {
		if i == displayRows {
			break
		}
		cells = cells[:0]
		for _, v := range row {
			cells = append(cells, formatValue(v))
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteByte('\n')
	}

	total := len(result.Rows)
	if total > displayRows {
		fmt.Fprintf(&b, "\n... (%d more rows omitted)\n", total-displayRows)
	}
	if result.Truncated {
		fmt.Fprintf(&b, "\nTotal rows: %d (row limit reached)", total)
	} else {
		fmt.Fprintf(&b, "\nTotal rows: %d", total)
	}
	return b.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', 2, 32)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
