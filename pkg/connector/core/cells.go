package core

import (
	"fmt"
	"strconv"
	"time"
)

// DateTimeLayout is how time cells are rendered. Spreadsheets given
// user-entered input parse it as a date.
const DateTimeLayout = "2006-01-02 15:04:05"

// FormatCell renders a cell as text. nil renders as the empty string.
func FormatCell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(DateTimeLayout)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
