package latis

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Render formats an Amount for display, left to a renderer collaborator
// rather than the sheet engine itself. Integers and money dollar
// amounts are comma-grouped; timestamps render relative to now, the
// way a terminal UI would want to show "edited 3 minutes ago" rather
// than a raw epoch.
func Render(a Amount) string {
	switch a.Kind {
	case KindString:
		return a.Str
	case KindBool:
		if a.Bool {
			return "True"
		}
		return "False"
	case KindInt:
		return humanize.Comma(a.Int)
	case KindDouble:
		return humanize.FormatFloat("#,###.##", a.Dbl)
	case KindTimestamp:
		t := time.Unix(a.Ts.Seconds, int64(a.Ts.Frac*1e9))
		return humanize.Time(t)
	case KindMoney:
		sign := ""
		if a.Money.Dollars < 0 {
			sign = "-"
		}
		return sign + a.Money.Currency.String() + " " + humanize.Comma(abs64(a.Money.Dollars)) + "." + twoDigits(a.Money.Cents)
	default:
		return ""
	}
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func twoDigits(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
