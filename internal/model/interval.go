package model

import (
	"fmt"
	"strings"
)

// Interval is a bar duration in the provider's token format.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
	Interval1wk Interval = "1wk"
	Interval1mo Interval = "1mo"
)

// intervalSeconds maps each interval to its duration in seconds.
// Weekly and monthly use nominal calendar lengths.
var intervalSeconds = map[Interval]int{
	Interval1m:  60,
	Interval5m:  300,
	Interval15m: 900,
	Interval30m: 1800,
	Interval1h:  3600,
	Interval1d:  86400,
	Interval1wk: 7 * 86400,
	Interval1mo: 30 * 86400,
}

// ParseInterval normalizes an interval token, accepting a few legacy
// spellings ("1D", "1H", "1W", "1M") alongside the canonical ones.
func ParseInterval(s string) (Interval, error) {
	switch strings.TrimSpace(s) {
	case "1m":
		return Interval1m, nil
	case "5m":
		return Interval5m, nil
	case "15m":
		return Interval15m, nil
	case "30m":
		return Interval30m, nil
	case "1h", "1H":
		return Interval1h, nil
	case "1d", "1D":
		return Interval1d, nil
	case "1wk", "1W":
		return Interval1wk, nil
	case "1mo", "1M":
		return Interval1mo, nil
	default:
		return "", fmt.Errorf("unsupported interval: %q", s)
	}
}

// Seconds returns the interval duration in seconds, or 0 for an unknown interval.
func (iv Interval) Seconds() int {
	return intervalSeconds[iv]
}

// Intraday reports whether the interval is shorter than one day.
func (iv Interval) Intraday() bool {
	s := iv.Seconds()
	return s > 0 && s < 86400
}
