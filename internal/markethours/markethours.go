// Package markethours answers "is the exchange trading right now" for
// NSE and BSE. Both exchanges share the 9:15 AM – 3:30 PM IST session,
// Mon–Fri, and the same holiday calendar.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30

	// Poller warm-up: the realtime poller starts probing quotes a little
	// before the bell so the first ticks land at 9:15 sharp.
	PollWarmupMinutes = 1
)

// IsMarketOpen returns true if t falls within trading hours
// (9:15 AM – 3:30 PM IST, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// TodayOpen returns the session open (9:15 AM IST) on t's date.
func TodayOpen(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), OpenHour, OpenMinute, 0, 0, IST)
}

// TodayClose returns the session close (3:30 PM IST) on t's date.
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// NextOpen returns the next market open time (9:15 AM IST on the next
// trading day). If t is before today's open on a trading day, returns
// today's open.
func NextOpen(t time.Time) time.Time {
	ist := t.In(IST)

	if ist.Before(TodayOpen(ist)) && IsTradingDay(ist) {
		return TodayOpen(ist)
	}

	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if IsTradingDay(d) {
			return TodayOpen(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return TodayOpen(ist.AddDate(0, 0, 1))
}

// PollStartTime returns when the realtime poller should begin for the
// given session open, PollWarmupMinutes before the bell.
func PollStartTime(openTime time.Time) time.Time {
	return openTime.Add(-time.Duration(PollWarmupMinutes) * time.Minute)
}

// TimeUntilClose returns the duration until today's close.
// Returns 0 if market is already closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t.In(IST))
	if d < 0 {
		return 0
	}
	return d
}

// TimeUntilOpen returns the duration until the next market open.
func TimeUntilOpen(t time.Time) time.Duration {
	return NextOpen(t).Sub(t.In(IST))
}

// StatusString returns a human-readable market status for an exchange.
func StatusString(exchange string, t time.Time) string {
	if IsMarketOpen(t) {
		d := TimeUntilClose(t)
		return fmt.Sprintf("%s Open - closes in %s", exchange, fmtDur(d))
	}
	next := NextOpen(t)
	d := next.Sub(t)
	ist := next.In(IST)
	return fmt.Sprintf("%s Closed - opens %s %s (%s)",
		exchange, ist.Weekday().String()[:3], ist.Format("15:04"), fmtDur(d))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
