package usecase

import "time"

// TradingDay anchors "today" in a fixed time zone so the daily-loss window does not depend on the
// host's local clock.
type TradingDay struct {
	loc *time.Location
}

// NewTradingDay falls back to UTC when tz cannot be loaded.
func NewTradingDay(tz string) TradingDay {
	if tz == "" {
		return TradingDay{loc: time.UTC}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return TradingDay{loc: time.UTC}
	}
	return TradingDay{loc: loc}
}

func (d TradingDay) location() *time.Location {
	if d.loc == nil {
		return time.UTC
	}
	return d.loc
}

// Open returns local midnight of the day containing now.
func (d TradingDay) Open(now time.Time) time.Time {
	y, m, day := now.In(d.location()).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, d.location())
}

// Same reports whether a and b fall on the same local day.
func (d TradingDay) Same(a, b time.Time) bool {
	return d.Open(a).Equal(d.Open(b))
}

// Local converts t to the trading-day zone.
func (d TradingDay) Local(t time.Time) time.Time {
	return t.In(d.location())
}
