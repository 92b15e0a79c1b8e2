package usecase

import "time"

// TradingWindow limits the hours in which new positions may be opened. Management of open
// positions is not affected.
type TradingWindow struct {
	StartHour  int  `yaml:"start_hour"`
	StopHour   int  `yaml:"stop_hour"`
	OnlyEUOpen bool `yaml:"only_eu_open"`
	OnlyUSOpen bool `yaml:"only_us_open"`
}

func DefaultTradingWindow() TradingWindow {
	return TradingWindow{StartHour: 0, StopHour: 23}
}

// Allows reports whether an entry may be placed at t, which must already be in the trading-day
// time zone.
func (w TradingWindow) Allows(t time.Time) bool {
	switch {
	case w.OnlyEUOpen:
		return euRecentlyOpened(t)
	case w.OnlyUSOpen:
		return usRecentlyOpened(t)
	default:
		if t.Hour() < w.StartHour || t.Hour() > w.StopHour {
			return false
		}
		// The first hour and a half after the US open is too volatile for entries.
		return !usRecentlyOpened(t)
	}
}

func usRecentlyOpened(t time.Time) bool {
	return (t.Hour() == 15 && t.Minute() >= 30) || t.Hour() == 16
}

func euRecentlyOpened(t time.Time) bool {
	return t.Hour() == 9
}
