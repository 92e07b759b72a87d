package strategy

import (
	"time"

	"github.com/rxtech-lab/fxstream-trading/internal/config"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// TradingWindow restricts order dispatch to a day-of-week subset and an
// inclusive local time-of-day range.
type TradingWindow struct {
	days        map[time.Weekday]bool
	startMinute int
	endMinute   int
	loc         *time.Location
}

// NewTradingWindow builds a TradingWindow from the trading hours
// configuration. The start and end bounds are both inclusive.
func NewTradingWindow(cfg config.TradingHoursConfig) (*TradingWindow, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error

		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidTradingWindow, err,
				"unknown timezone %q", cfg.Timezone)
		}
	}

	start, err := minuteOfDay(cfg.Start)
	if err != nil {
		return nil, err
	}

	end, err := minuteOfDay(cfg.End)
	if err != nil {
		return nil, err
	}

	if start > end {
		return nil, errors.Newf(errors.ErrCodeInvalidTradingWindow,
			"trading window start %s is after end %s", cfg.Start, cfg.End)
	}

	days := make(map[time.Weekday]bool, len(cfg.Days))
	for _, day := range cfg.Weekdays() {
		days[day] = true
	}

	if len(days) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidTradingWindow, "no trading days configured")
	}

	return &TradingWindow{
		days:        days,
		startMinute: start,
		endMinute:   end,
		loc:         loc,
	}, nil
}

// Contains reports whether t falls inside the trading window, evaluated in
// the window's configured timezone.
func (w *TradingWindow) Contains(t time.Time) bool {
	local := t.In(w.loc)

	if !w.days[local.Weekday()] {
		return false
	}

	minute := local.Hour()*60 + local.Minute()

	return minute >= w.startMinute && minute <= w.endMinute
}

func minuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeInvalidTradingWindow, err,
			"invalid time of day %q", s)
	}

	return t.Hour()*60 + t.Minute(), nil
}
