package discount

import "time"

// StatusAt derives the lifecycle status at the given instant. Paused wins
// over everything. Within the date range but outside a weekday or hour
// window the discount is dormant, not expired, so it reports scheduled.
// Weekday and hour checks use now's location.
func (d *Discount) StatusAt(now time.Time) Status {
	if d.Paused {
		return StatusPaused
	}
	w := d.Window
	if w.StartsAt != nil && now.Before(*w.StartsAt) {
		return StatusScheduled
	}
	if w.EndsAt != nil && now.After(*w.EndsAt) {
		return StatusExpired
	}
	if !w.allowsWeekday(now.Weekday()) || !w.allowsHour(now.Hour()) {
		return StatusScheduled
	}
	return StatusActive
}

// Contains reports whether hour h falls inside the range. Ranges where
// From > To wrap past midnight, so {22, 6} covers 22:00-05:59.
func (r HourRange) Contains(h int) bool {
	if r.From == r.To {
		return false
	}
	if r.From < r.To {
		return h >= r.From && h < r.To
	}
	return h >= r.From || h < r.To
}

func (w Window) allowsWeekday(day time.Weekday) bool {
	if len(w.Weekdays) == 0 {
		return true
	}
	for _, wd := range w.Weekdays {
		if wd == day {
			return true
		}
	}
	return false
}

func (w Window) allowsHour(h int) bool {
	if w.Hours == nil {
		return true
	}
	return w.Hours.Contains(h)
}
