// Package optschain builds the expiry-date and strike-price grids shown
// in an options chain. Both generators are pure functions of the current
// time / underlying price — no I/O, no state.
package optschain

import (
	"math"
	"sort"
	"time"
)

// Expiries returns the chain's expiry-date set: this week's Friday
// (skipped if less than a day away), next Friday, this month's third
// Friday (if strictly in the future), and next month's third Friday.
// Duplicates are removed and the result is sorted ascending.
func Expiries(now time.Time) []time.Time {
	today := truncateToDay(now)

	thisFriday := nextWeekday(today, time.Friday, true)
	var candidates []time.Time
	if thisFriday.Sub(today) >= 24*time.Hour {
		candidates = append(candidates, thisFriday)
	}
	candidates = append(candidates, thisFriday.AddDate(0, 0, 7))

	thisMonthThird := thirdFriday(today.Year(), today.Month())
	if thisMonthThird.After(today) {
		candidates = append(candidates, thisMonthThird)
	}

	nextMonthYear, nextMonth := today.Year(), today.Month()+1
	if nextMonth > 12 {
		nextMonth = 1
		nextMonthYear++
	}
	candidates = append(candidates, thirdFriday(nextMonthYear, nextMonth))

	return dedupeSorted(candidates)
}

// Strikes returns the 21-strike grid centered on price: step size scales
// with price, offsets run [-10, 10] * step, and non-positive strikes are
// dropped.
func Strikes(price float64) []float64 {
	step := stepFor(price)
	center := math.Round(price/step) * step

	strikes := make([]float64, 0, 21)
	for i := -10; i <= 10; i++ {
		strike := center + float64(i)*step
		if strike > 0 {
			strikes = append(strikes, strike)
		}
	}
	return strikes
}

func stepFor(price float64) float64 {
	switch {
	case price < 50:
		return 1
	case price < 200:
		return 5
	case price < 500:
		return 10
	default:
		return 25
	}
}

// truncateToDay zeroes the time-of-day component, keeping the location.
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// nextWeekday returns the next occurrence of weekday on or after from.
// If inclusive is false and from is already that weekday, it advances a
// full week.
func nextWeekday(from time.Time, weekday time.Weekday, inclusive bool) time.Time {
	offset := int(weekday - from.Weekday())
	if offset < 0 {
		offset += 7
	}
	if offset == 0 && !inclusive {
		offset = 7
	}
	return from.AddDate(0, 0, offset)
}

// thirdFriday returns the third Friday of the given month.
func thirdFriday(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	firstFriday := nextWeekday(first, time.Friday, true)
	return firstFriday.AddDate(0, 0, 14)
}

func dedupeSorted(dates []time.Time) []time.Time {
	seen := make(map[string]bool, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		key := d.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
