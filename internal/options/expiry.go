package options

import "time"

// IST is the exchange time zone.
var IST = loadIST()

func loadIST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// LastThursday returns the monthly expiry (last Thursday, 15:30 IST) of a month.
func LastThursday(year int, month time.Month) time.Time {
	// Day 0 of the following month is the last day of this one.
	lastDay := time.Date(year, month+1, 0, 15, 30, 0, 0, IST)
	for lastDay.Weekday() != time.Thursday {
		lastDay = lastDay.AddDate(0, 0, -1)
	}
	return lastDay
}

// MonthlyExpiries returns the last Thursdays of the n months following now.
func MonthlyExpiries(now time.Time, n int) []time.Time {
	local := now.In(IST)
	expiries := make([]time.Time, 0, n)
	for i := 1; i <= n; i++ {
		first := time.Date(local.Year(), local.Month()+time.Month(i), 1, 0, 0, 0, 0, IST)
		expiries = append(expiries, LastThursday(first.Year(), first.Month()))
	}
	return expiries
}

// YearsToExpiry returns the time from now to expiry in years (365-day basis).
func YearsToExpiry(now, expiry time.Time) float64 {
	return expiry.Sub(now).Hours() / 24 / 365
}

// DaysToExpiry returns whole calendar days left, never negative.
func DaysToExpiry(now, expiry time.Time) int {
	days := int(expiry.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
