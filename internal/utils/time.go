package utils

import (
	"time"
)

// MonthsFrom returns t moved forward by the given number of calendar months, in UTC.
func MonthsFrom(t time.Time, months int) time.Time {
	return t.UTC().AddDate(0, months, 0)
}
