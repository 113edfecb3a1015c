// Package schedule derives course end dates from a start date, the set of
// weekdays a course meets on, and the total lecture count. The derivation is
// pure so the write path can recompute it on every save.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// maxWalkDays caps the forward walk at roughly three years so malformed
// input cannot loop unbounded.
const maxWalkDays = 1098

var (
	// ErrNoWeekdays is returned when the weekday set is empty.
	ErrNoWeekdays = errors.New("at least one weekday is required")
	// ErrInvalidLectureCount is returned when lectureCount < 1.
	ErrInvalidLectureCount = errors.New("lecture count must be >= 1")
	// ErrCapExceeded is returned when the lecture count cannot be satisfied
	// within the walk cap.
	ErrCapExceeded = fmt.Errorf("lecture count not satisfiable within %d days", maxWalkDays)
)

var weekdayByKey = map[string]time.Weekday{
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
	"SUN": time.Sunday,
}

// WeekdayKeys lists the accepted weekday keys in calendar order.
var WeekdayKeys = []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// ParseWeekdays validates a list of weekday keys and returns the
// corresponding set. Unknown keys and duplicates are rejected.
func ParseWeekdays(keys []string) (map[time.Weekday]struct{}, error) {
	if len(keys) == 0 {
		return nil, ErrNoWeekdays
	}
	set := make(map[time.Weekday]struct{}, len(keys))
	for _, key := range keys {
		wd, ok := weekdayByKey[key]
		if !ok {
			return nil, fmt.Errorf("invalid weekday %q", key)
		}
		if _, dup := set[wd]; dup {
			return nil, fmt.Errorf("duplicate weekday %q", key)
		}
		set[wd] = struct{}{}
	}
	return set, nil
}

// DeriveEndDate walks forward from start (inclusive) counting days whose
// weekday belongs to the set, and returns the date of the lectureCount-th
// occurrence. The whole-day portion of start is used; the returned date has
// the same location with the time zeroed to midnight.
func DeriveEndDate(start time.Time, weekdays []string, lectureCount int) (time.Time, error) {
	set, err := ParseWeekdays(weekdays)
	if err != nil {
		return time.Time{}, err
	}
	if lectureCount < 1 {
		return time.Time{}, ErrInvalidLectureCount
	}

	current := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	count := 0
	for i := 0; i < maxWalkDays; i++ {
		if _, ok := set[current.Weekday()]; ok {
			count++
			if count == lectureCount {
				return current, nil
			}
		}
		current = current.AddDate(0, 0, 1)
	}

	// With a non-empty valid weekday set the cap is only reachable for
	// absurd lecture counts; surface that instead of guessing a date.
	return time.Time{}, ErrCapExceeded
}
