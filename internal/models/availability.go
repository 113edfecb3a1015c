package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Availability is a weekly timetable payload: per weekday, the list of
// 30-minute slot indices the teacher is available for. Stored as a JSONB
// column.
type Availability struct {
	TZ          string           `json:"tz"`
	StepMinutes int              `json:"stepMinutes"`
	StartHour   int              `json:"startHour"`
	EndHour     int              `json:"endHour"`
	Days        map[string][]int `json:"days"`
}

// DefaultAvailability returns an empty weekly payload with standard bounds.
func DefaultAvailability() *Availability {
	days := make(map[string][]int, 7)
	for _, key := range []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"} {
		days[key] = []int{}
	}
	return &Availability{
		TZ:          "Asia/Seoul",
		StepMinutes: 30,
		StartHour:   6,
		EndHour:     24,
		Days:        days,
	}
}

// Validate checks the payload invariants: fixed timezone and step, sane hour
// bounds, and slot indices within [startHour, endHour).
func (a *Availability) Validate() error {
	if a == nil {
		return nil
	}
	if a.TZ != "Asia/Seoul" {
		return fmt.Errorf("tz must be Asia/Seoul")
	}
	if a.StepMinutes != 30 {
		return fmt.Errorf("stepMinutes must be 30")
	}
	if a.StartHour < 0 || a.StartHour > 23 {
		return fmt.Errorf("startHour must be between 0 and 23")
	}
	if a.EndHour < 1 || a.EndHour > 24 {
		return fmt.Errorf("endHour must be between 1 and 24")
	}
	if a.StartHour >= a.EndHour {
		return fmt.Errorf("startHour must be less than endHour")
	}

	startSlot := a.StartHour * 60 / a.StepMinutes
	endSlotExcl := a.EndHour * 60 / a.StepMinutes

	for day, slots := range a.Days {
		valid := false
		for _, key := range []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"} {
			if day == key {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown day key %q", day)
		}
		for _, slot := range slots {
			if slot < startSlot || slot >= endSlotExcl {
				return fmt.Errorf("%s slot index %d out of range (%d..%d)", day, slot, startSlot, endSlotExcl-1)
			}
		}
	}
	return nil
}

// Value implements driver.Valuer for JSONB persistence.
func (a *Availability) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Availability) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported availability column type %T", src)
	}
}
