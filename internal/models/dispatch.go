package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DispatchStatus is the lifecycle of a dispatch request / posting.
type DispatchStatus string

const (
	DispatchStatusRequested DispatchStatus = "REQUESTED"
	DispatchStatusInReview  DispatchStatus = "IN_REVIEW"
	DispatchStatusPublished DispatchStatus = "PUBLISHED"
	DispatchStatusClosed    DispatchStatus = "CLOSED"
	DispatchStatusAssigned  DispatchStatus = "ASSIGNED"
	DispatchStatusConfirmed DispatchStatus = "CONFIRMED"
	DispatchStatusCanceled  DispatchStatus = "CANCELED"
)

// Terminal reports whether the status permits no further transitions.
func (s DispatchStatus) Terminal() bool {
	return s == DispatchStatusConfirmed || s == DispatchStatusCanceled
}

// WeekdayList is a JSON-encoded list of weekday keys (MON..SUN).
type WeekdayList []string

// Value implements driver.Valuer.
func (w WeekdayList) Value() (driver.Value, error) {
	if w == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(w))
}

// Scan implements sql.Scanner.
func (w *WeekdayList) Scan(src interface{}) error {
	if src == nil {
		*w = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, w)
	case string:
		return json.Unmarshal([]byte(v), w)
	default:
		return fmt.Errorf("unsupported weekday column type %T", src)
	}
}

// DispatchRequest is a manager's request for a teacher at a branch. Once an
// admin publishes it, the same row is the public posting teachers apply to.
type DispatchRequest struct {
	ID          string `db:"id" json:"id"`
	BranchID    string `db:"branch_id" json:"branch_id"`
	RequestedBy string `db:"requested_by" json:"requested_by"`

	TeachingLanguage string      `db:"teaching_language" json:"teaching_language"`
	CourseTitle      string      `db:"course_title" json:"course_title"`
	Weekdays         WeekdayList `db:"weekdays" json:"weekdays"`

	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`

	StartDate time.Time `db:"start_date" json:"start_date"`
	// EndDate is always derived from start date, weekdays and lecture
	// count; it is never accepted from a client.
	EndDate      time.Time `db:"end_date" json:"end_date"`
	LectureCount int       `db:"lecture_count" json:"lecture_count"`

	StudentsCount *int    `db:"students_count" json:"students_count,omitempty"`
	Target        *string `db:"target" json:"target,omitempty"`
	Level         *string `db:"level" json:"level,omitempty"`
	IsOnline      bool    `db:"is_online" json:"is_online"`
	Requirements  *string `db:"requirements" json:"requirements,omitempty"`
	Notes         *string `db:"notes" json:"notes,omitempty"`

	RequesterName  string `db:"requester_name" json:"requester_name"`
	RequesterPhone string `db:"requester_phone" json:"requester_phone"`
	RequesterEmail string `db:"requester_email" json:"requester_email"`

	Status              DispatchStatus `db:"status" json:"status"`
	PublishedAt         *time.Time     `db:"published_at" json:"published_at,omitempty"`
	ApplicationDeadline *time.Time     `db:"application_deadline" json:"application_deadline,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Editable reports whether a manager may still modify the request.
// Once the posting leaves its pre-publish states, edits are rejected.
func (d *DispatchRequest) Editable() bool {
	return d.Status == DispatchStatusRequested || d.Status == DispatchStatusInReview
}

// DeadlinePassed reports whether the application deadline is strictly before
// the provided date.
func (d *DispatchRequest) DeadlinePassed(now time.Time) bool {
	if d.ApplicationDeadline == nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return d.ApplicationDeadline.Before(today)
}

// DispatchFilter captures admin listing criteria.
type DispatchFilter struct {
	Status   *DispatchStatus
	BranchID string
	Language string
	Page     int
	PageSize int
}

// DispatchBoardItem is a published posting annotated for the teacher board.
type DispatchBoardItem struct {
	DispatchRequest
	ApplicationsCount int  `db:"applications_count" json:"applications_count"`
	IsApplied         bool `json:"is_applied"`
}
