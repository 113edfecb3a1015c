package models

import "time"

// CourseStatus is the lifecycle of a confirmed operating course.
type CourseStatus string

const (
	CourseStatusNew       CourseStatus = "NEW"
	CourseStatusReviewing CourseStatus = "REVIEWING"
	CourseStatusConfirmed CourseStatus = "CONFIRMED"
	CourseStatusOngoing   CourseStatus = "ONGOING"
	CourseStatusEnded     CourseStatus = "ENDED"
	CourseStatusCancelled CourseStatus = "CANCELLED"
)

// courseTransitions lists the permitted status moves for operating courses.
var courseTransitions = map[CourseStatus][]CourseStatus{
	CourseStatusNew:       {CourseStatusReviewing, CourseStatusConfirmed, CourseStatusCancelled},
	CourseStatusReviewing: {CourseStatusConfirmed, CourseStatusCancelled},
	CourseStatusConfirmed: {CourseStatusOngoing, CourseStatusCancelled},
	CourseStatusOngoing:   {CourseStatusEnded, CourseStatusCancelled},
}

// CanTransition reports whether a course may move from s to next.
func (s CourseStatus) CanTransition(next CourseStatus) bool {
	for _, allowed := range courseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Course is the confirmed operational record created once a winner is
// selected. Scheduling fields are duplicated from the dispatch so later
// edits to the request cannot retroactively alter a confirmed course.
type Course struct {
	ID               string `db:"id" json:"id"`
	DispatchID       string `db:"dispatch_id" json:"dispatch_id"`
	TeacherProfileID string `db:"teacher_profile_id" json:"teacher_profile_id"`
	BranchID         string `db:"branch_id" json:"branch_id"`

	TeachingLanguage string      `db:"teaching_language" json:"teaching_language"`
	CourseTitle      string      `db:"course_title" json:"course_title"`
	Weekdays         WeekdayList `db:"weekdays" json:"weekdays"`
	StartTime        string      `db:"start_time" json:"start_time"`
	EndTime          string      `db:"end_time" json:"end_time"`
	StartDate        time.Time   `db:"start_date" json:"start_date"`
	EndDate          time.Time   `db:"end_date" json:"end_date"`
	LectureCount     int         `db:"lecture_count" json:"lecture_count"`
	StudentsCount    *int        `db:"students_count" json:"students_count,omitempty"`

	RequesterName  string `db:"requester_name" json:"requester_name"`
	RequesterPhone string `db:"requester_phone" json:"requester_phone"`
	RequesterEmail string `db:"requester_email" json:"requester_email"`

	Notes     *string      `db:"notes" json:"notes,omitempty"`
	AdminMemo *string      `db:"admin_memo" json:"admin_memo,omitempty"`
	Status    CourseStatus `db:"status" json:"status"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures admin listing criteria.
type CourseFilter struct {
	Status   *CourseStatus
	BranchID string
	Page     int
	PageSize int
}
