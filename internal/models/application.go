package models

import "time"

// ApplicationStatus is the lifecycle of a teacher's bid on a posting.
type ApplicationStatus string

const (
	ApplicationStatusApplied     ApplicationStatus = "APPLIED"
	ApplicationStatusWithdrawn   ApplicationStatus = "WITHDRAWN"
	ApplicationStatusRejected    ApplicationStatus = "REJECTED"
	ApplicationStatusShortlisted ApplicationStatus = "SHORTLISTED"
	ApplicationStatusSelected    ApplicationStatus = "SELECTED"
)

// ValidApplicationStatus reports whether s is a known status value.
func ValidApplicationStatus(s ApplicationStatus) bool {
	switch s {
	case ApplicationStatusApplied, ApplicationStatusWithdrawn, ApplicationStatusRejected,
		ApplicationStatusShortlisted, ApplicationStatusSelected:
		return true
	}
	return false
}

// Withdrawable reports whether a teacher may withdraw from this status.
func (s ApplicationStatus) Withdrawable() bool {
	return s == ApplicationStatusApplied || s == ApplicationStatusShortlisted
}

// Application is a teacher's bid on a published dispatch. At most one row
// exists per (dispatch, teacher) pair; a withdrawn row is revived on
// re-apply instead of duplicated.
type Application struct {
	ID               string            `db:"id" json:"id"`
	DispatchID       string            `db:"dispatch_id" json:"dispatch_id"`
	TeacherProfileID string            `db:"teacher_profile_id" json:"teacher_profile_id"`
	Message          string            `db:"message" json:"message"`
	Status           ApplicationStatus `db:"status" json:"status"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationDetail is an application joined with applicant summary fields
// for the admin review screen.
type ApplicationDetail struct {
	Application
	TeacherFirstName string `db:"teacher_first_name" json:"teacher_first_name"`
	TeacherLastName  string `db:"teacher_last_name" json:"teacher_last_name"`
	TeacherEmail     string `db:"teacher_email" json:"teacher_email"`
	TeachingLanguage string `db:"teacher_language" json:"teacher_language"`
}

// ApplicationWithDispatch is an application joined with its posting, used
// on the teacher's "my applications" view.
type ApplicationWithDispatch struct {
	Application
	CourseTitle    string         `db:"course_title" json:"course_title"`
	BranchID       string         `db:"branch_id" json:"branch_id"`
	StartDate      time.Time      `db:"start_date" json:"start_date"`
	DispatchStatus DispatchStatus `db:"dispatch_status" json:"dispatch_status"`
}
