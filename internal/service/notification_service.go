package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/pkg/jobs"
	"github.com/friending/culture-dispatch-api/pkg/mailer"
)

type notificationUserSource interface {
	EmailsByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

type notificationTeacherSource interface {
	AcceptedEmails(ctx context.Context) ([]string, error)
}

// NotificationService composes workflow emails and delivers them through an
// in-process queue. Delivery is fire-and-forget: failures are logged and
// retried by the queue, never surfaced to the triggering request.
type NotificationService struct {
	sender   mailer.Sender
	users    notificationUserSource
	teachers notificationTeacherSource
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewNotificationService constructs the service and its mail queue.
func NewNotificationService(sender mailer.Sender, users notificationUserSource, teachers notificationTeacherSource, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = mailer.NopSender{}
	}
	s := &NotificationService{sender: sender, users: users, teachers: teachers, logger: logger}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("mail", s.deliver, cfg)
	return s
}

// Start launches the mail workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the mail workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		s.logger.Error("mail job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.sender.Send(msg)
}

// NotifyDispatchReceived informs platform admins that a manager filed a new
// dispatch request.
func (s *NotificationService) NotifyDispatchReceived(ctx context.Context, dispatch *models.DispatchRequest) {
	emails, err := s.users.EmailsByRole(ctx, models.RoleSuperAdmin)
	if err != nil {
		s.logger.Warn("failed to resolve admin recipients", zap.Error(err))
		return
	}
	subject := fmt.Sprintf("[dispatch] new request: %s", dispatch.CourseTitle)
	body := fmt.Sprintf("A new dispatch request was submitted.\n\nCourse: %s\nLanguage: %s\nStart date: %s\nLectures: %d\nRequested by: %s (%s)\n",
		dispatch.CourseTitle, dispatch.TeachingLanguage, dispatch.StartDate.Format("2006-01-02"), dispatch.LectureCount, dispatch.RequesterName, dispatch.RequesterEmail)
	s.enqueue(emails, subject, body)
}

// NotifyDispatchPublished informs accepted teachers that a posting opened.
func (s *NotificationService) NotifyDispatchPublished(ctx context.Context, dispatch *models.DispatchRequest) {
	emails, err := s.teachers.AcceptedEmails(ctx)
	if err != nil {
		s.logger.Warn("failed to resolve teacher recipients", zap.Error(err))
		return
	}
	subject := fmt.Sprintf("[dispatch] new posting: %s", dispatch.CourseTitle)
	deadline := "open until filled"
	if dispatch.ApplicationDeadline != nil {
		deadline = dispatch.ApplicationDeadline.Format("2006-01-02")
	}
	body := fmt.Sprintf("A new teaching position is open for applications.\n\nCourse: %s\nLanguage: %s\nStart date: %s\nDeadline: %s\n",
		dispatch.CourseTitle, dispatch.TeachingLanguage, dispatch.StartDate.Format("2006-01-02"), deadline)
	s.enqueue(emails, subject, body)
}

// NotifyWinnerSelected informs the selected teacher directly.
func (s *NotificationService) NotifyWinnerSelected(teacherEmail string, dispatch *models.DispatchRequest) {
	if teacherEmail == "" {
		return
	}
	subject := fmt.Sprintf("[dispatch] you were selected: %s", dispatch.CourseTitle)
	body := fmt.Sprintf("Congratulations, you were selected for the course %q starting %s. The center will confirm the final schedule shortly.\n",
		dispatch.CourseTitle, dispatch.StartDate.Format("2006-01-02"))
	s.enqueue([]string{teacherEmail}, subject, body)
}

func (s *NotificationService) enqueue(recipients []string, subject, body string) {
	for _, to := range recipients {
		job := jobs.Job{
			ID:   uuid.NewString(),
			Type: "mail",
			Payload: mailer.Message{
				To:      []string{to},
				Subject: subject,
				Body:    body,
			},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue mail",
				zap.String("to", to),
				zap.Int("queue_depth", s.queue.Depth()),
				zap.Error(err))
		}
	}
}
