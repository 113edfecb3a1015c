package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/pkg/jobs"
	"github.com/friending/culture-dispatch-api/pkg/mailer"
)

type recordingSender struct {
	messages chan mailer.Message
}

func (s *recordingSender) Send(msg mailer.Message) error {
	s.messages <- msg
	return nil
}

type mockUserSource struct {
	emails []string
}

func (m *mockUserSource) EmailsByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	return m.emails, nil
}

type mockTeacherSource struct {
	emails []string
}

func (m *mockTeacherSource) AcceptedEmails(ctx context.Context) ([]string, error) {
	return m.emails, nil
}

func collectMessages(t *testing.T, ch chan mailer.Message, n int) []mailer.Message {
	t.Helper()
	var msgs []mailer.Message
	for i := 0; i < n; i++ {
		select {
		case msg := <-ch:
			msgs = append(msgs, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	return msgs
}

func TestNotificationServiceDispatchReceived(t *testing.T) {
	sender := &recordingSender{messages: make(chan mailer.Message, 4)}
	users := &mockUserSource{emails: []string{"admin1@example.com", "admin2@example.com"}}
	svc := NewNotificationService(sender, users, &mockTeacherSource{}, zap.NewNop(), jobs.QueueConfig{Workers: 1})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.NotifyDispatchReceived(context.Background(), &models.DispatchRequest{
		ID: "d1", CourseTitle: "Conversation", TeachingLanguage: models.LanguageEnglish,
		StartDate: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), LectureCount: 8,
		RequesterName: "Kim Manager", RequesterEmail: "manager@example.com",
	})

	msgs := collectMessages(t, sender.messages, 2)
	var recipients []string
	for _, msg := range msgs {
		require.Len(t, msg.To, 1)
		recipients = append(recipients, msg.To[0])
		assert.Contains(t, msg.Subject, "Conversation")
		assert.Contains(t, msg.Body, "2026-09-07")
	}
	assert.ElementsMatch(t, []string{"admin1@example.com", "admin2@example.com"}, recipients)
}

func TestNotificationServiceDispatchPublishedNoDeadline(t *testing.T) {
	sender := &recordingSender{messages: make(chan mailer.Message, 2)}
	teachers := &mockTeacherSource{emails: []string{"teacher@example.com"}}
	svc := NewNotificationService(sender, &mockUserSource{}, teachers, zap.NewNop(), jobs.QueueConfig{Workers: 1})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.NotifyDispatchPublished(context.Background(), &models.DispatchRequest{
		ID: "d1", CourseTitle: "Conversation", TeachingLanguage: models.LanguageEnglish,
		StartDate: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
	})

	msgs := collectMessages(t, sender.messages, 1)
	assert.Contains(t, msgs[0].Body, "open until filled")
}

func TestNotificationServiceWinnerSelected(t *testing.T) {
	sender := &recordingSender{messages: make(chan mailer.Message, 2)}
	svc := NewNotificationService(sender, &mockUserSource{}, &mockTeacherSource{}, zap.NewNop(), jobs.QueueConfig{Workers: 1})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.NotifyWinnerSelected("winner@example.com", &models.DispatchRequest{
		ID: "d1", CourseTitle: "Conversation",
		StartDate: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
	})

	msgs := collectMessages(t, sender.messages, 1)
	assert.Equal(t, []string{"winner@example.com"}, msgs[0].To)
	assert.Contains(t, msgs[0].Subject, "selected")
}
