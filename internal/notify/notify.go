package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Notification is a message for one or more users. ReferenceID points at
// the task, appointment or proposal the message is about.
type Notification struct {
	UserIDs     []string `json:"user_ids"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	Type        string   `json:"type"`
	ReferenceID string   `json:"reference_id"`
}

// Notification types emitted by the workflow packages.
const (
	TypeTaskApproved      = "task_approved"
	TypeTaskAvailable     = "task_available"
	TypeTaskScheduled     = "task_scheduled"
	TypeTaskCompleted     = "task_completed"
	TypeTaskCancelled     = "task_cancelled"
	TypeCheckInReceived   = "checkin_received"
	TypeAppointment       = "appointment_decision"
	TypeProposalCreated   = "proposal_created"
	TypeProposalForward   = "proposal_forwarded"
	TypeProposalRejected  = "proposal_rejected"
	TypeProposalApproved  = "proposal_approved"
	TypePaymentRequested  = "payment_requested"
	TypeScheduleReminder  = "schedule_reminder"
)

// Dispatcher delivers notifications. Delivery is fire-and-forget from the
// engine's perspective: failures are logged by the implementation, never
// retried inline and never surfaced to the state transition that emitted
// the notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// LogDispatcher writes notifications to the log. Used in tests and local
// runs without a broker.
type LogDispatcher struct{}

// Dispatch logs the notification.
func (LogDispatcher) Dispatch(ctx context.Context, n Notification) {
	log.WithFields(log.Fields{
		"user_ids":     n.UserIDs,
		"type":         n.Type,
		"title":        n.Title,
		"reference_id": n.ReferenceID,
	}).Info("notification dispatched")
}
