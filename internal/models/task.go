package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskStatus represents the lifecycle state of a service task.
type TaskStatus string

const (
	// TaskWaitingForApproval is a customer-submitted request awaiting manager triage.
	TaskWaitingForApproval TaskStatus = "waiting_for_approval"
	// TaskScheduled is approved but deferred to a future date; not yet on the live board.
	TaskScheduled TaskStatus = "scheduled"
	// TaskWaiting is approved, unclaimed and visible to all staff.
	TaskWaiting TaskStatus = "waiting"
	// TaskInProgress has at least one staff assignee actively working it.
	TaskInProgress TaskStatus = "in_progress"
	// TaskCustomerApproval is finished work awaiting the customer's payment approval.
	TaskCustomerApproval TaskStatus = "customer_approval"
	// TaskCompleted is terminal.
	TaskCompleted TaskStatus = "completed"
	// TaskCancelled is terminal, reachable from any non-terminal state.
	TaskCancelled TaskStatus = "cancelled"
)

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	PriorityNormal   TaskPriority = "normal"
	PriorityUrgent   TaskPriority = "urgent"
	PriorityCritical TaskPriority = "critical"
)

// AllowedTaskTransitions is the directed graph of permitted status moves.
// Terminal states have no outgoing edges.
var AllowedTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskWaitingForApproval: {TaskWaiting, TaskScheduled, TaskCancelled},
	TaskScheduled:          {TaskWaiting, TaskCancelled},
	TaskWaiting:            {TaskInProgress, TaskCancelled},
	TaskInProgress:         {TaskWaiting, TaskCustomerApproval, TaskCompleted, TaskCancelled},
	TaskCustomerApproval:   {TaskCompleted, TaskCancelled},
	TaskCompleted:          {},
	TaskCancelled:          {},
}

// CanTransitionTask reports whether from -> to is a permitted status move.
func CanTransitionTask(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	for _, s := range AllowedTaskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// MetadataKind discriminates the payload carried in TaskMetadata.
type MetadataKind string

const (
	MetadataManual      MetadataKind = "manual"
	MetadataCheckIn     MetadataKind = "check_in"
	MetadataAppointment MetadataKind = "appointment"
)

// CheckInPayload holds the customer-supplied details of a walk-in check-in.
type CheckInPayload struct {
	Plate         string `bson:"plate" json:"plate"`
	ServiceType   string `bson:"service_type" json:"service_type"`
	OwnerName     string `bson:"owner_name" json:"owner_name"`
	OwnerPhone    string `bson:"owner_phone" json:"owner_phone"`
	CustomerNotes string `bson:"customer_notes,omitempty" json:"customer_notes,omitempty"`
}

// AppointmentRequestPayload snapshots the appointment a task was promoted from.
type AppointmentRequestPayload struct {
	Date        string `bson:"date" json:"date"` // "2006-01-02"
	Time        string `bson:"time" json:"time"` // "15:04"
	ServiceType string `bson:"service_type" json:"service_type"`
}

// HandOverNote is the mandatory note a sole staff assignee leaves when
// releasing a task back to the pool.
type HandOverNote struct {
	CompletedSoFar string    `bson:"completed_so_far" json:"completed_so_far"`
	RemainingWork  string    `bson:"remaining_work" json:"remaining_work"`
	AuthorID       string    `bson:"author_id" json:"author_id"`
	LeftAt         time.Time `bson:"left_at" json:"left_at"`
}

// TaskMetadata is a tagged union of the task's origin payloads plus the
// scheduling fields the calendar and the reminder daemon read. Unknown
// fields from older clients land in Extra.
type TaskMetadata struct {
	Kind                MetadataKind               `bson:"kind" json:"kind"`
	CheckIn             *CheckInPayload            `bson:"check_in,omitempty" json:"check_in,omitempty"`
	AppointmentRequest  *AppointmentRequestPayload `bson:"appointment_request,omitempty" json:"appointment_request,omitempty"`
	HandOverNotes       []HandOverNote             `bson:"hand_over_notes,omitempty" json:"hand_over_notes,omitempty"`
	SourceAppointmentID string                     `bson:"source_appointment_id,omitempty" json:"source_appointment_id,omitempty"`
	Extra               map[string]string          `bson:"extra,omitempty" json:"extra,omitempty"`
}

// Task is the unit of billable work.
type Task struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrgID         string             `bson:"org_id" json:"org_id"`
	VehicleID     string             `bson:"vehicle_id,omitempty" json:"vehicle_id,omitempty"` // empty for general tasks
	CustomerID    string             `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	CreatedBy     string             `bson:"created_by" json:"created_by"`
	Title         string             `bson:"title" json:"title"`
	Description   string             `bson:"description" json:"description"`
	Status        TaskStatus         `bson:"status" json:"status"`
	Priority      TaskPriority       `bson:"priority" json:"priority"`
	AssignedTo    []string           `bson:"assigned_to" json:"assigned_to"`
	Price         *float64           `bson:"price,omitempty" json:"price,omitempty"`
	AllottedTime  *int               `bson:"allotted_time,omitempty" json:"allotted_time,omitempty"` // minutes
	StartedAt     *time.Time         `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt   *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	ScheduledDate string             `bson:"scheduled_date,omitempty" json:"scheduled_date,omitempty"` // "2006-01-02"
	ScheduledTime string             `bson:"scheduled_time,omitempty" json:"scheduled_time,omitempty"` // "15:04"
	ReminderAt    *time.Time         `bson:"reminder_at,omitempty" json:"reminder_at,omitempty"`
	ReminderSent  bool               `bson:"reminder_sent" json:"reminder_sent"`
	Metadata      TaskMetadata       `bson:"metadata" json:"metadata"`
	Version       int64              `bson:"version" json:"version"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the task can no longer change status.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskCancelled
}

// HasAssignee reports whether userID is in the assignee set.
func (t *Task) HasAssignee(userID string) bool {
	for _, id := range t.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// TimeLeft returns the remaining allotted time as of now. The boolean is
// false when the task has no deadline (no allotted time, never started,
// or already terminal).
func (t *Task) TimeLeft(now time.Time) (time.Duration, bool) {
	if t.AllottedTime == nil || t.StartedAt == nil || t.IsTerminal() {
		return 0, false
	}
	deadline := t.StartedAt.Add(time.Duration(*t.AllottedTime) * time.Minute)
	return deadline.Sub(now), true
}

// IsOverdue reports whether the task has exceeded its allotted time.
// Overdue is a display escalation, never a status transition.
func (t *Task) IsOverdue(now time.Time) bool {
	left, ok := t.TimeLeft(now)
	return ok && left < 0
}
