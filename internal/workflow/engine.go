package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drivewise/garage-ops/internal/clock"
	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/models"
	"github.com/drivewise/garage-ops/internal/notify"
	"github.com/drivewise/garage-ops/internal/vehicles"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

// releaseRetries bounds the re-read loop when a release loses a version
// race against a concurrent claim or release.
const releaseRetries = 3

// Engine owns task state transitions: triage approval, claim/release,
// completion and the payment hand-off. Every operation takes the acting
// user's claims explicitly; the engine keeps no ambient session state.
type Engine struct {
	tasks      db.TaskCollection
	users      db.UserCollection
	resolver   *vehicles.Resolver
	dispatcher notify.Dispatcher
	clock      clock.Clock
}

// NewEngine creates a task lifecycle engine.
func NewEngine(tasks db.TaskCollection, users db.UserCollection, resolver *vehicles.Resolver, dispatcher notify.Dispatcher, clk clock.Clock) *Engine {
	return &Engine{tasks: tasks, users: users, resolver: resolver, dispatcher: dispatcher, clock: clk}
}

// CheckInRequest is a customer-submitted service request for a vehicle
// standing at the gate.
type CheckInRequest struct {
	Plate       string        `json:"plate"`
	ServiceType string        `json:"service_type"`
	OwnerName   string        `json:"owner_name"`
	OwnerPhone  string        `json:"owner_phone"`
	Notes       string        `json:"notes"`
	Vehicle     vehicles.Attrs `json:"vehicle"`
}

// CreateTaskRequest is a staff- or manager-entered task.
type CreateTaskRequest struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Plate        string              `json:"plate"` // optional, empty for general tasks
	Vehicle      vehicles.Attrs      `json:"vehicle"`
	CustomerID   string              `json:"customer_id"`
	Priority     models.TaskPriority `json:"priority"`
	Price        *float64            `json:"price"`
	AllottedTime *int                `json:"allotted_time"`
}

// HandOverInput is the note a releasing staff member writes for whoever
// picks the task up next.
type HandOverInput struct {
	CompletedSoFar string `json:"completed_so_far"`
	RemainingWork  string `json:"remaining_work"`
}

// IsComplete reports whether both halves of the note carry content.
func (n *HandOverInput) IsComplete() bool {
	return n != nil && strings.TrimSpace(n.CompletedSoFar) != "" && strings.TrimSpace(n.RemainingWork) != ""
}

// IsEmpty reports whether the note carries no content at all.
func (n *HandOverInput) IsEmpty() bool {
	return n == nil || (strings.TrimSpace(n.CompletedSoFar) == "" && strings.TrimSpace(n.RemainingWork) == "")
}

// SubmitCheckIn records a customer check-in as a task awaiting manager
// triage. The vehicle is resolved (created or refreshed) by plate first.
func (e *Engine) SubmitCheckIn(ctx context.Context, actor models.Claims, req CheckInRequest) (*models.Task, error) {
	if actor.Role != models.RoleCustomer && !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: check-in requires a customer account", models.ErrForbidden)
	}
	if strings.TrimSpace(req.Plate) == "" {
		return nil, fmt.Errorf("%w: plate is required", models.ErrValidation)
	}
	if strings.TrimSpace(req.ServiceType) == "" {
		return nil, fmt.Errorf("%w: service type is required", models.ErrValidation)
	}

	attrs := req.Vehicle
	if attrs.OwnerID == "" && actor.Role == models.RoleCustomer {
		attrs.OwnerID = actor.UserID
	}
	vehicle, err := e.resolver.FindOrCreate(ctx, actor.OrgID, req.Plate, attrs)
	if err != nil {
		return nil, err
	}

	task := models.Task{
		OrgID:       actor.OrgID,
		VehicleID:   vehicle.ID.Hex(),
		CustomerID:  actor.UserID,
		CreatedBy:   actor.UserID,
		Title:       fmt.Sprintf("%s - %s", req.ServiceType, vehicle.Plate),
		Description: req.Notes,
		Status:      models.TaskWaitingForApproval,
		Priority:    models.PriorityNormal,
		Metadata: models.TaskMetadata{
			Kind: models.MetadataCheckIn,
			CheckIn: &models.CheckInPayload{
				Plate:         vehicle.Plate,
				ServiceType:   req.ServiceType,
				OwnerName:     req.OwnerName,
				OwnerPhone:    req.OwnerPhone,
				CustomerNotes: req.Notes,
			},
		},
	}

	created, err := e.tasks.InsertTask(ctx, task)
	if err != nil {
		return nil, err
	}

	e.notifyRoles(ctx, actor.OrgID, []models.Role{models.RoleManager, models.RoleSuperManager}, notify.Notification{
		Title:       "New check-in",
		Message:     fmt.Sprintf("Check-in for %s (%s) awaits approval", vehicle.Plate, req.ServiceType),
		Type:        notify.TypeCheckInReceived,
		ReferenceID: created.ID.Hex(),
	})
	return created, nil
}

// CreateTask records a staff-entered task directly on the board.
func (e *Engine) CreateTask(ctx context.Context, actor models.Claims, req CreateTaskRequest) (*models.Task, error) {
	if actor.Role == models.RoleCustomer {
		return nil, fmt.Errorf("%w: customers submit check-ins instead", models.ErrForbidden)
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrValidation)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if priority != models.PriorityNormal && priority != models.PriorityUrgent && priority != models.PriorityCritical {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, priority)
	}

	var vehicleID string
	if strings.TrimSpace(req.Plate) != "" {
		vehicle, err := e.resolver.FindOrCreate(ctx, actor.OrgID, req.Plate, req.Vehicle)
		if err != nil {
			return nil, err
		}
		vehicleID = vehicle.ID.Hex()
	}

	task := models.Task{
		OrgID:        actor.OrgID,
		VehicleID:    vehicleID,
		CustomerID:   req.CustomerID,
		CreatedBy:    actor.UserID,
		Title:        req.Title,
		Description:  req.Description,
		Status:       models.TaskWaiting,
		Priority:     priority,
		Price:        req.Price,
		AllottedTime: req.AllottedTime,
		Metadata:     models.TaskMetadata{Kind: models.MetadataManual},
	}

	created, err := e.tasks.InsertTask(ctx, task)
	if err != nil {
		return nil, err
	}

	e.notifyRoles(ctx, actor.OrgID, []models.Role{models.RoleStaff, models.RoleSuperManager}, notify.Notification{
		Title:       "New task on the board",
		Message:     created.Title,
		Type:        notify.TypeTaskAvailable,
		ReferenceID: created.ID.Hex(),
	})
	return created, nil
}

// Claim adds the actor to the task's assignee set and moves the task to
// in-progress. Claims are additive: two staff claiming near-simultaneously
// both end up assigned, which is how multi-worker tasks start.
func (e *Engine) Claim(ctx context.Context, actor models.Claims, taskID string) (*models.Task, error) {
	if !models.CanClaimTasks(actor.Role) {
		return nil, fmt.Errorf("%w: role %s cannot claim tasks", models.ErrForbidden, actor.Role)
	}

	task, err := e.tasks.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.checkOrg(task.OrgID, actor); err != nil {
		return nil, err
	}
	if task.IsTerminal() {
		return nil, fmt.Errorf("%w: task is %s", models.ErrConflict, task.Status)
	}
	if !models.CanTransitionTask(task.Status, models.TaskInProgress) {
		return nil, fmt.Errorf("%w: cannot claim a task in %s", models.ErrConflict, task.Status)
	}

	patch := bson.M{"status": models.TaskInProgress}
	if task.StartedAt == nil {
		patch["started_at"] = e.clock.Now()
	}
	return e.tasks.ClaimTask(ctx, taskID, actor.UserID, patch)
}

// Release removes the actor from the assignee set. A staff member leaving
// as sole assignee must hand over notes first; managers may leave without.
// When the last assignee leaves, the task goes back to the unclaimed pool.
func (e *Engine) Release(ctx context.Context, actor models.Claims, taskID string, note *HandOverInput) (*models.Task, error) {
	if !models.CanClaimTasks(actor.Role) && !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: role %s cannot release tasks", models.ErrForbidden, actor.Role)
	}

	var lastErr error
	for attempt := 0; attempt < releaseRetries; attempt++ {
		// Re-read every attempt: the sole-assignee decision must be made
		// against current state, not a stale local copy.
		task, err := e.tasks.FindTaskByID(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if err := e.checkOrg(task.OrgID, actor); err != nil {
			return nil, err
		}
		if task.IsTerminal() {
			return nil, fmt.Errorf("%w: task is %s", models.ErrConflict, task.Status)
		}
		if !task.HasAssignee(actor.UserID) {
			return nil, fmt.Errorf("%w: not assigned to this task", models.ErrConflict)
		}

		soleAssignee := len(task.AssignedTo) == 1
		if actor.Role == models.RoleStaff && soleAssignee && !note.IsComplete() {
			return nil, fmt.Errorf("%w: hand-over notes are required when leaving a task unattended", models.ErrValidation)
		}
		// A note is either recorded whole or rejected; half a hand-over
		// is worse than none for whoever picks the task up.
		var handOver *models.HandOverNote
		if !note.IsEmpty() {
			if !note.IsComplete() {
				return nil, fmt.Errorf("%w: a hand-over note needs both what was done and what remains", models.ErrValidation)
			}
			handOver = &models.HandOverNote{
				CompletedSoFar: note.CompletedSoFar,
				RemainingWork:  note.RemainingWork,
				AuthorID:       actor.UserID,
				LeftAt:         e.clock.Now(),
			}
		}

		patch := bson.M{}
		if soleAssignee {
			patch["status"] = models.TaskWaiting
		}

		updated, err := e.tasks.ReleaseTask(ctx, taskID, task.Version, actor.UserID, handOver, patch)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Complete finishes the work. Tasks with a price move to customer payment
// approval; free work closes immediately.
func (e *Engine) Complete(ctx context.Context, actor models.Claims, taskID string) (*models.Task, error) {
	if actor.Role == models.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot complete tasks", models.ErrForbidden)
	}

	task, err := e.tasks.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.checkOrg(task.OrgID, actor); err != nil {
		return nil, err
	}
	if task.Status == models.TaskCompleted {
		return nil, fmt.Errorf("%w: task already completed", models.ErrConflict)
	}
	if task.Status != models.TaskInProgress {
		return nil, fmt.Errorf("%w: cannot complete a task in %s", models.ErrConflict, task.Status)
	}

	now := e.clock.Now()
	next := models.TaskCompleted
	if task.Price != nil {
		next = models.TaskCustomerApproval
	}
	updated, err := e.tasks.UpdateTask(ctx, taskID, bson.M{"status": next, "completed_at": now})
	if err != nil {
		return nil, err
	}

	if next == models.TaskCustomerApproval && task.CustomerID != "" {
		e.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{task.CustomerID},
			Title:       "Work finished",
			Message:     fmt.Sprintf("%s is done and awaits your payment approval", task.Title),
			Type:        notify.TypePaymentRequested,
			ReferenceID: taskID,
		})
	}
	return updated, nil
}

// MarkPaid closes the payment loop after the external payment flow
// confirms, moving the task from customer approval to completed.
func (e *Engine) MarkPaid(ctx context.Context, actor models.Claims, taskID string) (*models.Task, error) {
	if actor.Role == models.RoleCustomer {
		return nil, fmt.Errorf("%w: payment is confirmed by the garage", models.ErrForbidden)
	}

	task, err := e.tasks.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.checkOrg(task.OrgID, actor); err != nil {
		return nil, err
	}
	if task.Status != models.TaskCustomerApproval {
		return nil, fmt.Errorf("%w: task is not awaiting payment", models.ErrConflict)
	}

	updated, err := e.tasks.UpdateTask(ctx, taskID, bson.M{"status": models.TaskCompleted})
	if err != nil {
		return nil, err
	}

	if task.CustomerID != "" {
		e.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{task.CustomerID},
			Title:       "Task completed",
			Message:     task.Title,
			Type:        notify.TypeTaskCompleted,
			ReferenceID: taskID,
		})
	}
	return updated, nil
}

// Approve triages a customer-submitted request. When the requested date is
// today the manager chooses between pushing it onto the live board now,
// deferring with a reminder, or deferring silently; a future-dated request
// is always scheduled.
func (e *Engine) Approve(ctx context.Context, actor models.Claims, taskID string, sendToTeamNow bool, reminderAt *time.Time) (*models.Task, error) {
	if !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: only managers approve requests", models.ErrForbidden)
	}

	task, err := e.tasks.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.checkOrg(task.OrgID, actor); err != nil {
		return nil, err
	}
	if task.Status != models.TaskWaitingForApproval {
		return nil, fmt.Errorf("%w: task is not awaiting approval", models.ErrConflict)
	}

	now := e.clock.Now()
	today := now.Format("2006-01-02")
	requested := task.ScheduledDate
	if requested == "" && task.Metadata.AppointmentRequest != nil {
		requested = task.Metadata.AppointmentRequest.Date
	}
	isToday := requested == "" || requested == today

	var updated *models.Task
	if isToday && sendToTeamNow {
		updated, err = e.tasks.UpdateTask(ctx, taskID, bson.M{"status": models.TaskWaiting})
		if err != nil {
			return nil, err
		}
		e.notifyRoles(ctx, task.OrgID, []models.Role{models.RoleStaff, models.RoleSuperManager}, notify.Notification{
			Title:       "New task on the board",
			Message:     updated.Title,
			Type:        notify.TypeTaskAvailable,
			ReferenceID: taskID,
		})
	} else {
		patch := bson.M{"status": models.TaskScheduled, "reminder_sent": false}
		if reminderAt != nil {
			patch["reminder_at"] = *reminderAt
		}
		if requested != "" {
			patch["scheduled_date"] = requested
		}
		updated, err = e.tasks.UpdateTask(ctx, taskID, patch)
		if err != nil {
			return nil, err
		}
	}

	if task.CustomerID != "" {
		msg := "Your request was approved"
		if updated.Status == models.TaskScheduled && requested != "" {
			msg = fmt.Sprintf("Your request was approved for %s", requested)
		}
		e.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{task.CustomerID},
			Title:       "Request approved",
			Message:     msg,
			Type:        notify.TypeTaskApproved,
			ReferenceID: taskID,
		})
	}
	return updated, nil
}

// Reject cancels a customer-submitted request during triage. There is no
// recovery from a rejection.
func (e *Engine) Reject(ctx context.Context, actor models.Claims, taskID string) (*models.Task, error) {
	if !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: only managers reject requests", models.ErrForbidden)
	}

	task, err := e.tasks.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.checkOrg(task.OrgID, actor); err != nil {
		return nil, err
	}
	if task.Status != models.TaskWaitingForApproval {
		return nil, fmt.Errorf("%w: task is not awaiting approval", models.ErrConflict)
	}

	updated, err := e.tasks.UpdateTask(ctx, taskID, bson.M{"status": models.TaskCancelled})
	if err != nil {
		return nil, err
	}

	if task.CustomerID != "" {
		e.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{task.CustomerID},
			Title:       "Request declined",
			Message:     task.Title,
			Type:        notify.TypeTaskCancelled,
			ReferenceID: taskID,
		})
	}
	return updated, nil
}

// Cancel aborts a task from any non-terminal state.
func (e *Engine) Cancel(ctx context.Context, actor models.Claims, taskID string) (*models.Task, error) {
	if !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: only managers cancel tasks", models.ErrForbidden)
	}

	task, err := e.tasks.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.checkOrg(task.OrgID, actor); err != nil {
		return nil, err
	}
	if task.IsTerminal() {
		return nil, fmt.Errorf("%w: task is %s", models.ErrConflict, task.Status)
	}

	return e.tasks.UpdateTask(ctx, taskID, bson.M{"status": models.TaskCancelled})
}

// PromoteDueReminders pushes scheduled tasks whose reminder time has
// passed onto the live board and notifies the team. The reminder daemon
// calls this on a poll interval. Returns the number promoted.
func (e *Engine) PromoteDueReminders(ctx context.Context) (int, error) {
	due, err := e.tasks.FindTasks(ctx, bson.M{
		"status":        models.TaskScheduled,
		"reminder_sent": false,
		"reminder_at":   bson.M{"$lte": e.clock.Now()},
	})
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, task := range due {
		id := task.ID.Hex()
		if _, err := e.tasks.UpdateTask(ctx, id, bson.M{
			"status":        models.TaskWaiting,
			"reminder_sent": true,
		}); err != nil {
			log.WithError(err).WithField("task_id", id).Error("reminder promotion failed")
			continue
		}
		promoted++
		e.notifyRoles(ctx, task.OrgID, []models.Role{models.RoleStaff, models.RoleSuperManager}, notify.Notification{
			Title:       "Scheduled task is due",
			Message:     task.Title,
			Type:        notify.TypeScheduleReminder,
			ReferenceID: id,
		})
	}
	return promoted, nil
}

// BoardEntry decorates a task with its display-level escalation flags for
// the live board. Overdue never changes the stored status.
type BoardEntry struct {
	Task      models.Task    `json:"task"`
	Overdue   bool           `json:"overdue"`
	TimeLeft  *time.Duration `json:"time_left,omitempty"`
	Escalated bool           `json:"escalated"`
}

// Board returns the org's live tasks with overdue flags computed for the
// viewing actor. Overdue tasks are flagged harder for managers.
func (e *Engine) Board(ctx context.Context, actor models.Claims) ([]BoardEntry, error) {
	if actor.Role == models.RoleCustomer {
		return nil, fmt.Errorf("%w: the board is staff-only", models.ErrForbidden)
	}

	tasks, err := e.tasks.FindTasks(ctx, bson.M{
		"org_id": actor.OrgID,
		"status": bson.M{"$in": []models.TaskStatus{
			models.TaskWaiting, models.TaskInProgress, models.TaskCustomerApproval,
		}},
	})
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	entries := make([]BoardEntry, 0, len(tasks))
	for _, task := range tasks {
		entry := BoardEntry{Task: task}
		if left, ok := task.TimeLeft(now); ok {
			l := left
			entry.TimeLeft = &l
			entry.Overdue = left < 0
			entry.Escalated = entry.Overdue && models.IsManagerRole(actor.Role)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// PendingApproval returns the org's customer requests awaiting triage.
func (e *Engine) PendingApproval(ctx context.Context, actor models.Claims) ([]models.Task, error) {
	if !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: triage is manager-only", models.ErrForbidden)
	}
	return e.tasks.FindTasks(ctx, bson.M{
		"org_id": actor.OrgID,
		"status": models.TaskWaitingForApproval,
	})
}

func (e *Engine) checkOrg(taskOrg string, actor models.Claims) error {
	if taskOrg != actor.OrgID {
		return fmt.Errorf("%w: task belongs to another garage", models.ErrForbidden)
	}
	return nil
}

// notifyRoles fans a notification out to all active users of the given
// roles in the org. Lookup failures are logged, not surfaced; delivery is
// fire-and-forget.
func (e *Engine) notifyRoles(ctx context.Context, orgID string, roles []models.Role, n notify.Notification) {
	users, err := e.users.FindUsers(ctx, bson.M{
		"org_id":    orgID,
		"role":      bson.M{"$in": roles},
		"is_active": true,
	})
	if err != nil {
		log.WithError(err).WithField("org_id", orgID).Error("notification fan-out lookup failed")
		return
	}
	if len(users) == 0 {
		return
	}
	for _, u := range users {
		n.UserIDs = append(n.UserIDs, u.ID.Hex())
	}
	e.dispatcher.Dispatch(ctx, n)
}
