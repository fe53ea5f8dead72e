package appointments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/drivewise/garage-ops/internal/clock"
	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/models"
	"github.com/drivewise/garage-ops/internal/notify"
	"go.mongodb.org/mongo-driver/bson"
)

// Manager owns appointment triage and the promotion of approved
// appointments into tasks. Appointment and task lifecycles are decoupled
// once split: rejecting or cancelling an appointment never touches a task
// that already exists for it.
type Manager struct {
	appointments db.AppointmentCollection
	tasks        db.TaskCollection
	users        db.UserCollection
	dispatcher   notify.Dispatcher
	clock        clock.Clock
}

// NewManager creates an appointment manager.
func NewManager(appointments db.AppointmentCollection, tasks db.TaskCollection, users db.UserCollection, dispatcher notify.Dispatcher, clk clock.Clock) *Manager {
	return &Manager{appointments: appointments, tasks: tasks, users: users, dispatcher: dispatcher, clock: clk}
}

// Request is a customer- or staff-entered appointment booking.
type Request struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Plate         string `json:"plate"`
	ServiceType   string `json:"service_type"`
	Date          string `json:"date"` // "2006-01-02"
	Time          string `json:"time"` // "15:04"
	Notes         string `json:"notes"`
}

// Book records a new appointment request in PENDING.
func (m *Manager) Book(ctx context.Context, actor models.Claims, req Request) (*models.Appointment, error) {
	if strings.TrimSpace(req.ServiceType) == "" {
		return nil, fmt.Errorf("%w: service type is required", models.ErrValidation)
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", models.ErrValidation, req.Date)
	}
	if _, err := time.Parse("15:04", req.Time); err != nil {
		return nil, fmt.Errorf("%w: invalid time %q", models.ErrValidation, req.Time)
	}

	appointment := models.Appointment{
		OrgID:         actor.OrgID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Plate:         strings.TrimSpace(req.Plate),
		ServiceType:   req.ServiceType,
		Date:          req.Date,
		Time:          req.Time,
		Notes:         req.Notes,
		Status:        models.AppointmentPending,
	}
	if actor.Role == models.RoleCustomer {
		appointment.CustomerID = actor.UserID
	}

	return m.appointments.InsertAppointment(ctx, appointment)
}

// FetchPending returns the org's PENDING appointments ordered by requested
// date ascending, the order the triage screen wants.
func (m *Manager) FetchPending(ctx context.Context, actor models.Claims) ([]models.Appointment, error) {
	if !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: triage is manager-only", models.ErrForbidden)
	}
	return m.appointments.FindAppointments(ctx, bson.M{
		"org_id": actor.OrgID,
		"status": models.AppointmentPending,
	})
}

// FetchWeek returns the org's non-terminal appointments in [from, to],
// dates in "2006-01-02" form. The calendar reconciler feeds on this.
func (m *Manager) FetchWeek(ctx context.Context, actor models.Claims, from, to string) ([]models.Appointment, error) {
	filter := bson.M{
		"org_id": actor.OrgID,
		"status": bson.M{"$in": []models.AppointmentStatus{models.AppointmentPending, models.AppointmentApproved}},
	}
	if from != "" && to != "" {
		filter["date"] = bson.M{"$gte": from, "$lte": to}
	}
	return m.appointments.FindAppointments(ctx, filter)
}

// Approve sets the appointment APPROVED and, when createTaskNow is set,
// synchronously promotes it into a task. The customer is always notified.
func (m *Manager) Approve(ctx context.Context, actor models.Claims, id string, createTaskNow bool) (*models.Appointment, error) {
	if !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: only managers approve appointments", models.ErrForbidden)
	}

	appointment, err := m.appointments.FindAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.OrgID != actor.OrgID {
		return nil, fmt.Errorf("%w: appointment belongs to another garage", models.ErrForbidden)
	}
	if appointment.Status != models.AppointmentPending {
		return nil, fmt.Errorf("%w: appointment is %s", models.ErrConflict, appointment.Status)
	}
	// Conflicts must be reported before anything is written.
	if appointment.TaskID != "" {
		return nil, fmt.Errorf("%w: appointment already promoted", models.ErrConflict)
	}

	updated, err := m.appointments.UpdateAppointment(ctx, id, bson.M{"status": models.AppointmentApproved})
	if err != nil {
		return nil, err
	}

	if createTaskNow {
		updated, err = m.Promote(ctx, actor, id)
		if err != nil {
			return nil, err
		}
	}

	if updated.CustomerID != "" {
		m.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{updated.CustomerID},
			Title:       "Appointment approved",
			Message:     fmt.Sprintf("Your %s appointment on %s at %s was approved", updated.ServiceType, updated.Date, updated.Time),
			Type:        notify.TypeAppointment,
			ReferenceID: id,
		})
	}
	return updated, nil
}

// Promote converts an approved appointment into exactly one task. The
// task_id back-reference is set atomically; a second promotion returns
// models.ErrConflict and creates nothing.
func (m *Manager) Promote(ctx context.Context, actor models.Claims, id string) (*models.Appointment, error) {
	if !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: only managers promote appointments", models.ErrForbidden)
	}

	appointment, err := m.appointments.FindAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.TaskID != "" {
		return nil, fmt.Errorf("%w: appointment already promoted", models.ErrConflict)
	}
	if appointment.Status != models.AppointmentApproved {
		return nil, fmt.Errorf("%w: only approved appointments promote, appointment is %s", models.ErrConflict, appointment.Status)
	}

	// A same-day promotion lands on the live board; future dates wait on
	// the schedule until the reminder daemon or a manager pushes them.
	status := models.TaskScheduled
	if appointment.Date == m.clock.Now().Format("2006-01-02") {
		status = models.TaskWaiting
	}

	task := models.Task{
		OrgID:         appointment.OrgID,
		VehicleID:     appointment.VehicleID,
		CustomerID:    appointment.CustomerID,
		CreatedBy:     actor.UserID,
		Title:         fmt.Sprintf("%s - appointment %s %s", appointment.ServiceType, appointment.Date, appointment.Time),
		Description:   appointment.Notes,
		Status:        status,
		Priority:      models.PriorityNormal,
		ScheduledDate: appointment.Date,
		ScheduledTime: appointment.Time,
		Metadata: models.TaskMetadata{
			Kind:                models.MetadataAppointment,
			SourceAppointmentID: id,
			AppointmentRequest: &models.AppointmentRequestPayload{
				Date:        appointment.Date,
				Time:        appointment.Time,
				ServiceType: appointment.ServiceType,
			},
		},
	}

	created, err := m.tasks.InsertTask(ctx, task)
	if err != nil {
		return nil, err
	}

	updated, err := m.appointments.MarkAppointmentPromoted(ctx, id, created.ID.Hex())
	if err != nil {
		// Lost the promotion race: another client already split off a
		// task. The one we just created is now an orphan; cancel it.
		_, _ = m.tasks.UpdateTask(ctx, created.ID.Hex(), bson.M{"status": models.TaskCancelled})
		return nil, err
	}

	if appointment.CustomerID != "" {
		m.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{appointment.CustomerID},
			Title:       "Appointment scheduled",
			Message:     fmt.Sprintf("Your %s appointment is booked in for %s %s", appointment.ServiceType, appointment.Date, appointment.Time),
			Type:        notify.TypeTaskScheduled,
			ReferenceID: created.ID.Hex(),
		})
	}
	return updated, nil
}

// Reject declines a pending appointment. No task is created.
func (m *Manager) Reject(ctx context.Context, actor models.Claims, id string) (*models.Appointment, error) {
	return m.close(ctx, actor, id, models.AppointmentRejected, "Appointment declined")
}

// Cancel withdraws an appointment. A task already split off is left untouched.
func (m *Manager) Cancel(ctx context.Context, actor models.Claims, id string) (*models.Appointment, error) {
	appointment, err := m.appointments.FindAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Customers may cancel their own appointment; everything else is
	// manager territory.
	if actor.Role == models.RoleCustomer && appointment.CustomerID != actor.UserID {
		return nil, fmt.Errorf("%w: not your appointment", models.ErrForbidden)
	}
	if actor.Role != models.RoleCustomer && !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: only managers cancel appointments", models.ErrForbidden)
	}
	return m.close(ctx, actor, id, models.AppointmentCancelled, "Appointment cancelled")
}

func (m *Manager) close(ctx context.Context, actor models.Claims, id string, status models.AppointmentStatus, title string) (*models.Appointment, error) {
	if status == models.AppointmentRejected && !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: only managers reject appointments", models.ErrForbidden)
	}

	appointment, err := m.appointments.FindAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.OrgID != actor.OrgID {
		return nil, fmt.Errorf("%w: appointment belongs to another garage", models.ErrForbidden)
	}
	if appointment.IsTerminalStatus() {
		return nil, fmt.Errorf("%w: appointment is %s", models.ErrConflict, appointment.Status)
	}

	updated, err := m.appointments.UpdateAppointment(ctx, id, bson.M{"status": status})
	if err != nil {
		return nil, err
	}

	if updated.CustomerID != "" && updated.CustomerID != actor.UserID {
		m.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{updated.CustomerID},
			Title:       title,
			Message:     fmt.Sprintf("%s on %s at %s", updated.ServiceType, updated.Date, updated.Time),
			Type:        notify.TypeAppointment,
			ReferenceID: id,
		})
	}
	return updated, nil
}

// Reschedule moves an appointment to a new slot. When the appointment was
// already promoted, the task's schedule fields move with it. Status never
// changes here.
func (m *Manager) Reschedule(ctx context.Context, actor models.Claims, id, newDate, newTime string) (*models.Appointment, error) {
	if !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: only managers reschedule appointments", models.ErrForbidden)
	}
	if _, err := time.Parse("2006-01-02", newDate); err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", models.ErrValidation, newDate)
	}
	if _, err := time.Parse("15:04", newTime); err != nil {
		return nil, fmt.Errorf("%w: invalid time %q", models.ErrValidation, newTime)
	}

	appointment, err := m.appointments.FindAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.OrgID != actor.OrgID {
		return nil, fmt.Errorf("%w: appointment belongs to another garage", models.ErrForbidden)
	}

	updated, err := m.appointments.UpdateAppointment(ctx, id, bson.M{"date": newDate, "time": newTime})
	if err != nil {
		return nil, err
	}

	if updated.TaskID != "" {
		if _, err := m.tasks.UpdateTask(ctx, updated.TaskID, bson.M{
			"scheduled_date": newDate,
			"scheduled_time": newTime,
		}); err != nil {
			return nil, err
		}
	}
	return updated, nil
}
