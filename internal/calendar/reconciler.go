package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// Working hours of the garage. Slots are hourly; the last bookable slot
// starts one hour before close.
const (
	OpenHour  = 7
	CloseHour = 19
)

// Slot is one (day, hour) cell of the week grid. A cell with neither an
// appointment nor a task is bookable. When both exist for the same source
// appointment, the task wins: a promoted appointment is represented by its
// task from then on, and interaction routes to task management.
type Slot struct {
	Date        string              `json:"date"` // "2006-01-02"
	Hour        int                 `json:"hour"`
	Appointment *models.Appointment `json:"appointment,omitempty"`
	Task        *models.Task        `json:"task,omitempty"`
}

// Occupied reports whether the slot holds an appointment or a task.
func (s *Slot) Occupied() bool {
	return s.Appointment != nil || s.Task != nil
}

// Bookable reports whether the booking form should open for this slot.
func (s *Slot) Bookable() bool {
	return !s.Occupied()
}

// Week is a 7-day occupancy grid over working hours.
type Week struct {
	Start string  `json:"start"` // first day, "2006-01-02"
	Slots []*Slot `json:"slots"`
}

// SlotAt returns the cell for (date, hour), or nil outside the grid.
func (w *Week) SlotAt(date string, hour int) *Slot {
	for _, slot := range w.Slots {
		if slot.Date == date && slot.Hour == hour {
			return slot
		}
	}
	return nil
}

// Reconciler merges raw appointments and promoted-but-deferred tasks into
// a single week view.
type Reconciler struct {
	appointments db.AppointmentCollection
	tasks        db.TaskCollection
}

// NewReconciler creates a calendar reconciler.
func NewReconciler(appointments db.AppointmentCollection, tasks db.TaskCollection) *Reconciler {
	return &Reconciler{appointments: appointments, tasks: tasks}
}

// BuildWeek assembles the 7-day grid starting at weekStart for the org.
func (r *Reconciler) BuildWeek(ctx context.Context, orgID string, weekStart time.Time) (*Week, error) {
	from := weekStart.Format("2006-01-02")
	to := weekStart.AddDate(0, 0, 6).Format("2006-01-02")

	appointments, err := r.appointments.FindAppointments(ctx, bson.M{
		"org_id": orgID,
		"status": bson.M{"$in": []models.AppointmentStatus{models.AppointmentPending, models.AppointmentApproved}},
		"date":   bson.M{"$gte": from, "$lte": to},
	})
	if err != nil {
		return nil, err
	}

	tasks, err := r.tasks.FindTasks(ctx, bson.M{
		"org_id":         orgID,
		"status":         models.TaskScheduled,
		"scheduled_date": bson.M{"$gte": from, "$lte": to},
	})
	if err != nil {
		return nil, err
	}

	return Reconcile(weekStart, appointments, tasks), nil
}

// Reconcile builds the grid from already-fetched records. Pure; exposed
// separately so the merge rules are testable without a store.
func Reconcile(weekStart time.Time, appointments []models.Appointment, tasks []models.Task) *Week {
	week := &Week{Start: weekStart.Format("2006-01-02")}
	index := make(map[string]*Slot)
	for d := 0; d < 7; d++ {
		date := weekStart.AddDate(0, 0, d).Format("2006-01-02")
		for hour := OpenHour; hour < CloseHour; hour++ {
			slot := &Slot{Date: date, Hour: hour}
			week.Slots = append(week.Slots, slot)
			index[cellKey(date, hour)] = slot
		}
	}

	// Tasks first so they hold the cell; their source appointments are
	// suppressed below.
	promoted := make(map[string]bool)
	for i := range tasks {
		task := tasks[i]
		hour, ok := slotHour(task.ScheduledTime)
		if !ok {
			continue
		}
		slot, ok := index[cellKey(task.ScheduledDate, hour)]
		if !ok {
			continue
		}
		slot.Task = &task
		if task.Metadata.SourceAppointmentID != "" {
			promoted[task.Metadata.SourceAppointmentID] = true
		}
	}

	for i := range appointments {
		appointment := appointments[i]
		if promoted[appointment.ID.Hex()] || appointment.TaskID != "" {
			continue
		}
		hour, ok := slotHour(appointment.Time)
		if !ok {
			continue
		}
		slot, ok := index[cellKey(appointment.Date, hour)]
		if !ok || slot.Task != nil {
			continue
		}
		slot.Appointment = &appointment
	}

	return week
}

func cellKey(date string, hour int) string {
	return fmt.Sprintf("%s@%02d", date, hour)
}

// slotHour maps a "15:04" time onto its hourly slot, discarding times
// outside working hours.
func slotHour(t string) (int, bool) {
	parsed, err := time.Parse("15:04", t)
	if err != nil {
		return 0, false
	}
	hour := parsed.Hour()
	if hour < OpenHour || hour >= CloseHour {
		return 0, false
	}
	return hour, true
}
