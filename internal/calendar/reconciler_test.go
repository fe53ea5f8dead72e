package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var weekStart = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) // Monday

func TestReconcile_EmptyWeekIsAllBookable(t *testing.T) {
	week := Reconcile(weekStart, nil, nil)

	assert.Equal(t, "2025-06-02", week.Start)
	assert.Len(t, week.Slots, 7*(CloseHour-OpenHour))
	for _, slot := range week.Slots {
		assert.True(t, slot.Bookable())
	}
}

func TestReconcile_AppointmentOccupiesItsSlot(t *testing.T) {
	appointment := models.Appointment{
		ID:     primitive.NewObjectID(),
		Date:   "2025-06-03",
		Time:   "10:30",
		Status: models.AppointmentPending,
	}

	week := Reconcile(weekStart, []models.Appointment{appointment}, nil)

	slot := week.SlotAt("2025-06-03", 10)
	require.NotNil(t, slot)
	assert.True(t, slot.Occupied())
	assert.False(t, slot.Bookable())
	require.NotNil(t, slot.Appointment)
	assert.Equal(t, appointment.ID, slot.Appointment.ID)
	assert.Nil(t, slot.Task)
}

func TestReconcile_PromotedTaskSupersedesAppointment(t *testing.T) {
	appointmentID := primitive.NewObjectID()
	appointment := models.Appointment{
		ID:     appointmentID,
		Date:   "2025-06-04",
		Time:   "09:00",
		Status: models.AppointmentApproved,
	}
	task := models.Task{
		ID:            primitive.NewObjectID(),
		Status:        models.TaskScheduled,
		ScheduledDate: "2025-06-04",
		ScheduledTime: "09:00",
		Metadata: models.TaskMetadata{
			Kind:                models.MetadataAppointment,
			SourceAppointmentID: appointmentID.Hex(),
		},
	}

	week := Reconcile(weekStart, []models.Appointment{appointment}, []models.Task{task})

	// Exactly one occupied cell, attributed to the task.
	occupied := 0
	for _, slot := range week.Slots {
		if slot.Occupied() {
			occupied++
		}
	}
	assert.Equal(t, 1, occupied)

	slot := week.SlotAt("2025-06-04", 9)
	require.NotNil(t, slot)
	require.NotNil(t, slot.Task)
	assert.Equal(t, task.ID, slot.Task.ID)
	assert.Nil(t, slot.Appointment)
}

func TestReconcile_BackReferenceAloneSuppressesAppointment(t *testing.T) {
	// Promoted but the task since moved off SCHEDULED: the appointment must
	// still not resurface as bookable inventory.
	appointment := models.Appointment{
		ID:     primitive.NewObjectID(),
		Date:   "2025-06-05",
		Time:   "11:00",
		Status: models.AppointmentApproved,
		TaskID: primitive.NewObjectID().Hex(),
	}

	week := Reconcile(weekStart, []models.Appointment{appointment}, nil)

	slot := week.SlotAt("2025-06-05", 11)
	require.NotNil(t, slot)
	assert.Nil(t, slot.Appointment)
	assert.True(t, slot.Bookable())
}

func TestReconcile_OutsideWorkingHoursDropped(t *testing.T) {
	early := models.Appointment{ID: primitive.NewObjectID(), Date: "2025-06-02", Time: "06:00"}
	late := models.Appointment{ID: primitive.NewObjectID(), Date: "2025-06-02", Time: "19:30"}
	badTime := models.Appointment{ID: primitive.NewObjectID(), Date: "2025-06-02", Time: "noonish"}

	week := Reconcile(weekStart, []models.Appointment{early, late, badTime}, nil)

	for _, slot := range week.Slots {
		assert.False(t, slot.Occupied())
	}
}

func TestReconcile_OutsideWeekDropped(t *testing.T) {
	nextWeek := models.Appointment{ID: primitive.NewObjectID(), Date: "2025-06-09", Time: "10:00"}

	week := Reconcile(weekStart, []models.Appointment{nextWeek}, nil)

	for _, slot := range week.Slots {
		assert.False(t, slot.Occupied())
	}
	assert.Nil(t, week.SlotAt("2025-06-09", 10))
}

func TestBuildWeek_MergesStores(t *testing.T) {
	appointments := db.NewMemoryAppointmentCollection()
	tasks := db.NewMemoryTaskCollection()
	reconciler := NewReconciler(appointments, tasks)

	plain, err := appointments.InsertAppointment(context.Background(), models.Appointment{
		OrgID: "org-1", ServiceType: "OIL",
		Date: "2025-06-03", Time: "08:00",
		Status: models.AppointmentPending,
	})
	require.NoError(t, err)

	// Cancelled appointments never reach the grid.
	_, err = appointments.InsertAppointment(context.Background(), models.Appointment{
		OrgID: "org-1", ServiceType: "TIRES",
		Date: "2025-06-03", Time: "12:00",
		Status: models.AppointmentCancelled,
	})
	require.NoError(t, err)

	scheduled, err := tasks.InsertTask(context.Background(), models.Task{
		OrgID: "org-1", Title: "Promoted job",
		Status:        models.TaskScheduled,
		ScheduledDate: "2025-06-04", ScheduledTime: "10:00",
	})
	require.NoError(t, err)

	// Other orgs stay invisible.
	_, err = appointments.InsertAppointment(context.Background(), models.Appointment{
		OrgID: "org-2", ServiceType: "OIL",
		Date: "2025-06-03", Time: "09:00",
		Status: models.AppointmentPending,
	})
	require.NoError(t, err)

	week, err := reconciler.BuildWeek(context.Background(), "org-1", weekStart)
	require.NoError(t, err)

	slot := week.SlotAt("2025-06-03", 8)
	require.NotNil(t, slot)
	require.NotNil(t, slot.Appointment)
	assert.Equal(t, plain.ID, slot.Appointment.ID)

	slot = week.SlotAt("2025-06-04", 10)
	require.NotNil(t, slot)
	require.NotNil(t, slot.Task)
	assert.Equal(t, scheduled.ID, slot.Task.ID)

	occupied := 0
	for _, s := range week.Slots {
		if s.Occupied() {
			occupied++
		}
	}
	assert.Equal(t, 2, occupied)
}
