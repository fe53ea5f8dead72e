package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/drivewise/garage-ops/internal/appointments"
	"github.com/drivewise/garage-ops/internal/auth"
	"github.com/drivewise/garage-ops/internal/calendar"
	"github.com/drivewise/garage-ops/internal/clock"
	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/middleware"
	"github.com/drivewise/garage-ops/internal/models"
	"github.com/drivewise/garage-ops/internal/notify"
	"github.com/drivewise/garage-ops/internal/proposals"
	"github.com/drivewise/garage-ops/internal/vehicles"
	"github.com/drivewise/garage-ops/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// apiFixture stands up the full HTTP surface on in-memory stores.
type apiFixture struct {
	server      *httptest.Server
	authService *auth.Service
	users       db.UserCollection
	tasks       *db.MemoryTaskCollection
	now         time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	clk := clock.Fixed{T: now}

	tasks := db.NewMemoryTaskCollection()
	appointmentCol := db.NewMemoryAppointmentCollection()
	proposalCol := db.NewMemoryProposalCollection()
	vehicleCol := db.NewMemoryVehicleCollection()
	users := db.NewMemoryUserCollection()
	dispatcher := notify.LogDispatcher{}

	authService, err := auth.NewService()
	require.NoError(t, err)

	resolver := vehicles.NewResolver(vehicleCol)
	engine := workflow.NewEngine(tasks, users, resolver, dispatcher, clk)
	manager := appointments.NewManager(appointmentCol, tasks, users, dispatcher, clk)
	chain := proposals.NewChain(proposalCol, tasks, users, dispatcher)
	reconciler := calendar.NewReconciler(appointmentCol, tasks)

	router := NewRouter(
		NewAuthHandler(authService, users),
		NewTaskHandler(engine),
		NewAppointmentHandler(manager),
		NewProposalHandler(chain),
		NewCalendarHandler(reconciler, clk),
		NewVehicleHandler(resolver),
		middleware.NewAuthMiddleware(authService),
		nil,
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiFixture{
		server:      server,
		authService: authService,
		users:       users,
		tasks:       tasks,
		now:         now,
	}
}

// account seeds a user and returns a bearer token for it.
func (f *apiFixture) account(t *testing.T, username string, role models.Role) string {
	t.Helper()
	user, err := f.users.InsertUser(context.Background(), models.User{
		OrgID:    "org-1",
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	})
	require.NoError(t, err)
	token, err := f.authService.GenerateToken(user)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeTask(t *testing.T, resp *http.Response) models.Task {
	t.Helper()
	var task models.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	return task
}

func TestAPI_CheckInToPaymentFlow(t *testing.T) {
	f := newAPIFixture(t)
	customer := f.account(t, "dana", models.RoleCustomer)
	manager := f.account(t, "boss", models.RoleManager)
	staff := f.account(t, "mechanic", models.RoleStaff)

	// Customer checks the car in at the gate.
	resp := f.do(t, "POST", "/api/checkin", customer, workflow.CheckInRequest{
		Plate:       "12-345-67",
		ServiceType: "BRAKES",
		OwnerName:   "Dana",
		OwnerPhone:  "050-1234567",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decodeTask(t, resp)
	assert.Equal(t, models.TaskWaitingForApproval, task.Status)
	taskID := task.ID.Hex()

	// It shows up in the manager's triage queue.
	resp = f.do(t, "GET", "/api/tasks/pending", manager, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []models.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	require.Len(t, pending, 1)

	// Staff cannot see the triage queue.
	resp = f.do(t, "GET", "/api/tasks/pending", staff, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Manager approves and pushes it to the team right away.
	resp = f.do(t, "POST", "/api/tasks/"+taskID+"/approve", manager, map[string]bool{"send_to_team_now": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.TaskWaiting, decodeTask(t, resp).Status)

	// Price the job before work starts.
	_, err := f.tasks.UpdateTask(context.Background(), taskID, bson.M{"price": 400.0})
	require.NoError(t, err)

	// Customer cannot claim it.
	resp = f.do(t, "POST", "/api/tasks/"+taskID+"/claim", customer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Staff claims and works it.
	resp = f.do(t, "POST", "/api/tasks/"+taskID+"/claim", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.TaskInProgress, decodeTask(t, resp).Status)

	// Mid-job the mechanic finds more to do and raises a proposal.
	resp = f.do(t, "POST", "/api/tasks/"+taskID+"/proposals", staff, proposals.CreateInput{
		Description: "Rear rotors scored, recommend replacement",
		Price:       floatPtr(50),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var proposal models.Proposal
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&proposal))
	proposalID := proposal.ID.Hex()

	// Manager forwards it, customer approves it.
	resp = f.do(t, "POST", "/api/proposals/"+proposalID+"/manager-decision", manager, map[string]bool{"approve": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, "POST", "/api/proposals/"+proposalID+"/customer-decision", customer, map[string]bool{"approve": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The authorized extra landed on the bill.
	stored, err := f.tasks.FindTaskByID(context.Background(), taskID)
	require.NoError(t, err)
	require.NotNil(t, stored.Price)
	assert.Equal(t, 450.0, *stored.Price)

	// Work done: the priced task waits on customer payment approval.
	resp = f.do(t, "POST", "/api/tasks/"+taskID+"/complete", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.TaskCustomerApproval, decodeTask(t, resp).Status)

	// Payment confirmed at the counter closes the loop.
	resp = f.do(t, "POST", "/api/tasks/"+taskID+"/paid", manager, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.TaskCompleted, decodeTask(t, resp).Status)

	// Terminal tasks reject further transitions.
	resp = f.do(t, "POST", "/api/tasks/"+taskID+"/claim", staff, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_AppointmentLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	customer := f.account(t, "dana", models.RoleCustomer)
	manager := f.account(t, "boss", models.RoleManager)

	resp := f.do(t, "POST", "/api/appointments", customer, appointments.Request{
		CustomerName: "Dana",
		Plate:        "12-345-67",
		ServiceType:  "OIL",
		Date:         "2025-06-04",
		Time:         "09:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var appointment models.Appointment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&appointment))
	id := appointment.ID.Hex()

	// Customers cannot triage.
	resp = f.do(t, "GET", "/api/appointments/pending", customer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Manager approves with immediate task split.
	resp = f.do(t, "POST", "/api/appointments/"+id+"/approve", manager, map[string]bool{"create_task_now": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&appointment))
	assert.Equal(t, models.AppointmentApproved, appointment.Status)
	assert.NotEmpty(t, appointment.TaskID)

	// Second promotion attempt conflicts.
	resp = f.do(t, "POST", "/api/appointments/"+id+"/promote", manager, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The calendar shows the promoted task in its slot.
	resp = f.do(t, "GET", "/api/calendar?start=2025-06-02", manager, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var week calendar.Week
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&week))
	slot := week.SlotAt("2025-06-04", 9)
	require.NotNil(t, slot)
	assert.NotNil(t, slot.Task)
	assert.Nil(t, slot.Appointment)

	// Without a start parameter the view anchors on the current week's
	// Monday, taken from the injected clock.
	resp = f.do(t, "GET", "/api/calendar", manager, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&week))
	assert.Equal(t, "2025-06-02", week.Start)
	require.NotNil(t, week.SlotAt("2025-06-04", 9))
}

func TestAPI_Unauthenticated(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, "GET", "/api/tasks/board", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Health stays open.
	resp = f.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func floatPtr(v float64) *float64 { return &v }
