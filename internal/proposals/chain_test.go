package proposals

import (
	"context"
	"sync"
	"testing"

	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/models"
	"github.com/drivewise/garage-ops/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recorder) Dispatch(ctx context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recorder) last() *notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return nil
	}
	return &r.sent[len(r.sent)-1]
}

type testEnv struct {
	chain *Chain
	tasks *db.MemoryTaskCollection
	rec   *recorder
}

var (
	staffActor    = models.Claims{UserID: "staff-1", OrgID: "org-1", Role: models.RoleStaff}
	managerActor  = models.Claims{UserID: "mgr-1", OrgID: "org-1", Role: models.RoleManager}
	customerActor = models.Claims{UserID: "cust-1", OrgID: "org-1", Role: models.RoleCustomer}
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	proposals := db.NewMemoryProposalCollection()
	tasks := db.NewMemoryTaskCollection()
	users := db.NewMemoryUserCollection()
	rec := &recorder{}
	return &testEnv{
		chain: NewChain(proposals, tasks, users, rec),
		tasks: tasks,
		rec:   rec,
	}
}

func (e *testEnv) seedTask(t *testing.T, task models.Task) *models.Task {
	t.Helper()
	if task.OrgID == "" {
		task.OrgID = "org-1"
	}
	created, err := e.tasks.InsertTask(context.Background(), task)
	require.NoError(t, err)
	return created
}

func (e *testEnv) activeTask(t *testing.T) *models.Task {
	t.Helper()
	return e.seedTask(t, models.Task{
		Title:      "Brake job",
		Status:     models.TaskInProgress,
		CustomerID: customerActor.UserID,
		AssignedTo: []string{staffActor.UserID},
	})
}

func price(v float64) *float64 { return &v }

func TestChain_Create_StaffEntersManagerGate(t *testing.T) {
	env := newTestEnv(t)
	task := env.activeTask(t)

	proposal, err := env.chain.Create(context.Background(), staffActor, task.ID.Hex(), CreateInput{
		Description: "Rear rotors are scored, recommend replacement",
		Price:       price(50),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPendingManager, proposal.Status)
	assert.Equal(t, staffActor.UserID, proposal.CreatedBy)
}

func TestChain_Create_ManagerSkipsOwnGate(t *testing.T) {
	env := newTestEnv(t)
	task := env.activeTask(t)

	proposal, err := env.chain.Create(context.Background(), managerActor, task.ID.Hex(), CreateInput{
		Description: "Cabin filter overdue",
		Price:       price(30),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPendingCustomer, proposal.Status)

	last := env.rec.last()
	require.NotNil(t, last)
	assert.Equal(t, notify.TypeProposalForward, last.Type)
	assert.Equal(t, []string{customerActor.UserID}, last.UserIDs)
}

func TestChain_Create_Guards(t *testing.T) {
	env := newTestEnv(t)
	task := env.activeTask(t)

	_, err := env.chain.Create(context.Background(), customerActor, task.ID.Hex(), CreateInput{Description: "x"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = env.chain.Create(context.Background(), staffActor, task.ID.Hex(), CreateInput{Description: "   "})
	assert.ErrorIs(t, err, models.ErrValidation)

	// Staff not assigned to the task cannot raise against it.
	outsider := models.Claims{UserID: "staff-2", OrgID: "org-1", Role: models.RoleStaff}
	_, err = env.chain.Create(context.Background(), outsider, task.ID.Hex(), CreateInput{Description: "x"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	done := env.seedTask(t, models.Task{Title: "Closed", Status: models.TaskCompleted})
	_, err = env.chain.Create(context.Background(), staffActor, done.ID.Hex(), CreateInput{Description: "x"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestChain_FullWalk_ApprovedPriceAddsToTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.seedTask(t, models.Task{
		Title:      "Brake job",
		Status:     models.TaskInProgress,
		CustomerID: customerActor.UserID,
		AssignedTo: []string{staffActor.UserID},
		Price:      price(400),
	})

	proposal, err := env.chain.Create(context.Background(), staffActor, task.ID.Hex(), CreateInput{
		Description: "Rear rotors",
		Price:       price(50),
	})
	require.NoError(t, err)

	forwarded, err := env.chain.ManagerDecide(context.Background(), managerActor, proposal.ID.Hex(), true, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPendingCustomer, forwarded.Status)
	assert.Equal(t, managerActor.UserID, forwarded.DecidedBy)

	approved, err := env.chain.CustomerDecide(context.Background(), customerActor, proposal.ID.Hex(), true)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalApproved, approved.Status)

	// Authorized price lands on the task's billable total.
	updated, err := env.tasks.FindTaskByID(context.Background(), task.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, updated.Price)
	assert.Equal(t, 450.0, *updated.Price)

	last := env.rec.last()
	require.NotNil(t, last)
	assert.Equal(t, notify.TypeProposalApproved, last.Type)
	assert.Equal(t, []string{staffActor.UserID}, last.UserIDs)
}

func TestChain_ManagerPriceOverride(t *testing.T) {
	env := newTestEnv(t)
	task := env.activeTask(t)

	proposal, err := env.chain.Create(context.Background(), staffActor, task.ID.Hex(), CreateInput{
		Description: "Wiper blades",
		Price:       price(80),
	})
	require.NoError(t, err)

	forwarded, err := env.chain.ManagerDecide(context.Background(), managerActor, proposal.ID.Hex(), true, price(60))
	require.NoError(t, err)
	require.NotNil(t, forwarded.Price)
	assert.Equal(t, 60.0, *forwarded.Price)
}

func TestChain_ManagerReject_NotifiesCreator(t *testing.T) {
	env := newTestEnv(t)
	task := env.activeTask(t)

	proposal, err := env.chain.Create(context.Background(), staffActor, task.ID.Hex(), CreateInput{
		Description: "Underbody coating",
	})
	require.NoError(t, err)

	rejected, err := env.chain.ManagerDecide(context.Background(), managerActor, proposal.ID.Hex(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalRejected, rejected.Status)

	last := env.rec.last()
	require.NotNil(t, last)
	assert.Equal(t, notify.TypeProposalRejected, last.Type)
	assert.Equal(t, []string{staffActor.UserID}, last.UserIDs)

	// Rejection is terminal; the chain never moves backwards.
	_, err = env.chain.ManagerDecide(context.Background(), managerActor, proposal.ID.Hex(), true, nil)
	assert.ErrorIs(t, err, models.ErrConflict)
	_, err = env.chain.CustomerDecide(context.Background(), customerActor, proposal.ID.Hex(), true)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestChain_CustomerDecide_Guards(t *testing.T) {
	env := newTestEnv(t)
	task := env.activeTask(t)

	proposal, err := env.chain.Create(context.Background(), managerActor, task.ID.Hex(), CreateInput{
		Description: "Alignment check",
	})
	require.NoError(t, err)

	// Only the task's own customer decides.
	other := models.Claims{UserID: "cust-2", OrgID: "org-1", Role: models.RoleCustomer}
	_, err = env.chain.CustomerDecide(context.Background(), other, proposal.ID.Hex(), true)
	assert.ErrorIs(t, err, models.ErrForbidden)

	// Staff cannot stand in for the customer.
	_, err = env.chain.CustomerDecide(context.Background(), staffActor, proposal.ID.Hex(), true)
	assert.ErrorIs(t, err, models.ErrForbidden)

	// A manager may record the decision taken at the counter.
	decided, err := env.chain.CustomerDecide(context.Background(), managerActor, proposal.ID.Hex(), false)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalRejected, decided.Status)

	// Double-decide conflicts.
	_, err = env.chain.CustomerDecide(context.Background(), customerActor, proposal.ID.Hex(), true)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestChain_ListVisibility(t *testing.T) {
	env := newTestEnv(t)
	task := env.activeTask(t)

	pendingManager, err := env.chain.Create(context.Background(), staffActor, task.ID.Hex(), CreateInput{
		Description: "Still with the manager",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPendingManager, pendingManager.Status)
	pendingCustomer, err := env.chain.Create(context.Background(), managerActor, task.ID.Hex(), CreateInput{
		Description: "Waiting on you",
	})
	require.NoError(t, err)

	// Staff and managers see the full audit trail.
	all, err := env.chain.ListForTask(context.Background(), staffActor, task.ID.Hex())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// The customer only sees what is waiting on them.
	visible, err := env.chain.ListForTask(context.Background(), customerActor, task.ID.Hex())
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, pendingCustomer.ID, visible[0].ID)

	// Cross-customer listing is blocked.
	other := models.Claims{UserID: "cust-2", OrgID: "org-1", Role: models.RoleCustomer}
	_, err = env.chain.ListForTask(context.Background(), other, task.ID.Hex())
	assert.ErrorIs(t, err, models.ErrForbidden)

	// ListForCustomer aggregates the pending-customer stage across tasks.
	mine, err := env.chain.ListForCustomer(context.Background(), customerActor)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, pendingCustomer.ID, mine[0].ID)
}
