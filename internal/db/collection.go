package db

import (
	"context"

	"github.com/drivewise/garage-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// TaskCollection defines the interface for task storage operations. Claim
// and release are separate from the generic patch update because they must
// mutate the shared assignee set atomically on the server side.
type TaskCollection interface {
	InsertTask(ctx context.Context, task models.Task) (*models.Task, error)
	FindTaskByID(ctx context.Context, id string) (*models.Task, error)
	FindTasks(ctx context.Context, filter bson.M) ([]models.Task, error)
	// UpdateTask applies a $set patch, bumps the version counter and
	// refreshes updated_at. Returns the post-update document.
	UpdateTask(ctx context.Context, id string, patch bson.M) (*models.Task, error)
	// ClaimTask adds userID to the assignee set ($addToSet, so repeated
	// claims by the same user stay deduplicated) together with the patch.
	ClaimTask(ctx context.Context, id string, userID string, patch bson.M) (*models.Task, error)
	// ReleaseTask removes userID from the assignee set, guarded by the
	// task's version counter; models.ErrConflict signals a lost race and
	// the caller re-reads and retries. A non-nil note is appended to the
	// hand-over trail in the same write.
	ReleaseTask(ctx context.Context, id string, version int64, userID string, note *models.HandOverNote, patch bson.M) (*models.Task, error)
}

// AppointmentCollection defines the interface for appointment storage operations.
type AppointmentCollection interface {
	InsertAppointment(ctx context.Context, appointment models.Appointment) (*models.Appointment, error)
	FindAppointmentByID(ctx context.Context, id string) (*models.Appointment, error)
	// FindAppointments returns matches sorted by (date, time) ascending.
	FindAppointments(ctx context.Context, filter bson.M) ([]models.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, patch bson.M) (*models.Appointment, error)
	// MarkAppointmentPromoted sets task_id exactly once. A second call for
	// the same appointment returns models.ErrConflict.
	MarkAppointmentPromoted(ctx context.Context, id string, taskID string) (*models.Appointment, error)
}

// ProposalCollection defines the interface for proposal storage operations.
// Proposals are append-only plus status moves; there is no delete.
type ProposalCollection interface {
	InsertProposal(ctx context.Context, proposal models.Proposal) (*models.Proposal, error)
	FindProposalByID(ctx context.Context, id string) (*models.Proposal, error)
	FindProposals(ctx context.Context, filter bson.M) ([]models.Proposal, error)
	// TransitionProposal moves status from -> to together with the patch,
	// guarded server-side so a proposal can never be decided twice.
	// Returns models.ErrConflict when the proposal left `from` already.
	TransitionProposal(ctx context.Context, id string, from, to models.ProposalStatus, patch bson.M) (*models.Proposal, error)
}

// VehicleCollection defines the interface for vehicle storage operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle models.Vehicle) (*models.Vehicle, error)
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	FindVehicleByPlate(ctx context.Context, orgID, plate string) (*models.Vehicle, error)
	FindVehicles(ctx context.Context, filter bson.M) ([]models.Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, patch bson.M) (*models.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
}
