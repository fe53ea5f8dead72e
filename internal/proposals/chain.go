package proposals

import (
	"context"
	"fmt"
	"strings"

	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/models"
	"github.com/drivewise/garage-ops/internal/notify"
	"go.mongodb.org/mongo-driver/bson"
)

// Chain owns the upsell approval workflow: staff raise a proposal against
// a task they are working, a manager gates it, then the customer decides.
// Proposals only move forward and are never deleted.
type Chain struct {
	proposals  db.ProposalCollection
	tasks      db.TaskCollection
	users      db.UserCollection
	dispatcher notify.Dispatcher
}

// NewChain creates a proposal approval chain.
func NewChain(proposals db.ProposalCollection, tasks db.TaskCollection, users db.UserCollection, dispatcher notify.Dispatcher) *Chain {
	return &Chain{proposals: proposals, tasks: tasks, users: users, dispatcher: dispatcher}
}

// CreateInput is the content of a new upsell proposal. Description is
// mandatory; price and evidence are optional.
type CreateInput struct {
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	PhotoURL    string   `json:"photo_url"`
	AudioURL    string   `json:"audio_url"`
}

// Create raises a proposal against an active task. Staff-authored
// proposals enter at the manager gate; manager-authored ones are
// pre-approved and go straight to the customer.
func (c *Chain) Create(ctx context.Context, actor models.Claims, taskID string, input CreateInput) (*models.Proposal, error) {
	if actor.Role == models.RoleCustomer {
		return nil, fmt.Errorf("%w: customers cannot raise proposals", models.ErrForbidden)
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", models.ErrValidation)
	}

	task, err := c.tasks.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OrgID != actor.OrgID {
		return nil, fmt.Errorf("%w: task belongs to another garage", models.ErrForbidden)
	}
	if task.IsTerminal() {
		return nil, fmt.Errorf("%w: task is %s", models.ErrConflict, task.Status)
	}
	if actor.Role == models.RoleStaff && !task.HasAssignee(actor.UserID) {
		return nil, fmt.Errorf("%w: only assigned staff raise proposals", models.ErrForbidden)
	}

	status := models.ProposalPendingManager
	if models.IsManagerRole(actor.Role) {
		status = models.ProposalPendingCustomer
	}

	proposal, err := c.proposals.InsertProposal(ctx, models.Proposal{
		OrgID:       actor.OrgID,
		TaskID:      taskID,
		CreatedBy:   actor.UserID,
		Description: input.Description,
		Price:       input.Price,
		PhotoURL:    input.PhotoURL,
		AudioURL:    input.AudioURL,
		Status:      status,
	})
	if err != nil {
		return nil, err
	}

	if status == models.ProposalPendingManager {
		c.notifyRoles(ctx, actor.OrgID, []models.Role{models.RoleManager, models.RoleSuperManager}, notify.Notification{
			Title:       "Proposal awaiting review",
			Message:     input.Description,
			Type:        notify.TypeProposalCreated,
			ReferenceID: proposal.ID.Hex(),
		})
	} else if task.CustomerID != "" {
		c.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{task.CustomerID},
			Title:       "Additional work proposed",
			Message:     input.Description,
			Type:        notify.TypeProposalForward,
			ReferenceID: proposal.ID.Hex(),
		})
	}
	return proposal, nil
}

// ManagerDecide resolves the manager gate. Approval may override the
// price and forwards the proposal to the customer; rejection is terminal
// and the creating staff member is explicitly told about it.
func (c *Chain) ManagerDecide(ctx context.Context, actor models.Claims, proposalID string, approve bool, priceOverride *float64) (*models.Proposal, error) {
	if !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: only managers review proposals", models.ErrForbidden)
	}

	proposal, err := c.proposals.FindProposalByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.OrgID != actor.OrgID {
		return nil, fmt.Errorf("%w: proposal belongs to another garage", models.ErrForbidden)
	}
	if proposal.Status != models.ProposalPendingManager {
		return nil, fmt.Errorf("%w: proposal is %s", models.ErrConflict, proposal.Status)
	}

	if !approve {
		updated, err := c.proposals.TransitionProposal(ctx, proposalID,
			models.ProposalPendingManager, models.ProposalRejected,
			bson.M{"decided_by": actor.UserID})
		if err != nil {
			return nil, err
		}
		c.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{proposal.CreatedBy},
			Title:       "Proposal rejected",
			Message:     proposal.Description,
			Type:        notify.TypeProposalRejected,
			ReferenceID: proposalID,
		})
		return updated, nil
	}

	patch := bson.M{"decided_by": actor.UserID}
	if priceOverride != nil {
		patch["price"] = *priceOverride
	}
	updated, err := c.proposals.TransitionProposal(ctx, proposalID,
		models.ProposalPendingManager, models.ProposalPendingCustomer, patch)
	if err != nil {
		return nil, err
	}

	if task, err := c.tasks.FindTaskByID(ctx, updated.TaskID); err == nil && task.CustomerID != "" {
		c.dispatcher.Dispatch(ctx, notify.Notification{
			UserIDs:     []string{task.CustomerID},
			Title:       "Additional work proposed",
			Message:     updated.Description,
			Type:        notify.TypeProposalForward,
			ReferenceID: proposalID,
		})
	}
	return updated, nil
}

// CustomerDecide resolves the customer gate. Approval authorizes the
// price, which is added to the task's billable total in the same call.
func (c *Chain) CustomerDecide(ctx context.Context, actor models.Claims, proposalID string, approve bool) (*models.Proposal, error) {
	proposal, err := c.proposals.FindProposalByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	task, err := c.tasks.FindTaskByID(ctx, proposal.TaskID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCustomer && task.CustomerID != actor.UserID {
		return nil, fmt.Errorf("%w: not your task", models.ErrForbidden)
	}
	if actor.Role != models.RoleCustomer && !models.IsManagerRole(actor.Role) {
		return nil, fmt.Errorf("%w: the customer decides this proposal", models.ErrForbidden)
	}

	to := models.ProposalRejected
	notifType := notify.TypeProposalRejected
	title := "Proposal declined by customer"
	if approve {
		to = models.ProposalApproved
		notifType = notify.TypeProposalApproved
		title = "Proposal approved by customer"
	}
	if !models.CanTransitionProposal(proposal.Status, to) {
		return nil, fmt.Errorf("%w: proposal is %s", models.ErrConflict, proposal.Status)
	}

	updated, err := c.proposals.TransitionProposal(ctx, proposalID,
		models.ProposalPendingCustomer, to, bson.M{"decided_by": actor.UserID})
	if err != nil {
		return nil, err
	}

	if approve && updated.Price != nil {
		total := *updated.Price
		if task.Price != nil {
			total += *task.Price
		}
		if _, err := c.tasks.UpdateTask(ctx, task.ID.Hex(), bson.M{"price": total}); err != nil {
			return nil, fmt.Errorf("proposal approved but price update failed: %w", err)
		}
	}

	c.dispatcher.Dispatch(ctx, notify.Notification{
		UserIDs:     []string{updated.CreatedBy},
		Title:       title,
		Message:     updated.Description,
		Type:        notifType,
		ReferenceID: proposalID,
	})
	return updated, nil
}

// ListForTask returns a task's proposals subject to the viewer's
// visibility: staff and managers see every stage for audit, a customer
// only sees what is waiting on them for their own task.
func (c *Chain) ListForTask(ctx context.Context, actor models.Claims, taskID string) ([]models.Proposal, error) {
	task, err := c.tasks.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OrgID != actor.OrgID {
		return nil, fmt.Errorf("%w: task belongs to another garage", models.ErrForbidden)
	}

	filter := bson.M{"task_id": taskID}
	if actor.Role == models.RoleCustomer {
		if task.CustomerID != actor.UserID {
			return nil, fmt.Errorf("%w: not your task", models.ErrForbidden)
		}
		filter["status"] = models.ProposalPendingCustomer
	}
	return c.proposals.FindProposals(ctx, filter)
}

// ListForOrg returns every proposal in the org regardless of stage.
func (c *Chain) ListForOrg(ctx context.Context, actor models.Claims) ([]models.Proposal, error) {
	if actor.Role == models.RoleCustomer {
		return nil, fmt.Errorf("%w: org-wide listing is staff-only", models.ErrForbidden)
	}
	return c.proposals.FindProposals(ctx, bson.M{"org_id": actor.OrgID})
}

// ListForCustomer returns the proposals waiting on the acting customer
// across all their tasks.
func (c *Chain) ListForCustomer(ctx context.Context, actor models.Claims) ([]models.Proposal, error) {
	if actor.Role != models.RoleCustomer {
		return nil, fmt.Errorf("%w: customer listing only", models.ErrForbidden)
	}

	tasks, err := c.tasks.FindTasks(ctx, bson.M{"org_id": actor.OrgID, "customer_id": actor.UserID})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID.Hex())
	}
	return c.proposals.FindProposals(ctx, bson.M{
		"task_id": bson.M{"$in": ids},
		"status":  models.ProposalPendingCustomer,
	})
}

func (c *Chain) notifyRoles(ctx context.Context, orgID string, roles []models.Role, n notify.Notification) {
	users, err := c.users.FindUsers(ctx, bson.M{
		"org_id":    orgID,
		"role":      bson.M{"$in": roles},
		"is_active": true,
	})
	if err != nil || len(users) == 0 {
		return
	}
	for _, u := range users {
		n.UserIDs = append(n.UserIDs, u.ID.Hex())
	}
	c.dispatcher.Dispatch(ctx, n)
}
