package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProposalStatus represents the gate a proposal is waiting at. Proposals
// only ever move forward; neither approval gate can send one back.
type ProposalStatus string

const (
	ProposalPendingManager  ProposalStatus = "pending_manager"
	ProposalPendingCustomer ProposalStatus = "pending_customer"
	ProposalApproved        ProposalStatus = "approved"
	ProposalRejected        ProposalStatus = "rejected"
)

// AllowedProposalTransitions is the forward-only gate graph.
var AllowedProposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalPendingManager:  {ProposalPendingCustomer, ProposalRejected},
	ProposalPendingCustomer: {ProposalApproved, ProposalRejected},
	ProposalApproved:        {},
	ProposalRejected:        {},
}

// CanTransitionProposal reports whether from -> to is a permitted move.
func CanTransitionProposal(from, to ProposalStatus) bool {
	for _, s := range AllowedProposalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Proposal is a staff-initiated upsell for extra billable work on a task.
// Proposals are never deleted; decided ones remain as an audit trail.
type Proposal struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrgID       string             `bson:"org_id" json:"org_id"`
	TaskID      string             `bson:"task_id" json:"task_id"`
	CreatedBy   string             `bson:"created_by" json:"created_by"`
	Description string             `bson:"description" json:"description"`
	Price       *float64           `bson:"price,omitempty" json:"price,omitempty"`
	PhotoURL    string             `bson:"photo_url,omitempty" json:"photo_url,omitempty"`
	AudioURL    string             `bson:"audio_url,omitempty" json:"audio_url,omitempty"`
	Status      ProposalStatus     `bson:"status" json:"status"`
	DecidedBy   string             `bson:"decided_by,omitempty" json:"decided_by,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsDecided reports whether the proposal has reached a terminal status.
func (p *Proposal) IsDecided() bool {
	return p.Status == ProposalApproved || p.Status == ProposalRejected
}
