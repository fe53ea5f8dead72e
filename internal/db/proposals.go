package db

import (
	"context"
	"errors"
	"time"

	"github.com/drivewise/garage-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProposalCollection implements ProposalCollection for MongoDB
type MongoProposalCollection struct {
	Collection *mongo.Collection
}

// InsertProposal inserts a new proposal and returns it with its ID.
func (c *MongoProposalCollection) InsertProposal(ctx context.Context, proposal models.Proposal) (*models.Proposal, error) {
	proposal.CreatedAt = time.Now()
	proposal.UpdatedAt = proposal.CreatedAt

	result, err := c.Collection.InsertOne(ctx, proposal)
	if err != nil {
		return nil, err
	}
	proposal.ID = result.InsertedID.(primitive.ObjectID)
	return &proposal, nil
}

// FindProposalByID finds a proposal by its ID.
func (c *MongoProposalCollection) FindProposalByID(ctx context.Context, id string) (*models.Proposal, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var proposal models.Proposal
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&proposal)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &proposal, nil
}

// FindProposals queries proposals with the given filter, newest first.
func (c *MongoProposalCollection) FindProposals(ctx context.Context, filter bson.M) ([]models.Proposal, error) {
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var proposals []models.Proposal
	if err := cursor.All(ctx, &proposals); err != nil {
		return nil, err
	}
	return proposals, nil
}

// TransitionProposal moves status from -> to together with the patch. The
// filter pins the current status so a proposal that already left `from`
// (decided by someone else in the meantime) surfaces as models.ErrConflict.
func (c *MongoProposalCollection) TransitionProposal(ctx context.Context, id string, from, to models.ProposalStatus, patch bson.M) (*models.Proposal, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M{"status": to, "updated_at": time.Now()}
	for k, v := range patch {
		set[k] = v
	}

	var proposal models.Proposal
	err = c.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID, "status": from},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&proposal)
	if err == nil {
		return &proposal, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	if _, findErr := c.FindProposalByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, models.ErrConflict
}
