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

// MongoTaskCollection implements TaskCollection for MongoDB
type MongoTaskCollection struct {
	Collection *mongo.Collection
}

// InsertTask inserts a new task and returns it with its assigned ID.
func (c *MongoTaskCollection) InsertTask(ctx context.Context, task models.Task) (*models.Task, error) {
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	if task.AssignedTo == nil {
		task.AssignedTo = []string{}
	}

	result, err := c.Collection.InsertOne(ctx, task)
	if err != nil {
		return nil, err
	}
	task.ID = result.InsertedID.(primitive.ObjectID)
	return &task, nil
}

// FindTaskByID finds a task by its ID.
func (c *MongoTaskCollection) FindTaskByID(ctx context.Context, id string) (*models.Task, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var task models.Task
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&task)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &task, nil
}

// FindTasks queries tasks with the given filter.
func (c *MongoTaskCollection) FindTasks(ctx context.Context, filter bson.M) ([]models.Task, error) {
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tasks []models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateTask applies a $set patch, bumps the version and refreshes
// updated_at. Returns the post-update document.
func (c *MongoTaskCollection) UpdateTask(ctx context.Context, id string, patch bson.M) (*models.Task, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updated_at": time.Now()}
	for k, v := range patch {
		set[k] = v
	}

	var task models.Task
	err = c.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&task)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &task, nil
}

// ClaimTask adds userID to the assignee set together with the patch.
// $addToSet keeps repeated claims by the same user deduplicated, and two
// near-simultaneous claims by different users both land additively.
func (c *MongoTaskCollection) ClaimTask(ctx context.Context, id string, userID string, patch bson.M) (*models.Task, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updated_at": time.Now()}
	for k, v := range patch {
		set[k] = v
	}

	var task models.Task
	err = c.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{
			"$addToSet": bson.M{"assigned_to": userID},
			"$set":      set,
			"$inc":      bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&task)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &task, nil
}

// ReleaseTask removes userID from the assignee set, guarded by the version
// counter so the caller's sole-assignee decision was made against current
// state. A non-nil note is appended to the hand-over trail in the same write.
func (c *MongoTaskCollection) ReleaseTask(ctx context.Context, id string, version int64, userID string, note *models.HandOverNote, patch bson.M) (*models.Task, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updated_at": time.Now()}
	for k, v := range patch {
		set[k] = v
	}

	update := bson.M{
		"$pull": bson.M{"assigned_to": userID},
		"$set":  set,
		"$inc":  bson.M{"version": 1},
	}
	if note != nil {
		update["$push"] = bson.M{"metadata.hand_over_notes": note}
	}

	var task models.Task
	err = c.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID, "version": version},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&task)
	if err == nil {
		return &task, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	// Distinguish a version race from a missing task.
	if _, findErr := c.FindTaskByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, models.ErrConflict
}
