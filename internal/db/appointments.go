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

// MongoAppointmentCollection implements AppointmentCollection for MongoDB
type MongoAppointmentCollection struct {
	Collection *mongo.Collection
}

// InsertAppointment inserts a new appointment and returns it with its ID.
func (c *MongoAppointmentCollection) InsertAppointment(ctx context.Context, appointment models.Appointment) (*models.Appointment, error) {
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = appointment.CreatedAt

	result, err := c.Collection.InsertOne(ctx, appointment)
	if err != nil {
		return nil, err
	}
	appointment.ID = result.InsertedID.(primitive.ObjectID)
	return &appointment, nil
}

// FindAppointmentByID finds an appointment by its ID.
func (c *MongoAppointmentCollection) FindAppointmentByID(ctx context.Context, id string) (*models.Appointment, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var appointment models.Appointment
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&appointment)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &appointment, nil
}

// FindAppointments queries appointments sorted by (date, time) ascending,
// the order triage screens want.
func (c *MongoAppointmentCollection) FindAppointments(ctx context.Context, filter bson.M) ([]models.Appointment, error) {
	sort := bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}}
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var appointments []models.Appointment
	if err := cursor.All(ctx, &appointments); err != nil {
		return nil, err
	}
	return appointments, nil
}

// UpdateAppointment applies a $set patch and refreshes updated_at.
func (c *MongoAppointmentCollection) UpdateAppointment(ctx context.Context, id string, patch bson.M) (*models.Appointment, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updated_at": time.Now()}
	for k, v := range patch {
		set[k] = v
	}

	var appointment models.Appointment
	err = c.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&appointment)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &appointment, nil
}

// MarkAppointmentPromoted sets task_id exactly once. The filter only
// matches while task_id is still unset, so a second promotion attempt
// surfaces as models.ErrConflict.
func (c *MongoAppointmentCollection) MarkAppointmentPromoted(ctx context.Context, id string, taskID string) (*models.Appointment, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	filter := bson.M{
		"_id": objectID,
		"$or": []bson.M{
			{"task_id": bson.M{"$exists": false}},
			{"task_id": ""},
		},
	}

	var appointment models.Appointment
	err = c.Collection.FindOneAndUpdate(
		ctx,
		filter,
		bson.M{"$set": bson.M{"task_id": taskID, "updated_at": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&appointment)
	if err == nil {
		return &appointment, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	if _, findErr := c.FindAppointmentByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, models.ErrConflict
}
