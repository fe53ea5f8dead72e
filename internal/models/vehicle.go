package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Vehicle represents a customer vehicle known to a garage. Vehicles are
// unique per (org_id, plate); a repeat check-in refreshes the fields in
// place rather than creating a second record.
type Vehicle struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrgID              string             `bson:"org_id" json:"org_id"`
	Plate              string             `bson:"plate" json:"plate"`
	Make               string             `bson:"make" json:"make"`
	Model              string             `bson:"model" json:"model"`
	Year               int                `bson:"year" json:"year"`
	Color              string             `bson:"color" json:"color"`
	VIN                string             `bson:"vin" json:"vin"`
	FuelType           string             `bson:"fuel_type" json:"fuel_type"` // "petrol", "diesel", "hybrid", "ev"
	EngineModel        string             `bson:"engine_model" json:"engine_model"`
	RegistrationExpiry *time.Time         `bson:"registration_expiry,omitempty" json:"registration_expiry,omitempty"`
	ImmobilizerCode    string             `bson:"immobilizer_code,omitempty" json:"immobilizer_code,omitempty"`
	OwnerID            string             `bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}
