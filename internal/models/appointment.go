package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AppointmentStatus represents the triage state of an appointment request.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentApproved  AppointmentStatus = "approved"
	AppointmentRejected  AppointmentStatus = "rejected"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a requested time slot. It stays separate from Task until
// promoted; TaskID is set exactly once on promotion and marks the
// appointment logically terminal.
type Appointment struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrgID         string             `bson:"org_id" json:"org_id"`
	CustomerID    string             `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	CustomerName  string             `bson:"customer_name,omitempty" json:"customer_name,omitempty"`
	CustomerPhone string             `bson:"customer_phone,omitempty" json:"customer_phone,omitempty"`
	VehicleID     string             `bson:"vehicle_id,omitempty" json:"vehicle_id,omitempty"`
	Plate         string             `bson:"plate,omitempty" json:"plate,omitempty"`
	ServiceType   string             `bson:"service_type" json:"service_type"`
	Date          string             `bson:"date" json:"date"` // "2006-01-02"
	Time          string             `bson:"time" json:"time"` // "15:04"
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Status        AppointmentStatus  `bson:"status" json:"status"`
	TaskID        string             `bson:"task_id,omitempty" json:"task_id,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsTerminalStatus reports whether the appointment status permits no
// further triage transitions.
func (a *Appointment) IsTerminalStatus() bool {
	return a.Status == AppointmentRejected || a.Status == AppointmentCancelled
}

// SlotTime parses the appointment's date and time into a single instant.
func (a *Appointment) SlotTime() (time.Time, error) {
	return time.Parse("2006-01-02 15:04", a.Date+" "+a.Time)
}
