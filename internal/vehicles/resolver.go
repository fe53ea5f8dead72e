package vehicles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// Resolver finds or creates vehicles by their (org, plate) pair. Both the
// check-in flow and manual task entry go through it, so a returning
// customer's vehicle is refreshed in place rather than duplicated.
type Resolver struct {
	vehicles db.VehicleCollection
}

// NewResolver creates a vehicle resolver.
func NewResolver(vehicles db.VehicleCollection) *Resolver {
	return &Resolver{vehicles: vehicles}
}

// Attrs are the mutable vehicle fields supplied at check-in or entry.
// Empty fields leave the stored value untouched on refresh.
type Attrs struct {
	Make            string `json:"make"`
	Model           string `json:"model"`
	Year            int    `json:"year"`
	Color           string `json:"color"`
	VIN             string `json:"vin"`
	FuelType        string `json:"fuel_type"`
	EngineModel     string `json:"engine_model"`
	ImmobilizerCode string `json:"immobilizer_code"`
	OwnerID         string `json:"owner_id"`
}

// FindOrCreate returns the vehicle for (org, plate), creating it on first
// sight and refreshing its fields on every later one.
func (r *Resolver) FindOrCreate(ctx context.Context, orgID, plate string, attrs Attrs) (*models.Vehicle, error) {
	plate = strings.TrimSpace(plate)
	if orgID == "" || plate == "" {
		return nil, fmt.Errorf("%w: org and plate are required", models.ErrValidation)
	}

	existing, err := r.vehicles.FindVehicleByPlate(ctx, orgID, plate)
	if err == nil {
		patch := refreshPatch(attrs)
		if len(patch) == 0 {
			return existing, nil
		}
		return r.vehicles.UpdateVehicle(ctx, existing.ID.Hex(), patch)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	return r.vehicles.InsertVehicle(ctx, models.Vehicle{
		OrgID:           orgID,
		Plate:           plate,
		Make:            attrs.Make,
		Model:           attrs.Model,
		Year:            attrs.Year,
		Color:           attrs.Color,
		VIN:             attrs.VIN,
		FuelType:        attrs.FuelType,
		EngineModel:     attrs.EngineModel,
		ImmobilizerCode: attrs.ImmobilizerCode,
		OwnerID:         attrs.OwnerID,
	})
}

// List returns the org's vehicles. Customers only see their own.
func (r *Resolver) List(ctx context.Context, actor models.Claims) ([]models.Vehicle, error) {
	filter := bson.M{"org_id": actor.OrgID}
	if actor.Role == models.RoleCustomer {
		filter["owner_id"] = actor.UserID
	}
	return r.vehicles.FindVehicles(ctx, filter)
}

// Remove deletes a vehicle record. Manager-only; task history keeps its
// vehicle_id reference, so removal never rewrites past work.
func (r *Resolver) Remove(ctx context.Context, actor models.Claims, id string) error {
	if !models.IsManagerRole(actor.Role) {
		return fmt.Errorf("%w: only managers remove vehicles", models.ErrForbidden)
	}
	vehicle, err := r.vehicles.FindVehicleByID(ctx, id)
	if err != nil {
		return err
	}
	if vehicle.OrgID != actor.OrgID {
		return fmt.Errorf("%w: vehicle belongs to another garage", models.ErrForbidden)
	}
	return r.vehicles.DeleteVehicle(ctx, id)
}

// refreshPatch builds the update for a repeat check-in. Fields are
// refreshed, never appended; blanks are skipped so a sparse check-in form
// does not wipe known data.
func refreshPatch(attrs Attrs) bson.M {
	patch := bson.M{}
	if attrs.Make != "" {
		patch["make"] = attrs.Make
	}
	if attrs.Model != "" {
		patch["model"] = attrs.Model
	}
	if attrs.Year != 0 {
		patch["year"] = attrs.Year
	}
	if attrs.Color != "" {
		patch["color"] = attrs.Color
	}
	if attrs.VIN != "" {
		patch["vin"] = attrs.VIN
	}
	if attrs.FuelType != "" {
		patch["fuel_type"] = attrs.FuelType
	}
	if attrs.EngineModel != "" {
		patch["engine_model"] = attrs.EngineModel
	}
	if attrs.ImmobilizerCode != "" {
		patch["immobilizer_code"] = attrs.ImmobilizerCode
	}
	if attrs.OwnerID != "" {
		patch["owner_id"] = attrs.OwnerID
	}
	return patch
}
