package db

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/drivewise/garage-ops/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory implementations of the collection interfaces. They back the
// workflow/appointments/proposals/handlers tests and local runs without a
// Mongo server, and mirror the server-side semantics the Mongo
// implementations rely on ($addToSet dedup, version guard, promote-once).
//
// Filter matching supports the subset of query operators the engine uses:
// equality (including array containment), $in, $gte, $lte, $ne and $exists,
// on top-level document keys.

func toDoc(v interface{}) (bson.M, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDoc(doc bson.M, out interface{}) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, out)
}

func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case primitive.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case primitive.ObjectID:
		return x.Hex()
	case bool:
		return x
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

func equalValues(a, b interface{}) bool {
	na, nb := normalizeValue(a), normalizeValue(b)
	if ta, ok := na.(time.Time); ok {
		tb, ok := nb.(time.Time)
		return ok && ta.Equal(tb)
	}
	return na == nb
}

// compareValues returns -1/0/1 for ordered types; ok is false when the two
// values are not comparable.
func compareValues(a, b interface{}) (int, bool) {
	na, nb := normalizeValue(a), normalizeValue(b)
	switch x := na.(type) {
	case time.Time:
		y, ok := nb.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case x.Before(y):
			return -1, true
		case x.After(y):
			return 1, true
		default:
			return 0, true
		}
	case string:
		y, ok := nb.(string)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		default:
			return 0, true
		}
	case float64:
		y, ok := nb.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func valuesOf(v interface{}) []interface{} {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{v}
	}
	out := make([]interface{}, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}

func matchCondition(docVal interface{}, cond interface{}) bool {
	if ops, ok := cond.(bson.M); ok {
		for op, arg := range ops {
			switch op {
			case "$in":
				found := false
				for _, candidate := range valuesOf(arg) {
					if equalValues(docVal, candidate) {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			case "$ne":
				if equalValues(docVal, arg) {
					return false
				}
			case "$gte":
				cmp, ok := compareValues(docVal, arg)
				if !ok || cmp < 0 {
					return false
				}
			case "$lte":
				cmp, ok := compareValues(docVal, arg)
				if !ok || cmp > 0 {
					return false
				}
			case "$exists":
				want, _ := arg.(bool)
				if (docVal != nil) != want {
					return false
				}
			default:
				return false
			}
		}
		return true
	}

	// Plain value: equality, or containment when the document field is an array.
	if arr, ok := docVal.(primitive.A); ok {
		for _, elem := range arr {
			if equalValues(elem, cond) {
				return true
			}
		}
		return false
	}
	return equalValues(docVal, cond)
}

func docMatches(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		if !matchCondition(doc[key], cond) {
			return false
		}
	}
	return true
}

func structMatches(v interface{}, filter bson.M) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	doc, err := toDoc(v)
	if err != nil {
		return false, err
	}
	return docMatches(doc, filter), nil
}

func applyPatch(v interface{}, patch bson.M, out interface{}) error {
	doc, err := toDoc(v)
	if err != nil {
		return err
	}
	for k, val := range patch {
		doc[k] = val
	}
	return fromDoc(doc, out)
}

// MemoryTaskCollection is an in-memory TaskCollection.
type MemoryTaskCollection struct {
	mu    sync.Mutex
	tasks map[string]models.Task
	// FailWrites makes every mutating call return an error; tests use it
	// to verify that a failed store write leaves no partial state behind.
	FailWrites bool
}

// NewMemoryTaskCollection creates an empty in-memory task collection.
func NewMemoryTaskCollection() *MemoryTaskCollection {
	return &MemoryTaskCollection{tasks: make(map[string]models.Task)}
}

var errWriteFailed = fmt.Errorf("store write failed")

func (c *MemoryTaskCollection) InsertTask(ctx context.Context, task models.Task) (*models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return nil, errWriteFailed
	}

	task.ID = primitive.NewObjectID()
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	if task.AssignedTo == nil {
		task.AssignedTo = []string{}
	}
	c.tasks[task.ID.Hex()] = task
	return &task, nil
}

func (c *MemoryTaskCollection) FindTaskByID(ctx context.Context, id string) (*models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &task, nil
}

func (c *MemoryTaskCollection) FindTasks(ctx context.Context, filter bson.M) ([]models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.Task
	for _, task := range c.tasks {
		ok, err := structMatches(task, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, task)
		}
	}
	return out, nil
}

func (c *MemoryTaskCollection) UpdateTask(ctx context.Context, id string, patch bson.M) (*models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return nil, errWriteFailed
	}

	task, ok := c.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	var updated models.Task
	if err := applyPatch(task, patch, &updated); err != nil {
		return nil, err
	}
	updated.Version = task.Version + 1
	updated.UpdatedAt = time.Now()
	c.tasks[id] = updated
	return &updated, nil
}

func (c *MemoryTaskCollection) ClaimTask(ctx context.Context, id string, userID string, patch bson.M) (*models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return nil, errWriteFailed
	}

	task, ok := c.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	var updated models.Task
	if err := applyPatch(task, patch, &updated); err != nil {
		return nil, err
	}
	if !updated.HasAssignee(userID) {
		updated.AssignedTo = append(updated.AssignedTo, userID)
	}
	updated.Version = task.Version + 1
	updated.UpdatedAt = time.Now()
	c.tasks[id] = updated
	return &updated, nil
}

func (c *MemoryTaskCollection) ReleaseTask(ctx context.Context, id string, version int64, userID string, note *models.HandOverNote, patch bson.M) (*models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return nil, errWriteFailed
	}

	task, ok := c.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if task.Version != version {
		return nil, models.ErrConflict
	}
	var updated models.Task
	if err := applyPatch(task, patch, &updated); err != nil {
		return nil, err
	}
	remaining := make([]string, 0, len(updated.AssignedTo))
	for _, uid := range updated.AssignedTo {
		if uid != userID {
			remaining = append(remaining, uid)
		}
	}
	updated.AssignedTo = remaining
	if note != nil {
		updated.Metadata.HandOverNotes = append(updated.Metadata.HandOverNotes, *note)
	}
	updated.Version = task.Version + 1
	updated.UpdatedAt = time.Now()
	c.tasks[id] = updated
	return &updated, nil
}

// MemoryAppointmentCollection is an in-memory AppointmentCollection.
type MemoryAppointmentCollection struct {
	mu           sync.Mutex
	appointments map[string]models.Appointment
	FailWrites   bool
}

// NewMemoryAppointmentCollection creates an empty in-memory appointment collection.
func NewMemoryAppointmentCollection() *MemoryAppointmentCollection {
	return &MemoryAppointmentCollection{appointments: make(map[string]models.Appointment)}
}

func (c *MemoryAppointmentCollection) InsertAppointment(ctx context.Context, appointment models.Appointment) (*models.Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return nil, errWriteFailed
	}

	appointment.ID = primitive.NewObjectID()
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = appointment.CreatedAt
	c.appointments[appointment.ID.Hex()] = appointment
	return &appointment, nil
}

func (c *MemoryAppointmentCollection) FindAppointmentByID(ctx context.Context, id string) (*models.Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	appointment, ok := c.appointments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &appointment, nil
}

func (c *MemoryAppointmentCollection) FindAppointments(ctx context.Context, filter bson.M) ([]models.Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.Appointment
	for _, appointment := range c.appointments {
		ok, err := structMatches(appointment, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, appointment)
		}
	}
	// Sort by (date, time) ascending like the Mongo implementation.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			if a.Date+a.Time > b.Date+b.Time {
				out[j-1], out[j] = b, a
			}
		}
	}
	return out, nil
}

func (c *MemoryAppointmentCollection) UpdateAppointment(ctx context.Context, id string, patch bson.M) (*models.Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return nil, errWriteFailed
	}

	appointment, ok := c.appointments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	var updated models.Appointment
	if err := applyPatch(appointment, patch, &updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now()
	c.appointments[id] = updated
	return &updated, nil
}

func (c *MemoryAppointmentCollection) MarkAppointmentPromoted(ctx context.Context, id string, taskID string) (*models.Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return nil, errWriteFailed
	}

	appointment, ok := c.appointments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if appointment.TaskID != "" {
		return nil, models.ErrConflict
	}
	appointment.TaskID = taskID
	appointment.UpdatedAt = time.Now()
	c.appointments[id] = appointment
	return &appointment, nil
}

// MemoryProposalCollection is an in-memory ProposalCollection.
type MemoryProposalCollection struct {
	mu        sync.Mutex
	proposals map[string]models.Proposal
}

// NewMemoryProposalCollection creates an empty in-memory proposal collection.
func NewMemoryProposalCollection() *MemoryProposalCollection {
	return &MemoryProposalCollection{proposals: make(map[string]models.Proposal)}
}

func (c *MemoryProposalCollection) InsertProposal(ctx context.Context, proposal models.Proposal) (*models.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	proposal.ID = primitive.NewObjectID()
	proposal.CreatedAt = time.Now()
	proposal.UpdatedAt = proposal.CreatedAt
	c.proposals[proposal.ID.Hex()] = proposal
	return &proposal, nil
}

func (c *MemoryProposalCollection) FindProposalByID(ctx context.Context, id string) (*models.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	proposal, ok := c.proposals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &proposal, nil
}

func (c *MemoryProposalCollection) FindProposals(ctx context.Context, filter bson.M) ([]models.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.Proposal
	for _, proposal := range c.proposals {
		ok, err := structMatches(proposal, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, proposal)
		}
	}
	return out, nil
}

func (c *MemoryProposalCollection) TransitionProposal(ctx context.Context, id string, from, to models.ProposalStatus, patch bson.M) (*models.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	proposal, ok := c.proposals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if proposal.Status != from {
		return nil, models.ErrConflict
	}
	var updated models.Proposal
	if err := applyPatch(proposal, patch, &updated); err != nil {
		return nil, err
	}
	updated.Status = to
	updated.UpdatedAt = time.Now()
	c.proposals[id] = updated
	return &updated, nil
}

// MemoryVehicleCollection is an in-memory VehicleCollection.
type MemoryVehicleCollection struct {
	mu       sync.Mutex
	vehicles map[string]models.Vehicle
}

// NewMemoryVehicleCollection creates an empty in-memory vehicle collection.
func NewMemoryVehicleCollection() *MemoryVehicleCollection {
	return &MemoryVehicleCollection{vehicles: make(map[string]models.Vehicle)}
}

func (c *MemoryVehicleCollection) InsertVehicle(ctx context.Context, vehicle models.Vehicle) (*models.Vehicle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vehicle.ID = primitive.NewObjectID()
	vehicle.CreatedAt = time.Now()
	vehicle.UpdatedAt = vehicle.CreatedAt
	c.vehicles[vehicle.ID.Hex()] = vehicle
	return &vehicle, nil
}

func (c *MemoryVehicleCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vehicle, ok := c.vehicles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &vehicle, nil
}

func (c *MemoryVehicleCollection) FindVehicleByPlate(ctx context.Context, orgID, plate string) (*models.Vehicle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, vehicle := range c.vehicles {
		if vehicle.OrgID == orgID && vehicle.Plate == plate {
			v := vehicle
			return &v, nil
		}
	}
	return nil, models.ErrNotFound
}

func (c *MemoryVehicleCollection) FindVehicles(ctx context.Context, filter bson.M) ([]models.Vehicle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.Vehicle
	for _, vehicle := range c.vehicles {
		ok, err := structMatches(vehicle, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, vehicle)
		}
	}
	return out, nil
}

func (c *MemoryVehicleCollection) UpdateVehicle(ctx context.Context, id string, patch bson.M) (*models.Vehicle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vehicle, ok := c.vehicles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	var updated models.Vehicle
	if err := applyPatch(vehicle, patch, &updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now()
	c.vehicles[id] = updated
	return &updated, nil
}

func (c *MemoryVehicleCollection) DeleteVehicle(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.vehicles[id]; !ok {
		return models.ErrNotFound
	}
	delete(c.vehicles, id)
	return nil
}

// MemoryUserCollection is an in-memory UserCollection.
type MemoryUserCollection struct {
	mu    sync.Mutex
	users map[string]models.User
}

// NewMemoryUserCollection creates an empty in-memory user collection.
func NewMemoryUserCollection() *MemoryUserCollection {
	return &MemoryUserCollection{users: make(map[string]models.User)}
}

func (c *MemoryUserCollection) InsertUser(ctx context.Context, user models.User) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	user.IsActive = true
	c.users[user.ID.Hex()] = user
	return &user, nil
}

func (c *MemoryUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, ok := c.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &user, nil
}

func (c *MemoryUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, user := range c.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (c *MemoryUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, user := range c.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (c *MemoryUserCollection) FindUsers(ctx context.Context, filter bson.M) ([]models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.User
	for _, user := range c.users {
		ok, err := structMatches(user, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (c *MemoryUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.users[id]
	if !ok {
		return models.ErrNotFound
	}
	user.ID = existing.ID
	user.UpdatedAt = time.Now()
	c.users[id] = user
	return nil
}

func (c *MemoryUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, ok := c.users[id]
	if !ok {
		return models.ErrNotFound
	}
	now := time.Now()
	user.LastLogin = &now
	user.UpdatedAt = now
	c.users[id] = user
	return nil
}
