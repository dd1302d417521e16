package model

import (
	"time"

	"freightplan/internal/opt"
)

// API-facing types shared by the HTTP layer and the store.

// AllocationOptions are the per-request solver knobs. Zero values fall back to
// the tenant's optimizer config and then to server defaults.
type AllocationOptions struct {
	MissingTravelTime string `json:"missingTravelTime,omitempty" validate:"omitempty,oneof=reject exclude forbid"`
	Duals             string `json:"duals,omitempty" validate:"omitempty,oneof=fixed none"`
	TimeLimitMs       int    `json:"timeLimitMs,omitempty" validate:"gte=0"`
	MaxNodes          int    `json:"maxNodes,omitempty" validate:"gte=0"`
	// FetchTravelTimes asks the server to fill the matrix from its provider
	// when travelTimes is omitted.
	FetchTravelTimes bool `json:"fetchTravelTimes,omitempty"`
}

type AllocationRequest struct {
	TenantID    string             `json:"tenantId,omitempty"`
	Name        string             `json:"name,omitempty" validate:"max=200"`
	Supply      []opt.SupplyPoint  `json:"supply" validate:"required,min=1,dive"`
	Demand      []opt.DemandPoint  `json:"demand" validate:"required,min=1,dive"`
	Drivers     []opt.Driver       `json:"drivers" validate:"required,min=1,dive"`
	Cost        [][]float64        `json:"cost" validate:"required"`
	TravelTimes [][]opt.TravelTime `json:"travelTimes,omitempty"`
	Options     AllocationOptions  `json:"options,omitempty"`
}

// Problem converts the request body into the optimizer input.
func (r AllocationRequest) Problem() opt.Problem {
	return opt.Problem{Supply: r.Supply, Demand: r.Demand, Drivers: r.Drivers, Cost: r.Cost, TravelTimes: r.TravelTimes}
}

// Run is one persisted optimization with its input and result.
type Run struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenantId"`
	Name        string            `json:"name,omitempty"`
	Status      string            `json:"status"`
	Objective   *float64          `json:"objective,omitempty"`
	Options     AllocationOptions `json:"options"`
	Problem     opt.Problem       `json:"problem"`
	Result      opt.Result        `json:"result"`
	Geometry    [][][][2]float64  `json:"geometry,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt time.Time         `json:"completedAt"`
}

// Route returns the stored polyline for lane (i,j), or nil.
func (r Run) Route(i, j int) [][2]float64 {
	if i < len(r.Geometry) && j < len(r.Geometry[i]) {
		return r.Geometry[i][j]
	}
	return nil
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Status      string    `json:"status"`
	Objective   *float64  `json:"objective,omitempty"`
	Allocations int       `json:"allocations"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (r Run) Summary() RunSummary {
	return RunSummary{ID: r.ID, Name: r.Name, Status: r.Status, Objective: r.Objective, Allocations: len(r.Result.Allocations), CreatedAt: r.CreatedAt}
}

type TravelTimeRequest struct {
	Supply []opt.SupplyPoint `json:"supply" validate:"required,min=1,dive"`
	Demand []opt.DemandPoint `json:"demand" validate:"required,min=1,dive"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url" validate:"required,url"`
	Events   []string `json:"events" validate:"required,min=1,dive,oneof=allocation.started allocation.completed allocation.failed"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// Event types published to brokers and webhooks.
const (
	EventAllocationStarted   = "allocation.started"
	EventAllocationCompleted = "allocation.completed"
	EventAllocationFailed    = "allocation.failed"
)
