package domain

import "encoding/json"

// Alpha represents one candidate expression together with its
// simulation settings and, once simulated, its remote identity and
// metrics.
type Alpha struct {
	Expression string             `json:"expression"`
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name,omitempty"`
	Settings   SimulationSettings `json:"settings"`
	Metrics    *MetricSet         `json:"metrics,omitempty"`
	Status     string             `json:"status,omitempty"`
	Grade      string             `json:"grade,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
	Color      string             `json:"color,omitempty"`
}

// Alpha status values reported by the remote service.
const (
	AlphaStatusUnsubmitted = "UNSUBMITTED"
	AlphaStatusSubmitted   = "SUBMITTED"
)

// NewAlpha creates an alpha with default settings.
func NewAlpha(expression string) *Alpha {
	return &Alpha{Expression: expression, Settings: DefaultSettings()}
}

// SimulationRequest is the wire body for POST /simulations.
type SimulationRequest struct {
	Type     string             `json:"type"`
	Settings SimulationSettings `json:"settings"`
	Regular  string             `json:"regular"`
}

// NewSimulationRequest builds the standard REGULAR simulation body.
func NewSimulationRequest(expression string, settings SimulationSettings) SimulationRequest {
	return SimulationRequest{Type: "REGULAR", Settings: settings, Regular: expression}
}

// SimulationStatus is the terminal body returned by a simulation job.
type SimulationStatus struct {
	ID      string    `json:"id,omitempty"`
	Status  JobStatus `json:"status"`
	AlphaID string    `json:"alpha,omitempty"`
	Message string    `json:"message,omitempty"`
}

// AlphaDetails is the remote representation of a simulated alpha,
// as returned by GET /alphas/{id}.
type AlphaDetails struct {
	ID       string             `json:"id"`
	Status   string             `json:"status"`
	Grade    string             `json:"grade"`
	Settings SimulationSettings `json:"settings"`
	Regular  struct {
		Code        string `json:"code"`
		Description string `json:"description,omitempty"`
	} `json:"regular"`
	InSample    *MetricSet `json:"is,omitempty"`
	DateCreated string     `json:"dateCreated,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// SimulationResult pairs the terminal job outcome with the alpha
// details fetched after completion. Details may be nil when the
// detail fetch failed; the job outcome is still authoritative.
type SimulationResult struct {
	Expression string           `json:"expression"`
	Job        SimulationStatus `json:"simulation"`
	Details    *AlphaDetails    `json:"alpha_details,omitempty"`
	Raw        json.RawMessage  `json:"-"`
}

// MetricsOrNil returns the in-sample metrics, or nil when unavailable.
func (r *SimulationResult) MetricsOrNil() *MetricSet {
	if r == nil || r.Details == nil {
		return nil
	}
	return r.Details.InSample
}
