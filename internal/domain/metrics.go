package domain

// CheckResult values reported by the remote service.
const (
	CheckPass = "PASS"
	CheckFail = "FAIL"
)

// Check is the outcome of a single remote validation check.
type Check struct {
	Name   string   `json:"name"`
	Result string   `json:"result"`
	Limit  *float64 `json:"limit,omitempty"`
	Value  *float64 `json:"value,omitempty"`
}

// Passed reports whether the check passed.
func (c Check) Passed() bool {
	return c.Result == CheckPass
}

// MetricSet holds the in-sample performance metrics of a simulated alpha.
// Fitness is optional; the remote service omits it for some instrument
// configurations.
type MetricSet struct {
	Sharpe     float64  `json:"sharpe"`
	Fitness    *float64 `json:"fitness,omitempty"`
	Turnover   float64  `json:"turnover"`
	Returns    float64  `json:"returns"`
	Drawdown   float64  `json:"drawdown"`
	Margin     float64  `json:"margin"`
	LongCount  int      `json:"longCount"`
	ShortCount int      `json:"shortCount"`
	Checks     []Check  `json:"checks,omitempty"`
}

// AllChecksPassed reports whether every remote check passed.
// An empty check list counts as passing.
func (m *MetricSet) AllChecksPassed() bool {
	for _, c := range m.Checks {
		if !c.Passed() {
			return false
		}
	}
	return true
}

// TotalPositions returns the combined long and short position count.
func (m *MetricSet) TotalPositions() int {
	return m.LongCount + m.ShortCount
}
