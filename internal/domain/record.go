package domain

// AlphaRecord is the persisted history row for one simulated alpha.
// Corresponds to the alpha_records table.
type AlphaRecord struct {
	RecordID   string   // PRIMARY KEY, uuid
	RunID      string   // batch run this record belongs to
	AlphaID    string   // remote alpha id, empty when simulation failed
	Expression string   // submitted expression text
	Region     string   // settings.region at submission
	Universe   string   // settings.universe at submission
	Status     string   // terminal job status
	Sharpe     float64  // 0 when simulation failed
	Fitness    *float64 // nullable
	Turnover   float64
	Returns    float64
	CreatedAt  int64 // Unix timestamp in milliseconds
}
