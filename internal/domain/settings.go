package domain

// SimulationSettings configures a remote simulation run.
// JSON tags match the remote wire names exactly. Settings are copied
// by value per job and never mutated after submission.
type SimulationSettings struct {
	InstrumentType string  `json:"instrumentType"`
	Region         string  `json:"region"`
	Universe       string  `json:"universe"`
	Delay          int     `json:"delay"`
	Decay          int     `json:"decay"`
	Neutralization string  `json:"neutralization"`
	Truncation     float64 `json:"truncation"`
	Pasteurization string  `json:"pasteurization"`
	UnitHandling   string  `json:"unitHandling"`
	NanHandling    string  `json:"nanHandling"`
	Language       string  `json:"language"`
	Visualization  bool    `json:"visualization"`
}

// DefaultSettings returns the standard simulation configuration.
func DefaultSettings() SimulationSettings {
	return SimulationSettings{
		InstrumentType: "EQUITY",
		Region:         "USA",
		Universe:       "TOP3000",
		Delay:          1,
		Decay:          0,
		Neutralization: "INDUSTRY",
		Truncation:     0.08,
		Pasteurization: "ON",
		UnitHandling:   "VERIFY",
		NanHandling:    "OFF",
		Language:       "FASTEXPR",
		Visualization:  false,
	}
}

// WithRegion returns a copy of the settings with the region replaced.
func (s SimulationSettings) WithRegion(region string) SimulationSettings {
	s.Region = region
	return s
}
