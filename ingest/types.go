package ingest

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// Status is a point-in-time snapshot for the admin surface.
type Status struct {
	IsRunning      bool       `json:"isRunning"`
	LastRunAt      int64      `json:"lastRunAt,omitempty"` // unix milli, zero before the first success
	LastResult     *RunResult `json:"lastResult,omitempty"`
	TotalEvents    int        `json:"totalEvents"`
	ImportedEvents int        `json:"importedEvents"`
	SyncPercentage float64    `json:"syncPercentage"`
}
