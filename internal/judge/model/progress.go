package model

// Progress is the ephemeral per-case snapshot shown while judging.
type Progress struct {
	Verdict     Verdict `json:"verdict"`
	PassedTests int     `json:"passedTests"`
	TotalTests  int     `json:"totalTests"`
	Finished    bool    `json:"finished"`
}

// JudgeStatus is what status readers receive.
type JudgeStatus struct {
	SubmissionID string  `json:"submissionId"`
	Verdict      Verdict `json:"verdict"`
	PassedTests  int     `json:"passedTests"`
	TotalTests   int     `json:"totalTests"`
	Finished     bool    `json:"finished"`
	TimeUsedMs   int64   `json:"timeUsedMs,omitempty"`
	MemoryUsedKB int64   `json:"memoryUsedKb,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	// Source is "progress" while the live snapshot is served, "record" otherwise.
	Source string `json:"source"`
}

const (
	StatusSourceProgress = "progress"
	StatusSourceRecord   = "record"
)
