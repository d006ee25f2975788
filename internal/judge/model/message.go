package model

// JudgeMessage is the queue payload for judge and rejudge jobs.
type JudgeMessage struct {
	SubmissionID string `json:"submissionId"`
}

// StatusEvent is published after a run is finalized.
type StatusEvent struct {
	SubmissionID string  `json:"submissionId"`
	Verdict      Verdict `json:"verdict"`
	TimeUsedMs   int64   `json:"timeUsedMs"`
	MemoryUsedKB int64   `json:"memoryUsedKb"`
	PassedTests  int     `json:"passedTests"`
	TotalTests   int     `json:"totalTests"`
	FinishedAt   int64   `json:"finishedAt"`
}
