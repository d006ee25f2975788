package model

// Submission is the durable record the pipeline reads and finalizes.
type Submission struct {
	ID           string
	ProblemID    int64
	Language     string
	Code         string
	CodeLength   int
	Verdict      Verdict
	PassedTests  int
	TotalTests   int
	TimeUsedMs   int64
	MemoryUsedKB int64
	ErrorMessage string
}

// Problem holds the base limits the judge scales per language.
type Problem struct {
	ID            int64 `json:"id"`
	TimeLimitMs   int64 `json:"timeLimitMs"`
	MemoryLimitMB int64 `json:"memoryLimitMb"`
}

// Outcome is the final result of one judge run.
type Outcome struct {
	SubmissionID string
	Verdict      Verdict
	TimeUsedMs   int64
	MemoryUsedKB int64
	ErrorMessage string
	PassedTests  int
	TotalTests   int
}
