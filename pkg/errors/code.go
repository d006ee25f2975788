package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Sandbox & Test data errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError ErrorCode = 10100

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheSetFailed ErrorCode = 10202
	LockFailed     ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Messaging errors (10400-10499)
	MessagePublishFailed ErrorCode = 10400
	MessageDecodeFailed  ErrorCode = 10401

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound   ErrorCode = 13000
	LanguageNotSupported ErrorCode = 13003

	// Judge (13100-13199)
	JudgeSystemError     ErrorCode = 13101
	JudgeTimeout         ErrorCode = 13107
	CheckerCompileFailed ErrorCode = 13108
	RunSuperseded        ErrorCode = 13109

	// ========== Sandbox & Test Data Errors (14000-14999) ==========

	// Sandbox (14000-14099)
	SandboxUnavailable ErrorCode = 14000
	SandboxBadResponse ErrorCode = 14001

	// Test data (14100-14199)
	TestDataMissing    ErrorCode = 14100
	TestDataInvalid    ErrorCode = 14101
	TestDataSyncFailed ErrorCode = 14102
	StorageError       ErrorCode = 14103
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError: "Database operation failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheSetFailed: "Failed to set cache",
	LockFailed:     "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Messaging
	MessagePublishFailed: "Failed to publish message",
	MessageDecodeFailed:  "Failed to decode message",

	// Submission
	SubmissionNotFound:   "Submission not found",
	LanguageNotSupported: "Programming language not supported",

	// Judge
	JudgeSystemError:     "Judge system error",
	JudgeTimeout:         "Judge timed out",
	CheckerCompileFailed: "Checker compilation failed",
	RunSuperseded:        "Judge run superseded by a newer run",

	// Sandbox
	SandboxUnavailable: "Sandbox service unavailable",
	SandboxBadResponse: "Sandbox returned an invalid response",

	// Test data
	TestDataMissing:    "Test data file missing",
	TestDataInvalid:    "Invalid test data configuration",
	TestDataSyncFailed: "Failed to sync test data",
	StorageError:       "Object storage operation failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == SubmissionNotFound:
		return 404
	case c == ServiceUnavailable, c == SandboxUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported:
		return 400
	default:
		return 500
	}
}
