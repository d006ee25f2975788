// Package sandbox is the client side of the external go-judge style execution service.
package sandbox

import (
	"context"
	"errors"
)

// ErrTransport marks failures to reach or understand the sandbox service,
// as opposed to the program under test misbehaving.
var ErrTransport = errors.New("sandbox transport failure")

// Executor runs one command at a time in the sandbox and frees cached files.
type Executor interface {
	Execute(ctx context.Context, cmd Cmd) (Result, error)
	Release(ctx context.Context, fileID string) error
}

// Cmd is one command descriptor in the sandbox run request.
type Cmd struct {
	Args  []string   `json:"args"`
	Env   []string   `json:"env,omitempty"`
	Files []*CmdFile `json:"files,omitempty"`

	CPULimit    uint64 `json:"cpuLimit"`
	ClockLimit  uint64 `json:"clockLimit,omitempty"`
	MemoryLimit uint64 `json:"memoryLimit"`
	ProcLimit   uint64 `json:"procLimit"`

	CopyIn map[string]CmdFile `json:"copyIn,omitempty"`

	CopyOut       []string `json:"copyOut,omitempty"`
	CopyOutCached []string `json:"copyOutCached,omitempty"`
}

// CmdFile is either inline content, a cached file reference, or a named output collector.
type CmdFile struct {
	Content *string `json:"content,omitempty"`
	FileID  *string `json:"fileId,omitempty"`
	Name    *string `json:"name,omitempty"`
	Max     *int64  `json:"max,omitempty"`
}

// InlineFile builds a file carrying content in the request body.
func InlineFile(content string) CmdFile {
	return CmdFile{Content: &content}
}

// CachedFile references a file previously cached by the sandbox.
func CachedFile(fileID string) CmdFile {
	return CmdFile{FileID: &fileID}
}

// Collector captures a standard stream under name, truncated at limit bytes.
func Collector(name string, limit int64) *CmdFile {
	return &CmdFile{Name: &name, Max: &limit}
}

// StdioFiles returns stdin content plus stdout/stderr collectors.
func StdioFiles(stdin string, outputMax int64) []*CmdFile {
	in := InlineFile(stdin)
	return []*CmdFile{&in, Collector(StdoutName, outputMax), Collector(StderrName, outputMax)}
}

const (
	StdoutName = "stdout"
	StderrName = "stderr"
)

// Result is the outcome of one sandboxed command.
type Result struct {
	Status Status
	// RawStatus is the status string the sandbox reported.
	RawStatus   string
	ExitStatus  int
	Error       string
	TimeNs      uint64
	RunTimeNs   uint64
	MemoryBytes uint64
	Stdout      string
	Stderr      string
	Files       map[string]string
	FileIDs     map[string]string
}

// TimeMs returns the cpu time rounded down to milliseconds.
func (r Result) TimeMs() int64 {
	return int64(r.TimeNs / 1_000_000)
}

// MemoryKB returns the peak memory in kilobytes.
func (r Result) MemoryKB() int64 {
	return int64(r.MemoryBytes / 1024)
}
