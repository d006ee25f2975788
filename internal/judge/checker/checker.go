// Package checker builds and runs testlib-style special-judge checkers in the sandbox.
package checker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"judgecore/internal/judge/sandbox"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

// ErrCompile is matched by every error caused by the checker source itself.
var ErrCompile = errors.New("checker compile failed")

const (
	binaryName = "checker"
	headerName = "testlib.h"

	inputName  = "input.txt"
	outputName = "user.out"
	answerName = "answer.txt"

	defaultCompileCPU  = 30 * time.Second
	defaultRunCPU      = 10 * time.Second
	defaultMemoryMB    = 512
	defaultProcLimit   = 50
	diagnosticMaxBytes = 64 << 10
)

// testlib exit codes.
const (
	exitWrongAnswer  = 1
	exitPresentation = 2
	exitFail         = 3
)

// Config holds checker build and run settings.
type Config struct {
	TestlibPath   string        `yaml:"testlibPath"`
	CompileCPU    time.Duration `yaml:"compileCPU"`
	RunCPU        time.Duration `yaml:"runCPU"`
	MemoryLimitMB int64         `yaml:"memoryLimitMB"`
}

func (c Config) withDefaults() Config {
	if c.CompileCPU <= 0 {
		c.CompileCPU = defaultCompileCPU
	}
	if c.RunCPU <= 0 {
		c.RunCPU = defaultRunCPU
	}
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = defaultMemoryMB
	}
	return c
}

// Compiler compiles checkers and evaluates contestant output with them.
type Compiler struct {
	exec sandbox.Executor
	cfg  Config
}

// NewCompiler creates a checker compiler on top of a sandbox executor.
func NewCompiler(exec sandbox.Executor, cfg Config) *Compiler {
	return &Compiler{exec: exec, cfg: cfg.withDefaults()}
}

// Compile builds problemDataDir/checkerSourceName against the bundled testlib header
// and returns the sandbox file id of the binary. The caller owns the id and must release it.
func (c *Compiler) Compile(ctx context.Context, problemDataDir, checkerSourceName string) (string, error) {
	if strings.TrimSpace(checkerSourceName) == "" {
		return "", appErr.Wrapf(ErrCompile, appErr.CheckerCompileFailed, "checker source is not configured")
	}
	source, err := os.ReadFile(filepath.Join(problemDataDir, filepath.Clean("/" + checkerSourceName)))
	if err != nil {
		return "", appErr.Wrapf(ErrCompile, appErr.CheckerCompileFailed, "read checker source %s failed: %v", checkerSourceName, err)
	}
	header, err := os.ReadFile(c.cfg.TestlibPath)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "read testlib header failed")
	}

	cmd := sandbox.Cmd{
		Args:        []string{"/usr/bin/g++", "-std=c++17", "-O2", "-o", binaryName, "checker.cpp"},
		Env:         []string{"PATH=/usr/bin:/bin"},
		Files:       sandbox.StdioFiles("", diagnosticMaxBytes),
		CPULimit:    uint64(c.cfg.CompileCPU.Nanoseconds()),
		ClockLimit:  uint64(2 * c.cfg.CompileCPU.Nanoseconds()),
		MemoryLimit: uint64(c.cfg.MemoryLimitMB) << 20,
		ProcLimit:   defaultProcLimit,
		CopyIn: map[string]sandbox.CmdFile{
			"checker.cpp": sandbox.InlineFile(string(source)),
			headerName:    sandbox.InlineFile(string(header)),
		},
		CopyOutCached: []string{binaryName},
	}
	res, err := c.exec.Execute(ctx, cmd)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxUnavailable, "checker compile request failed")
	}
	fileID := res.FileIDs[binaryName]
	if res.Status != sandbox.StatusAccepted || fileID == "" {
		if fileID != "" {
			c.release(ctx, fileID)
		}
		diag := strings.TrimSpace(res.Stderr)
		if diag == "" {
			diag = res.RawStatus
		}
		return "", appErr.Wrapf(ErrCompile, appErr.CheckerCompileFailed, "checker compile failed: %s", diag)
	}
	return fileID, nil
}

func (c *Compiler) release(ctx context.Context, fileID string) {
	if err := c.exec.Release(ctx, fileID); err != nil {
		logger.Warn(ctx, "release checker binary failed", zap.String("file_id", fileID), zap.Error(err))
	}
}

// Judgement is the checker's decision on one test case.
type Judgement int

const (
	// Accept means the output is correct.
	Accept Judgement = iota
	// Reject covers wrong answers and presentation errors.
	Reject
	// Fail means the checker itself misbehaved.
	Fail
)

func (j Judgement) String() string {
	switch j {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "fail"
	}
}

// Verdict is the checker decision plus its diagnostic output.
type Verdict struct {
	Judgement Judgement
	Message   string
}

// Check runs checker binary checkerID as `checker input user.out answer`.
// Transport failures are returned as errors; checker misbehaviour is a Fail judgement.
func (c *Compiler) Check(ctx context.Context, checkerID, input, output, answer string) (Verdict, error) {
	cmd := sandbox.Cmd{
		Args:        []string{binaryName, inputName, outputName, answerName},
		Env:         []string{"PATH=/usr/bin:/bin"},
		Files:       sandbox.StdioFiles("", diagnosticMaxBytes),
		CPULimit:    uint64(c.cfg.RunCPU.Nanoseconds()),
		ClockLimit:  uint64(2 * c.cfg.RunCPU.Nanoseconds()),
		MemoryLimit: uint64(c.cfg.MemoryLimitMB) << 20,
		ProcLimit:   defaultProcLimit,
		CopyIn: map[string]sandbox.CmdFile{
			binaryName: sandbox.CachedFile(checkerID),
			inputName:  sandbox.InlineFile(input),
			outputName: sandbox.InlineFile(output),
			answerName: sandbox.InlineFile(answer),
		},
	}
	res, err := c.exec.Execute(ctx, cmd)
	if err != nil {
		return Verdict{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "checker run request failed")
	}
	msg := strings.TrimSpace(res.Stderr)

	switch res.Status {
	case sandbox.StatusAccepted:
		return Verdict{Judgement: Accept, Message: msg}, nil
	case sandbox.StatusRuntimeError:
		if !res.ExitedNonzero() {
			break
		}
		switch res.ExitStatus {
		case exitWrongAnswer, exitPresentation:
			return Verdict{Judgement: Reject, Message: msg}, nil
		case exitFail:
			return Verdict{Judgement: Fail, Message: "checker failed: " + msg}, nil
		}
	}
	return Verdict{Judgement: Fail, Message: "checker exited abnormally: " + res.RawStatus + " " + msg}, nil
}
