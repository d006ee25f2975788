// Package testdata resolves per-problem judge configuration and test case files.
package testdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"judgecore/internal/judge/model"
	appErr "judgecore/pkg/errors"
)

// ConfigFileName is the judge configuration file inside a problem data dir.
const ConfigFileName = "config.yaml"

// ErrMissingFile is matched by errors for test data files that do not exist.
var ErrMissingFile = errors.New("test data file missing")

// Syncer makes a problem data dir available locally.
type Syncer interface {
	Sync(ctx context.Context, problemID int64, dir string) error
}

// Loader reads problem data from dataDir/<problemID>.
type Loader struct {
	dataDir string
	syncer  Syncer
}

// NewLoader creates a loader. syncer may be nil when data dirs are provisioned out of band.
func NewLoader(dataDir string, syncer Syncer) *Loader {
	return &Loader{dataDir: dataDir, syncer: syncer}
}

// Set is a problem's validated judge configuration and its case files.
type Set struct {
	Dir    string
	Config model.JudgeConfig
}

// Total returns the number of configured cases.
func (s *Set) Total() int {
	return len(s.Config.Cases)
}

// Case reads the i-th case. Files are read on demand so only the case being judged is in memory.
func (s *Set) Case(i int) (model.TestCase, error) {
	if i < 0 || i >= len(s.Config.Cases) {
		return model.TestCase{}, appErr.Newf(appErr.InvalidParams, "case index %d out of range", i)
	}
	cf := s.Config.Cases[i]
	input, err := readCaseFile(s.Dir, cf.Input)
	if err != nil {
		return model.TestCase{}, err
	}
	expected, err := readCaseFile(s.Dir, cf.Output)
	if err != nil {
		return model.TestCase{}, err
	}
	return model.TestCase{
		Index:    i,
		Name:     cf.Input,
		Input:    input,
		Expected: expected,
	}, nil
}

// Load returns the validated judge data set of a problem, syncing it first when absent.
func (l *Loader) Load(ctx context.Context, problemID int64) (*Set, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	dir := filepath.Join(l.dataDir, strconv.FormatInt(problemID, 10))
	cfgPath := filepath.Join(dir, ConfigFileName)

	if _, err := os.Stat(cfgPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, appErr.Wrapf(err, appErr.TestDataMissing, "stat judge config failed")
		}
		if l.syncer == nil {
			return nil, appErr.Wrapf(ErrMissingFile, appErr.TestDataMissing, "judge config for problem %d not found", problemID)
		}
		if err := l.syncer.Sync(ctx, problemID, dir); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErr.Wrapf(ErrMissingFile, appErr.TestDataMissing, "judge config for problem %d not found", problemID)
		}
		return nil, appErr.Wrapf(err, appErr.TestDataMissing, "read judge config failed")
	}
	var cfg model.JudgeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, appErr.Wrapf(err, appErr.TestDataInvalid, "parse judge config failed")
	}
	if err := validate(dir, &cfg); err != nil {
		return nil, err
	}
	return &Set{Dir: dir, Config: cfg}, nil
}

func validate(dir string, cfg *model.JudgeConfig) error {
	if cfg.Mode == "" {
		cfg.Mode = model.JudgeModeExact
	}
	switch cfg.Mode {
	case model.JudgeModeExact:
	case model.JudgeModeSpecialJudge:
		if strings.TrimSpace(cfg.Checker) == "" {
			return appErr.New(appErr.TestDataInvalid).WithMessage("special-judge mode requires a checker")
		}
	default:
		return appErr.Newf(appErr.TestDataInvalid, "unknown judge mode %q", cfg.Mode)
	}
	if len(cfg.Cases) == 0 {
		return appErr.New(appErr.TestDataInvalid).WithMessage("no test cases configured")
	}
	for i, cf := range cfg.Cases {
		if cf.Input == "" || cf.Output == "" {
			return appErr.Newf(appErr.TestDataInvalid, "case %d: input and output are required", i)
		}
		for _, name := range []string{cf.Input, cf.Output} {
			path, err := safeJoin(dir, name)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				return appErr.Wrapf(ErrMissingFile, appErr.TestDataMissing, "case %d: %s not found", i, name)
			}
		}
	}
	for lang, m := range cfg.TimeMultipliers {
		if m <= 0 {
			return appErr.Newf(appErr.TestDataInvalid, "time multiplier for %s must be positive", lang)
		}
	}
	for lang, m := range cfg.MemoryMultipliers {
		if m <= 0 {
			return appErr.Newf(appErr.TestDataInvalid, "memory multiplier for %s must be positive", lang)
		}
	}
	return nil
}

func readCaseFile(dir, name string) (string, error) {
	path, err := safeJoin(dir, name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", appErr.Wrapf(ErrMissingFile, appErr.TestDataMissing, "%s not found", name)
		}
		return "", appErr.Wrapf(err, appErr.TestDataMissing, "read %s failed", name)
	}
	return string(data), nil
}

// safeJoin joins a config-relative name under dir, rejecting paths that escape it.
func safeJoin(dir, name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", appErr.Newf(appErr.TestDataInvalid, "invalid test data path %q", name)
	}
	return filepath.Join(dir, clean), nil
}
