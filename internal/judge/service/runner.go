package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"judgecore/internal/judge/checker"
	"judgecore/internal/judge/language"
	"judgecore/internal/judge/metrics"
	"judgecore/internal/judge/model"
	"judgecore/internal/judge/repository"
	"judgecore/internal/judge/sandbox"
	"judgecore/internal/judge/testdata"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

const (
	defaultCompileCPU     = 10 * time.Second
	defaultCompileMemMB   = 512
	defaultProcLimit      = 50
	defaultOutputLimit    = 64 << 20
	defaultReleaseTimeout = 5 * time.Second
	diagnosticMaxBytes    = 64 << 10
	clockLimitFactor      = 3
)

// RunnerConfig holds sandbox limits and the per-job watchdog.
type RunnerConfig struct {
	// JobTimeout bounds one submission's judging end to end; zero disables it.
	JobTimeout      time.Duration
	CompileCPU      time.Duration
	CompileMemoryMB int64
	ProcLimit       uint64
	OutputLimit     int64
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.CompileCPU <= 0 {
		c.CompileCPU = defaultCompileCPU
	}
	if c.CompileMemoryMB <= 0 {
		c.CompileMemoryMB = defaultCompileMemMB
	}
	if c.ProcLimit == 0 {
		c.ProcLimit = defaultProcLimit
	}
	if c.OutputLimit <= 0 {
		c.OutputLimit = defaultOutputLimit
	}
	return c
}

// Runner drives one submission through compile, test cases and finalize.
type Runner struct {
	submissions repository.SubmissionRepository
	data        DataLoader
	languages   LanguageTable
	exec        sandbox.Executor
	checkers    CheckerRunner
	progress    *ProgressPublisher
	finalizer   *Finalizer
	guard       RunTokenStore
	cfg         RunnerConfig
}

// RunnerDeps are the capabilities a Runner needs. Guard is optional.
type RunnerDeps struct {
	Submissions repository.SubmissionRepository
	Data        DataLoader
	Languages   LanguageTable
	Executor    sandbox.Executor
	Checkers    CheckerRunner
	Progress    *ProgressPublisher
	Finalizer   *Finalizer
	Guard       RunTokenStore
}

// NewRunner creates a runner.
func NewRunner(deps RunnerDeps, cfg RunnerConfig) (*Runner, error) {
	switch {
	case deps.Submissions == nil:
		return nil, fmt.Errorf("submission repository is required")
	case deps.Data == nil:
		return nil, fmt.Errorf("data loader is required")
	case deps.Languages == nil:
		return nil, fmt.Errorf("language table is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("sandbox executor is required")
	case deps.Checkers == nil:
		return nil, fmt.Errorf("checker runner is required")
	case deps.Finalizer == nil:
		return nil, fmt.Errorf("finalizer is required")
	}
	return &Runner{
		submissions: deps.Submissions,
		data:        deps.Data,
		languages:   deps.Languages,
		exec:        deps.Executor,
		checkers:    deps.Checkers,
		progress:    deps.Progress,
		finalizer:   deps.Finalizer,
		guard:       deps.Guard,
		cfg:         cfg.withDefaults(),
	}, nil
}

// run holds the state of one judge run.
type run struct {
	sub      *model.Submission
	profile  language.Profile
	set      *testdata.Set
	limits   caseLimits
	binaryID string
	checker  string

	passed   int
	total    int
	maxTime  int64
	maxMemKB int64
}

type caseLimits struct {
	cpuNs    uint64
	memBytes uint64
}

func (r *run) observe(res sandbox.Result) {
	r.maxTime = max(r.maxTime, res.TimeMs())
	r.maxMemKB = max(r.maxMemKB, res.MemoryKB())
}

func (r *run) outcome(verdict model.Verdict, diagnostic string) model.Outcome {
	return model.Outcome{
		SubmissionID: r.sub.ID,
		Verdict:      verdict,
		TimeUsedMs:   r.maxTime,
		MemoryUsedKB: r.maxMemKB,
		ErrorMessage: diagnostic,
		PassedTests:  r.passed,
		TotalTests:   r.total,
	}
}

// Run judges submissionID and finalizes it. Infrastructure failures after the
// submission is loaded end as a SystemError verdict rather than an error.
func (r *Runner) Run(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	ctx = logger.WithSubmission(ctx, submissionID)
	start := time.Now()
	done := metrics.RunStarted()
	defer done()

	token := ""
	if r.guard != nil {
		var err error
		token, err = r.guard.Claim(ctx, submissionID)
		if err != nil {
			logger.Warn(ctx, "claim run token failed, judging without supersede guard", zap.Error(err))
		}
	}

	sub, err := r.submissions.Get(ctx, submissionID)
	if err != nil {
		r.releaseToken(ctx, submissionID, token)
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			logger.Warn(ctx, "submission not found, dropping job")
			return appErr.Wrapf(err, appErr.SubmissionNotFound, "submission %s not found", submissionID)
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	if err := r.submissions.MarkJudging(ctx, submissionID); err != nil {
		logger.Warn(ctx, "mark judging failed", zap.Error(err))
	}
	r.progress.Publish(ctx, submissionID, model.VerdictJudging, 0, 0, false)
	logger.Info(ctx, "judge run started",
		zap.Int64("problem_id", sub.ProblemID),
		zap.String("language", sub.Language),
	)

	runCtx := ctx
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}

	st := &run{sub: sub}
	outcome, err := r.judgeSafely(runCtx, st)
	if err != nil {
		outcome = st.outcome(model.VerdictSystemError, systemDiagnostic(runCtx, err))
		logger.Error(ctx, "judge run failed", zap.Error(err))
	}

	r.releaseArtifacts(ctx, st)

	if err := r.finalizer.Finalize(ctx, token, outcome); err != nil {
		if appErr.Is(err, appErr.RunSuperseded) {
			return nil
		}
		return err
	}
	elapsed := time.Since(start)
	metrics.RunFinished(string(outcome.Verdict), elapsed)
	logger.Info(ctx, "judge run finished",
		zap.String("verdict", string(outcome.Verdict)),
		zap.Int("passed_tests", outcome.PassedTests),
		zap.Int("total_tests", outcome.TotalTests),
		zap.Int64("time_ms", outcome.TimeUsedMs),
		zap.Int64("memory_kb", outcome.MemoryUsedKB),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (r *Runner) judgeSafely(ctx context.Context, st *run) (outcome model.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = appErr.Newf(appErr.JudgeSystemError, "judge panicked: %v", p)
		}
	}()
	return r.judge(ctx, st)
}

func systemDiagnostic(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return appErr.JudgeTimeout.Message()
	}
	return err.Error()
}

// judge walks Compiling -> Running(i) -> Terminal. A returned error means the
// pipeline could not reach a verdict on its own.
func (r *Runner) judge(ctx context.Context, st *run) (model.Outcome, error) {
	profile, err := r.languages.Get(st.sub.Language)
	if err != nil {
		return st.outcome(model.VerdictCompileError, err.Error()), nil
	}
	st.profile = profile

	problem, err := r.submissions.GetProblem(ctx, st.sub.ProblemID)
	if err != nil {
		return model.Outcome{}, appErr.Wrapf(err, appErr.JudgeSystemError, "load problem %d failed", st.sub.ProblemID)
	}
	set, err := r.data.Load(ctx, st.sub.ProblemID)
	if err != nil {
		return model.Outcome{}, err
	}
	st.set = set
	st.limits = resolveLimits(problem, profile, set.Config)

	if profile.Compiled() {
		diag, err := r.compile(ctx, st)
		if err != nil {
			return model.Outcome{}, err
		}
		if st.binaryID == "" {
			logger.Info(ctx, "compile failed")
			return st.outcome(model.VerdictCompileError, diag), nil
		}
	}

	if set.Config.Mode == model.JudgeModeSpecialJudge {
		id, err := r.checkers.Compile(ctx, set.Dir, set.Config.Checker)
		if err != nil {
			if errors.Is(err, checker.ErrCompile) {
				return st.outcome(model.VerdictSystemError, err.Error()), nil
			}
			return model.Outcome{}, err
		}
		st.checker = id
	}

	st.total = set.Total()
	for i := 0; i < st.total; i++ {
		r.progress.Publish(ctx, st.sub.ID, model.VerdictJudging, st.passed, st.total, false)

		verdict, diag, err := r.runCase(ctx, st, i)
		if err != nil {
			return model.Outcome{}, err
		}
		if verdict != model.VerdictAccepted {
			logger.Info(ctx, "test case failed", zap.Int("case", i), zap.String("verdict", string(verdict)))
			return st.outcome(verdict, diag), nil
		}
		logger.Debug(ctx, "test case passed", zap.Int("case", i), zap.Int64("max_time_ms", st.maxTime))
		st.passed++
	}
	return st.outcome(model.VerdictAccepted, ""), nil
}

func resolveLimits(problem *model.Problem, profile language.Profile, cfg model.JudgeConfig) caseLimits {
	timeMult := profile.TimeMultiplier
	if m, ok := cfg.TimeMultipliers[profile.ID]; ok {
		timeMult = m
	}
	memMult := profile.MemoryMultiplier
	if m, ok := cfg.MemoryMultipliers[profile.ID]; ok {
		memMult = m
	}
	return caseLimits{
		cpuNs:    uint64(float64(problem.TimeLimitMs) * timeMult * float64(time.Millisecond)),
		memBytes: uint64(float64(problem.MemoryLimitMB) * memMult * 1024 * 1024),
	}
}

// compile leaves st.binaryID empty and returns the diagnostic when the source does not build.
func (r *Runner) compile(ctx context.Context, st *run) (string, error) {
	args, err := st.profile.CompileCmd()
	if err != nil {
		return "", err
	}
	cpu := uint64(r.cfg.CompileCPU.Nanoseconds())
	res, err := r.exec.Execute(ctx, sandbox.Cmd{
		Args:          args,
		Env:           st.profile.Env,
		Files:         sandbox.StdioFiles("", diagnosticMaxBytes),
		CPULimit:      cpu,
		ClockLimit:    cpu * clockLimitFactor,
		MemoryLimit:   uint64(r.cfg.CompileMemoryMB) << 20,
		ProcLimit:     r.cfg.ProcLimit,
		CopyIn:        map[string]sandbox.CmdFile{st.profile.SourceFile: sandbox.InlineFile(st.sub.Code)},
		CopyOutCached: []string{st.profile.BinaryFile},
	})
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxUnavailable, "compile request failed")
	}
	id := res.FileIDs[st.profile.BinaryFile]
	switch res.Status {
	case sandbox.StatusAccepted:
		if id == "" {
			return "", appErr.New(appErr.SandboxBadResponse).WithMessage("compile succeeded without a cached binary")
		}
		st.binaryID = id
		return "", nil
	case sandbox.StatusOtherFailure:
		return "", appErr.Newf(appErr.JudgeSystemError, "sandbox compile failure: %s %s", res.RawStatus, res.Error)
	}
	if id != "" {
		r.release(ctx, id)
	}
	diag := strings.TrimSpace(res.Stderr)
	if diag == "" {
		diag = strings.TrimSpace(res.Stdout)
	}
	if diag == "" {
		diag = res.RawStatus
	}
	return diag, nil
}

func (r *Runner) runCase(ctx context.Context, st *run, i int) (model.Verdict, string, error) {
	tc, err := st.set.Case(i)
	if err != nil {
		return "", "", err
	}
	args, err := st.profile.RunCmd()
	if err != nil {
		return "", "", err
	}
	copyIn := map[string]sandbox.CmdFile{}
	if st.binaryID != "" {
		copyIn[st.profile.BinaryFile] = sandbox.CachedFile(st.binaryID)
	} else {
		copyIn[st.profile.SourceFile] = sandbox.InlineFile(st.sub.Code)
	}
	res, err := r.exec.Execute(ctx, sandbox.Cmd{
		Args:        args,
		Env:         st.profile.Env,
		Files:       sandbox.StdioFiles(tc.Input, r.cfg.OutputLimit),
		CPULimit:    st.limits.cpuNs,
		ClockLimit:  st.limits.cpuNs * clockLimitFactor,
		MemoryLimit: st.limits.memBytes,
		ProcLimit:   r.cfg.ProcLimit,
		CopyIn:      copyIn,
	})
	if err != nil {
		return "", "", appErr.Wrapf(err, appErr.SandboxUnavailable, "run case %d failed", i)
	}
	st.observe(res)

	switch res.Status {
	case sandbox.StatusAccepted:
	case sandbox.StatusTimeLimitExceeded:
		return model.VerdictTimeLimitExceeded, "", nil
	case sandbox.StatusMemoryLimitExceeded:
		return model.VerdictMemoryLimitExceeded, "", nil
	case sandbox.StatusRuntimeError:
		return model.VerdictRuntimeError, "", nil
	default:
		return "", "", appErr.Newf(appErr.JudgeSystemError, "sandbox failure on case %d: %s %s", i, res.RawStatus, res.Error)
	}

	if st.checker == "" {
		if CompareExact(tc.Expected, res.Stdout) {
			return model.VerdictAccepted, "", nil
		}
		return model.VerdictWrongAnswer, "", nil
	}

	v, err := r.checkers.Check(ctx, st.checker, tc.Input, res.Stdout, tc.Expected)
	if err != nil {
		return "", "", err
	}
	switch v.Judgement {
	case checker.Accept:
		return model.VerdictAccepted, "", nil
	case checker.Reject:
		return model.VerdictWrongAnswer, "", nil
	default:
		return model.VerdictSystemError, v.Message, nil
	}
}

func (r *Runner) releaseArtifacts(ctx context.Context, st *run) {
	for _, id := range []string{st.binaryID, st.checker} {
		if id != "" {
			r.release(ctx, id)
		}
	}
	st.binaryID, st.checker = "", ""
}

func (r *Runner) releaseToken(ctx context.Context, submissionID, token string) {
	if r.guard == nil || token == "" {
		return
	}
	if err := r.guard.Release(context.WithoutCancel(ctx), submissionID, token); err != nil {
		logger.Warn(ctx, "release run token failed", zap.Error(err))
	}
}

func (r *Runner) release(ctx context.Context, fileID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultReleaseTimeout)
	defer cancel()
	if err := r.exec.Release(ctx, fileID); err != nil {
		logger.Warn(ctx, "release sandbox file failed", zap.String("file_id", fileID), zap.Error(err))
	}
}
