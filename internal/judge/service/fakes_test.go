package service_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"judgecore/internal/judge/checker"
	"judgecore/internal/judge/language"
	"judgecore/internal/judge/model"
	"judgecore/internal/judge/repository"
	"judgecore/internal/judge/sandbox"
	"judgecore/internal/judge/service"
	"judgecore/internal/judge/testdata"
)

type fakeSubmissions struct {
	mu        sync.Mutex
	subs      map[string]*model.Submission
	problems  map[int64]*model.Problem
	marked    []string
	finalized []model.Outcome

	// finalizeErr fails every Finalize call when set.
	finalizeErr error
}

func (f *fakeSubmissions) Get(ctx context.Context, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubmissions) MarkJudging(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	if sub, ok := f.subs[id]; ok {
		sub.Verdict = model.VerdictJudging
	}
	return nil
}

func (f *fakeSubmissions) Finalize(ctx context.Context, o model.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	f.finalized = append(f.finalized, o)
	if sub, ok := f.subs[o.SubmissionID]; ok {
		sub.Verdict = o.Verdict
		sub.PassedTests = o.PassedTests
		sub.TotalTests = o.TotalTests
		sub.TimeUsedMs = o.TimeUsedMs
		sub.MemoryUsedKB = o.MemoryUsedKB
		sub.ErrorMessage = o.ErrorMessage
	}
	return nil
}

func (f *fakeSubmissions) GetProblem(ctx context.Context, id int64) (*model.Problem, error) {
	p, ok := f.problems[id]
	if !ok {
		return nil, repository.ErrProblemNotFound
	}
	return p, nil
}

func (f *fakeSubmissions) last(t *testing.T) model.Outcome {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.finalized) != 1 {
		t.Fatalf("expected exactly one finalize, got %d", len(f.finalized))
	}
	return f.finalized[0]
}

type fakeProgress struct {
	mu      sync.Mutex
	history []model.Progress
	current map[string]model.Progress
	cleared []string
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{current: map[string]model.Progress{}}
}

func (f *fakeProgress) Publish(ctx context.Context, id string, p model.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, p)
	f.current[id] = p
	return nil
}

func (f *fakeProgress) Get(ctx context.Context, id string) (*model.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.current[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeProgress) Clear(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.current, id)
	f.cleared = append(f.cleared, id)
	return nil
}

type fakeGuard struct {
	mu       sync.Mutex
	current  map[string]string
	next     int
	released []string
	// steal makes every IsCurrent check fail, as if a rejudge claimed the submission.
	steal bool
}

func (g *fakeGuard) Claim(ctx context.Context, id string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	token := fmt.Sprintf("token-%d", g.next)
	if g.current == nil {
		g.current = map[string]string{}
	}
	g.current[id] = token
	return token, nil
}

func (g *fakeGuard) IsCurrent(ctx context.Context, id, token string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.steal && g.current[id] == token, nil
}

func (g *fakeGuard) Release(ctx context.Context, id, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = append(g.released, token)
	return nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	handle   func(ctx context.Context, cmd sandbox.Cmd) (sandbox.Result, error)
	cmds     []sandbox.Cmd
	released []string
}

func (f *fakeExecutor) Execute(ctx context.Context, cmd sandbox.Cmd) (sandbox.Result, error) {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	f.mu.Unlock()
	return f.handle(ctx, cmd)
}

func (f *fakeExecutor) Release(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
	return nil
}

func (f *fakeExecutor) runCmds() []sandbox.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sandbox.Cmd
	for _, c := range f.cmds {
		if len(c.CopyOutCached) == 0 {
			out = append(out, c)
		}
	}
	return out
}

type fakeChecker struct {
	compileErr error
	verdicts   []checker.Verdict
	checks     int
}

func (f *fakeChecker) Compile(ctx context.Context, dir, name string) (string, error) {
	if f.compileErr != nil {
		return "", f.compileErr
	}
	return "chk-1", nil
}

func (f *fakeChecker) Check(ctx context.Context, id, input, output, answer string) (checker.Verdict, error) {
	v := f.verdicts[f.checks]
	f.checks++
	return v, nil
}

// stdinOf returns the inline stdin content of a run command.
func stdinOf(cmd sandbox.Cmd) string {
	if len(cmd.Files) == 0 || cmd.Files[0].Content == nil {
		return ""
	}
	return *cmd.Files[0].Content
}

// writeProblem lays out a problem data dir whose case i reads "i" and expects "i*2".
func writeProblem(t *testing.T, root string, problemID int64, cases int, extra string) {
	t.Helper()
	dir := filepath.Join(root, itoa(problemID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	cfg := "cases:\n"
	for i := 1; i <= cases; i++ {
		in, out := itoa(int64(i))+".in", itoa(int64(i))+".out"
		cfg += "  - {input: " + in + ", output: " + out + "}\n"
		write(t, filepath.Join(dir, in), itoa(int64(i))+"\n")
		write(t, filepath.Join(dir, out), itoa(int64(i*2))+"\n")
	}
	write(t, filepath.Join(dir, testdata.ConfigFileName), cfg+extra)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s failed: %v", path, err)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

type harness struct {
	subs     *fakeSubmissions
	progress *fakeProgress
	guard    *fakeGuard
	exec     *fakeExecutor
	checker  *fakeChecker
	runner   *service.Runner
	dataDir  string
}

func newHarness(t *testing.T, lang string, cfg service.RunnerConfig) *harness {
	t.Helper()
	h := &harness{
		subs: &fakeSubmissions{
			subs: map[string]*model.Submission{
				"s-1": {ID: "s-1", ProblemID: 1001, Language: lang, Code: "solution", Verdict: model.VerdictPending},
			},
			problems: map[int64]*model.Problem{1001: {ID: 1001, TimeLimitMs: 1000, MemoryLimitMB: 256}},
		},
		progress: newFakeProgress(),
		guard:    &fakeGuard{},
		exec:     &fakeExecutor{},
		checker:  &fakeChecker{},
		dataDir:  t.TempDir(),
	}
	publisher := service.NewProgressPublisher(h.progress, 0)
	finalizer := service.NewFinalizer(service.FinalizerConfig{
		Submissions: h.subs,
		Progress:    publisher,
		Guard:       h.guard,
	})
	runner, err := service.NewRunner(service.RunnerDeps{
		Submissions: h.subs,
		Data:        testdata.NewLoader(h.dataDir, nil),
		Languages:   language.Default(),
		Executor:    h.exec,
		Checkers:    h.checker,
		Progress:    publisher,
		Finalizer:   finalizer,
		Guard:       h.guard,
	}, cfg)
	if err != nil {
		t.Fatalf("new runner failed: %v", err)
	}
	h.runner = runner
	return h
}

// doubling answers every case correctly, compiling to "bin-1".
func doubling(times ...int64) func(ctx context.Context, cmd sandbox.Cmd) (sandbox.Result, error) {
	var mu sync.Mutex
	n := 0
	return func(ctx context.Context, cmd sandbox.Cmd) (sandbox.Result, error) {
		if len(cmd.CopyOutCached) > 0 {
			return sandbox.Result{Status: sandbox.StatusAccepted, RawStatus: "Accepted", FileIDs: map[string]string{cmd.CopyOutCached[0]: "bin-1"}}, nil
		}
		mu.Lock()
		var ms int64 = 1
		if n < len(times) {
			ms = times[n]
		}
		n++
		mu.Unlock()
		v, _ := strconv.ParseInt(strings.TrimSpace(stdinOf(cmd)), 10, 64)
		return sandbox.Result{
			Status:      sandbox.StatusAccepted,
			RawStatus:   "Accepted",
			Stdout:      itoa(v*2) + "  \r\n",
			TimeNs:      uint64(ms) * 1_000_000,
			MemoryBytes: uint64(ms) * 1024 * 1024,
		}, nil
	}
}
