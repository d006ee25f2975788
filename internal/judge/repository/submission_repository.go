package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/db"
	"judgecore/internal/judge/model"
)

const (
	defaultProblemCacheTTL      = 10 * time.Minute
	defaultProblemCacheEmptyTTL = time.Minute
	problemCacheKeyPrefix       = "judge:problem:limits:"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrProblemNotFound    = errors.New("problem not found")
)

// SubmissionRepository is the durable store the pipeline reads from and finalizes into.
type SubmissionRepository interface {
	Get(ctx context.Context, submissionID string) (*model.Submission, error)
	// MarkJudging resets the record to Judging with counters and diagnostic cleared.
	MarkJudging(ctx context.Context, submissionID string) error
	// Finalize writes the terminal verdict. Writing the same outcome twice is harmless.
	Finalize(ctx context.Context, outcome model.Outcome) error
	GetProblem(ctx context.Context, problemID int64) (*model.Problem, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
// Problem limits are read through the cache; submissions never are, since the judge mutates them.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a repository. cacheClient may be nil.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      defaultProblemCacheTTL,
		emptyTTL: defaultProblemCacheEmptyTTL,
	}
}

const submissionColumns = "submission_id, problem_id, language, source_code, code_length, verdict, passed_tests, total_tests, time_used_ms, memory_used_kb, error_message"

// Get retrieves a submission by id.
func (r *MySQLSubmissionRepository) Get(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE submission_id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, submissionID)
	sub := &model.Submission{}
	var verdict string
	var errorMessage *string
	if err := row.Scan(
		&sub.ID,
		&sub.ProblemID,
		&sub.Language,
		&sub.Code,
		&sub.CodeLength,
		&verdict,
		&sub.PassedTests,
		&sub.TotalTests,
		&sub.TimeUsedMs,
		&sub.MemoryUsedKB,
		&errorMessage,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	v, err := model.ParseVerdict(verdict)
	if err != nil {
		return nil, err
	}
	sub.Verdict = v
	if errorMessage != nil {
		sub.ErrorMessage = *errorMessage
	}
	return sub, nil
}

// MarkJudging resets the durable record at the start of a run.
func (r *MySQLSubmissionRepository) MarkJudging(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	query := `
		UPDATE submissions
		SET verdict = ?, passed_tests = 0, total_tests = 0, time_used_ms = 0, memory_used_kb = 0, error_message = NULL
		WHERE submission_id = ?
	`
	result, err := r.db.Exec(ctx, query, string(model.VerdictJudging), submissionID)
	if err != nil {
		return err
	}
	return requireMatch(result)
}

// Finalize writes the terminal verdict of a run.
func (r *MySQLSubmissionRepository) Finalize(ctx context.Context, outcome model.Outcome) error {
	if outcome.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	if !outcome.Verdict.IsTerminal() {
		return errors.New("finalize requires a terminal verdict")
	}
	var errorMessage *string
	if outcome.ErrorMessage != "" {
		errorMessage = &outcome.ErrorMessage
	}
	query := `
		UPDATE submissions
		SET verdict = ?, passed_tests = ?, total_tests = ?, time_used_ms = ?, memory_used_kb = ?, error_message = ?
		WHERE submission_id = ?
	`
	result, err := r.db.Exec(
		ctx,
		query,
		string(outcome.Verdict),
		outcome.PassedTests,
		outcome.TotalTests,
		outcome.TimeUsedMs,
		outcome.MemoryUsedKB,
		errorMessage,
		outcome.SubmissionID,
	)
	if err != nil {
		return err
	}
	return requireMatch(result)
}

// requireMatch maps an update that matched no row to ErrSubmissionNotFound.
func requireMatch(result db.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// GetProblem returns the base limits of a problem.
func (r *MySQLSubmissionRepository) GetProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, errors.New("problemID is required")
	}
	if r.cache == nil {
		return r.getProblemFromDB(ctx, problemID)
	}
	problem, err := cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemCacheKeyPrefix+strconv.FormatInt(problemID, 10),
		r.ttl,
		r.emptyTTL,
		func(p *model.Problem) bool { return p == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*model.Problem, error) {
			p, err := r.getProblemFromDB(ctx, problemID)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *MySQLSubmissionRepository) getProblemFromDB(ctx context.Context, problemID int64) (*model.Problem, error) {
	query := "SELECT problem_id, time_limit_ms, memory_limit_mb FROM problems WHERE problem_id = ? LIMIT 1"
	p := &model.Problem{}
	if err := r.db.QueryRow(ctx, query, problemID).Scan(&p.ID, &p.TimeLimitMs, &p.MemoryLimitMB); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return p, nil
}

func marshalProblem(p *model.Problem) string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProblem(s string) (*model.Problem, error) {
	var p model.Problem
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

var _ SubmissionRepository = (*MySQLSubmissionRepository)(nil)
