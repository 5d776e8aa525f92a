// Package ask runs the question pipeline: translate, validate, execute and
// summarize, then records the outcome.
package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asklake/asklake/internal/archive"
	"github.com/asklake/asklake/internal/engine"
	"github.com/asklake/asklake/internal/generator"
	"github.com/asklake/asklake/internal/guardrail"
	"github.com/asklake/asklake/internal/history"
	"github.com/asklake/asklake/internal/nl2sql"
	"github.com/asklake/asklake/internal/observability"
)

const recordTimeout = 5 * time.Second

type Translator interface {
	Translate(ctx context.Context, question string) (nl2sql.Translation, error)
}

type Validator interface {
	Validate(sql string) (string, error)
}

type Executor interface {
	Execute(ctx context.Context, sql string, target engine.Target) (engine.ResultSet, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, question string, result engine.ResultSet) (string, error)
}

type Archiver interface {
	Archive(ctx context.Context, record archive.Record) (archive.Keys, error)
}

type Answer struct {
	ID          string
	Question    string
	SQL         string
	Model       string
	Columns     []string
	Rows        [][]*string
	RowCount    int
	Truncated   bool
	Narrative   string
	ExecutionID string
	Duration    time.Duration
}

type Dependencies struct {
	Translator Translator
	Validator  Validator
	Executor   Executor
	Summarizer Summarizer

	// History and Archive are optional and written best effort.
	History history.Recorder
	Archive Archiver
}

type Service struct {
	deps   Dependencies
	target engine.Target
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(deps Dependencies, target engine.Target, logger *slog.Logger) (*Service, error) {
	switch {
	case deps.Translator == nil:
		return nil, fmt.Errorf("translator is required")
	case deps.Validator == nil:
		return nil, fmt.Errorf("validator is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("executor is required")
	case deps.Summarizer == nil:
		return nil, fmt.Errorf("summarizer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deps:   deps,
		target: target,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrQuestionRequired
	}
	start := s.now()
	answer := Answer{ID: s.newID(), Question: question}

	err := s.run(ctx, &answer)
	answer.Duration = s.now().Sub(start)

	outcome := outcomeOf(err)
	observability.ObserveAsk(string(outcome), answer.Duration)
	s.record(ctx, answer, outcome, err)
	if err != nil {
		s.logger.InfoContext(ctx, "ask failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("answer_id", answer.ID),
			slog.String("stage", string(StageOf(err))),
			slog.Any("error", err),
		)
		return Answer{}, err
	}

	s.archive(ctx, answer)
	s.logger.InfoContext(ctx, "ask answered",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("answer_id", answer.ID),
		slog.String("execution_id", answer.ExecutionID),
		slog.Int("row_count", answer.RowCount),
		slog.Bool("truncated", answer.Truncated),
		slog.Duration("duration", answer.Duration),
	)
	return answer, nil
}

// Translate generates and validates SQL without executing it.
func (s *Service) Translate(ctx context.Context, question string) (nl2sql.Translation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nl2sql.Translation{}, ErrQuestionRequired
	}
	translation, err := s.deps.Translator.Translate(ctx, question)
	if err != nil {
		return nl2sql.Translation{}, stageErr(StageTranslate, err)
	}
	sql, err := s.deps.Validator.Validate(translation.SQL)
	if err != nil {
		return nl2sql.Translation{}, stageErr(StageValidate, err)
	}
	translation.SQL = sql
	return translation, nil
}

func (s *Service) Validate(sql string) (string, error) {
	validated, err := s.deps.Validator.Validate(sql)
	if err != nil {
		return "", stageErr(StageValidate, err)
	}
	return validated, nil
}

func (s *Service) run(ctx context.Context, answer *Answer) error {
	translation, err := s.Translate(ctx, answer.Question)
	if err != nil {
		return err
	}
	answer.SQL = translation.SQL
	answer.Model = translation.Model

	result, err := s.deps.Executor.Execute(ctx, answer.SQL, s.target)
	if err != nil {
		var failed *engine.ExecutionFailedError
		if errors.As(err, &failed) {
			answer.ExecutionID = failed.ExecutionID
		}
		return stageErr(StageExecute, err)
	}
	answer.ExecutionID = result.ExecutionID
	answer.Columns = result.Columns
	answer.Rows = result.Rows
	answer.RowCount = len(result.Rows)
	answer.Truncated = result.Truncated

	narrative, err := s.deps.Summarizer.Summarize(ctx, answer.Question, result)
	if err != nil {
		return stageErr(StageSummarize, err)
	}
	answer.Narrative = narrative
	return nil
}

func (s *Service) record(ctx context.Context, answer Answer, outcome history.Status, cause error) {
	if s.deps.History == nil {
		return
	}
	entry := history.Entry{
		ID:          answer.ID,
		Question:    answer.Question,
		SQL:         answer.SQL,
		Status:      outcome,
		ExecutionID: answer.ExecutionID,
		RowCount:    answer.RowCount,
		Truncated:   answer.Truncated,
		Duration:    answer.Duration,
	}
	if cause != nil {
		entry.ErrorKind = errorKind(cause)
		entry.ErrorMessage = cause.Error()
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if _, err := s.deps.History.Record(recordCtx, entry); err != nil {
		s.logger.WarnContext(ctx, "history record failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("answer_id", answer.ID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) archive(ctx context.Context, answer Answer) {
	if s.deps.Archive == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	keys, err := s.deps.Archive.Archive(archiveCtx, archive.Record{
		ID:          answer.ID,
		Question:    answer.Question,
		SQL:         answer.SQL,
		Columns:     answer.Columns,
		Rows:        answer.Rows,
		Truncated:   answer.Truncated,
		Narrative:   answer.Narrative,
		ExecutionID: answer.ExecutionID,
		Model:       answer.Model,
		Duration:    answer.Duration,
		CreatedAt:   s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "answer archive failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("answer_id", answer.ID),
			slog.Any("error", err),
		)
		return
	}
	s.logger.DebugContext(ctx, "answer archived",
		slog.String("answer_id", answer.ID),
		slog.String("document", keys.Document),
	)
}

func outcomeOf(err error) history.Status {
	var rejected *guardrail.ValidationError
	switch {
	case err == nil:
		return history.StatusSucceeded
	case errors.As(err, &rejected):
		return history.StatusRejected
	default:
		return history.StatusFailed
	}
}

func errorKind(err error) string {
	var (
		rejected *guardrail.ValidationError
		failed   *engine.ExecutionFailedError
	)
	switch {
	case errors.As(err, &rejected):
		return string(rejected.Kind)
	case errors.As(err, &failed):
		return string(failed.State)
	case generator.IsThrottling(err):
		return "Throttled"
	case errors.Is(err, nl2sql.ErrEmptySQL):
		return "EmptySQL"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	default:
		return string(StageOf(err))
	}
}
