package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joseph-ayodele/zerowaste/constants"
	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/llm"
)

// Config bounds every model call the planner makes.
type Config struct {
	Model        string
	DefaultKey   string
	CallTimeout  time.Duration
	MaxRetries   int
	RetryInitial time.Duration
}

// Service runs the planner tasks: build a prompt, invoke the model, recover
// a JSON object and coerce it to the task schema. Service holds no mutable
// state and is safe for concurrent use.
type Service struct {
	invoker llm.Invoker
	cfg     Config
	logger  *slog.Logger
}

func NewService(invoker llm.Invoker, cfg Config, logger *slog.Logger) *Service {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 45 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRetries > 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoker: invoker, cfg: cfg, logger: logger}
}

// invoke resolves the key and calls the model under a per-attempt timeout,
// retrying transient failures at most cfg.MaxRetries times.
func (s *Service) invoke(ctx context.Context, task constants.Task, prompt llm.Prompt, image *llm.Image, apiKey string) (string, error) {
	key, err := llm.Credentials{APIKey: apiKey, DefaultKey: s.cfg.DefaultKey}.Resolve()
	if err != nil {
		return "", err
	}
	req := llm.Request{
		Task:   task,
		Model:  s.cfg.Model,
		System: prompt.System,
		User:   prompt.User,
		Image:  image,
		Config: llm.TaskConfig(task),
		APIKey: key,
	}

	logger := common.LoggerFromContext(ctx, s.logger)
	var text string
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()

		out, err := s.invoker.Invoke(callCtx, req)
		if err != nil {
			err = asInvocationError(callCtx, err)
			if !common.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryInitial
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.MaxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Warn("planner.invoke.retry", "task", task, "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", asInvocationError(ctx, err)
	}
	return text, nil
}

// asInvocationError keeps configuration and invocation errors as they are and
// maps anything else (including a deadline) to a ModelInvocationError.
func asInvocationError(ctx context.Context, err error) error {
	if errors.Is(err, common.ErrConfiguration) || errors.Is(err, common.ErrModelInvocation) {
		return err
	}
	mie := &common.ModelInvocationError{Provider: "planner", Message: err.Error(), Cause: err}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		mie.Message = "model call timed out"
		mie.Transient = true
	}
	return mie
}

// decode recovers the task object from raw text and projects it onto T.
// ok is false when no object could be recovered.
func decode[T any](logger *slog.Logger, task constants.Task, raw string) (T, bool) {
	var out T
	schema := llm.SchemaFor(task)

	obj, err := llm.Normalize(raw)
	if err != nil {
		logger.Warn("planner.response.malformed", "task", task, "error", err, "chars", len(raw))
		return out, false
	}

	if violations, verr := schema.Validate(obj); verr != nil {
		logger.Error("planner.schema.compile_error", "task", task, "error", verr)
	} else if len(violations) > 0 {
		logger.Info("planner.schema.violations", "task", task, "count", len(violations), "first", violations[0].String())
	}

	coerced, changes := schema.Coerce(obj)
	if len(changes) > 0 {
		logger.Info("planner.schema.coerced", "task", task, "changes", changes)
	}

	bs, err := json.Marshal(coerced)
	if err != nil {
		logger.Error("planner.response.encode_error", "task", task, "error", err)
		return out, false
	}
	if err := json.Unmarshal(bs, &out); err != nil {
		logger.Error("planner.response.decode_error", "task", task, "error", err)
		return out, false
	}
	return out, true
}

// ReceiptError is returned when a receipt could not be processed because the
// model call failed.
type ReceiptError struct {
	Cause error
}

func (e *ReceiptError) Error() string {
	return fmt.Sprintf("Error processing receipt: %v", e.Cause)
}

func (e *ReceiptError) Unwrap() error {
	return e.Cause
}
