package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"eventRelay/internal/metrics"
	"eventRelay/internal/model"
	"eventRelay/internal/notify"
	"eventRelay/internal/storage"
)

// State is a step of one execution attempt.
type State string

const (
	StateMatched   State = "matched"
	StateExecuting State = "executing"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateRecorded  State = "recorded"
)

// ErrNotRecorded wraps a store failure that left an attempt uncounted.
var ErrNotRecorded = errors.New("execution not recorded")

// ExecutorConfig holds executor settings. RecordTimeout bounds the bookkeeping that follows
// the action, which runs even after the caller's context is cancelled.
type ExecutorConfig struct {
	ActionTimeout time.Duration
	RecordTimeout time.Duration
}

// Executor runs a rule's action and records the attempt.
type Executor struct {
	cfg       ExecutorConfig
	registry  *Registry
	rules     storage.RuleStore
	execLog   storage.ExecutionLog
	composer  *notify.Composer
	publisher *notify.Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewExecutor(cfg ExecutorConfig, registry *Registry, rules storage.RuleStore, execLog storage.ExecutionLog, composer *notify.Composer, publisher *notify.Publisher, logger *zap.Logger, m *metrics.Metrics) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 10 * time.Second
	}
	return &Executor{
		cfg:       cfg,
		registry:  registry,
		rules:     rules,
		execLog:   execLog,
		composer:  composer,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Execute moves a matched rule through executing, succeeded or failed, and recorded.
// The attempt is counted even when ctx is cancelled mid-action. A counting failure is
// returned wrapped in ErrNotRecorded; execution log and result notification failures are
// returned joined but leave the attempt counted.
func (e *Executor) Execute(ctx context.Context, rule model.AutomationRule, event model.BlockchainEvent) (model.ExecutionResult, error) {
	logger := e.logger.With(
		zap.String("rule_id", rule.ID),
		zap.String("user_id", rule.UserID),
		zap.String("action", string(rule.ActionType)),
		zap.String("event_type", event.EventType),
	)
	logger.Debug("rule transition", zap.String("state", string(StateExecuting)))

	result := e.run(ctx, rule, event)
	state := StateSucceeded
	if !result.Success {
		state = StateFailed
		logger.Warn("rule action failed", zap.String("error", result.ErrorMessage))
	}
	logger.Debug("rule transition", zap.String("state", string(state)))
	e.metrics.RuleExecuted(string(rule.ActionType), result.Success)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RecordTimeout)
	defer cancel()

	executedAt := e.now()
	seq, err := e.rules.RecordExecution(recordCtx, rule.ID, executedAt)
	if err != nil {
		logger.Error("record execution failed", zap.Error(err))
		return result, fmt.Errorf("%w: %w", ErrNotRecorded, err)
	}

	var errs error
	if e.execLog != nil {
		entry := model.ExecutionLogEntry{
			ID:              ulid.Make().String(),
			RuleID:          rule.ID,
			UserID:          rule.UserID,
			AttemptSeq:      seq,
			ActionType:      rule.ActionType,
			EventType:       event.EventType,
			TransactionHash: event.TransactionHash,
			Success:         result.Success,
			ResultPayload:   result.ResultPayload,
			ErrorMessage:    result.ErrorMessage,
			ExecutedAt:      executedAt,
		}
		if err := e.execLog.AppendExecution(recordCtx, entry); err != nil {
			logger.Error("append execution log failed", zap.Uint64("attempt_seq", seq), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("append execution log: %w", err))
		}
	}

	n := e.composer.ComposeResult(rule, event, result)
	if _, err := e.publisher.Publish(recordCtx, n, nil); err != nil {
		logger.Error("result notification failed", zap.Error(err))
		errs = multierr.Append(errs, err)
	}
	logger.Debug("rule transition", zap.String("state", string(StateRecorded)), zap.Uint64("attempt_seq", seq))
	return result, errs
}

// run invokes the handler under the action timeout. Errors, panics and timeouts become a
// failed result.
func (e *Executor) run(ctx context.Context, rule model.AutomationRule, event model.BlockchainEvent) model.ExecutionResult {
	failed := func(err error) model.ExecutionResult {
		return model.ExecutionResult{RuleID: rule.ID, Success: false, ErrorMessage: err.Error()}
	}

	handler, err := e.registry.Handler(rule.ActionType)
	if err != nil {
		return failed(err)
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()

	type outcome struct {
		result model.ActionResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("action panic: %v", r)}
			}
		}()
		res, err := handler.Execute(actionCtx, rule, rule.ActionParams, event)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-actionCtx.Done():
		return failed(fmt.Errorf("action %s: %w", rule.ActionType, actionCtx.Err()))
	case out := <-done:
		if out.err != nil {
			return failed(out.err)
		}
		if !out.result.Success {
			msg := out.result.Message
			if msg == "" {
				msg = "action reported failure"
			}
			return model.ExecutionResult{RuleID: rule.ID, Success: false, ResultPayload: out.result.Payload, ErrorMessage: msg}
		}
		return model.ExecutionResult{RuleID: rule.ID, Success: true, ResultPayload: out.result.Payload}
	}
}
