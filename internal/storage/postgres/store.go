package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"eventRelay/internal/model"
	"eventRelay/internal/storage"
)

//go:embed schema.sql
var schema string

// errMalformedRow marks a row whose JSONB columns do not decode. Scope queries skip such rows
// so one bad entity cannot hide every other user's subscriptions or rules.
var errMalformedRow = errors.New("malformed row")

// Store provides Postgres persistence for subscriptions, rules, notifications and executions.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ActiveSubscriptions returns active subscriptions scoped to the event's chain, type and contract.
func (s *Store) ActiveSubscriptions(ctx context.Context, chainID uint64, eventType, contractAddress string) ([]model.EventSubscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, smart_account_id, contract_address, event_type, chain_id,
			filter_conditions, notification_channels, is_active, created_at
		FROM event_subscriptions
		WHERE is_active
			AND chain_id = $1
			AND event_type = $2
			AND (contract_address = '' OR lower(contract_address) = lower($3))
		ORDER BY id
	`, int64(chainID), eventType, contractAddress)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	return collectRows(rows, scanSubscription, s.logger)
}

func scanSubscription(row pgx.Row) (model.EventSubscription, error) {
	var (
		sub        model.EventSubscription
		chain      int64
		conditions []byte
		channels   []string
	)
	if err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.SmartAccountID,
		&sub.ContractAddress,
		&sub.EventType,
		&chain,
		&conditions,
		&channels,
		&sub.IsActive,
		&sub.CreatedAt,
	); err != nil {
		return model.EventSubscription{}, fmt.Errorf("scan subscription: %w", err)
	}
	sub.ChainID = uint64(chain)
	if err := unmarshalJSONB(conditions, &sub.FilterConditions); err != nil {
		return model.EventSubscription{}, fmt.Errorf("%w: subscription %s filter conditions: %v", errMalformedRow, sub.ID, err)
	}
	for _, name := range channels {
		if kind, ok := model.ParseChannelKind(name); ok {
			sub.NotificationChannels = append(sub.NotificationChannels, kind)
		}
	}
	return sub, nil
}

// rowIterator is the part of pgx.Rows collectRows walks.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// collectRows scans every row, logging and skipping malformed ones.
func collectRows[T any](rows rowIterator, scan func(pgx.Row) (T, error), logger *zap.Logger) ([]T, error) {
	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			if errors.Is(err, errMalformedRow) {
				logger.Warn("skip malformed row", zap.Error(err))
				continue
			}
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// SaveSubscription upserts a subscription by id.
func (s *Store) SaveSubscription(ctx context.Context, sub model.EventSubscription) error {
	if sub.ID == "" {
		return fmt.Errorf("subscription id required")
	}
	conditions, err := marshalJSONB(sub.FilterConditions)
	if err != nil {
		return fmt.Errorf("encode filter conditions: %w", err)
	}
	channels := make([]string, 0, len(sub.NotificationChannels))
	for _, kind := range sub.NotificationChannels {
		channels = append(channels, string(kind))
	}
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO event_subscriptions (
			id, user_id, smart_account_id, contract_address, event_type, chain_id,
			filter_conditions, notification_channels, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			smart_account_id = EXCLUDED.smart_account_id,
			contract_address = EXCLUDED.contract_address,
			event_type = EXCLUDED.event_type,
			chain_id = EXCLUDED.chain_id,
			filter_conditions = EXCLUDED.filter_conditions,
			notification_channels = EXCLUDED.notification_channels,
			is_active = EXCLUDED.is_active
	`,
		sub.ID,
		sub.UserID,
		sub.SmartAccountID,
		sub.ContractAddress,
		sub.EventType,
		int64(sub.ChainID),
		conditions,
		channels,
		sub.IsActive,
		createdAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateSubscription
	}
	return err
}

// RuleOwners returns the distinct users with active rules on a chain.
func (s *Store) RuleOwners(ctx context.Context, chainID uint64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM automation_rules
		WHERE is_active AND chain_id = $1
		ORDER BY user_id
	`, int64(chainID))
	if err != nil {
		return nil, fmt.Errorf("query rule owners: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

const ruleColumns = `id, user_id, smart_account_id, rule_name, trigger_event_type, trigger_conditions,
	action_type, action_params, chain_id, is_active, execution_count, last_executed_at`

func (s *Store) ActiveRules(ctx context.Context, userID string, chainID uint64) ([]model.AutomationRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE is_active AND user_id = $1 AND chain_id = $2
		ORDER BY id
	`, userID, int64(chainID))
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	return collectRows(rows, scanRule, s.logger)
}

func (s *Store) GetRule(ctx context.Context, ruleID string) (model.AutomationRule, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE id = $1`, ruleID)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AutomationRule{}, storage.ErrNotFound
		}
		return model.AutomationRule{}, err
	}
	return rule, nil
}

// SaveRule upserts a rule definition. Execution counters are left untouched on update.
func (s *Store) SaveRule(ctx context.Context, rule model.AutomationRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id required")
	}
	trigger, err := marshalJSONB(rule.TriggerConditions)
	if err != nil {
		return fmt.Errorf("encode trigger conditions: %w", err)
	}
	params, err := marshalJSONB(rule.ActionParams)
	if err != nil {
		return fmt.Errorf("encode action params: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO automation_rules (
			id, user_id, smart_account_id, rule_name, trigger_event_type, trigger_conditions,
			action_type, action_params, chain_id, is_active, execution_count, last_executed_at
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::jsonb, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			smart_account_id = EXCLUDED.smart_account_id,
			rule_name = EXCLUDED.rule_name,
			trigger_event_type = EXCLUDED.trigger_event_type,
			trigger_conditions = EXCLUDED.trigger_conditions,
			action_type = EXCLUDED.action_type,
			action_params = EXCLUDED.action_params,
			chain_id = EXCLUDED.chain_id,
			is_active = EXCLUDED.is_active
	`,
		rule.ID,
		rule.UserID,
		rule.SmartAccountID,
		rule.RuleName,
		rule.TriggerEventType,
		trigger,
		string(rule.ActionType),
		params,
		int64(rule.ChainID),
		rule.IsActive,
		int64(rule.ExecutionCount),
		rule.LastExecutedAt,
	)
	return err
}

// RecordExecution increments execution_count in a single statement and returns the new value.
func (s *Store) RecordExecution(ctx context.Context, ruleID string, at time.Time) (uint64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		UPDATE automation_rules
		SET execution_count = execution_count + 1, last_executed_at = $2
		WHERE id = $1
		RETURNING execution_count
	`, ruleID, at).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("record execution %s: %w", ruleID, err)
	}
	return uint64(count), nil
}

func (s *Store) SaveNotification(ctx context.Context, n model.Notification) (string, error) {
	if n.ID == "" {
		return "", fmt.Errorf("notification id required")
	}
	metadata, err := marshalJSONB(n.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO notifications (
			id, user_id, subscription_id, event_type, priority, title, message, metadata, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
		RETURNING id
	`,
		n.ID,
		n.UserID,
		n.SubscriptionID,
		n.EventType,
		string(n.Priority),
		n.Title,
		n.Message,
		metadata,
		n.IsRead,
		createdAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert notification: %w", err)
	}
	return id, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, subscription_id, event_type, priority, title, message, metadata, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n        model.Notification
			priority string
			metadata []byte
		)
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.SubscriptionID,
			&n.EventType,
			&priority,
			&n.Title,
			&n.Message,
			&metadata,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Priority = model.Priority(priority)
		if err := unmarshalJSONB(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", n.ID, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) ChannelConfig(ctx context.Context, userID string, kind model.ChannelKind) (model.ChannelConfig, error) {
	var (
		cfg      = model.ChannelConfig{UserID: userID, Kind: kind}
		settings []byte
	)
	row := s.pool.QueryRow(ctx, `
		SELECT is_active, settings FROM channel_configs WHERE user_id = $1 AND kind = $2
	`, userID, string(kind))
	if err := row.Scan(&cfg.IsActive, &settings); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ChannelConfig{}, storage.ErrNotFound
		}
		return model.ChannelConfig{}, err
	}
	if err := unmarshalJSONB(settings, &cfg.Settings); err != nil {
		return model.ChannelConfig{}, fmt.Errorf("decode channel settings: %w", err)
	}
	return cfg, nil
}

func (s *Store) SaveChannelConfig(ctx context.Context, cfg model.ChannelConfig) error {
	settings, err := marshalJSONB(cfg.Settings)
	if err != nil {
		return fmt.Errorf("encode channel settings: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO channel_configs (user_id, kind, is_active, settings, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (user_id, kind) DO UPDATE
		SET is_active = EXCLUDED.is_active, settings = EXCLUDED.settings, updated_at = now()
	`, cfg.UserID, string(cfg.Kind), cfg.IsActive, settings)
	return err
}

// AppendExecution inserts an execution log row; a replayed (rule, attempt) pair is ignored.
func (s *Store) AppendExecution(ctx context.Context, entry model.ExecutionLogEntry) error {
	payload, err := marshalJSONB(entry.ResultPayload)
	if err != nil {
		return fmt.Errorf("encode result payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rule_executions (
			id, rule_id, user_id, attempt_seq, action_type, event_type, transaction_hash,
			success, result_payload, error_message, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11)
		ON CONFLICT (rule_id, attempt_seq) DO NOTHING
	`,
		entry.ID,
		entry.RuleID,
		entry.UserID,
		int64(entry.AttemptSeq),
		string(entry.ActionType),
		entry.EventType,
		entry.TransactionHash,
		entry.Success,
		payload,
		entry.ErrorMessage,
		entry.ExecutedAt,
	)
	return err
}

func scanRule(row pgx.Row) (model.AutomationRule, error) {
	var (
		rule       model.AutomationRule
		trigger    []byte
		actionType string
		params     []byte
		chain      int64
		count      int64
	)
	if err := row.Scan(
		&rule.ID,
		&rule.UserID,
		&rule.SmartAccountID,
		&rule.RuleName,
		&rule.TriggerEventType,
		&trigger,
		&actionType,
		&params,
		&chain,
		&rule.IsActive,
		&count,
		&rule.LastExecutedAt,
	); err != nil {
		return model.AutomationRule{}, err
	}
	rule.ActionType = model.ActionType(actionType)
	rule.ChainID = uint64(chain)
	rule.ExecutionCount = uint64(count)
	if err := unmarshalJSONB(trigger, &rule.TriggerConditions); err != nil {
		return model.AutomationRule{}, fmt.Errorf("%w: rule %s trigger conditions: %v", errMalformedRow, rule.ID, err)
	}
	if err := unmarshalJSONB(params, &rule.ActionParams); err != nil {
		return model.AutomationRule{}, fmt.Errorf("%w: rule %s action params: %v", errMalformedRow, rule.ID, err)
	}
	return rule, nil
}

func marshalJSONB(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "{}", nil
	}
	return string(data), nil
}

func unmarshalJSONB(data []byte, out interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
