package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"eventRelay/internal/metrics"
	"eventRelay/internal/model"
)

const maxLineSize = 4 << 20

// FileFeed replays a JSONL file of BlockchainEvent documents in order, then returns.
type FileFeed struct {
	path    string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewFileFeed(path string, logger *zap.Logger, m *metrics.Metrics) *FileFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileFeed{path: path, logger: logger, metrics: m}
}

func (f *FileFeed) Name() string {
	return "file"
}

func (f *FileFeed) Run(ctx context.Context, sink Sink) error {
	if f.path == "" {
		return fmt.Errorf("input path is empty")
	}
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo, delivered := 0, 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event model.BlockchainEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return fmt.Errorf("decode line %d: %w", lineNo, err)
		}
		f.metrics.EventReceived(f.Name(), event.EventType)
		if err := sink.OnEvent(ctx, event); err != nil {
			f.logger.Error("event processing failed",
				zap.Int("line", lineNo),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
		}
		delivered++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	f.logger.Info("replay complete", zap.String("path", f.path), zap.Int("events", delivered))
	return nil
}
