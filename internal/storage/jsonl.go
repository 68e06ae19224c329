package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"eventRelay/internal/model"
)

// JSONLExecutionLog appends execution log entries to a JSONL file.
type JSONLExecutionLog struct {
	path string
	mu   sync.Mutex
}

func NewJSONLExecutionLog(path string) *JSONLExecutionLog {
	return &JSONLExecutionLog{path: path}
}

// AppendExecution writes one entry as a JSON line.
func (s *JSONLExecutionLog) AppendExecution(_ context.Context, entry model.ExecutionLogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal execution entry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create execution log dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open execution log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write execution entry: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush execution log: %w", err)
	}
	return nil
}

// MultiExecutionLog fans an entry out to several logs, stopping at the first error.
type MultiExecutionLog []ExecutionLog

func (m MultiExecutionLog) AppendExecution(ctx context.Context, entry model.ExecutionLogEntry) error {
	for _, log := range m {
		if log == nil {
			continue
		}
		if err := log.AppendExecution(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
