package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ammScope/internal/model"
)

// JsonlSink appends trades to a JSON lines file.
type JsonlSink struct {
	path string
	mu   sync.Mutex
}

func NewJsonlSink(path string) *JsonlSink {
	return &JsonlSink{path: path}
}

// PutTrades appends one JSON line per trade.
func (s *JsonlSink) PutTrades(_ context.Context, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create trade dir: %w", err)
		}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trade file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	for _, trade := range trades {
		if err := enc.Encode(trade); err != nil {
			return fmt.Errorf("encode trade %s/%d: %w", trade.TxHash, trade.MsgIndex, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush trades: %w", err)
	}
	return nil
}
