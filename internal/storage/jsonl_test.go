package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"ammScope/internal/model"
)

func TestJsonlSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "trades.jsonl")
	sink := NewJsonlSink(path)

	ctx := context.Background()
	if err := sink.PutTrades(ctx, []model.Trade{{TxHash: "A", MsgIndex: 0}, {TxHash: "B", MsgIndex: 1}}); err != nil {
		t.Fatalf("put trades: %v", err)
	}
	if err := sink.PutTrades(ctx, []model.Trade{{TxHash: "C", MsgIndex: 2}}); err != nil {
		t.Fatalf("put trades: %v", err)
	}
	if err := sink.PutTrades(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var hashes []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var trade model.Trade
		if err := json.Unmarshal(scanner.Bytes(), &trade); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		hashes = append(hashes, trade.TxHash)
	}
	if len(hashes) != 3 || hashes[0] != "A" || hashes[2] != "C" {
		t.Fatalf("unexpected lines: %v", hashes)
	}
}
