package postgres

import (
	"strings"
	"testing"
)

func TestEmbeddedMigrationsCoverTables(t *testing.T) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("no embedded migrations")
	}

	var all strings.Builder
	for _, entry := range entries {
		data, err := migrationsFS.ReadFile(migrationsDir + "/" + entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		all.Write(data)
	}

	for _, table := range []string{"tokens", "pools", "trades", "pool_state", "ohlcv_1m", "indexer_state"} {
		if !strings.Contains(all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("table %s missing from migrations", table)
		}
	}
	if !strings.Contains(all.String(), "PRIMARY KEY (tx_hash, pool_id, msg_index)") {
		t.Fatalf("trade natural key missing")
	}
}
