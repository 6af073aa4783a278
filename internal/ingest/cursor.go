package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ammScope/internal/storage"
)

// Cursor persists the last fully processed height.
type Cursor interface {
	Load(ctx context.Context) (int64, bool, error)
	Save(ctx context.Context, height int64) error
}

// FileCursor stores the cursor in a local JSON file, replaced atomically.
type FileCursor struct {
	Path string
}

type cursorRecord struct {
	LastHeight int64  `json:"last_height"`
	UpdatedAt  string `json:"updated_at"`
}

func (c *FileCursor) Load(context.Context) (int64, bool, error) {
	if c == nil || c.Path == "" {
		return 0, false, nil
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read cursor: %w", err)
	}

	var rec cursorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, false, fmt.Errorf("parse cursor: %w", err)
	}
	return rec.LastHeight, true, nil
}

func (c *FileCursor) Save(_ context.Context, height int64) error {
	if c == nil || c.Path == "" {
		return nil
	}
	if dir := filepath.Dir(c.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cursor dir: %w", err)
		}
	}

	data, err := json.Marshal(cursorRecord{
		LastHeight: height,
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	tmp := c.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cursor tmp: %w", err)
	}
	if err := os.Rename(tmp, c.Path); err != nil {
		return fmt.Errorf("rename cursor: %w", err)
	}
	return nil
}

// StoreCursor keeps the cursor in the database under a name.
type StoreCursor struct {
	Store storage.CursorStore
	Name  string
}

func (c StoreCursor) Load(ctx context.Context) (int64, bool, error) {
	return c.Store.LoadCursor(ctx, c.Name)
}

func (c StoreCursor) Save(ctx context.Context, height int64) error {
	return c.Store.SaveCursor(ctx, c.Name, height)
}
