package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lensai/lensai/internal/model"
)

// Sink persists a batch of events. A returned error means none of the batch
// may be acknowledged; Write may be retried with the same batch.
type Sink interface {
	Write(ctx context.Context, events []*model.UsageEvent) error
}

// PartitionKey returns dt=YYYY-MM-DD/project_id=<id>/events-HH.ndjson for the UTC time of the event.
func PartitionKey(e *model.UsageEvent) string {
	ts := e.Timestamp.UTC()
	return fmt.Sprintf("dt=%s/project_id=%s/events-%02d.ndjson", ts.Format("2006-01-02"), e.ProjectID, ts.Hour())
}

// FileSink appends events as NDJSON lines under a root directory.
type FileSink struct {
	root string
}

// NewFileSink creates the root directory if needed.
func NewFileSink(root string) (*FileSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	return &FileSink{root: root}, nil
}

// Root returns the sink directory.
func (s *FileSink) Root() string {
	return s.root
}

// Write groups events by partition and appends each group with a single write.
func (s *FileSink) Write(ctx context.Context, events []*model.UsageEvent) error {
	groups := make(map[string]*bytes.Buffer)
	for _, e := range events {
		key := PartitionKey(e)
		buf, ok := groups[key]
		if !ok {
			buf = &bytes.Buffer{}
			groups[key] = buf
		}
		// Encode appends the trailing newline.
		if err := json.NewEncoder(buf).Encode(e); err != nil {
			return fmt.Errorf("encode event %s: %w", e.RequestID, err)
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.appendFile(filepath.Join(s.root, filepath.FromSlash(key)), groups[key].Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSink) appendFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create partition dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open partition %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("append partition %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync partition %s: %w", path, err)
	}
	return f.Close()
}
