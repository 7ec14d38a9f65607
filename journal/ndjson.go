package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// NDJSON appends one JSON object per line to a file. Each record is
// flushed as it is written so a crash loses at most the in-flight line.
type NDJSON struct {
	f *os.File
	w *bufio.Writer
}

func NewNDJSON(path string) (*NDJSON, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &NDJSON{f: f, w: bufio.NewWriter(f)}, nil
}

func (j *NDJSON) Record(r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: marshal record: %w", err)
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *NDJSON) Close() error {
	if err := j.w.Flush(); err != nil {
		_ = j.f.Close()
		return err
	}
	return j.f.Close()
}
