package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/resolution"
)

// DefaultBatchSize is how many documents LoadNDJSON indexes at once
const DefaultBatchSize = 500

// maxLineSize bounds a single NDJSON document
const maxLineSize = 16 << 20

type ndjsonDoc struct {
	Index  string         `json:"_index"`
	ID     string         `json:"_id"`
	Source map[string]any `json:"_source"`
}

// LoadNDJSON indexes newline-delimited documents of the form
// {"_index": ..., "_id": ..., "_source": {...}}. Blank lines are skipped.
// It returns how many documents were indexed.
func LoadNDJSON(ctx context.Context, r io.Reader, idx resolution.DocumentIndexer, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var batch []resolution.Document
	total, line := 0, 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := idx.Index(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var d ndjsonDoc
		if err := json.Unmarshal(raw, &d); err != nil {
			return total, errors.WrapInvalidRequest(err, fmt.Sprintf("line %d", line))
		}
		if d.Index == "" || d.ID == "" {
			return total, errors.NewInvalidRequestError("line %d: _index and _id are required", line)
		}
		if d.Source == nil {
			d.Source = map[string]any{}
		}
		batch = append(batch, resolution.Document{Collection: d.Index, ID: d.ID, Source: d.Source})
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, errors.Wrap(err, "read documents")
	}
	return total, flush()
}
