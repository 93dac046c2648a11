// Package snapshot encodes and decodes the remote file: the whole note set
// (tombstones included) plus a write timestamp and a format tag.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Source tags snapshots written by this client.
const Source = "notesync-v1"

// ContentType is used for uploads.
const ContentType = "application/json"

const schemaURL = "snapshot.schema.json"

// Notes are left unconstrained here; records without a usable id or
// timestamp are skipped one by one in Decode.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["notes"],
  "properties": {
    "notes": {"type": "array"},
    "timestamp": {"type": "number"},
    "source": {"type": "string"}
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
		if err != nil {
			compileErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = err
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Snapshot is the decoded remote file.
type Snapshot struct {
	Notes     []models.Note `json:"notes"`
	Timestamp int64         `json:"timestamp"`
	Source    string        `json:"source"`

	// Skipped counts records dropped for lacking a string id or an integer
	// timestamp. It is not serialized.
	Skipped int `json:"-"`
}

// Encode serializes notes in id order so identical note sets produce
// identical files apart from the timestamp.
func Encode(notes []models.Note, now time.Time) ([]byte, error) {
	sorted := slices.Clone(notes)
	slices.SortFunc(sorted, func(a, b models.Note) int { return strings.Compare(a.ID, b.ID) })
	if sorted == nil {
		sorted = []models.Note{}
	}

	b, err := json.Marshal(Snapshot{Notes: sorted, Timestamp: now.UnixMilli(), Source: Source})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode parses remote content. Empty or whitespace-only content is an
// empty snapshot. Anything structurally invalid wraps common.ErrParse.
func Decode(content []byte) (*Snapshot, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return &Snapshot{Notes: []models.Note{}}, nil
	}

	sch, err := schema()
	if err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrParse, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrParse, err)
	}

	var raw struct {
		Notes     []json.RawMessage `json:"notes"`
		Timestamp float64           `json:"timestamp"`
		Source    string            `json:"source"`
	}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrParse, err)
	}

	out := &Snapshot{
		Notes:     make([]models.Note, 0, len(raw.Notes)),
		Timestamp: int64(raw.Timestamp),
		Source:    raw.Source,
	}
	for _, rec := range raw.Notes {
		n, ok := decodeNote(rec)
		if !ok {
			out.Skipped++
			continue
		}
		out.Notes = append(out.Notes, n)
	}
	return out, nil
}

// decodeNote accepts a record only when it is an object with a non-empty
// string id and an integer millisecond timestamp. Numeric ids are dropped:
// every writer of the file emits string ids and local ids are text, so a
// number could never match an existing note.
func decodeNote(rec json.RawMessage) (models.Note, bool) {
	var head struct {
		ID        *string  `json:"id"`
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(rec, &head); err != nil {
		return models.Note{}, false
	}
	if head.ID == nil || *head.ID == "" || head.Timestamp == nil {
		return models.Note{}, false
	}

	var n models.Note
	if err := json.Unmarshal(rec, &n); err != nil {
		return models.Note{}, false
	}
	return n, true
}
