// Package models defines the records exchanged between the local store, the
// remote snapshot file and the sync engine.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Note is the synchronized unit.
//
// Timestamp is the record's logical version in epoch milliseconds; the
// greater value wins a merge. Presentation fields the engine does not
// interpret (position, size, z-order, minimized flag, ...) live in Extra and
// are carried through storage and sync untouched.
type Note struct {
	ID               string
	Timestamp        int64
	Title            string
	Content          string
	IsDeleted        bool
	DeletedTimestamp *int64
	ScopeType        string
	ScopeValue       string

	Extra map[string]json.RawMessage
}

var noteFields = map[string]struct{}{
	"id": {}, "timestamp": {}, "title": {}, "content": {}, "isDeleted": {},
	"deletedTimestamp": {}, "scopeType": {}, "scopeValue": {},
}

func (n Note) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(n.Extra)+len(noteFields))
	for k, v := range n.Extra {
		if _, known := noteFields[k]; !known {
			m[k] = v
		}
	}
	m["id"] = n.ID
	m["timestamp"] = n.Timestamp
	m["title"] = n.Title
	m["content"] = n.Content
	m["isDeleted"] = n.IsDeleted
	m["deletedTimestamp"] = n.DeletedTimestamp
	m["scopeType"] = n.ScopeType
	m["scopeValue"] = n.ScopeValue
	return json.Marshal(m)
}

func (n *Note) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var w struct {
		ID               string   `json:"id"`
		Timestamp        float64  `json:"timestamp"`
		Title            string   `json:"title"`
		Content          string   `json:"content"`
		IsDeleted        bool     `json:"isDeleted"`
		DeletedTimestamp *float64 `json:"deletedTimestamp"`
		ScopeType        string   `json:"scopeType"`
		ScopeValue       string   `json:"scopeValue"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	ts, err := millis(w.Timestamp)
	if err != nil {
		return fmt.Errorf("note %q: timestamp: %w", w.ID, err)
	}

	*n = Note{
		ID:         w.ID,
		Timestamp:  ts,
		Title:      w.Title,
		Content:    w.Content,
		IsDeleted:  w.IsDeleted,
		ScopeType:  w.ScopeType,
		ScopeValue: w.ScopeValue,
	}
	if w.DeletedTimestamp != nil {
		dts, err := millis(*w.DeletedTimestamp)
		if err != nil {
			return fmt.Errorf("note %q: deletedTimestamp: %w", w.ID, err)
		}
		n.DeletedTimestamp = &dts
	}

	for k, v := range raw {
		if _, known := noteFields[k]; known {
			continue
		}
		if n.Extra == nil {
			n.Extra = make(map[string]json.RawMessage)
		}
		n.Extra[k] = v
	}
	return nil
}

// millis converts a JSON number to epoch milliseconds. Fractions and
// values outside the int64 range are refused rather than truncated.
func millis(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, fmt.Errorf("%v is not an integer millisecond value", f)
	}
	return int64(f), nil
}

// NowMillis returns the current wall clock in epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
