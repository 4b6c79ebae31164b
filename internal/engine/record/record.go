// Package record defines the shared result shapes of the engine: the ordered
// record projection, the read page, the write result, and the error taxonomy
// every public operation reports through.
package record

import (
	"github.com/draftline/draftline/internal/engine/value"
)

// Record is a read-only projection of one row of one table, constructed per
// request. Field order follows the resolved field set for the record's type.
type Record struct {
	Table  string
	Values *value.Object
}

// New creates an empty record for a table
func New(table string) *Record {
	return &Record{Table: table, Values: value.NewObject()}
}

// ID returns the record's identity under the given primary key field name.
// Records always report the live id, never an overlay id.
func (r *Record) ID(primaryKey string) int64 {
	v, ok := r.Values.Get(primaryKey)
	if !ok {
		return 0
	}
	id, _ := v.AsInt()
	return id
}

// Get returns the value of a field
func (r *Record) Get(field string) (value.Value, bool) {
	return r.Values.Get(field)
}

// Set stores a field value
func (r *Record) Set(field string, v value.Value) {
	r.Values.Set(field, v)
}

// Page is the result of one read call
type Page struct {
	Table   string    `json:"table"`
	Records []*Record `json:"records"`
	Total   int       `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
	HasMore bool      `json:"hasMore"`
}

// MarshalJSON is provided by the embedded records; Record marshals as its
// ordered value object.
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.Values.MarshalJSON()
}

// WriteAction identifies the mutation a WriteResult reports
type WriteAction string

const (
	ActionCreate WriteAction = "create"
	ActionUpdate WriteAction = "update"
	ActionDelete WriteAction = "delete"
)

// WriteResult is the result of one write call. ID is always the live id,
// even where the underlying mutation touched an overlay row.
type WriteResult struct {
	Action WriteAction   `json:"action"`
	Table  string        `json:"table"`
	ID     int64         `json:"id"`
	Data   *value.Object `json:"data,omitempty"`
}
