// Package vectors loads the externally maintained growth-vector collection
// and ranks its vectors by relevance to the current turn.
package vectors

import (
	"time"

	"github.com/boshu2/driftwatch/internal/types"
)

// PriorityQueue lists vector IDs in the order the curating agent wants them
// surfaced when there is no user message to rank against.
type PriorityQueue struct {
	High   []string `json:"high,omitempty"`
	Medium []string `json:"medium,omitempty"`
	Low    []string `json:"low,omitempty"`
}

// Collection is the on-disk growth-vector document. Values returned by a
// Loader are shared; call Clone before modifying one.
type Collection struct {
	Vectors       []types.GrowthVector `json:"vectors"`
	PriorityQueue PriorityQueue        `json:"priority_queue"`
	UpdatedAt     time.Time            `json:"updated_at,omitempty"`
}

// Clone returns a deep copy.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return &Collection{}
	}
	out := &Collection{
		Vectors:   append([]types.GrowthVector(nil), c.Vectors...),
		UpdatedAt: c.UpdatedAt,
		PriorityQueue: PriorityQueue{
			High:   append([]string(nil), c.PriorityQueue.High...),
			Medium: append([]string(nil), c.PriorityQueue.Medium...),
			Low:    append([]string(nil), c.PriorityQueue.Low...),
		},
	}
	return out
}

// Injectable returns the validated and integrated vectors.
func (c *Collection) Injectable() []types.GrowthVector {
	if c == nil {
		return nil
	}
	out := make([]types.GrowthVector, 0, len(c.Vectors))
	for _, v := range c.Vectors {
		if v.ValidationStatus.Injectable() {
			out = append(out, v)
		}
	}
	return out
}

// Find returns the vector with id.
func (c *Collection) Find(id string) (types.GrowthVector, bool) {
	if c == nil {
		return types.GrowthVector{}, false
	}
	for _, v := range c.Vectors {
		if v.ID == id {
			return v, true
		}
	}
	return types.GrowthVector{}, false
}
