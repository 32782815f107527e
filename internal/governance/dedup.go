package governance

import (
	"time"

	"github.com/boshu2/driftwatch/internal/textutil"
)

// TopicEntry is a recorded investigation topic.
type TopicEntry struct {
	Topic      string    `json:"topic"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Deduper rejects topics too similar to one recorded within the window.
type Deduper struct {
	window    time.Duration
	threshold float64
	entries   []TopicEntry
}

// NewDeduper creates a deduper seeded with persisted entries.
func NewDeduper(window time.Duration, threshold float64, entries []TopicEntry) *Deduper {
	return &Deduper{
		window:    window,
		threshold: threshold,
		entries:   append([]TopicEntry(nil), entries...),
	}
}

// sweep drops entries older than the window.
func (d *Deduper) sweep(now time.Time) {
	cutoff := now.Add(-d.window)
	kept := d.entries[:0]
	for _, e := range d.entries {
		if e.RecordedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	d.entries = kept
}

// IsDuplicate reports whether topic's word-set similarity to any topic in
// the window exceeds the threshold. Expired entries are swept first.
func (d *Deduper) IsDuplicate(topic string, now time.Time) (string, bool) {
	d.sweep(now)
	words := textutil.Words(topic)
	for _, e := range d.entries {
		if textutil.Jaccard(words, textutil.Words(e.Topic)) > d.threshold {
			return e.Topic, true
		}
	}
	return "", false
}

// Add records topic at now.
func (d *Deduper) Add(topic string, now time.Time) {
	d.entries = append(d.entries, TopicEntry{Topic: topic, RecordedAt: now})
}

// Entries returns the live entries.
func (d *Deduper) Entries() []TopicEntry {
	return append([]TopicEntry(nil), d.entries...)
}
