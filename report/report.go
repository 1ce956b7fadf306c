// Package report aggregates matched messages per identity for a single endpoint.
package report

import (
	"github.com/onnwee/officer-sync/discord"
)

// Record is the client-facing copy of a matched message.
type Record struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	Link      string `json:"link"`
}

// Entry is the bucket for one identity. Count always equals len(Messages).
type Entry struct {
	Count    int      `json:"count"`
	Messages []Record `json:"messages"`
}

// Result maps an identity's display name to its bucket.
type Result map[string]*Entry

// NewRecord converts a message, formatting the timestamp as ISO-8601 in UTC.
func NewRecord(m discord.Message) Record {
	return Record{
		ID:        m.ID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		Link:      m.Link,
	}
}

// Add appends m to name's bucket, creating it on first use.
func (r Result) Add(name string, m discord.Message) {
	e, ok := r[name]
	if !ok {
		e = &Entry{Messages: []Record{}}
		r[name] = e
	}
	e.Messages = append(e.Messages, NewRecord(m))
	e.Count++
}

// Total returns the sum of counts across identities.
func (r Result) Total() int {
	n := 0
	for _, e := range r {
		n += e.Count
	}
	return n
}
