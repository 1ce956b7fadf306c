// Package roster holds the request-scoped list of officers and the two strategies
// used to attribute a channel message to one of them.
package roster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/onnwee/officer-sync/discord"
)

// ID is a platform user id. Clients send it either as a JSON string or a number.
type ID string

// UnmarshalJSON accepts "123", 123 and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("member id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Member is one roster entry as posted by the client.
type Member struct {
	ID   ID     `json:"id"`
	Name string `json:"nama"`
}

// Mode selects how a message is attributed to a member.
type Mode string

const (
	// ModeContent reads the officer name written after "petugas:" in the message body.
	ModeContent Mode = "content"
	// ModeAuthor attributes the message to whoever posted it.
	ModeAuthor Mode = "author"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeContent || m == ModeAuthor }

// officerPattern runs against lower-cased content. Only horizontal whitespace is part of
// the captured name so a line break ends it.
var officerPattern = regexp.MustCompile(`petugas\s*:\s*([a-z\d \t._\[\]]+)`)

// ExtractOfficer returns the trimmed officer name written in content, lower-cased.
func ExtractOfficer(content string) (string, bool) {
	m := officerPattern.FindStringSubmatch(strings.ToLower(content))
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return "", false
	}
	return name, true
}

// Lookup is built once per job and only read afterwards.
type Lookup struct {
	byName map[string]string
	byID   map[string]string
}

// NewLookup indexes members by normalised name and by id. A later duplicate wins.
// A member without a name is still matched by id and reported under that id.
func NewLookup(members []Member) *Lookup {
	l := &Lookup{
		byName: make(map[string]string, len(members)),
		byID:   make(map[string]string, len(members)),
	}
	for _, m := range members {
		name := strings.TrimSpace(m.Name)
		if name != "" {
			l.byName[normalize(name)] = name
		}
		if m.ID == "" {
			continue
		}
		if name == "" {
			name = string(m.ID)
		}
		l.byID[string(m.ID)] = name
	}
	return l
}

// Len returns the number of distinct names.
func (l *Lookup) Len() int { return len(l.byName) }

// ByName resolves a name case-insensitively, ignoring repeated whitespace.
func (l *Lookup) ByName(name string) (string, bool) {
	v, ok := l.byName[normalize(name)]
	return v, ok
}

// ByID resolves an exact platform id.
func (l *Lookup) ByID(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	v, ok := l.byID[id]
	return v, ok
}

// Match attributes msg to a roster identity using the given mode.
func (l *Lookup) Match(mode Mode, msg discord.Message) (string, bool) {
	switch mode {
	case ModeContent:
		officer, ok := ExtractOfficer(msg.Content)
		if !ok {
			return "", false
		}
		return l.ByName(officer)
	case ModeAuthor:
		return l.ByID(msg.AuthorID)
	default:
		return "", false
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
