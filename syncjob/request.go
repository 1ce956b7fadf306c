package syncjob

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/onnwee/officer-sync/roster"
)

// Request is the body of a sync call. A nil Members slice means the field was
// missing or not a list.
type Request struct {
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	Members   []roster.Member `json:"members"`
}

// Window is the inclusive time range a job collects.
type Window struct {
	After  time.Time
	Before time.Time
}

type wireRequest struct {
	StartDate json.RawMessage `json:"startDate"`
	EndDate   json.RawMessage `json:"endDate"`
	Members   json.RawMessage `json:"members"`
}

// DecodeRequest reads a Request from r. Body problems come back as *ValidationError
// carrying the message the client should see.
func DecodeRequest(r io.Reader) (Request, error) {
	var w wireRequest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&w); err != nil {
		return Request{}, &ValidationError{Msg: MsgInvalidBody}
	}
	req := Request{
		StartDate: rawString(w.StartDate),
		EndDate:   rawString(w.EndDate),
	}
	m := bytes.TrimSpace(w.Members)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return req, nil
	}
	if m[0] != '[' {
		return Request{}, &ValidationError{Msg: MsgMembersInvalid}
	}
	members := []roster.Member{}
	if err := json.Unmarshal(m, &members); err != nil {
		return Request{}, &ValidationError{Msg: MsgMembersInvalid}
	}
	req.Members = members
	return req, nil
}

// rawString returns the string value of a JSON string, or "" for anything else.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Check verifies that both dates are present and members is a list. It does not
// parse the dates; an empty roster finishes before they are looked at.
func (r Request) Check() error {
	if r.StartDate == "" || r.EndDate == "" {
		return &ValidationError{Msg: MsgDatesRequired}
	}
	if r.Members == nil {
		return &ValidationError{Msg: MsgMembersInvalid}
	}
	return nil
}

// Validate runs Check and resolves the window in loc.
func (r Request) Validate(loc *time.Location) (Window, error) {
	if err := r.Check(); err != nil {
		return Window{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	start, err := parseDay(r.StartDate, loc)
	if err != nil {
		return Window{}, &ValidationError{Msg: MsgInvalidDate}
	}
	end, err := parseDay(r.EndDate, loc)
	if err != nil {
		return Window{}, &ValidationError{Msg: MsgInvalidDate}
	}
	if start.After(end) {
		return Window{}, &ValidationError{Msg: MsgDateOrder}
	}
	return Window{
		After:  start,
		Before: time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(999*time.Millisecond), loc),
	}, nil
}

// zonelessLayouts are read in the job's location, as sent by datetime-local inputs.
var zonelessLayouts = []string{
	time.DateOnly,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateTime,
}

// parseDay accepts a date, a zoneless datetime or RFC 3339 and returns local
// midnight of that day.
func parseDay(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}
