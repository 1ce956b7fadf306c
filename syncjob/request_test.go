package syncjob

import (
	"strings"
	"testing"
	"time"

	"github.com/onnwee/officer-sync/roster"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantErr     string
		wantMembers int // -1 for nil
	}{
		{"full", `{"startDate":"2024-05-01","endDate":"2024-05-02","members":[{"id":"1","nama":"A"},{"id":2,"nama":"B"}]}`, "", 2},
		{"empty members", `{"startDate":"2024-05-01","endDate":"2024-05-02","members":[]}`, "", 0},
		{"missing members", `{"startDate":"2024-05-01","endDate":"2024-05-02"}`, "", -1},
		{"null members", `{"startDate":"2024-05-01","endDate":"2024-05-02","members":null}`, "", -1},
		{"members object", `{"startDate":"2024-05-01","endDate":"2024-05-02","members":{"id":"1"}}`, MsgMembersInvalid, 0},
		{"members string", `{"members":"Alice"}`, MsgMembersInvalid, 0},
		{"bad member", `{"members":[{"id":{"x":1},"nama":"A"}]}`, MsgMembersInvalid, 0},
		{"not json", `startDate=2024-05-01`, MsgInvalidBody, 0},
		{"array body", `[1,2]`, MsgInvalidBody, 0},
		{"empty body", ``, MsgInvalidBody, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest(strings.NewReader(tt.body))
			if tt.wantErr != "" {
				if !IsValidation(err) || err.Error() != tt.wantErr {
					t.Fatalf("DecodeRequest() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeRequest() error = %v", err)
			}
			if tt.wantMembers < 0 {
				if req.Members != nil {
					t.Errorf("Members = %v, want nil", req.Members)
				}
				return
			}
			if req.Members == nil || len(req.Members) != tt.wantMembers {
				t.Errorf("Members = %v, want %d entries", req.Members, tt.wantMembers)
			}
		})
	}
}

func TestDecodeRequestNonStringDates(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"startDate":20240501,"endDate":"2024-05-02","members":[]}`))
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if req.StartDate != "" {
		t.Errorf("StartDate = %q, want empty", req.StartDate)
	}
	if _, err := req.Validate(time.UTC); err == nil || err.Error() != MsgDatesRequired {
		t.Errorf("Validate() error = %v, want %q", err, MsgDatesRequired)
	}
}

func TestValidateWindow(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	req := Request{StartDate: "2024-05-01", EndDate: "2024-05-01", Members: []roster.Member{}}
	w, err := req.Validate(jakarta)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	wantAfter := time.Date(2024, 5, 1, 0, 0, 0, 0, jakarta)
	wantBefore := time.Date(2024, 5, 1, 23, 59, 59, int(999*time.Millisecond), jakarta)
	if !w.After.Equal(wantAfter) || !w.Before.Equal(wantBefore) {
		t.Errorf("window = %v..%v, want %v..%v", w.After, w.Before, wantAfter, wantBefore)
	}
	if got := w.After.UTC(); !got.Equal(time.Date(2024, 4, 30, 17, 0, 0, 0, time.UTC)) {
		t.Errorf("After in UTC = %v", got)
	}
}

func TestValidateAcceptsTimestamps(t *testing.T) {
	req := Request{StartDate: "2024-05-01T20:30:00Z", EndDate: "2024-05-03T01:00:00+07:00", Members: []roster.Member{}}
	w, err := req.Validate(time.UTC)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !w.After.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("After = %v", w.After)
	}
	// 01:00+07:00 on the 3rd is the 2nd in UTC.
	if w.Before.Day() != 2 {
		t.Errorf("Before = %v, want end of 2024-05-02", w.Before)
	}
}

func TestValidateZonelessDatetime(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	tests := []struct {
		start, end string
	}{
		{"2024-05-01T00:00:00", "2024-05-02T23:10:00"},
		{"2024-05-01T08:15", "2024-05-02T08:15"},
		{"2024-05-01 10:00:00", "2024-05-02 00:00:01"},
	}
	for _, tt := range tests {
		t.Run(tt.start, func(t *testing.T) {
			req := Request{StartDate: tt.start, EndDate: tt.end, Members: []roster.Member{}}
			w, err := req.Validate(wib)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if !w.After.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, wib)) {
				t.Errorf("After = %v", w.After)
			}
			if !w.Before.Equal(time.Date(2024, 5, 2, 23, 59, 59, int(999*time.Millisecond), wib)) {
				t.Errorf("Before = %v", w.Before)
			}
		})
	}
}

func TestCheckDoesNotParseDates(t *testing.T) {
	req := Request{StartDate: "whenever", EndDate: "later", Members: []roster.Member{}}
	if err := req.Check(); err != nil {
		t.Errorf("Check() error = %v", err)
	}
	if _, err := req.Validate(time.UTC); err == nil || err.Error() != MsgInvalidDate {
		t.Errorf("Validate() error = %v, want %q", err, MsgInvalidDate)
	}
}
