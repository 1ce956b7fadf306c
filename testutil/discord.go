package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/officer-sync/discord"
)

// FakeMessage is a message served by FakeDiscord.
type FakeMessage struct {
	ID       string
	AuthorID string
	Content  string
	Time     time.Time
}

type fakeChannel struct {
	guildID  string
	name     string
	messages []FakeMessage // newest first
	denied   bool
}

// FakeDiscord mocks the two Discord REST routes a sync uses:
// GET /api/v9/channels/{id} and GET /api/v9/channels/{id}/messages.
type FakeDiscord struct {
	*httptest.Server

	mu       sync.Mutex
	channels map[string]*fakeChannel
	requests []string
}

// NewFakeDiscord starts a fake Discord API that is closed when the test ends.
func NewFakeDiscord(t *testing.T) *FakeDiscord {
	t.Helper()
	f := &FakeDiscord{channels: make(map[string]*fakeChannel)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// AddChannel registers a channel. Messages must be ordered newest first.
func (f *FakeDiscord) AddChannel(id, guildID, name string, msgs ...FakeMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id] = &fakeChannel{guildID: guildID, name: name, messages: msgs}
}

// Deny makes every request for the channel's messages fail with Missing Access.
func (f *FakeDiscord) Deny(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[id]; ok {
		ch.denied = true
	}
}

// Requests returns the request paths with their query strings, in arrival order.
func (f *FakeDiscord) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

// Client returns a discord.Client whose requests all go to the fake server.
func (f *FakeDiscord) Client(t *testing.T) *discord.Client {
	t.Helper()
	c, err := discord.New("test-token", "bot", &http.Client{
		Transport: &rewriteTransport{Transport: http.DefaultTransport, host: f.URL},
	})
	if err != nil {
		t.Fatalf("discord.New() error = %v", err)
	}
	return c
}

func (f *FakeDiscord) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.URL.RequestURI())

	rest, ok := strings.CutPrefix(r.URL.Path, "/api/v9/channels/")
	if !ok || r.Method != http.MethodGet {
		writeDiscordError(w, http.StatusNotFound, 0, "404: Not Found")
		return
	}
	id, sub, _ := strings.Cut(rest, "/")
	ch, ok := f.channels[id]
	if !ok {
		writeDiscordError(w, http.StatusNotFound, 10003, "Unknown Channel")
		return
	}
	switch sub {
	case "":
		writeDiscordJSON(w, map[string]any{"id": id, "guild_id": ch.guildID, "name": ch.name, "type": 0})
	case "messages":
		if ch.denied {
			writeDiscordError(w, http.StatusForbidden, 50001, "Missing Access")
			return
		}
		writeDiscordJSON(w, ch.page(r.URL.Query().Get("before"), r.URL.Query().Get("limit"), id))
	default:
		writeDiscordError(w, http.StatusNotFound, 0, "404: Not Found")
	}
}

func (ch *fakeChannel) page(before, limitStr, channelID string) []map[string]any {
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}
	start := 0
	if before != "" {
		start = len(ch.messages)
		for i, m := range ch.messages {
			if m.ID == before {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(ch.messages))
	out := make([]map[string]any, 0, end-start)
	for _, m := range ch.messages[start:end] {
		out = append(out, map[string]any{
			"id":         m.ID,
			"channel_id": channelID,
			"content":    m.Content,
			"timestamp":  m.Time.UTC().Format(time.RFC3339Nano),
			"author":     map[string]any{"id": m.AuthorID, "username": "user" + m.AuthorID},
		})
	}
	return out
}

func writeDiscordJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

func writeDiscordError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"message": %q, "code": %d}`, msg, code)
}

// rewriteTransport sends every request to the test server regardless of the Discord host.
type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	host := strings.TrimPrefix(t.host, "http://")
	req.URL.Host = strings.TrimPrefix(host, "https://")
	return t.Transport.RoundTrip(req)
}
