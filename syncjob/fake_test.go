package syncjob

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/officer-sync/discord"
	"github.com/onnwee/officer-sync/progress"
)

// fakeUpstream serves channel histories from memory, newest message first.
type fakeUpstream struct {
	mu         sync.Mutex
	channels   map[string]discord.Channel
	channelErr map[string]error
	messages   map[string][]discord.Message
	pageErrs   map[string][]error
	pagePanic  bool
	pageCalls  int
	chanCalls  int
	cursors    []string
	pageTimes  []time.Time
	chanTimes  []time.Time
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		channels:   map[string]discord.Channel{},
		channelErr: map[string]error{},
		messages:   map[string][]discord.Message{},
		pageErrs:   map[string][]error{},
	}
}

func (f *fakeUpstream) addChannel(id, name string, msgs ...discord.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id] = discord.Channel{ID: id, GuildID: "g1", Name: name}
	f.messages[id] = msgs
}

func (f *fakeUpstream) FetchChannel(ctx context.Context, id string) (discord.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chanCalls++
	f.chanTimes = append(f.chanTimes, time.Now())
	if err := f.channelErr[id]; err != nil {
		return discord.Channel{}, err
	}
	ch, ok := f.channels[id]
	if !ok {
		return discord.Channel{}, fmt.Errorf("HTTP 404 Not Found, unknown channel %s", id)
	}
	return ch, nil
}

func (f *fakeUpstream) FetchMessagesBefore(ctx context.Context, id, before string, limit int) ([]discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pagePanic {
		panic("upstream exploded")
	}
	f.pageCalls++
	f.pageTimes = append(f.pageTimes, time.Now())
	f.cursors = append(f.cursors, before)
	if errs := f.pageErrs[id]; len(errs) > 0 {
		e := errs[0]
		f.pageErrs[id] = errs[1:]
		if e != nil {
			return nil, e
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := f.messages[id]
	start := 0
	if before != "" {
		start = len(all)
		for i, m := range all {
			if m.ID == before {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]discord.Message, end-start)
	copy(out, all[start:end])
	return out, nil
}

func (f *fakeUpstream) calls() (channels, pages int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chanCalls, f.pageCalls
}

// gaps returns the time between consecutive entries of ts, starting from start.
func gaps(start time.Time, ts []time.Time) []time.Duration {
	out := make([]time.Duration, 0, len(ts))
	prev := start
	for _, t := range ts {
		out = append(out, t.Sub(prev))
		prev = t
	}
	return out
}

// history builds n messages ending at newest, one every step, newest first.
func history(prefix string, n int, newest time.Time, step time.Duration, fill func(i int, m *discord.Message)) []discord.Message {
	out := make([]discord.Message, n)
	for i := 0; i < n; i++ {
		m := discord.Message{
			ID:        fmt.Sprintf("%s-%04d", prefix, n-i),
			CreatedAt: newest.Add(-time.Duration(i) * step),
		}
		m.Link = discord.MessageLink("g1", prefix, m.ID)
		if fill != nil {
			fill(i, &m)
		}
		out[i] = m
	}
	return out
}

func permissionError() error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden"},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingAccess, Message: "Missing Access"},
	}
}

func serverError() error {
	return &discordgo.RESTError{
		Response:     &http.Response{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"},
		ResponseBody: []byte("upstream unavailable"),
	}
}

// collector records emitted events. failAfter > 0 makes the emit after that many events fail.
type collector struct {
	mu        sync.Mutex
	events    []progress.Event
	failAfter int
}

func (c *collector) Emit(e progress.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter > 0 && len(c.events) >= c.failAfter {
		return fmt.Errorf("client disconnected")
	}
	c.events = append(c.events, e)
	return nil
}

func (c *collector) all() []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) byStatus(status string) []progress.Event {
	var out []progress.Event
	for _, e := range c.all() {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func (c *collector) result(name string) (progress.Event, bool) {
	for _, e := range c.byStatus(progress.StatusResult) {
		if e.Payload != nil && e.Payload.Name == name {
			return e, true
		}
	}
	return progress.Event{}, false
}
