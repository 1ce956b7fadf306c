// Package discord contains the minimal Discord REST surface the sync pipeline needs:
// resolving a channel and paging its history backwards with a message cursor.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// MaxBatchSize is the largest page Discord returns for a channel history request.
const MaxBatchSize = 100

// Message is the immutable view of a fetched channel message.
type Message struct {
	ID        string
	Content   string
	AuthorID  string
	CreatedAt time.Time
	Link      string
}

// Channel identifies a guild text channel.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Client provides the channel and history lookups used by the sync job.
type Client struct {
	session *discordgo.Session

	mu     sync.RWMutex
	guilds map[string]string // channel id -> guild id
}

// New creates a REST-only client. tokenType "user" sends the token as-is; anything else
// is treated as a bot token. httpClient is optional and mainly used by tests.
func New(token, tokenType string, httpClient *http.Client) (*Client, error) {
	if token == "" {
		return nil, errors.New("discord token empty")
	}
	if !strings.EqualFold(tokenType, "user") && !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	if httpClient != nil {
		s.Client = httpClient
	}
	s.ShouldReconnectOnError = false
	// 429s surface as *discordgo.RateLimitError so the caller's backoff owns the wait.
	s.ShouldRetryOnRateLimit = false
	return &Client{session: s, guilds: make(map[string]string)}, nil
}

// FetchChannel resolves a channel id to its name and guild.
func (c *Client) FetchChannel(ctx context.Context, channelID string) (Channel, error) {
	if channelID == "" {
		return Channel{}, errors.New("channel id empty")
	}
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return Channel{}, err
	}
	c.mu.Lock()
	c.guilds[ch.ID] = ch.GuildID
	c.mu.Unlock()
	return Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}, nil
}

// FetchMessagesBefore returns up to limit messages older than the before cursor, newest first.
// An empty cursor starts from the most recent message.
func (c *Client) FetchMessagesBefore(ctx context.Context, channelID, before string, limit int) ([]Message, error) {
	if channelID == "" {
		return nil, errors.New("channel id empty")
	}
	if limit <= 0 || limit > MaxBatchSize {
		limit = MaxBatchSize
	}
	msgs, err := c.session.ChannelMessages(channelID, limit, before, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	guildID := c.guilds[channelID]
	c.mu.RUnlock()
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		gid := m.GuildID
		if gid == "" {
			gid = guildID
		}
		authorID := ""
		if m.Author != nil {
			authorID = m.Author.ID
		}
		out = append(out, Message{
			ID:        m.ID,
			Content:   m.Content,
			AuthorID:  authorID,
			CreatedAt: m.Timestamp,
			Link:      MessageLink(gid, channelID, m.ID),
		})
	}
	return out, nil
}

// Close releases the underlying session.
func (c *Client) Close() error {
	if err := c.session.Close(); err != nil {
		slog.Debug("discord session close", slog.Any("err", err))
		return err
	}
	return nil
}

// MessageLink builds the permanent jump link for a message.
func MessageLink(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// IsRateLimited reports whether err is a Discord 429 response.
func IsRateLimited(err error) bool {
	var rlErr *discordgo.RateLimitError
	return errors.As(err, &rlErr)
}

// IsPermissionDenied reports whether err means the token cannot read the channel.
func IsPermissionDenied(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden
}
