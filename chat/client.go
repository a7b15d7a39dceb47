package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chronicle-bot/bot"
)

// Handler receives converted chat lines.
type Handler interface {
	Submit(ctx context.Context, msg bot.Message)
}

// Options configure the IRC connection.
type Options struct {
	Username string
	Token    string
	Channels []string
}

// Client wraps the go-twitch-irc client.
type Client struct {
	irc       *twitch.Client
	username  string
	channels  []string
	connected atomic.Bool
}

// NewClient builds an IRC client; it does not connect until Run.
func NewClient(opts Options) *Client {
	channels := make([]string, 0, len(opts.Channels))
	for _, ch := range opts.Channels {
		if ch = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#")); ch != "" {
			channels = append(channels, ch)
		}
	}
	return &Client{
		irc:      twitch.NewClient(opts.Username, IRCToken(opts.Token)),
		username: opts.Username,
		channels: channels,
	}
}

// IRCToken returns token with the "oauth:" prefix IRC expects.
func IRCToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

// SetToken replaces the IRC password used for subsequent connections.
func (c *Client) SetToken(token string) {
	c.irc.SetIRCToken(IRCToken(token))
}

// Say posts text to channel.
func (c *Client) Say(channel, text string) {
	c.irc.Say(strings.TrimPrefix(channel, "#"), text)
}

// Connected reports whether the IRC session is up.
func (c *Client) Connected() bool { return c.connected.Load() }

// Channels returns the joined channel names.
func (c *Client) Channels() []string { return append([]string(nil), c.channels...) }

// Run connects, joins the channels and feeds every message to h until ctx is
// cancelled. Reconnects are handled by go-twitch-irc.
func (c *Client) Run(ctx context.Context, h Handler) error {
	c.irc.OnConnect(func() {
		c.connected.Store(true)
		slog.Info("connected to twitch chat",
			slog.String("component", "chat"),
			slog.String("addr", c.irc.IrcAddress),
			slog.Any("channels", c.channels))
	})
	c.irc.OnPrivateMessage(func(pm twitch.PrivateMessage) {
		h.Submit(ctx, c.convert(pm))
	})
	c.irc.Join(c.channels...)

	go func() {
		<-ctx.Done()
		if err := c.irc.Disconnect(); err != nil {
			slog.Debug("twitch chat disconnect", slog.String("component", "chat"), slog.Any("err", err))
		}
	}()

	err := c.irc.Connect()
	c.connected.Store(false)
	if ctx.Err() != nil || errors.Is(err, twitch.ErrClientDisconnected) {
		return nil
	}
	return err
}

func (c *Client) convert(pm twitch.PrivateMessage) bot.Message {
	ts := pm.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return bot.Message{
		Channel:     pm.Channel,
		Username:    pm.User.Name,
		DisplayName: pm.User.DisplayName,
		Text:        pm.Message,
		IsMod:       isModerator(pm),
		IsSelf:      strings.EqualFold(pm.User.Name, c.username),
		Timestamp:   ts.UTC(),
	}
}

func isModerator(pm twitch.PrivateMessage) bool {
	if pm.Tags["mod"] == "1" {
		return true
	}
	return pm.User.Badges["moderator"] > 0
}
