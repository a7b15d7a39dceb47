package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chronicle-bot/history"
	"github.com/onnwee/chronicle-bot/telemetry"
)

// Store is the durable store behind authorization and bot-state changes.
// Writes are synchronous; the in-memory State changes only after they succeed.
type Store interface {
	AddAuthorizedUser(ctx context.Context, username string) error
	RemoveAuthorizedUser(ctx context.Context, username string) error
	SaveBotState(ctx context.Context, enabled bool) error
}

// Sayer sends a line to a channel.
type Sayer interface {
	Say(channel, text string)
}

// Chronicler turns an event into the reply posted to chat. It never fails;
// backend errors surface as a fallback text.
type Chronicler interface {
	Chronicle(ctx context.Context, year, summary string, events []history.Line) string
}

// Action is the deferred part of handling a line: store writes, generation
// and replies. It runs without any dispatcher lock held.
type Action func(ctx context.Context)

// Options configure a Dispatcher.
type Options struct {
	// Prefix marks commands; defaults to "!".
	Prefix string
	// Now stamps lines that arrive without a timestamp.
	Now func() time.Time
}

// Dispatcher folds every chat line into the history store and routes
// recognized commands through the enablement, authorization and
// owner-or-moderator gates.
type Dispatcher struct {
	state   *State
	history *history.Store
	store   Store
	gen     Chronicler
	out     Sayer
	prefix  string
	now     func() time.Time

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(state *State, hist *history.Store, store Store, gen Chronicler, out Sayer, opts Options) *Dispatcher {
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		state:   state,
		history: hist,
		store:   store,
		gen:     gen,
		out:     out,
		prefix:  opts.Prefix,
		now:     opts.Now,
	}
}

// State exposes the authorization and enablement holder.
func (d *Dispatcher) State() *State { return d.state }

// Submit folds msg synchronously, so lines enter history in arrival order,
// then runs the resulting action in its own goroutine. Use Wait to drain.
// Lines submitted after Drain are dropped.
func (d *Dispatcher) Submit(ctx context.Context, msg Message) {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	act := d.Dispatch(msg)
	if act == nil {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		act(ctx)
	}()
}

// HandleMessage folds msg and runs its action before returning.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg Message) {
	if act := d.Dispatch(msg); act != nil {
		act(ctx)
	}
}

// Wait blocks until every action started by Submit has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Drain stops accepting submitted lines and waits for in-flight actions.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()
	d.wg.Wait()
}

// Dispatch applies the line to history and evaluates the gates. It never
// blocks on I/O; everything that does is returned as the Action (nil when
// nothing remains to be done).
func (d *Dispatcher) Dispatch(msg Message) Action {
	if msg.IsSelf {
		return nil
	}
	telemetry.ObserveLine()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = d.now()
	}
	msg.Channel = history.NormalizeChannel(msg.Channel)

	text := strings.TrimSpace(msg.Text)
	kind := history.Classify(text, d.prefix)
	line := history.Line{
		Channel:   msg.Channel,
		User:      msg.Name(),
		Text:      msg.Text,
		Kind:      kind,
		Timestamp: msg.Timestamp,
	}
	if kind == CmdEvent {
		// folded by the event handler, which needs the history before it
		return d.dispatchEvent(msg, line, strings.Fields(text))
	}
	// the context replay covers what was stored before this request
	var prior []history.Line
	if kind == CmdContext {
		prior = d.history.Lines(msg.Channel)
	}
	d.history.Append(line)
	if kind == history.KindChat {
		return nil
	}
	return d.dispatchCommand(msg, kind, strings.Fields(text), prior)
}

func (d *Dispatcher) dispatchCommand(msg Message, cmd string, fields []string, prior []history.Line) Action {
	switch cmd {
	case CmdContext, CmdResetContext, CmdHelp, CmdListUsers, CmdBotOff, CmdBotOn:
		// argument-less commands match only the bare token
		if len(fields) != 1 {
			return nil
		}
	case CmdAddUser, CmdRemoveUser:
	default:
		return nil
	}

	if !d.state.Enabled() && !adminCommands[cmd] && cmd != CmdHelp {
		telemetry.ObserveCommand(cmd, telemetry.OutcomeDisabled)
		return nil
	}
	if adminCommands[cmd] && !IsChannelOwnerOrMod(msg) {
		telemetry.ObserveCommand(cmd, telemetry.OutcomeDenied)
		return d.reply(cmd, msg.Channel, ownerOnlyReply(msg.Name(), cmd))
	}

	ch := msg.Channel
	switch cmd {
	case CmdContext:
		if !d.state.IsUserAuthorized(msg) {
			telemetry.ObserveCommand(cmd, telemetry.OutcomeIgnored)
			return nil
		}
		telemetry.ObserveCommand(cmd, telemetry.OutcomeOK)
		if len(prior) == 0 {
			return d.reply(cmd, ch, noMessagesReply)
		}
		out := make([]string, len(prior))
		for i, l := range prior {
			out[i] = contextLine(l)
		}
		return d.reply(cmd, ch, out...)

	case CmdResetContext:
		if !d.state.IsUserAuthorized(msg) {
			telemetry.ObserveCommand(cmd, telemetry.OutcomeIgnored)
			return nil
		}
		name := msg.Name()
		// cleared now so lines folded before the action runs are kept
		done := d.history.Clear(ch)
		return d.action(cmd, ch, func(ctx context.Context) {
			outcome := telemetry.OutcomeOK
			if err := d.awaitReset(ctx, ch, done); err != nil {
				outcome = telemetry.OutcomeFailed
			}
			telemetry.ObserveCommand(cmd, outcome)
			d.out.Say(ch, resetReply(name))
			telemetry.LoggerWithCorr(ctx).Info("context reset",
				slog.String("component", "bot"),
				slog.String("channel", ch),
				slog.String("by", name))
		})

	case CmdHelp:
		telemetry.ObserveCommand(cmd, telemetry.OutcomeOK)
		return d.reply(cmd, ch, HelpLines(d.prefix)...)

	case CmdAddUser, CmdRemoveUser:
		var target string
		if len(fields) >= 2 {
			target = NormalizeUsername(fields[1])
		}
		if target == "" {
			telemetry.ObserveCommand(cmd, telemetry.OutcomeUsage)
			return d.reply(cmd, ch, userUsageReply(msg.Name(), d.prefix, cmd))
		}
		if cmd == CmdAddUser {
			return d.action(cmd, ch, func(ctx context.Context) { d.addUser(ctx, ch, target) })
		}
		return d.action(cmd, ch, func(ctx context.Context) { d.removeUser(ctx, ch, target) })

	case CmdListUsers:
		telemetry.ObserveCommand(cmd, telemetry.OutcomeOK)
		return d.reply(cmd, ch, listUsersReply(d.state.Users()))

	case CmdBotOff, CmdBotOn:
		enable := cmd == CmdBotOn
		name := msg.Name()
		return d.action(cmd, ch, func(ctx context.Context) { d.setEnabled(ctx, ch, name, cmd, enable) })
	}
	return nil
}

func (d *Dispatcher) dispatchEvent(msg Message, line history.Line, fields []string) Action {
	ch := msg.Channel
	// a rejected invocation stays in history under its own kind so it never
	// reaches the narrative context
	rejected := func() {
		line.Kind = history.KindRejectedEvent
		d.history.Append(line)
	}
	if !d.state.Enabled() {
		rejected()
		telemetry.ObserveCommand(CmdEvent, telemetry.OutcomeDisabled)
		return nil
	}
	if !d.state.IsUserAuthorized(msg) {
		rejected()
		telemetry.ObserveCommand(CmdEvent, telemetry.OutcomeDenied)
		return d.reply(CmdEvent, ch, notAuthorizedReply(msg.Name()))
	}
	if len(fields) < 3 {
		rejected()
		telemetry.ObserveCommand(CmdEvent, telemetry.OutcomeUsage)
		return d.reply(CmdEvent, ch, eventUsageReply(msg.Name(), d.prefix))
	}

	year := fields[1]
	summary := strings.Join(fields[2:], " ")
	prior := d.history.EventHistory(ch)
	d.history.Append(line)

	return d.action(CmdEvent, ch, func(ctx context.Context) {
		reply := d.gen.Chronicle(ctx, year, summary, prior)
		d.out.Say(ch, reply)
		telemetry.ObserveCommand(CmdEvent, telemetry.OutcomeOK)
		telemetry.LoggerWithCorr(ctx).Info("chronicle sent",
			slog.String("component", "bot"),
			slog.String("channel", ch),
			slog.Int("context_events", len(prior)),
			slog.Int("reply_chars", len([]rune(reply))))
	})
}

func (d *Dispatcher) addUser(ctx context.Context, ch, name string) {
	if err := d.store.AddAuthorizedUser(ctx, name); err != nil {
		telemetry.ObserveCommand(CmdAddUser, telemetry.OutcomeFailed)
		telemetry.LoggerWithCorr(ctx).Warn("add authorized user failed",
			slog.String("component", "bot"),
			slog.String("user", name),
			slog.Any("err", err))
		d.out.Say(ch, fmt.Sprintf("Could not add @%s (already exists or invalid).", name))
		return
	}
	d.state.add(name)
	telemetry.ObserveCommand(CmdAddUser, telemetry.OutcomeOK)
	d.out.Say(ch, fmt.Sprintf("User @%s added to authorized list.", name))
}

func (d *Dispatcher) removeUser(ctx context.Context, ch, name string) {
	if err := d.store.RemoveAuthorizedUser(ctx, name); err != nil {
		telemetry.ObserveCommand(CmdRemoveUser, telemetry.OutcomeFailed)
		telemetry.LoggerWithCorr(ctx).Warn("remove authorized user failed",
			slog.String("component", "bot"),
			slog.String("user", name),
			slog.Any("err", err))
		d.out.Say(ch, fmt.Sprintf("Could not remove @%s (not found).", name))
		return
	}
	d.state.remove(name)
	telemetry.ObserveCommand(CmdRemoveUser, telemetry.OutcomeOK)
	d.out.Say(ch, fmt.Sprintf("User @%s removed from authorized list.", name))
}

func (d *Dispatcher) setEnabled(ctx context.Context, ch, by, cmd string, enable bool) {
	if err := d.store.SaveBotState(ctx, enable); err != nil {
		telemetry.ObserveCommand(cmd, telemetry.OutcomeFailed)
		telemetry.LoggerWithCorr(ctx).Error("save bot state failed",
			slog.String("component", "bot"),
			slog.Bool("enabled", enable),
			slog.Any("err", err))
		d.out.Say(ch, stateFailedReply(by))
		return
	}
	d.state.setEnabled(enable)
	telemetry.SetBotEnabled(enable)
	telemetry.ObserveCommand(cmd, telemetry.OutcomeOK)
	telemetry.LoggerWithCorr(ctx).Info("bot state changed",
		slog.String("component", "bot"),
		slog.Bool("enabled", enable),
		slog.String("by", by))
	if enable {
		d.out.Say(ch, botOnReply)
	} else {
		d.out.Say(ch, botOffReply)
	}
}

// ResetChannel clears the channel's history and deletes its stored messages.
// Memory is cleared even when the durable delete fails.
func (d *Dispatcher) ResetChannel(ctx context.Context, channel string) error {
	return d.awaitReset(ctx, channel, d.history.Clear(channel))
}

func (d *Dispatcher) awaitReset(ctx context.Context, channel string, done <-chan error) error {
	err := history.AwaitDelete(ctx, channel, done)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("durable context delete failed",
			slog.String("component", "bot"),
			slog.String("channel", history.NormalizeChannel(channel)),
			slog.Any("err", err))
	}
	return err
}

// action wraps fn with a correlation id and a command span.
func (d *Dispatcher) action(cmd, ch string, fn func(ctx context.Context)) Action {
	return func(ctx context.Context) {
		ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
		ctx, span := telemetry.StartSpan(ctx, "bot", "command",
			telemetry.CommandAttr(cmd), telemetry.ChannelAttr(ch))
		defer span.End()
		fn(ctx)
	}
}

func (d *Dispatcher) reply(cmd, ch string, lines ...string) Action {
	return d.action(cmd, ch, func(context.Context) {
		for _, l := range lines {
			d.out.Say(ch, l)
		}
	})
}

// Status is a point-in-time view of the bot for the ops surface.
type Status struct {
	Enabled         bool           `json:"enabled"`
	Channels        map[string]int `json:"channels"`
	AuthorizedUsers []string       `json:"authorized_users"`
}

// Status reports the enable flag, stored line counts and authorized users.
func (d *Dispatcher) Status() Status {
	return Status{
		Enabled:         d.state.Enabled(),
		Channels:        d.history.Counts(),
		AuthorizedUsers: d.state.Users(),
	}
}
