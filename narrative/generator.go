// Package narrative turns an !event invocation into a chronicle entry by
// calling a text-generation backend with a templated prompt.
package narrative

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/chronicle-bot/history"
	"github.com/onnwee/chronicle-bot/telemetry"
)

// Backend is the external text-generation collaborator.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyResponse is returned by backends that produced no text.
var ErrEmptyResponse = errors.New("generation backend returned no text")

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 20 * time.Second

// Generator produces chat-ready chronicle entries.
type Generator struct {
	backend Backend
	tmpl    *Template
	timeout time.Duration
}

// NewGenerator builds a generator; a nil template uses the embedded default.
func NewGenerator(backend Backend, tmpl *Template, timeout time.Duration) *Generator {
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{backend: backend, tmpl: tmpl, timeout: timeout}
}

// Template returns the active prompt template.
func (g *Generator) Template() *Template { return g.tmpl }

// Prompt renders the full prompt for an event, prefixed with the context
// window built from prior events when there is one.
func (g *Generator) Prompt(year, summary string, events []history.Line) string {
	prompt := RenderPrompt(g.tmpl.Instruction, map[string]string{"year": year, "summary": summary})
	window := history.BuildWindow(events, g.tmpl.ContextBudget)
	if window == "" || g.tmpl.ContextPrefix == "" {
		return prompt
	}
	return RenderPrompt(g.tmpl.ContextPrefix, map[string]string{"context": window}) + prompt
}

// Chronicle calls the backend once and returns the cleaned reply. Any backend
// failure, timeout included, yields the template's fallback text.
func (g *Generator) Chronicle(ctx context.Context, year, summary string, events []history.Line) string {
	ctx, span := telemetry.StartSpan(ctx, "narrative", "chronicle",
		attribute.String("template", g.tmpl.Name),
		attribute.Int("context_events", len(events)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out, err := g.backend.Generate(ctx, g.Prompt(year, summary, events))
	telemetry.ObserveGeneration(time.Since(start), err)
	if err == nil && strings.TrimSpace(out) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.LoggerWithCorr(ctx).Error("chronicle generation failed",
			slog.String("component", "narrative"),
			slog.String("year", year),
			slog.Any("err", err))
		return g.tmpl.Fallback
	}
	telemetry.SetSpanSuccess(span)
	return CleanReply(out, g.tmpl.MaxReplyChars)
}

// CleanReply trims whitespace, turns line breaks into spaces and caps the
// result at limit characters, ending truncated text with "...".
func CleanReply(s string, limit int) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
