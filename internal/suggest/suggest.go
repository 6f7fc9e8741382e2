// Package suggest turns free-text replies from a language model into movie
// titles: identifying a movie from a loose description and recommending
// similar ones without repeating what a session has already seen.
package suggest

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/suggest/prompts"
)

const (
	InterpretTemperature = 0.3
	RecommendTemperature = 0.7
	MaxTemperature       = 2.0

	interpretMaxTokens = 50
	recommendMaxTokens = 150

	// RecommendCount is how many titles the similar-movies prompt asks for.
	RecommendCount = 5
)

// ErrNoTitle means the provider could not name a single movie.
var ErrNoTitle = fmt.Errorf("suggest: no clear movie title: %w", domain.ErrNotFound)

// History is the per-session record of titles already suggested.
type History interface {
	Exclusions(ctx context.Context, sessionID string) ([]string, error)
	RecordShown(ctx context.Context, sessionID string, titles []string) (int, error)
}

// Options tunes Interpreter and Recommender.
type Options struct {
	Timeout time.Duration
	Logger  zerolog.Logger
}

var templates = template.Must(
	template.New("prompts").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(prompts.FS, "*.tmpl"),
)

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// IdentifyPrompt renders the single-title identification prompt.
func IdentifyPrompt(query string) (string, error) {
	return render("identify.tmpl", struct {
		Query    string
		Sentinel string
	}{Query: query, Sentinel: NoTitleSentinel})
}

// SimilarPrompt renders the recommendation prompt. A non-empty exclude list
// appends the avoid-these-titles clause.
func SimilarPrompt(title string, exclude []string) (string, error) {
	return render("similar.tmpl", struct {
		Title   string
		Count   int
		Exclude []string
	}{Title: title, Count: RecommendCount, Exclude: exclude})
}

// ClampTemperature returns t when it lies in [0, 2], otherwise the
// recommendation default.
func ClampTemperature(t float64) float64 {
	if math.IsNaN(t) || t < 0 || t > MaxTemperature {
		return RecommendTemperature
	}
	return t
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Interpreter maps free-text user input to the most probable movie title.
type Interpreter struct {
	provider Provider
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewInterpreter wires an Interpreter. A nil provider reports "not configured".
func NewInterpreter(p Provider, opts Options) *Interpreter {
	return &Interpreter{
		provider: p,
		timeout:  opts.Timeout,
		logger:   opts.Logger.With().Str("component", "interpreter").Logger(),
	}
}

// Interpret returns the title the provider identified, or ErrNoTitle.
func (i *Interpreter) Interpret(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrNoTitle
	}
	if i.provider == nil {
		return "", domain.External(serviceName, "not configured", nil)
	}
	prompt, err := IdentifyPrompt(query)
	if err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, i.timeout)
	defer cancel()
	raw, err := i.provider.Generate(ctx, prompt, GenerateOptions{
		Temperature: InterpretTemperature,
		MaxTokens:   interpretMaxTokens,
	})
	if err != nil {
		return "", err
	}

	title, ok := NormalizeSingle(raw)
	if !ok {
		i.logger.Info().Str("query", query).Str("raw", raw).Msg("no clear title")
		return "", ErrNoTitle
	}
	i.logger.Debug().Str("query", query).Str("title", title).Msg("interpreted")
	return title, nil
}

// Recommender asks for movies similar to a catalog title, excluding the
// session's history.
type Recommender struct {
	provider Provider
	history  History
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewRecommender wires a Recommender. A nil provider reports "not configured".
func NewRecommender(p Provider, history History, opts Options) *Recommender {
	return &Recommender{
		provider: p,
		history:  history,
		timeout:  opts.Timeout,
		logger:   opts.Logger.With().Str("component", "recommender").Logger(),
	}
}

// Recommendation is one round of suggestions.
type Recommendation struct {
	Titles []string
	// Recorded is how many titles were new to the session history.
	Recorded    int
	Temperature float64
}

// Similar asks for up to five titles like movieTitle. Every title returned
// is shown; only those new to the session are appended to its history.
func (r *Recommender) Similar(ctx context.Context, sessionID, movieTitle string, temperature float64) (Recommendation, error) {
	movieTitle = strings.TrimSpace(movieTitle)
	if movieTitle == "" {
		return Recommendation{}, domain.InvalidInput("movie title is required")
	}
	if r.provider == nil {
		return Recommendation{}, domain.External(serviceName, "not configured", nil)
	}
	temperature = ClampTemperature(temperature)

	var exclude []string
	if sessionID != "" {
		var err error
		exclude, err = r.history.Exclusions(ctx, sessionID)
		if err != nil {
			return Recommendation{}, fmt.Errorf("load discovery history: %w", err)
		}
	}
	prompt, err := SimilarPrompt(movieTitle, exclude)
	if err != nil {
		return Recommendation{}, err
	}

	genCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	raw, err := r.provider.Generate(genCtx, prompt, GenerateOptions{
		Temperature: float32(temperature),
		MaxTokens:   recommendMaxTokens,
	})
	if err != nil {
		return Recommendation{}, err
	}

	titles := NormalizeList(raw, RecommendCount)
	if len(titles) == 0 {
		r.logger.Warn().Str("movie", movieTitle).Str("raw", raw).Msg("no usable suggestions")
		return Recommendation{}, domain.External(serviceName, "did not return any suggestions", nil)
	}

	rec := Recommendation{Titles: titles, Temperature: temperature}
	if sessionID != "" {
		rec.Recorded, err = r.history.RecordShown(ctx, sessionID, titles)
		if err != nil {
			return Recommendation{}, fmt.Errorf("record discovery history: %w", err)
		}
	}
	r.logger.Info().
		Str("movie", movieTitle).
		Int("excluded", len(exclude)).
		Int("shown", len(titles)).
		Int("recorded", rec.Recorded).
		Float64("temperature", temperature).
		Msg("recommendations generated")
	return rec, nil
}
