// Package pipeline runs the recording-to-SMS flow for one finished call:
// fetch the recording, transcribe it, pull station phrases out of the
// dictation, resolve them against the station directory, query departures,
// compose the message, and notify the caller.
//
// Each run is independent; the session cache consumed by the notifier is
// the only state shared between calls. Failures never escalate beyond the
// run: transport and transcription errors abort without an SMS, while a
// failed station resolution or departure lookup degrades to the fallback
// message so the caller still hears back.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trntxt/trntxt/internal/calllog"
	"github.com/trntxt/trntxt/internal/notify"
	"github.com/trntxt/trntxt/internal/observe"
	"github.com/trntxt/trntxt/internal/rail"
	"github.com/trntxt/trntxt/internal/stations"
	"github.com/trntxt/trntxt/internal/transcribe"
)

// RecordingEvent carries the webhook fields that trigger a run.
type RecordingEvent struct {
	RecordingURL     string
	RecordingUUID    string
	ConversationUUID string
}

// Terminal statuses reported by [Pipeline.Run].
const (
	StatusNotified           = "notified"
	StatusFallback           = "fallback"
	StatusTransportError     = "transport_error"
	StatusTranscriptionError = "transcription_error"
	StatusNotifyMiss         = "notify_miss"
	StatusDeliveryFailure    = "delivery_failure"
)

// Fetcher downloads a call recording to local disk and returns its path.
type Fetcher interface {
	Fetch(ctx context.Context, recordingURL, recordingUUID string) (string, error)
}

// Transcriber converts a stored recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, localPath string) (transcribe.Transcript, error)
}

// Resolver maps a spoken station phrase to ranked station matches.
type Resolver interface {
	Resolve(phrase string) []stations.Match
}

// DepartureSource queries live departures for a station pair.
type DepartureSource interface {
	Departures(ctx context.Context, from stations.Station, dest *stations.Station) (*rail.Board, error)
}

// Notifier delivers the composed message to the conversation's caller.
type Notifier interface {
	Notify(ctx context.Context, conversationID, text string) error
}

// CallLogger records the terminal outcome of a run.
type CallLogger interface {
	Record(ctx context.Context, e calllog.Entry) error
}

// Pipeline wires the stages together.
type Pipeline struct {
	fetcher    Fetcher
	transcribe Transcriber
	resolver   Resolver
	departures DepartureSource
	notifier   Notifier
	log        CallLogger // nil disables the call log

	metrics *observe.Metrics
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCallLog enables outcome persistence.
func WithCallLog(l CallLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline from its stage implementations.
func New(fetcher Fetcher, tr Transcriber, resolver Resolver, departures DepartureSource, notifier Notifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:    fetcher,
		transcribe: tr,
		resolver:   resolver,
		departures: departures,
		notifier:   notifier,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Run processes one recording event to a terminal status. The returned
// status is always one of the Status* constants; err carries the cause
// for the error statuses and is nil otherwise.
func (p *Pipeline) Run(ctx context.Context, ev RecordingEvent) (status string, err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("conversation_uuid", ev.ConversationUUID),
		attribute.String("recording_uuid", ev.RecordingUUID),
	))
	defer span.End()
	log := observe.Logger(ctx).With("conversation_uuid", ev.ConversationUUID)

	var entry calllog.Entry
	entry.ConversationUUID = ev.ConversationUUID
	entry.RecordingUUID = ev.RecordingUUID

	defer func() {
		p.metrics.RecordPipelineRun(ctx, status)
		span.SetAttributes(attribute.String("status", status))
		if err != nil {
			span.SetStatus(codes.Error, status)
			span.RecordError(err)
		}
		entry.Status = status
		entry.CreatedAt = p.now().UTC()
		p.record(ctx, log, entry)
	}()

	path, err := runStage(ctx, p, observe.StageFetch, func(ctx context.Context) (string, error) {
		return p.fetcher.Fetch(ctx, ev.RecordingURL, ev.RecordingUUID)
	})
	if err != nil {
		log.ErrorContext(ctx, "recording fetch failed", "error", err)
		return StatusTransportError, err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil {
			log.WarnContext(ctx, "could not remove recording", "path", path, "error", rmErr)
		}
	}()

	transcript, err := runStage(ctx, p, observe.StageTranscribe, func(ctx context.Context) (transcribe.Transcript, error) {
		return p.transcribe.Transcribe(ctx, path)
	})
	if err != nil {
		log.ErrorContext(ctx, "transcription failed", "error", err)
		return StatusTranscriptionError, err
	}
	entry.Transcript = transcript.Text
	log.InfoContext(ctx, "recording transcribed", "transcript", transcript.Text)

	query, _ := runStage(ctx, p, observe.StageExtract, func(context.Context) (stations.Query, error) {
		return stations.ExtractQuery(transcript.Text), nil
	})

	resolved, _ := runStage(ctx, p, observe.StageResolve, func(context.Context) (stationPair, error) {
		return p.resolveStations(query), nil
	})
	from, to := resolved.from, resolved.to
	if from != nil {
		entry.FromCRS = from.Code
	}
	if to != nil {
		entry.ToCRS = to.Code
	}

	board := p.queryBoard(ctx, log, query, from, to)

	message, _ := runStage(ctx, p, observe.StageCompose, func(context.Context) (string, error) {
		return notify.Compose(board, transcript.Text), nil
	})
	entry.Message = message

	_, err = runStage(ctx, p, observe.StageNotify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.notifier.Notify(ctx, ev.ConversationUUID, message)
	})
	switch {
	case errors.Is(err, notify.ErrNoSession):
		return StatusNotifyMiss, nil
	case err != nil:
		log.ErrorContext(ctx, "sms delivery failed", "error", err)
		return StatusDeliveryFailure, err
	}

	if board == nil || len(board.Services) == 0 {
		return StatusFallback, nil
	}
	return StatusNotified, nil
}

// stationPair holds the top match per extracted phrase; either side may be
// nil when the phrase was empty or matched nothing.
type stationPair struct {
	from, to *stations.Station
}

// resolveStations picks the top match for each extracted phrase. A missing
// from-station means no departure query can be made; a missing to-station
// still allows an origin-only board.
func (p *Pipeline) resolveStations(q stations.Query) stationPair {
	var pair stationPair
	if matches := p.resolver.Resolve(q.FromPhrase); len(matches) > 0 {
		pair.from = &matches[0].Station
	}
	if matches := p.resolver.Resolve(q.ToPhrase); len(matches) > 0 {
		pair.to = &matches[0].Station
	}
	return pair
}

// queryBoard fetches departures when resolution succeeded. The from-station
// must have resolved, and a heard destination phrase that matched nothing is
// a resolution miss, not an origin-only query. Any lookup failure degrades
// to a nil board so the caller still gets the fallback message.
func (p *Pipeline) queryBoard(ctx context.Context, log *slog.Logger, q stations.Query, from, to *stations.Station) *rail.Board {
	if from == nil {
		return nil
	}
	if q.ToPhrase != "" && to == nil {
		log.InfoContext(ctx, "destination phrase did not resolve", "to_phrase", q.ToPhrase)
		return nil
	}
	board, err := runStage(ctx, p, observe.StageQuery, func(ctx context.Context) (*rail.Board, error) {
		return p.departures.Departures(ctx, *from, to)
	})
	if err != nil {
		log.WarnContext(ctx, "departure lookup failed", "from", from.Code, "error", err)
		return nil
	}
	return board
}

// runStage runs fn under a span and records its duration.
func runStage[T any](ctx context.Context, p *Pipeline, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline."+name)
	defer span.End()
	start := p.now()
	v, err := fn(ctx)
	p.metrics.RecordStage(ctx, name, p.now().Sub(start).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	return v, err
}

func (p *Pipeline) record(ctx context.Context, log *slog.Logger, e calllog.Entry) {
	if p.log == nil {
		return
	}
	if err := p.log.Record(ctx, e); err != nil {
		log.WarnContext(ctx, "call log write failed", "error", err)
	}
}
