package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/trntxt/trntxt/internal/calllog"
	"github.com/trntxt/trntxt/internal/notify"
	"github.com/trntxt/trntxt/internal/observe"
	"github.com/trntxt/trntxt/internal/rail"
	"github.com/trntxt/trntxt/internal/stations"
	"github.com/trntxt/trntxt/internal/transcribe"
)

var (
	londonBridge = stations.Station{Code: "LBG", Name: "London Bridge"}
	brighton     = stations.Station{Code: "BTN", Name: "Brighton"}
)

type fakeFetcher struct {
	dir string
	err error
}

func (f *fakeFetcher) Fetch(_ context.Context, _, recordingUUID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, recordingUUID)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) (transcribe.Transcript, error) {
	if f.err != nil {
		return transcribe.Transcript{}, f.err
	}
	return transcribe.Transcript{Text: f.text}, nil
}

// phraseResolver maps exact phrases onto stations.
type phraseResolver map[string]stations.Station

func (r phraseResolver) Resolve(phrase string) []stations.Match {
	st, ok := r[phrase]
	if !ok {
		return nil
	}
	return []stations.Match{{Station: st, Score: 1}}
}

type fakeDepartures struct {
	board *rail.Board
	err   error

	gotFrom stations.Station
	gotTo   *stations.Station
	calls   int
}

func (f *fakeDepartures) Departures(_ context.Context, from stations.Station, dest *stations.Station) (*rail.Board, error) {
	f.calls++
	f.gotFrom = from
	f.gotTo = dest
	return f.board, f.err
}

type fakeNotifier struct {
	err  error
	sent []struct{ conversationID, text string }
}

func (f *fakeNotifier) Notify(_ context.Context, conversationID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, struct{ conversationID, text string }{conversationID, text})
	return nil
}

type fakeCallLog struct {
	entries []calllog.Entry
	err     error
}

func (f *fakeCallLog) Record(_ context.Context, e calllog.Entry) error {
	f.entries = append(f.entries, e)
	return f.err
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testEvent() RecordingEvent {
	return RecordingEvent{
		RecordingURL:     "https://api.example.com/v1/files/rec-1",
		RecordingUUID:    "rec-1",
		ConversationUUID: "conv-1",
	}
}

func TestRun_HappyPath(t *testing.T) {
	deps := &fakeDepartures{board: &rail.Board{
		FromStation: londonBridge,
		ToStation:   &brighton,
		Services: []rail.Service{
			{Scheduled: "14:05", Estimated: "On time", Platform: "3", Origin: londonBridge},
		},
	}}
	notifier := &fakeNotifier{}
	logStore := &fakeCallLog{}
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{text: "next train from london bridge to brighton"},
		phraseResolver{"london bridge": londonBridge, "brighton": brighton},
		deps,
		notifier,
		WithCallLog(logStore),
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusNotified {
		t.Errorf("status = %q, want %q", status, StatusNotified)
	}
	if deps.gotFrom != londonBridge || deps.gotTo == nil || *deps.gotTo != brighton {
		t.Errorf("departures queried with from=%v to=%v", deps.gotFrom, deps.gotTo)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sent))
	}
	want := "The next train to Brighton from London Bridge will be the 14:05 from platform 3."
	if notifier.sent[0].text != want {
		t.Errorf("sms text = %q, want %q", notifier.sent[0].text, want)
	}
	if len(logStore.entries) != 1 {
		t.Fatalf("call log entries = %d, want 1", len(logStore.entries))
	}
	e := logStore.entries[0]
	if e.FromCRS != "LBG" || e.ToCRS != "BTN" || e.Status != StatusNotified || e.Message != want {
		t.Errorf("call log entry = %+v", e)
	}
}

func TestRun_FetchFailureAbortsWithoutSMS(t *testing.T) {
	notifier := &fakeNotifier{}
	deps := &fakeDepartures{}
	p := New(
		&fakeFetcher{err: errors.New("recording download: 404")},
		&fakeTranscriber{text: "unused"},
		phraseResolver{},
		deps,
		notifier,
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if status != StatusTransportError {
		t.Errorf("status = %q, want %q", status, StatusTransportError)
	}
	if err == nil {
		t.Error("expected fetch error")
	}
	if len(notifier.sent) != 0 || deps.calls != 0 {
		t.Error("pipeline continued past failed fetch")
	}
}

func TestRun_TranscriptionFailureAbortsWithoutSMS(t *testing.T) {
	notifier := &fakeNotifier{}
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{err: &transcribe.Error{Path: "x.mp3", Err: errors.New("engine: 500")}},
		phraseResolver{},
		&fakeDepartures{},
		notifier,
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if status != StatusTranscriptionError {
		t.Errorf("status = %q, want %q", status, StatusTranscriptionError)
	}
	var te *transcribe.Error
	if !errors.As(err, &te) {
		t.Errorf("err = %v, want *transcribe.Error", err)
	}
	if len(notifier.sent) != 0 {
		t.Error("sms sent despite transcription failure")
	}
}

func TestRun_UnresolvedStationsFallBack(t *testing.T) {
	notifier := &fakeNotifier{}
	deps := &fakeDepartures{}
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{text: "mumble mumble"},
		phraseResolver{},
		deps,
		notifier,
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusFallback {
		t.Errorf("status = %q, want %q", status, StatusFallback)
	}
	if deps.calls != 0 {
		t.Error("departures queried without a resolved from-station")
	}
	want := `I heard "mumble mumble". I couldn't find any services.`
	if len(notifier.sent) != 1 || notifier.sent[0].text != want {
		t.Errorf("sms = %v, want %q", notifier.sent, want)
	}
}

func TestRun_UnresolvedDestinationSkipsQuery(t *testing.T) {
	notifier := &fakeNotifier{}
	deps := &fakeDepartures{}
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{text: "trains from london to narnia"},
		phraseResolver{"london": londonBridge},
		deps,
		notifier,
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusFallback {
		t.Errorf("status = %q, want %q", status, StatusFallback)
	}
	if deps.calls != 0 {
		t.Error("departures queried despite unresolved destination")
	}
	want := `I heard "trains from london to narnia". I couldn't find any services.`
	if len(notifier.sent) != 1 || notifier.sent[0].text != want {
		t.Errorf("sms = %v, want %q", notifier.sent, want)
	}
}

func TestRun_OriginOnlyQuery(t *testing.T) {
	notifier := &fakeNotifier{}
	deps := &fakeDepartures{board: &rail.Board{
		FromStation: londonBridge,
		Services: []rail.Service{
			{Scheduled: "09:30", Estimated: "On time", Platform: "2", Origin: londonBridge},
		},
	}}
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{text: "trains from london"},
		phraseResolver{"london": londonBridge},
		deps,
		notifier,
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusNotified {
		t.Errorf("status = %q, want %q", status, StatusNotified)
	}
	if deps.calls != 1 || deps.gotTo != nil {
		t.Errorf("departures calls = %d, gotTo = %v", deps.calls, deps.gotTo)
	}
	want := "The next train from London Bridge will be the 09:30 from platform 2."
	if len(notifier.sent) != 1 || notifier.sent[0].text != want {
		t.Errorf("sms = %v, want %q", notifier.sent, want)
	}
}

func TestRun_DepartureLookupFailureFallsBack(t *testing.T) {
	notifier := &fakeNotifier{}
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{text: "from london bridge to brighton"},
		phraseResolver{"london bridge": londonBridge, "brighton": brighton},
		&fakeDepartures{err: errors.New("gateway timeout")},
		notifier,
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusFallback {
		t.Errorf("status = %q, want %q", status, StatusFallback)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sent))
	}
}

func TestRun_EmptyBoardIsFallbackNotError(t *testing.T) {
	notifier := &fakeNotifier{}
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{text: "from london bridge to brighton"},
		phraseResolver{"london bridge": londonBridge, "brighton": brighton},
		&fakeDepartures{board: &rail.Board{FromStation: londonBridge, ToStation: &brighton}},
		notifier,
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusFallback {
		t.Errorf("status = %q, want %q", status, StatusFallback)
	}
}

func TestRun_NotifyMissIsSilent(t *testing.T) {
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{text: "from london bridge to brighton"},
		phraseResolver{"london bridge": londonBridge, "brighton": brighton},
		&fakeDepartures{board: &rail.Board{
			FromStation: londonBridge,
			ToStation:   &brighton,
			Services:    []rail.Service{{Scheduled: "14:05", Estimated: "On time", Origin: londonBridge}},
		}},
		&fakeNotifier{err: notify.ErrNoSession},
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Errorf("Run returned %v, want nil for a session miss", err)
	}
	if status != StatusNotifyMiss {
		t.Errorf("status = %q, want %q", status, StatusNotifyMiss)
	}
}

func TestRun_DeliveryFailure(t *testing.T) {
	sendErr := errors.New("connection refused")
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{text: "from london bridge to brighton"},
		phraseResolver{"london bridge": londonBridge, "brighton": brighton},
		&fakeDepartures{board: &rail.Board{
			FromStation: londonBridge,
			ToStation:   &brighton,
			Services:    []rail.Service{{Scheduled: "14:05", Estimated: "On time", Origin: londonBridge}},
		}},
		&fakeNotifier{err: sendErr},
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if status != StatusDeliveryFailure {
		t.Errorf("status = %q, want %q", status, StatusDeliveryFailure)
	}
	if !errors.Is(err, sendErr) {
		t.Errorf("err = %v, want %v", err, sendErr)
	}
}

func TestRun_RemovesRecordingAfterProcessing(t *testing.T) {
	dir := t.TempDir()
	p := New(
		&fakeFetcher{dir: dir},
		&fakeTranscriber{text: "from london bridge to brighton"},
		phraseResolver{"london bridge": londonBridge, "brighton": brighton},
		&fakeDepartures{board: &rail.Board{FromStation: londonBridge, ToStation: &brighton}},
		&fakeNotifier{},
		WithMetrics(testMetrics(t)),
	)

	if _, err := p.Run(context.Background(), testEvent()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "rec-1")); !os.IsNotExist(err) {
		t.Errorf("recording still on disk after run (stat err = %v)", err)
	}
}

func TestRun_CallLogFailureIsNonFatal(t *testing.T) {
	p := New(
		&fakeFetcher{dir: t.TempDir()},
		&fakeTranscriber{text: "from london bridge to brighton"},
		phraseResolver{"london bridge": londonBridge, "brighton": brighton},
		&fakeDepartures{board: &rail.Board{FromStation: londonBridge, ToStation: &brighton}},
		&fakeNotifier{},
		WithCallLog(&fakeCallLog{err: errors.New("db down")}),
		WithMetrics(testMetrics(t)),
	)

	status, err := p.Run(context.Background(), testEvent())
	if err != nil {
		t.Errorf("Run: %v", err)
	}
	if status != StatusFallback {
		t.Errorf("status = %q, want %q", status, StatusFallback)
	}
}
