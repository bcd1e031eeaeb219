package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"signspeak/internal/domain"
	"signspeak/internal/labels"
	"signspeak/internal/metrics"
)

const (
	testInterval = 3 * time.Second
	testDelay    = 500 * time.Millisecond
)

func newTestLoop(t *testing.T, source *sequenceSource, sink *fakeEventSink) (*DetectionLoop, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	loop := NewDetectionLoop(source, sink, zaptest.NewLogger(t), nil, DetectionConfig{
		Interval:    testInterval,
		AppendDelay: testDelay,
		Clock:       clock,
	})
	t.Cleanup(loop.Close)
	return loop, clock
}

func TestDetectionThreeTicksAppendInOrder(t *testing.T) {
	t.Parallel()

	source := &sequenceSource{labels: []string{"Hello", "Thank You", "Goodbye"}}
	sink := &fakeEventSink{}
	loop, clock := newTestLoop(t, source, sink)

	if !loop.Start(context.Background()) {
		t.Fatalf("expected start to begin detection")
	}

	for i := 1; i <= 3; i++ {
		clock.Advance(testInterval)
		want := i
		waitFor(t, "recognized label", func() bool { return len(sink.snapshotLabels()) == want })
	}

	clock.Advance(testDelay)
	waitFor(t, "three appends", func() bool { return len(loop.Snapshot().Tokens) == 3 })

	snapshot := loop.Snapshot()
	if !reflect.DeepEqual(snapshot.Tokens, []string{"Hello", "Thank You", "Goodbye"}) {
		t.Fatalf("unexpected tokens: %v", snapshot.Tokens)
	}
	if snapshot.Transcript != "Hello Thank You Goodbye" {
		t.Fatalf("unexpected transcript: %q", snapshot.Transcript)
	}
	if snapshot.Recognized != "Goodbye" {
		t.Fatalf("expected last label recognized, got %q", snapshot.Recognized)
	}
	if got := len(sink.snapshotLabels()); got != 3 {
		t.Fatalf("expected exactly three recognized updates, got %d", got)
	}
	transcripts := sink.snapshotTranscripts()
	if transcripts[len(transcripts)-1] != "Hello Thank You Goodbye" {
		t.Fatalf("unexpected last transcript event: %q", transcripts[len(transcripts)-1])
	}
}

func TestDetectionRecognizedBeforeAppend(t *testing.T) {
	t.Parallel()

	source := &sequenceSource{labels: []string{"Please"}}
	sink := &fakeEventSink{}
	loop, clock := newTestLoop(t, source, sink)
	loop.Start(context.Background())

	clock.Advance(testInterval)
	waitFor(t, "recognized label", func() bool { return loop.Snapshot().Recognized == "Please" })
	if loop.Snapshot().Transcript != "" {
		t.Fatalf("append must wait for the delay")
	}

	clock.Advance(testDelay)
	waitFor(t, "append", func() bool { return loop.Snapshot().Transcript == "Please" })
}

func TestDetectionStartThenStopNeverEmits(t *testing.T) {
	t.Parallel()

	source := &sequenceSource{labels: []string{"Hello"}}
	sink := &fakeEventSink{}
	loop, clock := newTestLoop(t, source, sink)

	loop.Start(context.Background())
	if !loop.Stop() {
		t.Fatalf("expected stop to report a running loop")
	}

	clock.Advance(10 * testInterval)
	time.Sleep(20 * time.Millisecond)

	if got := len(sink.snapshotLabels()); got != 0 {
		t.Fatalf("expected no labels after stop, got %d", got)
	}
	if source.callCount() != 0 {
		t.Fatalf("label source must not be consulted after stop")
	}
	if loop.Snapshot().State != domain.DetectionIdle {
		t.Fatalf("expected idle state")
	}
	states := sink.snapshotStates()
	if !reflect.DeepEqual(states, []domain.DetectionState{domain.DetectionDetecting, domain.DetectionIdle}) {
		t.Fatalf("unexpected state events: %v", states)
	}
}

func TestDetectionStopIsNoopWhenIdle(t *testing.T) {
	t.Parallel()

	sink := &fakeEventSink{}
	loop, _ := newTestLoop(t, &sequenceSource{}, sink)
	if loop.Stop() {
		t.Fatalf("stop on idle loop must report false")
	}
	if len(sink.snapshotStates()) != 0 {
		t.Fatalf("idle stop must not emit")
	}
}

func TestDetectionStopLetsScheduledAppendLand(t *testing.T) {
	t.Parallel()

	source := &sequenceSource{labels: []string{"Yes"}}
	sink := &fakeEventSink{}
	loop, clock := newTestLoop(t, source, sink)
	loop.Start(context.Background())

	clock.Advance(testInterval)
	waitFor(t, "recognized label", func() bool { return loop.Snapshot().Recognized == "Yes" })
	loop.Stop()

	clock.Advance(testDelay)
	waitFor(t, "append after stop", func() bool { return loop.Snapshot().Transcript == "Yes" })
}

func TestDetectionResetClearsEverything(t *testing.T) {
	t.Parallel()

	source := &sequenceSource{labels: []string{"Hello", "Help"}}
	sink := &fakeEventSink{}
	loop, clock := newTestLoop(t, source, sink)
	loop.Start(context.Background())

	clock.Advance(testInterval)
	waitFor(t, "first label", func() bool { return loop.Snapshot().Recognized == "Hello" })
	clock.Advance(testDelay)
	waitFor(t, "first append", func() bool { return loop.Snapshot().Transcript == "Hello" })

	clock.Advance(testInterval - testDelay)
	waitFor(t, "second label", func() bool { return loop.Snapshot().Recognized == "Help" })

	loop.Reset()
	clock.Advance(testDelay)
	time.Sleep(20 * time.Millisecond)

	snapshot := loop.Snapshot()
	if snapshot.Recognized != "" || snapshot.Transcript != "" || len(snapshot.Tokens) != 0 {
		t.Fatalf("expected cleared snapshot, got %+v", snapshot)
	}
	if snapshot.State != domain.DetectionIdle {
		t.Fatalf("expected idle after reset, got %s", snapshot.State)
	}
	if sink.clearedCount() != 1 {
		t.Fatalf("expected one cleared event")
	}
}

func TestDetectionDoubleStartKeepsSingleTicker(t *testing.T) {
	t.Parallel()

	source := &sequenceSource{labels: []string{"Sorry", "Welcome"}}
	sink := &fakeEventSink{}
	loop, clock := newTestLoop(t, source, sink)

	if !loop.Start(context.Background()) {
		t.Fatalf("first start must begin detection")
	}
	if loop.Start(context.Background()) {
		t.Fatalf("second start must be a no-op")
	}

	clock.Advance(testInterval)
	waitFor(t, "recognized label", func() bool { return len(sink.snapshotLabels()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if source.callCount() != 1 {
		t.Fatalf("expected a single draw per interval, got %d", source.callCount())
	}
}

func TestDetectionSkipsFailedAndUnknownLabels(t *testing.T) {
	t.Parallel()

	source := &sequenceSource{
		labels: []string{"", "Dance", "No"},
		errs:   []error{errors.New("backend offline"), nil, nil},
	}
	sink := &fakeEventSink{}
	loop, clock := newTestLoop(t, source, sink)
	loop.Start(context.Background())

	for i := 1; i <= 3; i++ {
		clock.Advance(testInterval)
		want := i
		waitFor(t, "draw", func() bool { return source.callCount() == want })
	}
	waitFor(t, "valid label", func() bool { return len(sink.snapshotLabels()) == 1 })

	clock.Advance(testDelay)
	waitFor(t, "append", func() bool { return loop.Snapshot().Transcript == "No" })
	if loop.Snapshot().State != domain.DetectionDetecting {
		t.Fatalf("errors must not stop the loop")
	}
}

func TestDetectionLabelsStayInVocabulary(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	sink := &fakeEventSink{}
	m := metrics.New()
	loop := NewDetectionLoop(labels.NewRandomSource(99), sink, zaptest.NewLogger(t), m, DetectionConfig{
		Interval:    testInterval,
		AppendDelay: testDelay,
		Clock:       clock,
	})
	t.Cleanup(loop.Close)
	loop.Start(context.Background())

	for i := 1; i <= 10; i++ {
		clock.Advance(testInterval)
		want := i
		waitFor(t, "recognized label", func() bool { return len(sink.snapshotLabels()) == want })
	}
	for _, label := range sink.snapshotLabels() {
		if !domain.InVocabulary(label.Text) {
			t.Fatalf("label %q is outside the vocabulary", label.Text)
		}
	}
}
