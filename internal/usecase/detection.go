package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"signspeak/internal/domain"
	"signspeak/internal/errorsx"
	"signspeak/internal/logging"
	"signspeak/internal/metrics"
	"signspeak/internal/ports"
)

const (
	DefaultDetectionInterval = 3 * time.Second
	DefaultAppendDelay       = 500 * time.Millisecond
)

// DetectionConfig controls the simulated recognition cadence.
type DetectionConfig struct {
	Interval    time.Duration
	AppendDelay time.Duration
	Clock       clockwork.Clock
}

// DetectionSnapshot is a consistent view of the loop state.
type DetectionSnapshot struct {
	State      domain.DetectionState
	Recognized string
	Transcript string
	Tokens     []string
}

// DetectionLoop draws a label every interval, shows it as recognized and
// appends it to the transcript after AppendDelay. Sink callbacks run with
// the loop lock held and must not call back into the loop.
type DetectionLoop struct {
	source  ports.LabelSource
	sink    ports.DetectionSink
	log     *zap.Logger
	metrics *metrics.Metrics
	cfg     DetectionConfig

	mu         sync.Mutex
	state      domain.DetectionState
	run        uint64
	cancel     context.CancelFunc
	done       chan struct{}
	recognized string
	transcript transcript
	timers     map[uint64]clockwork.Timer
}

func NewDetectionLoop(
	source ports.LabelSource,
	sink ports.DetectionSink,
	log *zap.Logger,
	m *metrics.Metrics,
	cfg DetectionConfig,
) *DetectionLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDetectionInterval
	}
	if cfg.AppendDelay < 0 {
		cfg.AppendDelay = DefaultAppendDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &DetectionLoop{
		source:     source,
		sink:       sink,
		log:        logging.OrNop(log),
		metrics:    m,
		cfg:        cfg,
		state:      domain.DetectionIdle,
		transcript: newTranscript(),
		timers:     make(map[uint64]clockwork.Timer),
	}
}

// Start begins ticking. It reports false when the loop is already running.
func (l *DetectionLoop) Start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == domain.DetectionDetecting {
		return false
	}

	l.run++
	runCtx, cancel := context.WithCancel(ctx)
	ticker := l.cfg.Clock.NewTicker(l.cfg.Interval)
	done := make(chan struct{})

	l.state = domain.DetectionDetecting
	l.cancel = cancel
	l.done = done

	go l.loop(runCtx, l.run, ticker, done)

	l.log.Info("detection started", zap.Duration("interval", l.cfg.Interval))
	l.sink.DetectionStateChanged(domain.DetectionDetecting)
	return true
}

// Stop cancels the ticker. Appends already scheduled still land. It reports
// false when the loop was idle.
func (l *DetectionLoop) Stop() bool {
	l.mu.Lock()
	if l.state != domain.DetectionDetecting {
		l.mu.Unlock()
		return false
	}
	cancel, done := l.halt()
	l.sink.DetectionStateChanged(domain.DetectionIdle)
	l.mu.Unlock()

	cancel()
	<-done
	l.log.Info("detection stopped")
	return true
}

// Reset stops detection, cancels pending appends and clears the recognized
// label and transcript.
func (l *DetectionLoop) Reset() {
	l.Stop()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopTimers()
	l.recognized = ""
	l.transcript.clear()
	l.sink.RecognitionCleared()
}

// Close stops the loop and drops pending appends without emitting events.
func (l *DetectionLoop) Close() {
	l.mu.Lock()
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	if l.state == domain.DetectionDetecting {
		cancel, done = l.halt()
	}
	l.stopTimers()
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (l *DetectionLoop) Snapshot() DetectionSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return DetectionSnapshot{
		State:      l.state,
		Recognized: l.recognized,
		Transcript: l.transcript.Text(),
		Tokens:     l.transcript.Tokens(),
	}
}

// halt must be called with l.mu held.
func (l *DetectionLoop) halt() (context.CancelFunc, chan struct{}) {
	cancel, done := l.cancel, l.done
	l.state = domain.DetectionIdle
	l.run++
	l.cancel = nil
	l.done = nil
	return cancel, done
}

// stopTimers cancels pending appends and releases their transcript
// positions. It must be called with l.mu held.
func (l *DetectionLoop) stopTimers() {
	for seq, timer := range l.timers {
		timer.Stop()
		delete(l.timers, seq)
		l.transcript.skip(appendTicket{epoch: l.transcript.epoch, seq: seq})
	}
}

func (l *DetectionLoop) loop(ctx context.Context, run uint64, ticker clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			l.tick(ctx, run)
		}
	}
}

func (l *DetectionLoop) tick(ctx context.Context, run uint64) {
	l.metrics.Tick()

	label, err := l.source.Next(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn("label source failed; skipping tick",
				zap.Error(err), zap.String("reason", string(errorsx.Reason(err))))
		}
		return
	}
	if !domain.InVocabulary(label.Text) {
		l.log.Warn("label outside vocabulary; skipping tick", zap.String("label", label.Text))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.run != run || l.state != domain.DetectionDetecting {
		return
	}

	l.recognized = label.Text
	ticket := l.transcript.reserve()
	l.timers[ticket.seq] = l.cfg.Clock.AfterFunc(l.cfg.AppendDelay, func() {
		l.commit(ticket, label.Text)
	})

	l.log.Debug("label recognized", zap.String("label", label.Text), zap.Float64("confidence", label.Confidence))
	l.metrics.Recognized(label.Text)
	l.sink.LabelRecognized(label)
}

func (l *DetectionLoop) commit(ticket appendTicket, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.timers, ticket.seq)
	added := l.transcript.commit(ticket, text)
	if added == 0 {
		return
	}
	for i := 0; i < added; i++ {
		l.metrics.Appended()
	}
	l.sink.TranscriptUpdated(l.transcript.Text())
}
