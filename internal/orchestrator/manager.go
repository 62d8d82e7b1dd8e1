package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/GriffinCanCode/wake-listener/internal/audio"
	"github.com/GriffinCanCode/wake-listener/internal/config"
	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
	"github.com/GriffinCanCode/wake-listener/internal/events"
	"github.com/GriffinCanCode/wake-listener/internal/orchestrator/conditioner"
	"github.com/GriffinCanCode/wake-listener/internal/orchestrator/detection"
	"github.com/GriffinCanCode/wake-listener/internal/recognition"
	"github.com/GriffinCanCode/wake-listener/internal/trace"
)

// EngineFactory creates the recognition engine once the run has started.
type EngineFactory func(ctx context.Context) (recognition.Engine, error)

// WakeHook is called on the detection goroutine after the wake event has been emitted.
type WakeHook func(ctx context.Context, d detection.Detection, number int64)

// Options wires the manager's collaborators.
type Options struct {
	Config    *config.Config
	Source    audio.Source
	NewEngine EngineFactory
	Events    *events.Channel
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// OnWake hooks run in order for every detection.
	OnWake []WakeHook
}

// Manager owns one listening session.
type Manager struct {
	cfg       *config.Config
	source    audio.Source
	newEngine EngineFactory
	events    *events.Channel
	clock     clock.Clock
	hooks     []WakeHook

	queue       *audio.Queue
	conditioner *conditioner.Conditioner
	machine     *detection.Machine
	state       *State

	sessionID       string
	lastPartial     string
	conditionFailed bool
}

// New creates a manager.
func New(opts Options) *Manager {
	cfg := opts.Config
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Manager{
		cfg:       cfg,
		source:    opts.Source,
		newEngine: opts.NewEngine,
		events:    opts.Events,
		clock:     clk,
		hooks:     opts.OnWake,
		queue:     audio.NewQueue(cfg.QueueCapacity),
		conditioner: conditioner.New(conditioner.Config{
			SampleRate:     cfg.SampleRate,
			NoiseReduction: cfg.NoiseReductionEnabled,
			Amplify:        cfg.AmplifyEnabled,
			Gain:           cfg.AmplifyGain,
			MinInterval:    config.Seconds(cfg.ConditionMinInterval),
		}),
		machine: detection.New(detection.Config{
			Phrases:         cfg.WakePhrases,
			ScoreThreshold:  cfg.ScoreThreshold,
			MinConfidence:   cfg.MinConfidence,
			MinWordDuration: cfg.MinWordDuration,
			HighConfidence:  cfg.HighConfidenceThreshold,
			ConfirmCount:    cfg.WakeConfirmationCount,
			Window:          config.Seconds(cfg.WakeConfirmationWindow),
			Cooldown:        config.Seconds(cfg.WakeCooldown),
		}),
		state:     newState(cfg.ConfidenceBufferSize),
		sessionID: uuid.NewString(),
	}
}

// State returns the shared session state.
func (m *Manager) State() *State { return m.state }

// Queue returns the frame queue between the source and the detection loop.
func (m *Manager) Queue() *audio.Queue { return m.queue }

// SessionID identifies this run in status details.
func (m *Manager) SessionID() string { return m.sessionID }

func (m *Manager) emit(msg events.Message) {
	if m.events != nil {
		m.events.Emit(msg)
	}
}

func (m *Manager) status(status string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["session_id"] = m.sessionID
	m.emit(events.Status(m.clock.Now(), status, details))
}

func (m *Manager) reportError(err error) {
	m.emit(events.Error(m.clock.Now(), err.Error()))
}

// Run loads the engine, starts the source and runs the detection loop until ctx is cancelled or
// the source ends. Setup failures and the end of the source are returned; other runtime failures
// are reported as error events.
func (m *Manager) Run(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "listen")
	defer span.End()
	log := trace.Logger(ctx)

	m.status(events.StatusStarting, map[string]any{"engine": m.cfg.Engine, "source": m.source.Name()})
	m.status(events.StatusInitializing, map[string]any{"model_path": m.cfg.ModelID})

	engine, err := m.newEngine(ctx)
	if err != nil {
		if !apperrors.IsFatal(err) {
			err = apperrors.Wrap(err, apperrors.ModelLoadFailed, "failed to load recognition engine")
		}
		span.Fail(err)
		m.reportError(err)
		return err
	}
	span.SetAttr("engine", engine.Name())

	m.status(events.StatusModelLoaded, map[string]any{
		"model_id":   m.cfg.ModelID,
		"engine":     engine.Name(),
		"chunk_size": m.cfg.ChunkSize,
		"threshold":  m.cfg.ScoreThreshold,
	})
	log.Info("recognition engine ready", "engine", engine.Name(), "strategy", engine.Kind())

	m.status(events.StatusStartingAudio, nil)
	if err := m.source.Start(ctx, m.queue); err != nil {
		if !apperrors.IsCode(err, apperrors.SetupFailed) {
			err = apperrors.Wrap(err, apperrors.SetupFailed, "failed to start audio source")
		}
		span.Fail(err)
		m.reportError(err)
		_ = engine.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	heartbeat := m.clock.Ticker(interval(m.cfg.HeartbeatInterval, DefaultHeartbeatInterval))
	report := m.clock.Ticker(interval(m.cfg.ConfidenceReportInterval, DefaultReportInterval))

	m.state.markStarted(m.clock.Now())
	m.status(events.StatusListening, map[string]any{
		"sample_rate": m.cfg.SampleRate,
		"channels":    Channels,
		"chunk_size":  m.cfg.ChunkSize,
	})
	log.Info("listening", "source", m.source.Name(), "phrases", m.cfg.WakePhrases)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.heartbeatLoop(runCtx, heartbeat)
	}()
	go func() {
		defer wg.Done()
		m.confidenceLoop(runCtx, report)
	}()

	ended := m.consume(runCtx, engine)

	cancel()
	wg.Wait()

	if err := m.shutdown(engine); err != nil {
		log.Warn("shutdown errors", "error", err)
	}

	now := m.clock.Now()
	m.status(events.StatusStopped, map[string]any{
		"uptime_seconds":   m.state.Uptime(now).Seconds(),
		"detections_count": m.state.Detections(),
		"dropped_chunks":   m.queue.Dropped(),
	})
	log.Info("stopped", "detections", m.state.Detections(), "dropped_chunks", m.queue.Dropped())
	if ended != nil {
		span.Fail(ended)
	}
	return ended
}

func (m *Manager) shutdown(engine recognition.Engine) error {
	var result *multierror.Error
	if err := m.source.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	done := make(chan error, 1)
	go func() { done <- engine.Close() }()
	select {
	case err := <-done:
		if err != nil {
			result = multierror.Append(result, err)
		}
	case <-time.After(CloseTimeout):
		result = multierror.Append(result, apperrors.New(apperrors.Timeout, "engine close timed out"))
	}
	return result.ErrorOrNil()
}

// consume is the detection loop. Pop's timeout bounds how long cancellation can go unnoticed.
// It returns an AUDIO_FAULT error when the source runs out of audio before ctx is cancelled.
func (m *Manager) consume(ctx context.Context, engine recognition.Engine) error {
	popTimeout := interval(m.cfg.QueuePopTimeout, DefaultPopTimeout)
	var ended <-chan struct{}
	if e, ok := m.source.(audio.Ender); ok {
		ended = e.Done()
	}

	for ctx.Err() == nil {
		select {
		case <-ended:
			return m.drain(ctx, engine)
		default:
		}

		chunk, ok := m.queue.Pop(ctx, popTimeout)
		if !ok {
			continue
		}
		m.process(ctx, engine, chunk)
	}
	return nil
}

// drain processes what the source pushed before it ended.
func (m *Manager) drain(ctx context.Context, engine recognition.Engine) error {
	for ctx.Err() == nil {
		chunk, ok := m.queue.Pop(ctx, 0)
		if !ok {
			break
		}
		m.process(ctx, engine, chunk)
	}
	if ctx.Err() != nil {
		return nil
	}

	err := apperrors.New(apperrors.AudioFault, "audio source ended").WithMetadata("source", m.source.Name())
	trace.Logger(ctx).Warn("audio source ended", "source", m.source.Name())
	m.reportError(err)
	return err
}

func (m *Manager) process(ctx context.Context, engine recognition.Engine, chunk audio.Chunk) {
	log := trace.Logger(ctx)
	now := m.clock.Now()

	if chunk.Faulted() {
		log.Warn("audio fault", "seq", chunk.Seq, "error", chunk.Err)
		m.reportError(chunk.Err)
		return
	}

	conditioned, err := m.conditioner.Condition(now, chunk)
	if err != nil && !m.conditionFailed {
		m.conditionFailed = true
		log.Warn("conditioning failed, passing audio through", "error", err)
		m.reportError(err)
	}

	out, err := engine.Feed(ctx, conditioned)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("recognition failed", "seq", chunk.Seq, "error", err)
		m.reportError(err)
		return
	}

	switch out.Kind {
	case recognition.Score:
		m.state.scores.Add(out.Score)
	case recognition.Final:
		for _, w := range out.Words {
			m.state.scores.Add(w.Confidence)
		}
		if out.Text != "" {
			log.Debug("final", "text", out.Text, "words", len(out.Words))
		}
		m.lastPartial = ""
	case recognition.Partial:
		if out.Text != m.lastPartial {
			m.lastPartial = out.Text
			log.Debug("partial", "text", out.Text)
		}
	}

	if d, fired := m.machine.Observe(now, out); fired {
		m.fire(ctx, engine, d)
	}
}

func (m *Manager) fire(ctx context.Context, engine recognition.Engine, d detection.Detection) {
	ctx, span := trace.StartSpan(ctx, "wake")
	defer span.End()

	n := m.state.detections.Add(1)
	span.SetAttr("detection_number", n)
	span.SetAttr("phrase", d.Phrase)
	span.SetAttr("confidence", d.Confidence)

	trace.Logger(ctx).Info("wake word detected",
		"phrase", d.Phrase,
		"confidence", d.Confidence,
		"confirmations", d.Confirmations,
		"bypass", d.Bypass,
		"detection_number", n,
	)
	m.emit(events.Wake(d.Timestamp, events.WakeData{
		Confidence:      d.Confidence,
		Model:           m.cfg.ModelID,
		DetectionNumber: n,
	}))

	for _, hook := range m.hooks {
		hook(ctx, d, n)
	}

	if r, ok := engine.(recognition.Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			span.Fail(err)
			trace.Logger(ctx).Warn("engine reset failed", "error", err)
		}
	}
}

func interval(seconds float64, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return config.Seconds(seconds)
}
