// Package recognizer implements spec.md Section 4.8's speech pipeline:
// the IDLE/STARTING/LISTENING/STOPPING state machine, RMS normalization,
// the watchdog, and pause/resume, plus the error classification and
// restart policy of Section 4.10.
package recognizer

import (
	"sync"
	"time"

	"github.com/speech2prompt/core/pkg/backoff"
	"github.com/speech2prompt/core/pkg/command"
	"github.com/speech2prompt/core/pkg/config"
	serrors "github.com/speech2prompt/core/pkg/errors"
	"github.com/speech2prompt/core/pkg/logging"
)

// Sink receives the outcome of command.Process for a final recognition
// result. The dispatcher (not this package) owns turning it into an
// ordered sequence of outbound Messages (spec.md Section 4.9's dispatch
// rule); Recognizer only hands the parsed Result over, per spec.md
// Section 4.8's "hand text to the command parser" wording.
type Sink interface {
	Dispatch(result command.Result)
}

// Config configures a Recognizer.
type Config struct {
	Config        config.Config
	Factory       func() PlatformRecognizer
	Sink          Sink
	LoggerFactory logging.Factory
}

// Recognizer owns one OS recognizer handle at a time and the state
// machine around it.
type Recognizer struct {
	cfg     config.Config
	factory func() PlatformRecognizer
	sink    Sink
	log     logging.Logger

	mu             sync.Mutex
	state          State
	paused         bool
	active         PlatformRecognizer
	stateEnteredAt time.Time
	lastResultAt   time.Time

	consecutiveRealErrors int
	realErrorPolicy       *backoff.Policy

	soundLevelC chan float64
	partialC    chan string
	errorsC     chan error
	locked      bool // true once MaxConsecutiveRealError is hit; requires Resume to clear

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Recognizer and starts its watchdog. Call Close when
// done to stop the watchdog goroutine.
func New(cfg Config) *Recognizer {
	r := &Recognizer{
		cfg:             cfg.Config,
		factory:         cfg.Factory,
		sink:            cfg.Sink,
		log:             logging.Scoped(cfg.LoggerFactory, "recognizer"),
		state:           StateIdle,
		realErrorPolicy: backoff.NewPolicy(cfg.Config.RealErrorBackoffBase, cfg.Config.RealErrorBackoffCap, cfg.Config.MaxConsecutiveRealError),
		soundLevelC:     make(chan float64, 16),
		partialC:        make(chan string, 16),
		errorsC:         make(chan error, 16),
		done:            make(chan struct{}),
	}
	r.wg.Add(1)
	go r.watchdogLoop()
	return r
}

// Close stops the watchdog and tears down any active recognizer handle.
func (r *Recognizer) Close() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardownLocked()
}

// State returns the current recognizer state.
func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SoundLevel publishes normalized [0,1] RMS levels (spec.md Section 4.8
// rms_changed handling).
func (r *Recognizer) SoundLevel() <-chan float64 { return r.soundLevelC }

// Partial publishes partial recognition text; never dispatched.
func (r *Recognizer) Partial() <-chan string { return r.partialC }

// Errors publishes surfaced (Real, RateLimited) recognizer errors.
func (r *Recognizer) Errors() <-chan error { return r.errorsC }

func (r *Recognizer) emitError(err error) {
	select {
	case r.errorsC <- err:
	default:
	}
}

// Start begins a recognition session (IDLE -> STARTING).
func (r *Recognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked()
}

func (r *Recognizer) startLocked() error {
	if r.state != StateIdle {
		return ErrAlreadyRunning
	}
	active := r.factory()
	if err := active.Start(r.cfg.Locale); err != nil {
		return err
	}
	r.active = active
	r.setStateLocked(StateStarting)
	return nil
}

func (r *Recognizer) setStateLocked(s State) {
	r.state = s
	r.stateEnteredAt = time.Now()
}

// Stop ends the current session, idempotently transitioning to IDLE even
// if the platform handle is unresponsive.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateIdle {
		return ErrNotRunning
	}
	r.setStateLocked(StateStopping)
	r.teardownLocked()
	r.setStateLocked(StateIdle)
	return nil
}

func (r *Recognizer) teardownLocked() {
	if r.active != nil {
		if err := r.active.Stop(); err != nil {
			r.log.Warnf("recognizer: platform stop returned %v (ignored, tearing down anyway)", err)
		}
		r.active = nil
	}
}

// Pause stops recognition and suppresses auto-restart until Resume.
func (r *Recognizer) Pause() {
	r.mu.Lock()
	r.paused = true
	if r.state != StateIdle {
		r.setStateLocked(StateStopping)
		r.teardownLocked()
		r.setStateLocked(StateIdle)
	}
	r.mu.Unlock()
}

// Resume clears the paused flag and restarts the recognizer, as well as
// the error lockout from five consecutive real errors, if any.
func (r *Recognizer) Resume() error {
	r.mu.Lock()
	r.paused = false
	r.locked = false
	r.consecutiveRealErrors = 0
	r.realErrorPolicy.Reset()
	err := r.startLocked()
	r.mu.Unlock()
	return err
}

// OnReadyForSpeech handles the ready_for_speech event (spec.md Section
// 4.8): STARTING -> LISTENING.
func (r *Recognizer) OnReadyForSpeech() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStarting {
		return
	}
	r.setStateLocked(StateListening)
	r.lastResultAt = time.Now()
}

// OnRMSChanged handles rms_changed(db): normalize (db+offset)/scale
// clamped to [0,1] and publish.
func (r *Recognizer) OnRMSChanged(db float64) {
	level := (db + r.cfg.RMSNormalizationOffset) / r.cfg.RMSNormalizationScale
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	select {
	case r.soundLevelC <- level:
	default:
	}
}

// OnPartialResult handles partial_result(text): published, never
// dispatched. Counts as forward progress for the no-results watchdog.
func (r *Recognizer) OnPartialResult(text string) {
	r.mu.Lock()
	r.lastResultAt = time.Now()
	r.mu.Unlock()
	select {
	case r.partialC <- text:
	default:
	}
}

// OnFinalResult handles final_result(text): resets the consecutive-error
// counter, hands text to the command parser, transitions to IDLE, and
// schedules a restart if auto_restart is set and not paused.
func (r *Recognizer) OnFinalResult(text string) {
	result := command.Process(text)

	r.mu.Lock()
	r.consecutiveRealErrors = 0
	r.realErrorPolicy.Reset()
	if r.state == StateListening {
		r.setStateLocked(StateStopping)
		r.teardownLocked()
		r.setStateLocked(StateIdle)
	}
	shouldRestart := r.cfg.AutoRestart && !r.paused && !r.locked
	r.mu.Unlock()

	r.sink.Dispatch(result)

	if shouldRestart {
		r.scheduleRestart(0)
	}
}

// OnError handles error(code): classifies, transitions to IDLE, and
// applies the restart policy of spec.md Section 4.10.
func (r *Recognizer) OnError(code string) {
	recErr := classify(code)

	r.mu.Lock()
	if r.state != StateIdle {
		r.setStateLocked(StateStopping)
		r.teardownLocked()
		r.setStateLocked(StateIdle)
	}
	r.mu.Unlock()

	switch recErr.Class {
	case serrors.RecognizerErrorTransient:
		r.restartAfterTransient()
	case serrors.RecognizerErrorRateLimited:
		r.emitError(recErr)
		r.restartAfterDelay(backoff.RateLimitDelay)
	default: // Real
		r.emitError(recErr)
		r.restartAfterRealError()
	}
}

func (r *Recognizer) restartAfterTransient() {
	r.mu.Lock()
	shouldRestart := r.cfg.AutoRestart && !r.paused && !r.locked
	r.mu.Unlock()
	if shouldRestart {
		r.scheduleRestart(0)
	}
}

func (r *Recognizer) restartAfterRealError() {
	r.mu.Lock()
	r.consecutiveRealErrors++
	delay, ok := r.realErrorPolicy.Next()
	if !ok || r.consecutiveRealErrors >= r.cfg.MaxConsecutiveRealError {
		r.locked = true
		count := r.consecutiveRealErrors
		r.mu.Unlock()
		r.log.Warnf("recognizer: %d consecutive real errors, stopping until user action", count)
		r.emitError(ErrLockedOut)
		return
	}
	shouldRestart := r.cfg.AutoRestart && !r.paused
	r.mu.Unlock()
	if shouldRestart {
		r.scheduleRestart(delay)
	}
}

func (r *Recognizer) restartAfterDelay(delay time.Duration) {
	r.mu.Lock()
	shouldRestart := r.cfg.AutoRestart && !r.paused && !r.locked
	r.mu.Unlock()
	if shouldRestart {
		r.scheduleRestart(delay)
	}
}

func (r *Recognizer) scheduleRestart(delay time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if delay > 0 {
			select {
			case <-r.done:
				return
			case <-time.After(delay):
			}
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.state != StateIdle || r.paused || r.locked {
			return
		}
		if err := r.startLocked(); err != nil {
			r.log.Warnf("recognizer: restart failed: %v", err)
		}
	}()
}

func (r *Recognizer) watchdogLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.checkWatchdog()
		}
	}
}

// checkWatchdog implements spec.md Section 4.8's three stuck-state
// triggers. Any trigger forces a full teardown+recreate, then a restart
// if not paused.
func (r *Recognizer) checkWatchdog() {
	now := time.Now()

	r.mu.Lock()
	stuck := false
	switch r.state {
	case StateStarting:
		stuck = now.Sub(r.stateEnteredAt) > r.cfg.MaxStartingDuration
	case StateStopping:
		stuck = now.Sub(r.stateEnteredAt) > r.cfg.MaxStoppingDuration
	case StateListening:
		stuck = now.Sub(r.lastResultAt) > r.cfg.MaxSilentListening
	}
	if !stuck {
		r.mu.Unlock()
		return
	}

	r.log.Warnf("recognizer: watchdog forcing teardown from %v", r.state)
	r.teardownLocked()
	r.setStateLocked(StateIdle)
	paused := r.paused
	locked := r.locked
	r.mu.Unlock()

	if !paused && !locked {
		r.scheduleRestart(0)
	}
}
