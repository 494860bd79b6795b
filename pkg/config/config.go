// Package config holds the tunables named throughout spec.md Section 4,
// following the shape of the teacher's pkg/session.Params and
// pkg/discovery.ManagerConfig: a plain struct plus a Default() constructor,
// populated programmatically rather than off a file.
package config

import "time"

// Default values, one per named constant of spec.md Section 4.
const (
	// DefaultTargetMTU is the MTU requested on connect() (spec.md 4.5).
	DefaultTargetMTU = 512

	// MinBLEMTU is the BLE default MTU a peer may grant at minimum.
	MinBLEMTU = 23

	// FrameHeaderSize is the single-byte HAS_MORE header (spec.md 4.2).
	FrameHeaderSize = 1

	// AttHeaderSize is the ATT protocol overhead subtracted from MTU.
	AttHeaderSize = 3

	// DefaultHeartbeatInterval is the CONNECTED-state heartbeat period.
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultHeartbeatAckTimeout is how long to wait for a heartbeat ACK
	// before counting it as missed.
	DefaultHeartbeatAckTimeout = 10 * time.Second

	// MaxMissedHeartbeats forces a disconnect after this many
	// consecutive missed heartbeat ACKs.
	MaxMissedHeartbeats = 2

	// DefaultAckTimeout is the per-send ACK wait (spec.md 4.4 step 4).
	DefaultAckTimeout = 5 * time.Second

	// ReconnectBackoffBase and ReconnectBackoffCap drive the reconnect
	// schedule 1,2,4,8,16s (spec.md 4.5).
	ReconnectBackoffBase = 1 * time.Second
	ReconnectBackoffCap  = 16 * time.Second
	MaxReconnectAttempts = 5

	// DefaultOutboundQueueSize is the bounded FIFO for queued sends
	// during RECONNECTING (spec.md 4.5).
	DefaultOutboundQueueSize = 64

	// RealErrorBackoffBase and RealErrorBackoffCap drive the
	// recognizer/backoff real-error policy (spec.md 4.10).
	RealErrorBackoffBase    = 1 * time.Second
	RealErrorBackoffCap     = 30 * time.Second
	MaxConsecutiveRealError = 5

	// RateLimitBackoff is the fixed delay after a rate-limited error,
	// independent of attempt count (spec.md 4.10).
	RateLimitBackoff = 30 * time.Second

	// PBKDF2Iterations and SessionKeyBytes parameterize deriveKey
	// (spec.md 4.1). Changing either breaks all existing pairings.
	PBKDF2Iterations = 100000
	SessionKeyBytes  = 32

	// DefaultPauseFor is recognizer silence-terminates-segment timeout.
	DefaultPauseFor = 3 * time.Second

	// DefaultListenFor is the recognizer max session duration.
	DefaultListenFor = 30 * time.Second

	// WatchdogInterval is the recognizer watchdog poll period.
	WatchdogInterval = 5 * time.Second

	// MaxStartingDuration and MaxStoppingDuration force a watchdog
	// teardown when the recognizer is stuck in STARTING/STOPPING.
	MaxStartingDuration = 10 * time.Second
	MaxStoppingDuration = 10 * time.Second

	// MaxSilentListening forces a watchdog teardown when LISTENING
	// produces no results for this long.
	MaxSilentListening = 20 * time.Second

	// DefaultInterChunkDelay is the pacing pause between successive
	// outbound packets of one chunked message (spec.md 4.5 "small
	// inter-packet pause"). gostt-writer defaults this to 20ms; spec
	// text only requires "≥10ms" so the default here is the floor.
	DefaultInterChunkDelay = 10 * time.Millisecond

	// RMSNormalizationOffset and RMSNormalizationScale implement the
	// (db+2)/12 mapping of spec.md Open Question 2, exposed here so a
	// platform can recalibrate without touching pkg/recognizer.
	RMSNormalizationOffset = 2.0
	RMSNormalizationScale  = 12.0

	// DefaultMaxReassemblyBytes caps a single in-flight reassembly
	// buffer (spec.md Open Question 3).
	DefaultMaxReassemblyBytes = 64 * 1024

	// DefaultDispatchDebounceWindow is how long the dispatcher waits
	// after the last queued item before draining its text buffer to
	// Transport (spec.md Section 2's "debounced dispatch queue"). A
	// burst of final results arriving faster than this (e.g. a
	// watchdog-forced restart immediately followed by a new result)
	// drains as one ordered batch instead of one Transport.Send per
	// result.
	DefaultDispatchDebounceWindow = 50 * time.Millisecond
)

// Config bundles every tunable in spec.md Section 4 into one value,
// following pkg/session.Params' shape in the teacher: a struct of
// time.Duration/int fields plus a Default() constructor and Validate().
type Config struct {
	TargetMTU int

	HeartbeatInterval   time.Duration
	HeartbeatAckTimeout time.Duration
	MaxMissedHeartbeats int

	AckTimeout time.Duration

	ReconnectBackoffBase time.Duration
	ReconnectBackoffCap  time.Duration
	MaxReconnectAttempts int
	OutboundQueueSize    int

	RealErrorBackoffBase    time.Duration
	RealErrorBackoffCap     time.Duration
	MaxConsecutiveRealError int
	RateLimitBackoff        time.Duration

	PBKDF2Iterations int
	SessionKeyBytes  int

	PauseFor    time.Duration
	ListenFor   time.Duration
	AutoRestart bool
	Locale      string

	WatchdogInterval    time.Duration
	MaxStartingDuration time.Duration
	MaxStoppingDuration time.Duration
	MaxSilentListening  time.Duration

	InterChunkDelay time.Duration

	RMSNormalizationOffset float64
	RMSNormalizationScale  float64

	MaxReassemblyBytes int

	DispatchDebounceWindow time.Duration
}

// Default returns the spec-compliant default configuration.
func Default() Config {
	return Config{
		TargetMTU: DefaultTargetMTU,

		HeartbeatInterval:   DefaultHeartbeatInterval,
		HeartbeatAckTimeout: DefaultHeartbeatAckTimeout,
		MaxMissedHeartbeats: MaxMissedHeartbeats,

		AckTimeout: DefaultAckTimeout,

		ReconnectBackoffBase: ReconnectBackoffBase,
		ReconnectBackoffCap:  ReconnectBackoffCap,
		MaxReconnectAttempts: MaxReconnectAttempts,
		OutboundQueueSize:    DefaultOutboundQueueSize,

		RealErrorBackoffBase:    RealErrorBackoffBase,
		RealErrorBackoffCap:     RealErrorBackoffCap,
		MaxConsecutiveRealError: MaxConsecutiveRealError,
		RateLimitBackoff:        RateLimitBackoff,

		PBKDF2Iterations: PBKDF2Iterations,
		SessionKeyBytes:  SessionKeyBytes,

		PauseFor:    DefaultPauseFor,
		ListenFor:   DefaultListenFor,
		AutoRestart: true,

		WatchdogInterval:    WatchdogInterval,
		MaxStartingDuration: MaxStartingDuration,
		MaxStoppingDuration: MaxStoppingDuration,
		MaxSilentListening:  MaxSilentListening,

		InterChunkDelay: DefaultInterChunkDelay,

		RMSNormalizationOffset: RMSNormalizationOffset,
		RMSNormalizationScale:  RMSNormalizationScale,

		MaxReassemblyBytes: DefaultMaxReassemblyBytes,

		DispatchDebounceWindow: DefaultDispatchDebounceWindow,
	}
}

// EffectivePayload returns the per-packet payload capacity for a
// negotiated MTU: MTU - ATT header - frame header (spec.md 4.2/6).
func EffectivePayload(mtu int) int {
	p := mtu - AttHeaderSize - FrameHeaderSize
	if p < 0 {
		return 0
	}
	return p
}

// Validate reports whether c's durations and counts are all positive
// where the spec requires them to be, following pkg/session.Params.Validate
// in the teacher.
func (c Config) Validate() bool {
	if c.TargetMTU < MinBLEMTU {
		return false
	}
	if c.HeartbeatInterval <= 0 || c.AckTimeout <= 0 {
		return false
	}
	if c.MaxReconnectAttempts <= 0 || c.OutboundQueueSize <= 0 {
		return false
	}
	if c.PBKDF2Iterations <= 0 || c.SessionKeyBytes <= 0 {
		return false
	}
	if c.MaxReassemblyBytes <= 0 {
		return false
	}
	if c.DispatchDebounceWindow < 0 {
		return false
	}
	return true
}
