package recognizer

// PlatformRecognizer is the per-OS speech recognizer handle. Recognizer
// creates one lazily on first Start and destroys it on Stop or fatal
// error (spec.md Section 4.8), following the teacher's small
// platform-backed interface convention (compare
// pkg/discovery.MDNSServerFactory): the platform pushes events back by
// calling Recognizer's On* methods rather than Recognizer polling it.
type PlatformRecognizer interface {
	// Start begins a recognition session for locale.
	Start(locale string) error

	// Stop ends the session. Safe to call more than once.
	Stop() error
}
