// Package dispatch implements spec.md Section 4.9's dispatch rule and the
// "debounced dispatch queue" named in Section 2: it turns a command.Result
// into an ordered TEXT/COMMAND/TEXT send sequence against a Transport,
// coalescing bursts of results that arrive faster than the debounce
// window into one ordered drain. It holds no long-lived state beyond
// that text buffer, per spec.md Section 3's ownership note.
package dispatch

import (
	"sync"
	"time"

	"github.com/speech2prompt/core/pkg/command"
	"github.com/speech2prompt/core/pkg/config"
	"github.com/speech2prompt/core/pkg/logging"
	"github.com/speech2prompt/core/pkg/message"
)

// Sender is the subset of Transport the dispatcher needs: send a kind
// and payload, get back ACK success or an error (spec.md Section 4.6).
type Sender interface {
	Send(kind message.Kind, payload []byte) (bool, error)
}

// Config configures a Dispatcher.
type Config struct {
	Config        config.Config
	Sender        Sender
	LoggerFactory logging.Factory
}

type item struct {
	kind    message.Kind
	payload []byte
}

// Dispatcher buffers outbound items from recognizer.Sink.Dispatch calls
// and drains them, in arrival order, once DispatchDebounceWindow passes
// without a new arrival.
type Dispatcher struct {
	sender Sender
	window time.Duration
	log    logging.Logger

	mu      sync.Mutex
	buffer  []item
	timer   *time.Timer
	pending bool // true between a wg.Add(1) and its matching drain's wg.Done()

	wg sync.WaitGroup
}

// New constructs a Dispatcher. It implements recognizer.Sink.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		sender: cfg.Sender,
		window: cfg.Config.DispatchDebounceWindow,
		log:    logging.Scoped(cfg.LoggerFactory, "dispatch"),
	}
}

// Dispatch implements recognizer.Sink: it splits result into the
// TEXT/COMMAND/TEXT sequence of spec.md Section 4.9's dispatch rule,
// appends whichever parts are present to the pending buffer, and
// (re)starts the debounce timer.
func (d *Dispatcher) Dispatch(result command.Result) {
	var items []item
	if result.TextBefore != "" {
		items = append(items, item{kind: message.KindText, payload: []byte(result.TextBefore)})
	}
	if result.HasCommand {
		items = append(items, item{kind: message.KindCommand, payload: []byte(result.Command.String())})
	}
	if result.TextAfter != "" {
		items = append(items, item{kind: message.KindText, payload: []byte(result.TextAfter)})
	}
	if len(items) == 0 {
		return
	}

	d.mu.Lock()
	d.buffer = append(d.buffer, items...)
	if d.timer != nil {
		d.timer.Stop()
	}
	if !d.pending {
		d.pending = true
		d.wg.Add(1)
	}
	d.timer = time.AfterFunc(d.window, d.drain)
	d.mu.Unlock()
}

// Flush drains any pending buffer immediately, bypassing the debounce
// window. Callers tear down with this before discarding a Dispatcher so
// a trailing result isn't silently lost. A no-op if nothing is pending.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.drain()
}

// Wait blocks until every Dispatch call's eventual drain has completed.
// Primarily for tests that need a deterministic point after which the
// Sender has seen every queued send.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	pending := d.buffer
	d.buffer = nil
	d.pending = false
	d.mu.Unlock()

	defer d.wg.Done()

	for _, it := range pending {
		ok, err := d.sender.Send(it.kind, it.payload)
		if err != nil {
			d.log.Warnf("dispatch: send %s failed: %v", it.kind, err)
			continue
		}
		if !ok {
			d.log.Warnf("dispatch: send %s acked with failure", it.kind)
		}
	}
}
