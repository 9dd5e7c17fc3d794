package client

import (
	"context"
	"sync"
	"time"

	"scratchpad/pkg/logger"
)

// DefaultDebounceDelay is how long the editor waits after the last
// keystroke before persisting through the snapshot endpoint.
const DefaultDebounceDelay = 300 * time.Millisecond

// State names the reconciliation machine's position. Suppression of
// the broadcast echo is a state, not a side-channel flag, so there is
// no ordering ambiguity between "flag set" and "next change fires".
type State int

const (
	// StateIdle: displayed content matches the last persisted or
	// remotely applied snapshot.
	StateIdle State = iota
	// StateLocalEditing: the user typed; a publish went out and a
	// debounced save is pending.
	StateLocalEditing
	// StateApplyingRemote: a broadcast was just applied; the next
	// local-change notification is its echo and must not republish.
	StateApplyingRemote
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLocalEditing:
		return "LocalEditing"
	case StateApplyingRemote:
		return "ApplyingRemote"
	}
	return "Unknown"
}

// Relay is the editor's view of the broadcast transport. Socket is the
// real implementation; tests substitute a recorder.
type Relay interface {
	// Join subscribes to a pad's room; onUpdate is invoked for every
	// pad-updated the room delivers.
	Join(padID string, onUpdate func(content string, lastModified time.Time)) error
	Leave(padID string) error
	Publish(padID, content string) error
	Connected() bool
}

type Options struct {
	// DebounceDelay overrides DefaultDebounceDelay.
	DebounceDelay time.Duration
	// OnApply is the display hook, called after a remote update has
	// been merged into local state.
	OnApply func(content string)
	// OnSaved fires after a debounced save round-trips.
	OnSaved func(lastModified time.Time)
}

// Editor is the per-pad reconciliation state machine. Local edits are
// published immediately and persisted on a debounce; remote updates
// overwrite local state without re-triggering a publish.
type Editor struct {
	padID string
	api   *API
	relay Relay
	opts  Options

	mu           sync.Mutex
	state        State
	content      string
	lastModified time.Time
	closed       bool

	// debounce bookkeeping: a fired timer only acts if its generation
	// is still current, which makes cancellation race-free.
	gen   int
	timer *time.Timer
}

func NewEditor(padID string, api *API, relay Relay, opts Options) *Editor {
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = DefaultDebounceDelay
	}
	return &Editor{
		padID: padID,
		api:   api,
		relay: relay,
		opts:  opts,
	}
}

// Open seeds local content from the snapshot endpoint, then joins the
// pad's room.
func (e *Editor) Open(ctx context.Context) error {
	snap, err := e.api.GetPad(ctx, e.padID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.content = snap.Content
	e.lastModified = snap.LastModified
	e.state = StateIdle
	e.mu.Unlock()

	return e.relay.Join(e.padID, e.ApplyRemote)
}

// LocalChange feeds one local text-change notification through the
// machine. If the previous event was a remote application, this call
// is its echo and is swallowed; otherwise the content is published
// right away and the debounced save is re-armed.
func (e *Editor) LocalChange(content string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	if e.state == StateApplyingRemote {
		e.state = StateIdle
		// A save armed by an earlier local edit would now persist the
		// remote content; its originator already did that.
		e.gen++
		if e.timer != nil {
			e.timer.Stop()
		}
		e.mu.Unlock()
		return
	}

	e.state = StateLocalEditing
	e.content = content

	e.gen++
	gen := e.gen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.opts.DebounceDelay, func() { e.flush(gen) })
	e.mu.Unlock()

	if e.relay.Connected() {
		if err := e.relay.Publish(e.padID, content); err != nil {
			logger.Sugar.Warnf("Failed to publish update for pad %s: %v", e.padID, err)
		}
	}
}

// ApplyRemote merges a broadcast update into local state. The display
// hook typically re-triggers the same change notification local typing
// uses; StateApplyingRemote marks that next notification as the echo.
func (e *Editor) ApplyRemote(content string, lastModified time.Time) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.state = StateApplyingRemote
	e.content = content
	e.lastModified = lastModified
	onApply := e.opts.OnApply
	e.mu.Unlock()

	if onApply != nil {
		onApply(content)
	}
}

// flush runs when the debounce timer fires. A stale generation means a
// newer edit re-armed the timer; StateApplyingRemote means a remote
// update landed in the meantime and its originator owns persistence.
func (e *Editor) flush(gen int) {
	e.mu.Lock()
	if e.closed || gen != e.gen || e.state == StateApplyingRemote {
		e.mu.Unlock()
		return
	}
	content := e.content
	e.state = StateIdle
	e.mu.Unlock()

	res, err := e.api.SavePad(context.Background(), e.padID, content)
	if err != nil {
		logger.Sugar.Errorf("Failed to save pad %s: %v", e.padID, err)
		return
	}

	e.mu.Lock()
	if res.LastModified.After(e.lastModified) {
		e.lastModified = res.LastModified
	}
	onSaved := e.opts.OnSaved
	e.mu.Unlock()

	if onSaved != nil {
		onSaved(res.LastModified)
	}
}

// Close leaves the room and cancels any pending save. An edit typed
// just before closing reaches peers through the immediate publish but
// may never hit the snapshot endpoint.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()

	if err := e.relay.Leave(e.padID); err != nil {
		logger.Sugar.Warnf("Failed to leave pad %s: %v", e.padID, err)
	}
}

// State reports the machine's current position.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Content reports the currently displayed content.
func (e *Editor) Content() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content
}

// LastModified reports the timestamp of the newest snapshot this
// editor has seen, whether it came from a save or a broadcast.
func (e *Editor) LastModified() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastModified
}
