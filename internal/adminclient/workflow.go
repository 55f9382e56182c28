package adminclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the phase of the delete workflow.
type State int

const (
	Idle State = iota
	Confirming
	Deleting
)

func (s State) String() string {
	switch s {
	case Confirming:
		return "confirming"
	case Deleting:
		return "deleting"
	default:
		return "idle"
	}
}

var (
	ErrBusy        = errors.New("another delete is in progress")
	ErrUnknownItem = errors.New("no such item")
	ErrNotPending  = errors.New("no delete awaiting confirmation")
)

// Level is the severity of a notification.
type Level int

const (
	LevelSuccess Level = iota
	LevelWarning
	LevelError
	// LevelAuth means the session was lost.
	LevelAuth
)

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// Deleter issues the delete request.
type Deleter interface {
	DeleteProperty(ctx context.Context, id string) (Result, error)
}

// Item is one entry of the local list.
type Item struct {
	ID    string
	Title string
}

// Workflow is the confirm-then-delete flow over a local list of items.
// The list only changes after the server confirmed the delete.
type Workflow struct {
	mu       sync.Mutex
	state    State
	pending  string
	items    []Item
	deleter  Deleter
	notifier Notifier
}

func NewWorkflow(deleter Deleter, notifier Notifier, items []Item) *Workflow {
	return &Workflow{
		deleter:  deleter,
		notifier: notifier,
		items:    append([]Item(nil), items...),
	}
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Pending is the id awaiting confirmation or being deleted.
func (w *Workflow) Pending() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Items returns a copy of the local list.
func (w *Workflow) Items() []Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Item(nil), w.items...)
}

// RequestDelete asks for confirmation to delete id.
func (w *Workflow) RequestDelete(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Idle {
		return ErrBusy
	}
	if w.indexOf(id) < 0 {
		return ErrUnknownItem
	}
	w.state = Confirming
	w.pending = id
	return nil
}

// Cancel drops a pending confirmation without contacting the server.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == Confirming {
		w.state = Idle
		w.pending = ""
	}
}

// Confirm sends the pending delete and applies the result. The workflow is
// idle again when it returns, whatever happened.
func (w *Workflow) Confirm(ctx context.Context) (Result, error) {
	w.mu.Lock()
	if w.state != Confirming {
		w.mu.Unlock()
		return Result{}, ErrNotPending
	}
	w.state = Deleting
	id := w.pending
	w.mu.Unlock()

	res, err := w.deleter.DeleteProperty(ctx, id)

	w.mu.Lock()
	defer w.mu.Unlock()
	defer func() {
		w.state = Idle
		w.pending = ""
	}()

	if err != nil {
		w.notifier.Notify(LevelError, fmt.Sprintf("could not reach the server: %v", err))
		return Result{Kind: DomainError, Message: err.Error()}, nil
	}

	switch res.Kind {
	case Redirected:
		w.notifier.Notify(LevelAuth, "session lost, sign in again")
	case MalformedResponse, DomainError:
		w.notifier.Notify(LevelError, "delete failed: "+res.Message)
	case Warning:
		w.remove(id)
		msg := res.Message
		if res.Detail != "" {
			msg += ": " + res.Detail
		}
		w.notifier.Notify(LevelWarning, msg)
	case Success:
		w.remove(id)
		w.notifier.Notify(LevelSuccess, "property deleted")
	}
	return res, nil
}

func (w *Workflow) indexOf(id string) int {
	for i, it := range w.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (w *Workflow) remove(id string) {
	if i := w.indexOf(id); i >= 0 {
		w.items = append(w.items[:i], w.items[i+1:]...)
	}
}
