// Package contact implements the contact form workflow: per-field state
// capture, a single guarded submit that relays the message through a
// Sender, and the Idle/Success/Error status shown back to the visitor.
//
// A Controller belongs to one visitor. Submit blocks for the duration of
// the remote call; while it is outstanding the controller reports
// InFlight and rejects further submits without contacting the Sender.
// There is no retry: a failed send leaves the form intact so the visitor
// can try again.
package contact

import (
	"context"
	"fmt"
	"sync"

	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/dcmarble/stonesite/internal/logging"
)

// Credentials identify the sending account at the email service. They are
// opaque and must never be logged.
type Credentials struct {
	ServiceID  string
	TemplateID string
	PublicKey  string
}

// Sender delivers one message. Any returned error is a send failure.
type Sender interface {
	Send(ctx context.Context, creds Credentials, payload Payload) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, creds Credentials, payload Payload) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, creds Credentials, payload Payload) error {
	return f(ctx, creds, payload)
}

// ErrSubmitInFlight is returned by Submit while a previous submit is still
// waiting on the Sender.
var ErrSubmitInFlight = errors.NewValidationError(errors.ErrCodeSubmitInFlight,
	"a submission is already in progress")

// Observer is told about every state change.
type Observer func(Snapshot)

// Controller owns one visitor's form state and submission status.
type Controller struct {
	mu       sync.Mutex
	form     FormState
	status   Status
	inFlight bool

	sender    Sender
	creds     Credentials
	logger    logging.Logger
	observers []Observer
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for send failures.
func WithLogger(logger logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger.WithComponent("contact")
		}
	}
}

// WithObserver registers a callback invoked after each state change.
func WithObserver(fn Observer) Option {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// NewController creates a controller in the Idle state with an empty form.
func NewController(sender Sender, creds Credentials, opts ...Option) *Controller {
	c := &Controller{
		sender: sender,
		creds:  creds,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpdateField sets one form field. It performs no validation of the value.
func (c *Controller) UpdateField(field Field, value string) error {
	c.mu.Lock()
	next, err := c.form.With(field, value)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.form = next
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// InFlight reports whether a submit is outstanding.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Submit sends the current form through the Sender and waits for the
// result. A send failure is not returned as an error: it is recorded as
// StatusError in the returned Snapshot and logged. The only error Submit
// returns is ErrSubmitInFlight, in which case the Sender is not called.
//
// ctx is passed to the Sender unchanged; callers that must not abort an
// accepted submission should detach it first.
func (c *Controller) Submit(ctx context.Context) (Snapshot, error) {
	return c.submit(ctx, nil)
}

// SubmitForm replaces the whole form with form and submits it. The in-flight
// check and the form write happen under one lock, so a rejected call leaves
// the outstanding message untouched.
func (c *Controller) SubmitForm(ctx context.Context, form FormState) (Snapshot, error) {
	return c.submit(ctx, &form)
}

func (c *Controller) submit(ctx context.Context, form *FormState) (Snapshot, error) {
	c.mu.Lock()
	if c.inFlight {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrSubmitInFlight
	}
	if form != nil {
		c.form = *form
	}
	c.inFlight = true
	c.status = StatusIdle
	payload := c.form.Payload()
	started := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(started)

	err := c.send(ctx, payload)

	c.mu.Lock()
	c.inFlight = false
	if err == nil {
		c.status = StatusSuccess
		c.form = FormState{}
	} else {
		c.status = StatusError
	}
	done := c.snapshotLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Error(ctx, errors.NewSendFailure(err), "Contact message could not be sent",
			"from_email", payload.FromEmail)
	} else {
		c.logger.Info(ctx, "Contact message sent", "from_email", payload.FromEmail)
	}

	c.notify(done)
	return done, nil
}

// send invokes the Sender, turning a panic into an ordinary failure so the
// in-flight flag is always cleared.
func (c *Controller) send(ctx context.Context, payload Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	if c.sender == nil {
		return fmt.Errorf("no sender configured")
	}
	return c.sender.Send(ctx, c.creds, payload)
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Form:     c.form,
		Status:   c.status,
		InFlight: c.inFlight,
	}
}

func (c *Controller) notify(snap Snapshot) {
	for _, fn := range c.observers {
		fn(snap)
	}
}
