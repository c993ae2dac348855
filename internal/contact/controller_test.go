package contact

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	siteerrors "github.com/dcmarble/stonesite/internal/errors"
	"github.com/dcmarble/stonesite/internal/logging"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testCreds = Credentials{
	ServiceID:  "service_test",
	TemplateID: "template_test",
	PublicKey:  "public_test",
}

// blockingSender parks every Send until release is closed and records the
// payloads and credentials it was given.
type blockingSender struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	result  error
	seen    []Payload
	seenMu  sync.Mutex
	creds   []Credentials
}

func newBlockingSender(result error) *blockingSender {
	return &blockingSender{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		result:  result,
	}
}

func (s *blockingSender) Send(ctx context.Context, creds Credentials, payload Payload) error {
	s.calls.Add(1)
	s.seenMu.Lock()
	s.seen = append(s.seen, payload)
	s.creds = append(s.creds, creds)
	s.seenMu.Unlock()
	s.entered <- struct{}{}
	<-s.release
	return s.result
}

func fill(t *testing.T, c *Controller, name, email, message string) {
	t.Helper()
	require.NoError(t, c.UpdateField(FieldName, name))
	require.NoError(t, c.UpdateField(FieldEmail, email))
	require.NoError(t, c.UpdateField(FieldMessage, message))
}

func TestNewControllerStartsIdle(t *testing.T) {
	c := NewController(nil, testCreds)

	want := Snapshot{Form: FormState{}, Status: StatusIdle, InFlight: false}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Errorf("initial snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateFieldLastWriteWins(t *testing.T) {
	c := NewController(nil, testCreds)

	writes := []struct {
		field Field
		value string
	}{
		{FieldName, "Ann"},
		{FieldEmail, "ann@example.com"},
		{FieldName, "Annie"},
		{FieldMessage, "  marble floor, etched  "},
		{FieldEmail, ""},
		{FieldEmail, "annie@example.com"},
	}
	for _, w := range writes {
		require.NoError(t, c.UpdateField(w.field, w.value))
	}

	assert.Equal(t, FormState{
		Name:    "Annie",
		Email:   "annie@example.com",
		Message: "  marble floor, etched  ",
	}, c.Snapshot().Form)
}

func TestUpdateFieldUnknown(t *testing.T) {
	c := NewController(nil, testCreds)
	require.NoError(t, c.UpdateField(FieldName, "Ann"))

	err := c.UpdateField(Field("phone"), "555")
	require.Error(t, err)
	assert.True(t, siteerrors.IsValidationError(err))
	assert.Equal(t, "Ann", c.Snapshot().Form.Name)
}

func TestSubmitSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := newBlockingSender(nil)
	c := NewController(sender, testCreds)
	fill(t, c, "Ann", "ann@example.com", "Please quote my countertop")

	done := make(chan Snapshot, 1)
	go func() {
		snap, err := c.Submit(context.Background())
		assert.NoError(t, err)
		done <- snap
	}()

	<-sender.entered
	assert.True(t, c.InFlight(), "in flight while the send is outstanding")
	assert.Equal(t, StatusIdle, c.Snapshot().Status)
	close(sender.release)

	snap := <-done
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.False(t, snap.InFlight)
	assert.Equal(t, FormState{}, snap.Form)
	assert.Equal(t, snap, c.Snapshot())

	require.Len(t, sender.seen, 1)
	assert.Equal(t, Payload{
		FromName:  "Ann",
		FromEmail: "ann@example.com",
		Message:   "Please quote my countertop",
		ToEmail:   DestinationAddress,
	}, sender.seen[0])
	assert.Equal(t, testCreds, sender.creds[0])
}

func TestSubmitFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	var logs bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelInfo, Output: &logs})

	sender := newBlockingSender(errors.New("The public key is invalid"))
	c := NewController(sender, testCreds, WithLogger(logger))
	fill(t, c, "Ann", "ann@example.com", "Hello")
	before := c.Snapshot().Form

	done := make(chan Snapshot, 1)
	go func() {
		snap, err := c.Submit(context.Background())
		assert.NoError(t, err, "send failures are reported through the status")
		done <- snap
	}()

	<-sender.entered
	assert.True(t, c.InFlight())
	close(sender.release)

	snap := <-done
	assert.Equal(t, StatusError, snap.Status)
	assert.False(t, snap.InFlight)
	assert.Equal(t, before, snap.Form)

	out := logs.String()
	assert.Contains(t, out, "ERR_SEND_FAILED")
	assert.Contains(t, out, "component=contact")
	assert.NotContains(t, out, testCreds.PublicKey)
	assert.NotContains(t, out, testCreds.ServiceID)
}

func TestSubmitWhileInFlightDoesNotSendTwice(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := newBlockingSender(nil)
	c := NewController(sender, testCreds)
	fill(t, c, "Ann", "ann@example.com", "Hello")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.Submit(context.Background())
		assert.NoError(t, err)
	}()
	<-sender.entered

	for i := 0; i < 5; i++ {
		snap, err := c.Submit(context.Background())
		assert.ErrorIs(t, err, ErrSubmitInFlight)
		assert.True(t, snap.InFlight)
	}

	close(sender.release)
	wg.Wait()
	assert.Equal(t, int32(1), sender.calls.Load())
	assert.False(t, c.InFlight())
}

func TestSubmitResetsStatusToIdleOnEachAttempt(t *testing.T) {
	fail := true
	var statusInside Status
	var c *Controller
	c = NewController(SenderFunc(func(ctx context.Context, _ Credentials, _ Payload) error {
		statusInside = c.Snapshot().Status
		if fail {
			return errors.New("rejected")
		}
		return nil
	}), testCreds)
	fill(t, c, "Ann", "ann@example.com", "Hello")

	snap, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusError, snap.Status)

	fail = false
	snap, err = c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, statusInside, "status resets before the second send")
	assert.Equal(t, StatusSuccess, snap.Status)
}

func TestSubmitRecoversFromSenderPanic(t *testing.T) {
	c := NewController(SenderFunc(func(context.Context, Credentials, Payload) error {
		panic("transport exploded")
	}), testCreds)
	fill(t, c, "Ann", "ann@example.com", "Hello")

	snap, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusError, snap.Status)
	assert.False(t, snap.InFlight)
	assert.Equal(t, "Ann", snap.Form.Name)
}

func TestSubmitWithoutSender(t *testing.T) {
	c := NewController(nil, testCreds)
	snap, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusError, snap.Status)
}

func TestSubmitPassesContextThrough(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "visitor-1")

	var got interface{}
	c := NewController(SenderFunc(func(ctx context.Context, _ Credentials, _ Payload) error {
		got = ctx.Value(key{})
		return nil
	}), testCreds)

	_, err := c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "visitor-1", got)
}

func TestObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []Snapshot

	c := NewController(SenderFunc(func(context.Context, Credentials, Payload) error {
		return nil
	}), testCreds, WithObserver(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}))

	require.NoError(t, c.UpdateField(FieldName, "Ann"))
	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, "Ann", seen[0].Form.Name)
	assert.True(t, seen[1].InFlight)
	assert.Equal(t, StatusIdle, seen[1].Status)
	assert.False(t, seen[2].InFlight)
	assert.Equal(t, StatusSuccess, seen[2].Status)
}

func TestSubmitDoesNotHoldLockDuringSend(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := newBlockingSender(nil)
	c := NewController(sender, testCreds)

	go func() { _, _ = c.Submit(context.Background()) }()
	<-sender.entered

	updated := make(chan struct{})
	go func() {
		_ = c.UpdateField(FieldMessage, "typed while sending")
		close(updated)
	}()

	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("UpdateField blocked behind an outstanding send")
	}

	close(sender.release)
	require.Eventually(t, func() bool { return !c.InFlight() }, time.Second, 5*time.Millisecond)
}

func TestSubmitFormReplacesWholeForm(t *testing.T) {
	var got Payload
	c := NewController(SenderFunc(func(_ context.Context, _ Credentials, p Payload) error {
		got = p
		return nil
	}), testCreds)
	fill(t, c, "Stale", "stale@example.com", "left over")

	snap, err := c.SubmitForm(context.Background(), FormState{Name: "Bo", Email: "bo@example.com", Message: "Honing"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, snap.Status)

	want := Payload{FromName: "Bo", FromEmail: "bo@example.com", Message: "Honing", ToEmail: DestinationAddress}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentSubmitFormNeverMixesForms(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := newBlockingSender(nil)
	c := NewController(sender, testCreds)
	first := FormState{Name: "Alice", Email: "alice@example.com", Message: "from alice"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.SubmitForm(context.Background(), first)
		assert.NoError(t, err)
	}()
	<-sender.entered

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := c.SubmitForm(context.Background(), FormState{Name: "Bob", Email: "bob@example.com", Message: "from bob"})
			assert.ErrorIs(t, err, ErrSubmitInFlight)
			assert.Equal(t, first, snap.Form)
		}()
	}
	wg.Wait()

	assert.Equal(t, first, c.Snapshot().Form, "rejected submits leave the outstanding form alone")

	close(sender.release)
	<-done

	require.Equal(t, int32(1), sender.calls.Load())
	assert.Equal(t, first.Payload(), sender.seen[0])
}
