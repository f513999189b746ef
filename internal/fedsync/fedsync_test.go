package fedsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu      sync.Mutex
	cleared []LogoutEvent
	err     error
}

func (s *recordingStore) Clear(_ context.Context, event LogoutEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cleared = append(s.cleared, event)
	return nil
}

func (s *recordingStore) clearedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cleared)
}

// scriptedTransport replays a fixed set of envelopes per origin and counts
// how many times each origin was opened.
type scriptedTransport struct {
	mu        sync.Mutex
	envelopes map[string][]Envelope
	opens     map[string]int
	openErr   error
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		envelopes: make(map[string][]Envelope),
		opens:     make(map[string]int),
	}
}

func (t *scriptedTransport) reply(origin string, envs ...Envelope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.envelopes[origin] = envs
}

func (t *scriptedTransport) Open(_ context.Context, origin string) (<-chan Envelope, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens[origin]++
	if t.openErr != nil {
		return nil, nil, t.openErr
	}
	ch := make(chan Envelope, len(t.envelopes[origin])+1)
	for _, env := range t.envelopes[origin] {
		ch <- env
	}
	close(ch)
	return ch, func() {}, nil
}

func (t *scriptedTransport) opened(origin string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens[origin]
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []LogoutEvent
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, event LogoutEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func fastConfig(origins ...string) Config {
	return Config{
		TrustedOrigins:   origins,
		FederatedOrigins: origins,
		AckTimeout:       50 * time.Millisecond,
		MaxRetries:       1,
		RetryBackoff:     5 * time.Millisecond,
		OverallTimeout:   time.Second,
	}
}

func ack(origin string) Envelope {
	return Envelope{Origin: origin, Message: Message{Type: MessageType, Source: origin, Success: true}}
}

func TestLogoutConfirmedWhenAllOriginsAck(t *testing.T) {
	store := &recordingStore{}
	transport := newScriptedTransport()
	transport.reply("https://app.pilab.hu", ack("https://app.pilab.hu"))
	transport.reply("https://admin.pilab.hu", ack("https://admin.pilab.hu"))
	broadcaster := &recordingBroadcaster{}

	syncer := NewSynchronizer(fastConfig("https://app.pilab.hu", "https://admin.pilab.hu"), store, transport, broadcaster)
	event := LogoutEvent{UserID: "alice", SessionID: "s1", At: time.Now()}

	result, err := syncer.Logout(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.LocalCleared)
	assert.True(t, result.FederatedSyncConfirmed)
	assert.Equal(t, "acked", result.Origins["https://app.pilab.hu"].State)
	assert.Equal(t, 1, result.Origins["https://app.pilab.hu"].Attempts)
	assert.Equal(t, 1, store.clearedCount())
	assert.Len(t, broadcaster.events, 1)
}

func TestLogoutIgnoresUntrustedOrigin(t *testing.T) {
	store := &recordingStore{}
	transport := newScriptedTransport()
	// A well-formed acknowledgement from an origin outside the allow-list
	// must not resolve the handshake, even with a plausible source field.
	transport.reply("https://app.pilab.hu", Envelope{
		Origin:  "https://evil.example.com",
		Message: Message{Type: MessageType, Source: "https://app.pilab.hu", Success: true},
	})

	syncer := NewSynchronizer(fastConfig("https://app.pilab.hu"), store, transport, nil)

	result, err := syncer.Logout(context.Background(), LogoutEvent{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, result.LocalCleared, "local logout succeeds regardless")
	assert.False(t, result.FederatedSyncConfirmed)
	assert.Equal(t, "timed_out", result.Origins["https://app.pilab.hu"].State)
}

func TestLogoutIgnoresWrongTypeAndFailureMessages(t *testing.T) {
	store := &recordingStore{}
	transport := newScriptedTransport()
	transport.reply("https://app.pilab.hu",
		Envelope{Origin: "https://app.pilab.hu", Message: Message{Type: "UNRELATED", Success: true}},
		Envelope{Origin: "https://app.pilab.hu", Message: Message{Type: MessageType, Success: false}},
	)

	syncer := NewSynchronizer(fastConfig("https://app.pilab.hu"), store, transport, nil)

	result, err := syncer.Logout(context.Background(), LogoutEvent{SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, result.FederatedSyncConfirmed)
}

func TestLogoutRetriesUpToBudget(t *testing.T) {
	store := &recordingStore{}
	transport := newScriptedTransport()
	// No reply scripted: every attempt ends in a timeout.

	cfg := fastConfig("https://app.pilab.hu")
	cfg.MaxRetries = 2
	syncer := NewSynchronizer(cfg, store, transport, nil)

	result, err := syncer.Logout(context.Background(), LogoutEvent{SessionID: "s1"})
	require.NoError(t, err)
	res := result.Origins["https://app.pilab.hu"]
	assert.Equal(t, "timed_out", res.State)
	assert.Equal(t, 3, res.Attempts, "initial attempt plus two retries")
	assert.Equal(t, 3, transport.opened("https://app.pilab.hu"))
}

func TestLogoutClearsLocallyBeforeHandshake(t *testing.T) {
	store := &recordingStore{}
	transport := newScriptedTransport()
	transport.openErr = errors.New("network unreachable")

	syncer := NewSynchronizer(fastConfig("https://app.pilab.hu"), store, transport, nil)

	result, err := syncer.Logout(context.Background(), LogoutEvent{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, result.LocalCleared)
	assert.False(t, result.FederatedSyncConfirmed)
	assert.Equal(t, 1, store.clearedCount(), "local credentials cleared despite the unreachable partner")
}

func TestLogoutFailsWhenLocalClearFails(t *testing.T) {
	store := &recordingStore{err: errors.New("token store down")}
	transport := newScriptedTransport()

	syncer := NewSynchronizer(fastConfig("https://app.pilab.hu"), store, transport, nil)

	result, err := syncer.Logout(context.Background(), LogoutEvent{SessionID: "s1"})
	require.Error(t, err)
	assert.False(t, result.LocalCleared)
	assert.Equal(t, 0, transport.opened("https://app.pilab.hu"), "no federated traffic when the local clear fails")
}

func TestLogoutHonoursOverallTimeout(t *testing.T) {
	store := &recordingStore{}
	transport := newScriptedTransport()

	cfg := Config{
		TrustedOrigins:   []string{"https://a.example", "https://b.example"},
		FederatedOrigins: []string{"https://a.example", "https://b.example"},
		AckTimeout:       40 * time.Millisecond,
		MaxRetries:       5,
		RetryBackoff:     5 * time.Millisecond,
		OverallTimeout:   60 * time.Millisecond,
	}
	syncer := NewSynchronizer(cfg, store, transport, nil)

	start := time.Now()
	result, err := syncer.Logout(context.Background(), LogoutEvent{SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, result.FederatedSyncConfirmed)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "overall budget caps the federated phase")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, defaultAckTimeout, cfg.AckTimeout)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, defaultRetryBackoff, cfg.RetryBackoff)
	assert.Equal(t, defaultOverallTimeout, cfg.OverallTimeout)
}

func TestLocalBroadcasterFansOut(t *testing.T) {
	b := NewLocalBroadcaster()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	event := LogoutEvent{UserID: "alice", SessionID: "s1", At: time.Now()}
	require.NoError(t, b.Broadcast(context.Background(), event))

	select {
	case got := <-sub:
		assert.Equal(t, event.SessionID, got.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered to subscriber")
	}
}
