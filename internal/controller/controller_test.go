package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AssistChat/internal/completion"
	"AssistChat/internal/config"
	"AssistChat/internal/session"
	"AssistChat/internal/storage"
)

type fakeCompleter struct {
	mu      sync.Mutex
	windows [][]session.Message
	reply   string
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, window []session.Message) (session.Message, error) {
	f.mu.Lock()
	f.windows = append(f.windows, window)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return session.Message{}, f.err
	}
	return session.NewMessage(session.RoleAssistant, f.reply), nil
}

func newTestController(t *testing.T, completer completion.Completer) (*Controller, *session.Store) {
	t.Helper()
	store := session.NewStore(storage.NewMemory(), "", nil)
	return New(store, completer, nil), store
}

func TestNewStartsFromGreeting(t *testing.T) {
	c, _ := newTestController(t, &fakeCompleter{})

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, session.GreetingText, msgs[0].Content)
	assert.Equal(t, Idle, c.State())
}

func TestSubmitAppendsUserAndReply(t *testing.T) {
	fc := &fakeCompleter{reply: "O(n log n)"}
	c, store := newTestController(t, fc)

	for i := 1; i <= 3; i++ {
		before := len(c.Messages())
		require.True(t, c.Submit(context.Background(), fmt.Sprintf("  question %d  ", i)))

		msgs := c.Messages()
		require.Len(t, msgs, before+2)
		assert.Equal(t, session.RoleUser, msgs[before].Role)
		assert.Equal(t, fmt.Sprintf("question %d", i), msgs[before].Content)
		assert.Equal(t, session.RoleAssistant, msgs[before+1].Role)
		assert.Equal(t, "O(n log n)", msgs[before+1].Content)
	}

	assert.False(t, c.Loading())
	assert.Len(t, store.Load().Messages, 7)
}

func TestSubmitBlankIsNoop(t *testing.T) {
	fc := &fakeCompleter{reply: "x"}
	c, _ := newTestController(t, fc)

	assert.False(t, c.Submit(context.Background(), "   "))
	assert.False(t, c.Submit(context.Background(), "\n\t"))

	assert.Len(t, c.Messages(), 1)
	assert.False(t, c.Loading())
	assert.Empty(t, fc.windows)
}

func TestSubmitRejectsReentry(t *testing.T) {
	fc := &fakeCompleter{reply: "done", gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c, _ := newTestController(t, fc)

	result := make(chan bool, 1)
	go func() { result <- c.Submit(context.Background(), "a") }()

	<-fc.entered
	assert.True(t, c.Loading())
	assert.False(t, c.Submit(context.Background(), "b"))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[1].Content)

	close(fc.gate)
	require.True(t, <-result)

	msgs = c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "done", msgs[2].Content)
	assert.False(t, c.Loading())
	for _, m := range msgs {
		assert.NotEqual(t, "b", m.Content)
	}
}

func TestContextWindowIsBounded(t *testing.T) {
	kv := storage.NewMemory()
	store := session.NewStore(kv, "", nil)
	history := make([]session.Message, 15)
	for i := range history {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		history[i] = session.NewMessage(role, fmt.Sprintf("m%d", i))
	}
	require.NoError(t, store.Save(history))

	fc := &fakeCompleter{reply: "ok"}
	c := New(store, fc, nil)
	require.True(t, c.Submit(context.Background(), "new"))

	require.Len(t, fc.windows, 1)
	window := fc.windows[0]
	require.Len(t, window, 11)
	assert.Equal(t, "m5", window[0].Content)
	assert.Equal(t, "m14", window[9].Content)
	assert.Equal(t, "new", window[10].Content)
}

func TestContextWindowShortHistory(t *testing.T) {
	next := session.NewMessage(session.RoleUser, "q")
	window := contextWindow([]session.Message{session.Greeting()}, next)
	require.Len(t, window, 2)
	assert.Equal(t, "q", window[1].Content)
}

func TestSubmitSurfacesFailureAsMessage(t *testing.T) {
	fc := &fakeCompleter{err: &completion.ProviderError{Message: "quota exceeded"}}
	c, _ := newTestController(t, fc)

	require.True(t, c.Submit(context.Background(), "hi"))

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, session.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "Error: quota exceeded", msgs[2].Content)
	assert.False(t, c.Loading())
}

func TestSubmitSurfacesPlainError(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("boom")}
	c, _ := newTestController(t, fc)

	require.True(t, c.Submit(context.Background(), "hi"))
	assert.Equal(t, "Error: boom", c.Messages()[2].Content)
}

func TestSubmitProviderUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"invalid key"}}`)
	}))
	defer srv.Close()

	client := completion.NewClient(config.ProviderConfig{Endpoint: srv.URL, APIKey: "nope"}, completion.Options{})
	c, _ := newTestController(t, client)

	require.True(t, c.Submit(context.Background(), "hello"))

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, session.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "Error: invalid key", msgs[2].Content)
}

func TestSubmitDemoMode(t *testing.T) {
	client := completion.NewClient(config.ProviderConfig{}, completion.Options{FallbackDelay: 5 * time.Millisecond})
	c, _ := newTestController(t, client)

	require.True(t, c.Submit(context.Background(), "hello"))
	assert.Equal(t, completion.DemoText, c.Messages()[2].Content)
}

func TestClearIsIdempotent(t *testing.T) {
	c, store := newTestController(t, &fakeCompleter{reply: "r"})
	require.True(t, c.Submit(context.Background(), "q"))

	c.Clear()
	first := c.Messages()
	c.Clear()
	second := c.Messages()

	for _, msgs := range [][]session.Message{first, second} {
		require.Len(t, msgs, 1)
		assert.Equal(t, session.ClearedText, msgs[0].Content)
	}
	assert.Len(t, store.Load().Messages, 1)
}

func TestClearDuringRequest(t *testing.T) {
	fc := &fakeCompleter{reply: "late reply", gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c, _ := newTestController(t, fc)

	done := make(chan bool, 1)
	go func() { done <- c.Submit(context.Background(), "slow question") }()
	<-fc.entered

	c.Clear()
	assert.True(t, c.Loading())
	require.Len(t, c.Messages(), 1)

	close(fc.gate)
	<-done

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, session.ClearedText, msgs[0].Content)
	assert.Equal(t, "late reply", msgs[1].Content)
	assert.False(t, c.Loading())
}

func TestSubscribersSeeEveryTransition(t *testing.T) {
	c, _ := newTestController(t, &fakeCompleter{reply: "r"})

	var mu sync.Mutex
	var seen []Snapshot
	c.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.True(t, c.Submit(context.Background(), "q"))
	c.Clear()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.True(t, seen[0].Loading)
	assert.Len(t, seen[0].Messages, 2)
	assert.False(t, seen[1].Loading)
	assert.Len(t, seen[1].Messages, 3)
	assert.Len(t, seen[2].Messages, 1)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i].Version, seen[i-1].Version)
	}
}

func TestClearDuringReleaseLeavesSubscribersOnLatest(t *testing.T) {
	c, _ := newTestController(t, &fakeCompleter{reply: "r"})

	stalled := make(chan struct{})
	resume := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var last Snapshot
	c.Subscribe(func(s Snapshot) {
		if !s.Loading && len(s.Messages) == 3 {
			once.Do(func() {
				close(stalled)
				<-resume
			})
		}
		mu.Lock()
		last = s
		mu.Unlock()
	})

	done := make(chan bool, 1)
	go func() { done <- c.Submit(context.Background(), "q") }()
	<-stalled

	c.Clear()
	close(resume)
	require.True(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	current := c.Snapshot()
	assert.Equal(t, current.Version, last.Version)
	require.Len(t, last.Messages, 1)
	assert.Equal(t, session.ClearedText, last.Messages[0].Content)
	assert.False(t, last.Loading)
}

func TestSnapshotDoesNotBumpVersion(t *testing.T) {
	c, _ := newTestController(t, &fakeCompleter{reply: "r"})

	before := c.Snapshot().Version
	assert.Equal(t, before, c.Snapshot().Version)

	c.Clear()
	assert.Equal(t, before+1, c.Snapshot().Version)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "sending", Sending.String())
}
