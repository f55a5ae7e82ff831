package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khimaros/opencode-evolve/internal/actions"
	"github.com/khimaros/opencode-evolve/internal/host"
	"github.com/khimaros/opencode-evolve/internal/hookcall"
	"github.com/khimaros/opencode-evolve/internal/logx"
	"github.com/khimaros/opencode-evolve/internal/session"
)

type fakeInvoker struct {
	mu      sync.Mutex
	calls   int
	results map[string]map[string]any
	block   chan struct{}
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, _ map[string]any) (map[string]any, bool, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.results[name], true, nil
}

type fakeModels struct{ ref session.ModelRef }

func (f *fakeModels) LastModel() session.ModelRef { return f.ref }

type fakeSDK struct {
	mu       sync.Mutex
	sessions []host.Session
	created  []string
	prompts  []string
}

func (f *fakeSDK) CreateSession(_ context.Context, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, title)
	id := "created-" + title
	f.sessions = append(f.sessions, host.Session{ID: id, Title: title})
	return id, nil
}

func (f *fakeSDK) ListSessions(_ context.Context) ([]host.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.Session{}, f.sessions...), nil
}

func (f *fakeSDK) Send(context.Context, string, string, bool) error { return nil }

func (f *fakeSDK) Prompt(_ context.Context, sessionID, _, _, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, text)
	return nil
}

func (f *fakeSDK) PromptAsync(context.Context, string, string, string, string, string) error { return nil }

func TestTick_AbortsWhenNoModelObserved(t *testing.T) {
	inv := &fakeInvoker{}
	sdk := &fakeSDK{}
	sch := New(Config{
		Title: "heartbeat", Agent: "evolve", SDK: sdk,
		Caller: hookcall.New(inv, nil, logx.Nop()),
		Models: &fakeModels{},
		Log:    logx.Nop(),
	})

	sch.tick(context.Background())
	assert.Equal(t, 0, inv.calls, "heartbeat hook must not be invoked without a known model")
}

func TestTick_CreatesSessionOnceAndReuses(t *testing.T) {
	inv := &fakeInvoker{results: map[string]map[string]any{"heartbeat": {}}}
	sdk := &fakeSDK{}
	sch := New(Config{
		Title: "heartbeat", Agent: "evolve", SDK: sdk,
		Caller: hookcall.New(inv, nil, logx.Nop()),
		Models: &fakeModels{ref: session.ModelRef{ProviderID: "anthropic", ModelID: "claude"}},
		Log:    logx.Nop(),
	})

	sch.tick(context.Background())
	sch.tick(context.Background())

	assert.Len(t, sdk.created, 1, "heartbeat session must be created at most once")
}

func TestTick_SendsHeartbeatPrefixedPromptOnUserResult(t *testing.T) {
	inv := &fakeInvoker{results: map[string]map[string]any{"heartbeat": {"user": "do something"}}}
	sdk := &fakeSDK{}
	sch := New(Config{
		Title: "heartbeat", Agent: "evolve", SDK: sdk,
		Caller: hookcall.New(inv, nil, logx.Nop()),
		Models: &fakeModels{ref: session.ModelRef{ProviderID: "anthropic", ModelID: "claude"}},
		Log:    logx.Nop(),
	})

	sch.tick(context.Background())
	require.Len(t, sdk.prompts, 1)
	assert.Equal(t, "[heartbeat] do something", sdk.prompts[0])
}

func TestTick_AppliesNotifyAndActionsSideEffects(t *testing.T) {
	inv := &fakeInvoker{results: map[string]map[string]any{
		"heartbeat": {
			"notify":  []any{map[string]any{"type": "ping"}},
			"actions": []any{map[string]any{"type": "create_session", "title": "spawned"}},
		},
	}}
	sdk := &fakeSDK{}
	actor := actions.New(sdk, logx.Nop())
	notifier := &fakeNotifier{}
	sch := New(Config{
		Title: "heartbeat", Agent: "evolve", SDK: sdk,
		Caller: hookcall.New(inv, nil, logx.Nop()),
		Models: &fakeModels{ref: session.ModelRef{ProviderID: "a", ModelID: "b"}},
		Notify: notifier,
		Actor:  actor,
		Log:    logx.Nop(),
	})

	sch.tick(context.Background())

	assert.Len(t, notifier.calls, 1)
	assert.Contains(t, sdk.created, "spawned")
}

type fakeNotifier struct {
	calls []session.Notification
}

func (f *fakeNotifier) BroadcastNotification(_ string, n session.Notification) {
	f.calls = append(f.calls, n)
}

type fakeDirty struct {
	marked bool
}

func (f *fakeDirty) MarkDirty() { f.marked = true }

func TestTick_ModifiedFileListMarksDirty(t *testing.T) {
	inv := &fakeInvoker{results: map[string]map[string]any{
		"heartbeat": {"modified": []any{"notes.md"}},
	}}
	sdk := &fakeSDK{}
	dirty := &fakeDirty{}
	sch := New(Config{
		Title: "heartbeat", Agent: "evolve", SDK: sdk,
		Caller: hookcall.New(inv, nil, logx.Nop()),
		Models: &fakeModels{ref: session.ModelRef{ProviderID: "a", ModelID: "b"}},
		Dirty:  dirty,
		Log:    logx.Nop(),
	})

	sch.tick(context.Background())

	assert.True(t, dirty.marked, "a non-empty modified file list must mark the workspace dirty")
}

func TestTick_EmptyModifiedFileListDoesNotMarkDirty(t *testing.T) {
	inv := &fakeInvoker{results: map[string]map[string]any{
		"heartbeat": {"modified": []any{}},
	}}
	sdk := &fakeSDK{}
	dirty := &fakeDirty{}
	sch := New(Config{
		Title: "heartbeat", Agent: "evolve", SDK: sdk,
		Caller: hookcall.New(inv, nil, logx.Nop()),
		Models: &fakeModels{ref: session.ModelRef{ProviderID: "a", ModelID: "b"}},
		Dirty:  dirty,
		Log:    logx.Nop(),
	})

	sch.tick(context.Background())

	assert.False(t, dirty.marked)
}

func TestTick_OverlapIsCoalescedNotQueued(t *testing.T) {
	block := make(chan struct{})
	inv := &fakeInvoker{results: map[string]map[string]any{"heartbeat": {}}, block: block}
	sdk := &fakeSDK{}
	sch := New(Config{
		Title: "heartbeat", Agent: "evolve", SDK: sdk,
		Caller: hookcall.New(inv, nil, logx.Nop()),
		Models: &fakeModels{ref: session.ModelRef{ProviderID: "a", ModelID: "b"}},
		Log:    logx.Nop(),
	})

	done := make(chan struct{})
	go func() {
		sch.tick(context.Background())
		close(done)
	}()

	// Give the first tick time to set inProgress before the second fires.
	time.Sleep(20 * time.Millisecond)
	sch.tick(context.Background())

	close(block)
	<-done

	assert.Equal(t, 1, inv.calls, "overlapping tick must be skipped, not queued")
}
