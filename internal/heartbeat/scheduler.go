// Package heartbeat implements a single repeating
// timer that ticks the `heartbeat` hook against a long-lived
// background session, coalescing overlapping ticks instead of
// queueing them.
//
// The ticker-plus-stop-channel shape mirrors
// Registry.StartHealthLoop/StopHealthLoop in wick_gateway/registry.go.
package heartbeat

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/khimaros/opencode-evolve/internal/actions"
	"github.com/khimaros/opencode-evolve/internal/hookcall"
	"github.com/khimaros/opencode-evolve/internal/host"
	"github.com/khimaros/opencode-evolve/internal/session"
)

// ModelSource reports the most recently observed model, so a tick can
// abort if the plugin hasn't seen a real chat turn yet.
type ModelSource interface {
	LastModel() session.ModelRef
}

// NotifyBroadcaster enqueues a notification for every live session
// except source.
type NotifyBroadcaster interface {
	BroadcastNotification(source string, n session.Notification)
}

// DirtyMarker marks the workspace dirty ahead of the next commit.
type DirtyMarker interface {
	MarkDirty()
}

// Scheduler runs one `heartbeat` hook tick per period, skipping a
// tick entirely if the previous one hasn't finished.
type Scheduler struct {
	period time.Duration
	title  string
	agent  string
	sdk    host.SDK
	caller *hookcall.Caller
	models ModelSource
	notify NotifyBroadcaster
	dirty  DirtyMarker
	actor  *actions.Executor
	log    *zap.SugaredLogger

	inProgress atomic.Bool
	stop       chan struct{}

	sessionID string
}

// Config bundles Scheduler's collaborators.
type Config struct {
	Period time.Duration
	Title  string
	Agent  string
	SDK    host.SDK
	Caller *hookcall.Caller
	Models ModelSource
	Notify NotifyBroadcaster
	Dirty  DirtyMarker
	Actor  *actions.Executor
	Log    *zap.SugaredLogger
}

// New creates a Scheduler. Call Start to begin ticking.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		period: cfg.Period,
		title:  cfg.Title,
		agent:  cfg.Agent,
		sdk:    cfg.SDK,
		caller: cfg.Caller,
		models: cfg.Models,
		notify: cfg.Notify,
		dirty:  cfg.Dirty,
		actor:  cfg.Actor,
		log:    cfg.Log,
	}
}

// Start begins the repeating timer in a background goroutine. Call
// Stop to end it.
func (s *Scheduler) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the repeating timer.
func (s *Scheduler) Stop() {
	if s.stop != nil {
		close(s.stop)
	}
}

// tick runs exactly one heartbeat cycle, coalescing overlap: if the
// previous tick is still running, this one is skipped and logged.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.inProgress.CompareAndSwap(false, true) {
		s.log.Debugw("heartbeat tick skipped, previous tick still in progress")
		return
	}
	defer s.inProgress.Store(false)

	sessionID, err := s.resolveSession(ctx)
	if err != nil {
		s.log.Warnw("heartbeat: resolve session failed", "err", err)
		return
	}

	model := s.models.LastModel()
	if model.IsZero() {
		s.log.Debugw("heartbeat tick aborted, no model observed yet")
		return
	}

	out := s.caller.Call(ctx, "heartbeat", map[string]any{"sessions": []any{}}, sessionID)

	if text, ok := out["user"].(string); ok && text != "" {
		if err := s.sdk.Prompt(ctx, sessionID, s.agent, model.ProviderID, model.ModelID, "[heartbeat] "+text); err != nil {
			s.log.Warnw("heartbeat: prompt failed", "err", err)
		}
	}

	if list, ok := out["modified"].([]any); ok && len(list) > 0 && s.dirty != nil {
		s.dirty.MarkDirty()
	}
	if raw, ok := out["notify"].([]any); ok && s.notify != nil {
		for _, n := range raw {
			if obj, ok := n.(map[string]any); ok {
				s.notify.BroadcastNotification(sessionID, obj)
			}
		}
	}
	if raw, ok := out["actions"].([]any); ok && s.actor != nil {
		s.actor.Execute(ctx, raw)
	}
}

// resolveSession lazily finds or creates the heartbeat session,
// caching its id for the process lifetime.
func (s *Scheduler) resolveSession(ctx context.Context) (string, error) {
	if s.sessionID != "" {
		return s.sessionID, nil
	}

	sessions, err := s.sdk.ListSessions(ctx)
	if err != nil {
		return "", err
	}
	for _, sess := range sessions {
		if sess.Title == s.title {
			s.sessionID = sess.ID
			return s.sessionID, nil
		}
	}

	id, err := s.sdk.CreateSession(ctx, s.title)
	if err != nil {
		return "", err
	}
	s.sessionID = id
	return s.sessionID, nil
}
