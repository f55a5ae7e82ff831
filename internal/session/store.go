package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const maxFifoDepth = 256

// Store holds every piece of cross-callback state the plugin needs
// for the lifetime of the host process: one frozen system prompt and
// one ordered pending-notification queue per session, plus the two
// global FIFOs that correlate messages-transform with the
// system-transform call that follows it.
//
// All fields are guarded by one mutex. store.MemoryStore uses the
// same single-mutex-over-several-maps shape for its coarser-grained
// session bookkeeping; Store follows it here rather than introducing
// per-field locks the plugin never needs under its call volume.
type Store struct {
	mu sync.Mutex

	log *zap.SugaredLogger

	frozenPrompt         map[string][]string
	pendingNotifications map[string][]Notification
	history              map[string][]MessageRecord

	// messagesFifo queues one full captured message-history snapshot
	// per messages-transform call; system-transform pops exactly one
	// per cycle.
	messagesFifo [][]MessageRecord
	// injectionFifo queues one formatted part-list per system-transform
	// call that yields a notification message; messages-transform pops
	// exactly one per cycle.
	injectionFifo [][]MessagePart

	runtimeStatePath string
	runtimeDirty     bool
	lastModel        ModelRef
}

// New creates an empty Store. runtimeStatePath is where RuntimeState
// (currently just the last-seen model) is persisted between runs; an
// empty path disables persistence.
func New(runtimeStatePath string, log *zap.SugaredLogger) *Store {
	s := &Store{
		log:                  log,
		frozenPrompt:         map[string][]string{},
		pendingNotifications: map[string][]Notification{},
		history:              map[string][]MessageRecord{},
		runtimeStatePath:     runtimeStatePath,
	}
	s.loadRuntimeState()
	return s
}

// FreezePrompt records the system prompt array that was in effect for
// sessionID the first time system-transform built one, so every later
// cycle can return it verbatim instead of re-deriving it.
func (s *Store) FreezePrompt(sessionID string, prompt []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frozen := make([]string, len(prompt))
	copy(frozen, prompt)
	s.frozenPrompt[sessionID] = frozen
}

// FrozenPrompt returns the system prompt array frozen for sessionID,
// element count and each element byte-identical to what FreezePrompt
// was given.
func (s *Store) FrozenPrompt(sessionID string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.frozenPrompt[sessionID]
	if !ok {
		return nil, false
	}
	out := make([]string, len(p))
	copy(out, p)
	return out, true
}

// SetHistory caches the message history system-transform observed for
// sessionID, so later hook calls for the same session can be given
// `history` without re-deriving it.
func (s *Store) SetHistory(sessionID string, records []MessageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[sessionID] = records
}

// History returns the cached history for sessionID, if any.
func (s *Store) History(sessionID string) ([]MessageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[sessionID]
	return h, ok
}

// AddPendingNotification appends a notification to sessionID's
// pending queue, preserving arrival order against whatever is already
// queued there.
func (s *Store) AddPendingNotification(sessionID string, n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingNotifications[sessionID] = append(s.pendingNotifications[sessionID], n)
}

// TakePendingNotifications returns and clears the full ordered queue
// of pending notifications for sessionID, if any are queued.
func (s *Store) TakePendingNotifications(sessionID string) ([]Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.pendingNotifications[sessionID]
	if ok {
		delete(s.pendingNotifications, sessionID)
	}
	return n, ok
}

// PushMessagesSnapshot enqueues one captured message-history snapshot
// onto MessagesFifo, evicting the oldest entry once the queue exceeds
// maxFifoDepth so a stuck consumer can't grow it without bound.
func (s *Store) PushMessagesSnapshot(snapshot []MessageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messagesFifo = append(s.messagesFifo, snapshot)
	if len(s.messagesFifo) > maxFifoDepth {
		dropped := len(s.messagesFifo) - maxFifoDepth
		s.log.Warnw("messages fifo overflow, dropping oldest", "dropped", dropped)
		s.messagesFifo = s.messagesFifo[dropped:]
	}
}

// PopMessagesSnapshot dequeues the oldest queued snapshot, if any.
func (s *Store) PopMessagesSnapshot() ([]MessageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messagesFifo) == 0 {
		return nil, false
	}
	out := s.messagesFifo[0]
	s.messagesFifo = s.messagesFifo[1:]
	return out, true
}

// PushInjection enqueues one formatted part-list onto InjectionFifo,
// awaiting the next messages-transform call.
func (s *Store) PushInjection(parts []MessagePart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injectionFifo = append(s.injectionFifo, parts)
	if len(s.injectionFifo) > maxFifoDepth {
		dropped := len(s.injectionFifo) - maxFifoDepth
		s.log.Warnw("injection fifo overflow, dropping oldest", "dropped", dropped)
		s.injectionFifo = s.injectionFifo[dropped:]
	}
}

// PopInjection dequeues the oldest queued part-list, if any.
func (s *Store) PopInjection() ([]MessagePart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.injectionFifo) == 0 {
		return nil, false
	}
	out := s.injectionFifo[0]
	s.injectionFifo = s.injectionFifo[1:]
	return out, true
}

// LastModel returns the most recently recorded model reference, used
// by the heartbeat scheduler to gate firing until a real turn has
// established which model to continue with.
func (s *Store) LastModel() ModelRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastModel
}

// RecordModel updates the last-seen model and persists RuntimeState if
// the value actually changed — the store never writes the state file
// on every call, only when the recorded model differs from disk.
func (s *Store) RecordModel(ref ModelRef) {
	s.mu.Lock()
	changed := ref != s.lastModel
	if changed {
		s.lastModel = ref
	}
	s.mu.Unlock()

	if changed {
		s.persistRuntimeState()
	}
}

type runtimeStateDoc struct {
	Model ModelRef `json:"model"`
}

func (s *Store) loadRuntimeState() {
	if s.runtimeStatePath == "" {
		return
	}
	raw, err := os.ReadFile(s.runtimeStatePath)
	if err != nil {
		return
	}
	var doc runtimeStateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.Warnw("runtime state: malformed file, ignoring", "path", s.runtimeStatePath, "err", err)
		return
	}
	s.lastModel = doc.Model
}

func (s *Store) persistRuntimeState() {
	if s.runtimeStatePath == "" {
		return
	}
	s.mu.Lock()
	ref := s.lastModel
	s.mu.Unlock()

	raw, err := json.MarshalIndent(runtimeStateDoc{Model: ref}, "", "  ")
	if err != nil {
		s.log.Warnw("runtime state: marshal failed", "err", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.runtimeStatePath), 0o755); err != nil {
		s.log.Warnw("runtime state: mkdir failed", "err", err)
		return
	}
	if err := os.WriteFile(s.runtimeStatePath, raw, 0o644); err != nil {
		s.log.Warnw("runtime state: write failed", "err", err)
	}
}
