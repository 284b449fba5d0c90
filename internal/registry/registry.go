package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/openmined/synctray/internal/dirstate"
)

const (
	eventBufferSize          = 64
	DefaultRecentChangesSize = 200
)

var (
	ErrDirNotFound    = errors.New("registry: directory not found")
	ErrRegistryClosed = errors.New("registry: closed")
)

// DirConfig is the daemon-side configuration of a directory.
type DirConfig struct {
	ID        string
	Label     string
	Path      string
	Type      string
	DeviceIDs []string
	Paused    bool
}

// StatusChangedEvent is broadcast whenever the visible status of a directory changes.
type StatusChangedEvent struct {
	Previous dirstate.SyncStatus
	Dir      dirstate.DirSnapshot
}

// Subscription receives status change events until unsubscribed or the registry is closed.
type Subscription struct {
	ID string
	C  <-chan *StatusChangedEvent
}

type RegistryOption func(*Registry)

func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = log
	}
}

func WithLabeler(l dirstate.Labeler) RegistryOption {
	return func(r *Registry) {
		r.labels = l
	}
}

func WithProgressBuilder(b *dirstate.ProgressBuilder) RegistryOption {
	return func(r *Registry) {
		r.progress = b
	}
}

func WithRecentChangesSize(size int) RegistryOption {
	return func(r *Registry) {
		r.recentSize = size
	}
}

type entry struct {
	mu  sync.Mutex
	dir *dirstate.Dir
}

// Registry owns the state of all directories, keyed by directory ID.
// Mutations of one directory are serialized; different directories may be
// updated concurrently.
type Registry struct {
	dirs   map[string]*entry
	order  []string
	mu     sync.RWMutex
	closed bool

	labels     dirstate.Labeler
	progress   *dirstate.ProgressBuilder
	log        *slog.Logger
	recentSize int
	changes    *RecentChanges

	subs  map[string]chan *StatusChangedEvent
	subMu sync.RWMutex
}

func New(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		dirs:       make(map[string]*entry),
		labels:     dirstate.DefaultLabels{},
		progress:   dirstate.NewProgressBuilder(),
		log:        slog.Default(),
		recentSize: DefaultRecentChangesSize,
		subs:       make(map[string]chan *StatusChangedEvent),
	}
	for _, opt := range opts {
		opt(r)
	}

	changes, err := NewRecentChanges(r.recentSize)
	if err != nil {
		return nil, fmt.Errorf("recent changes: %w", err)
	}
	r.changes = changes
	return r, nil
}

// Upsert creates the directory or applies a new configuration to it.
func (r *Registry) Upsert(cfg DirConfig) (dirstate.DirSnapshot, error) {
	e, err := r.getOrCreate(cfg.ID)
	if err != nil {
		return dirstate.DirSnapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.dir
	previous := d.Status()
	wasPaused := d.Paused()

	d.Label = cfg.Label
	d.Path = cfg.Path
	if !d.ApplyDirType(cfg.Type) {
		r.log.Warn("registry", "dir", cfg.ID, "error", "unknown directory type", "type", cfg.Type)
	}
	d.SetDevices(cfg.DeviceIDs)
	sharingChanged := d.RefreshShared()
	d.SetPaused(cfg.Paused)

	snap := d.Snapshot()
	if wasPaused != cfg.Paused || sharingChanged {
		r.broadcast(previous, snap)
	}
	return snap, nil
}

// Update runs fn on the directory under its lock. fn reports whether the
// visible status changed; if so a StatusChangedEvent is broadcast.
func (r *Registry) Update(id string, fn func(d *dirstate.Dir) bool) (bool, error) {
	e, err := r.get(id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.dir.Status()
	if !fn(e.dir) {
		return false, nil
	}
	r.broadcast(previous, e.dir.Snapshot())
	return true, nil
}

// Get returns a snapshot of the directory.
func (r *Registry) Get(id string) (dirstate.DirSnapshot, error) {
	e, err := r.get(id)
	if err != nil {
		return dirstate.DirSnapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir.Snapshot(), nil
}

// Has reports whether a directory is known.
func (r *Registry) Has(id string) bool {
	_, err := r.get(id)
	return err == nil
}

// Snapshots returns snapshots of all directories in configuration order.
func (r *Registry) Snapshots() []dirstate.DirSnapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.dirs[id])
	}
	r.mu.RUnlock()

	snaps := make([]dirstate.DirSnapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snaps = append(snaps, e.dir.Snapshot())
		e.mu.Unlock()
	}
	return snaps
}

// Remove forgets a directory.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dirs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDirNotFound, id)
	}
	delete(r.dirs, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Pause marks a directory as paused.
func (r *Registry) Pause(id string) error {
	return r.setPaused(id, true)
}

// Resume clears the paused flag of a directory.
func (r *Registry) Resume(id string) error {
	return r.setPaused(id, false)
}

func (r *Registry) PauseAll() {
	for _, id := range r.IDs() {
		_ = r.setPaused(id, true)
	}
}

func (r *Registry) ResumeAll() {
	for _, id := range r.IDs() {
		_ = r.setPaused(id, false)
	}
}

func (r *Registry) setPaused(id string, paused bool) error {
	_, err := r.Update(id, func(d *dirstate.Dir) bool {
		if d.Paused() == paused {
			return false
		}
		d.SetPaused(paused)
		return true
	})
	return err
}

// IDs returns the directory IDs in configuration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Reconnect drops all directory state and recent changes. The directories are
// expected to be re-populated from a fresh configuration snapshot.
func (r *Registry) Reconnect() {
	r.mu.Lock()
	r.dirs = make(map[string]*entry)
	r.order = nil
	r.mu.Unlock()

	r.changes.Purge()
	r.log.Info("registry", "status", "Reconnect", "info", "directory state dropped")
}

// AddRecentChange records a file change.
func (r *Registry) AddRecentChange(c dirstate.FileChange) {
	r.changes.Add(c)
}

// RecentChanges returns recent file changes, newest first.
func (r *Registry) RecentChanges() []dirstate.FileChange {
	return r.changes.List()
}

// Overall returns the aggregate status of all active directories. Paused and
// unshared directories are not taken into account.
func (r *Registry) Overall() dirstate.SyncStatus {
	overall := dirstate.StatusUnknown
	rank := func(s dirstate.SyncStatus) int {
		switch s {
		case dirstate.StatusOutOfSync:
			return 4
		case dirstate.StatusSynchronizing:
			return 3
		case dirstate.StatusScanning:
			return 2
		case dirstate.StatusIdle:
			return 1
		default:
			return 0
		}
	}
	for _, snap := range r.Snapshots() {
		if snap.Paused || snap.Status == dirstate.StatusUnshared {
			continue
		}
		if rank(snap.Status) > rank(overall) {
			overall = snap.Status
		}
	}
	return overall
}

// Subscribe returns a subscription for status change events.
func (r *Registry) Subscribe() (*Subscription, error) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	id := uuid.NewString()
	ch := make(chan *StatusChangedEvent, eventBufferSize)
	r.subs[id] = ch
	return &Subscription{ID: id, C: ch}, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (r *Registry) Unsubscribe(id string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
}

func (r *Registry) broadcast(previous dirstate.SyncStatus, snap dirstate.DirSnapshot) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	event := &StatusChangedEvent{Previous: previous, Dir: snap}
	for id, sub := range r.subs {
		select {
		case sub <- event:
		default:
			r.log.Warn("registry", "subscriber", id, "dir", snap.ID, "error", "event buffer full, dropping event")
		}
	}
}

// Close closes all subscriptions.
func (r *Registry) Close() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for id, sub := range r.subs {
		close(sub)
		delete(r.subs, id)
	}
	r.closed = true
}

func (r *Registry) get(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.dirs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDirNotFound, id)
	}
	return e, nil
}

func (r *Registry) getOrCreate(id string) (*entry, error) {
	if id == "" {
		return nil, errors.New("registry: empty directory id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.dirs[id]; ok {
		return e, nil
	}
	e := &entry{
		dir: dirstate.NewDir(id, dirstate.WithLabeler(r.labels), dirstate.WithProgressBuilder(r.progress)),
	}
	r.dirs[id] = e
	r.order = append(r.order, id)
	return e, nil
}
