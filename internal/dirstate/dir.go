// Package dirstate tracks the synchronization status of a single directory
// shared through the sync daemon.
//
// A Dir consumes state tokens, folder summaries, item errors and per-device
// completion updates, and derives one authoritative SyncStatus from them.
// Status updates carry a timestamp and anything older than the last accepted
// update is dropped, so polled snapshots and pushed events may interleave
// freely. A Dir is not safe for concurrent use; callers serialize access.
package dirstate

import (
	"cmp"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

type DirOption func(*Dir)

// WithLabeler sets the label provider used by DisplayStatus.
func WithLabeler(l Labeler) DirOption {
	return func(d *Dir) {
		d.labels = l
	}
}

// WithProgressBuilder sets the builder used for download progress.
func WithProgressBuilder(b *ProgressBuilder) DirOption {
	return func(d *Dir) {
		d.progress = b
	}
}

// Dir is the state of one synchronized directory.
type Dir struct {
	ID    string
	Label string
	Path  string

	status   SyncStatus
	paused   bool
	dirType  DirType
	labels   Labeler
	progress *ProgressBuilder

	completionPercentage int
	globalError          string
	itemErrors           mapset.Set[ItemError]
	previousItemErrors   mapset.Set[ItemError]
	deviceIDs            mapset.Set[string]
	completionByDevice   map[string]DeviceCompletion

	stats          Stats
	downloads      []DownloadProgress
	scanPercentage int
	scanRate       float64

	lastStatusUpdate time.Time
	lastScanTime     time.Time
}

func NewDir(id string, opts ...DirOption) *Dir {
	d := &Dir{
		ID:                 id,
		labels:             DefaultLabels{},
		progress:           NewProgressBuilder(),
		itemErrors:         mapset.NewThreadUnsafeSet[ItemError](),
		previousItemErrors: mapset.NewThreadUnsafeSet[ItemError](),
		deviceIDs:          mapset.NewThreadUnsafeSet[string](),
		completionByDevice: make(map[string]DeviceCompletion),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AcceptsUpdate is the staleness guard. It returns false and leaves the Dir
// untouched if t is older than the last accepted update, otherwise it records
// t as the last accepted update.
func (d *Dir) AcceptsUpdate(t time.Time) bool {
	if t.Before(d.lastStatusUpdate) {
		return false
	}
	d.lastStatusUpdate = t
	return true
}

// ApplyStatusToken applies a raw daemon state token received at t.
// It returns whether the status changed.
func (d *Dir) ApplyStatusToken(token string, t time.Time) bool {
	if !d.AcceptsUpdate(t) {
		return false
	}
	return d.applyToken(token, t)
}

// ApplyStatus applies a status reported by an error or idle signal rather
// than a state token.
func (d *Dir) ApplyStatus(status SyncStatus, t time.Time) bool {
	if !d.AcceptsUpdate(t) {
		return false
	}
	switch status {
	case StatusIdle, StatusOutOfSync:
		d.completionPercentage = 0
	}
	return d.finalizeStatus(status, t)
}

// ApplySummary applies a folder status snapshot received at t.
func (d *Dir) ApplySummary(s FolderSummary, t time.Time) bool {
	if !d.AcceptsUpdate(t) {
		return false
	}

	d.stats = Stats{
		GlobalBytes: s.GlobalBytes,
		GlobalFiles: s.GlobalFiles,
		LocalBytes:  s.LocalBytes,
		LocalFiles:  s.LocalFiles,
		NeedBytes:   s.NeedBytes,
		NeedFiles:   s.NeedFiles,
	}
	if s.Error != "" {
		d.globalError = s.Error
	}

	status, _ := ClassifyStatus(s.State)
	if status == StatusSynchronizing {
		d.completionPercentage = 0
		if s.GlobalBytes > 0 && s.NeedBytes <= s.GlobalBytes {
			d.completionPercentage = percentOf(s.GlobalBytes-s.NeedBytes, s.GlobalBytes)
		}
	}
	return d.applyToken(s.State, t)
}

func (d *Dir) applyToken(token string, t time.Time) bool {
	status, ok := ClassifyStatus(token)
	if ok {
		switch status {
		case StatusIdle, StatusOutOfSync:
			d.completionPercentage = 0
		case StatusSynchronizing:
			// make sure the change is reported even if the derived status
			// ends up equal to the current one
			if d.itemErrors.Cardinality() > 0 {
				d.status = StatusUnknown
			}
			// errors of the last attempt are kept to tell known errors from new ones
			d.previousItemErrors = d.itemErrors
			d.itemErrors = mapset.NewThreadUnsafeSet[ItemError]()
		}
	}
	return d.finalizeStatus(status, t)
}

// deriveStatus upgrades idle-like statuses to OutOfSync when items failed,
// or to Unshared when no device shares the directory.
func (d *Dir) deriveStatus(status SyncStatus) SyncStatus {
	switch status {
	case StatusUnknown, StatusIdle, StatusUnshared:
		if d.itemErrors.Cardinality() > 0 {
			return StatusOutOfSync
		}
		if d.deviceIDs.Cardinality() == 0 {
			return StatusUnshared
		}
	}
	return status
}

func (d *Dir) finalizeStatus(status SyncStatus, t time.Time) bool {
	status = d.deriveStatus(status)
	if status != StatusOutOfSync {
		d.globalError = ""
	}
	if status == d.status {
		return false
	}
	if d.status == StatusScanning {
		d.lastScanTime = t
	}
	if status != StatusScanning {
		d.scanPercentage = 0
		d.scanRate = 0
	}
	d.status = status
	return true
}

// ApplyDirType sets the directory type from a raw token. Unrecognized tokens
// set DirTypeUnknown and return false.
func (d *Dir) ApplyDirType(token string) bool {
	t, ok := ParseDirType(token)
	d.dirType = t
	return ok
}

func (d *Dir) Status() SyncStatus            { return d.status }
func (d *Dir) Type() DirType                 { return d.dirType }
func (d *Dir) Paused() bool                  { return d.paused }
func (d *Dir) CompletionPercentage() int     { return d.completionPercentage }
func (d *Dir) GlobalError() string           { return d.globalError }
func (d *Dir) LastStatusUpdate() time.Time   { return d.lastStatusUpdate }
func (d *Dir) LastScanTime() time.Time       { return d.lastScanTime }
func (d *Dir) Stats() Stats                  { return d.stats }
func (d *Dir) Shared() bool                  { return d.deviceIDs.Cardinality() > 0 }
func (d *Dir) SetPaused(paused bool)         { d.paused = paused }
func (d *Dir) SetGlobalError(message string) { d.globalError = message }

// DisplayStatus returns the label to show for the directory.
func (d *Dir) DisplayStatus() string {
	if d.paused {
		return d.labels.PausedLabel()
	}
	return d.labels.StatusLabel(d.status)
}

// PathWithoutTrailingSlash returns Path with all trailing slashes removed.
func (d *Dir) PathWithoutTrailingSlash() string {
	return strings.TrimRight(d.Path, "/")
}

// RemotesUpToDate reports whether no remote device needs anything.
func (d *Dir) RemotesUpToDate() bool {
	for _, c := range d.completionByDevice {
		if !c.Needed.IsNull() {
			return false
		}
	}
	return true
}

// ItemErrors returns the errors of the current sync attempt.
func (d *Dir) ItemErrors() []ItemError {
	return sortedErrors(d.itemErrors)
}

// PreviousItemErrors returns the errors of the previous sync attempt.
func (d *Dir) PreviousItemErrors() []ItemError {
	return sortedErrors(d.previousItemErrors)
}

// IsNewError reports whether e was not already known from the previous attempt.
func (d *Dir) IsNewError(e ItemError) bool {
	return !d.previousItemErrors.Contains(e)
}

// AddItemError records an item error. It returns whether the error was not
// yet part of the current attempt.
func (d *Dir) AddItemError(e ItemError) bool {
	return d.itemErrors.Add(e)
}

// RemoveItemErrors drops all errors of the current attempt for path.
func (d *Dir) RemoveItemErrors(path string) int {
	removed := 0
	for _, e := range d.itemErrors.ToSlice() {
		if e.Path == path {
			d.itemErrors.Remove(e)
			removed++
		}
	}
	return removed
}

// SetItemErrors replaces the errors of the current attempt and returns the
// ones not known from the previous attempt.
func (d *Dir) SetItemErrors(errs []ItemError) []ItemError {
	d.itemErrors = mapset.NewThreadUnsafeSet(errs...)
	fresh := mapset.NewThreadUnsafeSet[ItemError]()
	for _, e := range errs {
		if d.IsNewError(e) {
			fresh.Add(e)
		}
	}
	return sortedErrors(fresh)
}

// SetDevices replaces the set of devices sharing the directory. Completion
// entries of devices no longer sharing it are dropped.
func (d *Dir) SetDevices(ids []string) {
	d.deviceIDs = mapset.NewThreadUnsafeSet(ids...)
	for id := range d.completionByDevice {
		if !d.deviceIDs.Contains(id) {
			delete(d.completionByDevice, id)
		}
	}
}

// RefreshShared re-derives an Idle or Unshared status after the device set
// changed. lastStatusUpdate is left untouched. It returns whether the status
// changed.
func (d *Dir) RefreshShared() bool {
	if d.status != StatusIdle && d.status != StatusUnshared {
		return false
	}
	status := d.deriveStatus(StatusIdle)
	if status == d.status {
		return false
	}
	d.status = status
	return true
}

// DeviceIDs returns the sorted IDs of the devices sharing the directory.
func (d *Dir) DeviceIDs() []string {
	ids := d.deviceIDs.ToSlice()
	slices.Sort(ids)
	return ids
}

// SetCompletion records the completion of the directory on a remote device.
func (d *Dir) SetCompletion(deviceID string, c DeviceCompletion) {
	d.completionByDevice[deviceID] = c
}

func (d *Dir) RemoveCompletion(deviceID string) {
	delete(d.completionByDevice, deviceID)
}

// CompletionByDevice returns a copy of the per-device completion.
func (d *Dir) CompletionByDevice() map[string]DeviceCompletion {
	out := make(map[string]DeviceCompletion, len(d.completionByDevice))
	for id, c := range d.completionByDevice {
		out[id] = c
	}
	return out
}

// SetDownloads replaces the in-flight downloads with ones built from raw
// counters keyed by relative item path.
func (d *Dir) SetDownloads(items map[string]ProgressCounters) {
	d.downloads = make([]DownloadProgress, 0, len(items))
	dirPath := d.PathWithoutTrailingSlash()
	for rel, counters := range items {
		d.downloads = append(d.downloads, d.progress.Build(dirPath, rel, counters))
	}
	slices.SortFunc(d.downloads, func(a, b DownloadProgress) int {
		return cmp.Compare(a.RelativePath, b.RelativePath)
	})
}

// Downloads returns the in-flight downloads sorted by path.
func (d *Dir) Downloads() []DownloadProgress {
	return slices.Clone(d.downloads)
}

func (d *Dir) DownloadSummary() DownloadSummary {
	return d.progress.Summarize(d.downloads)
}

// SetScanProgress records scan progress. It is ignored unless scanning.
func (d *Dir) SetScanProgress(current, total uint64, rate float64) {
	if d.status != StatusScanning {
		return
	}
	d.scanPercentage = percentOf(current, total)
	d.scanRate = rate
}

func (d *Dir) ScanPercentage() int {
	return d.scanPercentage
}

func sortedErrors(s mapset.Set[ItemError]) []ItemError {
	errs := s.ToSlice()
	slices.SortFunc(errs, func(a, b ItemError) int {
		if c := cmp.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return cmp.Compare(a.Message, b.Message)
	})
	return errs
}
