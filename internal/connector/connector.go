// Package connector turns daemon REST snapshots and event-stream payloads into
// updates of the directory registry. It does not talk to the daemon itself;
// payloads are handed to it already received and timestamped.
package connector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/openmined/synctray/internal/dirstate"
	"github.com/openmined/synctray/internal/registry"
)

// Stats counts how events were handled.
type Stats struct {
	Applied   uint64 `json:"applied" yaml:"applied"`
	Stale     uint64 `json:"stale" yaml:"stale"`
	Ignored   uint64 `json:"ignored" yaml:"ignored"`
	Malformed uint64 `json:"malformed" yaml:"malformed"`
}

type ConnectorOption func(*Connector)

// WithMyID sets the ID of the local device, which is never counted as a
// device sharing a directory.
func WithMyID(id string) ConnectorOption {
	return func(c *Connector) {
		c.myID = id
	}
}

func WithLogger(log *slog.Logger) ConnectorOption {
	return func(c *Connector) {
		c.log = log
	}
}

// Connector applies daemon payloads to a registry.
type Connector struct {
	reg  *registry.Registry
	myID string
	log  *slog.Logger

	applied   atomic.Uint64
	stale     atomic.Uint64
	ignored   atomic.Uint64
	malformed atomic.Uint64
}

func New(reg *registry.Registry, opts ...ConnectorOption) *Connector {
	c := &Connector{
		reg: reg,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Stats() Stats {
	return Stats{
		Applied:   c.applied.Load(),
		Stale:     c.stale.Load(),
		Ignored:   c.ignored.Load(),
		Malformed: c.malformed.Load(),
	}
}

// ApplyConfig applies a daemon configuration snapshot: folders are created or
// reconfigured, folders missing from the snapshot are removed.
func (c *Connector) ApplyConfig(data []byte) error {
	var cfg DaemonConfig
	if err := jsonUnmarshal(data, &cfg); err != nil {
		c.malformed.Add(1)
		return fmt.Errorf("%w: config: %w", ErrMalformedEvent, err)
	}
	return c.applyConfig(&cfg)
}

func (c *Connector) applyConfig(cfg *DaemonConfig) error {
	seen := make(map[string]struct{}, len(cfg.Folders))
	for _, f := range cfg.Folders {
		devices := make([]string, 0, len(f.Devices))
		for _, dev := range f.Devices {
			if dev.DeviceID != "" && dev.DeviceID != c.myID {
				devices = append(devices, dev.DeviceID)
			}
		}
		if _, err := c.reg.Upsert(registry.DirConfig{
			ID:        f.ID,
			Label:     f.Label,
			Path:      f.Path,
			Type:      f.Type,
			DeviceIDs: devices,
			Paused:    f.Paused,
		}); err != nil {
			return fmt.Errorf("folder %q: %w", f.ID, err)
		}
		seen[f.ID] = struct{}{}
	}

	for _, id := range c.reg.IDs() {
		if _, ok := seen[id]; !ok {
			if err := c.reg.Remove(id); err != nil && !errors.Is(err, registry.ErrDirNotFound) {
				return err
			}
			c.log.Info("connector", "dir", id, "status", "Removed")
		}
	}
	return nil
}

// ApplyFolderStatus applies a polled folder status snapshot received at receivedAt.
// It returns whether the status of the directory changed.
func (c *Connector) ApplyFolderStatus(dirID string, data []byte, receivedAt time.Time) (bool, error) {
	var status FolderStatus
	if err := jsonUnmarshal(data, &status); err != nil {
		c.malformed.Add(1)
		return false, fmt.Errorf("%w: folder status: %w", ErrMalformedEvent, err)
	}
	changed, err := c.applySummary(dirID, status, receivedAt)
	if errors.Is(err, errStaleUpdate) {
		c.stale.Add(1)
		c.log.Debug("connector", "dir", dirID, "stale", receivedAt)
		return false, nil
	}
	return changed, err
}

// HandleEventData decodes and handles a single event.
func (c *Connector) HandleEventData(data []byte) (bool, error) {
	ev, err := DecodeEvent(data)
	if err != nil {
		c.malformed.Add(1)
		return false, err
	}
	return c.HandleEvent(ev)
}

// DecodeEvent decodes an event envelope.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := jsonUnmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: event: %w", ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: event %d has no type", ErrMalformedEvent, ev.ID)
	}
	return &ev, nil
}

// HandleEvent applies one event. It returns whether the visible state of a
// directory changed. Events for unknown directories are ignored.
func (c *Connector) HandleEvent(ev *Event) (bool, error) {
	changed, err := c.dispatch(ev)
	switch {
	case errors.Is(err, errStaleUpdate):
		c.stale.Add(1)
		c.log.Debug("connector", "event", ev.Type, "id", ev.ID, "stale", ev.Time)
		return false, nil
	case errors.Is(err, ErrMalformedEvent):
		c.malformed.Add(1)
		return false, err
	case errors.Is(err, ErrUnknownEvent), errors.Is(err, registry.ErrDirNotFound):
		c.ignored.Add(1)
		c.log.Debug("connector", "event", ev.Type, "id", ev.ID, "ignored", err)
		return false, nil
	case err != nil:
		return false, err
	}
	c.applied.Add(1)
	return changed, nil
}

func (c *Connector) dispatch(ev *Event) (bool, error) {
	switch ev.Type {
	case EventStateChanged:
		var data stateChangedData
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		return c.update(data.Folder, ev, func(d *dirstate.Dir) bool {
			if data.To == dirstate.TokenError && data.Error != "" {
				d.SetGlobalError(data.Error)
			}
			return d.ApplyStatusToken(data.To, ev.Time)
		})

	case EventFolderSummary:
		var data folderSummaryData
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		return c.applySummary(data.Folder, data.Summary, ev.Time)

	case EventFolderErrors:
		var data folderErrorsData
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		errs := make([]dirstate.ItemError, 0, len(data.Errors))
		for _, e := range data.Errors {
			errs = append(errs, dirstate.ItemError{Message: e.Error, Path: e.Path})
		}
		return c.update(data.Folder, ev, func(d *dirstate.Dir) bool {
			fresh := d.SetItemErrors(errs)
			for _, e := range fresh {
				c.log.Warn("connector", "dir", d.ID, "path", e.Path, "error", e.Message)
			}
			changed := d.ApplyStatus(dirstate.StatusOutOfSync, ev.Time)
			return changed || len(fresh) > 0
		})

	case EventItemFinished:
		var data itemFinishedData
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		if data.Error == nil || *data.Error == "" {
			return c.reg.Update(data.Folder, func(d *dirstate.Dir) bool {
				d.RemoveItemErrors(data.Item)
				return false
			})
		}
		itemErr := dirstate.ItemError{Message: *data.Error, Path: data.Item}
		return c.update(data.Folder, ev, func(d *dirstate.Dir) bool {
			added := d.AddItemError(itemErr)
			if added && d.IsNewError(itemErr) {
				c.log.Warn("connector", "dir", d.ID, "path", itemErr.Path, "error", itemErr.Message)
			}
			return d.ApplyStatus(dirstate.StatusOutOfSync, ev.Time) || added
		})

	case EventFolderCompletion:
		var data folderCompletionData
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		completion := dirstate.DeviceCompletion{
			Percentage:  data.Completion,
			GlobalBytes: clampCount(data.GlobalBytes),
			Needed: dirstate.NeededSize{
				Bytes:   clampCount(data.NeedBytes),
				Items:   clampCount(data.NeedItems),
				Deletes: clampCount(data.NeedDeletes),
			},
			LastUpdate: ev.Time,
		}
		return c.reg.Update(data.Folder, func(d *dirstate.Dir) bool {
			before := d.RemotesUpToDate()
			d.SetCompletion(data.Device, completion)
			return before != d.RemotesUpToDate()
		})

	case EventDownloadProgress:
		var data downloadProgressData
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		for _, id := range c.reg.IDs() {
			items := data[id]
			if _, err := c.reg.Update(id, func(d *dirstate.Dir) bool {
				d.SetDownloads(items)
				return false
			}); err != nil && !errors.Is(err, registry.ErrDirNotFound) {
				return false, err
			}
		}
		return false, nil

	case EventFolderScanProgress:
		var data scanProgressData
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		return c.reg.Update(data.Folder, func(d *dirstate.Dir) bool {
			d.SetScanProgress(clampCount(data.Current), clampCount(data.Total), data.Rate)
			return false
		})

	case EventFolderPaused, EventFolderResumed:
		var data folderPausedData
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		paused := ev.Type == EventFolderPaused
		return c.reg.Update(data.ID, func(d *dirstate.Dir) bool {
			if d.Paused() == paused {
				return false
			}
			d.SetPaused(paused)
			return true
		})

	case EventLocalChangeDetected, EventRemoteChangeDetected:
		var data changeDetectedData
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		c.reg.AddRecentChange(dirstate.FileChange{
			DirID:      data.folderID(),
			DirLabel:   data.Label,
			Action:     data.Action,
			ItemType:   data.Type,
			Path:       data.Path,
			ModifiedBy: data.ModifiedBy,
			Local:      ev.Type == EventLocalChangeDetected,
			EventID:    ev.ID,
			EventTime:  ev.Time,
		})
		return false, nil

	case EventConfigSaved:
		var data DaemonConfig
		if err := c.decode(ev, &data); err != nil {
			return false, err
		}
		return false, c.applyConfig(&data)

	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}
}

func (c *Connector) applySummary(dirID string, status FolderStatus, at time.Time) (bool, error) {
	return c.updateAt(dirID, at, func(d *dirstate.Dir) bool {
		return d.ApplySummary(status.summary(), at)
	})
}

func (c *Connector) update(dirID string, ev *Event, fn func(d *dirstate.Dir) bool) (bool, error) {
	return c.updateAt(dirID, ev.Time, fn)
}

// updateAt runs a timestamped status mutation, skipping it entirely with
// errStaleUpdate when at is older than the last accepted status update.
func (c *Connector) updateAt(dirID string, at time.Time, fn func(d *dirstate.Dir) bool) (bool, error) {
	stale := false
	changed, err := c.reg.Update(dirID, func(d *dirstate.Dir) bool {
		if at.Before(d.LastStatusUpdate()) {
			stale = true
			return false
		}
		return fn(d)
	})
	if err != nil {
		return false, err
	}
	if stale {
		return false, errStaleUpdate
	}
	return changed, nil
}

func (c *Connector) decode(ev *Event, v any) error {
	if err := jsonUnmarshal(ev.Data, v); err != nil {
		return fmt.Errorf("%w: %s %d: %w", ErrMalformedEvent, ev.Type, ev.ID, err)
	}
	return nil
}
