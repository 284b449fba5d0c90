package connector

import (
	"errors"
	"time"

	"github.com/openmined/synctray/internal/dirstate"
)

var (
	// ErrMalformedEvent is returned when an event or snapshot cannot be decoded
	ErrMalformedEvent = errors.New("connector: malformed payload")
	// ErrUnknownEvent is returned for event types the connector does not handle
	ErrUnknownEvent = errors.New("connector: unknown event type")

	errStaleUpdate = errors.New("connector: stale update")
)

// EventType is the type field of a daemon event.
type EventType string

const (
	EventStateChanged         EventType = "StateChanged"
	EventFolderSummary        EventType = "FolderSummary"
	EventFolderErrors         EventType = "FolderErrors"
	EventFolderCompletion     EventType = "FolderCompletion"
	EventDownloadProgress     EventType = "DownloadProgress"
	EventFolderScanProgress   EventType = "FolderScanProgress"
	EventFolderPaused         EventType = "FolderPaused"
	EventFolderResumed        EventType = "FolderResumed"
	EventItemFinished         EventType = "ItemFinished"
	EventLocalChangeDetected  EventType = "LocalChangeDetected"
	EventRemoteChangeDetected EventType = "RemoteChangeDetected"
	EventConfigSaved          EventType = "ConfigSaved"
)

// RawData holds an undecoded JSON value.
type RawData []byte

func (r *RawData) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// Event is the envelope of every daemon event.
type Event struct {
	ID       int64     `json:"id"`
	GlobalID int64     `json:"globalID"`
	Type     EventType `json:"type"`
	Time     time.Time `json:"time"`
	Data     RawData   `json:"data"`
}

type stateChangedData struct {
	Folder   string  `json:"folder"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	Error    string  `json:"error"`
	Duration float64 `json:"duration"`
}

// FolderStatus is the folder status payload, shared by the REST endpoint and
// FolderSummary events.
type FolderStatus struct {
	State        string    `json:"state"`
	StateChanged time.Time `json:"stateChanged"`
	Error        string    `json:"error"`
	GlobalBytes  int64     `json:"globalBytes"`
	GlobalFiles  int64     `json:"globalFiles"`
	LocalBytes   int64     `json:"localBytes"`
	LocalFiles   int64     `json:"localFiles"`
	NeedBytes    int64     `json:"needBytes"`
	NeedFiles    int64     `json:"needFiles"`
}

func (s FolderStatus) summary() dirstate.FolderSummary {
	return dirstate.FolderSummary{
		State:       s.State,
		Error:       s.Error,
		GlobalBytes: clampCount(s.GlobalBytes),
		GlobalFiles: clampCount(s.GlobalFiles),
		LocalBytes:  clampCount(s.LocalBytes),
		LocalFiles:  clampCount(s.LocalFiles),
		NeedBytes:   clampCount(s.NeedBytes),
		NeedFiles:   clampCount(s.NeedFiles),
	}
}

type folderSummaryData struct {
	Folder  string       `json:"folder"`
	Summary FolderStatus `json:"summary"`
}

type folderErrorsData struct {
	Folder string `json:"folder"`
	Errors []struct {
		Error string `json:"error"`
		Path  string `json:"path"`
	} `json:"errors"`
}

type folderCompletionData struct {
	Folder      string  `json:"folder"`
	Device      string  `json:"device"`
	Completion  float64 `json:"completion"`
	GlobalBytes int64   `json:"globalBytes"`
	NeedBytes   int64   `json:"needBytes"`
	NeedItems   int64   `json:"needItems"`
	NeedDeletes int64   `json:"needDeletes"`
}

// downloadProgressData maps folder ID to item path to raw counters.
type downloadProgressData map[string]map[string]dirstate.ProgressCounters

type scanProgressData struct {
	Folder  string  `json:"folder"`
	Current int64   `json:"current"`
	Total   int64   `json:"total"`
	Rate    float64 `json:"rate"`
}

type folderPausedData struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type itemFinishedData struct {
	Item   string  `json:"item"`
	Folder string  `json:"folder"`
	Error  *string `json:"error"`
	Type   string  `json:"type"`
	Action string  `json:"action"`
}

type changeDetectedData struct {
	Action     string `json:"action"`
	Folder     string `json:"folder"`
	FolderID   string `json:"folderID"`
	Label      string `json:"label"`
	Path       string `json:"path"`
	Type       string `json:"type"`
	ModifiedBy string `json:"modifiedBy"`
}

func (c changeDetectedData) folderID() string {
	if c.FolderID != "" {
		return c.FolderID
	}
	return c.Folder
}

// DaemonConfig is the subset of the daemon configuration the connector reads.
type DaemonConfig struct {
	Folders []FolderConfig `json:"folders"`
}

type FolderConfig struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Path    string `json:"path"`
	Type    string `json:"type"`
	Paused  bool   `json:"paused"`
	Devices []struct {
		DeviceID string `json:"deviceID"`
	} `json:"devices"`
}

func clampCount(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
