package dirstate

import "fmt"

// SyncStatus is the semantic status of a synchronized directory.
type SyncStatus uint8

const (
	StatusUnknown SyncStatus = iota
	StatusIdle
	StatusUnshared
	StatusScanning
	StatusSynchronizing
	StatusOutOfSync
)

func (s SyncStatus) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusIdle:
		return "IDLE"
	case StatusUnshared:
		return "UNSHARED"
	case StatusScanning:
		return "SCANNING"
	case StatusSynchronizing:
		return "SYNCHRONIZING"
	case StatusOutOfSync:
		return "OUT_OF_SYNC"
	default:
		return fmt.Sprintf("???(%d)", s)
	}
}

// InProgress reports whether the status is transient (scanning or synchronizing).
func (s SyncStatus) InProgress() bool {
	return s == StatusScanning || s == StatusSynchronizing
}

func (s SyncStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DirType is the folder type configured on the daemon.
type DirType uint8

const (
	DirTypeUnknown DirType = iota
	DirTypeSendReceive
	DirTypeSendOnly
	DirTypeReceiveOnly
)

func (t DirType) String() string {
	switch t {
	case DirTypeUnknown:
		return "UNKNOWN"
	case DirTypeSendReceive:
		return "SEND_RECEIVE"
	case DirTypeSendOnly:
		return "SEND_ONLY"
	case DirTypeReceiveOnly:
		return "RECEIVE_ONLY"
	default:
		return fmt.Sprintf("???(%d)", t)
	}
}

func (t DirType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Status tokens sent by the daemon in folder state fields.
const (
	TokenIdle     = "idle"
	TokenScanning = "scanning"
	TokenSyncing  = "syncing"
	TokenError    = "error"
)

// ClassifyStatus maps a raw daemon state token to a provisional status.
// Unrecognized tokens (including the empty string) fall back to StatusIdle
// and report ok=false.
func ClassifyStatus(token string) (status SyncStatus, ok bool) {
	switch token {
	case TokenIdle:
		return StatusIdle, true
	case TokenScanning:
		return StatusScanning, true
	case TokenSyncing:
		return StatusSynchronizing, true
	case TokenError:
		return StatusOutOfSync, true
	default:
		return StatusIdle, false
	}
}

// ParseDirType maps a raw folder type token to a DirType. The legacy
// "readwrite" and "readonly" tokens are accepted as aliases.
func ParseDirType(token string) (DirType, bool) {
	switch token {
	case "sendreceive", "readwrite":
		return DirTypeSendReceive, true
	case "sendonly", "readonly":
		return DirTypeSendOnly, true
	case "receiveonly":
		return DirTypeReceiveOnly, true
	default:
		return DirTypeUnknown, false
	}
}

// StatusLabel returns the display label of a status.
func StatusLabel(s SyncStatus) string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusUnshared:
		return "unshared"
	case StatusScanning:
		return "scanning"
	case StatusSynchronizing:
		return "synchronizing"
	case StatusOutOfSync:
		return "out of sync"
	default:
		return "unknown"
	}
}

// DirTypeLabel returns the display label of a directory type.
func DirTypeLabel(t DirType) string {
	switch t {
	case DirTypeSendReceive:
		return "Send & Receive"
	case DirTypeSendOnly:
		return "Send only"
	case DirTypeReceiveOnly:
		return "Receive only"
	default:
		return "unknown"
	}
}

// Labeler resolves display labels. Implementations may localize; the state
// machine only ever branches on enum values, never on labels.
type Labeler interface {
	StatusLabel(SyncStatus) string
	DirTypeLabel(DirType) string
	PausedLabel() string
}

// DefaultLabels is the built-in English Labeler.
type DefaultLabels struct{}

func (DefaultLabels) StatusLabel(s SyncStatus) string { return StatusLabel(s) }
func (DefaultLabels) DirTypeLabel(t DirType) string   { return DirTypeLabel(t) }
func (DefaultLabels) PausedLabel() string             { return "paused" }
