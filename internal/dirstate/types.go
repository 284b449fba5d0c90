package dirstate

import "time"

// ItemError is an error reported by the daemon for a single item.
type ItemError struct {
	Message string `json:"message" yaml:"message"`
	Path    string `json:"path" yaml:"path"`
}

// NeededSize is what a device still needs to be in sync.
type NeededSize struct {
	Bytes   uint64 `json:"bytes" yaml:"bytes"`
	Items   uint64 `json:"items" yaml:"items"`
	Deletes uint64 `json:"deletes" yaml:"deletes"`
}

// IsNull reports whether nothing is needed.
func (n NeededSize) IsNull() bool {
	return n.Bytes == 0 && n.Items == 0 && n.Deletes == 0
}

// DeviceCompletion is the completion of a directory on one remote device.
type DeviceCompletion struct {
	Percentage  float64    `json:"percentage" yaml:"percentage"`
	GlobalBytes uint64     `json:"globalBytes" yaml:"globalBytes"`
	Needed      NeededSize `json:"needed" yaml:"needed"`
	LastUpdate  time.Time  `json:"lastUpdate" yaml:"lastUpdate"`
}

// FolderSummary is a folder status snapshot as reported by the daemon.
type FolderSummary struct {
	State       string
	Error       string
	GlobalBytes uint64
	GlobalFiles uint64
	LocalBytes  uint64
	LocalFiles  uint64
	NeedBytes   uint64
	NeedFiles   uint64
}

// Stats are the counts taken from the last accepted summary.
type Stats struct {
	GlobalBytes uint64 `json:"globalBytes" yaml:"globalBytes"`
	GlobalFiles uint64 `json:"globalFiles" yaml:"globalFiles"`
	LocalBytes  uint64 `json:"localBytes" yaml:"localBytes"`
	LocalFiles  uint64 `json:"localFiles" yaml:"localFiles"`
	NeedBytes   uint64 `json:"needBytes" yaml:"needBytes"`
	NeedFiles   uint64 `json:"needFiles" yaml:"needFiles"`
}

// FileChange is a recent local or remote change of an item.
type FileChange struct {
	DirID      string    `json:"dirId" yaml:"dirId"`
	DirLabel   string    `json:"dirLabel" yaml:"dirLabel"`
	Action     string    `json:"action" yaml:"action"`
	ItemType   string    `json:"itemType" yaml:"itemType"`
	Path       string    `json:"path" yaml:"path"`
	ModifiedBy string    `json:"modifiedBy" yaml:"modifiedBy"`
	Local      bool      `json:"local" yaml:"local"`
	EventID    int64     `json:"eventId" yaml:"eventId"`
	EventTime  time.Time `json:"eventTime" yaml:"eventTime"`
}
