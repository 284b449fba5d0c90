package dirstate

import "time"

// DirSnapshot is an immutable copy of a Dir, safe to hand to other goroutines.
type DirSnapshot struct {
	ID                   string                      `json:"id" yaml:"id"`
	Label                string                      `json:"label" yaml:"label"`
	Path                 string                      `json:"path" yaml:"path"`
	Type                 DirType                     `json:"type" yaml:"type"`
	TypeLabel            string                      `json:"typeLabel" yaml:"typeLabel"`
	Status               SyncStatus                  `json:"status" yaml:"status"`
	DisplayStatus        string                      `json:"displayStatus" yaml:"displayStatus"`
	Paused               bool                        `json:"paused" yaml:"paused"`
	CompletionPercentage int                         `json:"completionPercentage" yaml:"completionPercentage"`
	GlobalError          string                      `json:"globalError,omitempty" yaml:"globalError,omitempty"`
	ItemErrors           []ItemError                 `json:"itemErrors" yaml:"itemErrors"`
	PreviousItemErrors   []ItemError                 `json:"previousItemErrors" yaml:"previousItemErrors"`
	DeviceIDs            []string                    `json:"deviceIds" yaml:"deviceIds"`
	CompletionByDevice   map[string]DeviceCompletion `json:"completionByDevice" yaml:"completionByDevice"`
	RemotesUpToDate      bool                        `json:"remotesUpToDate" yaml:"remotesUpToDate"`
	Stats                Stats                       `json:"stats" yaml:"stats"`
	Downloads            []DownloadProgress          `json:"downloads" yaml:"downloads"`
	DownloadSummary      DownloadSummary             `json:"downloadSummary" yaml:"downloadSummary"`
	ScanPercentage       int                         `json:"scanPercentage" yaml:"scanPercentage"`
	LastStatusUpdate     time.Time                   `json:"lastStatusUpdate" yaml:"lastStatusUpdate"`
	LastScanTime         time.Time                   `json:"lastScanTime" yaml:"lastScanTime"`
}

// Snapshot copies the current state of the Dir.
func (d *Dir) Snapshot() DirSnapshot {
	return DirSnapshot{
		ID:                   d.ID,
		Label:                d.Label,
		Path:                 d.Path,
		Type:                 d.dirType,
		TypeLabel:            d.labels.DirTypeLabel(d.dirType),
		Status:               d.status,
		DisplayStatus:        d.DisplayStatus(),
		Paused:               d.paused,
		CompletionPercentage: d.completionPercentage,
		GlobalError:          d.globalError,
		ItemErrors:           d.ItemErrors(),
		PreviousItemErrors:   d.PreviousItemErrors(),
		DeviceIDs:            d.DeviceIDs(),
		CompletionByDevice:   d.CompletionByDevice(),
		RemotesUpToDate:      d.RemotesUpToDate(),
		Stats:                d.stats,
		Downloads:            d.Downloads(),
		DownloadSummary:      d.DownloadSummary(),
		ScanPercentage:       d.scanPercentage,
		LastStatusUpdate:     d.lastStatusUpdate,
		LastScanTime:         d.lastScanTime,
	}
}

// DisplayName returns the label, or the ID when no label is configured.
func (s DirSnapshot) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	return s.ID
}
