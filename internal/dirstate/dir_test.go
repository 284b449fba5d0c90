package dirstate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sharedDir(t *testing.T) *Dir {
	t.Helper()
	d := NewDir("abcd-1234")
	d.Path = "/mnt/data"
	d.SetDevices([]string{"DEV-A", "DEV-B"})
	return d
}

func TestDir_AcceptsUpdate(t *testing.T) {
	d := NewDir("x")

	assert.True(t, d.AcceptsUpdate(t0))
	assert.Equal(t, t0, d.LastStatusUpdate())

	// equal timestamps are accepted
	assert.True(t, d.AcceptsUpdate(t0))

	assert.False(t, d.AcceptsUpdate(t0.Add(-time.Second)))
	assert.Equal(t, t0, d.LastStatusUpdate())

	assert.True(t, d.AcceptsUpdate(t0.Add(time.Second)))
	assert.Equal(t, t0.Add(time.Second), d.LastStatusUpdate())
}

func TestDir_StaleUpdatesLeaveStateUntouched(t *testing.T) {
	d := sharedDir(t)
	d.AddItemError(ItemError{Message: "permission denied", Path: "a.txt"})
	require.True(t, d.ApplyStatusToken(TokenError, t0))
	d.SetGlobalError("folder marker missing")
	d.SetCompletion("DEV-A", DeviceCompletion{Needed: NeededSize{Bytes: 10}})
	before := d.Snapshot()

	stale := t0.Add(-time.Minute)
	assert.False(t, d.ApplyStatusToken(TokenSyncing, stale))
	assert.False(t, d.ApplyStatusToken(TokenIdle, stale))
	assert.False(t, d.ApplyStatus(StatusIdle, stale))
	assert.False(t, d.ApplySummary(FolderSummary{State: TokenSyncing, GlobalBytes: 100}, stale))

	assert.Equal(t, before, d.Snapshot())
}

func TestDir_IdleResetsCompletion(t *testing.T) {
	d := sharedDir(t)
	require.True(t, d.ApplySummary(FolderSummary{State: TokenSyncing, GlobalBytes: 200, NeedBytes: 50}, t0))
	require.Equal(t, 75, d.CompletionPercentage())

	assert.True(t, d.ApplyStatusToken(TokenIdle, t0.Add(time.Second)))
	assert.Equal(t, StatusIdle, d.Status())
	assert.Equal(t, 0, d.CompletionPercentage())
}

func TestDir_ErrorsUpgradeIdleLikeTokensToOutOfSync(t *testing.T) {
	for _, token := range []string{TokenIdle, "", "cleaning", "sync-preparing"} {
		t.Run("token="+token, func(t *testing.T) {
			d := sharedDir(t)
			d.AddItemError(ItemError{Message: "no space left", Path: "big.iso"})

			assert.True(t, d.ApplyStatusToken(token, t0))
			assert.Equal(t, StatusOutOfSync, d.Status())
		})
	}
}

func TestDir_UnsharedWithoutDevices(t *testing.T) {
	d := NewDir("lonely")

	assert.True(t, d.ApplyStatusToken(TokenIdle, t0))
	assert.Equal(t, StatusUnshared, d.Status())
	assert.False(t, d.Shared())

	// transient states are not downgraded
	assert.True(t, d.ApplyStatusToken(TokenScanning, t0.Add(time.Second)))
	assert.Equal(t, StatusScanning, d.Status())
}

func TestDir_RefreshSharedFollowsDevices(t *testing.T) {
	d := NewDir("lonely")
	assert.False(t, d.RefreshShared(), "nothing to refresh before a status is known")
	assert.Equal(t, StatusUnknown, d.Status())

	require.True(t, d.ApplyStatusToken(TokenIdle, t0))
	require.Equal(t, StatusUnshared, d.Status())

	d.SetDevices([]string{"DEV-A"})
	assert.True(t, d.RefreshShared())
	assert.Equal(t, StatusIdle, d.Status())
	assert.Equal(t, t0, d.LastStatusUpdate())
	assert.False(t, d.RefreshShared())

	d.SetDevices(nil)
	assert.True(t, d.RefreshShared())
	assert.Equal(t, StatusUnshared, d.Status())

	// transient states wait for the next status update
	require.True(t, d.ApplyStatusToken(TokenScanning, t0.Add(time.Second)))
	d.SetDevices([]string{"DEV-A"})
	assert.False(t, d.RefreshShared())
	assert.Equal(t, StatusScanning, d.Status())
}

func TestDir_ErrorsTakePriorityOverUnshared(t *testing.T) {
	d := NewDir("lonely")
	d.AddItemError(ItemError{Message: "boom", Path: "x"})

	assert.True(t, d.ApplyStatusToken(TokenIdle, t0))
	assert.Equal(t, StatusOutOfSync, d.Status())
}

func TestDir_SyncStartMovesErrorsToPrevious(t *testing.T) {
	d := sharedDir(t)
	e1 := ItemError{Message: "permission denied", Path: "docs/a.txt"}
	d.AddItemError(e1)
	require.True(t, d.ApplyStatusToken(TokenIdle, t0))
	require.Equal(t, StatusOutOfSync, d.Status())

	assert.True(t, d.ApplyStatusToken(TokenSyncing, t0.Add(time.Second)))
	assert.Equal(t, StatusSynchronizing, d.Status())
	assert.Equal(t, []ItemError{e1}, d.PreviousItemErrors())
	assert.Empty(t, d.ItemErrors())

	// a second sync start replaces the previous errors
	e2 := ItemError{Message: "file busy", Path: "docs/b.txt"}
	d.AddItemError(e2)
	d.ApplyStatusToken(TokenSyncing, t0.Add(2*time.Second))
	assert.Equal(t, []ItemError{e2}, d.PreviousItemErrors())
	assert.Empty(t, d.ItemErrors())
}

func TestDir_SyncStartWithErrorsAlwaysReportsChange(t *testing.T) {
	d := sharedDir(t)
	require.True(t, d.ApplyStatusToken(TokenSyncing, t0))
	d.AddItemError(ItemError{Message: "boom", Path: "x"})

	// status is already Synchronizing, the error rotation must still be signalled
	assert.True(t, d.ApplyStatusToken(TokenSyncing, t0.Add(time.Second)))
	assert.Equal(t, StatusSynchronizing, d.Status())

	// without errors, a repeated token is not a change
	assert.False(t, d.ApplyStatusToken(TokenSyncing, t0.Add(2*time.Second)))
}

func TestDir_NewErrorsAreDistinguishedFromKnownOnes(t *testing.T) {
	d := sharedDir(t)
	known := ItemError{Message: "permission denied", Path: "a"}
	d.AddItemError(known)
	d.ApplyStatusToken(TokenSyncing, t0)

	fresh := ItemError{Message: "checksum mismatch", Path: "b"}
	newOnes := d.SetItemErrors([]ItemError{known, fresh})

	assert.Equal(t, []ItemError{fresh}, newOnes)
	assert.False(t, d.IsNewError(known))
	assert.True(t, d.IsNewError(fresh))
	assert.Len(t, d.ItemErrors(), 2)
}

func TestDir_LastScanTimeUpdatedWhenLeavingScanning(t *testing.T) {
	d := sharedDir(t)
	require.True(t, d.ApplyStatusToken(TokenScanning, t0))
	assert.True(t, d.LastScanTime().IsZero())

	// same status, no change
	assert.False(t, d.ApplyStatusToken(TokenScanning, t0.Add(time.Second)))
	assert.True(t, d.LastScanTime().IsZero())

	leave := t0.Add(5 * time.Second)
	assert.True(t, d.ApplyStatusToken(TokenIdle, leave))
	assert.Equal(t, leave, d.LastScanTime())

	// leaving another state does not touch it
	d.ApplyStatusToken(TokenSyncing, leave.Add(time.Second))
	d.ApplyStatusToken(TokenIdle, leave.Add(2*time.Second))
	assert.Equal(t, leave, d.LastScanTime())
}

func TestDir_GlobalErrorClearedUnlessOutOfSync(t *testing.T) {
	d := sharedDir(t)

	d.ApplySummary(FolderSummary{State: TokenError, Error: "folder path missing"}, t0)
	assert.Equal(t, StatusOutOfSync, d.Status())
	assert.Equal(t, "folder path missing", d.GlobalError())

	d.ApplyStatusToken(TokenScanning, t0.Add(time.Second))
	assert.Empty(t, d.GlobalError())
}

func TestDir_ApplyStatusErrorSignal(t *testing.T) {
	d := sharedDir(t)
	d.ApplySummary(FolderSummary{State: TokenSyncing, GlobalBytes: 100, NeedBytes: 10}, t0)
	require.Equal(t, 90, d.CompletionPercentage())

	assert.True(t, d.ApplyStatus(StatusOutOfSync, t0.Add(time.Second)))
	assert.Equal(t, StatusOutOfSync, d.Status())
	assert.Equal(t, 0, d.CompletionPercentage())
}

func TestDir_ApplySummaryCompletion(t *testing.T) {
	tests := []struct {
		name    string
		summary FolderSummary
		want    int
	}{
		{"nothing global", FolderSummary{State: TokenSyncing}, 0},
		{"half", FolderSummary{State: TokenSyncing, GlobalBytes: 1000, NeedBytes: 500}, 50},
		{"floor", FolderSummary{State: TokenSyncing, GlobalBytes: 3, NeedBytes: 1}, 66},
		{"need exceeds global", FolderSummary{State: TokenSyncing, GlobalBytes: 3, NeedBytes: 5}, 0},
		{"huge folder", FolderSummary{State: TokenSyncing, GlobalBytes: math.MaxUint64, NeedBytes: math.MaxUint64 / 2}, 50},
		{"idle", FolderSummary{State: TokenIdle, GlobalBytes: 1000, NeedBytes: 500}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sharedDir(t)
			d.ApplySummary(tt.summary, t0)
			assert.Equal(t, tt.want, d.CompletionPercentage())
			assert.Equal(t, tt.summary.GlobalBytes, d.Stats().GlobalBytes)
		})
	}
}

func TestDir_ApplyDirType(t *testing.T) {
	tests := []struct {
		token string
		want  DirType
		ok    bool
	}{
		{"sendreceive", DirTypeSendReceive, true},
		{"readwrite", DirTypeSendReceive, true},
		{"sendonly", DirTypeSendOnly, true},
		{"readonly", DirTypeSendOnly, true},
		{"receiveonly", DirTypeReceiveOnly, true},
		{"receiveencrypted", DirTypeUnknown, false},
		{"", DirTypeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			d := NewDir("x")
			d.ApplyDirType("sendonly")
			assert.Equal(t, tt.ok, d.ApplyDirType(tt.token))
			assert.Equal(t, tt.want, d.Type())
		})
	}
}

func TestDir_DisplayStatus(t *testing.T) {
	d := sharedDir(t)
	d.ApplyStatusToken(TokenSyncing, t0)
	assert.Equal(t, "synchronizing", d.DisplayStatus())

	d.SetPaused(true)
	assert.Equal(t, "paused", d.DisplayStatus())
	assert.Equal(t, StatusSynchronizing, d.Status())
}

type shoutingLabels struct{ DefaultLabels }

func (shoutingLabels) PausedLabel() string { return "PAUSED" }

func TestDir_DisplayStatusUsesInjectedLabeler(t *testing.T) {
	d := NewDir("x", WithLabeler(shoutingLabels{}))
	d.SetPaused(true)
	assert.Equal(t, "PAUSED", d.DisplayStatus())
}

func TestDir_PathWithoutTrailingSlash(t *testing.T) {
	tests := map[string]string{
		"/mnt/data///": "/mnt/data",
		"/mnt/data/":   "/mnt/data",
		"/mnt/data":    "/mnt/data",
		"/":            "",
		"":             "",
	}
	for in, want := range tests {
		d := NewDir("x")
		d.Path = in
		assert.Equal(t, want, d.PathWithoutTrailingSlash(), "path %q", in)
	}
}

func TestDir_RemotesUpToDate(t *testing.T) {
	d := sharedDir(t)
	assert.True(t, d.RemotesUpToDate(), "empty map is up to date")

	d.SetCompletion("DEV-A", DeviceCompletion{Percentage: 100})
	d.SetCompletion("DEV-B", DeviceCompletion{Percentage: 100})
	assert.True(t, d.RemotesUpToDate())

	d.SetCompletion("DEV-B", DeviceCompletion{Percentage: 99, Needed: NeededSize{Deletes: 1}})
	assert.False(t, d.RemotesUpToDate())

	d.RemoveCompletion("DEV-B")
	assert.True(t, d.RemotesUpToDate())
}

func TestDir_SetDevicesDropsStaleCompletion(t *testing.T) {
	d := sharedDir(t)
	d.SetCompletion("DEV-B", DeviceCompletion{Needed: NeededSize{Items: 3}})
	d.SetDevices([]string{"DEV-A"})

	assert.Equal(t, []string{"DEV-A"}, d.DeviceIDs())
	assert.NotContains(t, d.CompletionByDevice(), "DEV-B")
	assert.True(t, d.RemotesUpToDate())
}

func TestDir_RemoveItemErrors(t *testing.T) {
	d := sharedDir(t)
	d.AddItemError(ItemError{Message: "a", Path: "x"})
	d.AddItemError(ItemError{Message: "b", Path: "x"})
	d.AddItemError(ItemError{Message: "c", Path: "y"})
	assert.False(t, d.AddItemError(ItemError{Message: "c", Path: "y"}))

	assert.Equal(t, 2, d.RemoveItemErrors("x"))
	assert.Equal(t, []ItemError{{Message: "c", Path: "y"}}, d.ItemErrors())
}

func TestDir_SnapshotIsACopy(t *testing.T) {
	d := sharedDir(t)
	d.SetCompletion("DEV-A", DeviceCompletion{Percentage: 50})
	d.AddItemError(ItemError{Message: "a", Path: "x"})

	snap := d.Snapshot()
	snap.CompletionByDevice["DEV-A"] = DeviceCompletion{Percentage: 0}
	snap.ItemErrors[0].Message = "changed"
	snap.DeviceIDs[0] = "DEV-Z"

	assert.Equal(t, 50.0, d.CompletionByDevice()["DEV-A"].Percentage)
	assert.Equal(t, "a", d.ItemErrors()[0].Message)
	assert.Equal(t, []string{"DEV-A", "DEV-B"}, d.DeviceIDs())
}

func TestDir_ScanProgress(t *testing.T) {
	d := sharedDir(t)
	d.SetScanProgress(10, 20, 1.5)
	assert.Equal(t, 0, d.ScanPercentage(), "ignored unless scanning")

	d.ApplyStatusToken(TokenScanning, t0)
	d.SetScanProgress(10, 40, 1.5)
	assert.Equal(t, 25, d.ScanPercentage())

	d.ApplyStatusToken(TokenIdle, t0.Add(time.Second))
	assert.Equal(t, 0, d.ScanPercentage())
}

func TestDir_Downloads(t *testing.T) {
	d := sharedDir(t)
	d.Path = "/mnt/data/"
	d.SetDownloads(map[string]ProgressCounters{
		`sub\b.bin`: {CounterPulled: 1.0, CounterTotal: 4.0, CounterBytesDone: 100.0, CounterBytesTotal: 400.0},
		"a.bin":     {CounterPulled: 3.0, CounterTotal: 4.0},
	})

	downloads := d.Downloads()
	require.Len(t, downloads, 2)
	assert.Equal(t, "a.bin", downloads[0].RelativePath)
	assert.Equal(t, "/mnt/data/sub/b.bin", downloads[1].AbsolutePath)

	summary := d.DownloadSummary()
	assert.Equal(t, 2, summary.Items)
	assert.Equal(t, 50, summary.Percentage)
	assert.Equal(t, uint64(400), summary.BytesTotal)
}
