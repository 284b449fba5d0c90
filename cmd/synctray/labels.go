package main

import (
	"io"

	"github.com/openmined/synctray/internal/dirstate"
	"github.com/spf13/cobra"
)

type labelEntry struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

type labelSet struct {
	Statuses []labelEntry `json:"statuses" yaml:"statuses"`
	DirTypes []labelEntry `json:"dirTypes" yaml:"dirTypes"`
	Paused   string       `json:"paused" yaml:"paused"`
}

var (
	allStatuses = []dirstate.SyncStatus{
		dirstate.StatusUnknown,
		dirstate.StatusIdle,
		dirstate.StatusUnshared,
		dirstate.StatusScanning,
		dirstate.StatusSynchronizing,
		dirstate.StatusOutOfSync,
	}
	allDirTypes = []dirstate.DirType{
		dirstate.DirTypeUnknown,
		dirstate.DirTypeSendReceive,
		dirstate.DirTypeSendOnly,
		dirstate.DirTypeReceiveOnly,
	}
)

func collectLabels(l dirstate.Labeler) labelSet {
	set := labelSet{Paused: l.PausedLabel()}
	for _, s := range allStatuses {
		set.Statuses = append(set.Statuses, labelEntry{Value: s.String(), Label: l.StatusLabel(s)})
	}
	for _, t := range allDirTypes {
		set.DirTypes = append(set.DirTypes, labelEntry{Value: t.String(), Label: l.DirTypeLabel(t)})
	}
	return set
}

func newLabelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Print the status and directory type vocabulary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set := collectLabels(dirstate.DefaultLabels{})
			return render(cmd.OutOrStdout(), a.cfg.Format, set, func(w io.Writer) error {
				t := newTable("KIND", "VALUE", "LABEL")
				for i, e := range set.Statuses {
					t.Row("status", statusStyle(allStatuses[i], false).Render(e.Value), e.Label)
				}
				for _, e := range set.DirTypes {
					t.Row("type", e.Value, e.Label)
				}
				t.Row("flag", "PAUSED", set.Paused)
				return writeTable(w, t)
			})
		},
	}
}
