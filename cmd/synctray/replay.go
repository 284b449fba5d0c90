package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/synctray/internal/config"
	"github.com/openmined/synctray/internal/connector"
	"github.com/openmined/synctray/internal/dirstate"
	"github.com/openmined/synctray/internal/registry"
	"github.com/spf13/cobra"
)

// statusRecord is one polled folder status snapshot, as recorded from the
// daemon's REST API together with the time it was received.
type statusRecord struct {
	Folder     string            `json:"folder"`
	ReceivedAt time.Time         `json:"receivedAt"`
	Status     connector.RawData `json:"status"`
}

type transition struct {
	Dir  string              `json:"dir" yaml:"dir"`
	From dirstate.SyncStatus `json:"from" yaml:"from"`
	To   dirstate.SyncStatus `json:"to" yaml:"to"`
	At   time.Time           `json:"at" yaml:"at"`
}

type replayReport struct {
	Overall       dirstate.SyncStatus    `json:"overall" yaml:"overall"`
	Dirs          []dirstate.DirSnapshot `json:"dirs" yaml:"dirs"`
	Transitions   []transition           `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	RecentChanges []dirstate.FileChange  `json:"recentChanges" yaml:"recentChanges"`
	Events        connector.Stats        `json:"events" yaml:"events"`
}

type replayInput struct {
	Config      io.Reader
	Status      io.Reader
	Events      io.Reader
	Transitions bool
}

func newReplayCmd(a *app) *cobra.Command {
	var configPath, statusPath, eventsPath string
	var transitions bool

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded daemon config and event log, then print the directory states",
		Example: `  synctray replay --config config.json --events events.ndjson
  curl -s localhost:8384/rest/events | synctray replay -c config.json -e - -f yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := replayInput{Transitions: transitions}

			cfgFile, err := openInput(configPath)
			if err != nil {
				return fmt.Errorf("open config: %w", err)
			}
			defer cfgFile.Close()
			in.Config = cfgFile

			if statusPath != "" {
				statusFile, err := openInput(statusPath)
				if err != nil {
					return fmt.Errorf("open status: %w", err)
				}
				defer statusFile.Close()
				in.Status = statusFile
			}

			if eventsPath == "-" {
				in.Events = cmd.InOrStdin()
			} else {
				eventsFile, err := openInput(eventsPath)
				if err != nil {
					return fmt.Errorf("open events: %w", err)
				}
				defer eventsFile.Close()
				in.Events = eventsFile
			}

			report, err := a.replay(cmd.Context(), in)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.cfg.Format, report, report.writeTable)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Daemon config snapshot (JSON, /rest/system/config shape)")
	cmd.Flags().StringVarP(&eventsPath, "events", "e", "-", "Event log, one JSON event per line; - reads stdin")
	cmd.Flags().StringVarP(&statusPath, "status", "s", "", "Folder status snapshots applied before the events (JSON array)")
	cmd.Flags().BoolVarP(&transitions, "transitions", "t", false, "Record every status transition")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func openInput(path string) (*os.File, error) {
	resolved, err := config.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	return os.Open(resolved)
}

func (a *app) replay(ctx context.Context, in replayInput) (*replayReport, error) {
	reg, err := registry.New(
		registry.WithLogger(a.log),
		registry.WithRecentChangesSize(a.cfg.RecentChanges),
		registry.WithProgressBuilder(&dirstate.ProgressBuilder{
			BlockSize:  a.cfg.BlockSize,
			FormatSize: dirstate.HumanizeSize,
		}),
	)
	if err != nil {
		return nil, err
	}
	defer reg.Close()

	conn := connector.New(reg, connector.WithMyID(a.cfg.MyID), connector.WithLogger(a.log))

	cfgData, err := io.ReadAll(in.Config)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := conn.ApplyConfig(cfgData); err != nil {
		return nil, err
	}

	if in.Status != nil {
		if err := a.applyStatus(conn, in.Status); err != nil {
			return nil, err
		}
	}

	report := &replayReport{}
	var wg sync.WaitGroup
	var sub *registry.Subscription
	if in.Transitions {
		if sub, err = reg.Subscribe(); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range sub.C {
				report.Transitions = append(report.Transitions, transition{
					Dir:  ev.Dir.ID,
					From: ev.Previous,
					To:   ev.Dir.Status,
					At:   ev.Dir.LastStatusUpdate,
				})
			}
		}()
	}

	pipeline := connector.NewPipeline(conn, func(ev *connector.Event) {
		a.log.Debug("replay", "event", ev.Type, "id", ev.ID, "changed", true)
	})
	runErr := pipeline.Run(ctx, in.Events)

	if sub != nil {
		reg.Unsubscribe(sub.ID)
		wg.Wait()
	}
	if runErr != nil {
		return nil, runErr
	}

	report.Overall = reg.Overall()
	report.Dirs = reg.Snapshots()
	report.RecentChanges = reg.RecentChanges()
	report.Events = conn.Stats()
	a.log.Info("replay", "dirs", len(report.Dirs), "overall", report.Overall, "applied", report.Events.Applied, "stale", report.Events.Stale)
	return report, nil
}

func (a *app) applyStatus(conn *connector.Connector, r io.Reader) error {
	var records []statusRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return fmt.Errorf("%w: status snapshots: %w", connector.ErrMalformedEvent, err)
	}
	for _, rec := range records {
		changed, err := conn.ApplyFolderStatus(rec.Folder, rec.Status, rec.ReceivedAt)
		if err != nil {
			a.log.Warn("replay", "dir", rec.Folder, "error", err)
			continue
		}
		a.log.Debug("replay", "dir", rec.Folder, "snapshot", rec.ReceivedAt, "changed", changed)
	}
	return nil
}

func (r *replayReport) writeTable(w io.Writer) error {
	t := newTable("DIR", "TYPE", "STATUS", "DONE", "ERRORS", "DEVICES", "DOWNLOADS", "UPDATED")
	for _, d := range r.Dirs {
		downloads := "-"
		if d.DownloadSummary.Items > 0 {
			downloads = d.DownloadSummary.Label
		}
		updated := "-"
		if !d.LastStatusUpdate.IsZero() {
			updated = d.LastStatusUpdate.UTC().Format(time.RFC3339)
		}
		t.Row(
			d.DisplayName(),
			d.TypeLabel,
			statusStyle(d.Status, d.Paused).Render(d.DisplayStatus),
			strconv.Itoa(d.CompletionPercentage)+" %",
			strconv.Itoa(len(d.ItemErrors)),
			strconv.Itoa(len(d.DeviceIDs)),
			downloads,
			updated,
		)
	}
	if err := writeTable(w, t); err != nil {
		return err
	}

	for _, d := range r.Dirs {
		if d.GlobalError != "" {
			fmt.Fprintf(w, "%s %s: %s\n", red.Render("ERROR"), d.DisplayName(), d.GlobalError)
		}
		for _, e := range d.ItemErrors {
			fmt.Fprintf(w, "%s %s: %s: %s\n", yellow.Render("ITEM"), d.DisplayName(), e.Path, e.Message)
		}
	}

	for _, tr := range r.Transitions {
		fmt.Fprintf(w, "%s %s %s -> %s\n", gray.Render(tr.At.UTC().Format(time.RFC3339)), tr.Dir, tr.From, tr.To)
	}

	if len(r.RecentChanges) > 0 {
		fmt.Fprintln(w, bold.Render("Recent changes"))
		for _, c := range r.RecentChanges {
			origin := "remote"
			if c.Local {
				origin = "local"
			}
			fmt.Fprintf(w, "  %s %s %s/%s (%s, %s)\n", c.Action, c.ItemType, c.DirID, c.Path, origin, humanize.Time(c.EventTime))
		}
	}

	_, err := fmt.Fprintf(w, "%s %s  events: applied=%d stale=%d ignored=%d malformed=%d\n",
		bold.Render("Overall:"),
		statusStyle(r.Overall, false).Render(r.Overall.String()),
		r.Events.Applied, r.Events.Stale, r.Events.Ignored, r.Events.Malformed,
	)
	return err
}
