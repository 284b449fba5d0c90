package main

import (
	"fmt"
	"io"

	"github.com/openmined/synctray/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print SyncTray version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd.OutOrStdout(), a.cfg.Format, version.Current(), func(w io.Writer) error {
				_, err := fmt.Fprintln(w, version.Detailed())
				return err
			})
		},
	}
}
