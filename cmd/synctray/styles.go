package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/synctray/internal/dirstate"
)

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	bold   = lipgloss.NewStyle().Bold(true)
)

func statusStyle(s dirstate.SyncStatus, paused bool) lipgloss.Style {
	if paused {
		return gray
	}
	switch s {
	case dirstate.StatusOutOfSync:
		return red
	case dirstate.StatusIdle:
		return green
	case dirstate.StatusScanning, dirstate.StatusSynchronizing:
		return cyan
	case dirstate.StatusUnshared:
		return yellow
	default:
		return gray
	}
}
