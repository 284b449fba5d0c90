package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-json"
	"github.com/openmined/synctray/internal/config"
	"gopkg.in/yaml.v3"
)

// render writes v in the configured format, falling back to tableFn for
// the table format.
func render(w io.Writer, format string, v any, tableFn func(io.Writer) error) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case config.FormatTable:
		return tableFn(w)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(gray).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return bold.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func writeTable(w io.Writer, t *table.Table) error {
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
