package ui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muurk/rawws/internal/server"
)

// RenderCaptureSummary renders per-direction, per-opcode frame counts from
// a capture file, followed by the totals.
func RenderCaptureSummary(path string, s *server.CaptureSummary, width int) string {
	rows := make([][]string, 0, len(s.Counts))
	for _, c := range s.Counts {
		rows = append(rows, []string{
			c.Direction,
			c.Opcode,
			strconv.Itoa(c.Frames),
			strconv.FormatUint(c.PayloadBytes, 10),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers("DIRECTION", "OPCODE", "FRAMES", "PAYLOAD BYTES").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})
	if width > 0 {
		t = t.Width(width)
	}

	span := "-"
	if s.Frames > 0 {
		span = s.First.UTC().Format(time.RFC3339) + " .. " + s.Last.UTC().Format(time.RFC3339)
	}

	header := NewHeader("capture summary", path,
		Field{Key: "Frames", Value: strconv.Itoa(s.Frames)},
		Field{Key: "Connections", Value: strconv.Itoa(s.Connections)},
		Field{Key: "Span", Value: span},
	)
	if width > 0 {
		header.SetWidth(width)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header.Render(), t.Render())
}
