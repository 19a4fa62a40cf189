package ui

import (
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muurk/rawws/internal/discovery"
)

// RenderServices renders discovered servers as a table, one row per service
// in the order given.
func RenderServices(services []*discovery.Service, width int) string {
	if len(services) == 0 {
		return lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2).
			Render(fmt.Sprintf("No %s services found.", discovery.ServiceType))
	}

	rows := make([][]string, 0, len(services))
	for _, svc := range services {
		tls := "no"
		if svc.TLS {
			tls = "yes"
		}
		version := svc.Version
		if version == "" {
			version = "-"
		}
		rows = append(rows, []string{
			svc.Instance,
			net.JoinHostPort(svc.IP, strconv.Itoa(svc.Port)),
			svc.URL(),
			tls,
			version,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers("INSTANCE", "ADDRESS", "URL", "TLS", "VERSION").
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
	return t.Render()
}
