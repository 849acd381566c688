package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/orhun/dnsleaktest-tui/internal/analyze"
	"github.com/orhun/dnsleaktest-tui/internal/model"
)

// RenderPretty is the non-interactive rendition of the report, used when
// stdout is not a terminal.
func RenderPretty(report model.Report) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Render("dnsleaktest-tui")
	rowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	badStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	lines := []string{title, ""}
	for _, record := range report.Leak {
		switch record.Kind {
		case model.KindIP:
			lines = append(lines, rowStyle.Render(fmt.Sprintf("your ip: %s [%s, %s]", record.IP, record.CountryDisplay, record.ASN)))
		case model.KindDNS:
			lines = append(lines, rowStyle.Render(fmt.Sprintf("dns: %-16s %s %s", record.IP, record.CountryDisplay, record.ASN)))
		}
	}

	verdict := fmt.Sprintf("%s %s", report.Verdict.Classification, report.Verdict.Summary)
	if report.Verdict.Classification == analyze.ClassificationNoLeak {
		lines = append(lines, okStyle.Render(verdict))
	} else {
		lines = append(lines, badStyle.Render(verdict))
	}

	lines = append(lines, "", rowStyle.Render(report.Trace.Summary))
	for _, hop := range report.Trace.Hops {
		host := hop.Host
		if host == "" {
			host = "*"
		}
		address := hop.Address
		if address == "" {
			address = "*"
		}
		lines = append(lines, rowStyle.Render(fmt.Sprintf("%3s  %-40s %-16s %s", hop.TTL, host, address, hop.Samples)))
	}

	return strings.Join(lines, "\n")
}
