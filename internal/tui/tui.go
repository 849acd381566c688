package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/orhun/dnsleaktest-tui/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("255")).Foreground(lipgloss.Color("16"))
	dimStyle      = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	ipStyle       = lipgloss.NewStyle().Italic(true)
	countryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	asnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// App is the presentation loop. It consumes the two immutable diagnostic
// results and owns nothing but its selection cursor, which is confined to
// the DNS-leak rows.
type App struct {
	client  *model.LeakRecord
	dnsRows []model.LeakRecord
	verdict model.Verdict
	trace   model.TraceResult
	cursor  int
	width   int
}

func NewApp(leak []model.LeakRecord, trace model.TraceResult, verdict model.Verdict) App {
	app := App{trace: trace, verdict: verdict}
	for _, record := range leak {
		switch record.Kind {
		case model.KindIP:
			r := record
			app.client = &r
		case model.KindDNS:
			app.dnsRows = append(app.dnsRows, record)
		}
	}
	return app
}

// Run blocks inside the alternate screen until the user quits; bubbletea
// restores the terminal on every exit path, panics included.
func Run(leak []model.LeakRecord, trace model.TraceResult, verdict model.Verdict) error {
	_, err := tea.NewProgram(NewApp(leak, trace, verdict), tea.WithAltScreen()).Run()
	return err
}

func (a App) Init() tea.Cmd {
	return nil
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "down", "j":
			if a.cursor < len(a.dnsRows)-1 {
				a.cursor++
			}
		case "up", "k":
			if a.cursor > 0 {
				a.cursor--
			}
		}
	}
	return a, nil
}

func (a App) View() string {
	sections := []string{
		titleStyle.Render("dnsleaktest-tui"),
		a.clientView(),
		a.leakView(),
		a.traceView(),
		dimStyle.Render("↑/↓ select resolver · q quit"),
	}
	return strings.Join(sections, "\n")
}

func (a App) clientView() string {
	if a.client == nil {
		return paneStyle.Render("Your IP: unknown")
	}
	line := fmt.Sprintf("%s [%s, %s]",
		ipStyle.Render(a.client.IP),
		countryStyle.Render(a.client.CountryDisplay),
		asnStyle.Render(a.client.ASN),
	)
	return paneStyle.Render("Your IP: " + line)
}

func (a App) leakView() string {
	rows := []string{headerStyle.Render(fmt.Sprintf("  %-18s %-28s %s", "IP", "Country", "ASN"))}
	for i, record := range a.dnsRows {
		line := fmt.Sprintf("%-18s %-28s %s", record.IP, record.CountryDisplay, record.ASN)
		if i == a.cursor {
			rows = append(rows, selectedStyle.Render("> "+line))
		} else {
			rows = append(rows, "  "+line)
		}
	}
	rows = append(rows, dimStyle.Render(a.verdict.Summary))
	pane := strings.Join(rows, "\n")
	return paneStyle.Render(headerStyle.Render("DNS Leak Test") + "\n" + pane)
}

func (a App) traceView() string {
	rows := []string{headerStyle.Render(fmt.Sprintf("%-4s %-40s %-16s %s", "TTL", "Host", "Address", "Samples"))}
	for _, hop := range a.trace.Hops {
		host := hop.Host
		if host == "" {
			host = "*"
		}
		address := hop.Address
		if address == "" {
			address = "*"
		}
		rows = append(rows, fmt.Sprintf("%-4s %-40s %-16s %s", hop.TTL, host, address, hop.Samples))
	}
	pane := strings.Join(rows, "\n")
	return paneStyle.Render(headerStyle.Render(a.trace.Summary) + "\n" + pane)
}
