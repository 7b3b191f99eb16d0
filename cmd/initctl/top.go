package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "live table of job instances, refreshed over the control socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(newTopModel(flagSocket))
		_, err := p.Run()
		return err
	},
}

// isTTY controls whether the table is rendered with lipgloss color
// styles at all: piping initctl top into a file or another program
// should produce plain text, not ANSI escapes.
var isTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func renderStyle(s lipgloss.Style, text string) string {
	if !isTTY {
		return text
	}
	return s.Render(text)
}

type tickMsg time.Time

type jobsLoadedMsg struct {
	jobs []jobView
	err  error
}

// topModel is a Bubble Tea model polling the control API's job list
// on a fixed interval and rendering it as a table, retargeted from a
// racing telemetry table to a job-instance table.
type topModel struct {
	client   *client
	jobs     []jobView
	err      error
	width    int
	lastPoll time.Time
}

func newTopModel(socketPath string) topModel {
	return topModel{client: newClient(socketPath)}
}

func (m topModel) Init() tea.Cmd {
	return tea.Batch(m.poll(), tickEvery())
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m topModel) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		jobs, err := m.client.listJobs(ctx, "")
		return jobsLoadedMsg{jobs: jobs, err: err}
	}
}

func (m topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.poll()
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.poll(), tickEvery())
	case jobsLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.jobs = msg.jobs
			m.lastPoll = time.Now()
		}
		return m, nil
	}
	return m, nil
}

func (m topModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("initctl top: %v\n\npress q to quit\n", m.err)
	}

	jobs := append([]jobView(nil), m.jobs...)
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Class != jobs[j].Class {
			return jobs[i].Class < jobs[j].Class
		}
		return jobs[i].Instance < jobs[j].Instance
	})

	out := renderStyle(headerStyle, fmt.Sprintf("%-18s %-16s %-10s %-14s %-8s", "CLASS", "INSTANCE", "GOAL", "STATE", "PID")) + "\n"
	for _, j := range jobs {
		line := fmt.Sprintf("%-18s %-16s %-10s %-14s %-8d", j.Class, j.Instance, j.Goal, j.State, j.Pid)
		if j.Failed {
			out += renderStyle(failedStyle, line) + "\n"
		} else if j.State == "running" {
			out += renderStyle(runningStyle, line) + "\n"
		} else {
			out += line + "\n"
		}
	}
	out += "\n" + renderStyle(dimStyle, fmt.Sprintf("%d instances · last refresh %s · q to quit, r to refresh", len(jobs), m.lastPoll.Format("15:04:05")))
	return out
}
