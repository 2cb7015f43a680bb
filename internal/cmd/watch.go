package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/swarm"
	"github.com/droverhq/drover/internal/util"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of recorded swarms",
	Long: `Watch renders the swarm registry and refreshes whenever the registry
file changes on disk, so task transitions written by a concurrent
'drover dispatch --run' show up as they happen. Press q to quit.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()

	// The watcher needs the directory to exist; a fresh checkout has no
	// state dir until the first dispatch.
	if err := os.MkdirAll(e.stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(e.stateDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", e.stateDir, err)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	m := watchModel{
		spinner:      sp,
		swarms:       e.swarms,
		watcher:      watcher,
		registryName: filepath.Base(e.swarms.Path()),
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}

type watchModel struct {
	spinner      spinner.Model
	swarms       *swarm.Registry
	watcher      *fsnotify.Watcher
	registryName string

	records []swarm.Record
	loadErr error
}

// registryChangedMsg means the registry file was touched on disk.
type registryChangedMsg struct{}

// recordsMsg carries a fresh read of the registry.
type recordsMsg struct {
	records []swarm.Record
	err     error
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadRecords(), m.waitForChange())
}

// loadRecords reads the registry off the UI loop.
func (m watchModel) loadRecords() tea.Cmd {
	reg := m.swarms
	return func() tea.Msg {
		records, err := reg.List()
		return recordsMsg{records: records, err: err}
	}
}

// waitForChange blocks on watcher events until the registry file itself is
// created, written, or renamed into place. The registry saves via a temp
// file and an atomic rename, so the final path shows up as a create.
func (m watchModel) waitForChange() tea.Cmd {
	watcher, name := m.watcher, m.registryName
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				return registryChangedMsg{}
			case _, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				// Transient watcher errors: re-read rather than die.
				return registryChangedMsg{}
			}
		}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case registryChangedMsg:
		return m, tea.Batch(m.loadRecords(), m.waitForChange())

	case recordsMsg:
		m.records = msg.records
		m.loadErr = msg.err
		return m, nil
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Swarms"))
	b.WriteString("\n\n")

	if m.loadErr != nil {
		b.WriteString(staleStyle.Render("registry read failed: " + m.loadErr.Error()))
		b.WriteString("\n")
		return b.String()
	}

	if len(m.records) == 0 {
		b.WriteString(m.spinner.View())
		b.WriteString(mutedStyle.Render(" waiting for the first dispatch"))
		b.WriteString("\n")
	}

	for _, rec := range m.records {
		b.WriteString(m.renderSwarm(rec))
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("q to quit"))
	b.WriteString("\n")
	return b.String()
}

// renderSwarm formats one record with its task lines.
func (m watchModel) renderSwarm(rec swarm.Record) string {
	sum := swarm.Summarize(rec)

	head := fmt.Sprintf("%s %s  %s  %d/%d done",
		statusDot(swarmStatusColor(rec.Status.String())),
		rec.ID,
		rec.Status,
		sum.Completed+sum.Failed,
		sum.Total,
	)
	if rec.Status == swarm.StatusRunning {
		head = m.spinner.View() + " " + head
	}

	out := head + "\n"
	for _, task := range rec.Tasks {
		line := fmt.Sprintf("  %s %s (%s) %s",
			statusDot(swarmStatusColor(task.Status.String())),
			task.ID,
			task.Agent,
			task.Status,
		)
		if task.Result != nil && task.Result.OK() {
			line += mutedStyle.Render("  " + task.Result.Outcome.Summary)
		}
		out += util.TruncateANSI(line, 100) + "\n"
	}
	return out + "\n"
}
