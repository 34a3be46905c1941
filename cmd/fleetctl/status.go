package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fleetcore/agentfleet/internal/config"
	"github.com/fleetcore/agentfleet/internal/store"
)

var watch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show the fleet's current agent states from the store",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&watch, "watch", false, "live-refresh dashboard instead of a single snapshot")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "stop is a no-op placeholder; send SIGINT/SIGTERM to the running `fleetctl run` process to stop it",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("fleetctl run has no background daemon: stop it with Ctrl+C or `kill <pid>` in the terminal running it.")
		return nil
	},
}

func openStatusStore() (*store.Store, error) {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return store.Open(cfg.Store.DBPath)
}

func fetchRows(st *store.Store) ([]store.BotStateRow, error) {
	runID, _, err := st.LatestRun()
	if err != nil {
		return nil, fmt.Errorf("no runs recorded yet: %w", err)
	}
	rows, err := st.LatestBotStates(runID)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AgentID < rows[j].AgentID })
	return rows, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStatusStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if !watch {
		rows, err := fetchRows(st)
		if err != nil {
			return err
		}
		printStatusTable(rows)
		return nil
	}

	p := tea.NewProgram(newStatusModel(st))
	_, err = p.Run()
	return err
}

func printStatusTable(rows []store.BotStateRow) {
	fmt.Printf("%-12s %-8s %-14s %-8s %s\n", "AGENT", "HEALTH", "GOAL", "SUBGOAL", "LAST RECORDED")
	for _, r := range rows {
		goal := r.Snapshot.TaskContext.CurrentGoal
		if goal == "" {
			goal = "-"
		}
		cur := r.Snapshot.TaskContext.CurrentSubgoal
		if cur == "" {
			cur = "idle"
		}
		fmt.Printf("%-12s %-8.1f %-14s %-8s %s\n", r.AgentID, r.Snapshot.Player.Health, goal, cur, time.UnixMilli(r.RecordedAt).Format(time.Kitchen))
	}
}

// statusModel is the bubbletea model behind `fleetctl status --watch`,
// re-purposing the teacher's bubbles/table + lipgloss console pattern
// (cmd/nerd/ui's shard console) into a read-only ops dashboard.
type statusModel struct {
	st    *store.Store
	table table.Model
	err   error
}

type tickMsg time.Time

func newStatusModel(st *store.Store) statusModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Agent", Width: 14},
			{Title: "Health", Width: 8},
			{Title: "Goal", Width: 18},
			{Title: "Subgoal", Width: 16},
			{Title: "Queue Depth", Width: 12},
			{Title: "Last Error", Width: 20},
		}),
		table.WithFocused(false),
		table.WithHeight(10),
	)
	style := table.DefaultStyles()
	style.Header = style.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	t.SetStyles(style)
	return statusModel{st: st, table: t}
}

func (m statusModel) Init() tea.Cmd {
	return tea.Batch(refreshCmdFor(m.st), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type refreshMsg struct {
	rows []store.BotStateRow
	err  error
}

func refreshCmdFor(st *store.Store) tea.Cmd {
	return func() tea.Msg {
		rows, err := fetchRows(st)
		return refreshMsg{rows: rows, err: err}
	}
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" || msg.String() == "esc" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(refreshCmdFor(m.st), tickCmd())
	case refreshMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		rows := make([]table.Row, 0, len(msg.rows))
		for _, r := range msg.rows {
			goal := r.Snapshot.TaskContext.CurrentGoal
			if goal == "" {
				goal = "-"
			}
			sub := r.Snapshot.TaskContext.CurrentSubgoal
			if sub == "" {
				sub = "idle"
			}
			lastErr := r.Snapshot.TaskContext.LastError
			if lastErr == "" {
				lastErr = "-"
			}
			rows = append(rows, table.Row{
				r.AgentID,
				fmt.Sprintf("%.1f", r.Snapshot.Player.Health),
				goal,
				sub,
				"-",
				lastErr,
			})
		}
		m.table.SetRows(rows)
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m statusModel) View() string {
	header := lipgloss.NewStyle().Bold(true).Render(" fleet status (q to quit) ")
	if m.err != nil {
		return fmt.Sprintf("%s\n\n%v\n", header, m.err)
	}
	return fmt.Sprintf("%s\n\n%s\n", header, m.table.View())
}
