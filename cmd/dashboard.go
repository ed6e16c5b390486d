package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"fdnode/logger"
	"fdnode/node"
	"fdnode/peer"
)

var dashboardStartPort int

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive terminal UI for a local node cluster",
	Long: `Start an interactive terminal UI that manages a small cluster of nodes
in this one process, each bound to its own loopback port.

Keyboard shortcuts:
  C - Create a new node (joins the running cluster)
  D - Delete a node (shows selection menu)
  Q - Quit

Examples:
  fdnode dashboard`,
	Run: runDashboard,
}

func init() {
	dashboardCmd.Flags().IntVar(&dashboardStartPort, "start-port", 9000, "first loopback port assigned to a created node")
	rootCmd.AddCommand(dashboardCmd)
}

type dashboardModel struct {
	manager      *node.Manager
	nodes        []*node.Node
	deleteMode   bool
	selected     int
	err          error
	logBuffer    *logger.LogBuffer
	logScroll    int
	width        int
	height       int
	lastCommand  string
	numericInput string
}

func newDashboardModel(startPort int) dashboardModel {
	logBuffer := logger.GetGlobalLogBuffer()
	logger.Init("", false, false)
	logger.AddOutput(logger.NewLogBufferWriter(logBuffer))

	return dashboardModel{
		manager:   node.NewManager(startPort),
		nodes:     []*node.Node{},
		logBuffer: logBuffer,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(dashboardTick(), refreshDashboardNodes(m.manager))
}

func dashboardTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return dashboardTickMsg{}
	})
}

type dashboardTickMsg struct{}

func refreshDashboardNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		return dashboardNodesUpdatedMsg{nodes: manager.Nodes()}
	}
}

type dashboardNodesUpdatedMsg struct{ nodes []*node.Node }
type dashboardShutdownDoneMsg struct{ err error }

func shutdownDashboardNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		return dashboardShutdownDoneMsg{err: manager.StopAll()}
	}
}

// clusterNeighbors returns the endpoints of every currently running
// node, seeding a new node's initial membership; the node router itself
// grows the mesh from there as heartbeats and gossip messages arrive
// from endpoints it doesn't yet recognize.
func clusterNeighbors(nodes []*node.Node) []peer.Endpoint {
	out := make([]peer.Endpoint, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Self())
	}
	return out
}

func (m dashboardModel) createNode() (dashboardModel, error) {
	base := *node.DefaultConfig(peer.Endpoint{Host: "127.0.0.1", Port: 0})
	base.Neighbors = clusterNeighbors(m.nodes)
	_, err := m.manager.CreateNode(base)
	if err != nil {
		return m, err
	}
	m.nodes = m.manager.Nodes()
	return m, nil
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, shutdownDashboardNodes(m.manager)
		}
		if m.deleteMode {
			return m.handleDeleteMode(msg)
		}
		switch msg.String() {
		case "c", "C":
			nm, err := m.createNode()
			if err != nil {
				nm.err = err
			} else {
				nm.err = nil
				nm.lastCommand = "create"
			}
			return nm, nil

		case "d", "D":
			if len(m.nodes) == 0 {
				m.err = fmt.Errorf("no nodes to delete")
				return m, nil
			}
			m.deleteMode = true
			m.selected = 0
			m.numericInput = ""
			return m, nil

		case "enter":
			return m.repeatLastCommand()

		case "up", "k":
			all := m.logBuffer.GetAll()
			maxScroll := len(all) - 15
			if maxScroll < 0 {
				maxScroll = 0
			}
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dashboardTickMsg:
		return m, tea.Batch(dashboardTick(), refreshDashboardNodes(m.manager))

	case dashboardNodesUpdatedMsg:
		m.nodes = msg.nodes
		return m, nil

	case dashboardShutdownDoneMsg:
		if msg.err != nil {
			logger.Printf("error stopping nodes during shutdown: %v", msg.err)
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m dashboardModel) repeatLastCommand() (tea.Model, tea.Cmd) {
	if m.lastCommand == "" {
		return m, nil
	}
	if strings.HasPrefix(m.lastCommand, "delete:") {
		parts := strings.Split(m.lastCommand, ":")
		if len(parts) == 2 {
			if index, err := strconv.Atoi(parts[1]); err == nil {
				if index < 0 || index >= len(m.nodes) {
					m.err = fmt.Errorf("node index %d no longer exists", index+1)
					return m, nil
				}
				if err := m.manager.DeleteNode(index); err != nil {
					m.err = err
				} else {
					m.nodes = m.manager.Nodes()
					m.err = nil
				}
			}
		}
		return m, nil
	}
	if m.lastCommand == "create" {
		nm, err := m.createNode()
		nm.err = err
		return nm, nil
	}
	return m, nil
}

func (m dashboardModel) handleDeleteMode(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "esc":
		m.deleteMode = false
		m.selected = 0
		m.err = nil
		m.numericInput = ""
		return m, nil

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "j":
		if m.selected < len(m.nodes)-1 {
			m.selected++
		}
		return m, nil

	case "enter", " ":
		index := m.selected
		if m.numericInput != "" {
			num, err := strconv.Atoi(m.numericInput)
			if err != nil || num < 1 || num > len(m.nodes) {
				m.err = fmt.Errorf("node %s does not exist", m.numericInput)
				m.numericInput = ""
				return m, nil
			}
			index = num - 1
		}
		if err := m.manager.DeleteNode(index); err != nil {
			m.err = err
		} else {
			m.nodes = m.manager.Nodes()
			m.deleteMode = false
			m.selected = 0
			m.err = nil
			m.lastCommand = fmt.Sprintf("delete:%d", index)
		}
		m.numericInput = ""
		return m, nil

	default:
		keyStr := keyMsg.String()
		if len(keyStr) == 1 && keyStr >= "0" && keyStr <= "9" {
			m.numericInput += keyStr
			return m, nil
		}
		m.numericInput = ""
		return m, nil
	}
}

func (m dashboardModel) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(1, 2)
	s.WriteString(titleStyle.Render("fdnode dashboard"))
	s.WriteString("\n\n")

	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
		s.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	if len(m.nodes) == 0 {
		s.WriteString("No nodes running.\n\n")
	} else {
		s.WriteString("Running Nodes:\n\n")
		for i, n := range m.nodes {
			cfg := n.Config()
			line := fmt.Sprintf("[%d] %s  detector=%s  round=%d  value=%q  suspects=%d",
				i+1, n.Self(), cfg.FailureDetector, n.Round(), n.Value(), len(n.SuspectedList()))
			if m.deleteMode && i == m.selected {
				nodeStyle := lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("196")).Bold(true)
				s.WriteString(nodeStyle.Render("> " + line))
			} else {
				s.WriteString("  " + line)
			}
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	entries := m.logBuffer.GetAll()
	logCount := 15
	start := len(entries) - logCount - m.logScroll
	if start < 0 {
		start = 0
	}
	end := len(entries) - m.logScroll
	if end < start {
		end = start
	}
	if end > len(entries) {
		end = len(entries)
	}

	var logLines []string
	if len(entries) == 0 {
		logLines = []string{"(no logs yet)"}
	} else {
		for i := end - 1; i >= start; i-- {
			logLines = append(logLines, logger.FormatLogEntry(entries[i]))
		}
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4
	}
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(13).
		Width(boxWidth)
	s.WriteString(logStyle.Render("Logs:\n" + strings.Join(logLines, "\n")))
	s.WriteString("\n\n")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true).PaddingTop(1)
	if m.deleteMode {
		help := "DELETE MODE: up/down or type a node number, Enter to confirm, Esc to cancel"
		if m.numericInput != "" {
			help = fmt.Sprintf("DELETE MODE: node %s, Enter to confirm, Esc to cancel", m.numericInput)
		}
		s.WriteString(helpStyle.Render(help))
	} else {
		text := "Press C to create a node | D to delete a node | up/down to scroll logs | Q to quit"
		s.WriteString(helpStyle.Render(text))
	}

	return s.String()
}

func runDashboard(cmd *cobra.Command, args []string) {
	p := tea.NewProgram(newDashboardModel(dashboardStartPort))
	if _, err := p.Run(); err != nil {
		fmt.Printf("error running dashboard: %v\n", err)
	}
}
