package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"binlift/internal/analyzer"
	"binlift/internal/binlift/styles"
	"binlift/internal/logging"
	"binlift/internal/ui/colorize"
)

type viewMode int

const (
	viewOverview viewMode = iota
	viewFunctions
	viewSkeleton
)

// funcItem is one recovered function in the functions list.
type funcItem struct {
	name       string
	start      uint64
	instCount  int
	blockCount int
	calls      string
	filterTerm string
}

func (i funcItem) Title() string {
	return fmt.Sprintf("%x %s", i.start, i.name)
}

func (i funcItem) Description() string { return "" }

func (i funcItem) FilterValue() string {
	return i.filterTerm
}

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(funcItem)
	if !ok {
		return
	}

	addrStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	metaStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	if index == m.Index() {
		nameStyle = nameStyle.Foreground(lipgloss.Color("170")).Bold(true)
	}

	line := fmt.Sprintf("  %s  %s %s",
		addrStyle.Render(fmt.Sprintf("%8x", item.start)),
		nameStyle.Render(item.name),
		metaStyle.Render(fmt.Sprintf("(%d insts, %d blocks)", item.instCount, item.blockCount)))
	if item.calls != "" {
		line += metaStyle.Render("  ; " + item.calls)
	}
	fmt.Fprint(w, line)
}

type model struct {
	viewport      viewport.Model
	functionsList list.Model
	skeletonView  viewport.Model
	spinner       spinner.Model
	mode          viewMode
	filepath      string
	target        string
	analyzer      *analyzer.Analyzer
	result        *analyzer.Result
	analysisErr   error
	loading       bool
	width         int
	height        int
}

type analysisMsg struct {
	result *analyzer.Result
	err    error
}

// analyzeCmd runs the pipeline off the UI goroutine. The alt screen owns
// the terminal while it runs, so progress is traced through the env-gated
// logger, which can divert to a file via BINLIFT_LOG_TO_FILE.
func analyzeCmd(a *analyzer.Analyzer, path, target string) tea.Cmd {
	return func() tea.Msg {
		if logging.IsDebug() {
			lg := logging.NewLogger()
			lg.Debug("analysis started", "path", path, "target", target)
			lg.Close()
		}

		res, err := a.Analyze(path, target)

		if logging.IsDebug() {
			lg := logging.NewLogger()
			if err != nil {
				lg.Error("analysis failed", "path", path, "err", err)
			} else {
				lg.Debug("analysis finished",
					"path", path,
					"functions", len(res.Functions),
					"strings", len(res.Strings))
			}
			lg.Close()
		}
		return analysisMsg{result: res, err: err}
	}
}

func NewModel(filepath string, a *analyzer.Analyzer, target string) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	functionsList := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	functionsList.SetShowStatusBar(false)
	functionsList.SetFilteringEnabled(true)
	functionsList.Title = "Functions"
	functionsList.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)
	functionsList.SetShowHelp(true)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	svp := viewport.New()
	svp.SetWidth(80)
	svp.SetHeight(24)

	m := model{
		viewport:      vp,
		functionsList: functionsList,
		skeletonView:  svp,
		spinner:       s,
		mode:          viewOverview,
		filepath:      filepath,
		target:        target,
		analyzer:      a,
		loading:       true,
		width:         80,
		height:        24,
	}
	m.updateContent()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		analyzeCmd(m.analyzer, m.filepath, m.target),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case analysisMsg:
		m.result = msg.result
		m.analysisErr = msg.err
		m.loading = false
		m.updateFunctionsList()
		m.updateSkeleton()
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loading {
			m.updateContent()
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.functionsList.SetWidth(msg.Width)
			m.functionsList.SetHeight(msg.Height - 2)
			m.skeletonView.SetWidth(msg.Width)
			m.skeletonView.SetHeight(msg.Height - 2)

			m.updateContent()
		}

	case tea.KeyMsg:
		// Let the list consume keys while the user is filtering, except
		// for quit.
		if m.mode == viewFunctions && m.functionsList.FilterState() == list.Filtering {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		} else {
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "o":
				m.mode = viewOverview
				m.updateContent()
				return m, nil
			case "f":
				if m.functionCount() > 0 {
					m.mode = viewFunctions
				}
				return m, nil
			case "s":
				if m.result != nil && m.result.Skeleton != "" {
					m.mode = viewSkeleton
				}
				return m, nil
			case "enter":
				// Show the disassembly listing for the selected function
				if m.mode == viewFunctions {
					if selected := m.functionsList.SelectedItem(); selected != nil {
						if item, ok := selected.(funcItem); ok {
							if content := m.functionContent(item.name); content != "" {
								m.mode = viewOverview
								m.viewport.SetContent(content)
								m.viewport.GotoTop()
							}
						}
					}
				}
				return m, nil
			case "tab":
				switch m.mode {
				case viewOverview:
					if m.functionCount() > 0 {
						m.mode = viewFunctions
					} else {
						m.mode = viewSkeleton
					}
				case viewFunctions:
					m.mode = viewSkeleton
				case viewSkeleton:
					m.mode = viewOverview
					m.updateContent()
				}
				return m, nil
			case "shift+tab":
				switch m.mode {
				case viewOverview:
					m.mode = viewSkeleton
				case viewFunctions:
					m.mode = viewOverview
					m.updateContent()
				case viewSkeleton:
					if m.functionCount() > 0 {
						m.mode = viewFunctions
					} else {
						m.mode = viewOverview
						m.updateContent()
					}
				}
				return m, nil
			}
		}
	}

	switch m.mode {
	case viewFunctions:
		m.functionsList, cmd = m.functionsList.Update(msg)
	case viewSkeleton:
		m.skeletonView, cmd = m.skeletonView.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	var content string
	switch m.mode {
	case viewFunctions:
		content = m.functionsList.View()
	case viewSkeleton:
		content = m.skeletonView.View()
	default:
		content = m.viewport.View()
	}

	var menu string
	switch m.mode {
	case viewFunctions:
		menu = " Enter: view listing • O: overview • S: skeleton • Tab: cycle • Q: quit "
	case viewSkeleton:
		menu = " O: overview • F: functions • Tab: cycle • Q: quit "
	default:
		if m.functionCount() > 0 {
			menu = " F: functions • S: skeleton • Tab: cycle • Q: quit "
		} else {
			menu = " S: skeleton • Q: quit "
		}
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}

func (m model) functionCount() int {
	if m.result == nil {
		return 0
	}
	return len(m.result.Functions)
}

// updateContent renders the overview panel as markdown.
func (m *model) updateContent() {
	var markdown string

	if m.analysisErr != nil {
		markdown = fmt.Sprintf("# Binlift\n\nAnalysis failed:\n\n```\n%v\n```", m.analysisErr)
	} else if m.loading || m.result == nil {
		markdown = fmt.Sprintf("# Binlift\n\n```\n; %s\n```\n\n%s Analyzing...", m.filepath, m.spinner.View())
	} else {
		res := m.result
		lines := []string{
			fmt.Sprintf("; %s", res.Path),
			fmt.Sprintf("; %s", res.Digest),
			fmt.Sprintf("; %s, %s", res.Format, res.Arch),
		}
		if res.Partial {
			lines = append(lines, "; input truncated")
		}
		lines = append(lines, "",
			fmt.Sprintf("; %d functions, %d strings, %d api calls",
				len(res.Functions), len(res.Strings), len(res.APICalls)))
		if len(res.Libraries) > 0 {
			lines = append(lines, fmt.Sprintf("; libraries: %s", strings.Join(res.Libraries, ", ")))
		}

		markdown = fmt.Sprintf("# Binlift\n\n```\n%s\n```", strings.Join(lines, "\n"))

		if len(res.Deobfuscation.Types) > 0 {
			markdown += "\n\n## Obfuscation\n\n"
			markdown += fmt.Sprintf("%s, entropy %.2f → %.2f\n",
				strings.Join(res.Deobfuscation.Types, ", "),
				res.Deobfuscation.OriginalEntropy,
				res.Deobfuscation.TransformedEntropy)
		}
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	renderer := styles.GetMarkdownRenderer(width - 2)
	rendered, _ := renderer.Render(markdown)
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

func (m *model) updateFunctionsList() {
	if m.result == nil {
		return
	}

	items := make([]list.Item, 0, len(m.result.Functions))
	for _, fn := range m.result.Functions {
		blocks := 0
		if g, ok := m.result.Graphs[fn.Name]; ok {
			blocks = len(g.Blocks)
		}
		calls := apiCallNames(fn, m.result.APICalls)
		items = append(items, funcItem{
			name:       fn.Name,
			start:      fn.Start,
			instCount:  len(fn.Insts),
			blockCount: blocks,
			calls:      calls,
			filterTerm: fmt.Sprintf("%x %s %s", fn.Start, fn.Name, calls),
		})
	}

	m.functionsList.SetItems(items)
	m.functionsList.Title = fmt.Sprintf("Functions (%d total)", len(items))
}

func (m *model) updateSkeleton() {
	if m.result == nil {
		return
	}
	m.skeletonView.SetContent(colorize.ColorizeSkeleton(m.result.Skeleton, m.target))
	m.skeletonView.GotoTop()
}

// functionContent renders the full annotated listing for one function.
func (m *model) functionContent(name string) string {
	if m.result == nil {
		return ""
	}
	for _, fn := range m.result.Functions {
		if fn.Name != name {
			continue
		}
		listing := functionListing(fn, m.result.Graphs[fn.Name], true)
		return fmt.Sprintf("%s:\n%s", fn.Name, listing)
	}
	return ""
}
