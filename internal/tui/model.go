package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/orchestrator"
	"github.com/johndauphine/chfile/internal/version"
)

// maxContentLines bounds the scrollback kept in memory.
const maxContentLines = 2000

// safeCmd wraps a tea.Cmd to recover from panics
func safeCmd(cmd tea.Cmd) tea.Cmd {
	if cmd == nil {
		return nil
	}
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = OutputMsg(fmt.Sprintf("\n[ERROR] %v\n", r))
			}
		}()
		return cmd()
	}
}

// AppMode represents the current application mode
type AppMode int

const (
	ModeNormal AppMode = iota
	ModeWizard
	ModeRunning
)

// Model is the TUI state: one scrolling output pane, an input line and a
// status bar.
type Model struct {
	viewport  viewport.Model
	textInput textinput.Model
	progress  progress.Model
	ready     bool
	width     int
	height    int

	content    *strings.Builder
	lineBuffer string

	history       []string
	historyIdx    int
	suggestions   []string
	suggestionIdx int
	lastInput     string

	mode      AppMode
	busy      bool // a wizard step is waiting on the service
	cancelled bool // the wizard's ingestion was cancelled

	// job run started with /run
	runCancel  func()
	runPercent int
	runVisible bool

	orch      *orchestrator.Orchestrator
	wizard    wizard
	autoStart model.Direction // wizard direction to open on first render
}

type commandInfo struct {
	Name        string
	Description string
}

var availableCommands = []commandInfo{
	{"/wizard", "Step through an export or import"},
	{"/run", "Run a job file (@job.yaml) or --profile NAME"},
	{"/dryrun", "Discover and preview a job without executing"},
	{"/validate", "Check a job against the service"},
	{"/health", "Check the service and ClickHouse"},
	{"/status", "Show wizard state and gates"},
	{"/history", "Show ingestion history"},
	{"/profile", "Manage saved jobs (save/list/run/delete)"},
	{"/config", "Show configuration"},
	{"/about", "Show application information"},
	{"/help", "Show available commands"},
	{"/clear", "Clear screen"},
	{"/quit", "Exit application"},
}

// OutputMsg is sent when new output is captured
type OutputMsg string

// BoxedOutputMsg is output that should be displayed in a bordered box
type BoxedOutputMsg string

// progressMsg mirrors the executor's progress indicator.
type progressMsg struct {
	percent int
	visible bool
}

// RunDoneMsg signals that a job started with /run finished.
type RunDoneMsg struct {
	Status  string // "completed", "failed", "cancelled"
	Message string
}

type runStartedMsg struct {
	cancel func()
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// NewModel returns the initial model for orch.
func NewModel(orch *orchestrator.Orchestrator) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a command, or /wizard to start"
	ti.Focus()
	ti.CharLimit = 512
	ti.Width = 20
	ti.Prompt = "❯ "
	ti.PromptStyle = stylePrompt

	return Model{
		textInput:  ti,
		progress:   progress.New(progress.WithDefaultGradient()),
		content:    &strings.Builder{},
		history:    []string{},
		historyIdx: -1,
		mode:       ModeNormal,
		orch:       orch,
	}
}

// appendOutput adds text to the content buffer with memory management
func (m *Model) appendOutput(text string) {
	m.content.WriteString(text)

	content := m.content.String()
	lines := strings.Split(content, "\n")
	if len(lines) > maxContentLines {
		lines = lines[len(lines)-maxContentLines:]
		m.content.Reset()
		m.content.WriteString(strings.Join(lines, "\n"))
	}

	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.content.String())
	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) wrapWidth() int {
	if w := m.viewport.Width - 4; w >= 20 {
		return w
	}
	return 80
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (next tea.Model, cmd tea.Cmd) {
	defer func() {
		if r := recover(); r != nil {
			m.appendOutput(fmt.Sprintf("\n[ERROR] %v\n", r))
			next = m
			cmd = nil
		}
	}()

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if len(m.suggestions) > 0 {
			switch msg.Type {
			case tea.KeyUp:
				m.suggestionIdx--
				if m.suggestionIdx < 0 {
					m.suggestionIdx = len(m.suggestions) - 1
				}
				return m, nil
			case tea.KeyDown:
				m.suggestionIdx++
				if m.suggestionIdx >= len(m.suggestions) {
					m.suggestionIdx = 0
				}
				return m, nil
			case tea.KeyEnter, tea.KeyTab:
				if m.acceptSuggestion(msg.Type == tea.KeyEnter) {
					return m, nil
				}
			case tea.KeyEsc:
				m.suggestions = nil
				return m, nil
			}
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			if m.mode == ModeRunning {
				m.cancelRun()
				return m, nil
			}
			if m.mode == ModeWizard {
				m.leaveWizard()
				return m, nil
			}
			return m, tea.Quit

		case tea.KeyEsc:
			if m.mode == ModeWizard && !m.busy {
				m.leaveWizard()
				return m, nil
			}
			if m.mode == ModeNormal {
				return m, tea.Quit
			}
			return m, nil

		case tea.KeyEnter:
			value := m.textInput.Value()
			if m.mode == ModeRunning {
				return m, nil
			}
			if m.mode == ModeWizard {
				return m, safeCmd(m.handleWizardStep(value))
			}
			if value != "" {
				m.appendOutput(styleUserInput.Render("> "+value) + "\n")
				m.textInput.Reset()
				m.history = append(m.history, value)
				m.historyIdx = len(m.history)
				return m, safeCmd(m.handleCommand(value))
			}

		case tea.KeyTab:
			if m.mode == ModeNormal {
				m.autocompleteCommand()
			}

		case tea.KeyPgUp:
			m.viewport.LineUp(m.viewport.Height / 2)
			return m, nil

		case tea.KeyPgDown:
			m.viewport.LineDown(m.viewport.Height / 2)
			return m, nil

		case tea.KeyHome:
			m.viewport.GotoTop()
			return m, nil

		case tea.KeyEnd:
			m.viewport.GotoBottom()
			return m, nil

		case tea.KeyUp:
			if m.textInput.Value() == "" || m.mode != ModeNormal {
				m.viewport.LineUp(1)
				return m, nil
			}
			if m.historyIdx > 0 {
				m.historyIdx--
				m.textInput.SetValue(m.history[m.historyIdx])
			}
			return m, nil

		case tea.KeyDown:
			if m.textInput.Value() == "" || m.mode != ModeNormal {
				m.viewport.LineDown(1)
				return m, nil
			}
			if m.historyIdx < len(m.history)-1 {
				m.historyIdx++
				m.textInput.SetValue(m.history[m.historyIdx])
			} else {
				m.historyIdx = len(m.history)
				m.textInput.Reset()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		// input box (3) + progress (1) + status bar (1) + suggestions (1) + slack (1)
		footerHeight := 7

		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, msg.Height-footerHeight)
			m.content.WriteString(m.welcomeMessage())
			m.viewport.SetContent(m.content.String())
			m.ready = true
			if m.autoStart.Valid() {
				dir := m.autoStart
				m.autoStart = model.DirectionNone
				m.width, m.height = msg.Width, msg.Height
				return m, safeCmd(m.startWizard(dir))
			}
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = msg.Height - footerHeight
		}
		m.width = msg.Width
		m.height = msg.Height
		m.textInput.Width = msg.Width - 4
		m.progress.Width = msg.Width - 8

	case wizardResultMsg:
		m.handleWizardResult(msg)
		return m, nil

	case progressMsg:
		m.runPercent = msg.percent
		m.runVisible = msg.visible
		return m, nil

	case runStartedMsg:
		m.runCancel = msg.cancel
		m.mode = ModeRunning
		m.runPercent, m.runVisible = 0, true
		return m, nil

	case RunDoneMsg:
		m.runCancel = nil
		m.runVisible = false
		m.mode = ModeNormal

		text := wrapLine(msg.Message, m.wrapWidth())
		if msg.Status == "completed" {
			text = styleSuccess.Render("✔ " + text)
		} else {
			text = styleError.Render("✖ " + text)
		}
		m.appendOutput(text + "\n")

	case BoxedOutputMsg:
		output := strings.TrimSpace(string(msg))
		if output == "" {
			break
		}
		boxWidth := m.viewport.Width - 4
		if boxWidth < 40 {
			boxWidth = 80
		}
		m.appendOutput(styleOutputBox.Width(boxWidth).Render(output) + "\n")

	case OutputMsg:
		m.lineBuffer += string(msg)
		for {
			idx := strings.Index(m.lineBuffer, "\n")
			if idx == -1 {
				break
			}
			line := m.lineBuffer[:idx]
			m.lineBuffer = m.lineBuffer[idx+1:]
			if cr := strings.LastIndex(line, "\r"); cr != -1 {
				line = line[cr+1:]
			}
			m.appendOutput(styleLine(line, m.wrapWidth()))
		}
	}

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.updateSuggestions()

	handleViewport := true
	if key, ok := msg.(tea.KeyMsg); ok {
		if key.Type == tea.KeyUp || key.Type == tea.KeyDown {
			handleViewport = false
		}
	}
	if handleViewport {
		m.viewport, vpCmd = m.viewport.Update(msg)
	}

	return m, tea.Batch(tiCmd, vpCmd)
}

// styleLine colours a captured output line by its log level.
func styleLine(line string, width int) string {
	var b strings.Builder
	lower := strings.ToLower(line)
	for _, wrapped := range strings.Split(wrapLine(line, width), "\n") {
		switch {
		case strings.Contains(lower, "[error]") || strings.Contains(lower, "failed"):
			b.WriteString(styleError.Render("✖ " + wrapped))
		case strings.Contains(lower, "[warn]"):
			b.WriteString(styleWarning.Render("! " + wrapped))
		case strings.Contains(lower, "completed") || strings.Contains(lower, "success"):
			b.WriteString(styleSuccess.Render("✔ " + wrapped))
		default:
			b.WriteString("  " + styleSystemOutput.Render(wrapped))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) leaveWizard() {
	m.mode = ModeNormal
	m.busy = false
	m.textInput.EchoMode = textinput.EchoNormal
	m.textInput.Reset()
	m.appendOutput(styleSystemOutput.Render("Wizard closed") + "\n")
}

func (m *Model) cancelRun() {
	if m.runCancel != nil {
		m.runCancel()
	} else {
		// wizard execution runs on the session context
		m.cancelled = true
		m.orch.Session().Close()
	}
	m.appendOutput(styleSystemOutput.Render("Cancelling... please wait") + "\n")
}

// acceptSuggestion completes the input from the highlighted suggestion.
// It returns false when Enter should fall through and submit the input.
func (m *Model) acceptSuggestion(enter bool) bool {
	if m.suggestionIdx < 0 || m.suggestionIdx >= len(m.suggestions) {
		return false
	}
	completion := strings.Fields(m.suggestions[m.suggestionIdx])[0]
	input := m.textInput.Value()

	var newValue string
	if idx := strings.LastIndex(input, "@"); idx != -1 && (idx == 0 || input[idx-1] == ' ') {
		newValue = input[:idx+1] + completion
	} else if strings.HasPrefix(input, "/") {
		newValue = completion
	} else {
		return false
	}
	if newValue == input && enter {
		m.suggestions = nil
		return false
	}
	m.textInput.SetValue(newValue)
	m.textInput.SetCursor(len(newValue))
	m.suggestions = nil
	m.suggestionIdx = 0
	return true
}

func (m *Model) updateSuggestions() {
	input := m.textInput.Value()
	if input == m.lastInput {
		return
	}
	m.lastInput = input
	m.suggestions = nil
	if m.mode != ModeNormal {
		return
	}

	if idx := strings.LastIndex(input, "@"); idx != -1 && (idx == 0 || input[idx-1] == ' ') {
		matches, err := filepath.Glob(input[idx+1:] + "*")
		if err == nil {
			if len(matches) > 15 {
				matches = matches[:15]
			}
			m.suggestions = matches
			m.suggestionIdx = 0
		}
	}

	if len(m.suggestions) == 0 && strings.HasPrefix(input, "/") && !strings.Contains(input, " ") {
		for _, cmd := range availableCommands {
			if strings.HasPrefix(cmd.Name, input) {
				m.suggestions = append(m.suggestions, fmt.Sprintf("%-10s %s", cmd.Name, cmd.Description))
			}
		}
		m.suggestionIdx = 0
	}
}

// autocompleteCommand attempts to complete the current input
func (m *Model) autocompleteCommand() {
	input := m.textInput.Value()

	if idx := strings.LastIndex(input, "@"); idx != -1 {
		matches, err := filepath.Glob(input[idx+1:] + "*")
		if err == nil && len(matches) > 0 {
			newValue := input[:idx+1] + matches[0]
			m.textInput.SetValue(newValue)
			m.textInput.SetCursor(len(newValue))
			m.suggestions = nil
			return
		}
	}

	for _, cmd := range availableCommands {
		if strings.HasPrefix(cmd.Name, input) {
			m.textInput.SetValue(cmd.Name)
			m.textInput.SetCursor(len(cmd.Name))
			return
		}
	}
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	suggestionsView := ""
	if len(m.suggestions) > 0 {
		var lines []string
		for i, s := range m.suggestions {
			style := lipgloss.NewStyle().Foreground(colorGray).PaddingLeft(2)
			if i == m.suggestionIdx {
				style = lipgloss.NewStyle().
					Foreground(colorWhite).
					Background(colorPurple).
					PaddingLeft(2).
					PaddingRight(2).
					Bold(true)
			}
			lines = append(lines, style.Render(s))
		}
		suggestionsView = strings.Join(lines, "\n") + "\n"
	}

	viewportView := styleViewport.Width(m.viewport.Width + 2).Render(m.viewport.View())

	progressView := ""
	if m.mode == ModeRunning && m.runVisible {
		progressView = "  " + m.progress.ViewAs(float64(m.runPercent)/100) + "\n"
	}

	return fmt.Sprintf("%s\n%s%s\n%s%s",
		viewportView,
		progressView,
		styleInputContainer.Width(m.width-2).Render(m.textInput.View()),
		suggestionsView,
		m.statusBarView(),
	)
}

func (m Model) statusBarView() string {
	w := lipgloss.Width
	s := m.orch.Session()

	url := styleStatusURL.Render(m.orch.Config().Server.BaseURL)

	dir := "no direction"
	if d := s.Direction(); d.Valid() {
		dir = fmt.Sprintf("%s -> %s", d.SourceType(), d.TargetType())
	}
	direction := styleStatusDirection.Render(dir)

	modeText := ""
	switch m.mode {
	case ModeWizard:
		modeText = styleStatusText.Render(" [wizard] ")
	case ModeRunning:
		modeText = styleStatusText.Render(" [running] ")
	}

	gates := s.Gates()
	var gate string
	if gates.Execution {
		gate = styleStatusReady.Render("Ready to execute")
	} else {
		gate = styleStatusLocked.Render("Next: " + gates.Current().String())
	}

	usedWidth := w(url) + w(direction) + w(modeText) + w(gate)
	spacerWidth := m.width - usedWidth
	if spacerWidth < 0 {
		spacerWidth = 0
	}
	spacer := styleStatusBar.Width(spacerWidth).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, url, direction, modeText, spacer, gate)
}

func (m Model) welcomeMessage() string {
	logo := fmt.Sprintf(`
       _      __ _ _
   ___| |__  / _(_) | ___
  / __| '_ \| |_| | |/ _ \
 | (__| | | |  _| | |  __/
  \___|_| |_|_| |_|_|\___|
  %s v%s
`, version.Description, version.Version)

	body := `
 Move data between ClickHouse and CSV files through the
 ingestion service at ` + m.orch.Config().Server.BaseURL + `

 Type /wizard to start, or /help to see available commands.
`

	tips := lipgloss.NewStyle().Foreground(colorGray).Render(`
 Tip: /run @job.yaml runs a saved job without prompts.
      Hold Shift to select text with mouse.`)

	return styleTitle.Render(logo) + body + tips
}

// wrapLine wraps text to fit within width, preserving word boundaries where
// possible. Words longer than width are split at the boundary.
func wrapLine(line string, width int) string {
	if width <= 0 || len(line) <= width {
		return line
	}

	var result strings.Builder
	currentLine := ""

	for _, word := range splitIntoWords(line) {
		if len(currentLine)+len(word) > width {
			if currentLine != "" {
				result.WriteString(currentLine)
				result.WriteString("\n")
			}
			for len(word) > width {
				result.WriteString(word[:width])
				result.WriteString("\n")
				word = word[width:]
			}
			currentLine = word
		} else {
			currentLine += word
		}
	}

	if currentLine != "" {
		result.WriteString(currentLine)
	}
	return result.String()
}

func splitIntoWords(s string) []string {
	var words []string
	var current strings.Builder

	for _, r := range s {
		if unicode.IsSpace(r) {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
			words = append(words, string(r))
		} else {
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

// Start runs the TUI against orch. When dir is set the wizard opens
// immediately for that direction.
func Start(orch *orchestrator.Orchestrator, dir model.Direction) error {
	m := NewModel(orch)
	m.autoStart = dir

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	SetProgramRef(p)
	defer SetProgramRef(nil)

	cleanup := CaptureOutput(p)
	defer cleanup()

	logging.Debug("tui started against %s", orch.Config().Server.BaseURL)
	_, err := p.Run()
	return err
}
