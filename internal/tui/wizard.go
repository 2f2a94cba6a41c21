package tui

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/johndauphine/chfile/internal/blob"
	"github.com/johndauphine/chfile/internal/executor"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/session"
)

type wizardStep int

const (
	stepDirection wizardStep = iota
	stepFile
	stepDelimiter
	stepHeader
	stepEncoding
	stepHost
	stepPort
	stepDatabase
	stepUser
	stepToken
	stepSecure
	stepTable
	stepTargetTable
	stepColumns
	stepConfirm
	stepDone
)

// Prompt order per direction. The source side comes first.
var (
	exportFlow = []wizardStep{
		stepDirection,
		stepHost, stepPort, stepDatabase, stepUser, stepToken, stepSecure,
		stepTable,
		stepDelimiter, stepHeader, stepEncoding,
		stepColumns, stepConfirm,
	}
	importFlow = []wizardStep{
		stepDirection,
		stepFile, stepDelimiter, stepHeader, stepEncoding,
		stepHost, stepPort, stepDatabase, stepUser, stepToken, stepSecure,
		stepTargetTable,
		stepColumns, stepConfirm,
	}
)

// wizard holds what the user typed before it is stored in the session.
type wizard struct {
	step wizardStep
	dir  model.Direction
	conn model.ConnectionConfig
	file model.FileConfig
	path string // import source: local file or remote reference
}

func (w *wizard) flow() []wizardStep {
	if w.dir == model.DirectionImport {
		return importFlow
	}
	return exportFlow
}

// after returns the step that follows s in the current flow.
func (w *wizard) after(s wizardStep) wizardStep {
	flow := w.flow()
	for i, step := range flow {
		if step == s && i+1 < len(flow) {
			return flow[i+1]
		}
	}
	return stepDone
}

// wizardResultMsg carries the outcome of a remote wizard step.
type wizardResultMsg struct {
	next   wizardStep // step to prompt on success
	retry  wizardStep // step to prompt on failure
	err    error
	status session.Status
	output string
	done   bool // the wizard is finished
}

func (m *Model) startWizard(dir model.Direction) tea.Cmd {
	cfg := m.orch.Config()
	m.mode = ModeWizard
	m.wizard = wizard{
		step: stepDirection,
		conn: cfg.ClickHouse,
		file: cfg.File,
	}
	m.appendOutput(styleTitle.Render("Ingestion wizard") + "\n")
	m.appendOutput(styleDim.Render("Press Enter to accept [defaults], Esc to leave.") + "\n")
	if dir.Valid() {
		return m.handleWizardStep(string(dir))
	}
	m.appendOutput(m.renderWizardPrompt())
	return nil
}

func (m *Model) handleWizardStep(input string) tea.Cmd {
	if m.busy {
		return nil
	}
	shown := input
	if m.wizard.step == stepToken && input != "" {
		shown = strings.Repeat("*", 6)
	}
	if input != "" {
		m.appendOutput(styleUserInput.Render("> "+shown) + "\n")
		m.textInput.Reset()
	} else {
		m.appendOutput(styleUserInput.Render("  (default)") + "\n")
	}

	if cmd := m.processWizardInput(strings.TrimSpace(input)); cmd != nil {
		m.busy = true
		return cmd
	}
	if m.mode == ModeWizard {
		m.appendOutput(m.renderWizardPrompt())
	}
	return nil
}

func yes(input string, def bool) bool {
	switch strings.ToLower(input) {
	case "y", "yes", "true":
		return true
	case "n", "no", "false":
		return false
	}
	return def
}

// processWizardInput applies input to the current step. It returns a
// command when the step needs the service.
func (m *Model) processWizardInput(input string) tea.Cmd {
	w := &m.wizard
	s := m.orch.Session()

	switch w.step {
	case stepDirection:
		if input == "" {
			input = string(model.DirectionExport)
		}
		dir, err := model.ParseDirection(input)
		if err != nil {
			m.appendOutput(styleError.Render("✖ "+err.Error()) + "\n")
			return nil
		}
		if err := s.SetDirection(dir); err != nil {
			m.appendOutput(styleError.Render("✖ "+err.Error()) + "\n")
			return nil
		}
		w.dir = dir
		m.appendOutput(styleDim.Render(fmt.Sprintf("%s -> %s", dir.SourceType(), dir.TargetType())) + "\n")

	case stepFile:
		if input == "" && w.path == "" {
			m.appendOutput(styleError.Render("✖ a file path or URL is required") + "\n")
			return nil
		}
		if input != "" {
			w.path = input
		}
	case stepDelimiter:
		if input != "" {
			w.file.Delimiter = input
		}
	case stepHeader:
		w.file.HasHeader = yes(input, w.file.HasHeader)
	case stepEncoding:
		if input != "" {
			if _, err := blob.LookupEncoding(input); err != nil {
				m.appendOutput(styleError.Render("✖ "+err.Error()) + "\n")
				return nil
			}
			w.file.Encoding = input
		}
		if w.dir == model.DirectionImport {
			return m.attachFileCmd()
		}
		return m.discoverCmd(stepDelimiter)

	case stepHost:
		if input != "" {
			w.conn.Host = input
		}
	case stepPort:
		if input != "" {
			port, err := strconv.Atoi(input)
			if err != nil {
				m.appendOutput(styleError.Render("✖ port must be a number") + "\n")
				return nil
			}
			w.conn.Port = port
		}
	case stepDatabase:
		if input != "" {
			w.conn.Database = input
		}
	case stepUser:
		if input != "" {
			w.conn.User = input
		}
	case stepToken:
		if input != "" {
			w.conn.JWTToken = input
		}
		m.textInput.EchoMode = textinput.EchoNormal
	case stepSecure:
		w.conn.Secure = yes(input, w.conn.Secure)
		return m.connectCmd()

	case stepTable:
		tables := s.Tables()
		name := input
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(tables) {
			name = tables[n-1]
		}
		if name == "" {
			m.appendOutput(styleError.Render("✖ choose a table") + "\n")
			return nil
		}
		if err := s.SelectTable(name); err != nil {
			m.appendOutput(styleError.Render("✖ "+err.Error()) + "\n")
			return nil
		}
	case stepTargetTable:
		if input == "" {
			m.appendOutput(styleError.Render("✖ a target table name is required") + "\n")
			return nil
		}
		if err := s.SetTargetTable(input); err != nil {
			m.appendOutput(styleError.Render("✖ "+err.Error()) + "\n")
			return nil
		}
		return m.discoverCmd(stepTargetTable)

	case stepColumns:
		if input == "" {
			return m.previewCmd()
		}
		if err := applyColumnInput(s, input); err != nil {
			m.appendOutput(styleError.Render("✖ "+err.Error()) + "\n")
		}
		m.appendOutput(renderColumns(s.Columns()) + "\n")
		return nil

	case stepConfirm:
		if !yes(input, true) {
			m.appendOutput(styleDim.Render("Adjust the columns, or press Enter on an empty selection to preview again.") + "\n")
			w.step = stepColumns
			m.appendOutput(renderColumns(s.Columns()) + "\n")
			return nil
		}
		return m.executeCmd()
	}

	w.step = w.after(w.step)
	return nil
}

func (m *Model) renderWizardPrompt() string {
	w := &m.wizard
	side := "Source"
	if w.dir == model.DirectionImport {
		side = "Target"
	}
	switch w.step {
	case stepDirection:
		return "Direction (export: ClickHouse -> file, import: file -> ClickHouse) [export]: "
	case stepFile:
		return fmt.Sprintf("Source file (local path, .csv or .xlsx, or server path/URL) [%s]: ", w.path)
	case stepDelimiter:
		return fmt.Sprintf("Delimiter [%s]: ", w.file.Delimiter)
	case stepHeader:
		def := "n"
		if w.file.HasHeader {
			def = "y"
		}
		return fmt.Sprintf("Header row? (y/n) [%s]: ", def)
	case stepEncoding:
		return fmt.Sprintf("Encoding [%s]: ", w.file.Encoding)
	case stepHost:
		return fmt.Sprintf("%s ClickHouse Host [%s]: ", side, w.conn.Host)
	case stepPort:
		return fmt.Sprintf("%s ClickHouse Port [%d]: ", side, w.conn.Port)
	case stepDatabase:
		return fmt.Sprintf("%s ClickHouse Database [%s]: ", side, w.conn.Database)
	case stepUser:
		return fmt.Sprintf("%s ClickHouse User [%s]: ", side, w.conn.User)
	case stepToken:
		m.textInput.EchoMode = textinput.EchoPassword
		if w.conn.JWTToken != "" {
			return "JWT Token [******]: "
		}
		return "JWT Token []: "
	case stepSecure:
		def := "n"
		if w.conn.Secure {
			def = "y"
		}
		return fmt.Sprintf("Use TLS? (y/n) [%s]: ", def)
	case stepTable:
		return "Source table (name or number): "
	case stepTargetTable:
		return "Target table name: "
	case stepColumns:
		return "Columns (numbers or ranges to toggle, all, none, +name, -name; Enter to preview): "
	case stepConfirm:
		return "Start ingestion? (y/n) [y]: "
	}
	return ""
}

// applyColumnInput edits the selection: "all", "none", or a list of
// 1-based numbers, ranges ("2-4"), names to toggle and +name/-name.
func applyColumnInput(s *session.Session, input string) error {
	switch strings.ToLower(input) {
	case "all", "*":
		return s.SelectAll()
	case "none":
		return s.DeselectAll()
	}

	cols := s.Columns()
	for _, tok := range strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ' ' }) {
		switch {
		case strings.HasPrefix(tok, "+"):
			if err := s.SetColumn(tok[1:], true); err != nil {
				return err
			}
		case strings.HasPrefix(tok, "-") && !isDigit(tok[1:]):
			if err := s.SetColumn(tok[1:], false); err != nil {
				return err
			}
		default:
			lo, hi, err := parseRange(tok, cols)
			if err != nil {
				return err
			}
			for i := lo; i <= hi; i++ {
				if err := s.Toggle(i); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func isDigit(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// parseRange resolves "3", "2-4" or a column name to 0-based indexes.
func parseRange(tok string, cols []model.Column) (int, int, error) {
	if a, b, ok := strings.Cut(tok, "-"); ok && isDigit(a) && isDigit(b) {
		lo, _ := strconv.Atoi(a)
		hi, _ := strconv.Atoi(b)
		if lo < 1 || hi > len(cols) || lo > hi {
			return 0, 0, fmt.Errorf("range %s out of bounds (1-%d)", tok, len(cols))
		}
		return lo - 1, hi - 1, nil
	}
	if n, err := strconv.Atoi(tok); err == nil {
		if n < 1 || n > len(cols) {
			return 0, 0, fmt.Errorf("column %d out of range (1-%d)", n, len(cols))
		}
		return n - 1, n - 1, nil
	}
	for i, c := range cols {
		if c.Name == tok {
			return i, i, nil
		}
	}
	return 0, 0, fmt.Errorf("unknown column %q", tok)
}

// Remote wizard steps. Each runs off the update loop and reports back
// with a wizardResultMsg.

func (m *Model) connectCmd() tea.Cmd {
	s := m.orch.Session()
	w := m.wizard
	return func() tea.Msg {
		if err := s.SetConnection(w.conn); err != nil {
			return wizardResultMsg{retry: stepHost, err: err}
		}
		if err := s.TestConnection(); err != nil {
			return wizardResultMsg{retry: stepHost, err: err, status: s.Status()}
		}
		st := s.Status()
		if err := s.ListTables(); err != nil {
			return wizardResultMsg{retry: stepHost, err: err, status: s.Status()}
		}
		tables := s.Tables()
		var b strings.Builder
		for i, t := range tables {
			fmt.Fprintf(&b, "  %3d  %s\n", i+1, t)
		}
		if len(tables) == 0 {
			b.WriteString("  (no tables)\n")
		}
		return wizardResultMsg{next: w.after(stepSecure), status: st, output: b.String()}
	}
}

func (m *Model) attachFileCmd() tea.Cmd {
	s := m.orch.Session()
	w := m.wizard
	return func() tea.Msg {
		file := w.file
		if _, err := os.Stat(w.path); err == nil {
			file.FileName = ""
			if err := s.SetFileConfig(file); err != nil {
				return wizardResultMsg{retry: stepFile, err: err}
			}
			b, err := blob.Load(w.path, file.Delimiter, "")
			if err != nil {
				return wizardResultMsg{retry: stepFile, err: err}
			}
			if err := blob.CheckEncoding(b.Data, file.Encoding); err != nil {
				return wizardResultMsg{retry: stepEncoding, err: err}
			}
			if err := s.AttachBlob(b); err != nil {
				return wizardResultMsg{retry: stepFile, err: err}
			}
			return wizardResultMsg{next: w.after(stepEncoding), output: fmt.Sprintf("  uploading %s (%d bytes)\n", b.Name, b.Size())}
		}
		file.FileName = w.path
		if err := s.SetFileConfig(file); err != nil {
			return wizardResultMsg{retry: stepFile, err: err}
		}
		return wizardResultMsg{next: w.after(stepEncoding), output: fmt.Sprintf("  %s is not a local file; the service will read it\n", w.path)}
	}
}

func (m *Model) discoverCmd(retry wizardStep) tea.Cmd {
	s := m.orch.Session()
	w := m.wizard
	return func() tea.Msg {
		if w.dir == model.DirectionExport {
			if err := s.SetFileConfig(w.file); err != nil {
				return wizardResultMsg{retry: retry, err: err}
			}
		}
		if err := s.DiscoverSchema(); err != nil {
			return wizardResultMsg{retry: retry, err: err, status: s.Status()}
		}
		cols := s.Columns()
		if len(cols) == 0 {
			return wizardResultMsg{retry: retry, err: fmt.Errorf("no columns"), status: s.Status()}
		}
		return wizardResultMsg{next: stepColumns, status: s.Status(), output: renderColumns(cols) + "\n"}
	}
}

func (m *Model) previewCmd() tea.Cmd {
	s := m.orch.Session()
	return func() tea.Msg {
		err := s.Preview()
		res, _, _ := s.PreviewOutcome()
		if err != nil || !s.Gates().Execution {
			if err == nil {
				err = fmt.Errorf("preview incomplete")
			}
			return wizardResultMsg{retry: stepColumns, err: err, status: s.Status()}
		}
		return wizardResultMsg{next: stepConfirm, status: s.Status(), output: renderPreview(res) + "\n"}
	}
}

func (m *Model) executeCmd() tea.Cmd {
	s := m.orch.Session()
	m.mode = ModeRunning
	m.runPercent, m.runVisible = 0, true
	return func() tea.Msg {
		s.Executor().SetHooks(executor.Hooks{
			Progress: func(p int, visible bool) { send(progressMsg{percent: p, visible: visible}) },
		})
		defer s.Executor().SetHooks(executor.Hooks{})

		out, err := s.Execute()
		if err != nil {
			return wizardResultMsg{retry: stepConfirm, err: err, status: s.Status()}
		}
		text := ""
		if exp, ok := out.(*executor.ExportOutcome); ok {
			text = fmt.Sprintf("  saved to %s\n", exp.SavedTo)
		}
		return wizardResultMsg{done: true, status: s.Status(), output: text}
	}
}

// handleWizardResult reports a finished remote step and moves on.
func (m *Model) handleWizardResult(msg wizardResultMsg) {
	m.busy = false
	if m.mode == ModeRunning {
		m.mode = ModeWizard
		m.runVisible = false
	}
	if msg.status.Message != "" {
		m.appendOutput(styleStatus(msg.status) + "\n")
	} else if msg.err != nil {
		m.appendOutput(styleError.Render("✖ "+msg.err.Error()) + "\n")
	}
	if msg.output != "" {
		m.appendOutput(msg.output)
	}
	if m.cancelled {
		m.cancelled = false
		m.mode = ModeNormal
		m.appendOutput(styleDim.Render("Ingestion cancelled. Run /wizard to start again.") + "\n")
		return
	}
	if m.mode != ModeWizard {
		return
	}

	switch {
	case msg.done:
		m.mode = ModeNormal
		m.wizard.step = stepDone
		return
	case msg.err != nil:
		m.wizard.step = msg.retry
	default:
		m.wizard.step = msg.next
	}
	m.appendOutput(m.renderWizardPrompt())
}

func styleStatus(st session.Status) string {
	switch st.Level {
	case session.LevelSuccess:
		return styleSuccess.Render("✔ " + st.Message)
	case session.LevelWarning:
		return styleWarning.Render("! " + st.Message)
	case session.LevelError:
		return styleError.Render("✖ " + st.Message)
	}
	return styleSystemOutput.Render("  " + st.Message)
}
