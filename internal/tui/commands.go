package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/johndauphine/chfile/internal/config"
	"github.com/johndauphine/chfile/internal/history"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/version"
)

const helpText = `Available Commands:
  /wizard [export|import]   Step through a transfer
  /run @job.yaml            Run a job file end to end
  /run --profile NAME       Run a saved profile
  /dryrun @job.yaml         Discover and preview without executing
  /validate @job.yaml       Check tables and columns against the service
  /health                   Check the service and ClickHouse
  /status                   Show wizard state and gates
  /history [RUN_ID]         Show ingestion history or one run
  /profile save NAME @job.yaml [description...]
  /profile list             List saved profiles
  /profile run NAME         Run a saved profile
  /profile delete NAME      Delete a saved profile
  /config                   Show configuration (secrets redacted)
  /clear                    Clear screen
  /quit                     Exit application

Ctrl+C cancels a running ingestion. Esc leaves the wizard.`

func outputf(format string, args ...any) tea.Cmd {
	text := fmt.Sprintf(format, args...)
	return func() tea.Msg { return OutputMsg(text) }
}

func boxed(text string) tea.Cmd {
	return func() tea.Msg { return BoxedOutputMsg(text) }
}

func (m *Model) handleCommand(cmdStr string) tea.Cmd {
	parts := strings.Fields(cmdStr)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return tea.Quit

	case "/clear":
		m.content.Reset()
		m.content.WriteString(m.welcomeMessage())
		m.viewport.SetContent(m.content.String())
		return nil

	case "/help":
		return boxed(helpText)

	case "/about":
		return boxed(fmt.Sprintf(`%s v%s

%s

Features:
- ClickHouse to CSV export, CSV or XLSX to ClickHouse import
- Column selection with a preview before every run
- Exports to disk or S3, optionally compressed
- Run history and encrypted job profiles
- Slack notifications

Built with Go and Bubble Tea.`, version.Name, version.Version, version.Description))

	case "/wizard":
		var dir model.Direction
		if len(parts) > 1 {
			d, err := model.ParseDirection(parts[1])
			if err != nil {
				return outputf("Error: %v\n", err)
			}
			dir = d
		}
		m.textInput.Reset()
		return m.startWizard(dir)

	case "/config":
		return boxed(m.orch.Config().Redacted())

	case "/status":
		return boxed(m.statusReport())

	case "/health":
		return m.healthCmd()

	case "/run", "/dryrun", "/validate":
		jobFile, profile := parseJobArgs(parts)
		if jobFile == "" && profile == "" {
			return outputf("Usage: %s @job.yaml | --profile NAME\n", parts[0])
		}
		job, err := m.loadJob(jobFile, profile)
		if err != nil {
			return outputf("Error loading job: %v\n", err)
		}
		switch parts[0] {
		case "/run":
			label := jobFile
			if profile != "" {
				label = "profile " + profile
			}
			return m.runJobCmd(job, label)
		case "/dryrun":
			return m.dryRunCmd(job)
		default:
			return m.validateCmd(job)
		}

	case "/history":
		runID := ""
		if len(parts) > 1 {
			runID = parts[1]
		}
		return m.historyCmd(runID)

	case "/profile":
		return m.handleProfileCommand(parts)
	}

	return outputf("Unknown command: %s (try /help)\n", parts[0])
}

// parseJobArgs reads "@file", "file" or "--profile NAME".
func parseJobArgs(parts []string) (jobFile, profile string) {
	for i := 1; i < len(parts); i++ {
		arg := parts[i]
		if arg == "--profile" && i+1 < len(parts) {
			profile = parts[i+1]
			i++
			continue
		}
		jobFile = strings.TrimPrefix(arg, "@")
	}
	return jobFile, profile
}

func (m *Model) loadJob(jobFile, profile string) (*config.Job, error) {
	cfg := m.orch.Config()
	if profile != "" {
		state := m.orch.History()
		if state == nil {
			return nil, errors.New("history store is not available")
		}
		data, err := state.GetProfile(profile)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", profile, err)
		}
		return config.ParseJob(data, cfg)
	}
	return config.LoadJob(jobFile, cfg)
}

func (m *Model) statusReport() string {
	s := m.orch.Session()
	snap := s.Store().Snapshot()
	g := s.Gates()

	var b strings.Builder
	fmt.Fprintf(&b, "Direction:   %s\n", orNone(string(s.Direction())))
	if snap.Connection != nil {
		fmt.Fprintf(&b, "ClickHouse:  %s\n", snap.Connection.String())
	}
	switch {
	case snap.Blob != nil:
		fmt.Fprintf(&b, "Upload:      %s (%d bytes)\n", snap.Blob.Name, snap.Blob.Size())
	case snap.File != nil:
		fmt.Fprintf(&b, "File:        %s\n", orNone(snap.File.FileName))
	}
	fmt.Fprintf(&b, "Table:       %s\n", orNone(snap.Table))
	fmt.Fprintf(&b, "Target:      %s\n", orNone(snap.TargetTable))
	fmt.Fprintf(&b, "Columns:     %d selected of %d\n", len(model.SelectedOnly(s.Columns())), len(s.Columns()))
	_, state, msg := s.PreviewOutcome()
	fmt.Fprintf(&b, "Preview:     %s\n", previewLabel(state.Completed(), msg))
	fmt.Fprintf(&b, "\nSource %v  Target %v  Columns %v  Preview %v  Execute %v\n",
		mark(g.Source), mark(g.Target), mark(g.ColumnSelection), mark(g.Preview), mark(g.Execution))
	if st := s.Status(); st.Message != "" {
		fmt.Fprintf(&b, "Last status: %s\n", st.Message)
	}
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func mark(ok bool) string {
	if ok {
		return "✔"
	}
	return "✖"
}

func previewLabel(done bool, msg string) string {
	switch {
	case done && msg != "":
		return msg
	case done:
		return "done"
	case msg != "":
		return "failed: " + msg
	}
	return "not run"
}

// reporter forwards executor progress to the program.
type reporter struct{}

func (reporter) Update(percent int, visible bool) {
	send(progressMsg{percent: percent, visible: visible})
}

func (m *Model) runJobCmd(job *config.Job, label string) tea.Cmd {
	orch := m.orch
	ctx, cancel := context.WithCancel(context.Background())
	started := func() tea.Msg { return runStartedMsg{cancel: cancel} }
	run := func() tea.Msg {
		defer cancel()
		send(OutputMsg(fmt.Sprintf("Starting %s ingestion with %s\n", job.Dir(), label)))
		res, err := orch.Run(ctx, job, reporter{})
		switch {
		case errors.Is(err, context.Canceled):
			return RunDoneMsg{Status: "cancelled", Message: "Ingestion cancelled"}
		case err != nil:
			return RunDoneMsg{Status: "failed", Message: err.Error()}
		}
		msg := res.Message
		if res.RunID != "" {
			msg += fmt.Sprintf(" (run %s)", res.RunID)
		}
		return RunDoneMsg{Status: "completed", Message: msg}
	}
	return tea.Sequence(started, run)
}

func (m *Model) dryRunCmd(job *config.Job) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		res, err := orch.DryRun(ctx, job)
		if err != nil {
			return OutputMsg(fmt.Sprintf("Dry run failed: %v\n", err))
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Dry run: %s\n", res.Direction)
		fmt.Fprintf(&b, "  %s -> %s\n", res.Source, res.Target)
		fmt.Fprintf(&b, "  %d of %d columns selected\n", res.Selected, len(res.Columns))
		fmt.Fprintf(&b, "  preview: %d rows %s\n", res.PreviewRows, res.PreviewNote)
		return BoxedOutputMsg(b.String())
	}
}

func (m *Model) validateCmd(job *config.Job) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		report, err := orch.Validate(ctx, job)
		if err != nil {
			return OutputMsg(fmt.Sprintf("Validation error: %v\n", err))
		}
		if report.Failed() {
			return OutputMsg("Validation failed\n")
		}
		return OutputMsg("Validation completed without failures\n")
	}
}

func (m *Model) healthCmd() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		r := orch.HealthCheck(context.Background(), orch.Config().Server.BaseURL)
		var b strings.Builder
		fmt.Fprintf(&b, "Service     %s  %s (%dms)\n", mark(r.ServiceHealthy), r.ServiceURL, r.ServiceLatencyMs)
		if r.ServiceError != "" {
			fmt.Fprintf(&b, "            %s\n", r.ServiceError)
		}
		fmt.Fprintf(&b, "ClickHouse  %s  %s (%dms, %d tables)\n", mark(r.ClickHouseConnected), r.ClickHouse, r.ClickHouseLatencyMs, r.ClickHouseTables)
		if r.ClickHouseError != "" {
			fmt.Fprintf(&b, "            %s\n", r.ClickHouseError)
		}
		return BoxedOutputMsg(b.String())
	}
}

func (m *Model) historyCmd(runID string) tea.Cmd {
	state := m.orch.History()
	return func() tea.Msg {
		if state == nil {
			return OutputMsg("Error: history store is not available\n")
		}
		if runID != "" {
			run, err := state.GetRunByID(runID)
			if err != nil {
				return OutputMsg(fmt.Sprintf("Error: run %s: %v\n", runID, err))
			}
			return BoxedOutputMsg(renderRun(run))
		}
		runs, err := state.GetAllRuns(20)
		if err != nil {
			return OutputMsg(fmt.Sprintf("Error loading history: %v\n", err))
		}
		if len(runs) == 0 {
			return OutputMsg("No ingestion runs recorded yet\n")
		}
		return BoxedOutputMsg(renderHistory(runs))
	}
}

func (m *Model) handleProfileCommand(parts []string) tea.Cmd {
	if len(parts) < 2 {
		return outputf("Usage: /profile save|list|run|delete\n")
	}
	state := m.orch.History()
	if state == nil {
		return outputf("Error: history store is not available\n")
	}

	switch parts[1] {
	case "list":
		return func() tea.Msg {
			profiles, err := state.ListProfiles()
			if err != nil {
				return OutputMsg(fmt.Sprintf("Error listing profiles: %v\n", err))
			}
			if len(profiles) == 0 {
				return OutputMsg("No profiles saved\n")
			}
			return BoxedOutputMsg(renderProfiles(profiles))
		}

	case "save":
		if len(parts) < 4 {
			return outputf("Usage: /profile save NAME @job.yaml [description]\n")
		}
		name, file := parts[2], strings.TrimPrefix(parts[3], "@")
		desc := strings.Join(parts[4:], " ")
		cfg := m.orch.Config()
		return func() tea.Msg {
			data, err := os.ReadFile(file)
			if err != nil {
				return OutputMsg(fmt.Sprintf("Error reading job: %v\n", err))
			}
			if _, err := config.ParseJob(data, cfg); err != nil {
				return OutputMsg(fmt.Sprintf("Error: invalid job: %v\n", err))
			}
			if err := state.SaveProfile(name, desc, data); err != nil {
				return OutputMsg(fmt.Sprintf("Error saving profile: %v\n", err))
			}
			return OutputMsg(fmt.Sprintf("Profile %q saved successfully\n", name))
		}

	case "run":
		if len(parts) < 3 {
			return outputf("Usage: /profile run NAME\n")
		}
		job, err := m.loadJob("", parts[2])
		if err != nil {
			return outputf("Error loading job: %v\n", err)
		}
		return m.runJobCmd(job, "profile "+parts[2])

	case "delete":
		if len(parts) < 3 {
			return outputf("Usage: /profile delete NAME\n")
		}
		name := parts[2]
		return func() tea.Msg {
			if err := state.DeleteProfile(name); err != nil {
				if errors.Is(err, history.ErrNotFound) {
					return OutputMsg(fmt.Sprintf("Error: profile %q not found\n", name))
				}
				return OutputMsg(fmt.Sprintf("Error deleting profile: %v\n", err))
			}
			return OutputMsg(fmt.Sprintf("Profile %q deleted\n", name))
		}
	}
	return outputf("Unknown profile command: %s\n", parts[1])
}
