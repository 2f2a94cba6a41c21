package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/johndauphine/chfile/internal/blob"
	"github.com/johndauphine/chfile/internal/client"
	"github.com/johndauphine/chfile/internal/config"
	"github.com/johndauphine/chfile/internal/executor"
	"github.com/johndauphine/chfile/internal/history"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/orchestrator"
	"github.com/johndauphine/chfile/internal/progress"
	"github.com/johndauphine/chfile/internal/secrets"
	"github.com/johndauphine/chfile/internal/tui"
	"github.com/johndauphine/chfile/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func jobFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "job", Aliases: []string{"j"}, Usage: "Path to a job file"},
		&cli.StringFlag{Name: "profile", Aliases: []string{"p"}, Usage: "Name of a saved profile"},
	}
}

func connFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Usage: "ClickHouse host (overrides config)"},
		&cli.IntFlag{Name: "port", Usage: "ClickHouse port (overrides config)"},
		&cli.StringFlag{Name: "database", Usage: "ClickHouse database (overrides config)"},
		&cli.StringFlag{Name: "user", Usage: "ClickHouse user (overrides config)"},
		&cli.BoolFlag{Name: "secure", Usage: "Use TLS to reach ClickHouse"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    version.Name,
		Usage:   version.Description,
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (default: ./" + config.DefaultFile + " if present)",
			},
			&cli.StringFlag{Name: "base-url", Usage: "Ingestion service URL", EnvVars: []string{config.EnvBaseURL}},
			&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "log-format", Usage: "Log format (text or json)"},
			&cli.BoolFlag{Name: "output-json", Usage: "Print the command result as JSON"},
			&cli.StringFlag{Name: "output-file", Usage: "Write the command result as JSON to this file"},
		},
		Action: func(c *cli.Context) error { return startTUI(c, model.DirectionNone) },
		Commands: []*cli.Command{
			{
				Name:  "wizard",
				Usage: "Open the interactive wizard",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "direction", Aliases: []string{"d"}, Usage: "export or import"},
				},
				Action: func(c *cli.Context) error {
					var dir model.Direction
					if s := c.String("direction"); s != "" {
						d, err := model.ParseDirection(s)
						if err != nil {
							return err
						}
						dir = d
					}
					return startTUI(c, dir)
				},
			},
			{
				Name:   "test-connection",
				Usage:  "Check that the service can reach ClickHouse",
				Flags:  connFlags(),
				Action: testConnection,
			},
			{
				Name:   "tables",
				Usage:  "List ClickHouse tables",
				Flags:  connFlags(),
				Action: listTables,
			},
			{
				Name:  "schema",
				Usage: "Show the columns of a table (--table) or a file (--file)",
				Flags: append(connFlags(),
					&cli.StringFlag{Name: "table", Aliases: []string{"t"}, Usage: "ClickHouse table"},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Local file to upload, or a path the service can read"},
					&cli.StringFlag{Name: "sheet", Usage: "Worksheet when --file is .xlsx"},
				),
				Action: showSchema,
			},
			{
				Name:   "preview",
				Usage:  "Preview the rows a job would transfer",
				Flags:  jobFlags(),
				Action: previewJob,
			},
			{
				Name:  "run",
				Usage: "Run a job end to end",
				Flags: append(jobFlags(),
					&cli.BoolFlag{Name: "no-progress", Usage: "Hide the progress bar"},
				),
				Action: runJob,
			},
			{
				Name:   "dry-run",
				Usage:  "Discover and preview a job without executing it",
				Flags:  jobFlags(),
				Action: dryRun,
			},
			{
				Name:   "validate",
				Usage:  "Check a job's tables and columns against the service",
				Flags:  jobFlags(),
				Action: validateJob,
			},
			{
				Name:   "health",
				Usage:  "Check the service and ClickHouse connectivity",
				Action: healthCheck,
			},
			{
				Name:  "history",
				Usage: "List ingestion runs, or show one with --run",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "run", Usage: "Show details for a specific run ID"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum runs to list"},
				},
				Action: showHistory,
			},
			{
				Name:  "profile",
				Usage: "Manage encrypted job profiles",
				Subcommands: []*cli.Command{
					{
						Name:  "save",
						Usage: "Save a job file as a profile",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true},
							&cli.StringFlag{Name: "job", Aliases: []string{"j"}, Required: true},
							&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
						},
						Action: profileSave,
					},
					{
						Name:   "list",
						Usage:  "List saved profiles",
						Action: profileList,
					},
					{
						Name:  "delete",
						Usage: "Delete a profile",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true},
						},
						Action: profileDelete,
					},
					{
						Name:  "export",
						Usage: "Write a profile back to a job file",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true},
							&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "job.yaml"},
						},
						Action: profileExport,
					},
				},
			},
			{
				Name:  "init-secrets",
				Usage: "Write a secrets file template",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
				Action: initSecrets,
			},
			{
				Name:   "config",
				Usage:  "Show the effective configuration with secrets masked",
				Action: showConfig,
			},
		},
	}
}

// lookup returns the value of a string flag from the closest context that
// set it.
func lookup(c *cli.Context, name string) string {
	for _, ctx := range c.Lineage() {
		if ctx.IsSet(name) {
			return ctx.String(name)
		}
	}
	return ""
}

func lookupBool(c *cli.Context, name string) bool {
	for _, ctx := range c.Lineage() {
		if ctx.IsSet(name) {
			return ctx.Bool(name)
		}
	}
	return false
}

// loadConfig reads the config, applies flag overrides and secrets, and
// sets the logger up.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(lookup(c, "config"))
	if err != nil {
		return nil, err
	}
	if u := lookup(c, "base-url"); u != "" {
		cfg.Server.BaseURL = u
	}
	if lvl := lookup(c, "log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if f := lookup(c, "log-format"); f != "" {
		cfg.Logging.Format = f
	}
	if lvl, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		logging.SetLevel(lvl)
	}
	logging.SetFormat(cfg.Logging.Format)

	sec, err := secrets.LoadOptional()
	if err != nil {
		logging.Warn("Ignoring secrets file: %v", err)
	} else {
		cfg.ApplySecrets(sec)
	}
	return cfg, nil
}

// applyConnFlags overrides the configured connection from flags.
func applyConnFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("host") {
		cfg.ClickHouse.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.ClickHouse.Port = c.Int("port")
	}
	if c.IsSet("database") {
		cfg.ClickHouse.Database = c.String("database")
	}
	if c.IsSet("user") {
		cfg.ClickHouse.User = c.String("user")
	}
	if c.IsSet("secure") {
		cfg.ClickHouse.Secure = c.Bool("secure")
	}
}

// env is what most commands need: config, history store and orchestrator.
type env struct {
	cfg   *config.Config
	state *history.State
	orch  *orchestrator.Orchestrator
}

func (e *env) Close() {
	if e.orch != nil {
		e.orch.Close()
	}
	if e.state != nil {
		e.state.Close()
	}
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	applyConnFlags(c, cfg)
	return newEnv(cfg)
}

func newEnv(cfg *config.Config) (*env, error) {
	e := &env{cfg: cfg}

	var backend history.Backend
	state, err := history.New(cfg.StateDir())
	if err != nil {
		logging.Warn("Run history disabled: %v", err)
	} else {
		e.state = state
		backend = state
	}

	remote := client.New(cfg.Server.BaseURL, client.WithTimeout(cfg.Server.Timeout))
	orch, err := orchestrator.New(cfg, remote, backend, nil)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	e.orch = orch
	return e, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted. Cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// outputJSON writes result as JSON to stdout (--output-json) and/or a
// file (--output-file). It does nothing when neither is set.
func outputJSON(c *cli.Context, result any) error {
	toStdout := lookupBool(c, "output-json")
	outFile := lookup(c, "output-file")
	if !toStdout && outFile == "" {
		return nil
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if toStdout {
		fmt.Println(string(data))
	}
	if outFile != "" {
		if err := os.WriteFile(outFile, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", outFile, err)
		}
	}
	return nil
}

func wantJSON(c *cli.Context) bool {
	return lookupBool(c, "output-json")
}

func startTUI(c *cli.Context, dir model.Direction) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	return tui.Start(e.orch, dir)
}

// loadJob reads --job or the --profile from the history store.
func loadJob(c *cli.Context, e *env) (*config.Job, error) {
	if name := c.String("profile"); name != "" {
		if e.state == nil {
			return nil, errors.New("history store is not available")
		}
		data, err := e.state.GetProfile(name)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		return config.ParseJob(data, e.cfg)
	}
	path := c.String("job")
	if path == "" {
		return nil, errors.New("--job or --profile is required")
	}
	return config.LoadJob(path, e.cfg)
}

func testConnection(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	s := e.orch.Session()
	if err := s.SetDirection(model.DirectionExport); err != nil {
		return err
	}
	if err := s.SetConnection(e.cfg.ClickHouse); err != nil {
		return err
	}
	err = s.TestConnection()
	result := map[string]any{
		"connection": e.cfg.ClickHouse.String(),
		"ok":         err == nil,
		"message":    s.Status().Message,
	}
	if jerr := outputJSON(c, result); jerr != nil {
		return jerr
	}
	if !wantJSON(c) {
		fmt.Println(s.Status().Message)
	}
	if err != nil {
		return fmt.Errorf("connection to %s failed", e.cfg.ClickHouse)
	}
	return nil
}

func listTables(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	s := e.orch.Session()
	if err := s.SetDirection(model.DirectionExport); err != nil {
		return err
	}
	if err := s.SetConnection(e.cfg.ClickHouse); err != nil {
		return err
	}
	if err := s.ListTables(); err != nil {
		return fmt.Errorf("%s: %w", s.Status().Message, err)
	}
	tables := s.Tables()
	if err := outputJSON(c, map[string]any{"tables": tables}); err != nil {
		return err
	}
	if !wantJSON(c) {
		for _, t := range tables {
			fmt.Println(t)
		}
	}
	return nil
}

func showSchema(c *cli.Context) error {
	table, file := c.String("table"), c.String("file")
	if (table == "") == (file == "") {
		return errors.New("exactly one of --table or --file is required")
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	s := e.orch.Session()
	if table != "" {
		if err := s.SetDirection(model.DirectionExport); err != nil {
			return err
		}
		if err := s.SetConnection(e.cfg.ClickHouse); err != nil {
			return err
		}
		if err := s.SelectTable(table); err != nil {
			return err
		}
	} else {
		if err := s.SetDirection(model.DirectionImport); err != nil {
			return err
		}
		fc := e.cfg.File
		if _, statErr := os.Stat(file); statErr == nil {
			fc.FileName = ""
			if err := s.SetFileConfig(fc); err != nil {
				return err
			}
			b, err := blob.Load(file, fc.Delimiter, c.String("sheet"))
			if err != nil {
				return err
			}
			if err := s.AttachBlob(b); err != nil {
				return err
			}
		} else {
			fc.FileName = file
			if err := s.SetFileConfig(fc); err != nil {
				return err
			}
		}
	}

	if err := s.DiscoverSchema(); err != nil {
		return fmt.Errorf("%s: %w", s.Status().Message, err)
	}
	cols := s.Columns()
	if err := outputJSON(c, cols); err != nil {
		return err
	}
	if !wantJSON(c) {
		for i, col := range cols {
			fmt.Printf("%3d  %-30s %s\n", i+1, col.Name, col.Type)
		}
	}
	return nil
}

func previewJob(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	job, err := loadJob(c, e)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	res, err := e.orch.DryRun(ctx, job)
	if err != nil {
		return err
	}
	prev, _, _ := e.orch.Session().PreviewOutcome()
	if wantJSON(c) || lookup(c, "output-file") != "" {
		return outputJSON(c, prev)
	}

	fmt.Printf("%s -> %s\n", res.Source, res.Target)
	if prev == nil || prev.Empty() {
		fmt.Println(res.PreviewNote)
		return nil
	}
	w := csv.NewWriter(os.Stdout)
	w.Write(prev.Columns)
	for _, row := range prev.Rows {
		rec := make([]string, len(prev.Columns))
		for i, col := range prev.Columns {
			if v, ok := row[col]; ok && v != nil {
				rec[i] = fmt.Sprint(v)
			}
		}
		w.Write(rec)
	}
	w.Flush()
	fmt.Println(prev.Caption())
	return w.Error()
}

// runSummary is the JSON shape of a finished run.
type runSummary struct {
	RunID           string  `json:"run_id"`
	Direction       string  `json:"direction"`
	Status          string  `json:"status"`
	Message         string  `json:"message"`
	Records         int64   `json:"records"`
	SavedTo         string  `json:"saved_to,omitempty"`
	Columns         int     `json:"columns"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func runJob(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	job, err := loadJob(c, e)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var prog orchestrator.ProgressReporter
	var tracker *progress.Tracker
	if !c.Bool("no-progress") && !wantJSON(c) {
		tracker = progress.New(os.Stderr, fmt.Sprintf("%s ingestion", job.Dir()))
		prog = tracker
	}

	start := time.Now()
	res, runErr := e.orch.Run(ctx, job, prog)

	summary := runSummary{
		RunID:           e.orch.LastRunID(),
		Direction:       string(job.Dir()),
		Status:          history.StatusSuccess,
		DurationSeconds: time.Since(start).Seconds(),
	}
	if res != nil {
		summary.Message = res.Message
		summary.Columns = len(model.SelectedOnly(res.Columns))
		if res.Outcome != nil {
			summary.Records = res.Outcome.Records()
			if exp, ok := res.Outcome.(*executor.ExportOutcome); ok {
				summary.SavedTo = exp.SavedTo
			}
		}
	}
	if runErr != nil {
		summary.Status = history.StatusFailed
		if summary.Message == "" {
			summary.Message = runErr.Error()
		}
	}

	if err := outputJSON(c, summary); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if tracker != nil {
		tracker.Finish(summary.Records)
	}
	if !wantJSON(c) {
		fmt.Println(summary.Message)
		if summary.SavedTo != "" {
			fmt.Printf("Saved to %s\n", summary.SavedTo)
		}
	}
	return nil
}

func dryRun(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	job, err := loadJob(c, e)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	res, err := e.orch.DryRun(ctx, job)
	if err != nil {
		return err
	}
	if err := outputJSON(c, res); err != nil {
		return err
	}
	if !wantJSON(c) {
		fmt.Printf("Direction:  %s\n", res.Direction)
		fmt.Printf("Source:     %s\n", res.Source)
		fmt.Printf("Target:     %s\n", res.Target)
		fmt.Printf("Columns:    %d of %d selected\n", res.Selected, len(res.Columns))
		fmt.Printf("Preview:    %s\n", res.PreviewNote)
	}
	return nil
}

func validateJob(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()
	job, err := loadJob(c, e)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	report, err := e.orch.Validate(ctx, job)
	if err != nil {
		return err
	}
	if err := outputJSON(c, report); err != nil {
		return err
	}
	if report.Failed() {
		return errors.New("validation failed")
	}
	return nil
}

func healthCheck(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()
	res := e.orch.HealthCheck(ctx, e.cfg.Server.BaseURL)
	if err := outputJSON(c, res); err != nil {
		return err
	}
	if !wantJSON(c) {
		fmt.Printf("Service:    %-6v %s (%dms)\n", res.ServiceHealthy, res.ServiceURL, res.ServiceLatencyMs)
		if res.ServiceError != "" {
			fmt.Printf("            %s\n", res.ServiceError)
		}
		fmt.Printf("ClickHouse: %-6v %s (%dms, %d tables)\n", res.ClickHouseConnected, res.ClickHouse, res.ClickHouseLatencyMs, res.ClickHouseTables)
		if res.ClickHouseError != "" {
			fmt.Printf("            %s\n", res.ClickHouseError)
		}
	}
	if !res.Healthy {
		return errors.New("health check failed")
	}
	return nil
}

func openState(c *cli.Context) (*history.State, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return history.New(cfg.StateDir())
}

func showHistory(c *cli.Context) error {
	state, err := openState(c)
	if err != nil {
		return err
	}
	defer state.Close()

	if id := c.String("run"); id != "" {
		run, err := state.GetRunByID(id)
		if err != nil {
			return fmt.Errorf("run %s: %w", id, err)
		}
		if wantJSON(c) || lookup(c, "output-file") != "" {
			return outputJSON(c, run)
		}
		fmt.Printf("Run:        %s\n", run.ID)
		fmt.Printf("Direction:  %s\n", run.Direction)
		fmt.Printf("Status:     %s\n", run.Status)
		fmt.Printf("Source:     %s\n", run.Source)
		fmt.Printf("Target:     %s\n", run.Target)
		fmt.Printf("Records:    %d\n", run.Records)
		fmt.Printf("Started:    %s\n", run.StartedAt.Format(time.RFC3339))
		fmt.Printf("Duration:   %s\n", run.Duration().Round(time.Millisecond))
		if run.Message != "" {
			fmt.Printf("Message:    %s\n", run.Message)
		}
		return nil
	}

	runs, err := state.GetAllRuns(c.Int("limit"))
	if err != nil {
		return err
	}
	if wantJSON(c) || lookup(c, "output-file") != "" {
		return outputJSON(c, runs)
	}
	if len(runs) == 0 {
		fmt.Println("No ingestion runs recorded yet")
		return nil
	}
	fmt.Printf("%-36s  %-7s  %-7s  %10s  %-19s  %s\n", "RUN", "DIR", "STATUS", "RECORDS", "STARTED", "SOURCE -> TARGET")
	for _, r := range runs {
		fmt.Printf("%-36s  %-7s  %-7s  %10d  %-19s  %s -> %s\n",
			r.ID, r.Direction, r.Status, r.Records, r.StartedAt.Format("2006-01-02 15:04:05"), r.Source, r.Target)
	}
	return nil
}

func profileSave(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.String("job"))
	if err != nil {
		return fmt.Errorf("reading job: %w", err)
	}
	if _, err := config.ParseJob(data, cfg); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	state, err := history.New(cfg.StateDir())
	if err != nil {
		return err
	}
	defer state.Close()

	name := c.String("name")
	if err := state.SaveProfile(name, c.String("description"), data); err != nil {
		return err
	}
	fmt.Printf("Profile %q saved\n", name)
	return nil
}

func profileList(c *cli.Context) error {
	state, err := openState(c)
	if err != nil {
		return err
	}
	defer state.Close()

	profiles, err := state.ListProfiles()
	if err != nil {
		return err
	}
	if wantJSON(c) || lookup(c, "output-file") != "" {
		return outputJSON(c, profiles)
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles saved")
		return nil
	}
	fmt.Printf("%-24s  %-19s  %s\n", "NAME", "UPDATED", "DESCRIPTION")
	for _, p := range profiles {
		fmt.Printf("%-24s  %-19s  %s\n", p.Name, p.UpdatedAt.Format("2006-01-02 15:04:05"), p.Description)
	}
	return nil
}

func profileDelete(c *cli.Context) error {
	state, err := openState(c)
	if err != nil {
		return err
	}
	defer state.Close()

	name := c.String("name")
	if err := state.DeleteProfile(name); err != nil {
		return fmt.Errorf("profile %s: %w", name, err)
	}
	fmt.Printf("Profile %q deleted\n", name)
	return nil
}

func profileExport(c *cli.Context) error {
	state, err := openState(c)
	if err != nil {
		return err
	}
	defer state.Close()

	name := c.String("name")
	data, err := state.GetProfile(name)
	if err != nil {
		return fmt.Errorf("profile %s: %w", name, err)
	}
	out := c.String("out")
	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Printf("Profile %q exported to %s\n", name, out)
	return nil
}

func initSecrets(c *cli.Context) error {
	path := secrets.GetSecretsPath()
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(secrets.GenerateTemplate()), 0600); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func showConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if p := cfg.Path(); p != "" {
		fmt.Printf("# %s\n", p)
	}
	fmt.Print(cfg.Redacted())
	return nil
}
