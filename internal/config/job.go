package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/johndauphine/chfile/internal/model"
)

// Job describes one non-interactive transfer for `chfile run`.
type Job struct {
	Direction   string                  `yaml:"direction"`
	ClickHouse  *model.ConnectionConfig `yaml:"clickhouse"`
	File        *model.FileConfig       `yaml:"file"`
	Upload      string                  `yaml:"upload"` // local file sent with the request
	Sheet       string                  `yaml:"sheet"`  // worksheet when Upload is .xlsx
	Table       string                  `yaml:"table"`
	TargetTable string                  `yaml:"target_table"`
	Columns     []string                `yaml:"columns"` // empty means all
	Join        *model.JoinConfig       `yaml:"join"`
}

// LoadJob reads and validates a job file. Connection and file settings
// the job leaves out keep the values from defaults.
func LoadJob(path string, defaults *Config) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job: %w", err)
	}
	job, err := ParseJob(data, defaults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return job, nil
}

// ParseJob parses a job document.
func ParseJob(data []byte, defaults *Config) (*Job, error) {
	if defaults == nil {
		defaults = Default()
	}
	conn := defaults.ClickHouse
	file := defaults.File
	job := Job{ClickHouse: &conn, File: &file}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &job); err != nil {
		return nil, fmt.Errorf("parsing job: %w", err)
	}
	if job.ClickHouse == nil {
		job.ClickHouse = &conn
	}
	if job.File == nil {
		job.File = &file
	}
	if err := job.validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Dir returns the parsed direction.
func (j *Job) Dir() model.Direction {
	d, _ := model.ParseDirection(j.Direction)
	return d
}

func (j *Job) validate() error {
	dir, err := model.ParseDirection(j.Direction)
	if err != nil {
		return err
	}
	if err := j.ClickHouse.Validate(); err != nil {
		return err
	}
	if j.File.Delimiter == "" {
		return fmt.Errorf("file delimiter is required")
	}
	hasRef := strings.TrimSpace(j.File.FileName) != ""
	hasUpload := strings.TrimSpace(j.Upload) != ""
	if hasRef && hasUpload {
		return fmt.Errorf("file.file_name and upload are mutually exclusive")
	}

	switch dir {
	case model.DirectionExport:
		if j.Table == "" {
			return fmt.Errorf("table is required for export")
		}
		if hasUpload {
			return fmt.Errorf("upload is only used for import")
		}
		if j.Join != nil && len(j.Join.AdditionalTables) > 0 && strings.TrimSpace(j.Join.Condition) == "" {
			return fmt.Errorf("join.condition is required when join tables are listed")
		}
	case model.DirectionImport:
		if !hasRef && !hasUpload {
			return fmt.Errorf("import needs file.file_name or upload")
		}
		if j.TargetTable == "" {
			return fmt.Errorf("target_table is required for import")
		}
		if j.Join != nil && len(j.Join.AdditionalTables) > 0 {
			return fmt.Errorf("join is only supported for export")
		}
	}
	return nil
}
