package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/johndauphine/chfile/internal/history"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/preview"
	"github.com/johndauphine/chfile/internal/util"
)

// maxCellWidth keeps wide preview values from blowing up the layout.
const maxCellWidth = 32

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorGray)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			return styleTableCell
		})
}

// renderColumns lists discovered columns with 1-based numbers for toggling.
func renderColumns(cols []model.Column) string {
	t := newTable("#", "", "Column", "Type")
	for i, c := range cols {
		mark := "[ ]"
		if c.Selected {
			mark = "[x]"
		}
		t.Row(strconv.Itoa(i+1), mark, c.Name, c.Type)
	}
	selected := len(model.SelectedOnly(cols))
	return t.Render() + "\n" + styleDim.Render(fmt.Sprintf("%d of %d columns selected", selected, len(cols)))
}

// renderPreview shows the displayed rows under the selected column order.
func renderPreview(res *preview.Result) string {
	if res == nil || res.Empty() {
		return styleDim.Render(preview.MsgEmpty)
	}
	t := newTable(res.Columns...)
	for _, row := range res.Rows {
		cells := make([]string, len(res.Columns))
		for i, name := range res.Columns {
			cells[i] = util.Truncate(formatCell(row[name]), maxCellWidth)
		}
		t.Row(cells...)
	}
	return t.Render() + "\n" + styleDim.Render(res.Caption())
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return strings.ReplaceAll(fmt.Sprint(v), "\n", " ")
}

func renderHistory(runs []history.Run) string {
	if len(runs) == 0 {
		return "No runs recorded yet."
	}
	t := newTable("Run ID", "Started", "Direction", "Source", "Target", "Status", "Records", "Duration")
	for _, r := range runs {
		t.Row(
			r.ID[:min(8, len(r.ID))],
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(r.Direction),
			util.Truncate(r.Source, maxCellWidth),
			util.Truncate(r.Target, maxCellWidth),
			r.Status,
			strconv.FormatInt(r.Records, 10),
			r.Duration().Round(time.Millisecond).String(),
		)
	}
	return t.Render()
}

func renderRun(r *history.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run ID:     %s\n", r.ID)
	fmt.Fprintf(&b, "Direction:  %s\n", r.Direction)
	fmt.Fprintf(&b, "Source:     %s\n", r.Source)
	fmt.Fprintf(&b, "Target:     %s\n", r.Target)
	fmt.Fprintf(&b, "Status:     %s\n", r.Status)
	fmt.Fprintf(&b, "Records:    %d\n", r.Records)
	fmt.Fprintf(&b, "Started:    %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration:   %s\n", r.Duration().Round(time.Millisecond))
	if r.Message != "" {
		fmt.Fprintf(&b, "Message:    %s\n", r.Message)
	}
	return b.String()
}

func renderProfiles(profiles []history.ProfileInfo) string {
	if len(profiles) == 0 {
		return "No saved profiles."
	}
	t := newTable("Name", "Description", "Updated")
	for _, p := range profiles {
		t.Row(p.Name, p.Description, p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return t.Render()
}
