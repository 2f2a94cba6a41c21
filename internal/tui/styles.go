package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPurple     = lipgloss.Color("#7D56F4")
	colorDarkPurple = lipgloss.Color("#5a3eaf")
	colorGreen      = lipgloss.Color("#04B575")
	colorRed        = lipgloss.Color("#FF4141")
	colorYellow     = lipgloss.Color("#E5C07B")
	colorGray       = lipgloss.Color("#626262")
	colorLightGray  = lipgloss.Color("#9e9e9e")
	colorWhite      = lipgloss.Color("#FFFFFF")
	colorBlue       = lipgloss.Color("#007BFF")

	// Status Bar Styles
	styleStatusBar = lipgloss.NewStyle().
			Height(1).
			Foreground(colorWhite)

	styleStatusURL = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(colorBlue).
			Padding(0, 1).
			Bold(true)

	styleStatusDirection = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(colorPurple).
			Padding(0, 1)

	styleStatusReady = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(colorGreen).
			Padding(0, 1)

	styleStatusLocked = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(colorDarkPurple).
			Padding(0, 1)

	styleStatusText = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(colorGray).
			Padding(0, 1)

	// Viewport Styles
	styleViewport = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Padding(0, 1)

	styleTitle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true).
			MarginBottom(1)

	stylePrompt = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	styleInputContainer = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray)

	styleOutputBox = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	// Output Styles
	styleUserInput    = lipgloss.NewStyle().Foreground(colorLightGray)
	styleSystemOutput = lipgloss.NewStyle().Foreground(colorWhite)
	styleSuccess      = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning      = lipgloss.NewStyle().Foreground(colorYellow)
	styleError        = lipgloss.NewStyle().Foreground(colorRed)
	styleDim          = lipgloss.NewStyle().Foreground(colorGray)

	// Table Styles
	styleTableHeader = lipgloss.NewStyle().Foreground(colorPurple).Bold(true).Padding(0, 1)
	styleTableCell   = lipgloss.NewStyle().Padding(0, 1)
)
