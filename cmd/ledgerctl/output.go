package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/beeper/ledger-installer/internal/api"
	"github.com/beeper/ledger-installer/internal/ledger"
)

var (
	alarmStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))
	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

type formatter interface {
	Format(w io.Writer, data any) error
}

// row is implemented by values that know how to print as a two column table.
type row interface {
	rows() [][2]string
}

func newFormatter(format string) formatter {
	switch strings.ToLower(format) {
	case "json":
		return jsonFormatter{}
	case "yaml":
		return yamlFormatter{}
	default:
		return tableFormatter{}
	}
}

type tableFormatter struct{}

func (tableFormatter) Format(w io.Writer, data any) error {
	r, ok := data.(row)
	if !ok {
		_, err := fmt.Fprintln(w, data)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, kv := range r.rows() {
		fmt.Fprintf(tw, "%s:\t%s\n", kv[0], kv[1])
	}
	return tw.Flush()
}

type jsonFormatter struct{}

func (jsonFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

type yamlFormatter struct{}

func (yamlFormatter) Format(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

type statusView struct {
	Summary         string `json:"summary" yaml:"summary"`
	Model           string `json:"model,omitempty" yaml:"model,omitempty"`
	DeviceVersion   string `json:"device_version,omitempty" yaml:"device_version,omitempty"`
	MainVersion     string `json:"main_version" yaml:"main_version"`
	MainNextVersion string `json:"main_next_version" yaml:"main_next_version"`
	TestVersion     string `json:"test_version" yaml:"test_version"`
	TestNextVersion string `json:"test_next_version" yaml:"test_next_version"`
	Alarm           bool   `json:"alarm" yaml:"alarm"`
}

func versionText(v ledger.Version) string {
	if v.IsUnknown() {
		return "-"
	}
	return v.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func newStatusView(s api.Status) statusView {
	return statusView{
		Summary:         s.Summary(),
		Model:           deref(s.Model),
		DeviceVersion:   deref(s.DeviceVersion),
		MainVersion:     versionText(s.MainVersion),
		MainNextVersion: versionText(s.MainNextVersion),
		TestVersion:     versionText(s.TestVersion),
		TestNextVersion: versionText(s.TestNextVersion),
		Alarm:           s.Alarm,
	}
}

func (v statusView) rows() [][2]string {
	summary := v.Summary
	if v.Alarm {
		summary = alarmStyle.Render(summary)
	}
	return [][2]string{
		{"Device", summary},
		{ledger.AppMain.Label(), v.MainVersion},
		{ledger.AppMain.Label() + " (next)", v.MainNextVersion},
		{ledger.AppTest.Label(), v.TestVersion},
		{ledger.AppTest.Label() + " (next)", v.TestNextVersion},
	}
}

// eventLine renders one streamed event for watch.
func eventLine(ev ledger.Event) string {
	switch ev := ev.(type) {
	case ledger.Connected:
		if ev.Model == nil {
			return dimStyle.Render("disconnected")
		}
		if ev.DeviceVersion == nil {
			return fmt.Sprintf("connected: %s", *ev.Model)
		}
		return fmt.Sprintf("connected: %s %s", *ev.Model, *ev.DeviceVersion)
	case ledger.MainAppVersion:
		return fmt.Sprintf("%s: %s", ledger.AppMain.Label(), versionText(ev.Version))
	case ledger.MainAppNextVersion:
		return fmt.Sprintf("%s (next): %s", ledger.AppMain.Label(), versionText(ev.Version))
	case ledger.TestAppVersion:
		return fmt.Sprintf("%s: %s", ledger.AppTest.Label(), versionText(ev.Version))
	case ledger.TestAppNextVersion:
		return fmt.Sprintf("%s (next): %s", ledger.AppTest.Label(), versionText(ev.Version))
	case ledger.DisplayMessage:
		if ev.Alarm {
			return alarmStyle.Render("! " + ev.Text)
		}
		return messageStyle.Render(ev.Text)
	default:
		return fmt.Sprintf("%v", ev)
	}
}
