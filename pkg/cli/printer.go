package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/helpdesk/hdtelemetry/pkg/settings"
	"github.com/helpdesk/hdtelemetry/pkg/telemetry"
)

// Data holds the properties of a captured event in the order they were
// given on the command line.
type Data = orderedmap.OrderedMap[string, any]

// NewData returns an empty Data.
func NewData() *Data {
	return orderedmap.New[string, any]()
}

// ParseData parses key=value pairs. Values that parse as JSON keep their
// type, everything else is a string.
func ParseData(pairs []string) (*Data, error) {
	data := NewData()
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid data %q: expected key=value", pair)
		}

		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		data.Set(key, parsed)
	}
	return data, nil
}

// DataMap flattens data for the gate.
func DataMap(data *Data) map[string]any {
	out := make(map[string]any, data.Len())
	for k, v := range data.FromOldest() {
		out[k] = v
	}
	return out
}

type Printer struct {
	out io.Writer

	bold  func(format string, a ...any) string
	green func(format string, a ...any) string
	red   func(format string, a ...any) string
}

func NewPrinter(out io.Writer) *Printer {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	if !isTerminal(out) {
		bold.DisableColor()
		green.DisableColor()
		red.DisableColor()
	}

	return &Printer{
		out:   out,
		bold:  bold.SprintfFunc(),
		green: green.SprintfFunc(),
		red:   red.SprintfFunc(),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) {
	p.Printf("%s %s\n", p.red("error:"), err)
}

// PrintSettings prints the settings a site publishes.
func (p *Printer) PrintSettings(s settings.Settings) {
	p.Printf("%s %s\n", p.bold("Telemetry:"), p.onOff(s.Enabled))
	p.Printf("%s %s\n", p.bold("Project:  "), orNone(s.ProjectID))
	p.Printf("%s %s\n", p.bold("Host:     "), orNone(s.Host))
	p.Printf("%s %g days\n", p.bold("Site age: "), s.SiteAge)
	if !s.Valid() {
		p.Println("\nTelemetry will stay disabled for this site.")
	}
}

// PrintState prints the state of a gate.
func (p *Printer) PrintState(app string, state telemetry.State) {
	p.Printf("%s %s\n", p.bold("App:      "), app)
	p.Printf("%s %s\n", p.bold("Telemetry:"), p.onOff(state.Enabled))
	if state.Enabled {
		p.Printf("%s %s\n", p.bold("Project:  "), state.ProjectID)
		p.Printf("%s %s\n", p.bold("Host:     "), state.Host)
	}
}

// PrintCapture prints an event handed to the gate.
func (p *Printer) PrintCapture(event string, data *Data, sent bool) {
	if !sent {
		p.Printf("Telemetry is %s, %s was not sent\n", p.red("disabled"), p.bold(event))
		return
	}
	p.Printf("Captured %s%s\n", p.bold(event), p.formatData(data))
}

func (p *Printer) onOff(enabled bool) string {
	if enabled {
		return p.green("enabled")
	}
	return p.red("disabled")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func (p *Printer) formatData(data *Data) string {
	if data == nil || data.Len() == 0 {
		return "()"
	}

	var (
		parts     []string
		multiline bool
	)
	for key, value := range data.FromOldest() {
		formatted := p.formatValue(key, value)
		parts = append(parts, formatted)
		multiline = multiline || strings.Contains(formatted, "\n")
	}

	if len(parts) == 1 && !multiline {
		return fmt.Sprintf("(%s)", parts[0])
	}
	return fmt.Sprintf("(\n  %s\n)", strings.Join(parts, "\n  "))
}

func (p *Printer) formatValue(key string, value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%s: %q", p.bold(key), v)
	case []any:
		if len(v) <= 1 {
			jsonBytes, _ := json.Marshal(v)
			return fmt.Sprintf("%s: %s", p.bold(key), string(jsonBytes))
		}
		jsonBytes, _ := json.MarshalIndent(v, "", "  ")
		return fmt.Sprintf("%s: %s", p.bold(key), string(jsonBytes))
	case map[string]any:
		jsonBytes, _ := json.MarshalIndent(v, "", "  ")
		return fmt.Sprintf("%s: %s", p.bold(key), string(jsonBytes))
	default:
		jsonBytes, _ := json.Marshal(v)
		return fmt.Sprintf("%s: %s", p.bold(key), string(jsonBytes))
	}
}
