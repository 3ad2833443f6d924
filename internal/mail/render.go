package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	textTmpl = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/alert.txt.tmpl"))
	htmlTmpl = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/alert.html.tmpl"))
)

// Detail is one labelled fact from the alert payload.
type Detail struct {
	Label string
	Value string
}

// Facts is everything an alert email states. The text and HTML bodies are
// rendered from the same Facts.
type Facts struct {
	Template      string
	Heading       string
	Intro         string
	Color         string
	RecipientName string
	Title         string
	Description   string
	Severity      string
	Category      string
	EventType     string
	EventID       string
	OccurredAt    string
	Details       []Detail
	ActionURL     string
}

// Message is a rendered email.
type Message struct {
	Template string
	Subject  string
	Text     string
	HTML     string
}

var headings = map[event.Severity]string{
	event.SeverityCritical: "Critical alert: immediate action required",
	event.SeverityHigh:     "High priority alert",
	event.SeverityMedium:   "Alert",
	event.SeverityLow:      "Notice",
}

var colors = map[event.Severity]string{
	event.SeverityCritical: "#b91c1c",
	event.SeverityHigh:     "#c2410c",
	event.SeverityMedium:   "#a16207",
	event.SeverityLow:      "#1d4ed8",
}

var intros = map[string]string{
	"security.critical": "A security incident needs your attention right now.",
	"security":          "A security event was detected on the dashboard.",
	"system.critical":   "A system failure is affecting the dashboard.",
	"system":            "A system component is not behaving normally.",
	"useraction":        "A user performed an action that needs oversight.",
	"business":          "A business event needs your attention.",
}

// TemplateFor names the template used for a category and severity.
func TemplateFor(c event.Category, s event.Severity) string {
	return strings.ToLower(string(c)) + "." + strings.ToLower(string(s))
}

func introFor(name string) string {
	if s, ok := intros[name]; ok {
		return s
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		if s, ok := intros[name[:i]]; ok {
			return s
		}
	}
	return "An administrative alert was raised."
}

// FactsFor collects what the email to recipient says about a.
func FactsFor(a event.Alert, recipient user.User, dashboardURL string) Facts {
	name := TemplateFor(a.Category(), a.Severity())
	f := Facts{
		Template:      name,
		Heading:       headings[a.Severity()],
		Intro:         introFor(name),
		Color:         colors[a.Severity()],
		RecipientName: recipient.Name,
		Title:         a.Title(),
		Description:   a.Description(),
		Severity:      string(a.Severity()),
		Category:      string(a.Category()),
		EventType:     a.Type(),
		EventID:       a.ID(),
		OccurredAt:    a.OccurredAt().UTC().Format(time.RFC1123),
		Details:       Details(a.Payload()),
	}
	if f.RecipientName == "" {
		f.RecipientName = recipient.Email
	}
	if dashboardURL != "" {
		f.ActionURL = strings.TrimRight(dashboardURL, "/") + "/alerts/" + a.ID()
	}
	return f
}

// Details flattens a payload into sorted label/value pairs. Nested objects
// use dotted labels; empty values are skipped.
func Details(payload map[string]any) []Detail {
	var out []Detail
	flatten("", payload, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func flatten(prefix string, m map[string]any, out *[]Detail) {
	for k, v := range m {
		label := k
		if prefix != "" {
			label = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(label, val, out)
		case nil:
		default:
			s := formatValue(val)
			if s != "" {
				*out = append(*out, Detail{Label: label, Value: s})
			}
		}
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

// Render produces the subject and both bodies for recipient.
func Render(a event.Alert, recipient user.User, dashboardURL string) (*Message, error) {
	f := FactsFor(a, recipient, dashboardURL)
	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, f); err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}
	if err := htmlTmpl.Execute(&html, f); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return &Message{
		Template: f.Template,
		Subject:  fmt.Sprintf("[%s] %s", f.Severity, f.Title),
		Text:     text.String(),
		HTML:     html.String(),
	}, nil
}
