package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

var (
	//go:embed template/route_unresolved.txt
	unresolvedRaw string

	//go:embed template/route_retry.txt
	retryRaw string

	//go:embed template/route_escalate.txt
	escalateRaw string

	//go:embed template/worker_system.txt
	workerSystemRaw string
)

var funcs = template.FuncMap{"join": strings.Join}

type UnresolvedData struct {
	Token  string
	Agents []string
}

type RetryData struct {
	Agent     string
	Reason    string
	Attempt   int
	Threshold int
}

type EscalateData struct {
	Agent        string
	Reason       string
	Attempts     int
	Alternatives []string
}

// Set holds the parsed routing templates and the worker system prompt.
type Set struct {
	WorkerSystem string

	unresolved *template.Template
	retry      *template.Template
	escalate   *template.Template
}

// Load parses the embedded templates.
func Load() (Set, error) {
	var (
		s   = Set{WorkerSystem: strings.TrimSpace(workerSystemRaw)}
		err error
	)
	if s.unresolved, err = parse("route_unresolved", unresolvedRaw); err != nil {
		return Set{}, err
	}
	if s.retry, err = parse("route_retry", retryRaw); err != nil {
		return Set{}, err
	}
	if s.escalate, err = parse("route_escalate", escalateRaw); err != nil {
		return Set{}, err
	}
	return s, nil
}

func MustLoad() Set {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}

func parse(name, raw string) (*template.Template, error) {
	t, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s template: %w", name, err)
	}
	return t, nil
}

// The render methods never fail: a zero Set or a broken template falls back to a
// fixed sentence carrying the same facts.

func (s Set) Unresolved(d UnresolvedData) string {
	return render(s.unresolved, d, func() string {
		return fmt.Sprintf("Could not route to %q. Registered agents: %s.", d.Token, listOrNone(d.Agents))
	})
}

func (s Set) Retry(d RetryData) string {
	return render(s.retry, d, func() string {
		return fmt.Sprintf("%s did not answer (%s). Attempt %d of %d.", d.Agent, d.Reason, d.Attempt, d.Threshold)
	})
}

func (s Set) Escalate(d EscalateData) string {
	return render(s.escalate, d, func() string {
		return fmt.Sprintf("%s is unreachable (%s). Available alternatives: %s. Falling back automatically.",
			d.Agent, d.Reason, listOrNone(d.Alternatives))
	})
}

func render(t *template.Template, data any, fallback func() string) string {
	if t == nil {
		return fallback()
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fallback()
	}
	return strings.TrimSpace(buf.String())
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
