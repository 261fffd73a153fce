package apply

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecisionProvider supplies the operator's per-stage decisions for a run.
// Decisions are collected once per run, not per record.
type DecisionProvider interface {
	Decide(stage Stage) (Decision, error)
}

// TableProvider serves decisions from a pre-supplied table. Stages absent
// from the table default to DecisionNo.
type TableProvider struct {
	table map[Stage]Decision
}

// NewTableProvider wraps a decision table.
func NewTableProvider(table map[Stage]Decision) *TableProvider {
	cloned := make(map[Stage]Decision, len(table))
	for stage, d := range table {
		cloned[stage] = d
	}
	return &TableProvider{table: cloned}
}

// LoadDecisionTable reads a stage→decision YAML mapping from disk.
func LoadDecisionTable(path string) (*TableProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}
	raw := make(map[string]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse decisions: %w", err)
	}
	table := make(map[Stage]Decision, len(raw))
	for name, value := range raw {
		d, err := parseDecision(value)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", name, err)
		}
		table[Stage(name)] = d
	}
	return NewTableProvider(table), nil
}

// Decide implements DecisionProvider.
func (p *TableProvider) Decide(stage Stage) (Decision, error) {
	if d, ok := p.table[stage]; ok {
		return d, nil
	}
	return DecisionNo, nil
}

// ConsoleProvider prompts the operator on a terminal for each stage. It is
// one concrete DecisionProvider; automation supplies a TableProvider instead.
type ConsoleProvider struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsoleProvider constructs a prompt-driven provider. Nil in/out default
// to stdin/stdout.
func NewConsoleProvider(in io.Reader, out io.Writer) *ConsoleProvider {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleProvider{in: bufio.NewReader(in), out: out}
}

// Decide implements DecisionProvider by prompting until a valid answer.
func (p *ConsoleProvider) Decide(stage Stage) (Decision, error) {
	for {
		fmt.Fprintf(p.out, "apply stage %s? [yes/no/yesbut]: ", stage)
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read decision for %s: %w", stage, err)
		}
		d, parseErr := parseDecision(line)
		if parseErr == nil {
			return d, nil
		}
		fmt.Fprintln(p.out, parseErr.Error())
		if err != nil {
			return "", fmt.Errorf("read decision for %s: %w", stage, err)
		}
	}
}

func parseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return DecisionYes, nil
	case "no", "n":
		return DecisionNo, nil
	case "yesbut", "yb":
		return DecisionYesBut, nil
	default:
		return "", fmt.Errorf("unrecognized decision %q (want yes, no, or yesbut)", strings.TrimSpace(s))
	}
}

// Overrides holds per-record field overrides applied when a stage decision
// is yesbut. The outer key is the record email, the inner map field→value.
type Overrides map[string]map[string]string

// LoadOverrides reads a per-record override table from YAML.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	out := make(Overrides)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	return out, nil
}
