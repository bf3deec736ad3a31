package chat

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeywordGroup answers with Response when the lowercased message contains
// any of Keywords.
type KeywordGroup struct {
	Keywords []string `yaml:"keywords"`
	Response string   `yaml:"response"`
}

// matches reports whether lower contains one of the group's keywords.
func (g KeywordGroup) matches(lower string) bool {
	for _, k := range g.Keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Persona holds the copy of one assistant.
type Persona struct {
	Welcome      string         `yaml:"welcome"`
	SystemPrompt string         `yaml:"system_prompt"`
	Groups       []KeywordGroup `yaml:"groups"`
}

// Rules is the complete keyword table and copy of the assistant. The
// literal "%s" in Common responses and Apology is replaced by the agent name.
type Rules struct {
	Agents map[Agent]Persona `yaml:"agents"`

	// Default is used for agents missing from Agents. Its Groups are ignored.
	Default Persona `yaml:"default"`

	// Common groups are tried after the agent's own groups.
	Common []KeywordGroup `yaml:"common"`

	// Unclear answers an empty model reply.
	Unclear string `yaml:"unclear"`

	// Apology answers any model failure.
	Apology string `yaml:"apology"`
}

func (r Rules) persona(agent Agent) (Persona, bool) {
	p, ok := r.Agents[agent]
	return p, ok
}

// Welcome returns the greeting of agent.
func (r Rules) Welcome(agent Agent) string {
	if p, ok := r.persona(agent); ok && p.Welcome != "" {
		return p.Welcome
	}
	return r.Default.Welcome
}

// SystemPrompt returns the model instructions for agent.
func (r Rules) SystemPrompt(agent Agent) string {
	if p, ok := r.persona(agent); ok && p.SystemPrompt != "" {
		return p.SystemPrompt
	}
	return r.Default.SystemPrompt
}

// Match tests msg against the agent's groups in order and then against the
// common groups. The first hit wins.
func (r Rules) Match(agent Agent, msg string) (string, bool) {
	lower := strings.ToLower(msg)
	if p, ok := r.persona(agent); ok {
		for _, g := range p.Groups {
			if g.matches(lower) {
				return expand(g.Response, agent), true
			}
		}
	}
	for _, g := range r.Common {
		if g.matches(lower) {
			return expand(g.Response, agent), true
		}
	}
	return "", false
}

// ApologyFor returns the apology addressed as agent.
func (r Rules) ApologyFor(agent Agent) string {
	return expand(r.Apology, agent)
}

func expand(s string, agent Agent) string {
	return strings.ReplaceAll(s, "%s", string(agent))
}

// Validate checks that every group can match and answer.
func (r Rules) Validate() error {
	var errs []error
	check := func(prefix string, groups []KeywordGroup) {
		for i, g := range groups {
			if len(g.Keywords) == 0 {
				errs = append(errs, fmt.Errorf("%s[%d]: keywords are required", prefix, i))
			}
			if strings.TrimSpace(g.Response) == "" {
				errs = append(errs, fmt.Errorf("%s[%d]: response is required", prefix, i))
			}
		}
	}
	for name, p := range r.Agents {
		check("agents."+string(name)+".groups", p.Groups)
	}
	check("common", r.Common)
	if r.Apology == "" {
		errs = append(errs, errors.New("apology is required"))
	}
	return errors.Join(errs...)
}

// LoadRules reads a YAML rules file. Sections left out of the file keep
// the built-in copy from [DefaultRules].
func LoadRules(path string) (Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return Rules{}, fmt.Errorf("chat: open rules %q: %w", path, err)
	}
	defer f.Close()
	r, err := DecodeRules(f)
	if err != nil {
		return Rules{}, fmt.Errorf("chat: parse rules %q: %w", path, err)
	}
	return r, nil
}

// DecodeRules decodes YAML rules from rd and merges them over [DefaultRules].
// A persona present in the file replaces the built-in persona as a whole.
func DecodeRules(rd io.Reader) (Rules, error) {
	var in Rules
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("chat: decode rules: %w", err)
	}

	out := DefaultRules()
	for name, p := range in.Agents {
		out.Agents[name] = p
	}
	if in.Default.Welcome != "" {
		out.Default.Welcome = in.Default.Welcome
	}
	if in.Default.SystemPrompt != "" {
		out.Default.SystemPrompt = in.Default.SystemPrompt
	}
	if in.Common != nil {
		out.Common = in.Common
	}
	if in.Unclear != "" {
		out.Unclear = in.Unclear
	}
	if in.Apology != "" {
		out.Apology = in.Apology
	}
	if err := out.Validate(); err != nil {
		return Rules{}, err
	}
	return out, nil
}
