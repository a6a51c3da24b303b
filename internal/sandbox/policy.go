// Package sandbox resolves named execution profiles. A profile decides
// whether a subagent run may execute commands; the tester stage reports
// blocked cases when it may not.
package sandbox

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"go.yaml.in/yaml/v3"
)

// Profile is one named execution policy.
type Profile struct {
	Name          string   `yaml:"name"`
	AllowCommands bool     `yaml:"allow_commands"`
	AllowNetwork  bool     `yaml:"allow_network"`
	WritableRoots []string `yaml:"writable_roots"`
}

// policyFile is the on-disk policy document.
type policyFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// Policy holds the known profiles. It starts with the builtin three and can
// be extended from a yaml policy file; loaded profiles override builtins of
// the same name.
type Policy struct {
	profiles map[string]Profile
	mu       sync.RWMutex
}

// builtinProfiles mirrors the sandbox modes the engine itself distinguishes.
func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		"read-only": {
			Name: "read-only",
		},
		"workspace-write": {
			Name:          "workspace-write",
			AllowCommands: true,
			WritableRoots: []string{"."},
		},
		"danger-full-access": {
			Name:          "danger-full-access",
			AllowCommands: true,
			AllowNetwork:  true,
			WritableRoots: []string{"/"},
		},
	}
}

// NewPolicy creates a policy with the builtin profiles.
func NewPolicy() *Policy {
	return &Policy{profiles: builtinProfiles()}
}

// LoadFile merges profiles from a yaml policy file. Unnamed entries are
// rejected; everything else overrides by name.
func (p *Policy) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc policyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, profile := range doc.Profiles {
		if profile.Name == "" {
			return fmt.Errorf("policy file %s contains a profile without a name", path)
		}
		p.profiles[profile.Name] = profile
	}
	return nil
}

// Profile returns the named profile.
func (p *Policy) Profile(name string) (Profile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	profile, ok := p.profiles[name]
	return profile, ok
}

// CommandsAllowed reports whether the named profile may execute commands.
// Unknown profiles deny.
func (p *Policy) CommandsAllowed(name string) bool {
	profile, ok := p.Profile(name)
	return ok && profile.AllowCommands
}

// Names lists the known profile names, sorted.
func (p *Policy) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.profiles))
	for name := range p.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultProfileName picks the profile for this process. Under the seatbelt
// sandbox command execution is off the table, so the read-only profile wins.
func DefaultProfileName() string {
	if os.Getenv("CODEX_SANDBOX") == "seatbelt" {
		return "read-only"
	}
	return "workspace-write"
}
