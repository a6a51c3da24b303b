package subagent

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]{2,63}$`)

const nameRule = "name must start with a lowercase letter, include only lowercase letters, digits, hyphen, or underscore, and be 3-64 characters long"

// ValidateName checks a subagent name against the slug grammar.
func ValidateName(name string) error {
	if nameRe.MatchString(name) {
		return nil
	}
	return &ValidationError{Field: "name", Value: name, Reason: nameRule}
}

// Builder assembles a Spec, validating on Build. Entries passed to Tools and
// Keywords are validated strictly: an empty or duplicate entry is an error.
// Callers with unclean input should use CleanList first; ParseDocument does.
type Builder struct {
	name         string
	description  string
	model        string
	tools        []string
	keywords     []string
	instructions string
	source       Source
	sourcePath   string
}

// NewBuilder starts a builder for the named subagent. The source defaults
// to inline.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, source: SourceInline}
}

// Description sets the optional description.
func (b *Builder) Description(description string) *Builder {
	b.description = description
	return b
}

// Model sets the model override.
func (b *Builder) Model(model string) *Builder {
	b.model = model
	return b
}

// Tools sets the tool identifiers the subagent may request.
func (b *Builder) Tools(tools ...string) *Builder {
	b.tools = append([]string(nil), tools...)
	return b
}

// Keywords sets the routing keywords.
func (b *Builder) Keywords(keywords ...string) *Builder {
	b.keywords = append([]string(nil), keywords...)
	return b
}

// Instructions sets the system instructions body.
func (b *Builder) Instructions(instructions string) *Builder {
	b.instructions = instructions
	return b
}

// Source sets where the definition came from.
func (b *Builder) Source(source Source) *Builder {
	b.source = source
	return b
}

// SourcePath records the filesystem origin of the definition.
func (b *Builder) SourcePath(path string) *Builder {
	b.sourcePath = path
	return b
}

// Build validates the collected fields and returns an immutable Spec.
// No invalid spec is ever constructed.
func (b *Builder) Build() (*Spec, error) {
	if b.name == "" {
		return nil, missingField("name")
	}
	if err := ValidateName(b.name); err != nil {
		return nil, err
	}
	instructions := strings.TrimSpace(b.instructions)
	if instructions == "" {
		return nil, missingField("instructions")
	}

	tools, err := normalizeUnique(b.tools, "tools")
	if err != nil {
		return nil, err
	}
	keywords, err := normalizeUnique(b.keywords, "keywords")
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(b.model)

	h := sha1.New()
	h.Write([]byte(b.name))
	h.Write([]byte(instructions))
	if model != "" {
		h.Write([]byte(model))
	}
	for _, tool := range tools {
		h.Write([]byte(tool))
	}
	for _, keyword := range keywords {
		h.Write([]byte(keyword))
	}

	return &Spec{
		name:         b.name,
		description:  strings.TrimSpace(b.description),
		model:        model,
		tools:        tools,
		keywords:     keywords,
		instructions: instructions,
		source:       b.source,
		sourcePath:   b.sourcePath,
		contentHash:  hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// normalizeUnique trims entries and rejects empties and duplicates. The
// field name selects the error wording.
func normalizeUnique(items []string, field string) ([]string, error) {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, raw := range items {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil, &ValidationError{Field: field, Reason: singular(field) + " entries must be non-empty strings"}
		}
		if _, dup := seen[trimmed]; dup {
			return nil, &ValidationError{Field: field, Value: trimmed, Reason: "duplicate " + singular(field) + " entry"}
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out, nil
}

func singular(field string) string {
	return strings.TrimSuffix(field, "s")
}

// CleanList trims entries, drops empties, and deduplicates while preserving
// first-seen order. It never fails; use it to sanitize externally sourced
// lists before Build.
func CleanList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, raw := range items {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
