// Package subagent defines subagent specifications and the parser that
// builds them from Markdown definition files.
package subagent

// Source identifies where a subagent definition came from.
type Source string

const (
	// SourceProject marks a definition discovered under the project tier.
	SourceProject Source = "project"
	// SourceUser marks a definition discovered under the user tier.
	SourceUser Source = "user"
	// SourceBuiltin marks a definition compiled into the binary.
	SourceBuiltin Source = "builtin"
	// SourceInline marks a definition constructed directly in code.
	SourceInline Source = "inline"
)

// Valid returns true if the source is a known value.
func (s Source) Valid() bool {
	switch s {
	case SourceProject, SourceUser, SourceBuiltin, SourceInline:
		return true
	default:
		return false
	}
}

// Describe returns a human-readable label for the source.
func (s Source) Describe() string {
	switch s {
	case SourceProject:
		return "project directory"
	case SourceUser:
		return "user directory"
	case SourceBuiltin:
		return "built-in"
	case SourceInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Spec is an immutable, validated subagent definition. Construct one through
// Builder or ParseDocument; the zero value is not usable.
type Spec struct {
	name         string
	description  string
	model        string
	tools        []string
	keywords     []string
	instructions string
	source       Source
	sourcePath   string
	contentHash  string
}

// Name returns the unique slug identifying the subagent.
func (s *Spec) Name() string { return s.name }

// Description returns the optional human-readable description.
func (s *Spec) Description() string { return s.description }

// Model returns the model override, or empty for the session default.
func (s *Spec) Model() string { return s.model }

// Instructions returns the system instructions body.
func (s *Spec) Instructions() string { return s.instructions }

// Source returns where the definition came from.
func (s *Spec) Source() Source { return s.source }

// SourcePath returns the filesystem origin, or empty for inline and
// builtin specs.
func (s *Spec) SourcePath() string { return s.sourcePath }

// ContentHash returns the digest over the spec's semantic fields. Two specs
// with identical name, instructions, model, tools, and keywords share a hash
// regardless of which file they came from.
func (s *Spec) ContentHash() string { return s.contentHash }

// Tools returns a copy of the ordered tool identifiers the subagent may
// request.
func (s *Spec) Tools() []string {
	out := make([]string, len(s.tools))
	copy(out, s.tools)
	return out
}

// Keywords returns a copy of the ordered routing keywords.
func (s *Spec) Keywords() []string {
	out := make([]string, len(s.keywords))
	copy(out, s.keywords)
	return out
}
