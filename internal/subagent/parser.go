package subagent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

// frontMatter is the YAML header of a definition document. ToMarkdown encodes
// the same struct, so the two directions cannot drift apart.
type frontMatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	Tools       []string `yaml:"tools,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty"`
}

// Parsed is the result of parsing one definition document: the validated
// spec plus any non-fatal warnings produced along the way.
type Parsed struct {
	Spec     *Spec
	Warnings []string
}

// ParseFile reads and parses a definition file. Any failure is wrapped in a
// ParseError carrying the file path.
func ParseFile(path string, source Source) (*Parsed, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	parsed, err := parse(string(contents), path, source)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return parsed, nil
}

// ParseDocument parses an in-memory definition document. The resulting spec
// has no source path and an inline source.
func ParseDocument(text string) (*Spec, error) {
	parsed, err := parse(text, "", SourceInline)
	if err != nil {
		return nil, err
	}
	return parsed.Spec, nil
}

func parse(text, path string, source Source) (*Parsed, error) {
	rawHeader, body, err := splitFrontMatter(text)
	if err != nil {
		return nil, err
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(rawHeader), &fm); err != nil {
		return nil, fmt.Errorf("failed to parse YAML front matter: %w", err)
	}

	if strings.TrimSpace(fm.Name) == "" {
		return nil, missingField("name")
	}

	instructions := strings.TrimSpace(body)
	if instructions == "" {
		return nil, missingField("instructions")
	}

	var warnings []string
	tools, warn, err := cleanDeclared(fm.Tools, "tools")
	if err != nil {
		return nil, err
	}
	if warn != "" {
		warnings = append(warnings, warn)
	}
	keywords, warn, err := cleanDeclared(fm.Keywords, "keywords")
	if err != nil {
		return nil, err
	}
	if warn != "" {
		warnings = append(warnings, warn)
	}

	builder := NewBuilder(strings.TrimSpace(fm.Name)).
		Description(fm.Description).
		Model(fm.Model).
		Tools(tools...).
		Keywords(keywords...).
		Instructions(instructions).
		Source(source)
	if path != "" {
		builder = builder.SourcePath(path)
	}

	spec, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return &Parsed{Spec: spec, Warnings: warnings}, nil
}

// cleanDeclared sanitizes a declared tool or keyword list. A list declared
// with entries that all clean away is an error; an absent or explicitly
// empty list is not. Dropped entries produce a warning.
func cleanDeclared(raw []string, field string) ([]string, string, error) {
	cleaned := CleanList(raw)
	if len(raw) > 0 && len(cleaned) == 0 {
		return nil, "", &ValidationError{Field: field, Reason: singular(field) + " entries must be non-empty strings"}
	}
	if dropped := len(raw) - len(cleaned); dropped > 0 {
		return cleaned, fmt.Sprintf("dropped %d duplicate or empty %s entries", dropped, field), nil
	}
	return cleaned, "", nil
}

// splitFrontMatter separates the YAML header from the instructions body.
// The document must open with a line of exactly `---`; a leading UTF-8 BOM
// is tolerated, and CRLF line endings are accepted at the delimiters.
func splitFrontMatter(contents string) (header, body string, err error) {
	trimmed := strings.TrimLeft(contents, "\uFEFF")

	if !strings.HasPrefix(trimmed, frontMatterDelim) {
		return "", "", ErrMissingFrontMatter
	}

	rest := trimmed[len(frontMatterDelim):]
	rest = strings.TrimPrefix(rest, "\r")
	if !strings.HasPrefix(rest, "\n") {
		return "", "", ErrMissingFrontMatter
	}
	rest = rest[1:]

	if idx := strings.Index(rest, "\n"+frontMatterDelim); idx >= 0 {
		header = strings.TrimSpace(rest[:idx])
		body = rest[idx+len(frontMatterDelim)+1:]
		body = strings.TrimPrefix(body, "\r")
		body = strings.TrimPrefix(body, "\n")
		return header, body, nil
	}
	if h, ok := strings.CutSuffix(rest, "\n"+frontMatterDelim); ok {
		return strings.TrimSpace(h), "", nil
	}
	if h, ok := strings.CutSuffix(rest, frontMatterDelim); ok {
		return strings.TrimSpace(h), "", nil
	}
	return "", "", ErrMissingFrontMatter
}
