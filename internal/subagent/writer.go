package subagent

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToMarkdown renders the spec back into definition file form. The output
// round-trips through ParseDocument to an equivalent spec; values that need
// quoting come out quoted because the header is YAML-encoded, not templated.
func ToMarkdown(spec *Spec) string {
	fm := frontMatter{
		Name:        spec.Name(),
		Description: spec.Description(),
		Model:       spec.Model(),
		Tools:       spec.Tools(),
		Keywords:    spec.Keywords(),
	}

	var header bytes.Buffer
	enc := yaml.NewEncoder(&header)
	enc.SetIndent(2)
	if err := enc.Encode(&fm); err != nil {
		// The header is plain strings and slices; encoding cannot fail.
		panic(err)
	}
	enc.Close()

	var sb strings.Builder
	sb.WriteString(frontMatterDelim + "\n")
	sb.Write(header.Bytes())
	sb.WriteString(frontMatterDelim + "\n\n")
	sb.WriteString(spec.Instructions())
	sb.WriteString("\n")
	return sb.String()
}

// Template returns a starter definition document for a new subagent.
func Template(name, description string, keywords []string) string {
	spec, err := NewBuilder(name).
		Description(description).
		Keywords(CleanList(keywords)...).
		Instructions("Describe what this subagent should do.").
		Build()
	if err != nil {
		// Callers validate the name first; reaching here is a programming error.
		panic(err)
	}
	return ToMarkdown(spec)
}
