package subagent

const specParserPrompt = `
You are the specification parser subagent. Read the user's request and produce a concise
requirements document. Ensure every requirement has an identifier (format ` + "`REQ-###`" + `),
a summary, and at least one acceptance criterion. Capture any referenced files when
explicitly mentioned (e.g. ` + "`files: src/lib.rs`" + `).

Return JSON following this schema:
- title: short title for the effort
- overview: one paragraph summary
- requirements: array of requirement objects with ` + "`id`" + `, ` + "`summary`" + `,
  ` + "`acceptance_criteria`" + ` (array of strings), and optional ` + "`file_hints`" + ` (array of strings).
`

const codeWriterPrompt = `
You are the code writer subagent. Given a structured requirements specification, outline
proposed code changes with clear file-level actions and rationale. Prefer concise bullet
summaries per requirement. Run formatters when possible and report their outcome.
`

const testerPrompt = `
You are the tester subagent. Given proposed changes, produce an executable test plan.
Attempt to run each task in a sandbox-safe manner and report its outcome. When execution
is blocked, surface a user-facing message explaining why.
`

const reviewerPrompt = `
You are the reviewer subagent. Inspect proposed changes and available test results to
identify risks. Classify findings with severity and recommend fixes when possible.
Highlight missing tests and potential security issues.
`

// SpecParserSpec returns the built-in specification parser definition.
func SpecParserSpec() *Spec {
	return mustBuiltin(NewBuilder("spec-parser").
		Description("Parses natural language briefs into structured requirements").
		Keywords("requirements", "spec", "analysis").
		Instructions(specParserPrompt))
}

// CodeWriterSpec returns the built-in code writer definition.
func CodeWriterSpec() *Spec {
	return mustBuiltin(NewBuilder("code-writer").
		Description("Drafts implementation plans and code changes").
		Tools("apply_patch", "shell").
		Keywords("implement", "code", "write").
		Instructions(codeWriterPrompt))
}

// TesterSpec returns the built-in tester definition.
func TesterSpec() *Spec {
	return mustBuiltin(NewBuilder("tester").
		Description("Plans and executes verification steps").
		Tools("shell").
		Keywords("test", "verify", "qa").
		Instructions(testerPrompt))
}

// ReviewerSpec returns the built-in reviewer definition.
func ReviewerSpec() *Spec {
	return mustBuiltin(NewBuilder("reviewer").
		Description("Performs quality and safety review").
		Keywords("review", "lint", "qa").
		Instructions(reviewerPrompt))
}

// Builtins returns the full built-in definition set in pipeline order.
func Builtins() []*Spec {
	return []*Spec{SpecParserSpec(), CodeWriterSpec(), TesterSpec(), ReviewerSpec()}
}

func mustBuiltin(b *Builder) *Spec {
	spec, err := b.Source(SourceBuiltin).Build()
	if err != nil {
		panic("invalid built-in subagent definition: " + err.Error())
	}
	return spec
}
