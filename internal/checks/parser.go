package checks

// ParseResult holds the normalized output from a parser.
// Warned marks a passing result that still deserves attention.
type ParseResult struct {
	Passed   bool   `json:"passed"`
	Warned   bool   `json:"warned,omitempty"`
	Summary  string `json:"summary"`
	Findings any    `json:"findings"`
}

// Parser converts raw command output into a structured ParseResult.
type Parser interface {
	Parse(stdout string, stderr string, exitCode int) ParseResult
}
