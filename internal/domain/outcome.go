package domain

import "errors"

type OutcomeStatus int

const (
	OutcomeOK OutcomeStatus = iota
	OutcomeEmpty
	OutcomeError
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "no_results"
	case OutcomeError:
		return "error"
	}
	return "unknown"
}

// SearchOutcome is the result of one retrieval step. Empty and Error are
// distinct states so "nothing matched" is never mistaken for a failure.
type SearchOutcome struct {
	Status        OutcomeStatus
	Snippets      []Snippet
	Chunks        []ScoredChunk
	Analysis      QueryAnalysis
	UniqueSources int
	LowConfidence bool
	Warning       string
	Message       string
	Suggestions   []string
	Listing       []FolderGroup
	Err           error
}

func Found(chunks []ScoredChunk, snippets []Snippet) SearchOutcome {
	return SearchOutcome{Status: OutcomeOK, Chunks: chunks, Snippets: snippets}
}

func Empty(message string, suggestions ...string) SearchOutcome {
	return SearchOutcome{Status: OutcomeEmpty, Message: message, Suggestions: suggestions}
}

func Failed(err error) SearchOutcome {
	return SearchOutcome{Status: OutcomeError, Message: err.Error(), Err: err}
}

// HasEvidence reports whether the outcome carries any snippets or listing.
func (o SearchOutcome) HasEvidence() bool {
	return o.Status == OutcomeOK && (len(o.Snippets) > 0 || len(o.Listing) > 0)
}

// ErrorKind returns the provider error kind for failed outcomes.
func (o SearchOutcome) ErrorKind() ErrorKind {
	var pe *ProviderError
	if errors.As(o.Err, &pe) {
		return pe.Kind
	}
	if o.Status == OutcomeError {
		return KindProviderUnavailable
	}
	return KindNone
}
