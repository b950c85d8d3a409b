package guard

import "unicode/utf8"

// FallbackMessage replaces any answer the guard or the validator rejects.
const FallbackMessage = "I don't have sufficient information in the available documentation to answer this question accurately. " +
	"Please refer to the official IIT Madras BS programme documentation or contact the programme administrators."

// Disclaimer is appended to answers carrying only medium-severity issues.
const Disclaimer = "\n\n_Some details in this answer could not be matched to the programme documentation. " +
	"Please verify them against the official documents before relying on them._"

// maxMatchesPerIssue caps the sample matches kept on an issue.
const maxMatchesPerIssue = 2

// Issue is one finding of the batch validator.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Rule     string    `json:"rule,omitempty"`
	Matches  []string  `json:"matches,omitempty"`
}

// Result is the outcome of validating a complete answer.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// HasMedium reports whether any medium-severity issue was found.
func (r Result) HasMedium() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityMedium {
			return true
		}
	}
	return false
}

// Validator runs the streaming heuristics over complete answers, for offline
// evaluation. Unlike the inline guard it also reports medium-severity rules.
type Validator struct {
	tables *Tables
}

func NewValidator(tables *Tables) Validator {
	return Validator{tables: tables}
}

// Validate screens a full response. hasUsableDocs tells whether the answer
// was generated with any document above the relevance threshold.
func (v Validator) Validate(response, question string, hasUsableDocs bool) Result {
	th := v.tables.Thresholds
	length := utf8.RuneCountInString(response)
	if length < th.BatchMinLength {
		return Result{Valid: true, Issues: []Issue{}}
	}

	issues := []Issue{}
	for _, rule := range v.tables.Hallucination {
		matches := rule.FindAll(response, maxMatchesPerIssue)
		if len(matches) == 0 {
			continue
		}
		issues = append(issues, Issue{
			Kind:     KindHallucinationPattern,
			Severity: rule.Severity,
			Rule:     rule.Name,
			Matches:  matches,
		})
	}

	if !hasUsableDocs && length > th.NoSourceMinLength &&
		!v.tables.BatchNoSourceAdmissions.Matches(response) {
		issues = append(issues, Issue{Kind: KindNoSource, Severity: SeverityHigh})
	}

	if v.tables.AnswerScopeKeywords.Matches(question) && length > th.OutOfScopeMinLength &&
		!v.tables.BatchOutOfScopeAdmissions.Matches(response) {
		issues = append(issues, Issue{Kind: KindOutOfScope, Severity: SeverityHigh})
	}

	valid := true
	for _, is := range issues {
		if is.Severity == SeverityHigh {
			valid = false
			break
		}
	}
	return Result{Valid: valid, Issues: issues}
}

// Apply returns the text to show for response given its validation result.
func (v Validator) Apply(response string, res Result) string {
	switch {
	case !res.Valid:
		return FallbackMessage
	case res.HasMedium():
		return response + Disclaimer
	default:
		return response
	}
}
