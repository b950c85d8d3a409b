package guard

import (
	_ "embed"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatterns []byte

// matchTimeout bounds a single regex evaluation.
const matchTimeout = 250 * time.Millisecond

// Severity grades a validation issue.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// IssueKind classifies why a text was flagged.
type IssueKind string

const (
	KindHallucinationPattern IssueKind = "hallucination_pattern"
	KindNoSource             IssueKind = "no_source"
	KindOutOfScope           IssueKind = "out_of_scope"
)

// Rule is one named hallucination matcher.
type Rule struct {
	Name     string
	Severity Severity
	re       *regexp2.Regexp
}

// Matches reports whether the rule fires on text. A timed-out evaluation
// counts as no match.
func (r Rule) Matches(text string) bool {
	ok, err := r.re.MatchString(text)
	return err == nil && ok
}

// FindAll returns up to limit matched substrings.
func (r Rule) FindAll(text string, limit int) []string {
	var out []string
	m, err := r.re.FindStringMatch(text)
	for err == nil && m != nil && len(out) < limit {
		out = append(out, m.String())
		m, err = r.re.FindNextMatch(m)
	}
	return out
}

// Matcher is a compiled alternation of patterns.
type Matcher struct {
	res []*regexp2.Regexp
}

// Matches reports whether any pattern of the set matches text.
func (m Matcher) Matches(text string) bool {
	for _, re := range m.res {
		if ok, err := re.MatchString(text); err == nil && ok {
			return true
		}
	}
	return false
}

// Len returns the number of patterns in the set.
func (m Matcher) Len() int { return len(m.res) }

// Thresholds are the character counts the heuristics key off.
type Thresholds struct {
	MinJudgeLength      int `yaml:"min_judge_length"`
	NoSourceMinLength   int `yaml:"no_source_min_length"`
	OutOfScopeMinLength int `yaml:"out_of_scope_min_length"`
	BatchMinLength      int `yaml:"batch_min_length"`
}

// Tables holds every screening table, compiled once at start-up.
type Tables struct {
	Thresholds    Thresholds
	Hallucination []Rule

	// PrefilterKeywords are word-bounded and checked against the question
	// before any backend call.
	PrefilterKeywords Matcher

	// AnswerScopeKeywords are checked by the inline guard and the batch
	// validator. Kept separate from PrefilterKeywords on purpose.
	AnswerScopeKeywords Matcher

	StreamNoSourceAdmissions   Matcher
	StreamOutOfScopeAdmissions Matcher
	BatchNoSourceAdmissions    Matcher
	BatchOutOfScopeAdmissions  Matcher
}

type rawRule struct {
	Name     string   `yaml:"name"`
	Severity Severity `yaml:"severity"`
	Pattern  string   `yaml:"pattern"`
}

type rawTables struct {
	Thresholds          Thresholds `yaml:"thresholds"`
	Hallucination       []rawRule  `yaml:"hallucination"`
	PrefilterKeywords   []string   `yaml:"prefilter_keywords"`
	AnswerScopeKeywords []string   `yaml:"answer_scope_keywords"`
	Admissions          struct {
		StreamNoSource   string `yaml:"stream_no_source"`
		StreamOutOfScope string `yaml:"stream_out_of_scope"`
		BatchNoSource    string `yaml:"batch_no_source"`
		BatchOutOfScope  string `yaml:"batch_out_of_scope"`
	} `yaml:"admissions"`
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
)

// Default returns the embedded tables. It panics if they fail to compile,
// which can only happen on a broken build.
func Default() *Tables {
	defaultOnce.Do(func() {
		t, err := Load(defaultPatterns)
		if err != nil {
			panic(fmt.Sprintf("embedded screening patterns: %v", err))
		}
		defaultTables = t
	})
	return defaultTables
}

// LoadFile compiles tables from a YAML file on disk.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}
	return Load(data)
}

// Load compiles tables from YAML.
func Load(data []byte) (*Tables, error) {
	var raw rawTables
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse patterns: %w", err)
	}

	t := &Tables{Thresholds: raw.Thresholds}
	for _, rr := range raw.Hallucination {
		if rr.Severity != SeverityHigh && rr.Severity != SeverityMedium {
			return nil, fmt.Errorf("rule %q: unknown severity %q", rr.Name, rr.Severity)
		}
		re, err := compile(rr.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rr.Name, err)
		}
		t.Hallucination = append(t.Hallucination, Rule{Name: rr.Name, Severity: rr.Severity, re: re})
	}

	var err error
	if t.PrefilterKeywords, err = compileKeywords(raw.PrefilterKeywords, true); err != nil {
		return nil, fmt.Errorf("prefilter keywords: %w", err)
	}
	if t.AnswerScopeKeywords, err = compileKeywords(raw.AnswerScopeKeywords, false); err != nil {
		return nil, fmt.Errorf("answer scope keywords: %w", err)
	}

	admissions := []struct {
		dst *Matcher
		src string
		key string
	}{
		{&t.StreamNoSourceAdmissions, raw.Admissions.StreamNoSource, "stream_no_source"},
		{&t.StreamOutOfScopeAdmissions, raw.Admissions.StreamOutOfScope, "stream_out_of_scope"},
		{&t.BatchNoSourceAdmissions, raw.Admissions.BatchNoSource, "batch_no_source"},
		{&t.BatchOutOfScopeAdmissions, raw.Admissions.BatchOutOfScope, "batch_out_of_scope"},
	}
	for _, a := range admissions {
		if a.src == "" {
			return nil, fmt.Errorf("admissions.%s is empty", a.key)
		}
		re, err := compile(a.src)
		if err != nil {
			return nil, fmt.Errorf("admissions.%s: %w", a.key, err)
		}
		*a.dst = Matcher{res: []*regexp2.Regexp{re}}
	}

	return t, nil
}

func compileKeywords(keywords []string, bounded bool) (Matcher, error) {
	m := Matcher{res: make([]*regexp2.Regexp, 0, len(keywords))}
	for _, kw := range keywords {
		pattern := kw
		if bounded {
			pattern = `\b` + kw + `\b`
		}
		re, err := compile(pattern)
		if err != nil {
			return Matcher{}, fmt.Errorf("keyword %q: %w", kw, err)
		}
		m.res = append(m.res, re)
	}
	return m, nil
}

func compile(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}
