package usecase

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxQueryLength caps the question, in characters, before it reaches any backend.
const MaxQueryLength = 500

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all|what)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a?`),
	regexp.MustCompile(`(?i)pretend\s+(you\s+are|to\s+be)`),
	regexp.MustCompile(`(?i)act\s+as\s+(if|a)`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)system\s*:`),
	regexp.MustCompile(`(?i)assistant\s*:`),
	regexp.MustCompile(`(?i)\[system\]`),
	regexp.MustCompile(`(?i)\[assistant\]`),
	regexp.MustCompile(`(?i)</?system>`),
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeQuery truncates the question, turns control characters into spaces
// and strips prompt-injection phrases. The result may be empty when the
// question was nothing but injection text.
func SanitizeQuery(query string) string {
	if r := []rune(query); len(r) > MaxQueryLength {
		query = string(r[:MaxQueryLength])
	}
	query = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, query)
	for _, re := range injectionPatterns {
		query = re.ReplaceAllString(query, "")
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(query, " "))
}
