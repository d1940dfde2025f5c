package classifier

import (
	"regexp"
	"strconv"
	"strings"
)

var confidencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)confidence[:\s]+([0-9.]+)`),
	regexp.MustCompile(`(?i)confident[:\s]+([0-9.]+)`),
	regexp.MustCompile(`(?i)certainty[:\s]+([0-9.]+)`),
	regexp.MustCompile(`(?i)([0-9]{1,3})%\s+(?:confident|sure|certain)`),
}

var (
	highConfidenceWords   = []string{"definitely", "certainly", "absolutely", "clearly"}
	mediumConfidenceWords = []string{"probably", "likely", "appears", "seems"}
	lowConfidenceWords    = []string{"possibly", "maybe", "might", "could be"}
)

// defaultConfidence applies when the answer carries no hint.
const defaultConfidence = 0.8

// ExtractConfidence reads an explicit confidence value from the answer or
// estimates one from hedging words. Percentages are scaled to [0,1].
func ExtractConfidence(answer string) float64 {
	for _, re := range confidencePatterns {
		m := re.FindStringSubmatch(answer)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimRight(m[1], "."), 64)
		if err != nil {
			continue
		}
		if value > 1 {
			value /= 100
		}
		if value < 0 {
			value = 0
		}
		if value > 1 {
			value = 1
		}
		return value
	}

	lower := strings.ToLower(answer)
	switch {
	case containsAny(lower, highConfidenceWords):
		return 0.9
	case containsAny(lower, lowConfidenceWords):
		return 0.5
	case containsAny(lower, mediumConfidenceWords):
		return 0.7
	}
	return defaultConfidence
}

// MatchOption reduces a free-form answer to one of options. Exact matches win,
// then the first option contained in the answer; otherwise the answer is returned as is.
func MatchOption(answer string, options []string) string {
	upper := strings.ToUpper(strings.TrimSpace(answer))
	for _, option := range options {
		if upper == strings.ToUpper(option) {
			return option
		}
	}
	for _, word := range answerWords(upper) {
		for _, option := range options {
			if word == strings.ToUpper(option) {
				return option
			}
		}
	}
	return strings.TrimSpace(answer)
}

// IsAffirmative reports whether an answer says yes: a whole JA or YES word
// and no NEIN or NO word.
func IsAffirmative(answer string) bool {
	yes := false
	for _, word := range answerWords(strings.ToUpper(answer)) {
		switch word {
		case "JA", "YES":
			yes = true
		case "NEIN", "NO":
			return false
		}
	}
	return yes
}

func answerWords(upper string) []string {
	return strings.FieldsFunc(upper, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
