package evaluator

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"gatekeeper/internal/models"
)

// numericDOB matches day/month and day/month/year with /, - or . separators.
var numericDOB = regexp.MustCompile(`^\s*(\d{1,2})\s*[/.\-]\s*(\d{1,2})(?:\s*[/.\-]\s*(\d{2,4}))?\s*$`)

// DOBOutcome is the result of resolving a date-of-birth answer.
type DOBOutcome struct {
	DOB           *models.DateOfBirth
	Clarification string
}

// defaultDOBClarification is used when the LLM path is unavailable.
const defaultDOBClarification = "Sorry, I couldn't read that date. Could you send it as day/month, like 8/12?"

// ResolveDOB parses a date-of-birth answer. Plain numeric forms resolve
// without a model round trip; free text goes to the LLM, and any failure
// there becomes a clarification reprompt rather than an error.
func (e *Evaluator) ResolveDOB(ctx context.Context, raw, displayName string, useLLM bool) DOBOutcome {
	if m := numericDOB.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		dob := models.DateOfBirth{Day: day, Month: month}
		if m[3] != "" {
			if year, err := strconv.Atoi(m[3]); err == nil {
				if year < 100 {
					year += 1900
				}
				dob.Year = &year
			}
		}
		if dob.Valid() {
			return DOBOutcome{DOB: &dob}
		}
		// Digits in the wrong order still parse ("12/8" vs "8/12").
		swapped := models.DateOfBirth{Day: month, Month: day, Year: dob.Year}
		if swapped.Valid() {
			return DOBOutcome{DOB: &swapped}
		}
		return DOBOutcome{Clarification: defaultDOBClarification}
	}

	if !useLLM || e.llm == nil {
		return DOBOutcome{Clarification: defaultDOBClarification}
	}

	res, err := e.llm.ParseDOB(ctx, raw, displayName)
	if err != nil {
		e.logger.Warn("dob parse fell back to clarification", zap.Error(err))
		return DOBOutcome{Clarification: defaultDOBClarification}
	}
	if res.Clarification != "" {
		return DOBOutcome{Clarification: res.Clarification}
	}
	dob := models.DateOfBirth{Day: res.Day, Month: res.Month, Year: res.Year}
	if !dob.Valid() {
		return DOBOutcome{Clarification: defaultDOBClarification}
	}
	return DOBOutcome{DOB: &dob}
}

// ExtractDisplayName pulls a name out of a first open answer using simple
// patterns; it returns "" on miss so callers fall back to the push name.
func ExtractDisplayName(raw string) string {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bname\s+is\s+([A-Za-z][A-Za-z'\-]*)`),
		regexp.MustCompile(`(?i)\bname'?s\s+([A-Za-z][A-Za-z'\-]*)`),
		regexp.MustCompile(`(?i)\bcalled\s+([A-Za-z][A-Za-z'\-]*)`),
		regexp.MustCompile(`(?i)^i'?m\s+([A-Za-z][A-Za-z'\-]*)`),
	}
	for _, p := range patterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return capitalize(m[1])
		}
	}
	return ""
}

func capitalize(s string) string {
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}
