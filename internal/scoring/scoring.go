// Package scoring converts task outcomes into domain sub-scores.
package scoring

import (
	"math"

	"github.com/fentz26/mindscan/internal/models"
)

// ErrorPenalty is subtracted from a task's score for each recorded error.
const ErrorPenalty = 0.1

// Domain is one of the four sub-score domains.
type Domain string

const (
	DomainMemory    Domain = "memory"
	DomainAttention Domain = "attention"
	DomainLanguage  Domain = "language"
	DomainExecutive Domain = "executive"
)

// domains maps task kinds to the domain they contribute to.
// KindMotor maps to language although no generator produces it.
var domains = map[models.TaskKind]Domain{
	models.KindWordRecall:   DomainMemory,
	models.KindDigitSpan:    DomainAttention,
	models.KindAttention:    DomainAttention,
	models.KindClockDrawing: DomainExecutive,
	models.KindMotor:        DomainLanguage,
}

// Outcome is the raw result of one completed task.
type Outcome struct {
	Kind    models.TaskKind
	Correct *bool
	Errors  int
}

// DomainFor returns the domain a task kind contributes to.
func DomainFor(kind models.TaskKind) (Domain, bool) {
	d, ok := domains[kind]
	return d, ok
}

// Adjusted returns max(0, (correct ? 1 : 0) - 0.1 * errors).
// Unknown correctness counts as incorrect.
func Adjusted(correct *bool, errors int) float64 {
	base := 0.0
	if correct != nil && *correct {
		base = 1
	}
	// Rounded to avoid float drift such as 1 - 0.1*3 = 0.7000000000000001.
	score := math.Round((base-ErrorPenalty*float64(errors))*1e9) / 1e9
	return math.Max(0, score)
}

// Score sums adjusted scores per domain. Outcomes of kinds outside the
// table are ignored.
func Score(outcomes []Outcome) models.CognitiveScores {
	var s models.CognitiveScores
	for _, o := range outcomes {
		d, ok := domains[o.Kind]
		if !ok {
			continue
		}
		v := Adjusted(o.Correct, o.Errors)
		switch d {
		case DomainMemory:
			s.Memory += v
		case DomainAttention:
			s.Attention += v
		case DomainLanguage:
			s.Language += v
		case DomainExecutive:
			s.Executive += v
		}
	}
	return s
}
