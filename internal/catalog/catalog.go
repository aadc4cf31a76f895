// Package catalog generates the speech and cognitive tasks of a session.
package catalog

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/mindscan/internal/models"
)

const (
	wordRecallLength = 5
	digitSpanLength  = 5
	digitDistractors = 3

	clockMaxDuration = 120 * time.Second
)

// Catalog is the fixed task set of one session.
type Catalog struct {
	Language  string        `json:"language"`
	Seed      uint64        `json:"seed"`
	Speech    []models.Task `json:"speech"`
	Cognitive []models.Task `json:"cognitive"`
}

// NormalizeLanguage reduces a language tag to a supported lexicon code.
// "es-MX" becomes "es"; unknown languages fall back to DefaultLanguage.
func NormalizeLanguage(lang string) string {
	code := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if _, ok := lexicons[code]; ok {
		return code
	}
	return DefaultLanguage
}

// Generate builds the catalog for a language. The same language and seed
// always produce the same tasks.
func Generate(lang string, seed uint64) *Catalog {
	code := NormalizeLanguage(lang)
	lex := lexicons[code]
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	c := &Catalog{
		Language: code,
		Seed:     seed,
		Speech: []models.Task{
			{
				ID:            "speech-reading",
				Kind:          models.KindSpeechReading,
				Modality:      models.ModalityTimedAudio,
				Prompt:        lex.readingPrompt,
				CorrectOption: models.NoCorrectOption,
				MaxDuration:   60 * time.Second,
			},
			{
				ID:            "speech-description",
				Kind:          models.KindSpeechDescription,
				Modality:      models.ModalityTimedAudio,
				Prompt:        lex.descriptionPrompt,
				CorrectOption: models.NoCorrectOption,
				MaxDuration:   90 * time.Second,
			},
			{
				ID:            "speech-fluency",
				Kind:          models.KindSpeechFluency,
				Modality:      models.ModalityTimedAudio,
				Prompt:        lex.fluencyPrompt,
				CorrectOption: models.NoCorrectOption,
				MaxDuration:   60 * time.Second,
			},
		},
	}

	c.Cognitive = append(c.Cognitive, wordRecall(rng, lex), digitSpan(rng, lex))
	for i, item := range lex.attention {
		c.Cognitive = append(c.Cognitive, models.Task{
			ID:            fmt.Sprintf("attention-%d", i+1),
			Kind:          models.KindAttention,
			Modality:      models.ModalitySingleChoice,
			Prompt:        item.prompt,
			Options:       append([]string(nil), item.options...),
			CorrectOption: item.correct,
		})
	}
	c.Cognitive = append(c.Cognitive, models.Task{
		ID:            "clock-drawing",
		Kind:          models.KindClockDrawing,
		Modality:      models.ModalityFreeResponse,
		Prompt:        lex.clockPrompt,
		CorrectOption: models.NoCorrectOption,
		MaxDuration:   clockMaxDuration,
	})
	return c
}

// Targets returns the target values of an ordered-sequence task in the
// order they must be recalled.
func Targets(task models.Task) []string {
	out := make([]string, 0, len(task.Expected))
	for _, idx := range task.Expected {
		if idx >= 0 && idx < len(task.Options) {
			out = append(out, task.Options[idx])
		}
	}
	return out
}

func wordRecall(rng *rand.Rand, lex lexicon) models.Task {
	targets := sample(rng, lex.words, wordRecallLength)
	options := shuffled(rng, targets)
	return models.Task{
		ID:            "word-recall",
		Kind:          models.KindWordRecall,
		Modality:      models.ModalityOrderedSequence,
		Prompt:        lex.wordRecallPrompt,
		Options:       options,
		CorrectOption: models.NoCorrectOption,
		Expected:      expectedPermutation(targets, options),
	}
}

func digitSpan(rng *rand.Rand, lex lexicon) models.Task {
	pool := make([]string, 10)
	for d := range pool {
		pool[d] = strconv.Itoa(d)
	}
	targets := sample(rng, pool, digitSpanLength)

	inTarget := make(map[string]bool, len(targets))
	for _, t := range targets {
		inTarget[t] = true
	}
	var rest []string
	for _, d := range pool {
		if !inTarget[d] {
			rest = append(rest, d)
		}
	}
	distractors := sample(rng, rest, digitDistractors)

	options := shuffled(rng, append(append([]string(nil), targets...), distractors...))
	return models.Task{
		ID:            "digit-span",
		Kind:          models.KindDigitSpan,
		Modality:      models.ModalityOrderedSequence,
		Prompt:        lex.digitSpanPrompt,
		Options:       options,
		CorrectOption: models.NoCorrectOption,
		Expected:      expectedPermutation(targets, options),
	}
}

// sample draws n distinct items from pool without replacement.
func sample(rng *rand.Rand, pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	perm := rng.Perm(len(pool))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = pool[perm[i]]
	}
	return out
}

func shuffled(rng *rand.Rand, items []string) []string {
	out := append([]string(nil), items...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// expectedPermutation maps each target to its position in options.
func expectedPermutation(targets, options []string) []int {
	pos := make(map[string]int, len(options))
	for i, o := range options {
		pos[o] = i
	}
	expected := make([]int, len(targets))
	for i, t := range targets {
		expected[i] = pos[t]
	}
	return expected
}
