package tui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/fentz26/mindscan/internal/catalog"
	"github.com/fentz26/mindscan/internal/models"
	"golang.org/x/term"
)

var languageNames = map[string]string{
	"en": "English",
	"es": "Español",
	"fr": "Français",
}

// RunOnboardingForm collects the registration with a huh form. Fields set
// in initial are pre-filled.
func RunOnboardingForm(in io.Reader, out io.Writer, initial models.Registration) (models.Registration, error) {
	var (
		name    = initial.Name
		ageRaw  string
		lang    = catalog.NormalizeLanguage(initial.Language)
		consent = initial.Consent
	)
	if initial.Age > 0 {
		ageRaw = strconv.Itoa(initial.Age)
	}

	langs := make([]huh.Option[string], 0, len(catalog.Languages()))
	for _, code := range catalog.Languages() {
		label := languageNames[code]
		if label == "" {
			label = code
		}
		langs = append(langs, huh.NewOption(label, code))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Full name").
				Value(&name).
				Validate(func(s string) error {
					if n := len([]rune(strings.TrimSpace(s))); n < 2 || n > 120 {
						return errors.New("name must be between 2 and 120 characters")
					}
					return nil
				}),
			huh.NewInput().
				Title("Age").
				Placeholder("65").
				Value(&ageRaw).
				Validate(func(s string) error {
					_, err := parseAge(s)
					return err
				}),
			huh.NewSelect[string]().
				Title("Language").
				Options(langs...).
				Value(&lang),
			huh.NewConfirm().
				Title("Consent").
				Description("Your voice recordings and answers are sent to the screening service for analysis. This is not a diagnosis.").
				Affirmative("I agree").
				Negative("No").
				Value(&consent),
		),
	).
		WithInput(in).
		WithOutput(out)

	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return models.Registration{}, fmt.Errorf("onboarding form: %w", err)
	}

	age, _ := parseAge(ageRaw)
	return models.Registration{
		Name:     strings.TrimSpace(name),
		Age:      age,
		Language: lang,
		Consent:  consent,
	}, nil
}

func parseAge(s string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.New("age must be a whole number")
	}
	if age < 18 || age > 120 {
		return 0, errors.New("age must be between 18 and 120")
	}
	return age, nil
}
