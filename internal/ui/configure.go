package ui

import (
	"errors"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/iishyfishyy/calais/internal/config"
)

// Configure walks the user through the settings stored in the config file.
// Empty answers keep the current values.
func Configure(cfg *config.Config) error {
	questions := []*survey.Question{
		{
			Name:   "apikey",
			Prompt: &survey.Password{Message: "OpenAI API key (leave empty to keep the current one or use OPENAI_API_KEY):"},
		},
		{
			Name: "model",
			Prompt: &survey.Input{
				Message: "Model:",
				Default: cfg.Model,
			},
			Validate: survey.Required,
		},
		{
			Name: "baseurl",
			Prompt: &survey.Input{
				Message: "API base URL (empty for api.openai.com):",
				Default: cfg.BaseURL,
			},
		},
	}

	answers := struct {
		APIKey  string `survey:"apikey"`
		Model   string `survey:"model"`
		BaseURL string `survey:"baseurl"`
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return ErrInterrupted
		}
		return err
	}

	if answers.APIKey != "" {
		cfg.APIKey = answers.APIKey
	}
	cfg.Model = answers.Model
	cfg.BaseURL = answers.BaseURL
	return nil
}
