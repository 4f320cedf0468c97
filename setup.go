package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/raine/image-analysis-app/config"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const (
	hfWhoAmIURL      = "https://huggingface.co/api/whoami-v2"
	telegramGetMeURL = "https://api.telegram.org/bot%s/getMe"
	geminiModelsURL  = "https://generativelanguage.googleapis.com/v1beta/models"
)

// isInteractiveTerminal returns true if both stdin and stdout are TTYs.
// This is used to determine if we can run the interactive setup wizard.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// setupAnswers holds the values typed into the setup wizard.
type setupAnswers struct {
	hfToken   string
	geminiKey string
	botToken  string
	adminID   string
}

// values returns the non-empty answers keyed by environment variable.
func (a *setupAnswers) values() map[string]string {
	values := make(map[string]string)
	for key, val := range map[string]string{
		"HF_TOKEN":          a.hfToken,
		"GEMINI_API_KEY":    a.geminiKey,
		"BOT_TOKEN":         a.botToken,
		"ADMIN_TELEGRAM_ID": a.adminID,
	} {
		if val != "" {
			values[key] = val
		}
	}
	return values
}

// setupGroups builds one form group per missing required variable. The optional
// Telegram settings are only offered on a first run, when the token is missing too.
func setupGroups(missing []string, a *setupAnswers) []*huh.Group {
	var groups []*huh.Group

	if slices.Contains(missing, "HF_TOKEN") {
		groups = append(groups,
			huh.NewGroup(
				huh.NewInput().
					Title("Hugging Face Access Token").
					Description("Create one at https://huggingface.co/settings/tokens").
					EchoMode(huh.EchoModePassword).
					Value(&a.hfToken).
					Validate(func(s string) error {
						if s == "" {
							return errors.New("token is required")
						}
						return validateHFToken(s)
					}),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Telegram Bot Token (optional)").
					Description("Leave empty to run only the web UI").
					Value(&a.botToken).
					Validate(func(s string) error {
						if s == "" {
							return nil
						}
						return validateTelegramToken(s)
					}),
				huh.NewInput().
					Title("Your Telegram User ID (optional)").
					Description("Restricts the bot to you. Message @userinfobot to get your ID").
					Value(&a.adminID).
					Validate(func(s string) error {
						if s == "" {
							return nil
						}
						if _, err := strconv.ParseInt(s, 10, 64); err != nil {
							return errors.New("must be a number")
						}
						return nil
					}),
			),
		)
	}

	if slices.Contains(missing, "GEMINI_API_KEY") {
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title("Gemini API Key").
				Description("CAPTION_BACKEND is gemini. Get a key at https://aistudio.google.com/apikey").
				EchoMode(huh.EchoModePassword).
				Value(&a.geminiKey).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("API key is required")
					}
					return validateGeminiKey(s)
				}),
		))
	}

	return groups
}

// runSetupWizard asks for the missing required variables, merges them into the config
// file and exports them to the current process.
// Returns true if setup was successful and the app should continue starting.
func runSetupWizard(missing []string) bool {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("Image Analysis App - Setup"))
	fmt.Println()

	var answers setupAnswers
	groups := setupGroups(missing, &answers)
	if len(groups) == 0 {
		return true
	}

	form := huh.NewForm(groups...).WithTheme(huh.ThemeBase16())
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return false
		}
		fmt.Printf("\nError: %v\n", err)
		return false
	}

	values := answers.values()
	configPath, err := config.WriteEnvFile(values)
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		waitOnWindows()
		return false
	}

	for k, v := range values {
		os.Setenv(k, v)
	}

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()
	fmt.Println("Starting...")
	fmt.Println()

	return true
}

func setupClient() *resty.Client {
	return resty.New().SetTimeout(10 * time.Second)
}

// validateHFToken checks the token against the Hugging Face whoami endpoint.
func validateHFToken(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result struct {
		Name string `json:"name"`
	}
	res, err := setupClient().R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&result).
		Get(hfWhoAmIURL)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("connection timed out - check your internet")
		}
		return errors.New("connection failed - check your internet")
	}

	switch {
	case res.StatusCode() == 401 || res.StatusCode() == 403:
		return errors.New("token rejected by Hugging Face")
	case res.IsError():
		return fmt.Errorf("unexpected response (HTTP %d)", res.StatusCode())
	}

	log.Debug().Str("user", result.Name).Msg("hugging face token accepted")
	return nil
}

// validateTelegramToken validates a Telegram bot token by calling the getMe API.
func validateTelegramToken(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description,omitempty"`
	}
	_, err := setupClient().R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&result).
		Get(fmt.Sprintf(telegramGetMeURL, token))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("connection timed out - check your internet")
		}
		return errors.New("connection failed - check your internet")
	}

	if !result.OK {
		if result.Description != "" {
			return errors.New(result.Description)
		}
		return errors.New("token rejected by Telegram")
	}

	return nil
}

// validateGeminiKey validates a Gemini API key with the lightweight models list endpoint.
func validateGeminiKey(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	res, err := setupClient().R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetError(&result).
		Get(geminiModelsURL)
	if err != nil {
		return errors.New("connection failed - check your internet")
	}

	switch code := res.StatusCode(); {
	case code == 400 || code == 401 || code == 403:
		if result.Error.Message != "" {
			return errors.New(result.Error.Message)
		}
		return fmt.Errorf("API key rejected (HTTP %d)", code)
	case code != 200:
		return fmt.Errorf("unexpected response (HTTP %d)", code)
	}

	return nil
}

// waitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func waitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// fatalWithWait logs a fatal error and waits on Windows before exiting.
func fatalWithWait(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Error().Msg(msg)
	waitOnWindows()
	os.Exit(1)
}
