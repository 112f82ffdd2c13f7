package application

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// JudgeProviders lists the judge backends the process can wire.
var JudgeProviders = []string{"groq", "openai", "anthropic", "google", "fuzzy"}

// RegisterConfigValidators registers the custom tags used by AppConfig.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("judgeprovider", validateJudgeProvider); err != nil {
		return fmt.Errorf("failed to register judgeprovider validator: %w", err)
	}
	if err := v.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return fmt.Errorf("failed to register loglevel validator: %w", err)
	}
	return nil
}

func validateJudgeProvider(fl validator.FieldLevel) bool {
	return slices.Contains(JudgeProviders, strings.ToLower(fl.Field().String()))
}

// validateLogLevel accepts any level zerolog can parse, including empty.
func validateLogLevel(fl validator.FieldLevel) bool {
	_, err := zerolog.ParseLevel(strings.ToLower(fl.Field().String()))
	return err == nil
}
