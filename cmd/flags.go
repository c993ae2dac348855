package cmd

import (
	"fmt"
	"strconv"

	"github.com/dcmarble/stonesite/internal/logging"
	"github.com/spf13/pflag"
)

// validatingValue rejects bad flag values at parse time, so cobra reports
// them alongside usage instead of after config loading.
type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(value string) error {
	if err := v.validator(value); err != nil {
		return err
	}
	return v.Value.Set(value)
}

// addFlagValidation wraps a registered flag with validator.
func addFlagValidation(flags *pflag.FlagSet, name string, validator func(string) error) {
	flag := flags.Lookup(name)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

func validatePort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("port must be a number, got %q", value)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}
	return nil
}

func validateLogLevel(value string) error {
	_, err := logging.ParseLevel(value)
	return err
}

func validateFormat(value string) error {
	switch value {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", value)
	}
}
