package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks the configuration against struct tags and the kernel
// constraints tags cannot express (power-of-two ring depth, page-aligned
// buffers, symbolic flag names). It also parses ring.flags into
// Ring.FlagBits.
//
// Returns an error describing the first violation; the process must not
// start when Validate fails.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	entries := cfg.Ring.Entries
	if entries&(entries-1) != 0 {
		return fmt.Errorf("ring.entries must be a power of two, got %d", entries)
	}
	if entries < 256 || entries > 8192 {
		return fmt.Errorf("ring.entries must be in [256, 8192], got %d", entries)
	}

	pageSize := os.Getpagesize()
	if cfg.Buffers.Size%pageSize != 0 {
		return fmt.Errorf("buffers.size must be a multiple of the %d-byte page size, got %d",
			pageSize, cfg.Buffers.Size)
	}

	flags, err := ParseSetupFlags(cfg.Ring.Flags)
	if err != nil {
		return fmt.Errorf("ring.flags: %w", err)
	}
	cfg.Ring.FlagBits = flags

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
