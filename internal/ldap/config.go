package ldap

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance; it caches struct metadata.
var validate = validator.New()

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	config := &ConnectionConfig{}
	if err := defaults.Set(config); err != nil {
		// Tags are static, so this only fails on a programming error.
		panic(fmt.Sprintf("invalid connection config defaults: %v", err))
	}
	config.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	return config
}

// ValidateConfig checks struct tag constraints and the rules tags cannot express.
func ValidateConfig(config *ConnectionConfig) error {
	if config == nil {
		return errors.New("connection config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		return formatValidationError(err)
	}

	if config.Domain == "" && len(config.LDAPURLs) == 0 {
		return errors.New("either domain or LDAP URLs must be specified")
	}

	if config.BaseDN != "" {
		if _, err := ParseDN(config.BaseDN); err != nil {
			return fmt.Errorf("invalid base DN: %w", err)
		}
	}

	if config.MaxBackoff < config.InitialBackoff {
		return fmt.Errorf("MaxBackoff (%s) must not be shorter than InitialBackoff (%s)", config.MaxBackoff, config.InitialBackoff)
	}

	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			strings.TrimPrefix(e.Namespace(), "ConnectionConfig."), e.Tag(), e.Value())
	}
	return err
}
