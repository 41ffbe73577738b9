package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/BaSui01/catalogfed/types"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	sqlDrivers = map[string]struct{}{"postgres": {}, "mysql": {}, "sqlite": {}}
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		validateInst = validator.New(validator.WithRequiredStructEnabled())
	})
	return validateInst
}

// Validate runs the struct tag rules and the cross-field checks. Every
// failure is an INVALID_CONFIGURATION error; several failures are joined.
func (c *Config) Validate() error {
	if c == nil {
		return types.NewError(types.ErrInvalidConfiguration, "configuration is nil")
	}

	var errs []error
	if err := validatorInstance().Struct(c); err != nil {
		errs = append(errs, convertValidationError(err)...)
	}

	seen := make(map[string]int, len(c.Sources))
	for i, s := range c.Sources {
		if prev, ok := seen[s.ID]; ok && s.ID != "" {
			errs = append(errs, invalidField(fieldForSource(i, "id"),
				fmt.Sprintf("duplicate source id %q (also sources[%d])", s.ID, prev)))
			continue
		}
		seen[s.ID] = i

		if s.Type == SourceTypeSQL && s.Driver != "" {
			if _, ok := sqlDrivers[s.Driver]; !ok {
				errs = append(errs, invalidField(fieldForSource(i, "driver"),
					fmt.Sprintf("unsupported driver %q", s.Driver)))
			}
		}
		if s.Type == SourceTypeHTTP && s.URL != "" &&
			!strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			errs = append(errs, invalidField(fieldForSource(i, "url"), "url must be http or https"))
		}
	}

	if c.Federation.MaxPageSize > 0 && c.Federation.DefaultPageSize > c.Federation.MaxPageSize {
		errs = append(errs, invalidField("federation.default_page_size", "exceeds federation.max_page_size"))
	}

	return errors.Join(errs...)
}

func convertValidationError(err error) []error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []error{types.NewError(types.ErrInvalidConfiguration, err.Error()).WithCause(err)}
	}
	out := make([]error, 0, len(ves))
	for _, fe := range ves {
		field := yamlishFieldName(fe)
		out = append(out, invalidField(field, fmt.Sprintf("failed validation for tag '%s'", fe.Tag())))
	}
	return out
}

func invalidField(field, msg string) error {
	return types.NewError(types.ErrInvalidConfiguration, field+": "+msg)
}

// yamlishFieldName turns Config.Sources[0].URL into sources[0].url.
func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i := range parts {
		parts[i] = strings.ToLower(parts[i])
	}
	return strings.Join(parts, ".")
}

func fieldForSource(index int, field string) string {
	return fmt.Sprintf("sources[%d].%s", index, field)
}
