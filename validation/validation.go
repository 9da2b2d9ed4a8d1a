package validation

import (
	"fmt"
	"net/http"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`)

type Validator struct {
	config   *config.Config
	validate *validator.Validate
}

func NewValidator(cfg *config.Config) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails for empty tags or nil funcs
	_ = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return ValidHandle(fl.Field().String())
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil
	})

	return &Validator{config: cfg, validate: v}
}

// ValidHandle reports whether s is a well-formed source account handle.
func ValidHandle(s string) bool {
	return handlePattern.MatchString(s)
}

// Struct validates a request body against its validate tags.
func (v *Validator) Struct(s any) error {
	const op = "Validator.Struct"

	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.InvalidInput(op, err, "Invalid request")
	}
	return errors.InvalidInput(op, err, describe(fieldErrs[0]))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "handle":
		return fmt.Sprintf("%s must be 1-30 letters, digits, dots or underscores", field)
	case "clock":
		return fmt.Sprintf("%s must be a time in HH:MM format", field)
	case "min", "max":
		return fmt.Sprintf("%s must be between 0 and 100", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}

// ValidateHookUpload checks an uploaded hook clip's name and size.
func (v *Validator) ValidateHookUpload(filename string, size int64) error {
	const op = "Validator.ValidateHookUpload"

	if !strings.EqualFold(filepath.Ext(filename), ".mp4") {
		return errors.InvalidInput(op, nil, "Hook clips must be .mp4 files")
	}
	if size <= 0 {
		return errors.InvalidInput(op, nil, "Hook clip is empty")
	}
	if max := v.config.Assets.MaxUploadSize; max > 0 && size > max {
		return errors.InvalidInput(op, nil, fmt.Sprintf("Hook clip exceeds %d MB", max/(1024*1024)))
	}
	return nil
}

// RequestValidationOpts holds options for request validation
type RequestValidationOpts struct {
	MaxContentLength int64
	AllowedMethods   []string
	RequireJSON      bool
}

// ValidateRequest validates HTTP requests
func (v *Validator) ValidateRequest(r *http.Request, opts RequestValidationOpts) error {
	const op = "Validator.ValidateRequest"

	if len(opts.AllowedMethods) > 0 {
		methodAllowed := false
		for _, method := range opts.AllowedMethods {
			if r.Method == method {
				methodAllowed = true
				break
			}
		}
		if !methodAllowed {
			return errors.InvalidInput(op, nil, fmt.Sprintf("Method %s not allowed", r.Method))
		}
	}

	if opts.RequireJSON {
		if contentType := r.Header.Get("Content-Type"); !strings.Contains(contentType, "application/json") {
			return errors.InvalidInput(op, nil, "Content-Type must be application/json")
		}
	}

	if opts.MaxContentLength > 0 && r.ContentLength > opts.MaxContentLength {
		return errors.InvalidInput(op, nil, "Request body too large")
	}

	return nil
}
