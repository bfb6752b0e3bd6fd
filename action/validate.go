package action

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var inputValidator = newInputValidator()

func newInputValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by the name callers send them under.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})

	return v
}

// checkTags runs the validate struct tags of an input. Inputs that are not
// structs have no tags and always pass.
func checkTags(in any) ValidationErrors {
	errs := ValidationErrors{}

	if reflect.Indirect(reflect.ValueOf(in)).Kind() != reflect.Struct {
		return errs
	}

	err := inputValidator.Struct(in)
	if err == nil {
		return errs
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.Add("input", err.Error())
		return errs
	}

	for _, fe := range fieldErrs {
		errs.Add(fe.Field(), tagMessage(fe))
	}

	return errs
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		if fe.Kind() == reflect.Slice {
			return "At least " + fe.Param() + " value is required."
		}
		return "Ensure this field has at least " + fe.Param() + " characters."
	}

	return "Failed the " + fe.Tag() + " check."
}
