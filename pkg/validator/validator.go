package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/careflow-api/internal/model"
)

// Register installs the custom tags on v and reports fields by their json name
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("role", validateRole); err != nil {
		return fmt.Errorf("register role validator: %w", err)
	}
	if err := v.RegisterValidation("notblank", validateNotBlank); err != nil {
		return fmt.Errorf("register notblank validator: %w", err)
	}
	v.RegisterTagNameFunc(jsonName)
	return nil
}

func validateRole(fl validator.FieldLevel) bool {
	_, err := model.ParseRole(fl.Field().String())
	return err == nil
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// Message renders the first validation failure of err for clients
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}

	e := verrs[0]
	switch e.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", e.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", e.Field())
	case "role":
		roles := make([]string, len(model.Roles))
		for i, r := range model.Roles {
			roles[i] = r.String()
		}
		return fmt.Sprintf("%s must be one of %s", e.Field(), strings.Join(roles, ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}
