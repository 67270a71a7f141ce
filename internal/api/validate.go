package api

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/zulandar/switchboard/internal/models"
)

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// registerValidators installs the custom tags on gin's validator engine and
// makes it report json field names.
func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		v.RegisterTagNameFunc(jsonFieldName)
		validatorsErr = v.RegisterValidation("presence", func(fl validator.FieldLevel) bool {
			return models.ValidPresence(fl.Field().String())
		})
	})
	return validatorsErr
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// formatValidationErrors turns validator errors into one readable sentence.
func formatValidationErrors(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", e.Field(), e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param()))
		case "presence":
			msgs = append(msgs, fmt.Sprintf("%s must be online, offline or busy", e.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", e.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}

// bindJSON decodes and validates the request body into req. An empty body
// is fine for requests whose fields are all optional; validation still runs.
func bindJSON(c *gin.Context, req any) error {
	err := c.ShouldBindJSON(req)
	if errors.Is(err, io.EOF) {
		err = binding.Validator.ValidateStruct(req)
	}
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	return fmt.Errorf("%w: malformed JSON body: %v", errBadRequest, err)
}
