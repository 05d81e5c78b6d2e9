package dto

import (
	"errors"
	"net/url"
	"reflect"
	"strings"

	"github.com/aarondl/null/v8"
	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/helpdesk-service/internal/storage"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Null wrappers validate their inner value; an unset wrapper counts as empty.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(null.String); ok && val.Valid {
			return val.String
		}
		return nil
	}, null.String{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(null.Time); ok && val.Valid {
			return val.Time
		}
		return nil
	}, null.Time{})
	_ = v.RegisterValidation("imageref", validImageRef)
	return v
}

// validImageRef accepts an absolute http(s) URL or a file served from the
// upload directory.
func validImageRef(fl validator.FieldLevel) bool {
	ref := fl.Field().String()
	if name, ok := strings.CutPrefix(ref, storage.PublicPrefix+"/"); ok {
		return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\\")
	}
	u, err := url.ParseRequestURI(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Validate checks struct tags and converts failures into a validation error
// whose details map each JSON field to the failed rule.
func Validate(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return apperrors.NewValidationError("invalid payload", details)
}
