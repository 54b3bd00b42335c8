package form

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var (
	ErrLastItem    = errors.New("you must have at least one item in the invoice")
	ErrUnknownItem = errors.New("no such item")
	ErrNoItems     = errors.New("please add at least one item")
)

type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string { return e.Field + " " + e.Message }

// ValidationError collects every problem found in one pass over the form.
// It never reaches the network.
type ValidationError struct {
	Fields []FieldError
	cause  error
}

func (e *ValidationError) Error() string {
	if e.cause != nil && len(e.Fields) == 0 {
		return e.cause.Error()
	}
	msgs := lo.Map(e.Fields, func(f FieldError, _ int) string { return f.String() })
	if e.cause != nil {
		msgs = append([]string{e.cause.Error()}, msgs...)
	}
	return "invalid invoice: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return e.cause }

func (e *ValidationError) add(field, message string) {
	if e.Has(field) {
		return
	}
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Has reports whether field already carries an error.
func (e *ValidationError) Has(field string) bool {
	return lo.ContainsBy(e.Fields, func(f FieldError) bool { return f.Field == field })
}

func (e *ValidationError) empty() bool { return e.cause == nil && len(e.Fields) == 0 }

func (e *ValidationError) orNil() error {
	if e.empty() {
		return nil
	}
	return e
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (e *ValidationError) addValidator(err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		e.add("request", err.Error())
		return
	}
	for _, fe := range verrs {
		e.add(fieldPath(fe.Namespace()), describe(fe))
	}
}

// fieldPath drops the struct name validator puts in front of the json path.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "len":
		return fmt.Sprintf("must have %s characters", fe.Param())
	case "alpha":
		return "must contain letters only"
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
