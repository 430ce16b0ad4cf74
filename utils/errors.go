package utils

import (
	"reflect"

	"github.com/pkg/errors"
)

func typeName[T any]() string {
	var zero T
	if t := reflect.TypeOf(&zero).Elem(); t != nil {
		return t.String()
	}
	return "<unknown>"
}

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError[ExpectedT any](actual interface{}) error {
	return errors.Errorf("expected %s but got %T", typeName[ExpectedT](), actual)
}

// DependencyNotFoundError is used when a named dependency is missing.
func DependencyNotFoundError(name string) error {
	return errors.Errorf("dependency %q not found", name)
}

// DependencyTypeError is used when a dependency exists but has the wrong type.
func DependencyTypeError[T any](name string, actual interface{}) error {
	return errors.Errorf("dependency %q should be an implementation of %s but it was a %T", name, typeName[T](), actual)
}
