package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("not found")

var (
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	ErrDiscountNotFound = fmt.Errorf("discount %w", ErrNotFound)
	ErrSaleNotFound     = fmt.Errorf("sale %w", ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("category %w", ErrNotFound)
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidQuantity  = errors.New("quantity must be greater than zero")
	ErrInvalidUnitPrice = errors.New("unit price must be greater than zero")
	ErrInvalidDiscount  = errors.New("invalid discount amount")
	ErrDiscountRejected = errors.New("discount not applicable")
	ErrAlreadyCancelled = errors.New("sale already cancelled")
	ErrOverReturn       = errors.New("return quantity exceeds remaining quantity")
	ErrInvalidItem      = errors.New("item does not belong to sale")
	ErrOverpayment      = errors.New("payment exceeds outstanding balance")
	ErrSaleNotAmendable = errors.New("sale can no longer be amended")
	ErrCategoryCycle    = errors.New("category parent would create a cycle")
	ErrForbidden        = errors.New("forbidden")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	cause   error
}

// ValidationError collects every field problem found in one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(field string, cause error, message string) {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message, cause: cause})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	causes := make([]error, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.cause != nil {
			causes = append(causes, f.cause)
		}
	}
	return causes
}

// Err returns nil when nothing was added.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// OnlyNotFound reports whether every field problem is a missing reference.
func (e *ValidationError) OnlyNotFound() bool {
	if len(e.Fields) == 0 {
		return false
	}
	for _, f := range e.Fields {
		if f.cause == nil || !errors.Is(f.cause, ErrNotFound) {
			return false
		}
	}
	return true
}

func Invalid(field string, cause error, message string) error {
	verr := &ValidationError{}
	verr.Add(field, cause, message)
	return verr
}

// ConflictError ties a state conflict to the request field that ran into it.
type ConflictError struct {
	Field string
	Err   error
}

func (e *ConflictError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func Conflict(field string, err error) error {
	return &ConflictError{Field: field, Err: err}
}
