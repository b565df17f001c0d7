// Package errors provides examples of structured error handling in shopsync.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ultimatecoffee/shopsync/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeTransientFetch, "unexpected status 503").
		WithDetail("endpoint", "orders.json").
		WithDetail("status", 503)

	fmt.Println(err.Error())

	// Output:
	// transient_fetch: unexpected status 503
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeMalformedResponse, "failed to decode page").
		WithDetail("endpoint", "customers.json")

	if errors.IsType(err, errors.ErrorTypeMalformedResponse) {
		fmt.Println("malformed page")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("cause preserved")
	}

	// Output:
	// malformed page
	// cause preserved
}

// ExampleIsRetryable shows which fetch failures are worth another attempt.
func ExampleIsRetryable() {
	transient := errors.New(errors.ErrorTypeTransientFetch, "429 too many requests")
	malformed := errors.New(errors.ErrorTypeMalformedResponse, "body is not JSON")
	auth := errors.New(errors.ErrorTypeAuthentication, "401 unauthorized")

	fmt.Println(errors.IsRetryable(transient))
	fmt.Println(errors.IsRetryable(malformed))
	fmt.Println(errors.IsRetryable(auth))
	fmt.Println(errors.IsRetryable(io.EOF))

	// Output:
	// true
	// false
	// false
	// false
}
