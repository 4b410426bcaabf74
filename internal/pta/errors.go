package pta

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeclaringAllocationType is wrapped by the ContractViolationError
	// returned when an object lacks its declaring allocation type.
	ErrNoDeclaringAllocationType = errors.New("object has no declaring allocation type")

	// ErrReceiverConflict is returned when a receiver name is claimed by two
	// methods, or by a method after the variable was interned as a local.
	ErrReceiverConflict = errors.New("conflicting receiver variable")
)

// MalformedKeyError reports a fact field that does not have the textual
// shape of the entity kind it is interned as. It aborts construction.
type MalformedKeyError struct {
	Kind   Kind
	Key    string
	Reason string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed %s key %q: %s", e.Kind, e.Key, e.Reason)
}

// ContractViolationError reports an attribute that construction guarantees
// but that is missing. It signals a logic error, not sparse input.
type ContractViolationError struct {
	Entity Element
	Err    error
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("contract violation on %s %s: %v", e.Entity.Kind(), e.Entity.Key(), e.Err)
}

func (e *ContractViolationError) Unwrap() error { return e.Err }
