package model

import "fmt"

// ValidationError reports a schema check failure on an inbound or outbound
// entity. Inbound failures are poison-pill discards; outbound failures abort
// the entity before it reaches any sink.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation: %s %s", e.Entity, e.Field, e.Reason)
}

// validSymbol checks an underlying_id: non-empty uppercase ASCII.
func validSymbol(entity, sym string) error {
	if sym == "" {
		return &ValidationError{Entity: entity, Field: "underlying_id", Reason: "must not be empty"}
	}
	for i := 0; i < len(sym); i++ {
		c := sym[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '.' && c != '-' {
			return &ValidationError{Entity: entity, Field: "underlying_id", Reason: "must be uppercase ASCII"}
		}
	}
	return nil
}
