package authz

import (
	"errors"
	"fmt"
)

var (
	ErrRuleMisconfigured  = errors.New("access rule misconfigured")
	ErrResourceIDNotFound = errors.New("resource id not found")
	ErrForbidden          = errors.New("forbidden")
)

// DeniedError reports an ownership denial and whether it covered more than
// one resource.
type DeniedError struct {
	Resource string
	Multiple bool
}

func (e *DeniedError) Error() string {
	if e.Multiple {
		return "You do not have permission to access one or more resources"
	}
	return "You do not have permission to access this resource"
}

func (e *DeniedError) Unwrap() error { return ErrForbidden }

func missingID(rule Rule) error {
	return fmt.Errorf("%w in %s (looking for %q)", ErrResourceIDNotFound, rule.From, rule.param())
}
