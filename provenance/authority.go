package provenance

import "fmt"

// RequireAuthority passes only when caller is the recorded authority of a
// record. Identity equality is the whole check.
func RequireAuthority(caller, authority string) error {
	if caller == "" {
		return ErrMissingCaller
	}
	if caller != authority {
		return fmt.Errorf("%w: caller %q is not the record authority", ErrUnauthorizedUpdate, caller)
	}
	return nil
}
