package identity

import (
	"errors"
	"strings"

	"github.com/lwb-io/authkit/core"
)

// classifyRegionBlock inspects the whole unwrap chain for the markers an
// identity provider emits when it refuses a region: a 403 Forbidden from the
// provider's front door, or an assertion-verification permission denial.
// Matching errors come back as RegionBlockedError so the UI can steer the
// user to password auth instead of retrying.
func classifyRegionBlock(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := strings.ToLower(e.Error())
		if strings.Contains(msg, "403") && strings.Contains(msg, "forbidden") {
			return &core.RegionBlockedError{Cause: err}
		}
		if strings.Contains(msg, "verifyassertion") && strings.Contains(msg, "permission") {
			return &core.RegionBlockedError{Cause: err}
		}
	}
	return err
}
