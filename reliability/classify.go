package reliability

import (
	"errors"
	"net"

	dicomerrors "github.com/pacsway/dicomstack/errors"
	"github.com/pacsway/dicomstack/types"
)

// DefaultRetryable is a RetryPolicy.Retryable implementation grounded on
// this module's own typed errors: an association-level rejection
// (errors.AssociationError) or a DIMSE status response already carrying a
// permanent-failure class is not worth retrying unchanged, since retrying
// without altering the request would just reproduce the same rejection.
// Connection-level errors (timeouts, refused/reset connections) and
// transient DIMSE classes (warning, pending, out-of-resources) are
// retryable.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	var assocErr *dicomerrors.AssociationError
	if errors.As(err, &assocErr) {
		return false
	}

	var dimseErr *dicomerrors.DIMSEError
	if errors.As(err, &dimseErr) {
		return retryableStatus(dimseErr.Status)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true
}

// retryableStatus treats PS3.7 Annex C.1's Failure and Cancel classes as
// permanent (retrying an unaltered request reproduces the same rejection),
// except StatusOutOfResources, which names a transient condition on the
// peer rather than a problem with the request itself.
func retryableStatus(status uint16) bool {
	if status == types.StatusOutOfResources {
		return true
	}
	switch types.StatusClassOf(status) {
	case types.ClassFailure, types.ClassCancel:
		return false
	default:
		return true
	}
}
