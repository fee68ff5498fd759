package runtime

import (
	"net/http"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// StatusCode maps a runtime error to the HTTP status the Engine API would
// have answered with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errdefs.IsInvalidParameter(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errdefs.IsForbidden(err):
		return http.StatusForbidden
	case errdefs.IsConflict(err):
		return http.StatusConflict
	case errdefs.IsUnavailable(err), client.IsErrConnectionFailed(err):
		return http.StatusServiceUnavailable
	case errdefs.IsNotImplemented(err):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
