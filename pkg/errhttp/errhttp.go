// Package errhttp maps domain sentinel errors to HTTP status codes.
// Add a case to mapErrorToStatus for each new domain sentinel error.
package errhttp

import (
	"errors"
	"net/http"

	"github.com/ghuser/txbus/bus"
	"github.com/ghuser/txbus/pkg/httpx"
	"github.com/ghuser/txbus/repository"
	"github.com/ghuser/txbus/uow"
)

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is()/errors.As() so wrapped sentinel errors are matched correctly.
// Defaults to 500 Internal Server Error for unrecognized errors.
func WriteError(w http.ResponseWriter, err error) {
	httpx.JSONError(w, mapErrorToStatus(err), err.Error())
}

func mapErrorToStatus(err error) int {
	var repoErr *repository.RepoError
	if errors.As(err, &repoErr) {
		switch repoErr.Kind {
		case repository.ErrNotFound:
			return http.StatusNotFound // 404
		case repository.ErrConflict:
			return http.StatusConflict // 409
		default:
			return http.StatusInternalServerError // 500
		}
	}

	var missingDep *bus.MissingDependencyError
	var configErr *bus.ConfigurationError
	var txErr *uow.TransactionError
	switch {
	case errors.As(err, &missingDep), errors.As(err, &configErr):
		return http.StatusUnprocessableEntity // 422: the request names a handler/dependency that isn't wired
	case errors.As(err, &txErr):
		return http.StatusConflict // 409: transaction already concluded or left open
	default:
		return http.StatusInternalServerError // 500
	}
}
