package handlers

import (
	"net/http"
	"strconv"

	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/middleware"
)

// caller returns the authenticated user id and role set by the auth middleware.
func caller(r *http.Request) (string, string, error) {
	uid, ok := middleware.UserID(r.Context())
	if !ok {
		return "", "", errors.Unauthorizedf("not authenticated")
	}
	role, _ := middleware.Role(r.Context())
	return uid, role, nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.BadRequestf("%s must be a non-negative integer", name)
	}
	return n, nil
}
