package httpx

import (
	"net/http"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/baharkarakas/pixelmart/internal/models"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errors.BadRequestf("x"), http.StatusBadRequest, "invalid_request"},
		{errors.Unauthorizedf("x"), http.StatusUnauthorized, "unauthorized"},
		{errors.Forbiddenf("x"), http.StatusForbidden, "not_allowed"},
		{errors.NotFoundf("x"), http.StatusNotFound, "not_found"},
		{errors.AlreadyExistsf("x"), http.StatusConflict, "conflict"},
		{errors.NotValidf("x"), http.StatusConflict, "not_valid"},
		{errors.WithType(errors.New("x"), models.ErrTransferOutcomeUnknown), http.StatusConflict, "needs_review"},
		{errors.Annotate(errors.NotFoundf("item"), "loading cart"), http.StatusNotFound, "not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code := Status(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
