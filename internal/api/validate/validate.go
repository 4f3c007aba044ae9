package validate

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type ErrField struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

type Errs []ErrField

func (e Errs) Error() string { // error interface
	var b strings.Builder
	for i, ef := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ef.Field + ": " + ef.Msg)
	}
	return b.String()
}

// Is makes field errors match errors.BadRequest.
func (e Errs) Is(target error) bool { return target == errors.BadRequest }

// Add appends non-nil field errors.
func (e *Errs) Add(fs ...*ErrField) {
	for _, f := range fs {
		if f != nil {
			*e = append(*e, *f)
		}
	}
}

// Err returns e as an error, or nil when empty.
func (e Errs) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Helpers
func Required(field, value string) *ErrField {
	if strings.TrimSpace(value) == "" {
		return &ErrField{Field: field, Msg: "required"}
	}
	return nil
}

func MinInt(field string, v, min int64) *ErrField {
	if v < min {
		return &ErrField{Field: field, Msg: "must be >= " + strconv.FormatInt(min, 10)}
	}
	return nil
}

func NonEmpty(field string, n int) *ErrField {
	if n == 0 {
		return &ErrField{Field: field, Msg: "must not be empty"}
	}
	return nil
}

// Unique reports the first repeated value in values.
func Unique(field string, values []string) *ErrField {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return &ErrField{Field: field, Msg: "duplicate value " + strconv.Quote(v)}
		}
		seen[v] = struct{}{}
	}
	return nil
}

// AbsoluteURL requires an http or https URL with a host.
func AbsoluteURL(field, value string) *ErrField {
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ErrField{Field: field, Msg: "must be an absolute http(s) URL"}
	}
	return nil
}
