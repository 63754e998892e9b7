package binder

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	dateRE = regexp.MustCompile(`^\d{4}-(0[0-9]|1[0-2])-(0[0-9]|1[0-9]|2[0-9]|3[0-1])$`)
)

// dateValidator accepts YYYY-MM-DD or the empty string. Pair it with `ne=`
// when the value is required.
func dateValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return dateRE.MatchString(value)
}

// downloadURLValidator accepts the forms a snatch can point at: a magnet
// link, an http(s) URL, or an absolute path to a .torrent or .nzb file.
func downloadURLValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	switch {
	case strings.HasPrefix(value, "magnet:?"):
		return true
	case filepath.IsAbs(value):
		return true
	}
	u, err := url.Parse(value)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
