package binder

import (
	"reflect"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFieldError struct {
	tag   string
	field string
	param string
	kind  reflect.Kind
}

func (e *mockFieldError) Error() string           { return "Mock Field Error" }
func (e *mockFieldError) Tag() string             { return e.tag }
func (e *mockFieldError) ActualTag() string       { return e.tag }
func (e *mockFieldError) Namespace() string       { return "" }
func (e *mockFieldError) StructNamespace() string { return "" }
func (e *mockFieldError) Field() string           { return e.field }
func (e *mockFieldError) StructField() string     { return "" }
func (e *mockFieldError) Value() interface{}      { return "" }
func (e *mockFieldError) Param() string           { return e.param }
func (e *mockFieldError) Kind() reflect.Kind {
	if e.kind == 0 {
		return reflect.String
	}
	return e.kind
}
func (e *mockFieldError) Type() reflect.Type               { return reflect.TypeOf("") }
func (e *mockFieldError) Translate(_ ut.Translator) string { return "" }

func TestFormatValidationError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		tag   string
		param string
		kind  reflect.Kind
		msg   string
	}{
		{date, "", 0, `"multi_word" should be in the format of YYYY-MM-DD`},
		{urlTag, "", 0, `"multi_word" must be a URL`},
		{downloadURL, "", 0, `"multi_word" must be a magnet link, an http(s) URL or an absolute path`},
		// String min/max
		{mx, "20", reflect.String, `"multi_word" length must be less than or equal to 20 characters`},
		{mx, "1", reflect.String, `"multi_word" length must be less than or equal to 1 character`},
		{mn, "20", reflect.String, `"multi_word" length must be greater than or equal to 20 characters`},
		{mn, "1", reflect.String, `"multi_word" length must be greater than or equal to 1 character`},
		// Numeric min/max
		{mx, "50", reflect.Int, `"multi_word" must be less than or equal to 50`},
		{mx, "100", reflect.Int64, `"multi_word" must be less than or equal to 100`},
		{mx, "1", reflect.Uint, `"multi_word" must be less than or equal to 1`},
		{mn, "1", reflect.Int, `"multi_word" must be greater than or equal to 1`},
		{mn, "0", reflect.Float64, `"multi_word" must be greater than or equal to 0`},
		// Slice min/max
		{mx, "5", reflect.Slice, `"multi_word" length must be less than or equal to 5 elements`},
		{mx, "1", reflect.Slice, `"multi_word" length must be less than or equal to 1 element`},
		{mn, "2", reflect.Slice, `"multi_word" length must be greater than or equal to 2 elements`},
		{mn, "1", reflect.Slice, `"multi_word" length must be greater than or equal to 1 element`},
		// Other
		{oneof, "one two three", 0, `"multi_word" must be one of the following: "one", "two", "three"`},
		{required, "", 0, `"multi_word" is required`},
		{"alphanum", "", 0, `"multi_word" fails alphanum`},
		{"required_with", "NtfyURL", 0, `"multi_word" fails required_with=NtfyURL`},
	}

	for _, tt := range cases {
		err := mockFieldError{tag: tt.tag, field: "multi_word", param: tt.param, kind: tt.kind}
		msg := formatValidationError(&err)
		assert.Equal(t, tt.msg, msg)
	}
}

// snatchPayload carries the validation tags of a snatch notification.
type snatchPayload struct {
	ItemID      string `json:"item_id" validate:"required"`
	MediaKind   string `json:"media_kind" validate:"required,oneof=ebook audiobook magazine"`
	Mode        string `json:"mode" validate:"omitempty,oneof=torrent magnet torznab nzb direct"`
	DownloadURL string `json:"download_url" validate:"required,download_url"`
}

func TestFormatValidationError_SnatchPayload(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	cases := []struct {
		name    string
		payload snatchPayload
		msg     string
	}{
		{"missing url", snatchPayload{ItemID: "42", MediaKind: "ebook"}, `"download_url" is required`},
		{"relative path", snatchPayload{ItemID: "42", MediaKind: "ebook", DownloadURL: "incoming/book.nzb"}, `"download_url" must be a magnet link, an http(s) URL or an absolute path`},
		{"unknown kind", snatchPayload{ItemID: "42", MediaKind: "comic", DownloadURL: "/watch/book.nzb"}, `"media_kind" must be one of the following: "ebook", "audiobook", "magazine"`},
		{"unknown mode", snatchPayload{ItemID: "42", MediaKind: "ebook", Mode: "usenet", DownloadURL: "magnet:?xt=urn:btih:abc"}, `"mode" must be one of the following: "torrent", "magnet", "torznab", "nzb", "direct"`},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(tt2 *testing.T) {
			err := b.validate.Struct(tt.payload)
			var errs validator.ValidationErrors
			require.ErrorAs(tt2, err, &errs)
			assert.Equal(tt2, tt.msg, formatValidationError(errs[0]))
		})
	}

	assert.NoError(t, b.validate.Struct(snatchPayload{ItemID: "42", MediaKind: "audiobook", Mode: "torrent", DownloadURL: "https://tracker.example/t/1.torrent"}))
}
