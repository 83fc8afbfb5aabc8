package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestError_Format(t *testing.T) {
	cause := fmt.Errorf("open /cache/ab12.json: %w", fs.ErrPermission)

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "unsupported",
			err:  Unsupported("pypi", "search"),
			want: "UNSUPPORTED: pypi does not support search",
		},
		{
			name: "storage with cause",
			err:  Wrap(ErrCodeStorage, cause, "save cache record %s", "ab12"),
			want: "STORAGE_ERROR: save cache record ab12: open /cache/ab12.json: permission denied",
		},
		{
			name: "parse without cause",
			err:  New(ErrCodeParse, "no valid entries in crate index (%d lines)", 3),
			want: "PARSE_ERROR: no valid entries in crate index (3 lines)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := fmt.Errorf("rename .tmp-1 ab12.json: %w", fs.ErrNotExist)
	err := Wrap(ErrCodeStorage, cause, "save cache record")

	if err.Code != ErrCodeStorage || err.Cause != cause {
		t.Errorf("Wrap() = %+v", err)
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap() does not return the cause")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("errors.Is does not see through to fs.ErrNotExist")
	}
}

func TestIs(t *testing.T) {
	parse := New(ErrCodeParse, "decode crates.io search response")

	tests := []struct {
		name string
		err  error
		code Code
		want bool
	}{
		{"direct", parse, ErrCodeParse, true},
		{"other code", parse, ErrCodeStorage, false},
		{"fmt wrapped", fmt.Errorf("crates: %w", parse), ErrCodeParse, true},
		{"outermost wins", Wrap(ErrCodeNetwork, parse, "fetch index"), ErrCodeNetwork, true},
		{"inner code hidden", Wrap(ErrCodeNetwork, parse, "fetch index"), ErrCodeParse, false},
		{"plain error", errors.New("unexpected EOF"), ErrCodeParse, false},
		{"nil", nil, ErrCodeParse, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is(%v, %s) = %v, want %v", tt.err, tt.code, got, tt.want)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"unsupported", Unsupported("npm", "cache updates"), ErrCodeUnsupported},
		{"storage via fmt", fmt.Errorf("sweep: %w", New(ErrCodeStorage, "read cache directory")), ErrCodeStorage},
		{"plain", fs.ErrPermission, ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"coded", Wrap(ErrCodeParse, errors.New("invalid character '<'"), "decode pypi response"), "decode pypi response"},
		{"plain", errors.New("connection reset by peer"), "connection reset by peer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnsupported(t *testing.T) {
	err := Unsupported("npm", "package lookups")

	if err.Code != ErrCodeUnsupported {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnsupported)
	}
	if err.Message != "npm does not support package lookups" {
		t.Errorf("Message = %q", err.Message)
	}
	if !IsUnsupported(err) || !IsUnsupported(fmt.Errorf("registry npm: %w", err)) {
		t.Error("IsUnsupported() = false, want true")
	}

	if IsUnsupported(Wrap(ErrCodeInternal, err, "outer")) {
		t.Error("IsUnsupported should match the outermost coded error")
	}
	if IsUnsupported(New(ErrCodeStorage, "caching is disabled")) {
		t.Error("IsUnsupported() = true for STORAGE_ERROR")
	}
}
