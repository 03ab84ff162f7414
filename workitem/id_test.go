package workitem

import (
	"errors"
	"testing"
)

func TestExtractID(t *testing.T) {
	testCases := []struct {
		name string
		url  string
		want int
	}{
		{"Cloud relation", "https://dev.azure.com/contoso/_apis/wit/workItems/42", 42},
		{"Legacy relation", "https://contoso.visualstudio.com/_apis/wit/workItems/7", 7},
		{"Bare id", "1234", 1234},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractID(tc.url)
			if err != nil {
				t.Fatalf("ExtractID(%q) failed: %v", tc.url, err)
			}
			if got != tc.want {
				t.Errorf("ExtractID(%q) = %d, want %d", tc.url, got, tc.want)
			}
		})
	}
}

func TestExtractIDMalformed(t *testing.T) {
	testCases := []struct {
		name string
		url  string
	}{
		{"Empty", ""},
		{"Trailing slash", "https://dev.azure.com/contoso/_apis/wit/workItems/42/"},
		{"Non-numeric", "https://dev.azure.com/contoso/_apis/wit/workItems/abc"},
		{"Zero", "https://dev.azure.com/contoso/_apis/wit/workItems/0"},
		{"Negative", "https://dev.azure.com/contoso/_apis/wit/workItems/-3"},
		{"Overflow", "https://dev.azure.com/contoso/_apis/wit/workItems/99999999999999999999"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExtractID(tc.url)
			if err == nil {
				t.Fatalf("ExtractID(%q) should return error", tc.url)
			}
			if !errors.Is(err, ErrMalformedURL) {
				t.Errorf("ExtractID(%q) error = %v, want ErrMalformedURL", tc.url, err)
			}
		})
	}
}
