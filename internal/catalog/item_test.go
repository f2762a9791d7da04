package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemValidate(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want error
	}{
		{"file", Item{ID: "1", Type: KindFile, Name: "n", Filename: "f.exe"}, nil},
		{"link", Item{ID: "1", Type: KindLink, Name: "n", URL: "https://example.com"}, nil},
		{"missing id", Item{Type: KindLink, Name: "n", URL: "https://example.com"}, ErrMissingID},
		{"blank name", Item{ID: "1", Type: KindLink, Name: "  ", URL: "https://example.com"}, ErrMissingName},
		{"file without filename", Item{ID: "1", Type: KindFile, Name: "n"}, ErrFileFields},
		{"file with url", Item{ID: "1", Type: KindFile, Name: "n", Filename: "f", URL: "https://example.com"}, ErrFileFields},
		{"link without url", Item{ID: "1", Type: KindLink, Name: "n"}, ErrLinkFields},
		{"link with filename", Item{ID: "1", Type: KindLink, Name: "n", URL: "https://x", Filename: "f"}, ErrLinkFields},
		{"unknown type", Item{ID: "1", Type: "folder", Name: "n"}, ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.item.Validate(), tt.want)
		})
	}
}

func TestDownloadName(t *testing.T) {
	it := Item{Filename: "123-a_b.exe"}
	assert.Equal(t, "123-a_b.exe", it.DownloadName())
	it.OriginalName = "a b.exe"
	assert.Equal(t, "a b.exe", it.DownloadName())
}
