package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToRelative(t *testing.T) {
	tests := []struct {
		name    string
		absPath string
		rootDir string
		want    string
	}{
		{"inside root", "/proj/src/main.go", "/proj", "src/main.go"},
		{"outside root falls back to cleaned absolute", "/other/file.go", "/proj", "/other/file.go"},
		{"already relative passes through", "src/main.go", "/proj", "src/main.go"},
		{"empty absPath", "", "/proj", ""},
		{"empty rootDir", "/proj/main.go", "", "/proj/main.go"},
		{"root itself", "/proj", "/proj", "."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ToRelative(tc.absPath, tc.rootDir))
		})
	}
}

func TestToAbsolute(t *testing.T) {
	tests := []struct {
		name    string
		relPath string
		rootDir string
		want    string
	}{
		{"joins relative to root", "src/main.go", "/proj", "/proj/src/main.go"},
		{"already absolute passes through cleaned", "/other/file.go", "/proj", "/other/file.go"},
		{"cleans dot segments", "./src/../src/main.go", "/proj", "/proj/src/main.go"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ToAbsolute(tc.relPath, tc.rootDir))
		})
	}
}

func TestToRelative_RoundTripsWithToAbsolute(t *testing.T) {
	root := "/proj"
	abs := "/proj/internal/store/store.go"
	rel := ToRelative(abs, root)
	assert.Equal(t, abs, ToAbsolute(rel, root))
}
