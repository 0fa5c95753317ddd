package langdispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/semindex/internal/types"
)

func TestLanguageForPath(t *testing.T) {
	tests := []struct {
		path string
		want types.Language
	}{
		{"main.go", types.LangGo},
		{"script.py", types.LangPython},
		{"app.js", types.LangJavaScript},
		{"component.jsx", types.LangJavaScript},
		{"module.mjs", types.LangJavaScript},
		{"types.ts", types.LangTypeScript},
		{"component.tsx", types.LangTypeScript},
		{"Main.java", types.LangJava},
		{"lib.rs", types.LangRust},
		{"index.php", types.LangPHP},
		{"Program.cs", types.LangCSharp},
		{"engine.cpp", types.LangCPP},
		{"header.hpp", types.LangCPP},
		{"build.zig", types.LangZig},
		{"README.md", types.LangUnknown},
		{"noext", types.LangUnknown},
		{"UPPER.GO", types.LangGo},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.want, LanguageForPath(tc.path))
		})
	}
}

func TestDispatcher_GetUnknownLanguageErrors(t *testing.T) {
	d := New()
	_, _, err := d.Get(types.LangUnknown)
	assert.Error(t, err)
}

func TestDispatcher_GetCachesEntryAcrossCalls(t *testing.T) {
	d := New()
	_, _, err1 := d.Get(types.LangUnknown)
	_, _, err2 := d.Get(types.LangUnknown)
	assert.Equal(t, err1.Error(), err2.Error())
}
