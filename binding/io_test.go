package binding

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileIORoundTrip(t *testing.T) {
	as := assert.New(t)
	path := filepath.Join(t.TempDir(), "data", "bindings.yaml")
	io := NewFileIO(path)

	records, err := io.Load()
	require.NoError(t, err)
	as.Empty(records, "missing file loads as empty table")

	require.NoError(t, io.Save(map[string]int64{"steve": 100, "alex": 200}))

	records, err = io.Load()
	require.NoError(t, err)
	as.Equal(map[string]int64{"steve": 100, "alex": 200}, records)

	// 整表覆盖：上次保存中缺席的键不再存在
	require.NoError(t, io.Save(map[string]int64{"steve": 100}))
	records, err = io.Load()
	require.NoError(t, err)
	as.Equal(map[string]int64{"steve": 100}, records)
}

func TestFileIOLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("players: [not a map"), 0o644))

	_, err := NewFileIO(path).Load()
	assert.Error(t, err)
}

func TestBuntIORoundTrip(t *testing.T) {
	as := assert.New(t)
	io, err := NewBuntIO(":memory:")
	require.NoError(t, err)
	defer io.Close()

	records, err := io.Load()
	require.NoError(t, err)
	as.Empty(records)

	require.NoError(t, io.Save(map[string]int64{"steve": 100, "alex": 200}))
	records, err = io.Load()
	require.NoError(t, err)
	as.Equal(map[string]int64{"steve": 100, "alex": 200}, records)

	require.NoError(t, io.Save(map[string]int64{"alex": 300}))
	records, err = io.Load()
	require.NoError(t, err)
	as.Equal(map[string]int64{"alex": 300}, records, "stale keys removed, values refreshed")
}

func TestCodeGeneratorNumber(t *testing.T) {
	as := assert.New(t)
	g := newCodeGenerator(4, "number")

	for i := 0; i < 50; i++ {
		code := g.generate()
		as.Len(code, 4)
		for _, r := range code {
			as.True(r >= '0' && r <= '9', "number code must be digits only: %q", code)
		}
	}
}

func TestCodeGeneratorAlnum(t *testing.T) {
	as := assert.New(t)
	g := newCodeGenerator(8, "alnum")

	for i := 0; i < 50; i++ {
		code := g.generate()
		as.Len(code, 8)
		for _, r := range code {
			as.True(strings.ContainsRune(alnumAlphabet, r), "alnum code outside alphabet: %q", code)
		}
	}
}

func TestCodeGeneratorDefaultLength(t *testing.T) {
	g := newCodeGenerator(0, "number")
	assert.Len(t, g.generate(), 6)
}
