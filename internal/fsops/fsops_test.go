package fsops

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
)

func TestMkdirCreatesParents(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, Mkdir(dir, 0o755))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, core.KindClient, core.KindOf(Mkdir("", 0)))
}

func TestMktempAndMkdtemp(t *testing.T) {
	base := t.TempDir()
	f, err := Mktemp("sample-", ".exe", base)
	require.NoError(t, err)
	assert.Equal(t, base, filepath.Dir(f))
	assert.True(t, strings.HasPrefix(filepath.Base(f), "sample-"))
	assert.True(t, strings.HasSuffix(f, ".exe"))
	_, err = os.Stat(f)
	require.NoError(t, err)

	d, err := Mkdtemp("work-", "", base)
	require.NoError(t, err)
	info, err := os.Stat(d)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = Mktemp("x", "", filepath.Join(base, "missing"))
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestStoreAndRetrieve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "payload.bin")
	data := []byte("malware sample bytes")
	sum := sha256.Sum256(data)

	require.NoError(t, Store(path, bytes.NewReader(data), hex.EncodeToString(sum[:])))

	f, info, err := Retrieve(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(len(data)), info.Size())

	got, err := Checksum(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestStoreChecksumMismatchRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.bin")
	err := Store(path, strings.NewReader("abc"), "deadbeef")
	assert.Equal(t, core.KindClient, core.KindOf(err))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRetrieveErrors(t *testing.T) {
	_, _, err := Retrieve(filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
	_, _, err = Retrieve(t.TempDir())
	assert.Equal(t, core.KindClient, core.KindOf(err))
	_, _, err = Retrieve("")
	assert.Equal(t, core.KindClient, core.KindOf(err))
}

func TestRemove(t *testing.T) {
	base := t.TempDir()
	tree := filepath.Join(base, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "sub"), 0o755))
	ro := filepath.Join(tree, "sub", "ro.txt")
	require.NoError(t, os.WriteFile(ro, []byte("x"), 0o444))

	err := Remove(tree, false, false)
	require.Error(t, err, "non-empty directory needs recursive")

	require.NoError(t, Remove(tree, true, true))
	_, err = os.Stat(tree)
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, core.KindNotFound, core.KindOf(Remove(tree, true, false)))
	assert.Equal(t, core.KindClient, core.KindOf(Remove("", false, false)))

	single := filepath.Join(base, "one.txt")
	require.NoError(t, os.WriteFile(single, []byte("y"), 0o400))
	require.NoError(t, Remove(single, false, true))
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out")
	archive := buildZip(t, map[string]string{
		"analyzer/run.py":      "print('hi')",
		"analyzer/lib/util.py": "x = 1",
		"analyzer/empty/":      "",
	})
	require.NoError(t, Extract(bytes.NewReader(archive), int64(len(archive)), dest))

	b, err := os.ReadFile(filepath.Join(dest, "analyzer", "lib", "util.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1", string(b))
	info, err := os.Stat(filepath.Join(dest, "analyzer", "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "out")
	archive := buildZip(t, map[string]string{"../evil.txt": "pwned"})
	err := Extract(bytes.NewReader(archive), int64(len(archive)), dest)
	require.Error(t, err)
	assert.Equal(t, core.KindClient, core.KindOf(err))
	_, statErr := os.Stat(filepath.Join(base, "evil.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractRejectsGarbage(t *testing.T) {
	data := []byte("not a zip")
	err := Extract(bytes.NewReader(data), int64(len(data)), t.TempDir())
	assert.Equal(t, core.KindClient, core.KindOf(err))
}
