package loader

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-rag/internal/domain"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func zipBytes(t *testing.T, files map[string]string) []byte {
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

const documentXMLFixture = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Title line</w:t></w:r></w:p>
<w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
</w:body>
</w:document>`

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("a/b/car.PNG"))
	assert.True(t, IsImage("x.webp"))
	assert.False(t, IsImage("doc.pdf"))
	assert.False(t, IsImage("noext"))
}

func TestLoad_Text(t *testing.T) {
	path := writeFile(t, "a.txt", []byte("\xef\xbb\xbfhello\nworld"))
	doc, err := New(nil).Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Path)
	assert.Equal(t, []string{"hello\nworld"}, doc.Pages)
}

func TestLoad_CSVOnePagePerRow(t *testing.T) {
	path := writeFile(t, "a.csv", []byte("name, age\nalice,30\nbob\n"))
	doc, err := New(nil).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"name: alice\nage: 30", "name: bob\nage: "}, doc.Pages)
}

func TestLoad_Docx(t *testing.T) {
	path := writeFile(t, "a.docx", zipBytes(t, map[string]string{"word/document.xml": documentXMLFixture}))
	doc, err := New(nil).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Title line\nSecond paragraph"}, doc.Pages)
}

func TestLoad_ZipSkipsUnsupportedMembers(t *testing.T) {
	log, hook := test.NewNullLogger()
	path := writeFile(t, "bundle.zip", zipBytes(t, map[string]string{
		"b.txt":     "second",
		"a.txt":     "first",
		"bin.exe":   "MZ",
		"table.csv": "k\nv",
	}))

	doc, err := New(log).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "k: v"}, doc.Pages)

	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "bin.exe", hook.LastEntry().Data["member"])
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "a.exe", []byte("MZ"))
	_, err := New(nil).Load(path)

	var ufe *domain.UnsupportedFormatError
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, ".exe", ufe.Ext)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := New(nil).Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_CorruptPDF(t *testing.T) {
	path := writeFile(t, "a.pdf", []byte("not a pdf"))
	_, err := New(nil).Load(path)
	assert.Error(t, err)
}

func TestLoad_ZipSkipsOversizedMembers(t *testing.T) {
	log, hook := test.NewNullLogger()
	path := writeFile(t, "bundle.zip", zipBytes(t, map[string]string{
		"a.txt":   "first",
		"big.txt": strings.Repeat("x", 100),
	}))

	doc, err := New(log, WithMaxMemberBytes(50)).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, doc.Pages)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "big.txt", hook.LastEntry().Data["member"])
}

func TestReadMember_IgnoresUnderstatedHeaderSize(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	payload := bytes.Repeat([]byte("y"), 100)
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "bomb.txt",
		Method:             zip.Store,
		CompressedSize64:   uint64(len(payload)),
		UncompressedSize64: 5,
	})
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	_, err = readMember(zr.File[0], 50)
	assert.ErrorIs(t, err, ErrMemberTooLarge)
}
