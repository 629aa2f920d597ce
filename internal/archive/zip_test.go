package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild_PackagesRegularFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.jpg"), bytes.Repeat([]byte{0xAB}, 2000), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3.png"), bytes.Repeat([]byte{0xCD}, 1500), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o700))

	var buf bytes.Buffer
	count, err := Build(dir, &buf)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	require.Equal(t, "1.jpg", zr.File[0].Name)
	require.Equal(t, "3.png", zr.File[1].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, bytes.Repeat([]byte{0xAB}, 2000), data)
}

func TestBuild_EmptyDirYieldsValidEmptyArchive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	count, err := Build(t.TempDir(), &buf)
	require.NoError(t, err)
	require.Zero(t, count)
	require.NotZero(t, buf.Len())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Empty(t, zr.File)
}

func TestBuild_MissingDirIsBuildError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := Build(filepath.Join(t.TempDir(), "nope"), &buf)
	require.Error(t, err)

	var be *BuildError
	require.ErrorAs(t, err, &be)
}
