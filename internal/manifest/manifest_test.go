package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesCoversBothLayers(t *testing.T) {
	files := Files()
	require.Len(t, files, 10)
	assert.Contains(t, files, "PARCELY_KN_DEF.shp")
	assert.Contains(t, files, "PARCELY_KN_DEF.prj")
	assert.Contains(t, files, "PARCELY_KN_P.dbf")
	assert.Contains(t, files, "PARCELY_KN_P.cpg")
	assert.Equal(t, "PARCELY_KN_P.shp", Parcel.Shapefile())
	assert.Equal(t, "PARCELY_KN_DEF.shp", Definition.Shapefile())
}

func TestMissing(t *testing.T) {
	dir := t.TempDir()
	for _, name := range Files() {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	exists := func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	assert.Empty(t, Missing(dir, exists))

	require.NoError(t, os.Remove(filepath.Join(dir, "PARCELY_KN_P.shx")))
	missing := Missing(dir, exists)
	assert.Equal(t, []string{"PARCELY_KN_P.shx"}, missing)
}
