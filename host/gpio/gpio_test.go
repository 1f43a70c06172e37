package gpio

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

func TestSysfsLineExportsAndDrives(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/sys/class/gpio", 0o755))

	// MemMapFs has no kernel to create the pin directory on export
	require.NoError(t, fs.MkdirAll("/sys/class/gpio/gpio13", 0o755))

	line, err := OpenSysfs(fs, "", 13)
	require.NoError(t, err)
	assert.Equal(t, 13, line.Pin())
	assert.Equal(t, "out", readFile(t, fs, "/sys/class/gpio/gpio13/direction"))

	require.NoError(t, line.Set(true))
	assert.Equal(t, "1", readFile(t, fs, "/sys/class/gpio/gpio13/value"))
	require.NoError(t, line.Set(false))
	assert.Equal(t, "0", readFile(t, fs, "/sys/class/gpio/gpio13/value"))
}

func TestSysfsLineWritesExport(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/gpio", 0o755))

	_, err := OpenSysfs(fs, "/gpio", 7)
	require.NoError(t, err)
	assert.Equal(t, "7", readFile(t, fs, "/gpio/export"))
}

func TestSysfsLineReadOnlyFs(t *testing.T) {
	t.Parallel()

	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := OpenSysfs(fs, "", 4)
	assert.ErrorContains(t, err, "gpio4")

	_, err = OpenSysfs(afero.NewMemMapFs(), "", -1)
	assert.Error(t, err)
}

func TestLineAdapters(t *testing.T) {
	t.Parallel()

	var levels []bool
	rec := LineFunc(func(high bool) error {
		levels = append(levels, high)
		return nil
	})

	require.NoError(t, rec.Set(true))
	require.NoError(t, Inverted(rec).Set(true))
	assert.Equal(t, []bool{true, false}, levels)

	assert.NoError(t, NopLine{}.Set(true))

	failing := LineFunc(func(bool) error { return errors.New("boom") })
	assert.Error(t, Inverted(failing).Set(false))
}
