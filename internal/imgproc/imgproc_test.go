package imgproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prizebot/internal/common"
)

// writeTestImage сохраняет во временный каталог картинку с простым узором.
func writeTestImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, A: 255})
	// Контрастный квадрат в углу, чтобы скрытие было заметно
	for y := 0; y < h/4; y++ {
		for x := 0; x < w/4; x++ {
			img.Set(x, y, color.NRGBA{B: 255, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestGrid(t *testing.T) {
	cases := []struct {
		n, cols, rows int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{2, 1, 2},
		{3, 1, 3},
		{4, 2, 2},
		{5, 2, 3},
		{8, 2, 4},
		{9, 3, 3},
		{10, 3, 4},
		{16, 3, 6}, // колонки не растут дальше трёх
		{100, 3, 34},
	}
	for _, tc := range cases {
		cols, rows := Grid(tc.n)
		assert.Equal(t, tc.cols, cols, "n=%d cols", tc.n)
		assert.Equal(t, tc.rows, rows, "n=%d rows", tc.n)
	}
}

func TestObfuscatePreservesSize(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, "src.png", 120, 90)
	dst := filepath.Join(dir, "hidden.png")

	require.NoError(t, Obfuscate(src, dst))

	hidden, err := imaging.Open(dst)
	require.NoError(t, err)
	assert.Equal(t, 120, hidden.Bounds().Dx())
	assert.Equal(t, 90, hidden.Bounds().Dy())
}

func TestObfuscateUnreadableSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "not_an_image.png")
	require.NoError(t, os.WriteFile(src, []byte("это не картинка"), 0o644))

	err := Obfuscate(src, filepath.Join(dir, "hidden.png"))
	assert.ErrorIs(t, err, common.ErrImageUnreadable)
}

func TestObfuscateMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := Obfuscate(filepath.Join(dir, "nope.png"), filepath.Join(dir, "hidden.png"))
	assert.ErrorIs(t, err, common.ErrImageUnreadable)
}

func TestCollageGeometry(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writeTestImage(t, dir, fmt.Sprintf("cell%d.png", i), 60, 60))
	}

	img, err := Collage(paths)
	require.NoError(t, err)
	require.NotNil(t, img)

	// 5 картинок → 2 колонки × 3 строки
	assert.Equal(t, 2*CellSize, img.Bounds().Dx())
	assert.Equal(t, 3*CellSize, img.Bounds().Dy())
}

func TestCollageSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	good := writeTestImage(t, dir, "good.png", 60, 60)
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("мусор"), 0o644))

	img, err := Collage([]string{bad, good})
	require.NoError(t, err)
	require.NotNil(t, img)

	// Остаётся одна ячейка
	assert.Equal(t, CellSize, img.Bounds().Dx())
	assert.Equal(t, CellSize, img.Bounds().Dy())
}

func TestCollageEmpty(t *testing.T) {
	img, err := Collage(nil)
	assert.NoError(t, err)
	assert.Nil(t, img)

	img, err = Collage([]string{filepath.Join(t.TempDir(), "nope.png")})
	assert.NoError(t, err)
	assert.Nil(t, img)
}

func TestEncodeJPEG(t *testing.T) {
	img := imaging.New(10, 10, color.NRGBA{G: 255, A: 255})

	data, err := EncodeJPEG(img)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	decoded, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 10, decoded.Bounds().Dx())
}
