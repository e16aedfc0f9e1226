// Package imgproc реализует обработку изображений призов:
// «скрытие» картинки до розыгрыша и сборку коллажа выигранных призов.
//
// Скрытие — детерминированный конвейер: гауссово размытие, сжатие до
// маленькой сетки и обратное растягивание без интерполяции. Форма
// угадывается, содержимое — нет. Повторный запуск безвреден.
package imgproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"

	"prizebot/internal/common"
)

const (
	// blurSigma — сила гауссова размытия перед пикселизацией.
	blurSigma = 5.0
	// hiddenGrid — размер сетки пикселизации (30×30 крупных «пикселей»).
	hiddenGrid = 30
	// CellSize — сторона ячейки коллажа в пикселях.
	CellSize = 200
	// MaxColumns — максимум колонок в коллаже.
	MaxColumns = 3
)

// Obfuscate читает оригинал приза, скрывает его и сохраняет результат.
// Возвращает common.ErrImageUnreadable, если оригинал не читается.
func Obfuscate(srcPath, dstPath string) error {
	img, err := imaging.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrImageUnreadable, srcPath, err)
	}

	bounds := img.Bounds()

	// Размытие → сжатие до крошечной сетки → растягивание обратно
	// блочным ресемплингом (NearestNeighbor, без сглаживания).
	blurred := imaging.Blur(img, blurSigma)
	small := imaging.Resize(blurred, hiddenGrid, hiddenGrid, imaging.NearestNeighbor)
	pixelated := imaging.Resize(small, bounds.Dx(), bounds.Dy(), imaging.NearestNeighbor)

	if err := imaging.Save(pixelated, dstPath); err != nil {
		return fmt.Errorf("ошибка сохранения скрытого изображения %s: %w", dstPath, err)
	}
	return nil
}

// Grid вычисляет геометрию коллажа для n картинок:
// колонок — floor(sqrt(n)), но не больше MaxColumns и не меньше 1;
// строк — сколько нужно, чтобы вместить все ячейки.
func Grid(n int) (cols, rows int) {
	if n <= 0 {
		return 0, 0
	}
	cols = int(math.Floor(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	if cols > MaxColumns {
		cols = MaxColumns
	}
	rows = (n + cols - 1) / cols
	return cols, rows
}

// Collage собирает сетку из картинок по списку путей.
// Каждая картинка приводится к квадрату CellSize×CellSize; ячейки
// заполняются по порядку слева направо, сверху вниз. Нечитаемые файлы
// пропускаются — один битый файл не срывает весь коллаж.
//
// Возвращает nil без ошибки, если заполнить нечего.
func Collage(paths []string) (image.Image, error) {
	var cells []image.Image
	for _, p := range paths {
		img, err := imaging.Open(p)
		if err != nil {
			log.WithError(err).WithField("path", p).Warn("Картинка для коллажа не читается, пропускаем")
			continue
		}
		cells = append(cells, imaging.Resize(img, CellSize, CellSize, imaging.Lanczos))
	}

	if len(cells) == 0 {
		return nil, nil
	}

	cols, rows := Grid(len(cells))
	canvas := imaging.New(cols*CellSize, rows*CellSize, color.NRGBA{A: 255})
	for i, cell := range cells {
		row := i / cols
		col := i % cols
		canvas = imaging.Paste(canvas, cell, image.Pt(col*CellSize, row*CellSize))
	}
	return canvas, nil
}

// EncodeJPEG кодирует картинку в JPEG для отправки в Telegram.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("ошибка кодирования JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
