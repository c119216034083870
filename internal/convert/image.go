package convert

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // регистрация декодера GIF
	_ "image/jpeg" // регистрация декодера JPEG
	_ "image/png"  // регистрация декодера PNG
	"io"
	"os"
	"strconv"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"  // регистрация декодера BMP
	_ "golang.org/x/image/tiff" // регистрация декодера TIFF
	_ "golang.org/x/image/webp" // регистрация декодера WebP
)

// unknownValue — значение недоступного свойства.
const unknownValue = "Unknown"

type imagePage struct {
	pageBase
	SourceURL string
	Props     []prop
}

// ImageInfo — свойства изображения для страницы просмотра.
type ImageInfo struct {
	Width, Height int
	Format        string
	CameraMake    string
	CameraModel   string
	TakenAt       string
}

// renderImage — страница просмотра изображения со свойствами.
// Недоступные свойства отображаются как Unknown.
func renderImage(_ context.Context, in RenderInput, w io.Writer) error {
	info, err := ReadImageInfo(in.Entry.LocalPath)
	if err != nil {
		return err
	}

	dims := unknownValue
	if info.Width > 0 && info.Height > 0 {
		dims = fmt.Sprintf("%d × %d", info.Width, info.Height)
	}
	return executePage(w, "image", imagePage{
		pageBase:  pageBase{Filename: in.Entry.OriginalFilename, Meta: humanSize(in.Entry.SizeBytes)},
		SourceURL: in.SourceURL,
		Props: []prop{
			{Name: "Размер", Value: dims},
			{Name: "Формат", Value: info.Format},
			{Name: "Камера", Value: info.CameraMake},
			{Name: "Модель", Value: info.CameraModel},
			{Name: "Дата съёмки", Value: info.TakenAt},
			{Name: "Объём файла", Value: humanSize(in.Entry.SizeBytes)},
		},
	})
}

// ReadImageInfo читает размеры и EXIF. Ошибка — только если файл не открывается.
func ReadImageInfo(path string) (ImageInfo, error) {
	info := ImageInfo{
		Format:      unknownValue,
		CameraMake:  unknownValue,
		CameraModel: unknownValue,
		TakenAt:     unknownValue,
	}

	f, err := os.Open(path)
	if err != nil {
		return info, fmt.Errorf("ошибка открытия %s: %w", path, err)
	}
	defer f.Close()

	if cfg, format, err := image.DecodeConfig(f); err == nil {
		info.Width, info.Height, info.Format = cfg.Width, cfg.Height, format
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return info, nil
	}
	x, err := exif.Decode(f)
	if err != nil {
		return info, nil
	}
	if v := exifString(x, exif.Make); v != "" {
		info.CameraMake = v
	}
	if v := exifString(x, exif.Model); v != "" {
		info.CameraModel = v
	}
	if t, err := x.DateTime(); err == nil {
		info.TakenAt = t.Format("2006-01-02 15:04:05")
	}
	return info, nil
}

func exifString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

// humanSize — размер в байтах, КБ или МБ.
func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return strconv.FormatFloat(float64(n)/(1<<20), 'f', 2, 64) + " МБ"
	case n >= 1<<10:
		return strconv.FormatFloat(float64(n)/(1<<10), 'f', 1, 64) + " КБ"
	default:
		return strconv.FormatInt(n, 10) + " Б"
	}
}
