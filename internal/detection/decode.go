package detection

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"

	"solarverify/internal/services"
)

// DecodeFile reads a raster image from disk. Corrupt or unreadable files are
// reported as ErrDecode so the caller skips the sample before detection.
func DecodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "decode", "open", path, err)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "decode", "image", fmt.Sprintf("read %s", path), err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, services.Wrap(services.ErrDecode, "decode", format, fmt.Sprintf("empty image %s", path), nil)
	}
	return img, nil
}
