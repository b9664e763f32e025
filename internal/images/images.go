// Package images stores profile pictures and returns the public URL for each.
package images

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// MaxSize bounds a single decoded image.
const MaxSize = 5 << 20

var ErrInvalidImage = errors.New("invalid image")

var dataURLPattern = regexp.MustCompile(`^data:image/([a-zA-Z]+);base64,(.+)$`)

type Image struct {
	Ext         string
	ContentType string
	Data        []byte
}

// FromDataURL decodes "data:image/<ext>;base64,<payload>".
func FromDataURL(s string) (Image, error) {
	m := dataURLPattern.FindStringSubmatch(s)
	if m == nil {
		return Image{}, fmt.Errorf("%w: invalid base64 image string", ErrInvalidImage)
	}

	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	return newImage(strings.ToLower(m[1]), data)
}

// FromUpload takes a multipart file. The extension comes from the file name,
// falling back to the sniffed content type.
func FromUpload(filename string, data []byte) (Image, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		ext = strings.TrimPrefix(http.DetectContentType(data), "image/")
	}

	return newImage(ext, data)
}

func newImage(ext string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	if len(data) > MaxSize {
		return Image{}, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidImage, MaxSize)
	}

	if ext == "" || strings.ContainsAny(ext, `/\.`) {
		return Image{}, fmt.Errorf("%w: bad extension %q", ErrInvalidImage, ext)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/" + ext
	}

	return Image{Ext: ext, ContentType: contentType, Data: data}, nil
}

// FileName is user_<accountID>_<unix millis>.<ext>.
func FileName(accountID, ext string, now time.Time) string {
	return fmt.Sprintf("user_%s_%d.%s", accountID, now.UnixMilli(), ext)
}
