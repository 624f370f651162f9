package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"

	"inkwell/internal/config"
	"inkwell/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	coverMaxSize = 1280
	jpegQuality  = 82
	webpQuality  = 70
)

// Cover image variants rendered at upload time. Covers are small enough
// that processing synchronously keeps the pipeline simple.
var coverSizes = []int{320, 640, 1280}

type UploadCoverInput struct {
	UserID      uint
	Filename    string
	ContentType string
	Content     []byte
}

// UploadedCover describes the stored cover image and its rendered variants.
type UploadedCover struct {
	URL      string            `json:"url"`
	Variants map[string]string `json:"variants"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
}

// ImageService processes post cover uploads into content-addressed
// jpeg and webp renditions on local disk.
type ImageService struct {
	uploadDir          string
	publicPrefix       string
	maxUploadSizeBytes int64
}

func NewImageService(cfg *config.Config) *ImageService {
	return &ImageService{
		uploadDir:          cfg.UploadDir,
		publicPrefix:       cfg.PublicMediaPrefix,
		maxUploadSizeBytes: int64(cfg.MaxUploadSizeMB) * 1024 * 1024,
	}
}

func (s *ImageService) UploadCover(in UploadCoverInput) (*UploadedCover, error) {
	if in.UserID == 0 {
		return nil, models.NewValidationError("Invalid user")
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detected := http.DetectContentType(in.Content)
	switch detected {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
	default:
		return nil, models.NewValidationError("Invalid image type")
	}

	decoded, _, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}

	master := resizeToFit(decoded, coverMaxSize, coverMaxSize)
	masterJPG, err := encodeJPEG(master, jpegQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	hash := coverHash(in.UserID, masterJPG)
	variants := make(map[string]string, len(coverSizes)*2)
	bounds := master.Bounds()

	for _, size := range coverSizes {
		img := master
		if bounds.Dx() > size || bounds.Dy() > size {
			img = resizeToFit(master, size, size)
		}

		jpgBytes, err := encodeJPEG(img, jpegQuality)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		jpgRel := filepath.ToSlash(filepath.Join(hash, fmt.Sprintf("%d.jpg", size)))
		if err := writeFile(filepath.Join(s.uploadDir, jpgRel), jpgBytes); err != nil {
			return nil, models.NewInternalError(err)
		}
		variants[fmt.Sprintf("%d_jpg", size)] = s.variantURL(hash, size, "jpg")

		webpBytes, err := encodeWebP(img, webpQuality)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		webpRel := filepath.ToSlash(filepath.Join(hash, fmt.Sprintf("%d.webp", size)))
		if err := writeFile(filepath.Join(s.uploadDir, webpRel), webpBytes); err != nil {
			return nil, models.NewInternalError(err)
		}
		variants[fmt.Sprintf("%d_webp", size)] = s.variantURL(hash, size, "webp")
	}

	return &UploadedCover{
		URL:      s.variantURL(hash, coverMaxSize, "jpg"),
		Variants: variants,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

// ResolveCover maps a hash/size/format triple to a file on disk. The hash
// is validated as lowercase hex before touching the filesystem so crafted
// values cannot traverse paths.
func (s *ImageService) ResolveCover(hash string, size int, format string) (string, error) {
	if !isHexHash(hash) {
		return "", models.NewValidationError("Invalid image hash")
	}
	if format != "jpg" && format != "webp" {
		return "", models.NewValidationError("Invalid image format")
	}
	path := filepath.Join(s.uploadDir, hash, fmt.Sprintf("%d.%s", size, format))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", models.NewNotFoundError("Image", hash)
		}
		return "", models.NewInternalError(err)
	}
	return path, nil
}

func (s *ImageService) variantURL(hash string, size int, format string) string {
	return fmt.Sprintf("%s/%s/%d.%s", s.publicPrefix, hash, size, format)
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || (w <= maxWidth && h <= maxHeight) {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func coverHash(userID uint, content []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:", userID)
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func isHexHash(v string) bool {
	if len(v) != 64 {
		return false
	}
	for _, r := range v {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
