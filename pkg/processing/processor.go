package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/headshot/pkg/geometry"
)

// MinImageSize is the smallest accepted side of an input photo. Any
// non-empty image can be framed.
const MinImageSize = 1

// MaxDownloadSize caps the body read by LoadImageFromURL.
const MaxDownloadSize = 32 << 20

// ErrUnsupportedFormat is returned when no decoder recognises the data.
var ErrUnsupportedFormat = errors.New("image: unknown or unsupported format")

// SupportedFormats lists the encodings accepted by SaveImage and EncodeImage.
var SupportedFormats = []string{"png", "jpg", "jpeg", "webp"}

// Processor handles image processing operations
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadImageFromURL downloads and decodes an image from a URL
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "headshot/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return p.DecodeImage(imageData)
}

// LoadImage loads an image from a file path. EXIF orientation is applied so
// the pixels match what a browser would show.
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// DecodeImage decodes an encoded image held in memory. Formats registered
// with the image package are tried first, WebP last.
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrUnsupportedFormat
	}

	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, ErrUnsupportedFormat
}

// ValidateImage rejects nil and empty images.
func (p *Processor) ValidateImage(img image.Image) error {
	if img == nil {
		return fmt.Errorf("image is nil")
	}
	b := img.Bounds()
	if b.Dx() < MinImageSize || b.Dy() < MinImageSize {
		return fmt.Errorf("image is empty: %dx%d", b.Dx(), b.Dy())
	}
	return nil
}

// PrepareImageForModel converts an image to base64 for sending to vision
// models. Images larger than maxDim on either side are downscaled first; the
// returned factor maps coordinates in the sent image back to img.
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, float64, error) {
	factor := 1.0
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
				factor = float64(w) / float64(img.Bounds().Dx())
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
				factor = float64(h) / float64(img.Bounds().Dy())
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", 0, err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", 0, err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), factor, nil
}

// FormatFromPath returns the encoding implied by a file extension, or png
// when the extension is unknown.
func FormatFromPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, f := range SupportedFormats {
		if ext == f {
			return ext
		}
	}
	return "png"
}

// EncodeImage writes img to w in the given format.
func (p *Processor) EncodeImage(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "jpg", "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "png", "":
		return imaging.Encode(w, img, imaging.PNG)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := webp.Encode(f, img, &webp.Options{Lossless: lossless, Quality: float32(quality)}); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case "png", "":
		return imaging.Save(img, path, imaging.PNGCompressionLevel(png.DefaultCompression))
	case "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// CreateDebugOverlay draws detected faces, the crop region and its cover-fit
// export area over a copy of img. Rectangles are in source pixels.
func (p *Processor) CreateDebugOverlay(img image.Image, faces []geometry.FaceBox, crop, cover geometry.Rect) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}  // faces
	gold := color.NRGBA{255, 204, 0, 255} // crop region
	red := color.NRGBA{255, 0, 0, 255}    // export area
	blue := color.NRGBA{0, 170, 255, 255} // crop center
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	for _, f := range faces {
		drawBox(nrgba, f.Rect(), green, stroke)
	}

	if !crop.Empty() {
		drawBox(nrgba, crop, gold, stroke)

		px := int(math.Round(crop.X + crop.Width/2))
		py := int(math.Round(crop.Y + crop.Height/2))
		drawHLine(nrgba, py, px-cross, px+cross, blue)
		drawVLine(nrgba, px, py-cross, py+cross, blue)
	}
	if !cover.Empty() && cover != crop {
		drawBox(nrgba, cover, red, max(1, stroke/2))
	}

	return nrgba
}

func drawBox(img *image.NRGBA, r geometry.Rect, c color.NRGBA, stroke int) {
	px := r.Image(image.Point{})
	x0, y0, x1, y1 := px.Min.X, px.Min.Y, px.Max.X, px.Max.Y
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
