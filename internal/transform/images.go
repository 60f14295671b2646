package transform

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
	"golang.org/x/sync/errgroup"
)

// ImageOptions configures image optimization.
type ImageOptions struct {
	// JPEGQuality is the re-encode quality (1-100). Defaults to 85.
	JPEGQuality int

	// PNGCompression selects the PNG encoder level: "default", "best" or
	// "speed". Defaults to "best".
	PNGCompression string

	// Concurrency bounds the number of files processed at once. Zero means
	// unbounded.
	Concurrency int
}

// Images optimizes raster and vector images.
//
// PNG and JPEG files are re-encoded and the smaller of the original and the
// re-encoded bytes is kept. SVG is minified. Other formats (GIF) pass
// through. Output order follows input order.
type Images struct {
	Options ImageOptions

	svg *minify.M
}

func NewImages(opts ImageOptions) *Images {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 85
	}
	if opts.PNGCompression == "" {
		opts.PNGCompression = "best"
	}
	m := minify.New()
	m.Add("image/svg+xml", &svg.Minifier{KeepComments: false})
	return &Images{Options: opts, svg: m}
}

func (im *Images) Stage() string { return StageImages }

func (im *Images) Apply(ctx context.Context, in []File) ([]File, error) {
	out := make([]File, len(in))
	g, gctx := errgroup.WithContext(ctx)
	if im.Options.Concurrency > 0 {
		g.SetLimit(im.Options.Concurrency)
	}
	for i, f := range in {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := im.optimize(f)
			if err != nil {
				return err
			}
			out[i] = File{Path: f.Path, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (im *Images) optimize(f File) ([]byte, error) {
	switch strings.ToLower(path.Ext(f.Path)) {
	case ".png":
		img, err := png.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, failf(StageImages, "%s: %v", f.Path, err)
		}
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: pngLevel(im.Options.PNGCompression)}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, failf(StageImages, "%s: %v", f.Path, err)
		}
		return smaller(f.Data, buf.Bytes()), nil
	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, failf(StageImages, "%s: %v", f.Path, err)
		}
		return reencodeJPEG(f, img, im.Options.JPEGQuality)
	case ".svg":
		data, err := im.svg.Bytes("image/svg+xml", f.Data)
		if err != nil {
			return nil, failf(StageImages, "%s: %v", f.Path, err)
		}
		return data, nil
	default:
		return f.Data, nil
	}
}

func reencodeJPEG(f File, img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, failf(StageImages, "%s: %v", f.Path, err)
	}
	return smaller(f.Data, buf.Bytes()), nil
}

func pngLevel(name string) png.CompressionLevel {
	switch name {
	case "speed":
		return png.BestSpeed
	case "default":
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func smaller(orig, candidate []byte) []byte {
	if len(candidate) < len(orig) {
		return candidate
	}
	return orig
}
