package screen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // Register JPEG decoder for image.Decode
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
)

// ErrImageDecode wraps any failure to decode screenshot or asset bytes.
var ErrImageDecode = errors.New("image decode failed")

// LoadImage loads an image from the filesystem
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageDecode, path, err)
	}
	return img, nil
}

// Decode decodes PNG (or JPEG) screenshot bytes.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, nil
}

// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// channels is the four-plane view of an image that correlation runs on.
type channels struct {
	R, G, B, Edge *image.Gray
}

func (c channels) size() (int, int) {
	b := c.R.Bounds()
	return b.Dx(), b.Dy()
}

// downscale shrinks img by an integer factor with bilinear filtering. Alpha
// is dropped before scaling and the result is always rebased to the origin.
func downscale(img image.Image, factor int) *image.RGBA {
	src := opaque(img)
	if factor <= 1 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx()/factor, src.Bounds().Dy()/factor))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// opaque copies the straight (non-premultiplied) RGB of img into a fully
// opaque image at the origin.
func opaque(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			s := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			d := dst.Pix[y*dst.Stride:]
			for x := 0; x < w*4; x += 4 {
				d[x], d[x+1], d[x+2], d[x+3] = s[x], s[x+1], s[x+2], 0xff
			}
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			s := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			d := dst.Pix[y*dst.Stride:]
			for x := 0; x < w*4; x += 4 {
				switch a := uint32(s[x+3]); a {
				case 0xff:
					d[x], d[x+1], d[x+2] = s[x], s[x+1], s[x+2]
				case 0:
				default:
					d[x] = uint8(uint32(s[x]) * 0xff / a)
					d[x+1] = uint8(uint32(s[x+1]) * 0xff / a)
					d[x+2] = uint8(uint32(s[x+2]) * 0xff / a)
				}
				d[x+3] = 0xff
			}
		}
	default:
		for y := 0; y < h; y++ {
			d := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				d[x*4], d[x*4+1], d[x*4+2], d[x*4+3] = c.R, c.G, c.B, 0xff
			}
		}
	}
	return dst
}

// splitChannels separates R, G and B into grayscale planes and derives the
// edge plane from the luma.
func splitChannels(img *image.RGBA) channels {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	r := image.NewGray(image.Rect(0, 0, w, h))
	g := image.NewGray(image.Rect(0, 0, w, h))
	bl := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+w*4]
		row := y * w
		for x := 0; x < w; x++ {
			r.Pix[row+x] = src[x*4]
			g.Pix[row+x] = src[x*4+1]
			bl.Pix[row+x] = src[x*4+2]
		}
	}

	luma := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(luma, luma.Bounds(), img, b.Min, draw.Src)

	return channels{R: r, G: g, B: bl, Edge: sobelEdges(luma)}
}

// sobelEdges returns the Sobel gradient magnitude of gray, scaled so the
// strongest edge in this image is 255. Borders replicate the edge pixel.
func sobelEdges(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	at := func(x, y int) int {
		if x < 0 {
			x = 0
		} else if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		} else if y >= h {
			y = h - 1
		}
		return int(gray.Pix[y*gray.Stride+x])
	}

	mag := make([]uint16, w*h)
	maxMag := uint16(1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			m := uint16(math.Sqrt(float64(gx*gx + gy*gy)))
			mag[y*w+x] = m
			if m > maxMag {
				maxMag = m
			}
		}
	}

	for i, m := range mag {
		out.Pix[i] = uint8(float32(m) / float32(maxMag) * 255)
	}
	return out
}
