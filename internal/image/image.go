// Package image bridges the core's pixel-tensor contract to concrete input
// and output sources: a file path, an in-memory byte buffer, an
// already-decoded Go image, or a pixel tensor handed in directly, plus
// PNG encoding of a decoded output tensor. It is deliberately the one place
// this module reaches for the standard library's image codecs — see
// DESIGN.md for why no pack dependency covers PNG/JPEG encode/decode.
package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/example/go-diffusionstack/internal/tensor"
)

// NormalizeMode selects how decoded [0,255] pixel channels are mapped into
// float32 tensor values.
type NormalizeMode int

const (
	// ZeroToOne maps channels into [0,1].
	ZeroToOne NormalizeMode = iota
	// MinusOneToOne maps channels into [-1,1], the VAE encoder's native range.
	MinusOneToOne
)

// InputImage carries exactly one of a file path, raw bytes, a decoded Go
// image, or a pre-built pixel tensor. GetImageTensor is the only method the
// diffusion core calls on it.
type InputImage struct {
	Path    string
	Bytes   []byte
	Decoded stdimage.Image
	Tensor  *tensor.Tensor
}

// FromPath wraps a file path.
func FromPath(path string) InputImage { return InputImage{Path: path} }

// FromBytes wraps an encoded image buffer (PNG/JPEG).
func FromBytes(data []byte) InputImage { return InputImage{Bytes: data} }

// FromImage wraps an already-decoded bitmap.
func FromImage(img stdimage.Image) InputImage { return InputImage{Decoded: img} }

// FromTensor wraps a pixel tensor already in [1,3,H,W] layout.
func FromTensor(t *tensor.Tensor) InputImage { return InputImage{Tensor: t} }

// GetImageTensor resizes (nearest-neighbor) and normalizes the wrapped
// source into a [1,3,height,width] float32 tensor in the requested range.
// A wrapped pixel tensor is returned as is: it is neither resized nor
// renormalized.
func (in InputImage) GetImageTensor(height, width int, mode NormalizeMode) (*tensor.Tensor, error) {
	if in.Tensor != nil {
		return in.Tensor, nil
	}

	img, err := in.decode()
	if err != nil {
		return nil, err
	}

	return imageToTensor(img, height, width, mode), nil
}

func (in InputImage) decode() (stdimage.Image, error) {
	if in.Decoded != nil {
		return in.Decoded, nil
	}

	data := in.Bytes
	if data == nil {
		raw, err := os.ReadFile(in.Path)
		if err != nil {
			return nil, err
		}

		data = raw
	}

	img, _, err := stdimage.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return img, nil
}

func imageToTensor(img stdimage.Image, height, width int, mode NormalizeMode) *tensor.Tensor {
	srcBounds := img.Bounds()
	srcW, srcH := srcBounds.Dx(), srcBounds.Dy()

	data := make([]float32, 3*height*width)
	plane := height * width

	for y := 0; y < height; y++ {
		srcY := srcBounds.Min.Y + y*srcH/height
		for x := 0; x < width; x++ {
			srcX := srcBounds.Min.X + x*srcW/width

			r, g, b, _ := img.At(srcX, srcY).RGBA()
			rf := normalizeChannel(r, mode)
			gf := normalizeChannel(g, mode)
			bf := normalizeChannel(b, mode)

			idx := y*width + x
			data[0*plane+idx] = rf
			data[1*plane+idx] = gf
			data[2*plane+idx] = bf
		}
	}

	t, _ := tensor.New(data, []int64{1, 3, int64(height), int64(width)})

	return t
}

// EncodePNG writes a [1,3,height,width] float32 pixel tensor in [0,1] range
// (the shape and range a VAE decode produces) to w as a PNG image.
func EncodePNG(t *tensor.Tensor, w io.Writer) error {
	shape := t.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[1] != 3 {
		return fmt.Errorf("image: EncodePNG wants a [1,3,H,W] tensor, got shape %v", shape)
	}

	height, width := int(shape[2]), int(shape[3])
	plane := height * width
	bytePixels := tensor.ToBytePixel(t)

	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			img.Set(x, y, color.NRGBA{
				R: bytePixels[0*plane+idx],
				G: bytePixels[1*plane+idx],
				B: bytePixels[2*plane+idx],
				A: 0xff,
			})
		}
	}

	return png.Encode(w, img)
}

func normalizeChannel(c uint32, mode NormalizeMode) float32 {
	// color.RGBA/RGBA64 values are 16-bit premultiplied alpha-free channels
	// here (opaque images); scale down to [0,1] first.
	v := float32(c) / float32(0xffff)

	if mode == MinusOneToOne {
		return v*2 - 1
	}

	return v
}
