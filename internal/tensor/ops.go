package tensor

import "errors"

// Repeat concatenates n copies of t along the batch axis (dim 0). It is the
// primary way classifier-free guidance widens a single-sample latent into a
// two-sample (negative, positive) batch before it reaches a UNet.
func Repeat(t *Tensor, n int) (*Tensor, error) {
	if n <= 0 {
		return nil, errors.New("tensor: repeat count must be > 0")
	}

	tensors := make([]*Tensor, n)
	for i := range tensors {
		tensors[i] = t
	}

	return Concat(tensors, 0)
}

// Concatenate joins a and b along the batch axis (dim 0).
func Concatenate(a, b *Tensor) (*Tensor, error) {
	return Concat([]*Tensor{a, b}, 0)
}

// MultiplyByScalar returns t with every element scaled by s.
func MultiplyByScalar(t *Tensor, s float32) *Tensor {
	out := t.Clone()
	for i := range out.data {
		out.data[i] *= s
	}

	return out
}

// Add returns the element-wise sum of a and b. Shapes must match exactly; use
// BroadcastAdd when shapes differ.
func Add(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: add requires non-nil inputs")
	}

	if len(a.data) != len(b.data) {
		return nil, errors.New("tensor: add requires equal element counts")
	}

	out := a.Clone()
	for i := range out.data {
		out.data[i] += b.data[i]
	}

	return out, nil
}

// NormalizeMinusOneToOne maps values from [-1,1] into [0,1], clamping first.
func NormalizeMinusOneToOne(t *Tensor) *Tensor {
	out := t.Clone()
	for i, v := range out.data {
		if v < -1 {
			v = -1
		} else if v > 1 {
			v = 1
		}

		out.data[i] = v/2 + 0.5
	}

	return out
}

// ToBytePixel converts a normalized [0,1]-range tensor into byte pixel values:
// round(clamp(x,0,1)*255).
func ToBytePixel(t *Tensor) []byte {
	out := make([]byte, len(t.data))

	for i, v := range t.data {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}

		out[i] = byte(v*255 + 0.5)
	}

	return out
}
