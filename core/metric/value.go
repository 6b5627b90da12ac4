// Package metric provides the canonical value types flowing through monitors.
//
// Arbitrary numeric inputs are coerced once, at the monitor boundary, into
// either a float64 scalar or a dense Tensor. Everything downstream (caches,
// writers, printers) only ever sees these two canonical forms.
package metric

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/trainkit/pkg/errors"
)

// Scalarize coerces a numeric value into a float64.
//
// All integer and unsigned kinds are converted exactly; float32/float64 pass
// through. Any other type is a caller contract violation and yields an
// InvalidMetricTypeError carrying the metric name.
func Scalarize(name string, value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, errors.NewInvalidMetricTypeError(name, value)
	}
}

// Tensor is a dense row-major array with an explicit shape. It is the
// canonical representation of image-like metric values.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor creates a tensor after checking that the shape matches the data
// length. A nil data slice allocates a zero-filled buffer.
func NewTensor(shape []int, data []float64) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, errors.Newf("metric: invalid tensor dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	if data == nil {
		data = make([]float64, n)
	}
	if len(data) != n {
		return nil, errors.Newf("metric: shape %v requires %d elements, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: shape, Data: data}, nil
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// NumElements returns the total element count.
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// FromMatrix adapts a gonum matrix into a rank-2 tensor, copying the data.
func FromMatrix(m mat.Matrix) *Tensor {
	rows, cols := m.Dims()
	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = m.At(i, j)
		}
	}
	return &Tensor{Shape: []int{rows, cols}, Data: data}
}

// NormalizeImage reshapes a rank-2 or rank-3 tensor into the canonical rank-4
// (batch, height, width, channel) image layout:
//
//   - (H,W)               -> (1,H,W,1)
//   - (H,W,C), C in 1/3/4 -> (1,H,W,C)
//   - (N,H,W) otherwise   -> (N,H,W,1)
//
// Any other rank yields an InvalidImageShapeError. The returned tensor shares
// the input's data buffer; only the shape is rewritten.
func NormalizeImage(name string, t *Tensor) (*Tensor, error) {
	switch t.Rank() {
	case 2:
		return &Tensor{Shape: []int{1, t.Shape[0], t.Shape[1], 1}, Data: t.Data}, nil
	case 3:
		last := t.Shape[2]
		if last == 1 || last == 3 || last == 4 {
			return &Tensor{Shape: []int{1, t.Shape[0], t.Shape[1], last}, Data: t.Data}, nil
		}
		return &Tensor{Shape: []int{t.Shape[0], t.Shape[1], t.Shape[2], 1}, Data: t.Data}, nil
	case 4:
		return t, nil
	default:
		return nil, errors.NewInvalidImageShapeError(name, t.Shape)
	}
}
