package embed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Quantized is the compact stored form of an embedding: one int8 per
// dimension linearly mapped into [Min, Max]. The JSON shape doubles as the
// format discriminator, so there is no version field.
type Quantized struct {
	Values []int8  `json:"values"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Quantize compresses a vector to int8 values plus range bounds.
func Quantize(v []float32) Quantized {
	q := Quantized{Values: make([]int8, len(v))}
	if len(v) == 0 {
		return q
	}

	min, max := float64(v[0]), float64(v[0])
	for _, e := range v[1:] {
		f := float64(e)
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	q.Min, q.Max = min, max

	r := max - min
	if r == 0 {
		r = 1
	}

	for i, e := range v {
		scaled := math.Round(((float64(e)-min)/r)*255) - 128
		if scaled < -128 {
			scaled = -128
		} else if scaled > 127 {
			scaled = 127
		}
		q.Values[i] = int8(scaled)
	}

	return q
}

// Dequantize reconstructs the approximate float vector.
func (q Quantized) Dequantize() []float32 {
	r := q.Max - q.Min
	if r == 0 {
		r = 1
	}

	v := make([]float32, len(q.Values))
	for i, val := range q.Values {
		v[i] = float32((float64(val)+128)/255*r + q.Min)
	}
	return v
}

// Serialize encodes a vector in its quantized stored form.
func Serialize(v []float32) ([]byte, error) {
	data, err := json.Marshal(Quantize(v))
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}
	return data, nil
}

// Deserialize decodes a stored embedding. Detection is structural: a decoded
// object carrying a values array and a numeric min is the quantized form;
// anything else must be the legacy plain float array, returned losslessly.
func Deserialize(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.New("empty embedding blob")
	}

	var probe struct {
		Values []int8   `json:"values"`
		Min    *float64 `json:"min"`
		Max    *float64 `json:"max"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.Values != nil && probe.Min != nil {
		min, max := *probe.Min, 0.0
		if probe.Max != nil {
			max = *probe.Max
		}
		// Stored bounds are trusted nowhere else, so reject junk here
		if math.IsNaN(min) || math.IsInf(min, 0) || math.IsNaN(max) || math.IsInf(max, 0) {
			return nil, errors.New("quantized embedding has non-finite bounds")
		}
		q := Quantized{Values: probe.Values, Min: min, Max: max}
		return q.Dequantize(), nil
	}

	// Legacy path: records written before quantization are plain arrays
	var legacy []float32
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("unrecognized embedding encoding: %w", err)
	}
	return legacy, nil
}
