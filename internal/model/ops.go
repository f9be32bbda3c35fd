package model

import "math"

// linear computes out[t] = W x[t] + b for rows of x. W is [out][in].
func linear(x []float32, rows, in int, w, b []float32, out int) []float32 {
	y := make([]float32, rows*out)
	for t := 0; t < rows; t++ {
		xr := x[t*in : (t+1)*in]
		yr := y[t*out : (t+1)*out]
		for o := 0; o < out; o++ {
			wr := w[o*in : (o+1)*in]
			var sum float32
			for i, v := range xr {
				sum += wr[i] * v
			}
			if b != nil {
				sum += b[o]
			}
			yr[o] = sum
		}
	}
	return y
}

func layerNorm(x []float32, rows, dim int, w, b []float32, eps float32) []float32 {
	y := make([]float32, len(x))
	for t := 0; t < rows; t++ {
		xr := x[t*dim : (t+1)*dim]
		var mean float64
		for _, v := range xr {
			mean += float64(v)
		}
		mean /= float64(dim)
		var variance float64
		for _, v := range xr {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(dim)
		inv := 1 / math.Sqrt(variance+float64(eps))
		yr := y[t*dim : (t+1)*dim]
		for i, v := range xr {
			yr[i] = float32((float64(v)-mean)*inv)*w[i] + b[i]
		}
	}
	return y
}

// gelu uses the tanh approximation of GPT-2.
func gelu(x []float32) []float32 {
	y := make([]float32, len(x))
	const c = 0.7978845608028654 // sqrt(2/pi)
	for i, v := range x {
		f := float64(v)
		y[i] = float32(0.5 * f * (1 + math.Tanh(c*(f+0.044715*f*f*f))))
	}
	return y
}

func softmaxInPlace(x []float32) {
	if len(x) == 0 {
		return
	}
	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range x {
		e := math.Exp(float64(v - maxVal))
		x[i] = float32(e)
		sum += e
	}
	for i := range x {
		x[i] = float32(float64(x[i]) / sum)
	}
}

func addInPlace(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}
