package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Point is one projected example.
type Point struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Projection is the 2-D principal component embedding of a matrix.
type Projection struct {
	Coords   [][2]float64 `json:"-"`
	Variance [2]float64   `json:"explained_variance"`
}

// Project maps rows onto their two leading principal components. Each
// direction's sign is fixed so its largest-magnitude loading is positive.
func Project(rows [][]float32) (*Projection, error) {
	n := len(rows)
	if n < 2 {
		return nil, fmt.Errorf("projection needs at least 2 rows, got %d", n)
	}
	d := len(rows[0])
	if d == 0 {
		return nil, fmt.Errorf("projection of zero-width rows")
	}

	x := mat.NewDense(n, d, nil)
	for i, r := range rows {
		if len(r) != d {
			return nil, fmt.Errorf("row %d has width %d, want %d", i, len(r), d)
		}
		for j, v := range r {
			x.Set(i, j, float64(v))
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, fmt.Errorf("principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	_, avail := vecs.Dims()
	k := 2
	if avail < k {
		k = avail
	}

	means := make([]float64, d)
	for j := 0; j < d; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	centered := mat.NewDense(n, d, nil)
	centered.Apply(func(_, j int, v float64) float64 { return v - means[j] }, x)

	p := &Projection{Coords: make([][2]float64, n)}
	for c := 0; c < k; c++ {
		dir := mat.Col(nil, c, &vecs)
		fixSign(dir)
		for i := 0; i < n; i++ {
			p.Coords[i][c] = mat.Dot(centered.RowView(i), mat.NewVecDense(d, dir))
		}
		if c < len(vars) {
			p.Variance[c] = vars[c]
		}
	}
	return p, nil
}

func fixSign(v []float64) {
	best := 0
	for i := range v {
		if math.Abs(v[i]) > math.Abs(v[best]) {
			best = i
		}
	}
	if v[best] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
}

// Points attaches ids and labels to projected coordinates.
func (p *Projection) Points(ids, labels []string) []Point {
	out := make([]Point, len(p.Coords))
	for i, c := range p.Coords {
		out[i] = Point{X: c[0], Y: c[1]}
		if i < len(ids) {
			out[i].ID = ids[i]
		}
		if i < len(labels) {
			out[i].Label = labels[i]
		}
	}
	return out
}
