// Package geometry defines the 2D problem domains of a bulge test (the
// clamped outline of the pressurized membrane) and the collocation sampler
// that replaces a mesh. A Domain supplies a membership predicate for
// interior points, a parameterized boundary curve with outward normals for
// the clamped-edge conditions, and its exact area for quadrature weighting.
package geometry

import (
	"fmt"
	"math"

	"github.com/bulgelab/bulge/jet"
)

// Domain describes the planar region occupied by the membrane.
type Domain interface {
	// Contains reports whether (x, y) lies strictly inside the domain.
	Contains(x, y float64) bool

	// Area returns the exact area of the domain.
	Area() float64

	// Bounds returns the axis-aligned bounding box of the domain.
	Bounds() (min, max [2]float64)

	// Boundary evaluates the boundary curve at parameter t in [0, 1),
	// returning the point and the outward unit normal there.
	Boundary(t float64) (x, y, nx, ny float64)

	// CharLength returns a characteristic length used to normalize
	// coordinates before feeding them to a field approximator.
	CharLength() float64
}

// DistanceFactorer is implemented by domains that expose a smooth analytic
// function which is positive inside the domain and zero on its boundary,
// together with its derivatives. Multiplying a field approximator's output
// by this factor enforces zero edge displacement architecturally instead of
// through a penalty term.
type DistanceFactorer interface {
	DistanceJet(x, y float64) jet.Jet
}

// Disk is a circular domain of radius R centered at the origin.
type Disk struct {
	R float64
}

// NewDisk returns a Disk, rejecting degenerate radii.
func NewDisk(r float64) (Disk, error) {
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return Disk{}, fmt.Errorf("geometry: disk radius must be positive and finite, got %v", r)
	}
	return Disk{R: r}, nil
}

func (d Disk) Contains(x, y float64) bool { return x*x+y*y < d.R*d.R }

func (d Disk) Area() float64 { return math.Pi * d.R * d.R }

func (d Disk) Bounds() (min, max [2]float64) {
	return [2]float64{-d.R, -d.R}, [2]float64{d.R, d.R}
}

func (d Disk) Boundary(t float64) (x, y, nx, ny float64) {
	th := 2 * math.Pi * t
	c, s := math.Cos(th), math.Sin(th)
	return d.R * c, d.R * s, c, s
}

func (d Disk) CharLength() float64 { return d.R }

// DistanceJet returns 1 - (x²+y²)/R², which vanishes on the circle.
func (d Disk) DistanceJet(x, y float64) jet.Jet {
	inv := 1 / (d.R * d.R)
	return jet.Jet{
		Val: 1 - (x*x+y*y)*inv,
		Dx:  -2 * x * inv,
		Dy:  -2 * y * inv,
		Dxx: -2 * inv,
		Dyy: -2 * inv,
	}
}

// Ellipse is an elliptical domain with semi-axes A (along x) and B (along y)
// centered at the origin.
type Ellipse struct {
	A, B float64
}

// NewEllipse returns an Ellipse, rejecting degenerate semi-axes.
func NewEllipse(a, b float64) (Ellipse, error) {
	if a <= 0 || b <= 0 || math.IsNaN(a) || math.IsNaN(b) {
		return Ellipse{}, fmt.Errorf("geometry: ellipse semi-axes must be positive, got a=%v b=%v", a, b)
	}
	return Ellipse{A: a, B: b}, nil
}

func (e Ellipse) Contains(x, y float64) bool {
	return x*x/(e.A*e.A)+y*y/(e.B*e.B) < 1
}

func (e Ellipse) Area() float64 { return math.Pi * e.A * e.B }

func (e Ellipse) Bounds() (min, max [2]float64) {
	return [2]float64{-e.A, -e.B}, [2]float64{e.A, e.B}
}

func (e Ellipse) Boundary(t float64) (x, y, nx, ny float64) {
	th := 2 * math.Pi * t
	c, s := math.Cos(th), math.Sin(th)
	x, y = e.A*c, e.B*s
	// Outward normal is the normalized gradient of the implicit function.
	gx, gy := x/(e.A*e.A), y/(e.B*e.B)
	n := math.Hypot(gx, gy)
	return x, y, gx / n, gy / n
}

func (e Ellipse) CharLength() float64 { return math.Max(e.A, e.B) }

// DistanceJet returns 1 - x²/A² - y²/B².
func (e Ellipse) DistanceJet(x, y float64) jet.Jet {
	ia, ib := 1/(e.A*e.A), 1/(e.B*e.B)
	return jet.Jet{
		Val: 1 - x*x*ia - y*y*ib,
		Dx:  -2 * x * ia,
		Dy:  -2 * y * ib,
		Dxx: -2 * ia,
		Dyy: -2 * ib,
	}
}

// Rect is a rectangular domain spanning [-HalfW, HalfW] × [-HalfH, HalfH].
// A square membrane of half-width h is Rect{h, h}.
type Rect struct {
	HalfW, HalfH float64
}

// NewRect returns a Rect, rejecting degenerate half-extents.
func NewRect(halfW, halfH float64) (Rect, error) {
	if halfW <= 0 || halfH <= 0 || math.IsNaN(halfW) || math.IsNaN(halfH) {
		return Rect{}, fmt.Errorf("geometry: rect half-extents must be positive, got %v × %v", halfW, halfH)
	}
	return Rect{HalfW: halfW, HalfH: halfH}, nil
}

func (r Rect) Contains(x, y float64) bool {
	return math.Abs(x) < r.HalfW && math.Abs(y) < r.HalfH
}

func (r Rect) Area() float64 { return 4 * r.HalfW * r.HalfH }

func (r Rect) Bounds() (min, max [2]float64) {
	return [2]float64{-r.HalfW, -r.HalfH}, [2]float64{r.HalfW, r.HalfH}
}

// Boundary walks the perimeter counterclockwise starting from the
// bottom-left corner, parameterized by arclength fraction.
func (r Rect) Boundary(t float64) (x, y, nx, ny float64) {
	w, h := 2*r.HalfW, 2*r.HalfH
	per := 2 * (w + h)
	s := t * per
	switch {
	case s < w: // bottom edge, left to right
		return -r.HalfW + s, -r.HalfH, 0, -1
	case s < w+h: // right edge, bottom to top
		return r.HalfW, -r.HalfH + (s - w), 1, 0
	case s < 2*w+h: // top edge, right to left
		return r.HalfW - (s - w - h), r.HalfH, 0, 1
	default: // left edge, top to bottom
		return -r.HalfW, r.HalfH - (s - 2*w - h), -1, 0
	}
}

func (r Rect) CharLength() float64 { return math.Max(r.HalfW, r.HalfH) }

// DistanceJet returns (1 - x²/HalfW²)(1 - y²/HalfH²), zero on all four edges.
func (r Rect) DistanceJet(x, y float64) jet.Jet {
	iw, ih := 1/(r.HalfW*r.HalfW), 1/(r.HalfH*r.HalfH)
	px := jet.Jet{Val: 1 - x*x*iw, Dx: -2 * x * iw, Dxx: -2 * iw}
	py := jet.Jet{Val: 1 - y*y*ih, Dy: -2 * y * ih, Dyy: -2 * ih}
	return px.Mul(py)
}

// Polygon is a simple closed polygon given by its vertices in order.
// Polygons support penalty-based boundary enforcement only: there is no
// smooth analytic distance factor, so Polygon does not implement
// DistanceFactorer.
type Polygon struct {
	Verts [][2]float64

	area float64
	per  float64
	cum  []float64 // cumulative edge lengths
}

// NewPolygon builds a Polygon from at least three vertices, rejecting
// degenerate (zero-area) outlines.
func NewPolygon(verts [][2]float64) (*Polygon, error) {
	if len(verts) < 3 {
		return nil, fmt.Errorf("geometry: polygon needs at least 3 vertices, got %d", len(verts))
	}
	p := &Polygon{Verts: verts}
	var area2 float64
	p.cum = make([]float64, len(verts)+1)
	for i := range verts {
		j := (i + 1) % len(verts)
		area2 += verts[i][0]*verts[j][1] - verts[j][0]*verts[i][1]
		p.cum[i+1] = p.cum[i] + math.Hypot(verts[j][0]-verts[i][0], verts[j][1]-verts[i][1])
	}
	p.area = math.Abs(area2) / 2
	p.per = p.cum[len(verts)]
	if p.area == 0 {
		return nil, fmt.Errorf("geometry: polygon has zero area")
	}
	if area2 < 0 {
		return nil, fmt.Errorf("geometry: polygon vertices must be in counterclockwise order")
	}
	return p, nil
}

// Contains uses the even-odd ray casting rule.
func (p *Polygon) Contains(x, y float64) bool {
	in := false
	n := len(p.Verts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := p.Verts[i][0], p.Verts[i][1]
		xj, yj := p.Verts[j][0], p.Verts[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}

func (p *Polygon) Area() float64 { return p.area }

func (p *Polygon) Bounds() (min, max [2]float64) {
	min = [2]float64{math.Inf(1), math.Inf(1)}
	max = [2]float64{math.Inf(-1), math.Inf(-1)}
	for _, v := range p.Verts {
		min[0] = math.Min(min[0], v[0])
		min[1] = math.Min(min[1], v[1])
		max[0] = math.Max(max[0], v[0])
		max[1] = math.Max(max[1], v[1])
	}
	return min, max
}

// Boundary walks the perimeter by arclength fraction. Normals point outward
// for counterclockwise vertex order, which NewPolygon enforces.
func (p *Polygon) Boundary(t float64) (x, y, nx, ny float64) {
	s := t * p.per
	n := len(p.Verts)
	for i := 0; i < n; i++ {
		if s <= p.cum[i+1] || i == n-1 {
			j := (i + 1) % n
			el := p.cum[i+1] - p.cum[i]
			f := (s - p.cum[i]) / el
			ex := p.Verts[j][0] - p.Verts[i][0]
			ey := p.Verts[j][1] - p.Verts[i][1]
			x = p.Verts[i][0] + f*ex
			y = p.Verts[i][1] + f*ey
			return x, y, ey / el, -ex / el
		}
	}
	panic("geometry: boundary parameter out of range")
}

func (p *Polygon) CharLength() float64 {
	min, max := p.Bounds()
	return math.Max(max[0]-min[0], max[1]-min[1]) / 2
}
