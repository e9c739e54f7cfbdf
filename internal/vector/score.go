package vector

import "math"

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func l2(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return math.Sqrt(s)
}

// Cosine returns the cosine similarity of a and b. A zero vector on either
// side yields 0. The result is clamped to [-1, 1].
func Cosine(a, b []float32) float64 {
	return cosineWithNorms(a, b, norm(a), norm(b))
}

func cosineWithNorms(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, s))
}

// score computes the metric between the query and a stored slot.
func (m Metric) score(q []float32, qn float64, s *slot) float64 {
	switch m {
	case MetricDot:
		return dot(q, s.rec.Vector)
	case MetricL2:
		return -l2(q, s.rec.Vector)
	default:
		return cosineWithNorms(q, s.rec.Vector, qn, s.norm)
	}
}

// better reports whether hit a ranks before hit b: higher score first,
// then ascending ID.
func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}
