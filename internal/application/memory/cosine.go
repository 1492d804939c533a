package memory

import "math"

// Cosine 余弦相似度；任一向量为零向量或维度不一致时返回 0
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// 浮点误差可能略微越界
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
