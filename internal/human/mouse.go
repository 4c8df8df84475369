package human

import (
	"math"
	"math/rand/v2"
)

type Point struct {
	X, Y float64
}

// MousePath строит квадратичную кривую Безье от from до to со случайной
// контрольной точкой и дрожанием промежуточных точек. Концы точные.
func MousePath(from, to Point, steps int, rng *rand.Rand) []Point {
	if steps < 2 {
		return []Point{to}
	}
	if rng == nil {
		rng = NewRand()
	}

	dx, dy := to.X-from.X, to.Y-from.Y
	dist := math.Hypot(dx, dy)

	// Контрольная точка смещена от середины по нормали на ±30% длины
	mid := Point{X: from.X + dx/2, Y: from.Y + dy/2}
	ctrl := mid
	if dist > 0 {
		offset := uniform(rng, -0.3, 0.3) * dist
		ctrl = Point{X: mid.X - dy/dist*offset, Y: mid.Y + dx/dist*offset}
	}

	path := make([]Point, steps)
	for i := 0; i < steps; i++ {
		t := float64(i) / float64(steps-1)
		u := 1 - t
		p := Point{
			X: u*u*from.X + 2*u*t*ctrl.X + t*t*to.X,
			Y: u*u*from.Y + 2*u*t*ctrl.Y + t*t*to.Y,
		}
		if i > 0 && i < steps-1 {
			p.X += uniform(rng, -1, 1)
			p.Y += uniform(rng, -1, 1)
		}
		path[i] = p
	}
	path[0], path[steps-1] = from, to
	return path
}

// pathSteps: число точек пути в зависимости от расстояния.
func pathSteps(from, to Point) int {
	steps := int(math.Hypot(to.X-from.X, to.Y-from.Y) / 25)
	return max(8, min(steps, 40))
}
