package human

// ScrollPlan: позиции прокрутки 0, inc, 2*inc, ... строго меньше height.
func ScrollPlan(height float64, increment int) []float64 {
	if increment <= 0 || height <= 0 {
		return nil
	}
	var plan []float64
	for y := 0.0; y < height; y += float64(increment) {
		plan = append(plan, y)
	}
	return plan
}
