package fu

func Mini(a int, b ...int) int {
	for _, x := range b {
		if x < a {
			a = x
		}
	}
	return a
}
