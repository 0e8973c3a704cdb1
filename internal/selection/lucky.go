package selection

const (
	luckyMin      = 1
	luckyMax      = 100
	luckyAttempts = 200
)

// LuckyNumbers assigns a display number per winner, in order: the winner's own ticket
// number when no earlier winner has it, otherwise a random unused number in 1..100.
// Purely presentational; it never affects who won.
func LuckyNumbers(src Source, winners []Winner) []int {
	used := make(map[int]bool, len(winners))
	numbers := make([]int, len(winners))
	for i, w := range winners {
		n := w.TicketNumber
		if n < luckyMin || n > luckyMax || used[n] {
			n = randomUnused(src, used)
		}
		used[n] = true
		numbers[i] = n
	}
	return numbers
}

func randomUnused(src Source, used map[int]bool) int {
	for i := 0; i < luckyAttempts; i++ {
		n := luckyMin + src.IntN(luckyMax-luckyMin+1)
		if !used[n] {
			return n
		}
	}
	for n := luckyMin; n <= luckyMax; n++ {
		if !used[n] {
			return n
		}
	}
	return luckyMin
}
