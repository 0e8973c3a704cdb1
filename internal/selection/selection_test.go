package selection

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/luckypool/pool-service/internal/domain"
)

func newSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// fixedSource replays values, each reduced modulo n.
type fixedSource struct {
	values []int
	next   int
}

func (f *fixedSource) IntN(n int) int {
	v := f.values[f.next%len(f.values)]
	f.next++
	return v % n
}

func candidates(real, dummy int, realScore int) []Candidate {
	var out []Candidate
	for i := 0; i < real; i++ {
		out = append(out, Candidate{UserID: uuid.New(), Role: domain.RoleUser, Score: realScore + i, TicketNumber: i + 1})
	}
	for i := 0; i < dummy; i++ {
		out = append(out, Candidate{UserID: uuid.New(), Role: domain.RoleDummy, Score: DummyScore})
	}
	return out
}

func TestScoreCountsMatchingDraws(t *testing.T) {
	src := &fixedSource{values: []int{7, 3, 7, 99, 7}}
	if got := Score(src, 7, 5); got != 3 {
		t.Fatalf("Score() = %d, want 3", got)
	}
	if got := Score(&fixedSource{values: []int{1}}, 7, 0); got != 0 {
		t.Fatalf("zero draws must score 0, got %d", got)
	}
}

func TestRequirementsTable(t *testing.T) {
	tests := []struct {
		percent float64
		want    [WinnerCount]Requirement
	}{
		{0, [WinnerCount]Requirement{RequireDummy, RequireDummy, RequireDummy}},
		{49.9, [WinnerCount]Requirement{RequireDummy, RequireDummy, RequireDummy}},
		{50, [WinnerCount]Requirement{RequireAny, RequireAny, RequireReal}},
		{69, [WinnerCount]Requirement{RequireAny, RequireAny, RequireReal}},
		{70, [WinnerCount]Requirement{RequireAny, RequireReal, RequireReal}},
		{89, [WinnerCount]Requirement{RequireAny, RequireReal, RequireReal}},
		{90, [WinnerCount]Requirement{RequireReal, RequireReal, RequireReal}},
		{100, [WinnerCount]Requirement{RequireReal, RequireReal, RequireReal}},
	}
	for _, tt := range tests {
		if got := Requirements(tt.percent); got != tt.want {
			t.Errorf("Requirements(%v) = %v, want %v", tt.percent, got, tt.want)
		}
	}
}

func TestPickWinnersMostlyRealPicksOnlyReal(t *testing.T) {
	pool := candidates(95, 5, 0)
	winners, err := PickWinners(newSource(1), pool, 95, 100, Lenient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, w := range winners {
		if w.Role != domain.RoleUser {
			t.Fatalf("position %d went to %s, want real user", w.Position, w.Role)
		}
	}
}

func TestPickWinnersMostlyDummyPicksOnlyDummy(t *testing.T) {
	pool := candidates(10, 90, 5)
	winners, err := PickWinners(newSource(2), pool, 10, 100, Lenient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, w := range winners {
		if w.Role != domain.RoleDummy {
			t.Fatalf("position %d went to %s, want dummy", w.Position, w.Role)
		}
	}
}

func TestPickWinnersOrdersByScore(t *testing.T) {
	pool := []Candidate{
		{UserID: uuid.New(), Role: domain.RoleUser, Score: 1},
		{UserID: uuid.New(), Role: domain.RoleUser, Score: 9},
		{UserID: uuid.New(), Role: domain.RoleUser, Score: 4},
		{UserID: uuid.New(), Role: domain.RoleUser, Score: 6},
	}
	winners, err := PickWinners(newSource(3), pool, 100, 100, Strict)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantScores := []int{9, 6, 4}
	for i, w := range winners {
		if w.Score != wantScores[i] || w.Position != i+1 {
			t.Fatalf("winner %d = score %d pos %d, want score %d pos %d", i, w.Score, w.Position, wantScores[i], i+1)
		}
	}
}

func TestPickWinnersBreaksTiesWithSource(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	pool := []Candidate{
		{UserID: a, Role: domain.RoleUser, Score: 2},
		{UserID: b, Role: domain.RoleUser, Score: 2},
		{UserID: c, Role: domain.RoleUser, Score: 2},
	}
	winners, err := PickWinners(&fixedSource{values: []int{2, 1}}, pool, 100, 100, Strict)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winners[0].UserID != c || winners[1].UserID != b || winners[2].UserID != a {
		t.Fatalf("tie-break did not follow the source: %v", winners)
	}
}

func TestPickWinnersRoleShortage(t *testing.T) {
	// 95% real population but only two real candidates left.
	pool := candidates(2, 5, 3)

	if _, err := PickWinners(newSource(4), pool, 95, 100, Strict); !errors.Is(err, domain.ErrRoleUnavailable) {
		t.Fatalf("strict mode: expected role unavailable, got %v", err)
	}

	winners, err := PickWinners(newSource(4), pool, 95, 100, Lenient)
	if err != nil {
		t.Fatalf("lenient mode: unexpected error: %v", err)
	}
	if winners[0].Role != domain.RoleUser || winners[1].Role != domain.RoleUser || winners[2].Role != domain.RoleDummy {
		t.Fatalf("lenient mode should substitute the third position: %+v", winners)
	}
}

func TestPickWinnersInsufficientCandidates(t *testing.T) {
	pool := candidates(1, 1, 0)
	for _, mode := range []Mode{Lenient, Strict} {
		if _, err := PickWinners(newSource(5), pool, 1, 100, mode); !errors.Is(err, domain.ErrInsufficientCandidates) {
			t.Fatalf("%s: expected insufficient candidates, got %v", mode, err)
		}
	}
}

func TestBuildCandidates(t *testing.T) {
	alice, bob, outsider, dummy := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	tickets := []domain.Ticket{
		{UserID: alice, UserNumber: 10, DrawNumber: 3},
		{UserID: bob, UserNumber: 20, DrawNumber: 3},
		{UserID: alice, UserNumber: 30, DrawNumber: 3},
		{UserID: outsider, UserNumber: 40, DrawNumber: 3},
	}

	got := BuildCandidates(newSource(6), tickets, []uuid.UUID{alice, bob}, []uuid.UUID{dummy, bob})
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d: %+v", len(got), got)
	}
	if got[0].UserID != alice || got[0].TicketNumber != 10 {
		t.Fatalf("first-seen ticket should represent alice: %+v", got[0])
	}
	if got[1].UserID != bob || got[1].Role != domain.RoleUser {
		t.Fatalf("unexpected second candidate %+v", got[1])
	}
	if got[2].UserID != dummy || got[2].Score != DummyScore || got[2].Role != domain.RoleDummy {
		t.Fatalf("unexpected dummy candidate %+v", got[2])
	}
}

func TestPrizeAmount(t *testing.T) {
	tests := []struct {
		jackpot  int64
		position int
		want     int64
	}{
		{1000, 1, 250},
		{1000, 2, 200},
		{1000, 3, 150},
		{999, 1, 249},
		{999, 3, 149},
		{0, 1, 0},
		{-50, 2, 0},
		{1000, 4, 0},
	}
	for _, tt := range tests {
		if got := PrizeAmount(tt.jackpot, tt.position); got != tt.want {
			t.Errorf("PrizeAmount(%d, %d) = %d, want %d", tt.jackpot, tt.position, got, tt.want)
		}
	}
}

func TestLuckyNumbers(t *testing.T) {
	winners := []Winner{
		{Candidate: Candidate{TicketNumber: 42}, Position: 1},
		{Candidate: Candidate{TicketNumber: 42}, Position: 2},
		{Candidate: Candidate{TicketNumber: 0}, Position: 3},
	}
	numbers := LuckyNumbers(newSource(7), winners)
	if numbers[0] != 42 {
		t.Fatalf("first winner should keep own number, got %d", numbers[0])
	}
	seen := map[int]bool{}
	for _, n := range numbers {
		if n < 1 || n > 100 {
			t.Fatalf("lucky number %d out of range", n)
		}
		if seen[n] {
			t.Fatalf("duplicate lucky number %d in %v", n, numbers)
		}
		seen[n] = true
	}
}

func TestSelectionProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("prizes are floors of 25/20/15 percent and never exceed 60 percent", prop.ForAll(
		func(jackpot int64) bool {
			p1, p2, p3 := PrizeAmount(jackpot, 1), PrizeAmount(jackpot, 2), PrizeAmount(jackpot, 3)
			return p1 == jackpot*25/100 && p2 == jackpot*20/100 && p3 == jackpot*15/100 && p1+p2+p3 <= jackpot*60/100
		},
		gen.Int64Range(1, 1_000_000_000),
	))

	properties.Property("winners honour role requirements when enough of each role exist", prop.ForAll(
		func(realCount int, seed uint64) bool {
			pool := candidates(realCount, 100-realCount, 0)
			winners, err := PickWinners(newSource(seed), pool, realCount, 100, Strict)
			if err != nil {
				// Strict may only fail when a required role is short.
				return errors.Is(err, domain.ErrRoleUnavailable) && (realCount < 3 || 100-realCount < 3)
			}
			reqs := Requirements(RealPercent(realCount, 100))
			seen := map[uuid.UUID]bool{}
			for i, w := range winners {
				if !reqs[i].accepts(w.Role) || seen[w.UserID] {
					return false
				}
				seen[w.UserID] = true
			}
			return len(winners) == WinnerCount
		},
		gen.IntRange(0, 100),
		gen.UInt64(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
