// Package selection scores tickets and picks the three winners of a pool under the
// role-mix policy. It performs no I/O; every random decision goes through a Source so
// tests can make selection deterministic.
package selection

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/luckypool/pool-service/internal/domain"
)

// Source is the random source used for draws and tie-breaks. *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// Mode controls what happens when a position's required role has no candidate left.
type Mode string

const (
	// Lenient substitutes the best remaining candidate of any role.
	Lenient Mode = "lenient"
	// Strict fails the settlement.
	Strict Mode = "strict"
)

// ParseMode maps a config value to a Mode, defaulting to Lenient.
func ParseMode(value string) Mode {
	if Mode(value) == Strict {
		return Strict
	}
	return Lenient
}

const (
	WinnerCount = 3
	// DummyScore ranks synthetic users below every real ticket.
	DummyScore = -1
	drawRange  = 100
)

// Requirement is the role a winner position must be filled with.
type Requirement int

const (
	RequireAny Requirement = iota
	RequireReal
	RequireDummy
)

func (r Requirement) String() string {
	switch r {
	case RequireReal:
		return "real"
	case RequireDummy:
		return "dummy"
	default:
		return "any"
	}
}

func (r Requirement) accepts(role domain.Role) bool {
	switch r {
	case RequireReal:
		return role == domain.RoleUser
	case RequireDummy:
		return role == domain.RoleDummy
	default:
		return true
	}
}

// Candidate is one user eligible to win.
type Candidate struct {
	UserID       uuid.UUID
	Role         domain.Role
	Score        int
	TicketNumber int
}

// Winner is a candidate placed at a prize position (1 is the top prize).
type Winner struct {
	Candidate
	Position int
}

// Score simulates draws uniform draws in [0,99] and counts how many equal userNumber.
func Score(src Source, userNumber, draws int) int {
	score := 0
	for i := 0; i < draws; i++ {
		if src.IntN(drawRange) == userNumber {
			score++
		}
	}
	return score
}

// BuildCandidates turns the settlement population into candidates. Each real participant
// contributes the first of their tickets in list order; tickets of users outside participants
// are ignored. Dummy users not already present are appended with DummyScore.
func BuildCandidates(src Source, tickets []domain.Ticket, participants []uuid.UUID, dummies []uuid.UUID) []Candidate {
	eligible := make(map[uuid.UUID]struct{}, len(participants))
	for _, id := range participants {
		eligible[id] = struct{}{}
	}

	seen := make(map[uuid.UUID]struct{}, len(participants)+len(dummies))
	candidates := make([]Candidate, 0, len(participants)+len(dummies))
	for _, ticket := range tickets {
		if _, ok := eligible[ticket.UserID]; !ok {
			continue
		}
		if _, dup := seen[ticket.UserID]; dup {
			continue
		}
		seen[ticket.UserID] = struct{}{}
		candidates = append(candidates, Candidate{
			UserID:       ticket.UserID,
			Role:         domain.RoleUser,
			Score:        Score(src, ticket.UserNumber, ticket.DrawNumber),
			TicketNumber: ticket.UserNumber,
		})
	}

	for _, id := range dummies {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, Candidate{UserID: id, Role: domain.RoleDummy, Score: DummyScore})
	}
	return candidates
}

// RealPercent is the share of the settlement population made of real participants.
func RealPercent(realCount, population int) float64 {
	if population <= 0 {
		return 0
	}
	return float64(realCount) / float64(population) * 100
}

// Requirements returns the role required at positions 1, 2 and 3.
func Requirements(realPercent float64) [WinnerCount]Requirement {
	switch {
	case realPercent < 50:
		return [WinnerCount]Requirement{RequireDummy, RequireDummy, RequireDummy}
	case realPercent < 70:
		return [WinnerCount]Requirement{RequireAny, RequireAny, RequireReal}
	case realPercent < 90:
		return [WinnerCount]Requirement{RequireAny, RequireReal, RequireReal}
	default:
		return [WinnerCount]Requirement{RequireReal, RequireReal, RequireReal}
	}
}

// PickWinners fills positions 1..3 in order with the highest-scoring unused candidate
// allowed by the role requirement, breaking ties uniformly at random.
func PickWinners(src Source, candidates []Candidate, realCount, population int, mode Mode) ([]Winner, error) {
	if countDistinct(candidates) < WinnerCount {
		return nil, fmt.Errorf("%w: have %d", domain.ErrInsufficientCandidates, countDistinct(candidates))
	}

	requirements := Requirements(RealPercent(realCount, population))
	used := make(map[uuid.UUID]bool, WinnerCount)
	winners := make([]Winner, 0, WinnerCount)

	for i, requirement := range requirements {
		pick, ok := best(src, candidates, used, requirement)
		if !ok {
			if mode == Strict {
				return nil, fmt.Errorf("%w: position %d requires %s", domain.ErrRoleUnavailable, i+1, requirement)
			}
			pick, ok = best(src, candidates, used, RequireAny)
			if !ok {
				return nil, domain.ErrInsufficientCandidates
			}
		}
		used[pick.UserID] = true
		winners = append(winners, Winner{Candidate: pick, Position: i + 1})
	}
	return winners, nil
}

func best(src Source, candidates []Candidate, used map[uuid.UUID]bool, requirement Requirement) (Candidate, bool) {
	var top []Candidate
	for _, c := range candidates {
		if used[c.UserID] || !requirement.accepts(c.Role) {
			continue
		}
		switch {
		case len(top) == 0 || c.Score > top[0].Score:
			top = append(top[:0], c)
		case c.Score == top[0].Score:
			top = append(top, c)
		}
	}
	if len(top) == 0 {
		return Candidate{}, false
	}
	if len(top) == 1 {
		return top[0], true
	}
	return top[src.IntN(len(top))], true
}

func countDistinct(candidates []Candidate) int {
	ids := make(map[uuid.UUID]struct{}, len(candidates))
	for _, c := range candidates {
		ids[c.UserID] = struct{}{}
	}
	return len(ids)
}

var prizePercent = [WinnerCount]int64{25, 20, 15}

// PrizeAmount is floor(jackpot * share) for position 1..3, or 0 when jackpot <= 0.
func PrizeAmount(jackpot int64, position int) int64 {
	if jackpot <= 0 || position < 1 || position > WinnerCount {
		return 0
	}
	return jackpot * prizePercent[position-1] / 100
}
