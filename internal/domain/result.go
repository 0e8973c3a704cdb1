package domain

import (
	"time"

	"github.com/google/uuid"
)

// Result is the one-per-pool settlement record.
type Result struct {
	ID         int64     `json:"id"`
	PoolID     int64     `json:"pool_id"`
	PoolTitle  string    `json:"pool_title"`
	Jackpot    int64     `json:"jackpot"`
	DeclaredAt time.Time `json:"declared_at"`
}

// ResultWinner is one of the three prize positions of a Result.
type ResultWinner struct {
	ResultID    int64     `json:"result_id"`
	UserID      uuid.UUID `json:"user_id"`
	Position    int       `json:"position"`
	PrizeAmount int64     `json:"prize_amount"`
}

// WinnerDetail is the presentation view of a winner.
type WinnerDetail struct {
	Position    int       `json:"position"`
	UserID      uuid.UUID `json:"user_id"`
	Role        Role      `json:"role"`
	Score       int       `json:"score"`
	PrizeAmount int64     `json:"prize_amount"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	LuckyNumber int       `json:"lucky_number,omitempty"`
}

// Declaration is the outcome of declareResult. Skipped declarations carry only Reason.
type Declaration struct {
	Skipped        bool           `json:"skipped"`
	Reason         string         `json:"reason,omitempty"`
	PoolID         int64          `json:"pool_id"`
	ResultID       int64          `json:"result_id,omitempty"`
	Winners        []WinnerDetail `json:"winners,omitempty"`
	PrizePool      int64          `json:"prize_pool,omitempty"`
	TotalUsers     int            `json:"total_users,omitempty"`
	RealUsersUsed  int            `json:"real_users_used,omitempty"`
	DummyUsersUsed int            `json:"dummy_users_used,omitempty"`
}

const SkipReasonAlreadyDeclared = "already_declared"

// DeclarationBatch summarizes a declareResultsForAllExpiredPools run.
type DeclarationBatch struct {
	Processed int `json:"processed"`
	Declared  int `json:"declared"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
