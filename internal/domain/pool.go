/**
 * @description
 * Core domain models for the pool service: pools, tickets, users, results,
 * withdrawal requests and top-up payments.
 *
 * @notes
 * - Amounts are int64 whole currency units. The payout provider receives minor units.
 * - Status and role fields are closed string enumerations with Valid methods.
 */

package domain

import "time"

// PoolStatus is the lifecycle state of a pool.
type PoolStatus string

const (
	PoolUpcoming PoolStatus = "upcoming"
	PoolActive   PoolStatus = "active"
	PoolExpired  PoolStatus = "expired"
)


// Pool maps to the pools table.
type Pool struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Jackpot   int64      `json:"jackpot"`
	StartAt   time.Time  `json:"start_at"`
	ExpireAt  time.Time  `json:"expire_at"`
	Status    PoolStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// DerivePoolStatus is the clock rule for a pool's status.
func DerivePoolStatus(now, startAt, expireAt time.Time) PoolStatus {
	switch {
	case !now.Before(expireAt):
		return PoolExpired
	case !now.Before(startAt):
		return PoolActive
	default:
		return PoolUpcoming
	}
}

// CreatePoolParams is the input for an administrative pool creation.
type CreatePoolParams struct {
	Title    string    `json:"title"`
	Jackpot  int64     `json:"jackpot"`
	StartAt  time.Time `json:"start_at"`
	ExpireAt time.Time `json:"expire_at"`
}

// ExpirationSummary reports what advanceExpirations changed.
type ExpirationSummary struct {
	Activated int64 `json:"activated"`
	Expired   int64 `json:"expired"`
}

// PurgeSummary reports what purgeSettled removed.
type PurgeSummary struct {
	PoolsDeleted   int64 `json:"pools_deleted"`
	TicketsExpired int64 `json:"tickets_expired"`
}
