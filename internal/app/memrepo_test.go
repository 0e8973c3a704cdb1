package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/luckypool/pool-service/internal/domain"
	"github.com/luckypool/pool-service/internal/store"
	"github.com/luckypool/pool-service/pkg/payoutclient"
	"github.com/sirupsen/logrus"
)

// memState is the in-memory database. Slices and maps are copied on every transaction so a
// failed TxFunc restores the previous state exactly.
type memState struct {
	users       map[uuid.UUID]domain.User
	admins      map[uuid.UUID]bool
	pools       map[int64]domain.Pool
	tickets     []domain.Ticket
	results     map[int64]domain.Result
	resultUsers map[int64][]uuid.UUID
	winners     []domain.ResultWinner
	withdraws   map[int64]domain.WithdrawRequest
	payments    map[int64]domain.Payment
	seq         int64
	tick        time.Time
}

func newMemState() memState {
	return memState{
		users:       map[uuid.UUID]domain.User{},
		admins:      map[uuid.UUID]bool{},
		pools:       map[int64]domain.Pool{},
		results:     map[int64]domain.Result{},
		resultUsers: map[int64][]uuid.UUID{},
		withdraws:   map[int64]domain.WithdrawRequest{},
		payments:    map[int64]domain.Payment{},
		tick:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s memState) clone() memState {
	out := s
	out.users = make(map[uuid.UUID]domain.User, len(s.users))
	for k, v := range s.users {
		out.users[k] = v
	}
	out.admins = make(map[uuid.UUID]bool, len(s.admins))
	for k, v := range s.admins {
		out.admins[k] = v
	}
	out.pools = make(map[int64]domain.Pool, len(s.pools))
	for k, v := range s.pools {
		out.pools[k] = v
	}
	out.tickets = append([]domain.Ticket(nil), s.tickets...)
	out.results = make(map[int64]domain.Result, len(s.results))
	for k, v := range s.results {
		out.results[k] = v
	}
	out.resultUsers = make(map[int64][]uuid.UUID, len(s.resultUsers))
	for k, v := range s.resultUsers {
		out.resultUsers[k] = append([]uuid.UUID(nil), v...)
	}
	out.winners = append([]domain.ResultWinner(nil), s.winners...)
	out.withdraws = make(map[int64]domain.WithdrawRequest, len(s.withdraws))
	for k, v := range s.withdraws {
		out.withdraws[k] = v
	}
	out.payments = make(map[int64]domain.Payment, len(s.payments))
	for k, v := range s.payments {
		out.payments[k] = v
	}
	return out
}

func (s *memState) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *memState) nextTime() time.Time {
	s.tick = s.tick.Add(time.Millisecond)
	return s.tick
}

// memRepo serializes every transaction on one mutex, which stands in for row locks.
type memRepo struct {
	mu    sync.Mutex
	state memState

	// forcedDuplicates makes the next N InsertTicket calls report a taken id.
	forcedDuplicates int
	ticketInserts    int
	txCount          int
	txErr            error
}

var _ store.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{state: newMemState()}
}

func (r *memRepo) InTx(ctx context.Context, fn store.TxFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++
	if r.txErr != nil {
		return r.txErr
	}
	backup := r.state.clone()
	if err := fn(ctx, &memTx{repo: r}); err != nil {
		r.state = backup
		return err
	}
	return nil
}

// seeding helpers

func (r *memRepo) addUser(role domain.Role, wallet int64) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.state.users[id] = domain.User{ID: id, FirstName: "First", LastName: id.String()[:8], Role: role, Wallet: wallet, CreatedAt: r.state.nextTime()}
	return id
}

func (r *memRepo) addAdmin() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.state.admins[id] = true
	return id
}

func (r *memRepo) addPool(title string, jackpot int64, status domain.PoolStatus) domain.Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.state.nextTime()
	pool := domain.Pool{
		ID:        r.state.nextID(),
		Title:     title,
		Jackpot:   jackpot,
		StartAt:   now.Add(-2 * time.Hour),
		ExpireAt:  now.Add(-time.Hour),
		Status:    status,
		CreatedAt: now,
	}
	if status != domain.PoolExpired {
		pool.ExpireAt = time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	r.state.pools[pool.ID] = pool
	return pool
}

func (r *memRepo) addTicket(userID uuid.UUID, poolTitle string, userNumber, drawNumber int) domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket := domain.Ticket{
		ID:            fmt.Sprintf("seed-%d", r.state.nextID()),
		UserID:        userID,
		PoolTitle:     poolTitle,
		UserNumber:    userNumber,
		DrawNumber:    drawNumber,
		TicketAmount:  10,
		PaymentStatus: domain.PaymentStatusSuccess,
		Status:        domain.TicketActive,
		CreatedAt:     r.state.nextTime(),
	}
	r.state.tickets = append(r.state.tickets, ticket)
	return ticket
}

func (r *memRepo) addWithdraw(userID uuid.UUID, amount int64, method domain.WithdrawMethod, status domain.WithdrawStatus) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := domain.WithdrawRequest{
		ID:     r.state.nextID(),
		UserID: userID,
		Amount: amount,
		Method: method,
		Status: status,
	}
	if method == domain.WithdrawUPI {
		req.Destination.UPIID = "player@upi"
	} else {
		req.Destination = domain.WithdrawDestination{BankAccount: "000123456789", IFSC: "HDFC0000001", AccountHolder: "Asha Rao"}
	}
	req.CreatedAt = r.state.nextTime()
	req.UpdatedAt = req.CreatedAt
	r.state.withdraws[req.ID] = req
	return req.ID
}

func (r *memRepo) wallet(userID uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.users[userID].Wallet
}

func (r *memRepo) withdraw(id int64) domain.WithdrawRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.withdraws[id]
}

func (r *memRepo) resultsForPool(poolID int64) []domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Result
	for _, res := range r.state.results {
		if res.PoolID == poolID {
			out = append(out, res)
		}
	}
	return out
}

func (r *memRepo) winnersForResult(resultID int64) []domain.ResultWinner {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ResultWinner
	for _, w := range r.state.winners {
		if w.ResultID == resultID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (r *memRepo) snapshotSize(resultID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.resultUsers[resultID])
}

func (r *memRepo) ticketCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.tickets)
}

// Repository

func (r *memRepo) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.state.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (r *memRepo) AdminExists(ctx context.Context, adminID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.admins[adminID], nil
}

func (r *memRepo) FindUsersByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]domain.User, len(userIDs))
	for _, id := range userIDs {
		if user, ok := r.state.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

func (r *memRepo) CreatePool(ctx context.Context, pool *domain.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.state.pools {
		if existing.Title == pool.Title {
			return domain.ErrPoolExists
		}
	}
	pool.ID = r.state.nextID()
	pool.CreatedAt = r.state.nextTime()
	r.state.pools[pool.ID] = *pool
	return nil
}

func (r *memRepo) FindPoolByTitle(ctx context.Context, title string) (*domain.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pool := range r.state.pools {
		if pool.Title == title {
			p := pool
			return &p, nil
		}
	}
	return nil, domain.ErrPoolNotFound
}

func (r *memRepo) ActivateStartedPools(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, pool := range r.state.pools {
		if pool.Status == domain.PoolUpcoming && !now.Before(pool.StartAt) && now.Before(pool.ExpireAt) {
			pool.Status = domain.PoolActive
			r.state.pools[id] = pool
			n++
		}
	}
	return n, nil
}

func (r *memRepo) ExpirePools(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, pool := range r.state.pools {
		if pool.Status != domain.PoolExpired && !now.Before(pool.ExpireAt) {
			pool.Status = domain.PoolExpired
			r.state.pools[id] = pool
			n++
		}
	}
	return n, nil
}

func (r *memRepo) ListExpiredPoolsWithoutResult(ctx context.Context) ([]domain.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	settled := map[int64]bool{}
	for _, res := range r.state.results {
		settled[res.PoolID] = true
	}
	var out []domain.Pool
	for _, pool := range r.state.pools {
		if pool.Status == domain.PoolExpired && !settled[pool.ID] {
			out = append(out, pool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) CreateWithdrawRequest(ctx context.Context, req *domain.WithdrawRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = r.state.nextID()
	req.CreatedAt = r.state.nextTime()
	req.UpdatedAt = req.CreatedAt
	r.state.withdraws[req.ID] = *req
	return nil
}

func (r *memRepo) FindWithdrawRequestByID(ctx context.Context, id int64) (*domain.WithdrawRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.state.withdraws[id]
	if !ok {
		return nil, domain.ErrWithdrawRequestNotFound
	}
	return &req, nil
}

func (r *memRepo) DecideWithdrawRequest(ctx context.Context, params domain.ApproveWithdrawParams, decidedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.state.withdraws[params.WithdrawID]
	if !ok || req.Status != domain.WithdrawPending {
		return false, nil
	}
	req.Status = params.Decision
	adminID := params.AdminID
	req.ApprovedBy = &adminID
	if params.AdminNote != "" {
		note := params.AdminNote
		req.AdminNote = &note
	}
	if params.Decision == domain.WithdrawApproved {
		req.ApprovedAt = &decidedAt
	} else {
		req.RejectedAt = &decidedAt
	}
	req.UpdatedAt = decidedAt
	r.state.withdraws[req.ID] = req
	return true, nil
}

func (r *memRepo) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment.ID = r.state.nextID()
	payment.CreatedAt = r.state.nextTime()
	payment.UpdatedAt = payment.CreatedAt
	r.state.payments[payment.ID] = *payment
	return nil
}

func (r *memRepo) MarkPaymentFailed(ctx context.Context, userID uuid.UUID, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.state.payments {
		if p.ProviderOrderID == orderID && p.UserID == userID && p.Status == domain.TopUpCreated {
			p.Status = domain.TopUpFailed
			r.state.payments[id] = p
		}
	}
	return nil
}

// memTx runs with repo.mu held by InTx.
type memTx struct {
	repo *memRepo
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) s() *memState { return &t.repo.state }

func (t *memTx) LockWallet(ctx context.Context, userID uuid.UUID) (int64, error) {
	user, ok := t.s().users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return user.Wallet, nil
}

func (t *memTx) AdjustWallet(ctx context.Context, userID uuid.UUID, delta int64) (int64, error) {
	user, ok := t.s().users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	if user.Wallet+delta < 0 {
		return 0, fmt.Errorf("wallet check constraint violated for %s", userID)
	}
	user.Wallet += delta
	t.s().users[userID] = user
	return user.Wallet, nil
}

func (t *memTx) LockUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, ok := t.s().users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (t *memTx) LockPool(ctx context.Context, poolID int64) (*domain.Pool, error) {
	pool, ok := t.s().pools[poolID]
	if !ok {
		return nil, domain.ErrPoolNotFound
	}
	return &pool, nil
}

func (t *memTx) ResultExistsForPool(ctx context.Context, poolID int64) (bool, error) {
	for _, res := range t.s().results {
		if res.PoolID == poolID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertResult(ctx context.Context, result *domain.Result) error {
	result.ID = t.s().nextID()
	t.s().results[result.ID] = *result
	return nil
}

func (t *memTx) ListPoolParticipants(ctx context.Context, poolTitle string, limit int) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, ticket := range t.s().tickets {
		if ticket.PoolTitle != poolTitle || ticket.Status != domain.TicketActive || seen[ticket.UserID] {
			continue
		}
		seen[ticket.UserID] = true
		out = append(out, ticket.UserID)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) ListDummyUsers(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, user := range t.s().users {
		if user.Role == domain.RoleDummy {
			out = append(out, user.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) InsertResultUsers(ctx context.Context, resultID int64, userIDs []uuid.UUID) error {
	t.s().resultUsers[resultID] = append(t.s().resultUsers[resultID], userIDs...)
	return nil
}

func (t *memTx) ListPoolTickets(ctx context.Context, poolTitle string) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range t.s().tickets {
		if ticket.PoolTitle == poolTitle && ticket.Status == domain.TicketActive {
			out = append(out, ticket)
		}
	}
	return out, nil
}

func (t *memTx) InsertResultWinners(ctx context.Context, winners []domain.ResultWinner) error {
	t.s().winners = append(t.s().winners, winners...)
	return nil
}

func (t *memTx) PurgeSettledPools(ctx context.Context) (domain.PurgeSummary, error) {
	var summary domain.PurgeSummary
	settled := map[int64]bool{}
	for _, res := range t.s().results {
		settled[res.PoolID] = true
	}
	purged := map[string]bool{}
	for id, pool := range t.s().pools {
		if pool.Status == domain.PoolExpired && settled[id] {
			purged[pool.Title] = true
			delete(t.s().pools, id)
			summary.PoolsDeleted++
		}
	}
	for i, ticket := range t.s().tickets {
		if purged[ticket.PoolTitle] && ticket.Status != domain.TicketExpired {
			t.s().tickets[i].Status = domain.TicketExpired
			summary.TicketsExpired++
		}
	}
	return summary, nil
}

func (t *memTx) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	t.repo.ticketInserts++
	if t.repo.forcedDuplicates > 0 {
		t.repo.forcedDuplicates--
		return store.ErrDuplicateTicketID
	}
	for _, existing := range t.s().tickets {
		if existing.ID == ticket.ID {
			return store.ErrDuplicateTicketID
		}
	}
	ticket.CreatedAt = t.s().nextTime()
	t.s().tickets = append(t.s().tickets, *ticket)
	return nil
}

func (t *memTx) LockWithdrawRequest(ctx context.Context, id int64) (*domain.WithdrawRequest, error) {
	req, ok := t.s().withdraws[id]
	if !ok {
		return nil, domain.ErrWithdrawRequestNotFound
	}
	return &req, nil
}

func (t *memTx) UpdateWithdrawStatus(ctx context.Context, id int64, from domain.WithdrawStatus, update domain.WithdrawStatusUpdate) error {
	req, ok := t.s().withdraws[id]
	if !ok || req.Status != from {
		return fmt.Errorf("%w: withdraw request %d is no longer %s", domain.ErrInvalidState, id, from)
	}
	req.Status = update.Status
	if update.FailureReason != nil {
		req.FailureReason = update.FailureReason
	}
	if update.PayoutID != nil {
		req.PayoutID = update.PayoutID
	}
	req.UpdatedAt = t.s().nextTime()
	t.s().withdraws[id] = req
	return nil
}

func (t *memTx) LockPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	for _, p := range t.s().payments {
		if p.ProviderOrderID == orderID {
			payment := p
			return &payment, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (t *memTx) MarkPaymentPaid(ctx context.Context, id int64, providerPaymentID, signature string) error {
	p, ok := t.s().payments[id]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	p.Status = domain.TopUpPaid
	p.ProviderPaymentID = &providerPaymentID
	p.ProviderSignature = &signature
	t.s().payments[id] = p
	return nil
}

// payoutStub is a scripted PayoutProvider.
type payoutStub struct {
	mu sync.Mutex

	existing  *payoutclient.Payout
	findErr   error
	payout    *payoutclient.Payout
	createErr error
	order     *payoutclient.Order
	orderErr  error
	validSig  bool

	findCalls   int
	createCalls int
	requests    []payoutclient.PayoutRequest
	keys        []string
	orders      []payoutclient.OrderRequest
}

func (p *payoutStub) CreatePayout(ctx context.Context, payload payoutclient.PayoutRequest, idempotencyKey string) (*payoutclient.Payout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	p.requests = append(p.requests, payload)
	p.keys = append(p.keys, idempotencyKey)
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.payout != nil {
		return p.payout, nil
	}
	return &payoutclient.Payout{ID: "pout_test", Status: "processing", Amount: payload.Amount, ReferenceID: payload.ReferenceID}, nil
}

func (p *payoutStub) FindPayoutByReference(ctx context.Context, referenceID string) (*payoutclient.Payout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.findCalls++
	return p.existing, p.findErr
}

func (p *payoutStub) CreateOrder(ctx context.Context, payload payoutclient.OrderRequest) (*payoutclient.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, payload)
	if p.orderErr != nil {
		return nil, p.orderErr
	}
	if p.order != nil {
		return p.order, nil
	}
	return &payoutclient.Order{ID: "order_test", Amount: payload.Amount, Currency: payload.Currency, Receipt: payload.Receipt, Status: "created"}, nil
}

func (p *payoutStub) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return p.validSig
}

type publishedEvent struct {
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{routingKey: routingKey, body: body})
	return p.err
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.routingKey == routingKey {
			n++
		}
	}
	return n
}

// sequenceSource returns values in order, then repeats the last one.
type sequenceSource struct {
	values []int
	i      int
}

func (s *sequenceSource) IntN(n int) int {
	v := 0
	if len(s.values) > 0 {
		if s.i < len(s.values) {
			v = s.values[s.i]
			s.i++
		} else {
			v = s.values[len(s.values)-1]
		}
	}
	return v % n
}

type testHarness struct {
	repo      *memRepo
	payouts   *payoutStub
	publisher *recordingPublisher
	svc       *Service
	now       time.Time
}

func newHarness(opts Options, options ...Option) *testHarness {
	h := &testHarness{
		repo:      newMemRepo(),
		payouts:   &payoutStub{validSig: true},
		publisher: &recordingPublisher{},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	base := []Option{WithClock(func() time.Time { return h.now })}
	h.svc = NewService(h.repo, h.payouts, h.publisher, logger, opts, append(base, options...)...)
	return h
}
