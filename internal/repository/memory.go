package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/auctionhouse/internal/auctionerr"
	"github.com/mmeshcher/auctionhouse/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется, когда DATABASE_URI не задан, и в тестах.
type MemoryRepository struct {
	lockTimeout time.Duration

	mu       sync.RWMutex
	locks    map[int64]chan struct{}
	users    map[string]model.User
	listings map[int64]model.Listing
	bids     map[int64]map[int64]model.Bid
	orders   map[string]model.Order
	byKey    map[model.SettlementKey]string
	reviews  []model.Review
	// watchers: лот -> пользователь -> время добавления.
	watchers map[int64]map[int64]time.Time

	nextUserID    int64
	nextListingID int64
}

// NewMemoryRepository создаёт пустое хранилище. lockTimeout ограничивает ожидание блокировки лота.
func NewMemoryRepository(lockTimeout time.Duration) *MemoryRepository {
	return &MemoryRepository{
		lockTimeout: lockTimeout,
		locks:       make(map[int64]chan struct{}),
		users:       make(map[string]model.User),
		listings:    make(map[int64]model.Listing),
		bids:        make(map[int64]map[int64]model.Bid),
		orders:      make(map[string]model.Order),
		byKey:       make(map[model.SettlementKey]string),
		watchers:    make(map[int64]map[int64]time.Time),
	}
}

func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[login]; ok {
		return 0, fmt.Errorf("%w: %s", auctionerr.ErrUserExists, login)
	}
	r.nextUserID++
	r.users[login] = model.User{
		ID:           r.nextUserID,
		Login:        login,
		PasswordHash: append([]byte(nil), passwordHash...),
		CreatedAt:    time.Now().UTC(),
	}
	return r.nextUserID, nil
}

func (r *MemoryRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[login]
	if !ok {
		return nil, auctionerr.ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) CreateListing(ctx context.Context, l model.Listing) (*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextListingID++
	l.ID = r.nextListingID
	l.State = model.ListingStateActive
	r.listings[l.ID] = l
	r.locks[l.ID] = make(chan struct{}, 1)
	return &l, nil
}

func (r *MemoryRepository) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", auctionerr.ErrListingNotFound, id)
	}
	return &l, nil
}

func (r *MemoryRepository) ListListings(ctx context.Context, f ListingFilter) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Listing
	for _, l := range r.listings {
		if f.State != "" && l.State != f.State {
			continue
		}
		if f.Type != "" && l.Type != f.Type {
			continue
		}
		if f.SellerID != 0 && l.SellerID != f.SellerID {
			continue
		}
		res = append(res, l)
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	if len(res) > f.limit() {
		res = res[:f.limit()]
	}
	return res, nil
}

func (r *MemoryRepository) ListBids(ctx context.Context, listingID int64) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedBids(r.bids[listingID]), nil
}

func sortedBids(m map[int64]model.Bid) []model.Bid {
	res := make([]model.Bid, 0, len(m))
	for _, b := range m {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		if c := res[i].MaxBid.Cmp(res[j].MaxBid); c != 0 {
			return c > 0
		}
		return res[i].Seq < res[j].Seq
	})
	return res
}

func (r *MemoryRepository) auctionIDs(limit int, match func(l model.Listing) bool) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []model.Listing
	for _, l := range r.listings {
		if l.State == model.ListingStateActive && l.Type == model.ListingTypeAuction && match(l) {
			found = append(found, l)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].EndDate.Before(found[j].EndDate) })

	ids := make([]int64, 0, len(found))
	for i, l := range found {
		if limit > 0 && i == limit {
			break
		}
		ids = append(ids, l.ID)
	}
	return ids
}

func (r *MemoryRepository) ExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	return r.auctionIDs(limit, func(l model.Listing) bool {
		return !l.EndDate.After(now)
	}), nil
}

func (r *MemoryRepository) AuctionsEndingSoon(ctx context.Context, now, until time.Time, limit int) ([]int64, error) {
	return r.auctionIDs(limit, func(l model.Listing) bool {
		return l.EndDate.After(now) && !l.EndDate.After(until) && !l.EndingSoonNotified
	}), nil
}

func (r *MemoryRepository) lockListing(ctx context.Context, listingID int64) (func(), error) {
	r.mu.RLock()
	lock, ok := r.locks[listingID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", auctionerr.ErrListingNotFound, listingID)
	}

	timer := time.NewTimer(r.lockTimeout)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: listing %d", auctionerr.ErrBusy, listingID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InListingTx выполняет fn под блокировкой лота. Изменения копятся в memListingTx
// и применяются только при успешном завершении fn.
func (r *MemoryRepository) InListingTx(ctx context.Context, listingID int64, fn func(tx ListingTx) error) error {
	unlock, err := r.lockListing(ctx, listingID)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.RLock()
	l := r.listings[listingID]
	r.mu.RUnlock()

	tx := &memListingTx{
		repo:    r,
		listing: l,
		bids:    make(map[int64]model.Bid),
		orders:  make(map[model.SettlementKey]model.Order),
	}
	if err := fn(tx); err != nil {
		return err
	}

	r.commit(tx)
	return nil
}

func (r *MemoryRepository) commit(tx *memListingTx) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tx.listingDirty {
		r.listings[tx.listing.ID] = tx.listing
	}
	if len(tx.bids) > 0 {
		stored, ok := r.bids[tx.listing.ID]
		if !ok {
			stored = make(map[int64]model.Bid)
			r.bids[tx.listing.ID] = stored
		}
		for bidderID, b := range tx.bids {
			stored[bidderID] = b
		}
	}
	for key, o := range tx.orders {
		r.orders[o.ID] = o
		r.byKey[key] = o.ID
	}
}

type memListingTx struct {
	repo         *MemoryRepository
	listing      model.Listing
	listingDirty bool
	bids         map[int64]model.Bid
	orders       map[model.SettlementKey]model.Order
}

func (t *memListingTx) Listing() model.Listing {
	return t.listing
}

func (t *memListingTx) Bids(ctx context.Context) ([]model.Bid, error) {
	t.repo.mu.RLock()
	merged := make(map[int64]model.Bid, len(t.repo.bids[t.listing.ID])+len(t.bids))
	for id, b := range t.repo.bids[t.listing.ID] {
		merged[id] = b
	}
	t.repo.mu.RUnlock()

	for id, b := range t.bids {
		merged[id] = b
	}
	return sortedBids(merged), nil
}

func (t *memListingTx) SaveBid(ctx context.Context, b model.Bid) error {
	t.bids[b.BidderID] = b
	return nil
}

func (t *memListingTx) UpdateListing(ctx context.Context, l model.Listing) error {
	t.listing = l
	t.listingDirty = true
	return nil
}

func (t *memListingTx) FindOrder(ctx context.Context, key model.SettlementKey) (*model.Order, error) {
	if o, ok := t.orders[key]; ok {
		return &o, nil
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()

	id, ok := t.repo.byKey[key]
	if !ok {
		return nil, nil
	}
	o := t.repo.orders[id]
	return &o, nil
}

func (t *memListingTx) InsertOrder(ctx context.Context, o *model.Order) (*model.Order, error) {
	existing, err := t.FindOrder(ctx, o.Key())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	t.orders[o.Key()] = *o
	return o, nil
}

func (t *memListingTx) Watchers(ctx context.Context) ([]int64, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()

	ids := make([]int64, 0, len(t.repo.watchers[t.listing.ID]))
	for userID := range t.repo.watchers[t.listing.ID] {
		ids = append(ids, userID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemoryRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", auctionerr.ErrOrderNotFound, id)
	}
	return &o, nil
}

func (r *MemoryRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Order
	for _, o := range r.orders {
		if o.BuyerID == userID || o.SellerID == userID {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].PurchasedAt.After(res[j].PurchasedAt) })
	return res, nil
}

func (r *MemoryRepository) UpdateOrderStatus(ctx context.Context, orderID string, next model.OrderStatus) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", auctionerr.ErrOrderNotFound, orderID)
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: order %s to %s", auctionerr.ErrInvalidStatusTransition, orderID, next)
	}
	o.Status = next
	r.orders[orderID] = o
	return &o, nil
}

func (r *MemoryRepository) LeaveReview(ctx context.Context, rv model.Review, role model.ReviewerRole) (*model.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[rv.OrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", auctionerr.ErrOrderNotFound, rv.OrderID)
	}

	flag := &o.ReviewLeftByBuyer
	if role == model.ReviewerSeller {
		flag = &o.ReviewLeftBySeller
	}
	if *flag {
		return nil, fmt.Errorf("%w: order %s by %s", auctionerr.ErrAlreadyReviewed, rv.OrderID, role)
	}
	*flag = true

	r.orders[rv.OrderID] = o
	r.reviews = append(r.reviews, rv)
	return &rv, nil
}

func (r *MemoryRepository) GetReviewsForUser(ctx context.Context, userID int64) ([]model.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Review
	for _, rv := range r.reviews {
		if rv.RevieweeID == userID {
			res = append(res, rv)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (r *MemoryRepository) AddToWatchlist(ctx context.Context, userID, listingID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[listingID]; !ok {
		return fmt.Errorf("%w: %d", auctionerr.ErrListingNotFound, listingID)
	}
	users, ok := r.watchers[listingID]
	if !ok {
		users = make(map[int64]time.Time)
		r.watchers[listingID] = users
	}
	if _, ok := users[userID]; !ok {
		users[userID] = time.Now().UTC()
	}
	return nil
}

func (r *MemoryRepository) RemoveFromWatchlist(ctx context.Context, userID, listingID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.watchers[listingID], userID)
	return nil
}

// GetWatchlist возвращает наблюдаемые лоты, последние добавленные первыми.
func (r *MemoryRepository) GetWatchlist(ctx context.Context, userID int64) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type watched struct {
		listing model.Listing
		addedAt time.Time
	}
	var items []watched
	for listingID, users := range r.watchers {
		if addedAt, ok := users[userID]; ok {
			items = append(items, watched{listing: r.listings[listingID], addedAt: addedAt})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].addedAt.Equal(items[j].addedAt) {
			return items[i].addedAt.After(items[j].addedAt)
		}
		return items[i].listing.ID > items[j].listing.ID
	})

	res := make([]model.Listing, 0, len(items))
	for _, it := range items {
		res = append(res, it.listing)
	}
	return res, nil
}
