package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/auctionhouse/internal/auctionerr"
	"github.com/mmeshcher/auctionhouse/internal/model"
	"github.com/mmeshcher/auctionhouse/internal/money"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	listingColumns = `id, seller_id, title, listing_type, starting_price, current_price, buy_now_price,
		end_date, state, buyer_id, sold_price, bid_count, ending_soon_notified, created_at, ended_at`
	bidColumns   = `listing_id, bidder_id, max_bid, placed_at, seq`
	orderColumns = `id, listing_id, checkout_batch_id, listing_title, seller_id, buyer_id, final_price,
		purchased_at, status, review_left_by_buyer, review_left_by_seller`
	reviewColumns = `id, order_id, reviewer_id, reviewee_id, rating, comment, created_at`
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	retryDelays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
// lockTimeout ограничивает ожидание блокировки строки лота.
func NewPostgresRepository(dsn string, lockTimeout time.Duration) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:        pool,
		lockTimeout: lockTimeout,
		retryDelays: []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 300 * time.Millisecond},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликте сериализации, дедлоке и обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(r.retryDelays); i++ {
		err = fn()
		if err == nil || i == len(r.retryDelays) || !isTransient(err) {
			return err
		}

		timer := time.NewTimer(r.retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.LockNotAvailable
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", auctionerr.ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctionerr.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(row scanner) (*model.Listing, error) {
	var (
		l               model.Listing
		listingType     string
		state           string
		starting, price int64
		buyNow, sold    *int64
		endDate         *time.Time
	)
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &listingType, &starting, &price, &buyNow,
		&endDate, &state, &l.BuyerID, &sold, &l.BidCount, &l.EndingSoonNotified, &l.CreatedAt, &l.EndedAt)
	if err != nil {
		return nil, err
	}

	l.Type = model.ListingType(listingType)
	l.State = model.ListingState(state)
	l.StartingPrice = money.FromCents(starting)
	l.CurrentPrice = money.FromCents(price)
	l.BuyNowPrice = optionalMoney(buyNow)
	l.SoldPrice = optionalMoney(sold)
	if endDate != nil {
		l.EndDate = *endDate
	}
	return &l, nil
}

func optionalMoney(cents *int64) *money.Money {
	if cents == nil {
		return nil
	}
	m := money.FromCents(*cents)
	return &m
}

func optionalCents(m *money.Money) *int64 {
	if m == nil {
		return nil
	}
	c := m.Cents()
	return &c
}

func scanBid(row scanner) (model.Bid, error) {
	var (
		b      model.Bid
		maxBid int64
	)
	if err := row.Scan(&b.ListingID, &b.BidderID, &maxBid, &b.PlacedAt, &b.Seq); err != nil {
		return model.Bid{}, err
	}
	b.MaxBid = money.FromCents(maxBid)
	return b, nil
}

func scanOrder(row scanner) (*model.Order, error) {
	var (
		o      model.Order
		price  int64
		status string
	)
	err := row.Scan(&o.ID, &o.ListingID, &o.CheckoutBatchID, &o.ListingTitle, &o.SellerID, &o.BuyerID,
		&price, &o.PurchasedAt, &status, &o.ReviewLeftByBuyer, &o.ReviewLeftBySeller)
	if err != nil {
		return nil, err
	}
	o.FinalPrice = money.FromCents(price)
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func scanReview(row scanner) (model.Review, error) {
	var rv model.Review
	err := row.Scan(&rv.ID, &rv.OrderID, &rv.ReviewerID, &rv.RevieweeID, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	return rv, err
}

// CreateListing сохраняет новый активный лот.
func (r *PostgresRepository) CreateListing(ctx context.Context, l model.Listing) (*model.Listing, error) {
	var endDate *time.Time
	if l.Type == model.ListingTypeAuction {
		endDate = &l.EndDate
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO listings (seller_id, title, listing_type, starting_price, current_price, buy_now_price, end_date, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+listingColumns,
		l.SellerID, l.Title, string(l.Type), l.StartingPrice.Cents(), l.CurrentPrice.Cents(),
		optionalCents(l.BuyNowPrice), endDate, string(model.ListingStateActive), l.CreatedAt,
	)
	created, err := scanListing(row)
	if err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	return created, nil
}

// GetListing возвращает лот по идентификатору.
func (r *PostgresRepository) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	l, err := scanListing(r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", auctionerr.ErrListingNotFound, id)
		}
		return nil, fmt.Errorf("select listing: %w", err)
	}
	return l, nil
}

// ListListings возвращает лоты по фильтру, новые первыми.
func (r *PostgresRepository) ListListings(ctx context.Context, f ListingFilter) ([]model.Listing, error) {
	var (
		conds []string
		args  []any
	)
	if f.State != "" {
		args = append(args, string(f.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("listing_type = $%d", len(args)))
	}
	if f.SellerID != 0 {
		args = append(args, f.SellerID)
		conds = append(conds, fmt.Sprintf("seller_id = $%d", len(args)))
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.limit())
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	defer rows.Close()

	var res []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		res = append(res, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ListBids возвращает ставки лота в порядке старшинства.
func (r *PostgresRepository) ListBids(ctx context.Context, listingID int64) ([]model.Bid, error) {
	return queryBids(ctx, r.pool, listingID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryBids(ctx context.Context, q querier, listingID int64) ([]model.Bid, error) {
	rows, err := q.Query(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE listing_id = $1 ORDER BY max_bid DESC, seq ASC`,
		listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("select bids: %w", err)
	}
	defer rows.Close()

	var res []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		res = append(res, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) selectIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select listing ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan listing id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

// ExpiredAuctions возвращает активные аукционы, срок которых наступил к now.
func (r *PostgresRepository) ExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	return r.selectIDs(ctx,
		`SELECT id FROM listings
		 WHERE state = $1 AND listing_type = $2 AND end_date <= $3
		 ORDER BY end_date
		 LIMIT $4`,
		string(model.ListingStateActive), string(model.ListingTypeAuction), now, limit,
	)
}

// AuctionsEndingSoon возвращает активные аукционы, заканчивающиеся в (now, until], без отправленного напоминания.
func (r *PostgresRepository) AuctionsEndingSoon(ctx context.Context, now, until time.Time, limit int) ([]int64, error) {
	return r.selectIDs(ctx,
		`SELECT id FROM listings
		 WHERE state = $1 AND listing_type = $2 AND end_date > $3 AND end_date <= $4 AND NOT ending_soon_notified
		 ORDER BY end_date
		 LIMIT $5`,
		string(model.ListingStateActive), string(model.ListingTypeAuction), now, until, limit,
	)
}

// InListingTx выполняет fn в транзакции с блокировкой строки лота (SELECT ... FOR UPDATE).
// Если блокировку не удалось получить за lockTimeout, возвращается auctionerr.ErrBusy.
func (r *PostgresRepository) InListingTx(ctx context.Context, listingID int64, fn func(tx ListingTx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		timeout := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}

		l, err := scanListing(tx.QueryRow(ctx,
			`SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, listingID))
		if err != nil {
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				return fmt.Errorf("%w: %d", auctionerr.ErrListingNotFound, listingID)
			case isLockTimeout(err):
				return fmt.Errorf("%w: listing %d", auctionerr.ErrBusy, listingID)
			}
			return fmt.Errorf("lock listing for update: %w", err)
		}

		if err := fn(&pgListingTx{tx: tx, listing: *l}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

type pgListingTx struct {
	tx      pgx.Tx
	listing model.Listing
}

func (t *pgListingTx) Listing() model.Listing {
	return t.listing
}

func (t *pgListingTx) Bids(ctx context.Context) ([]model.Bid, error) {
	return queryBids(ctx, t.tx, t.listing.ID)
}

func (t *pgListingTx) SaveBid(ctx context.Context, b model.Bid) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bids (listing_id, bidder_id, max_bid, placed_at, seq) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (listing_id, bidder_id)
		 DO UPDATE SET max_bid = EXCLUDED.max_bid, placed_at = EXCLUDED.placed_at, seq = EXCLUDED.seq`,
		b.ListingID, b.BidderID, b.MaxBid.Cents(), b.PlacedAt, b.Seq,
	)
	if err != nil {
		return fmt.Errorf("upsert bid: %w", err)
	}
	return nil
}

func (t *pgListingTx) UpdateListing(ctx context.Context, l model.Listing) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE listings
		 SET current_price = $2, state = $3, buyer_id = $4, sold_price = $5, bid_count = $6,
		     ending_soon_notified = $7, ended_at = $8
		 WHERE id = $1`,
		l.ID, l.CurrentPrice.Cents(), string(l.State), l.BuyerID, optionalCents(l.SoldPrice), l.BidCount,
		l.EndingSoonNotified, l.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	t.listing = l
	return nil
}

func (t *pgListingTx) FindOrder(ctx context.Context, key model.SettlementKey) (*model.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE listing_id = $1 AND checkout_batch_id = $2`,
		key.ListingID, key.BatchID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return o, nil
}

// InsertOrder вставляет заказ; при конфликте ключа (listing_id, checkout_batch_id) возвращает существующий.
func (t *pgListingTx) InsertOrder(ctx context.Context, o *model.Order) (*model.Order, error) {
	cmdTag, err := t.tx.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (listing_id, checkout_batch_id) DO NOTHING`,
		o.ID, o.ListingID, o.CheckoutBatchID, o.ListingTitle, o.SellerID, o.BuyerID, o.FinalPrice.Cents(),
		o.PurchasedAt, string(o.Status), o.ReviewLeftByBuyer, o.ReviewLeftBySeller,
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return o, nil
	}

	existing, err := t.FindOrder(ctx, o.Key())
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("order %s vanished after conflict", o.Key())
	}
	return existing, nil
}

func (t *pgListingTx) Watchers(ctx context.Context) ([]int64, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT user_id FROM watchlist WHERE listing_id = $1 ORDER BY user_id`, t.listing.ID)
	if err != nil {
		return nil, fmt.Errorf("select watchers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan watcher: %w", err)
	}
	return ids, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", auctionerr.ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return o, nil
}

// GetOrdersByUser возвращает заказы, где пользователь покупатель или продавец.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE buyer_id = $1 OR seller_id = $1
		 ORDER BY purchased_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateOrderStatus переводит заказ в next, только если текущий статус это допускает.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID string, next model.OrderStatus) (*model.Order, error) {
	var from []string
	for _, s := range model.PredecessorsOf(next) {
		from = append(from, string(s))
	}

	o, err := scanOrder(r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 AND status = ANY($3) RETURNING `+orderColumns,
		orderID, string(next), from,
	))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if _, err := r.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: order %s to %s", auctionerr.ErrInvalidStatusTransition, orderID, next)
}

// LeaveReview создаёт отзыв и помечает слот стороны заказа в одной транзакции.
// Строка заказа блокируется, поэтому повторный отзыв получает auctionerr.ErrAlreadyReviewed.
func (r *PostgresRepository) LeaveReview(ctx context.Context, rv model.Review, role model.ReviewerRole) (*model.Review, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var byBuyer, bySeller bool
	err = tx.QueryRow(ctx,
		`SELECT review_left_by_buyer, review_left_by_seller FROM orders WHERE id = $1 FOR UPDATE`,
		rv.OrderID,
	).Scan(&byBuyer, &bySeller)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", auctionerr.ErrOrderNotFound, rv.OrderID)
		}
		return nil, fmt.Errorf("lock order for update: %w", err)
	}

	flagColumn := "review_left_by_buyer"
	alreadyLeft := byBuyer
	if role == model.ReviewerSeller {
		flagColumn = "review_left_by_seller"
		alreadyLeft = bySeller
	}
	if alreadyLeft {
		return nil, fmt.Errorf("%w: order %s by %s", auctionerr.ErrAlreadyReviewed, rv.OrderID, role)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rv.ID, rv.OrderID, rv.ReviewerID, rv.RevieweeID, rv.Rating, rv.Comment, rv.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: order %s by %s", auctionerr.ErrAlreadyReviewed, rv.OrderID, role)
		}
		return nil, fmt.Errorf("insert review: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET `+flagColumn+` = TRUE WHERE id = $1`, rv.OrderID); err != nil {
		return nil, fmt.Errorf("flag review: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &rv, nil
}

// GetReviewsForUser возвращает отзывы, оставленные о пользователе.
func (r *PostgresRepository) GetReviewsForUser(ctx context.Context, userID int64) ([]model.Review, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE reviewee_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	var res []model.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		res = append(res, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// AddToWatchlist добавляет лот в список наблюдения. Повторное добавление не меняет время добавления.
func (r *PostgresRepository) AddToWatchlist(ctx context.Context, userID, listingID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO watchlist (user_id, listing_id) VALUES ($1, $2) ON CONFLICT (user_id, listing_id) DO NOTHING`,
		userID, listingID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation &&
			pgErr.ConstraintName == "watchlist_listing_id_fkey" {
			return fmt.Errorf("%w: %d", auctionerr.ErrListingNotFound, listingID)
		}
		return fmt.Errorf("insert watchlist item: %w", err)
	}
	return nil
}

// RemoveFromWatchlist убирает лот из списка наблюдения. Отсутствие записи ошибкой не считается.
func (r *PostgresRepository) RemoveFromWatchlist(ctx context.Context, userID, listingID int64) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM watchlist WHERE user_id = $1 AND listing_id = $2`, userID, listingID); err != nil {
		return fmt.Errorf("delete watchlist item: %w", err)
	}
	return nil
}

// GetWatchlist возвращает наблюдаемые лоты, последние добавленные первыми.
func (r *PostgresRepository) GetWatchlist(ctx context.Context, userID int64) ([]model.Listing, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+listingColumns+`
		 FROM listings JOIN watchlist ON watchlist.listing_id = listings.id
		 WHERE watchlist.user_id = $1
		 ORDER BY watchlist.added_at DESC, listings.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select watchlist: %w", err)
	}
	defer rows.Close()

	var res []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		res = append(res, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
