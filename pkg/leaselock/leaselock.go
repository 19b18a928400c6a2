// Package leaselock provides expiring per-event leases in Postgres so that
// concurrent workers never assemble the same event at the same time.
//
// A lease is a row in event_leases owned by a random token. It expires after
// a TTL unless the holder renews it; a crashed worker therefore blocks an
// event for at most one TTL.
package leaselock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrBusy is returned when another worker holds the lease.
	ErrBusy = errors.New("event lease busy")
	// ErrLost is the cancel cause of a lease context whose lease expired or
	// was taken over.
	ErrLost = errors.New("event lease lost")
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Client struct {
	db dbConn
}

// Options tunes lease acquisition. TTL defaults to 5 minutes and the lease
// is renewed every TTL/2 unless RenewEvery is set. With Wait, Acquire polls
// every WaitInterval (plus up to WaitJitter) until the lease is free.
type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	TokenPrefix string
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = 250 * time.Millisecond
	}
	if o.WaitJitter < 0 {
		o.WaitJitter = 0
	}
	return o
}

// Lease is a held lease. Context is cancelled with ErrLost when renewal
// fails and with context.Canceled once the lease is released.
type Lease struct {
	Key   string
	Token string

	Context context.Context

	client *Client
	cancel context.CancelCauseFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{db: pool}
}

// EventKey is the lease key of an event.
func EventKey(eventID int64) string {
	return fmt.Sprintf("event:%d", eventID)
}

// EnsureSchema creates the lease table if it does not exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create event_leases: %w", err)
	}
	return nil
}

// WithEventLease runs fn while holding the lease of eventID. fn receives the
// lease context and should stop when it is cancelled.
func (c *Client) WithEventLease(ctx context.Context, eventID int64, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, EventKey(eventID), opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.WithoutCancel(ctx))
	}()
	return fn(lease.Context)
}

// Acquire takes the lease for key. Without opts.Wait it returns ErrBusy
// right away when the lease is held by someone else.
func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("event lease key is empty")
	}
	opts = opts.withDefaults()
	ttlMs := opts.TTL.Milliseconds()

	tok, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	token := opts.TokenPrefix + tok

	for {
		ok, err := c.tryAcquire(ctx, key, token, ttlMs)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrBusy
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}

	go l.renewLoop(opts.RenewEvery, ttlMs)

	return l, nil
}

func (c *Client) tryAcquire(ctx context.Context, key, token string, ttlMs int64) (bool, error) {
	var returnedKey string
	err := c.db.QueryRow(ctx, tryAcquireSQL, key, token, ttlMs).Scan(&returnedKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return returnedKey != "", nil
}

// Release stops renewal and deletes the lease row if it is still owned by
// this lease.
func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})

	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) renewLoop(every time.Duration, ttlMs int64) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renewOnce(ttlMs); err != nil {
				l.cancel(err)
				return
			}
		}
	}
}

func (l *Lease) renewOnce(ttlMs int64) error {
	for attempt := range 3 {
		renewCtx, cancel := context.WithTimeout(l.Context, 15*time.Second)
		var returnedKey string
		err := l.client.db.QueryRow(renewCtx, renewSQL, l.Key, l.Token, ttlMs).Scan(&returnedKey)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
		if attempt == 2 {
			return err
		}
		if err := sleepWithJitter(l.Context, 200*time.Millisecond, 0); err != nil {
			return err
		}
	}
	return ErrLost
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS event_leases (
    lease_key  TEXT PRIMARY KEY,
    leased_by  TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
`

const tryAcquireSQL = `
INSERT INTO event_leases (lease_key, leased_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lease_key) DO UPDATE
SET leased_by  = EXCLUDED.leased_by,
    expires_at = EXCLUDED.expires_at
WHERE event_leases.expires_at < now()
   OR event_leases.leased_by = EXCLUDED.leased_by
RETURNING lease_key;
`

const renewSQL = `
UPDATE event_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lease_key = $1 AND leased_by = $2
RETURNING lease_key;
`

const releaseSQL = `
DELETE FROM event_leases
WHERE lease_key = $1 AND leased_by = $2;
`
