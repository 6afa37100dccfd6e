// Package dbpool provides a bounded pool of database connections with
// retrying execution, transaction wrapping and broken-connection recovery.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"solana-trade-tracker/internal/observability"
)

// Operation is a unit of work run on a borrowed connection.
type Operation func(ctx context.Context, conn *Conn) error

// TxFunc is a unit of work run inside a transaction.
type TxFunc func(ctx context.Context, tx *Tx) error

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Total int
	InUse int
}

// Pool is a fixed-capacity set of connections to one database.
// A connection is either free or in use, never both.
type Pool struct {
	dialect Dialect
	cfg     Config
	log     *logrus.Entry

	mu     sync.Mutex
	conns  []*Conn
	inUse  map[*Conn]struct{}
	nextID int
}

// New creates an empty pool. Call Initialize before use.
func New(dialect Dialect, cfg Config, logger *logrus.Logger) *Pool {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Pool{
		dialect: dialect,
		cfg:     cfg.withDefaults(),
		log:     logger.WithFields(logrus.Fields{"component": "dbpool", "database": dialect.Name()}),
		inUse:   make(map[*Conn]struct{}),
	}
}

// Config returns the effective configuration.
func (p *Pool) Config() Config { return p.cfg }

// Dialect returns the dialect the pool was built with.
func (p *Pool) Dialect() Dialect { return p.dialect }

// Initialize opens connections until the pool holds MaxConnections.
//
// While the pool is empty every failure counts toward MaxRetries and exceeding
// it returns ErrPoolInit. Once one connection exists a slot that fails
// MaxRetries+1 times in a row is abandoned and the pool runs below capacity.
func (p *Pool) Initialize(ctx context.Context) error {
	failures := 0
	consecutive := 0

	for p.size() < p.cfg.MaxConnections {
		conn, err := p.openConn(ctx)
		if err == nil {
			p.mu.Lock()
			p.conns = append(p.conns, conn)
			p.mu.Unlock()
			consecutive = 0
			continue
		}

		p.log.WithError(err).Error("failed to create connection")

		if p.size() == 0 {
			failures++
			if failures > p.cfg.MaxRetries {
				return fmt.Errorf("%w: %w", ErrPoolInit, err)
			}
		} else {
			consecutive++
			if consecutive > p.cfg.MaxRetries {
				p.log.WithFields(logrus.Fields{
					"connections": p.size(),
					"capacity":    p.cfg.MaxConnections,
				}).Warn("connection pool running with reduced capacity")
				break
			}
		}

		if err := sleep(ctx, p.cfg.RetryDelay); err != nil {
			return fmt.Errorf("%w: %w", ErrPoolInit, err)
		}
	}

	p.updateGauges()
	p.log.WithField("connections", p.size()).Info("connection pool initialized")
	return nil
}

// GetConnection borrows a free connection. When none is free it waits
// RetryDelay and rescans, at most retries times. retries = 0 tries once.
func (p *Pool) GetConnection(ctx context.Context, retries int) (*Conn, error) {
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if conn := p.tryAcquire(); conn != nil {
			observability.RecordPoolAcquire(p.dialect.Name(), time.Since(start).Seconds(), false)
			return conn, nil
		}
		if attempt >= retries {
			break
		}
		if err := sleep(ctx, p.cfg.RetryDelay); err != nil {
			return nil, fmt.Errorf("acquire connection: %w", err)
		}
	}

	observability.RecordPoolAcquire(p.dialect.Name(), time.Since(start).Seconds(), true)
	return nil, fmt.Errorf("%w after %d retries", ErrPoolExhausted, retries)
}

func (p *Pool) tryAcquire() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.conns {
		if _, busy := p.inUse[c]; !busy {
			p.inUse[c] = struct{}{}
			p.updateGaugesLocked()
			return c
		}
	}
	return nil
}

// ReleaseConnection returns conn to the free set. Releasing a nil, unknown or
// already released connection is a no-op.
func (p *Pool) ReleaseConnection(conn *Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inUse[conn]; !ok {
		return
	}
	delete(p.inUse, conn)
	p.updateGaugesLocked()
}

// Execute runs op with the configured number of attempts.
func (p *Pool) Execute(ctx context.Context, op Operation) error {
	return p.ExecuteWithRetry(ctx, op, p.cfg.OperationRetries)
}

// ExecuteWithRetry runs op up to retries times. Each attempt borrows a
// connection and is bounded by ConnectionTimeout. Connection-class failures
// replace the connection before the next attempt. Attempts are separated by
// exponential backoff.
func (p *Pool) ExecuteWithRetry(ctx context.Context, op Operation, retries int) error {
	if retries < 1 {
		retries = 1
	}
	bo := p.newBackOff()

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		conn, err := p.GetConnection(ctx, p.cfg.AcquireRetries)
		if err != nil {
			return err
		}

		var detached bool
		detached, lastErr = p.run(ctx, conn, op)
		if lastErr == nil {
			p.ReleaseConnection(conn)
			return nil
		}

		kind := KindOf(lastErr)
		p.log.WithError(lastErr).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"of":      retries,
			"kind":    kind.String(),
		}).Warn("database operation failed")

		switch {
		case detached:
			// conn stays borrowed until the abandoned op returns.
		case kind.IsConnectionError():
			if err := p.recoverConnection(ctx, conn); err != nil {
				return err
			}
		default:
			p.ReleaseConnection(conn)
		}

		if ctx.Err() != nil {
			return fmt.Errorf("database operation aborted: %w", ctx.Err())
		}
		if attempt < retries-1 {
			observability.RecordDBRetry(p.dialect.Name())
			if err := sleep(ctx, bo.NextBackOff()); err != nil {
				return fmt.Errorf("database operation aborted: %w", err)
			}
		}
	}

	return &RetryError{Attempts: retries, Last: lastErr}
}

// run executes one attempt bounded by ConnectionTimeout. The deadline
// propagates into the driver, and run also stops waiting once it passes, so an
// op that ignores its context cannot hold the caller. In that case run reports
// detached and conn is released only after op finally returns.
func (p *Pool) run(ctx context.Context, conn *Conn, op Operation) (detached bool, err error) {
	opCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
	defer cancel()

	start := time.Now()
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- &opPanic{value: r}
			}
		}()
		result <- op(opCtx, conn)
	}()

	select {
	case err = <-result:
	case <-opCtx.Done():
		select {
		case err = <-result:
		default:
			detached = true
			err = opCtx.Err()
			go func() {
				<-result
				p.ReleaseConnection(conn)
			}()
		}
	}

	var pe *opPanic
	if errors.As(err, &pe) {
		p.ReleaseConnection(conn)
		panic(pe.value)
	}

	if err != nil {
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = &Error{
				Kind: KindTimeout,
				Op:   "query",
				Err:  fmt.Errorf("timeout after %s: %w", p.cfg.ConnectionTimeout, err),
			}
		} else {
			err = classify(p.dialect, "query", err)
		}
	}
	observability.RecordDBQuery(p.dialect.Name(), KindOf(err).String(), time.Since(start).Seconds(), err)
	return detached, err
}

// opPanic carries a panic out of the goroutine running an Operation so it
// resurfaces on the caller's goroutine.
type opPanic struct {
	value any
}

func (e *opPanic) Error() string { return fmt.Sprintf("operation panicked: %v", e.value) }

// recoverConnection drops broken from the pool and appends a fresh connection.
func (p *Pool) recoverConnection(ctx context.Context, broken *Conn) error {
	p.mu.Lock()
	delete(p.inUse, broken)
	for i, c := range p.conns {
		if c == broken {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			break
		}
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	if err := broken.close(); err != nil {
		p.log.WithError(err).WithField("conn", broken.id).Warn("failed to close broken connection")
	}

	replacement, err := p.openConn(context.WithoutCancel(ctx))
	observability.RecordConnectionRecovery(p.dialect.Name(), err)
	if err != nil {
		p.log.WithError(err).Error("failed to replace broken connection")
		return fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
	}

	p.mu.Lock()
	p.conns = append(p.conns, replacement)
	p.updateGaugesLocked()
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{"old": broken.id, "new": replacement.id}).Info("replaced broken connection")
	return nil
}

// Transaction runs fn between BEGIN and COMMIT on one borrowed connection.
// If fn fails the transaction is rolled back and fn's error is returned
// unchanged. A panic in fn also rolls back before it propagates. The
// connection is released in every case.
func (p *Pool) Transaction(ctx context.Context, fn TxFunc) error {
	conn, err := p.GetConnection(ctx, p.cfg.AcquireRetries)
	if err != nil {
		return err
	}
	defer p.ReleaseConnection(conn)

	tx, err := conn.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Runs before the release above, so the connection never returns to the
	// pool with an open transaction.
	defer func() {
		if tx.Finalized() {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			p.log.WithError(rbErr).Warn("rollback failed")
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		// database/sql forgets the transaction after a failed COMMIT while the
		// database may still hold it open.
		if _, rbErr := conn.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
			p.log.WithError(rbErr).Debug("rollback after failed commit")
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CloseAll closes every connection and empties the pool. Close failures are
// logged, not returned.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.inUse = make(map[*Conn]struct{})
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, c := range conns {
		if err := c.close(); err != nil {
			p.log.WithError(err).WithField("conn", c.id).Warn("failed to close connection")
		}
	}
	p.log.WithField("closed", len(conns)).Info("connection pool closed")
}

// Classify returns the kind of err, consulting the dialect for errors that
// were not classified yet, such as those surfacing from Row.Scan.
func (p *Pool) Classify(err error) ErrorKind {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	return kindFor(p.dialect, err)
}

// Stats returns the current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Total: len(p.conns), InUse: len(p.inUse)}
}

func (p *Pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

func (p *Pool) openConn(ctx context.Context) (*Conn, error) {
	db, err := p.dialect.Open(ctx)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	raw, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquire %s connection: %w", p.dialect.Name(), err)
	}
	if err := p.dialect.Configure(ctx, raw, p.cfg.BusyTimeout); err != nil {
		raw.Close()
		db.Close()
		return nil, fmt.Errorf("configure %s connection: %w", p.dialect.Name(), err)
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.mu.Unlock()

	return &Conn{id: id, db: db, conn: raw, dialect: p.dialect}, nil
}

// newBackOff yields RetryDelay * 2^attempt capped at MaxBackoff.
func (p *Pool) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = p.cfg.BackoffJitter
	bo.MaxInterval = p.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (p *Pool) updateGauges() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateGaugesLocked()
}

func (p *Pool) updateGaugesLocked() {
	observability.UpdatePoolConnections(p.dialect.Name(), len(p.conns), len(p.inUse))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
