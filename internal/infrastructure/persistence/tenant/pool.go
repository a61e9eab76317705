package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultConnectTimeout bounds connection establishment when PoolConfig leaves it unset
const DefaultConnectTimeout = 10 * time.Second

// Dialer opens a GORM handle for dsn. It must return only once the database answered.
type Dialer func(ctx context.Context, dsn string) (*gorm.DB, error)

// PoolConfig configures a Pool
type PoolConfig struct {
	// BaseURL is the control database connection url; its path is replaced per database id
	BaseURL        string
	ConnectTimeout time.Duration
}

type handleState int

const (
	stateConnecting handleState = iota
	stateReady
	stateErrored
)

// handle is the pool entry of one database id. done is closed once establishment
// finished; state, db and err are guarded by the pool mutex.
type handle struct {
	databaseID string
	state      handleState
	db         *gorm.DB
	err        error
	done       chan struct{}
}

// Pool keeps one GORM handle per database id. Concurrent callers for the same id
// share a single in-flight connection attempt. Handles that report a connection-level
// error are evicted so the next Acquire reconnects; evicted handles stay open for
// operations still using them and are closed by Close.
type Pool struct {
	cfg     PoolConfig
	dial    Dialer
	logger  *zap.Logger
	metrics *Metrics

	mu      sync.Mutex
	handles map[string]*handle
	retired []*gorm.DB
	closed  bool
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithLogger sets the pool logger
func WithLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithMetrics sets the pool metrics
func WithMetrics(metrics *Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = metrics
	}
}

// NewPool creates an empty pool
func NewPool(cfg PoolConfig, dial Dialer, opts ...PoolOption) *Pool {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	p := &Pool{
		cfg:     cfg,
		dial:    dial,
		logger:  zap.NewNop(),
		handles: make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("tenant_pool")
	return p
}

// Acquire returns the handle for databaseID, connecting if needed. A ready handle is
// returned without touching the network. If a connection attempt is in flight the
// caller waits for it, or for ctx to end.
func (p *Pool) Acquire(ctx context.Context, databaseID string) (*gorm.DB, error) {
	if databaseID == "" {
		return nil, ErrEmptyDatabaseID
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	h, ok := p.handles[databaseID]
	if ok && h.state == stateReady {
		db := h.db
		p.mu.Unlock()
		return db, nil
	}
	if !ok || h.state == stateErrored {
		h = &handle{
			databaseID: databaseID,
			state:      stateConnecting,
			done:       make(chan struct{}),
		}
		p.handles[databaseID] = h
		p.metrics.setLive(len(p.handles))
		go p.establish(ctx, h)
	}
	p.mu.Unlock()

	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if h.state != stateReady {
		return nil, h.err
	}
	return h.db, nil
}

// establish connects h. It outlives the context of the caller that triggered it,
// since other callers may be waiting on the same handle; ConnectTimeout bounds it.
func (p *Pool) establish(parent context.Context, h *handle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.cfg.ConnectTimeout)
	defer cancel()

	p.metrics.dialAttempt()
	db, err := p.connect(ctx, h.databaseID)

	p.mu.Lock()
	var orphan *gorm.DB
	switch {
	case err != nil:
		h.state, h.err = stateErrored, err
		p.metrics.dialFailure()
		p.dropLocked(h)
	case p.closed:
		h.state, h.err = stateErrored, ErrPoolClosed
		orphan = db
	default:
		h.state, h.db = stateReady, db
	}
	close(h.done)
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("Failed to connect tenant database",
			zap.String("database_id", h.databaseID),
			zap.Error(err),
		)
	}
	if orphan != nil {
		closeHandle(orphan)
	}
}

func (p *Pool) connect(ctx context.Context, databaseID string) (*gorm.DB, error) {
	dsn, err := BuildDSN(p.cfg.BaseURL, databaseID)
	if err != nil {
		return nil, err
	}
	db, err := p.dial(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database %q: %w", databaseID, err)
	}
	if err := registerErrorObserver(db, func(cause error) { p.evict(databaseID, db, cause) }); err != nil {
		closeHandle(db)
		return nil, fmt.Errorf("register error observer for %q: %w", databaseID, err)
	}
	return db, nil
}

// evict removes the handle of databaseID if it still holds db. The handle is
// retired rather than closed: callers that already hold it may finish their work.
func (p *Pool) evict(databaseID string, db *gorm.DB, cause error) {
	p.mu.Lock()
	h, ok := p.handles[databaseID]
	if !ok || h.state != stateReady || h.db != db || p.closed {
		p.mu.Unlock()
		return
	}
	p.dropLocked(h)
	p.retired = append(p.retired, db)
	p.mu.Unlock()

	p.metrics.eviction()
	p.logger.Warn("Evicted tenant database handle after connection error",
		zap.String("database_id", databaseID),
		zap.Error(cause),
	)
}

func (p *Pool) dropLocked(h *handle) {
	if current, ok := p.handles[h.databaseID]; ok && current == h {
		delete(p.handles, h.databaseID)
		p.metrics.setLive(len(p.handles))
	}
}

// PoolStats is a snapshot of the pool
type PoolStats struct {
	Ready      int
	Connecting int
	Retired    int
}

// Stats returns a snapshot of the pool
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var s PoolStats
	for _, h := range p.handles {
		switch h.state {
		case stateReady:
			s.Ready++
		case stateConnecting:
			s.Connecting++
		}
	}
	s.Retired = len(p.retired)
	return s
}

// Close closes every ready and retired handle. Connection attempts still in flight
// close their handle when they finish. Acquire fails with ErrPoolClosed afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var dbs []*gorm.DB
	for _, h := range p.handles {
		if h.state == stateReady {
			dbs = append(dbs, h.db)
		}
	}
	dbs = append(dbs, p.retired...)
	p.handles = make(map[string]*handle)
	p.retired = nil
	p.metrics.setLive(0)
	p.mu.Unlock()

	var errs []error
	for _, db := range dbs {
		if err := closeHandle(db); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeHandle(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
