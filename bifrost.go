package bifrost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aadithya-v/bifrost/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SessionStore maps session keys to opaque payloads with a time-to-live,
// persisted in a relational table with soft-delete expiry.
//
// Rows are never removed: Delete and the sweeper only clear their alive
// flag. Save, Touch and Delete hold a per-key lock across their lookup and
// persist, so concurrent writers to one key do not lose updates.
type SessionStore struct {
	config  Config
	backend store.Backend
	locker  store.Locker
	logger  *zap.Logger
	metrics *metrics
	sweeper *cron.Cron

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// Open creates a SessionStore on backend with default configuration.
func Open(ctx context.Context, backend store.Backend) (*SessionStore, error) {
	return New(ctx, Config{Backend: backend})
}

// New creates a SessionStore with the given configuration.
// If Backend is not provided, an SQLite backend is opened at DatabasePath.
//
// The session table is created if absent. A failure to create it is logged
// and otherwise ignored, so a store on a pre-migrated database still opens.
func New(ctx context.Context, cfg Config) (*SessionStore, error) {
	cfg.applyDefaults()

	s := &SessionStore{
		config:  cfg,
		locker:  cfg.Locker,
		logger:  cfg.Logger.Named("bifrost"),
		metrics: newMetrics(cfg.Registerer),
	}

	ownBackend := false
	if cfg.Backend != nil {
		s.backend = cfg.Backend
	} else {
		sqlite, err := store.NewSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("bifrost: failed to initialize SQLite backend: %w", err)
		}
		s.backend = sqlite
		ownBackend = true
	}

	schemaCtx, cancel := s.queryContext(ctx)
	err := s.backend.CreateSchema(schemaCtx)
	cancel()
	if err != nil {
		s.logger.Warn("failed to create session schema, continuing", zap.Error(err))
	}

	if cfg.SweepSchedule != "" {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := c.AddFunc(cfg.SweepSchedule, s.backgroundSweep); err != nil {
			if ownBackend {
				s.backend.Close()
			}
			return nil, fmt.Errorf("bifrost: invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
		c.Start()
		s.sweeper = c
	}

	return s, nil
}

// Close stops the sweeper, waits for in-flight operations and releases the
// backend and locker. Operations after Close fail with ErrStoreClosed.
func (s *SessionStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.sweeper != nil {
		<-s.sweeper.Stop().Done()
	}
	s.inflight.Wait()

	var errs []error

	if err := s.locker.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := s.backend.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("bifrost: errors during close: %v", errs)
	}
	return nil
}

// Load returns the payload of the live session for sessionID.
// A missing session is not an error: Load returns nil, nil.
func (s *SessionStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	done, err := s.begin()
	if err != nil {
		return nil, opError(ErrLoadFailed, err)
	}
	defer done()

	return s.load(ctx, sessionID)
}

// Save stores data for sessionID. A new row with a fresh TTL is created
// when no live session exists; otherwise the live row's payload is replaced
// and its expiry left alone.
func (s *SessionStore) Save(ctx context.Context, sessionID string, data []byte) error {
	done, err := s.begin()
	if err != nil {
		return opError(ErrSaveFailed, err)
	}
	defer done()

	return s.save(ctx, sessionID, data)
}

// Touch extends the live session's expiry by the configured TTL.
// Touching a missing session does nothing and succeeds.
func (s *SessionStore) Touch(ctx context.Context, sessionID string) error {
	done, err := s.begin()
	if err != nil {
		return opError(ErrTouchFailed, err)
	}
	defer done()

	return s.touch(ctx, sessionID)
}

// Delete expires the live session for sessionID, then sweeps every expired
// row in the table. Deleting a missing session succeeds. Sweep failures are
// logged, not returned.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	done, err := s.begin()
	if err != nil {
		return opError(ErrDeleteFailed, err)
	}
	defer done()

	return s.delete(ctx, sessionID)
}

// Sweep marks every row whose expiry has passed as dead, across all session
// keys, and returns how many rows it changed.
func (s *SessionStore) Sweep(ctx context.Context) (int64, error) {
	done, err := s.begin()
	if err != nil {
		return 0, err
	}
	defer done()

	start := time.Now()
	n, err := s.sweep(ctx)
	s.metrics.observe("sweep", start, err)
	if err != nil {
		return 0, fmt.Errorf("bifrost: sweep failed: %w", err)
	}
	return n, nil
}

func (s *SessionStore) load(ctx context.Context, sessionID string) (data []byte, err error) {
	defer s.observe("load", time.Now(), &err)

	rec, err := s.findLive(ctx, sessionID)
	if err != nil {
		s.logger.Error("session lookup failed", zap.String("op", "load"), sessionField(sessionID), zap.Error(err))
		return nil, opError(ErrLoadFailed, err)
	}
	if rec == nil {
		s.metrics.absentTotal.WithLabelValues("load").Inc()
		s.logger.Info("could not retrieve session data", sessionField(sessionID))
		return nil, nil
	}
	return rec.Data, nil
}

func (s *SessionStore) save(ctx context.Context, sessionID string, data []byte) (err error) {
	defer s.observe("save", time.Now(), &err)

	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return opError(ErrSaveFailed, err)
	}
	defer unlock()

	rec, err := s.findLive(ctx, sessionID)
	if err != nil {
		s.logger.Error("session lookup failed", zap.String("op", "save"), sessionField(sessionID), zap.Error(err))
		return opError(ErrSaveFailed, err)
	}

	if rec == nil {
		rec = newRecordAt(s.config.Now(), sessionID, data, s.config.TTL)
	} else {
		rec.Data = data
	}

	if err := s.persist(ctx, rec); err != nil {
		s.logger.Error("failed to persist session", zap.String("op", "save"), sessionField(sessionID), zap.Error(err))
		return opError(ErrSaveFailed, err)
	}
	return nil
}

func (s *SessionStore) touch(ctx context.Context, sessionID string) (err error) {
	defer s.observe("touch", time.Now(), &err)

	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return opError(ErrTouchFailed, err)
	}
	defer unlock()

	rec, err := s.findLive(ctx, sessionID)
	if err != nil {
		s.logger.Error("session lookup failed", zap.String("op", "touch"), sessionField(sessionID), zap.Error(err))
		return opError(ErrTouchFailed, err)
	}
	if rec == nil {
		s.metrics.absentTotal.WithLabelValues("touch").Inc()
		return nil
	}

	rec.touchAt(s.config.Now(), s.config.TTL)
	if err := s.persist(ctx, rec); err != nil {
		s.logger.Error("failed to persist session", zap.String("op", "touch"), sessionField(sessionID), zap.Error(err))
		return opError(ErrTouchFailed, err)
	}
	return nil
}

func (s *SessionStore) delete(ctx context.Context, sessionID string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if err := s.expireLive(ctx, sessionID); err != nil {
		return opError(ErrDeleteFailed, err)
	}

	if _, err := s.sweep(ctx); err != nil {
		s.logger.Warn("failed to sweep expired sessions", zap.Error(err))
	}
	return nil
}

// expireLive clears the alive flag of the live row for sessionID, if any.
func (s *SessionStore) expireLive(ctx context.Context, sessionID string) error {
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := s.findLive(ctx, sessionID)
	if err != nil {
		s.logger.Error("session lookup failed", zap.String("op", "delete"), sessionField(sessionID), zap.Error(err))
		return err
	}
	if rec == nil {
		s.metrics.absentTotal.WithLabelValues("delete").Inc()
		return nil
	}

	rec.Expire()
	if err := s.persist(ctx, rec); err != nil {
		s.logger.Error("failed to persist session", zap.String("op", "delete"), sessionField(sessionID), zap.Error(err))
		return err
	}
	return nil
}

func (s *SessionStore) sweep(ctx context.Context) (int64, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	n, err := s.backend.ExpireBefore(ctx, epochSeconds(s.config.Now()))
	if err != nil {
		return 0, err
	}

	s.metrics.sweptTotal.Add(float64(n))
	if n > 0 {
		s.logger.Debug("swept expired sessions", zap.Int64("rows", n))
	}
	return n, nil
}

// backgroundSweep is the cron job behind SweepSchedule.
func (s *SessionStore) backgroundSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrStoreClosed) {
		s.logger.Warn("background sweep failed", zap.Error(err))
	}
}

// findLive returns the newest live record for sessionID, or nil if there is
// none. Query and decoding failures are returned, not treated as absence.
func (s *SessionStore) findLive(ctx context.Context, sessionID string) (*Record, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	row, err := s.backend.FindLive(ctx, sessionID, epochSeconds(s.config.Now()))
	if errors.Is(err, store.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Deserialize(*row)
}

// persist inserts rec if it has no id yet, otherwise updates it in place.
func (s *SessionStore) persist(ctx context.Context, rec *Record) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if rec.ID.Assigned() {
		return s.backend.Update(ctx, rec.Serialize())
	}

	id, err := s.backend.Insert(ctx, rec.Serialize())
	if err != nil {
		return err
	}
	rec.ID = NewRecordID(id)
	return nil
}

// begin registers an in-flight operation. The returned func must be called
// when the operation finishes.
func (s *SessionStore) begin() (func(), error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	s.inflight.Add(1)
	return s.inflight.Done, nil
}

func (s *SessionStore) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, s.config.QueryTimeout)
	}
	return ctx, func() {}
}

func (s *SessionStore) observe(op string, start time.Time, err *error) {
	s.metrics.observe(op, start, *err)
}

// sessionField logs a session key by prefix only; full keys are credentials.
func sessionField(sessionID string) zap.Field {
	const keep = 8
	if len(sessionID) > keep {
		sessionID = sessionID[:keep] + "..."
	}
	return zap.String("session", sessionID)
}
