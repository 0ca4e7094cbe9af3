package session

import (
	"context"
	"errors"
	"time"

	"oraculo/oraculo/services/pagination"
	"oraculo/oraculo/types"
	apperrors "oraculo/oraculo/utils/errors"
	"oraculo/oraculo/utils/logging"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 2 * time.Hour
	// RecentLimit is how many durable conversations ListActive returns.
	RecentLimit = 20

	durableWriteTimeout = 5 * time.Second
)

type Options struct {
	CacheSize         int
	CacheTTL          time.Duration
	DegradedThreshold int
}

// Store is the two-tier session holder. Mutating calls (Put, Append, Clear)
// must run while the caller holds the session lock from Lock.
type Store struct {
	cache   *expirable.LRU[string, *Session]
	durable Durable
	coord   Coordinator
	group   singleflight.Group
	health  *durableHealth
	now     func() time.Time
}

func NewStore(durable Durable, coord Coordinator, opts Options) *Store {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if coord == nil {
		coord = NewLocalCoordinator()
	}
	return &Store{
		cache:   expirable.NewLRU[string, *Session](opts.CacheSize, nil, opts.CacheTTL),
		durable: durable,
		coord:   coord,
		health:  newDurableHealth(opts.DegradedThreshold),
		now:     time.Now,
	}
}

// Lock takes the per-session critical section.
func (s *Store) Lock(ctx context.Context, sessionID string) (func(), error) {
	return s.coord.Acquire(ctx, sessionID)
}

// Resolve returns the live session, reconstructing it from the durable tier
// on a cache miss. A session owned by someone else is reported as not found.
func (s *Store) Resolve(ctx context.Context, sessionID, ownerID string) (*Session, error) {
	gen, err := s.coord.Generation(ctx, sessionID)
	if err != nil {
		logging.ErrorLogger.Error("session generation lookup failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if sess, ok := s.cache.Get(sessionID); ok {
		if sess.OwnerID != ownerID {
			return nil, apperrors.SessionNotFound(sessionID)
		}
		if err != nil || sess.gen() == gen {
			return sess, nil
		}
		// another replica wrote since we cached it
		s.cache.Remove(sessionID)
	}

	v, err, _ := s.group.Do(ownerID+"\x00"+sessionID, func() (any, error) {
		if sess, ok := s.cache.Peek(sessionID); ok && sess.OwnerID == ownerID {
			return sess, nil
		}
		defer logging.LogDuration(ctx, "session_reconstruct")()
		rec, err := s.durable.Load(ctx, sessionID, ownerID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, apperrors.SessionNotFound(sessionID)
		}
		sess := fromRecord(rec)
		sess.generation = gen
		s.cache.Add(sessionID, sess)
		logging.AppLogger.Info("session reconstructed",
			zap.String("session_id", sessionID), zap.Int("turns", len(sess.Transcript)))
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Put stores a freshly initialized session in both tiers, replacing any
// previous session with the same id.
func (s *Store) Put(ctx context.Context, sess *Session) {
	s.stamp(time.Time{}, sess.Transcript)
	s.cache.Add(sess.ID, sess)
	s.persist(ctx, sess, "upsert", func(wctx context.Context) error {
		return s.durable.Upsert(wctx, sess.record())
	})
}

// Append adds turns to the cached transcript and the durable log. The
// in-memory append always happens; a durable failure is recorded and the
// record is replaced on the next successful write.
func (s *Store) Append(ctx context.Context, sess *Session, turns ...Turn) {
	s.stamp(sess.lastTurnAt(), turns)
	sess.mu.Lock()
	sess.Transcript = append(sess.Transcript, turns...)
	sess.mu.Unlock()
	s.cache.Add(sess.ID, sess)
	s.persist(ctx, sess, "append", func(wctx context.Context) error {
		if sess.isDirty() {
			return s.durable.Upsert(wctx, sess.record())
		}
		return s.durable.Append(wctx, sess.ID, turns)
	})
}

// Clear empties the transcript in both tiers.
func (s *Store) Clear(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	sess.Transcript = nil
	sess.mu.Unlock()
	s.cache.Add(sess.ID, sess)
	s.persist(ctx, sess, "clear", func(wctx context.Context) error {
		if sess.isDirty() {
			return s.durable.Upsert(wctx, sess.record())
		}
		return s.durable.Clear(wctx, sess.ID)
	})
}

func (s *Store) persist(ctx context.Context, sess *Session, op string, write func(context.Context) error) {
	defer logging.LogDuration(ctx, "session_durable_"+op)()

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), durableWriteTimeout)
	defer cancel()

	if err := write(wctx); err != nil {
		sess.setDirty(true)
		n := s.health.failure(err, s.now())
		logging.ErrorLogger.Error("durable write failed, keeping in-memory session",
			zap.String("op", op),
			zap.String("session_id", sess.ID),
			zap.Int64("consecutive_failures", n),
			zap.Error(err))
		return
	}
	sess.setDirty(false)
	s.health.success(s.now())

	gen, err := s.coord.Advance(wctx, sess.ID)
	if err != nil {
		logging.ErrorLogger.Error("session generation advance failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	sess.mu.Lock()
	sess.generation = gen
	sess.mu.Unlock()
}

// stamp assigns CreatedAt to turns after the given instant, keeping
// timestamps strictly increasing within a session.
func (s *Store) stamp(after time.Time, turns []Turn) {
	last := after
	for i := range turns {
		t := s.now().UTC().Truncate(time.Microsecond)
		if !t.After(last) {
			t = last.Add(time.Microsecond)
		}
		turns[i].CreatedAt = t
		last = t
	}
}

// Page serves a transcript page from the durable tier. A cached session
// whose durable record lags behind (or is missing) is paged from memory.
func (s *Store) Page(ctx context.Context, sessionID, ownerID string, offset, limit int) ([]Turn, pagination.Window, error) {
	defer logging.LogDuration(ctx, "session_page")()

	cached, ok := s.cache.Peek(sessionID)
	if ok && cached.OwnerID != ownerID {
		cached, ok = nil, false
	}
	if ok && cached.isDirty() {
		turns, w := pagination.Paginate(cached.Snapshot(), offset, limit)
		return turns, w, nil
	}

	owned, err := s.durable.Owned(ctx, sessionID, ownerID)
	if err != nil {
		return nil, pagination.Window{}, err
	}
	if !owned {
		if ok {
			turns, w := pagination.Paginate(cached.Snapshot(), offset, limit)
			return turns, w, nil
		}
		return nil, pagination.Window{}, apperrors.SessionNotFound(sessionID)
	}
	total, err := s.durable.Count(ctx, sessionID)
	if err != nil {
		return nil, pagination.Window{}, err
	}
	w := pagination.Compute(total, offset, limit)
	turns, err := s.durable.Range(ctx, sessionID, w.Start, w.End)
	if err != nil {
		return nil, pagination.Window{}, err
	}
	return turns, w, nil
}

// ActiveIDs lists cached sessions of ownerID without touching recency.
func (s *Store) ActiveIDs(ownerID string) []string {
	ids := []string{}
	for _, id := range s.cache.Keys() {
		if sess, ok := s.cache.Peek(id); ok && sess.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Store) Recent(ctx context.Context, ownerID string) ([]types.ConversationSummary, error) {
	return s.durable.Recent(ctx, ownerID, RecentLimit)
}

// Evict drops a session from the cache only.
func (s *Store) Evict(sessionID, ownerID string) bool {
	sess, ok := s.cache.Peek(sessionID)
	if !ok || sess.OwnerID != ownerID {
		return false
	}
	return s.cache.Remove(sessionID)
}

// Forget drops sessions from the cache regardless of owner.
func (s *Store) Forget(sessionIDs ...string) {
	for _, id := range sessionIDs {
		s.cache.Remove(id)
	}
}

// Cached reports whether sessionID is cache-resident.
func (s *Store) Cached(sessionID string) bool {
	return s.cache.Contains(sessionID)
}

func (s *Store) Health() HealthSnapshot {
	return s.health.snapshot()
}

func (s *Store) Durable() Durable {
	return s.durable
}

// IsNotFound reports whether err means the session does not exist for the caller.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrSessionNotFound)
}
