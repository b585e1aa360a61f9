package cli

import (
	"context"
	"fmt"

	"github.com/pledgeworks/pledge/internal/engine"
	"github.com/pledgeworks/pledge/internal/protocol"
	"github.com/pledgeworks/pledge/internal/store"
)

// session is an engine rebuilt from the journal. A writable session holds
// the journal lock from before the replay until Close, so nothing can be
// appended between the replay and this process's own append.
type session struct {
	store     *store.Store
	lock      *store.FileLock
	engine    *engine.Engine
	registrar protocol.Identity
}

// openSession opens the configured journal and replays it. With write
// set it takes the journal lock first and attaches the store as the
// engine's journal once the replay is done.
func openSession(ctx context.Context, opts *RootOptions, write bool) (*session, error) {
	cfg := opts.Config
	path := cfg.Store.Path
	s := &session{}

	if write {
		timeout, err := cfg.LockTimeout()
		if err != nil {
			return nil, err
		}
		retry, err := cfg.LockRetry()
		if err != nil {
			return nil, err
		}
		s.lock, err = store.AcquireFileLock(ctx, path, &store.FileLockConfig{
			LockTimeout: timeout,
			LockRetry:   retry,
			Logger:      opts.Logger,
		})
		if err != nil {
			return nil, err
		}
	}

	st, err := store.Open(path)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	s.store = st

	if err := s.resolveRegistrar(ctx, protocol.Identity(cfg.Registrar), write); err != nil {
		s.Close()
		return nil, err
	}

	records, err := st.ReadOperations(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	eng, err := engine.Replay(ctx, s.registrar, records,
		engine.WithLogger(opts.Logger),
		engine.WithIDGenerator(engine.UUIDv7Generator{}),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	if write {
		eng.AttachJournal(st)
	}
	s.engine = eng
	return s, nil
}

// resolveRegistrar uses the registrar recorded in the journal. A new
// journal records the configured one on its first write.
func (s *session) resolveRegistrar(ctx context.Context, configured protocol.Identity, write bool) error {
	recorded, ok, err := s.store.Meta(ctx, store.MetaRegistrar)
	if err != nil {
		return err
	}
	if ok {
		s.registrar = protocol.Identity(recorded)
		return nil
	}

	s.registrar = configured
	if write {
		return s.store.SetMeta(ctx, store.MetaRegistrar, string(configured))
	}
	return nil
}

// Close releases the store and the lock.
func (s *session) Close() {
	if s.store != nil {
		s.store.Close()
	}
	if s.lock != nil {
		s.lock.Unlock()
	}
}
