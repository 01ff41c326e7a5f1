package guideline

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Store holds the process-wide guideline corpus. Reads are lock-free against
// an immutable snapshot; Reload builds a new corpus off to the side and swaps
// the pointer, so in-flight requests keep the snapshot they started with.
type Store struct {
	dir    string
	loader *Loader
	logger *logrus.Logger

	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
}

// NewStore loads the corpus from dir and returns a ready store.
func NewStore(dir string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		dir:    dir,
		loader: NewLoader(logger),
		logger: logger,
	}
	corpus, err := s.loader.Load(dir)
	if err != nil {
		return nil, err
	}
	s.current.Store(&Snapshot{corpus: corpus})
	return s, nil
}

// Snapshot returns the current immutable corpus view. Callers performing a
// multi-query operation should take one snapshot and use it throughout.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload rebuilds the corpus from disk and atomically swaps it in. Concurrent
// reload calls are serialized; readers never block. On failure the previous
// snapshot stays active.
func (s *Store) Reload() (*Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	corpus, err := s.loader.Load(s.dir)
	if err != nil {
		s.logger.WithError(err).Error("Corpus reload failed, keeping previous snapshot")
		return nil, err
	}

	snap := &Snapshot{corpus: corpus}
	s.current.Store(snap)
	s.logger.WithFields(logrus.Fields{
		"version":    corpus.Index.Version,
		"violations": len(corpus.Violations),
	}).Info("Guideline corpus reloaded")
	return snap, nil
}
