// Package lifetime releases accelerator resources in reverse order of
// acquisition when their owning scope ends.
//
// A Scope is a stack of accel.Resource values. Close pops every entry and
// calls its Release exactly once. A failing release is logged and recorded
// but never stops the remaining releases. Registering the same resource
// twice is a caller error and is not detected.
package lifetime

import (
	"sync"

	"github.com/fxnlabs/kernelbench/internal/accel"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Scope owns a stack of resources.
type Scope struct {
	logger *zap.Logger

	mu        sync.Mutex
	resources []accel.Resource
}

// New returns an empty scope.
func New(logger *zap.Logger) *Scope {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scope{logger: logger.Named("lifetime")}
}

// Register pushes r. It will be released before anything registered earlier.
func (s *Scope) Register(r accel.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = append(s.resources, r)
}

// Len returns the number of resources still awaiting release.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resources)
}

// Close releases every registered resource, most recent first, and empties
// the scope. The returned error combines every release failure.
func (s *Scope) Close() error {
	s.mu.Lock()
	resources := s.resources
	s.resources = nil
	s.mu.Unlock()

	var errs error
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		if err := r.Release(); err != nil {
			s.logger.Error("failed to release resource",
				zap.Stringer("kind", r.Kind()),
				zap.Int("position", i),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}
	if len(resources) > 0 {
		s.logger.Debug("scope closed", zap.Int("released", len(resources)))
	}
	return errs
}

// CloseInto is the deferred form of Close. Release failures are appended
// to *errp so an earlier failure is never replaced:
//
//	scope := lifetime.New(log)
//	defer scope.CloseInto(&err)
func (s *Scope) CloseInto(errp *error) {
	if err := s.Close(); err != nil {
		*errp = multierr.Append(*errp, err)
	}
}

// Track registers r when err is nil and passes both values through:
//
//	buf, err := ctx.CreateBuffer(flags, elem, n, nil)
//	return lifetime.Track(scope, buf, err)
func Track[R accel.Resource](s *Scope, r R, err error) (R, error) {
	if err == nil {
		s.Register(r)
	}
	return r, err
}
