package server

import (
	"context"
	"errors"
	"fmt"
)

// Shutdown stops the modules in reverse boot order, then the HTTP server,
// then the closers. Every step runs even if an earlier one failed.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	for i := len(s.booted) - 1; i >= 0; i-- {
		m := s.booted[i]
		if err := m.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown module %s: %w", m.Name(), err))
		}
	}
	s.booted = nil

	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	for _, closeFn := range s.closers {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil

	return errors.Join(errs...)
}
