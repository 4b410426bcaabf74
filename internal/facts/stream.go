package facts

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable is returned when the backing database cannot
	// produce streams at all. Construction cannot proceed without it.
	ErrSourceUnavailable = errors.New("fact source unavailable")

	// ErrUnknownQuery is returned for a query outside the catalogue.
	ErrUnknownQuery = errors.New("unknown fact query")

	// ErrStreamConsumed is returned when a stream is iterated twice.
	ErrStreamConsumed = errors.New("fact stream already consumed")
)

// ArityError reports a tuple whose width does not match its query.
type ArityError struct {
	Query Query
	Tuple Tuple
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("malformed %s fact %q: expected %d fields, got %d",
		e.Query.Predicate, []string(e.Tuple), e.Query.Arity, len(e.Tuple))
}

// Tuple is a single fact.
type Tuple []string

// Source produces fact streams for named queries.
type Source interface {
	// Query returns a fresh stream for q. A source may legitimately return a
	// stream with zero tuples.
	Query(ctx context.Context, q Query) (*Stream, error)
	Close() error
}

// Stream is a one-shot, forward-only sequence of tuples.
type Stream struct {
	query Query
	each  func(yield func(Tuple) error) error
	used  bool
}

// NewStream wraps a producer. each must call yield once per tuple, in order,
// and stop when yield returns an error.
func NewStream(q Query, each func(yield func(Tuple) error) error) *Stream {
	return &Stream{query: q, each: each}
}

// SliceStream streams tuples already held in memory.
func SliceStream(q Query, tuples []Tuple) *Stream {
	return NewStream(q, func(yield func(Tuple) error) error {
		for _, t := range tuples {
			if err := yield(t); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query returns the query this stream answers.
func (s *Stream) Query() Query { return s.query }

// ForEach drains the stream, calling fn for every tuple. Iteration stops at
// the first error, from fn or from a malformed tuple.
func (s *Stream) ForEach(fn func(Tuple) error) error {
	if s.used {
		return ErrStreamConsumed
	}
	s.used = true
	return s.each(func(t Tuple) error {
		if len(t) != s.query.Arity {
			return &ArityError{Query: s.query, Tuple: t}
		}
		return fn(t)
	})
}

// Collect drains the stream into a slice.
func (s *Stream) Collect() ([]Tuple, error) {
	var out []Tuple
	err := s.ForEach(func(t Tuple) error {
		out = append(out, t)
		return nil
	})
	return out, err
}
