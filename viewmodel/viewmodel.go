// Package viewmodel wraps a single asynchronous call into a stream of view
// models: loading first, then loaded, empty or error.
package viewmodel

import (
	"context"
	"reflect"

	"github.com/timzifer/viewstate/status"
)

// ViewModel pairs a status with the data it describes. HasData is true when
// Data was produced by the call.
type ViewModel[T any] struct {
	Data    T
	HasData bool
	Status  *status.Value
}

// Loaded reports whether the model carries loaded data.
func (m ViewModel[T]) Loaded() bool {
	return m.Status.IsLoaded() && m.HasData
}

type settings[T any] struct {
	onSuccess  func(T) ViewModel[T]
	onError    func(error) ViewModel[T]
	isEmpty    func(T) bool
	emptyTitle *string
}

// Option customises Track.
type Option[T any] func(*settings[T])

// OnSuccess overrides the mapping of successful results.
func OnSuccess[T any](fn func(T) ViewModel[T]) Option[T] {
	return func(s *settings[T]) { s.onSuccess = fn }
}

// OnError overrides the mapping of failures.
func OnError[T any](fn func(error) ViewModel[T]) Option[T] {
	return func(s *settings[T]) { s.onError = fn }
}

// IsEmpty overrides the emptiness check applied to successful results.
func IsEmpty[T any](fn func(T) bool) Option[T] {
	return func(s *settings[T]) { s.isEmpty = fn }
}

// EmptyWhenZeroLength maps successful results with no elements (empty
// slices, maps, strings, arrays or channels) to an empty status.
func EmptyWhenZeroLength[T any]() Option[T] {
	return func(s *settings[T]) { s.isEmpty = isZeroLength[T] }
}

// EmptyTitle sets the title used for empty results. It has no effect unless
// IsEmpty or EmptyWhenZeroLength is given.
func EmptyTitle[T any](title string) Option[T] {
	return func(s *settings[T]) { s.emptyTitle = &title }
}

// Track runs fn in a goroutine and streams its view models. The channel
// yields a loading model, then one terminal model, and is closed afterwards.
// Cancelling ctx stops delivery.
func Track[T any](ctx context.Context, fn func(context.Context) (T, error), opts ...Option[T]) <-chan ViewModel[T] {
	cfg := settings[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := make(chan ViewModel[T], 2)
	out <- ViewModel[T]{Status: status.Loading()}
	go func() {
		defer close(out)
		data, err := fn(ctx)
		var model ViewModel[T]
		if err != nil {
			model = cfg.mapError(err)
		} else {
			model = cfg.mapSuccess(data)
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- model:
		case <-ctx.Done():
		}
	}()
	return out
}

// Map converts an already completed result into its terminal view model.
func Map[T any](data T, err error, opts ...Option[T]) ViewModel[T] {
	cfg := settings[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err != nil {
		return cfg.mapError(err)
	}
	return cfg.mapSuccess(data)
}

func (s settings[T]) mapSuccess(data T) ViewModel[T] {
	if s.onSuccess != nil {
		return s.onSuccess(data)
	}
	if s.isEmpty != nil && s.isEmpty(data) {
		empty := status.EmptyUntitled()
		if s.emptyTitle != nil {
			empty = status.Empty(*s.emptyTitle)
		}
		return ViewModel[T]{Data: data, HasData: true, Status: empty}
	}
	return ViewModel[T]{Data: data, HasData: true, Status: status.Loaded()}
}

func (s settings[T]) mapError(err error) ViewModel[T] {
	if s.onError != nil {
		return s.onError(err)
	}
	return ViewModel[T]{Status: status.Error(err)}
}

// isZeroLength treats empty slices, maps, strings, arrays and channels as
// empty results.
func isZeroLength[T any](data T) bool {
	v := reflect.ValueOf(any(data))
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array, reflect.Chan:
		return v.Len() == 0
	default:
		return false
	}
}
