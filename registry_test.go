/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package xflight

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/jchip/xflight/promise"
	"github.com/jchip/xflight/testutil"
)

func TestRegistryDispatch(t *testing.T) {
	t.Run("concurrent dispatches share one future", func(t *testing.T) {
		r := New[string, int](nil)

		p := promise.New[int]()
		var factoryCalls atomic.Int32

		futA := r.Dispatch("k", func() (Future[int], error) {
			factoryCalls.Inc()
			return p, nil
		})
		futB := r.Dispatch("k", func() (Future[int], error) {
			factoryCalls.Inc()
			return p, nil
		})

		require.Equal(t, int32(1), factoryCalls.Load(), "expected factory to be called only once")
		require.Same(t, futA, futB, "expected the identical future instance, not merely an equal one")
		require.Equal(t, 1, r.Len())

		p.Resolve(42)

		gotA, errA := Await(context.Background(), futA)
		gotB, errB := Await(context.Background(), futB)
		require.NoError(t, errA)
		require.NoError(t, errB)
		require.Equal(t, 42, gotA)
		require.Equal(t, 42, gotB)
	})

	t.Run("entry is removed on success and on failure", func(t *testing.T) {
		r := New[string, int](nil)

		p1 := promise.New[int]()
		r.Dispatch("k", func() (Future[int], error) { return p1, nil })
		require.Equal(t, 1, r.Len())
		p1.Resolve(1)
		require.True(t, r.IsEmpty(), "entry should be removed when the future resolves")

		p2 := promise.New[int]()
		r.Dispatch("k", func() (Future[int], error) { return p2, nil })
		require.Equal(t, 1, r.Len())
		p2.Reject(errors.New("boom"))
		require.True(t, r.IsEmpty(), "entry should be removed when the future rejects")

		_, ok := r.Get("k")
		require.False(t, ok)
	})

	t.Run("dispatch after settlement starts fresh work", func(t *testing.T) {
		r := New[string, int](nil)
		var factoryCalls atomic.Int32

		makeFactory := func(val int) Factory[int] {
			return func() (Future[int], error) {
				factoryCalls.Inc()
				return promise.Resolved(val), nil
			}
		}

		got, err := Await(context.Background(), r.Dispatch("k", makeFactory(1)))
		require.NoError(t, err)
		require.Equal(t, 1, got)

		got, err = Await(context.Background(), r.Dispatch("k", makeFactory(2)))
		require.NoError(t, err)
		require.Equal(t, 2, got)

		require.Equal(t, int32(2), factoryCalls.Load())
	})

	t.Run("synchronous factory error yields rejected future", func(t *testing.T) {
		r := New[string, int](nil)
		someErr := errors.New("some error")

		fut := r.Dispatch("k", func() (Future[int], error) { return nil, someErr })
		require.True(t, r.IsEmpty(), "no entry should be registered for a failed factory")

		_, err := Await(context.Background(), fut)
		require.ErrorIs(t, err, someErr)
	})

	t.Run("panicking factory yields rejected future", func(t *testing.T) {
		r := New[string, int](nil)

		fut := r.Dispatch("k", func() (Future[int], error) { panic("boom") })
		require.True(t, r.IsEmpty())
		_, ok := r.Get("k")
		require.False(t, ok, "entry must not be registered for a panicking factory")

		_, err := Await(context.Background(), fut)
		require.Error(t, err)
		var pErr *promise.PanicError
		require.True(t, errors.As(err, &pErr), "error should be of type *promise.PanicError")
		require.Equal(t, "boom", pErr.Value)
	})

	t.Run("factory returning no future yields rejected future", func(t *testing.T) {
		r := New[string, int](nil)

		fut := r.Dispatch("k", func() (Future[int], error) { return nil, nil })
		require.True(t, r.IsEmpty())

		_, err := Await(context.Background(), fut)
		require.Error(t, err)
		var invalidErr *InvalidFactoryResultError
		require.True(t, errors.As(err, &invalidErr))
		require.Contains(t, err.Error(), "k")
	})

	t.Run("factory exiting its goroutine does not lock the registry", func(t *testing.T) {
		r := New[string, int](nil)

		exited := make(chan struct{})
		go func() {
			defer close(exited)
			r.Dispatch("k", func() (Future[int], error) {
				runtime.Goexit()
				return nil, nil
			})
		}()
		<-exited

		lenCh := make(chan int, 1)
		go func() { lenCh <- r.Len() }()
		select {
		case n := <-lenCh:
			require.Equal(t, 0, n, "no entry should be registered for a factory that never returned")
		case <-time.After(2 * time.Second):
			t.Fatal("registry is locked after the factory exited its goroutine")
		}

		got, err := Await(context.Background(), r.Dispatch("k", func() (Future[int], error) {
			return promise.Resolved(7), nil
		}))
		require.NoError(t, err)
		require.Equal(t, 7, got)
	})

	t.Run("late settlement does not clobber a successor entry", func(t *testing.T) {
		r := New[string, int](nil)

		p1 := promise.New[int]()
		r.Dispatch("k", func() (Future[int], error) { return p1, nil })
		require.NoError(t, r.Remove("k"))

		p2 := promise.New[int]()
		require.NoError(t, r.Add("k", p2))

		p1.Resolve(1) // predecessor settles after manual removal
		fut, ok := r.Get("k")
		require.True(t, ok, "successor entry must survive the predecessor's settlement")
		require.Same(t, Future[int](p2), fut)
	})
}

func TestRegistryDo(t *testing.T) {
	t.Run("same key", func(t *testing.T) {
		r := New[string, int](nil)
		var callCount atomic.Int32

		fn := func() (int, error) {
			callCount.Inc()
			time.Sleep(100 * time.Millisecond)
			return 42, nil
		}

		const numGoroutines = 10
		var wg sync.WaitGroup
		results := make([]int, numGoroutines)
		errs := make([]error, numGoroutines)

		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func(i int) {
				defer wg.Done()
				res, err := r.Do(context.Background(), "key", fn)
				results[i] = res
				errs[i] = err
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(1), callCount.Load(), "expected fn to be called only once")
		for i, err := range errs {
			require.NoError(t, err, "goroutine %d: unexpected error", i)
			require.Equal(t, 42, results[i], "goroutine %d: unexpected result", i)
		}
		require.True(t, r.IsEmpty())

		stats := r.Stats()
		require.Equal(t, uint64(1), stats.Dispatched)
		require.Equal(t, uint64(numGoroutines-1), stats.Deduped)
	})

	t.Run("different keys", func(t *testing.T) {
		r := New[string, int](nil)
		var callCount atomic.Int32

		const numGoroutines = 10
		var wg sync.WaitGroup
		results := make([]int, numGoroutines)

		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func(i int) {
				defer wg.Done()
				res, err := r.Do(context.Background(), "key"+strconv.Itoa(i), func() (int, error) {
					callCount.Inc()
					time.Sleep(100 * time.Millisecond)
					return (i + 1) * 10, nil
				})
				require.NoError(t, err)
				results[i] = res
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(numGoroutines), callCount.Load(), "expected fn to be called per key")
		for i := range results {
			require.Equal(t, (i+1)*10, results[i], "goroutine %d: unexpected result", i)
		}
	})

	t.Run("error is shared", func(t *testing.T) {
		r := New[string, int](nil)
		someErr := errors.New("some error")

		const numGoroutines = 5
		var wg sync.WaitGroup
		errs := make([]error, numGoroutines)

		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func(i int) {
				defer wg.Done()
				_, errs[i] = r.Do(context.Background(), "key", func() (int, error) {
					time.Sleep(100 * time.Millisecond)
					return 0, someErr
				})
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			require.ErrorIs(t, err, someErr, "goroutine %d: unexpected error", i)
		}
	})

	t.Run("canceled wait does not cancel the operation", func(t *testing.T) {
		r := New[string, int](nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		release := make(chan struct{})
		_, err := r.Do(ctx, "key", func() (int, error) {
			<-release
			return 42, nil
		})
		require.ErrorIs(t, err, context.Canceled)

		// The operation is still in flight and can be joined by another caller.
		fut, ok := r.Get("key")
		require.True(t, ok)
		close(release)
		got, err := Await(context.Background(), fut)
		require.NoError(t, err)
		require.Equal(t, 42, got)
	})
}

func TestRegistryAddRemove(t *testing.T) {
	t.Run("duplicate add fails", func(t *testing.T) {
		r := New[string, int](nil)

		require.NoError(t, r.Add("k", promise.New[int]()))
		err := r.Add("k", promise.New[int]())
		require.ErrorIs(t, err, ErrDuplicateKey)
		require.Contains(t, err.Error(), "k")
		require.Equal(t, 1, r.Len())
	})

	t.Run("remove of untracked key fails", func(t *testing.T) {
		r := New[string, int](nil)
		err := r.Remove("nope")
		testutil.RequireErrorIsAny(t, err, []error{ErrMissingKey})
		require.Contains(t, err.Error(), "nope")
	})

	t.Run("nil future is rejected", func(t *testing.T) {
		r := New[string, int](nil)
		require.Error(t, r.Add("k", nil))
		require.True(t, r.IsEmpty())
	})

	t.Run("count mirrors entries", func(t *testing.T) {
		r := New[string, int](nil)
		require.True(t, r.IsEmpty())

		const n = 10
		for i := 0; i < n; i++ {
			require.NoError(t, r.Add("key"+strconv.Itoa(i), promise.New[int]()))
			require.Equal(t, i+1, r.Len())
		}
		require.False(t, r.IsEmpty())

		for i := 0; i < n; i++ {
			require.NoError(t, r.Remove("key"+strconv.Itoa(i)))
			require.Equal(t, n-i-1, r.Len())
		}
		require.True(t, r.IsEmpty())

		// The registry is fully usable after compaction.
		require.NoError(t, r.Add("k", promise.New[int]()))
		require.Equal(t, 1, r.Len())
	})

	t.Run("get has no side effects", func(t *testing.T) {
		r := New[string, int](nil)
		p := promise.New[int]()
		require.NoError(t, r.Add("k", p))

		fut, ok := r.Get("k")
		require.True(t, ok)
		require.Same(t, Future[int](p), fut)
		require.Equal(t, 1, r.Len())

		_, ok = r.Get("other")
		require.False(t, ok)
		require.Equal(t, 1, r.Len())
	})
}
