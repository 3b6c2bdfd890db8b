package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blazewallet/schedvault/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func fakeSleeper(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var slept []time.Duration
	p := NewPolicy(3, 100*time.Millisecond).WithSleeper(fakeSleeper(&slept))

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDoRetriesDependencyErrors(t *testing.T) {
	var slept []time.Duration
	p := NewPolicy(3, 100*time.Millisecond).WithSleeper(fakeSleeper(&slept))

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return apierror.NewAPIError(apierror.ErrDependencyFailure, "kms timeout", nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, slept, 2)
}

func TestDoExhaustsBudget(t *testing.T) {
	var slept []time.Duration
	p := NewPolicy(3, 100*time.Millisecond).WithSleeper(fakeSleeper(&slept))

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return apierror.NewAPIError(apierror.ErrDependencyFailure, "kms down", nil)
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	// no sleep after the final attempt
	assert.Len(t, slept, 2)
}

func TestDoNeverRetriesCryptoErrors(t *testing.T) {
	var slept []time.Duration
	p := NewPolicy(5, 100*time.Millisecond).WithSleeper(fakeSleeper(&slept))

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return apierror.NewAPIError(apierror.ErrCryptoFailure, "authentication tag mismatch", nil)
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDoNeverRetriesPlainErrors(t *testing.T) {
	p := NewPolicy(5, time.Millisecond).WithSleeper(fakeSleeper(&[]time.Duration{}))

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("not classified")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(5, time.Millisecond).WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})

	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		return apierror.NewAPIError(apierror.ErrDependencyFailure, "rpc timeout", nil)
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
