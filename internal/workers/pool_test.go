package workers

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/netscope/internal/metrics/mocks"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "closed", StatusClosed.String())
	assert.Equal(t, "inconclusive", StatusInconclusive.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestNewPoolDefaults(t *testing.T) {
	p := New(Config{}, func(ctx context.Context, in int) (int, Status, error) {
		return in, StatusSuccess, nil
	})
	assert.Equal(t, DefaultConfig().Size, p.config.Size)
	assert.Equal(t, "probe", p.config.Kind)
	assert.Nil(t, p.limiter)
}

func TestRunEveryInputYieldsOneOutcome(t *testing.T) {
	inputs := make([]int, 200)
	for i := range inputs {
		inputs[i] = i
	}

	var calls int32
	p := New(Config{Kind: "test", Size: 16}, func(ctx context.Context, in int) (int, Status, error) {
		atomic.AddInt32(&calls, 1)
		switch in % 3 {
		case 0:
			return in * 2, StatusSuccess, nil
		case 1:
			return 0, StatusClosed, errors.New("refused")
		default:
			return 0, StatusInconclusive, context.DeadlineExceeded
		}
	})

	outcomes, err := p.Run(context.Background(), inputs)
	require.NoError(t, err)
	assert.Len(t, outcomes, len(inputs))
	assert.Equal(t, int32(len(inputs)), atomic.LoadInt32(&calls))

	seen := make(map[int]bool)
	for _, o := range outcomes {
		assert.False(t, seen[o.Input], "input %d reported twice", o.Input)
		seen[o.Input] = true
		if o.Status == StatusSuccess {
			assert.Equal(t, o.Input*2, o.Value)
			assert.NoError(t, o.Err)
		} else {
			assert.Error(t, o.Err)
		}
	}

	values := Successes(outcomes)
	sort.Ints(values)
	assert.Len(t, values, 67)
	assert.Equal(t, 0, values[0])
}

func TestRunBoundsConcurrency(t *testing.T) {
	const size = 4
	var inFlight, peak int32

	p := New(Config{Size: size}, func(ctx context.Context, in int) (struct{}, Status, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, StatusSuccess, nil
	})

	_, err := p.Run(context.Background(), make([]int, 40))
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(size))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(0))
}

func TestRunEmptyInput(t *testing.T) {
	p := New(DefaultConfig(), func(ctx context.Context, in string) (string, Status, error) {
		t.Fatal("probe must not run")
		return "", StatusSuccess, nil
	})
	outcomes, err := p.Run(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var started int32
	p := New(Config{Size: 2}, func(ctx context.Context, in int) (int, Status, error) {
		if atomic.AddInt32(&started, 1) == 2 {
			cancel()
		}
		<-ctx.Done()
		return 0, StatusInconclusive, ctx.Err()
	})

	outcomes, err := p.Run(ctx, make([]int, 100))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(outcomes), 100, "queued inputs should be dropped after cancellation")
}

func TestRunObserverSeesEveryOutcome(t *testing.T) {
	var observed []int
	p := New(Config{Size: 8}, func(ctx context.Context, in int) (int, Status, error) {
		return in, StatusSuccess, nil
	}).OnOutcome(func(o Outcome[int, int]) {
		// Called from the single collecting goroutine, no locking needed.
		observed = append(observed, o.Value)
	})

	_, err := p.Run(context.Background(), []int{5, 3, 9, 1})
	require.NoError(t, err)
	sort.Ints(observed)
	assert.Equal(t, []int{1, 3, 5, 9}, observed)
}

func TestRunRateLimited(t *testing.T) {
	p := New(Config{Size: 4, RateLimit: 50, Burst: 1}, func(ctx context.Context, in int) (int, Status, error) {
		return in, StatusSuccess, nil
	})
	require.NotNil(t, p.limiter)

	start := time.Now()
	_, err := p.Run(context.Background(), make([]int, 6))
	require.NoError(t, err)
	// Five waits at 50/s with burst 1.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRunRateLimitedDeadline(t *testing.T) {
	tests := []struct {
		name     string
		deadline time.Duration
		wantErr  error
		wantAll  bool
	}{
		{
			// Eight starts at 10/s need about 700ms.
			name:     "deadline before the last token",
			deadline: 250 * time.Millisecond,
			wantErr:  context.DeadlineExceeded,
		},
		{
			name:     "deadline after the last token",
			deadline: 5 * time.Second,
			wantAll:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), tt.deadline)
			defer cancel()

			p := New(Config{Size: 4, RateLimit: 10, Burst: 1}, func(ctx context.Context, in int) (int, Status, error) {
				return in, StatusSuccess, nil
			})

			inputs := []int{1, 2, 3, 4, 5, 6, 7, 8}
			outcomes, err := p.Run(ctx, inputs)

			if tt.wantAll {
				require.NoError(t, err)
				assert.Len(t, outcomes, len(inputs))
				return
			}
			// A short batch never comes back without an error.
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Less(t, len(outcomes), len(inputs))
		})
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)

	recorder.EXPECT().AddActiveProbes("tcp", 1).Times(3)
	recorder.EXPECT().AddActiveProbes("tcp", -1).Times(3)
	recorder.EXPECT().RecordProbe("tcp", "success", gomock.Any()).Times(2)
	recorder.EXPECT().RecordProbe("tcp", "closed", gomock.Any()).Times(1)

	p := New(Config{Kind: "tcp", Size: 2}, func(ctx context.Context, in int) (int, Status, error) {
		if in == 0 {
			return 0, StatusClosed, nil
		}
		return in, StatusSuccess, nil
	}).WithRecorder(recorder)

	outcomes, err := p.Run(context.Background(), []int{0, 1, 2})
	require.NoError(t, err)
	assert.Len(t, outcomes, 3)
}
