package websub_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/websub"
)

type engineFunc func(ctx context.Context) (websub.Result, error)

func (f engineFunc) Execute(ctx context.Context) (websub.Result, error) { return f(ctx) }

func TestNewProcessor(t *testing.T) {
	_, err := websub.NewProcessor(nil)
	assert.Error(t, err)

	_, err = websub.NewProcessor(engineFunc(nil), websub.WithIdleInterval(-time.Second))
	assert.Error(t, err)

	_, err = websub.NewProcessor(engineFunc(nil), websub.WithName(""))
	assert.Error(t, err)
}

func TestProcessor_Next(t *testing.T) {
	tests := []struct {
		name     string
		engine   engineFunc
		expected websub.Result
	}{
		{"success", func(context.Context) (websub.Result, error) { return websub.ResultSuccess, nil }, websub.ResultSuccess},
		{"failure", func(context.Context) (websub.Result, error) { return websub.ResultFailure, nil }, websub.ResultFailure},
		{"no job", func(context.Context) (websub.Result, error) { return websub.ResultNoJob, nil }, websub.ResultNoJob},
		{"error", func(context.Context) (websub.Result, error) {
			return websub.ResultFailure, websub.NewError(websub.ErrCodeContractViolation, "bad job")
		}, websub.ResultNoJob},
		{"panic", func(context.Context) (websub.Result, error) { panic("boom") }, websub.ResultNoJob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := websub.NewProcessor(tt.engine, websub.WithName("test"))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p.Next(ctx()))
		})
	}
}

func TestProcessor_Run_StopsBetweenIterations(t *testing.T) {
	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	var detached atomic.Bool
	engine := engineFunc(func(execCtx context.Context) (websub.Result, error) {
		n := calls.Add(1)
		if n == 3 {
			cancel()
			// In-flight work does not see the loop cancellation.
			detached.Store(execCtx.Err() == nil)
			return websub.ResultSuccess, nil
		}
		return websub.ResultSuccess, nil
	})

	p, err := websub.NewProcessor(engine, websub.WithIdleInterval(time.Hour))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Run(loopCtx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}

	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, detached.Load())
}

func TestProcessor_Run_SleepsOnNoJob(t *testing.T) {
	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	engine := engineFunc(func(context.Context) (websub.Result, error) {
		calls.Add(1)
		return websub.ResultNoJob, errors.New("ignored")
	})

	p, err := websub.NewProcessor(engine, websub.WithIdleInterval(50*time.Millisecond))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Run(loopCtx) }()

	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}

	n := calls.Load()
	assert.GreaterOrEqual(t, n, int32(2))
	assert.LessOrEqual(t, n, int32(4), "idle interval must throttle empty polls")
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "no_job", websub.ResultNoJob.String())
	assert.Equal(t, "success", websub.ResultSuccess.String())
	assert.Equal(t, "failure", websub.ResultFailure.String())
	assert.Equal(t, "unknown", websub.Result(42).String())
}
