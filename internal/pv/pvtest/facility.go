// Package pvtest provides a deterministic harness for recorder tests:
// write a sample into the PV graph, step until the recorder has published
// the resulting update, then read the published arrays back.
package pvtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/history"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/pv"
)

const stepTimeout = 5 * time.Second

// Facility wraps a PV graph with step-wise synchronization against a
// running recorder.
type Facility struct {
	model   *pv.Model
	updates chan string
}

// New creates a facility over the given graph.
func New(model *pv.Model) *Facility {
	return &Facility{
		model:   model,
		updates: make(chan string, 256),
	}
}

// Model returns the underlying PV graph.
func (f *Facility) Model() *pv.Model {
	return f.model
}

// UpdateHook returns the callback to wire into the recorder's OnUpdate
// option. Step consumes the notifications it produces.
func (f *Facility) UpdateHook() func(string) {
	return func(name string) {
		f.updates <- name
	}
}

// CreateVariable creates an input process variable in the graph.
func (f *Facility) CreateVariable(t *testing.T, path string, valueType pv.ValueType, elements int, tags ...string) *pv.Variable {
	t.Helper()
	v, err := f.model.CreateVariable(path, valueType, elements, tags...)
	require.NoError(t, err)
	return v
}

// RunApplication prepares the recorder and starts its update loop. The
// loop is cancelled when the test finishes.
func (f *Facility) RunApplication(t *testing.T, recorder *history.Recorder) {
	t.Helper()
	require.NoError(t, recorder.Prepare())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(stepTimeout):
			t.Error("recorder did not stop after cancellation")
		}
	})
	require.Eventually(t, recorder.Running, stepTimeout, time.Millisecond,
		"update loop did not start")
}

// Step blocks until the recorder has fully processed one fired input and
// returns that input's name.
func (f *Facility) Step(t *testing.T) string {
	t.Helper()
	select {
	case name := <-f.updates:
		return name
	case <-time.After(stepTimeout):
		t.Fatal("timed out waiting for a history update")
		return ""
	}
}

// StepN performs n steps.
func (f *Facility) StepN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.Step(t)
	}
}

// Write posts a sample to the variable at path.
func Write[T pv.Element](t *testing.T, f *Facility, path string, values ...T) {
	t.Helper()
	require.NoError(t, f.model.Post(path, values))
}

// ReadArray reads the last published value of the variable at path.
func ReadArray[T pv.Element](t *testing.T, f *Facility, path string) []T {
	t.Helper()
	values, ok := pv.Read[T](f.model, path)
	require.True(t, ok, "no published value for %s", path)
	return values
}
