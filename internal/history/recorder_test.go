package history_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/history"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/pv"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/pv/pvtest"
)

const testHistoryLength = 20

// newTestRecorder builds a recorder over the facility's graph with the
// test history length and the facility's step hook.
func newTestRecorder(t *testing.T, f *pvtest.Facility, opts history.Options) *history.Recorder {
	t.Helper()
	if opts.HistoryLength == 0 {
		opts.HistoryLength = testHistoryLength
	}
	opts.OnUpdate = f.UpdateHook()
	recorder, err := history.New(zaptest.NewLogger(t), f.Model(), f.Model().Root(), opts)
	require.NoError(t, err)
	return recorder
}

func TestNoVariablesFound(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/Dummy/out", pv.Int32, 1, "history")

	// The discovery tag does not match the variable's tag.
	recorder := newTestRecorder(t, f, history.Options{HistoryTag: "History"})
	assert.Equal(t, 0, recorder.GetNumberOfVariables())

	err := recorder.Prepare()
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrEmptyHistory)
}

func TestConstructionWithoutOwner(t *testing.T) {
	_, err := history.New(zaptest.NewLogger(t), pv.NewModel(), nil, history.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrPathNotFound)
}

// runScalarHistory exercises the scalar ring buffer for one element type.
func runScalarHistory[T pv.Element](t *testing.T, mk func(float64) T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/Dummy/out", pv.TypeOf[T](), 1, "history")

	recorder := newTestRecorder(t, f, history.Options{})
	require.Equal(t, 1, recorder.GetNumberOfVariables())
	f.RunApplication(t, recorder)

	ref := make([]T, testHistoryLength)
	pvtest.Write(t, f, "/Dummy/out", mk(42))
	f.Step(t)
	ref[len(ref)-1] = mk(42)
	assert.Equal(t, ref, pvtest.ReadArray[T](t, f, "/History/Dummy/out"))

	pvtest.Write(t, f, "/Dummy/out", mk(42))
	f.Step(t)
	ref[len(ref)-2] = mk(42)
	assert.Equal(t, ref, pvtest.ReadArray[T](t, f, "/History/Dummy/out"))
}

func TestScalarHistory(t *testing.T) {
	t.Run("int8", func(t *testing.T) { runScalarHistory(t, func(v float64) int8 { return int8(v) }) })
	t.Run("uint8", func(t *testing.T) { runScalarHistory(t, func(v float64) uint8 { return uint8(v) }) })
	t.Run("int16", func(t *testing.T) { runScalarHistory(t, func(v float64) int16 { return int16(v) }) })
	t.Run("uint16", func(t *testing.T) { runScalarHistory(t, func(v float64) uint16 { return uint16(v) }) })
	t.Run("int32", func(t *testing.T) { runScalarHistory(t, func(v float64) int32 { return int32(v) }) })
	t.Run("uint32", func(t *testing.T) { runScalarHistory(t, func(v float64) uint32 { return uint32(v) }) })
	t.Run("float32", func(t *testing.T) { runScalarHistory(t, func(v float64) float32 { return float32(v) }) })
	t.Run("float64", func(t *testing.T) { runScalarHistory(t, func(v float64) float64 { return v }) })
	t.Run("string", func(t *testing.T) { runScalarHistory(t, func(v float64) string { return fmt.Sprintf("%v", v) }) })
}

// runArrayHistory exercises a width-3 input: every element gets its own
// ring buffer named with the element index.
func runArrayHistory[T pv.Element](t *testing.T, mk func(float64) T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/Dummy/out", pv.TypeOf[T](), 3, "history")

	recorder := newTestRecorder(t, f, history.Options{})
	require.Equal(t, 1, recorder.GetNumberOfVariables())
	f.RunApplication(t, recorder)

	pvtest.Write(t, f, "/Dummy/out", mk(42), mk(43), mk(44))
	f.Step(t)
	for i := 0; i < 3; i++ {
		ref := make([]T, testHistoryLength)
		ref[len(ref)-1] = mk(42 + float64(i))
		got := pvtest.ReadArray[T](t, f, fmt.Sprintf("/History/Dummy/out_%d", i))
		assert.Equal(t, ref, got, "element %d", i)
	}

	pvtest.Write(t, f, "/Dummy/out", mk(1), mk(2), mk(3))
	f.Step(t)
	for i := 0; i < 3; i++ {
		ref := make([]T, testHistoryLength)
		ref[len(ref)-2] = mk(42 + float64(i))
		ref[len(ref)-1] = mk(1 + float64(i))
		got := pvtest.ReadArray[T](t, f, fmt.Sprintf("/History/Dummy/out_%d", i))
		assert.Equal(t, ref, got, "element %d", i)
	}
}

func TestArrayHistory(t *testing.T) {
	t.Run("int32", func(t *testing.T) { runArrayHistory(t, func(v float64) int32 { return int32(v) }) })
	t.Run("float64", func(t *testing.T) { runArrayHistory(t, func(v float64) float64 { return v }) })
	t.Run("string", func(t *testing.T) { runArrayHistory(t, func(v float64) string { return fmt.Sprintf("%v", v) }) })
}

func TestDeviceHistory(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	device, err := pv.NewDevice(f.Model(), "Device")
	require.NoError(t, err)
	_, err = device.AddRegister("/signed32", pv.Int32, 1)
	require.NoError(t, err)

	// Nothing carries the history tag; the device is added explicitly.
	recorder := newTestRecorder(t, f, history.Options{})
	require.Equal(t, 0, recorder.GetNumberOfVariables())
	require.NoError(t, recorder.AddSource(device, ""))
	require.Equal(t, 1, recorder.GetNumberOfVariables())
	f.RunApplication(t, recorder)

	for _, v := range []int32{42, 42, 43} {
		pvtest.Write(t, f, "/Device/signed32", v)
		f.Step(t)
	}

	ref := make([]int32, testHistoryLength)
	ref[len(ref)-3] = 42
	ref[len(ref)-2] = 42
	ref[len(ref)-1] = 43
	assert.Equal(t, ref, pvtest.ReadArray[int32](t, f, "/History/Device/signed32"))
}

func TestDeviceHistorySubmoduleFilter(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	device, err := pv.NewDevice(f.Model(), "Device")
	require.NoError(t, err)
	_, err = device.AddRegister("/adc/value", pv.Float32, 1)
	require.NoError(t, err)
	_, err = device.AddRegister("/dac/value", pv.Float32, 1)
	require.NoError(t, err)

	recorder := newTestRecorder(t, f, history.Options{})
	require.NoError(t, recorder.AddSource(device, "/Device/adc"))

	assert.Equal(t, 1, recorder.GetNumberOfVariables())
	_, ok := recorder.Variable("/Device/adc/value")
	assert.True(t, ok)
	_, ok = recorder.Variable("/Device/dac/value")
	assert.False(t, ok)
}

func TestModuleNameTagCollision(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/Dummy/out", pv.Int32, 1, "history")

	recorder := newTestRecorder(t, f, history.Options{ModuleName: "history", HistoryTag: "history"})
	require.Equal(t, 1, recorder.GetNumberOfVariables())
	assert.Equal(t, "history_internal_module", recorder.InternalTag())

	out, ok := f.Model().Lookup("/History/Dummy/out")
	require.True(t, ok)
	assert.Equal(t, []string{"history_internal_module"}, out.Tags())

	// A fresh scan over the graph must not pick up the generated outputs.
	var tagged []string
	err := f.Model().Root().VisitVariablesBFS("history", func(v *pv.Variable) error {
		tagged = append(tagged, v.Path())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/Dummy/out"}, tagged)
}

func TestTimeStamps(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/Dummy/out", pv.Float64, 1, "history")

	recorder := newTestRecorder(t, f, history.Options{EnableTimeStamps: true})
	f.RunApplication(t, recorder)

	before := uint64(time.Now().Unix())
	pvtest.Write(t, f, "/Dummy/out", 42.0)
	f.Step(t)
	after := uint64(time.Now().Unix())

	ts := pvtest.ReadArray[uint64](t, f, "/History/Dummy/out_timeStamps")
	require.Len(t, ts, testHistoryLength)
	for _, v := range ts[:len(ts)-1] {
		assert.Zero(t, v)
	}
	tail := ts[len(ts)-1]
	assert.GreaterOrEqual(t, tail, before)
	assert.LessOrEqual(t, tail, after)
}

func TestArrayTimeStampNaming(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/Dummy/out", pv.Int16, 2, "history")

	recorder := newTestRecorder(t, f, history.Options{EnableTimeStamps: true})
	info, ok := recorder.Variable("/Dummy/out")
	require.True(t, ok)
	assert.Equal(t, []string{"/History/Dummy/out_0", "/History/Dummy/out_1"}, info.Outputs)
	assert.Equal(t, []string{"/History/Dummy/out_0_timeStamps", "/History/Dummy/out_1_timeStamps"}, info.TimeStamps)
}

func TestDuplicateRegistration(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	device, err := pv.NewDevice(f.Model(), "Device")
	require.NoError(t, err)
	_, err = device.AddRegister("/signed32", pv.Int32, 1)
	require.NoError(t, err)

	recorder := newTestRecorder(t, f, history.Options{})
	require.NoError(t, recorder.AddSource(device, ""))
	require.Equal(t, 1, recorder.GetNumberOfVariables())

	err = recorder.AddSource(device, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrDuplicateName)
	assert.Equal(t, 1, recorder.GetNumberOfVariables())
}

func TestRegistrationAfterRunFails(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/Dummy/out", pv.Int32, 1, "history")

	recorder := newTestRecorder(t, f, history.Options{})
	f.RunApplication(t, recorder)

	device, err := pv.NewDevice(f.Model(), "Device")
	require.NoError(t, err)
	_, err = device.AddRegister("/late", pv.Int32, 1)
	require.NoError(t, err)

	err = recorder.AddSource(device, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrAlreadyRunning)
}

func TestInitialValuesPublishedOnPrepare(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/Dummy/out", pv.Int32, 1, "history")

	recorder := newTestRecorder(t, f, history.Options{EnableTimeStamps: true})
	_, ok := f.Model().ReadArray("/History/Dummy/out")
	assert.False(t, ok, "nothing published before Prepare")

	require.NoError(t, recorder.Prepare())
	assert.Equal(t, make([]int32, testHistoryLength), pvtest.ReadArray[int32](t, f, "/History/Dummy/out"))
	assert.Equal(t, make([]uint64, testHistoryLength), pvtest.ReadArray[uint64](t, f, "/History/Dummy/out_timeStamps"))
	assert.False(t, f.Model().DataFault().Faulty(), "fault flag cleared after Prepare")
}

func TestShortBufferWrapAround(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/Dummy/out", pv.Int32, 1, "history")

	recorder := newTestRecorder(t, f, history.Options{HistoryLength: 3})
	f.RunApplication(t, recorder)

	for _, v := range []int32{1, 2, 3, 4, 5} {
		pvtest.Write(t, f, "/Dummy/out", v)
		f.Step(t)
	}
	assert.Equal(t, []int32{3, 4, 5}, pvtest.ReadArray[int32](t, f, "/History/Dummy/out"))
}

func TestUnsupportedType(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	// 64-bit integers exist in the graph but are outside the recorder's
	// recognized input set.
	f.CreateVariable(t, "/Dummy/out", pv.UInt64, 1, "history")

	_, err := history.New(zaptest.NewLogger(t), f.Model(), f.Model().Root(), history.Options{HistoryLength: testHistoryLength})
	require.Error(t, err)
	assert.ErrorIs(t, err, history.ErrUnsupportedType)
}

func TestVariablesListing(t *testing.T) {
	f := pvtest.New(pv.NewModel())
	f.CreateVariable(t, "/A/x", pv.Int32, 1, "history")
	f.CreateVariable(t, "/B/y", pv.Float32, 2, "history")

	recorder := newTestRecorder(t, f, history.Options{})
	vars := recorder.Variables()
	require.Len(t, vars, 2)
	assert.Equal(t, "/A/x", vars[0].Name)
	assert.Equal(t, "int32", vars[0].Type)
	assert.Equal(t, []string{"/History/A/x"}, vars[0].Outputs)
	assert.Equal(t, "/B/y", vars[1].Name)
	assert.Equal(t, 2, vars[1].Elements)
}
