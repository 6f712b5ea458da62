package pv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushInputCreatesVariable(t *testing.T) {
	m := NewModel()
	in, err := NewArrayPushInput[float64](m, "/Dummy/out", 2, "history")
	require.NoError(t, err)
	assert.Equal(t, "/Dummy/out", in.Path())
	assert.Equal(t, 2, in.Elements())

	v, ok := m.Lookup("/Dummy/out")
	require.True(t, ok)
	assert.Equal(t, Float64, v.ValueType())
	assert.True(t, v.HasTag("history"))
}

func TestPushInputBindsExistingVariable(t *testing.T) {
	m := NewModel()
	_, err := m.CreateVariable("/Dummy/out", Int16, 1, "history")
	require.NoError(t, err)

	in, err := NewArrayPushInput[int16](m, "/Dummy/out", 1, "extra")
	require.NoError(t, err)

	v, _ := m.Lookup("/Dummy/out")
	assert.True(t, v.HasTag("extra"), "tags merge on bind")

	require.NoError(t, m.Post("/Dummy/out", []int16{5}))
	assert.Equal(t, []int16{5}, in.Pop())
}

func TestPushInputMismatch(t *testing.T) {
	m := NewModel()
	_, err := m.CreateVariable("/Dummy/out", Int16, 1)
	require.NoError(t, err)

	_, err = NewArrayPushInput[int32](m, "/Dummy/out", 1)
	assert.ErrorContains(t, err, "element type")

	_, err = NewArrayPushInput[int16](m, "/Dummy/out", 3)
	assert.ErrorContains(t, err, "element count")
}

func TestPopWithoutSample(t *testing.T) {
	m := NewModel()
	in, err := NewArrayPushInput[uint8](m, "/Dummy/out", 1)
	require.NoError(t, err)
	assert.Nil(t, in.Pop())
}

func TestReadAnyGroupOrdering(t *testing.T) {
	m := NewModel()
	a, err := NewArrayPushInput[int32](m, "/Dummy/a", 1)
	require.NoError(t, err)
	b, err := NewArrayPushInput[int32](m, "/Dummy/b", 1)
	require.NoError(t, err)
	group := NewReadAnyGroup(a, b)

	require.NoError(t, m.Post("/Dummy/b", []int32{1}))
	require.NoError(t, m.Post("/Dummy/a", []int32{2}))
	require.NoError(t, m.Post("/Dummy/b", []int32{3}))

	ctx := context.Background()
	for _, want := range []ElementID{b.ID(), a.ID(), b.ID()} {
		id, err := group.ReadAny(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestReadAnyGroupFlushesPendingSamples(t *testing.T) {
	m := NewModel()
	in, err := NewArrayPushInput[int32](m, "/Dummy/out", 1)
	require.NoError(t, err)

	// Posted before the group exists; must still be announced.
	require.NoError(t, m.Post("/Dummy/out", []int32{42}))

	group := NewReadAnyGroup(in)
	id, err := group.ReadAny(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in.ID(), id)
	assert.Equal(t, []int32{42}, in.Pop())
}

func TestReadAnyCancellation(t *testing.T) {
	m := NewModel()
	in, err := NewArrayPushInput[int32](m, "/Dummy/out", 1)
	require.NoError(t, err)
	group := NewReadAnyGroup(in)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = group.ReadAny(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestArrayOutputWrite(t *testing.T) {
	m := NewModel()
	out, err := NewArrayOutput[float32](m, "/History/x", 3, "hidden")
	require.NoError(t, err)
	assert.Equal(t, "/History/x", out.Path())

	out.Buffer()[0] = 1.5
	out.Write()
	out.Buffer()[0] = 9 // later mutation must not leak into the published value

	values, ok := Read[float32](m, "/History/x")
	require.True(t, ok)
	assert.Equal(t, []float32{1.5, 0, 0}, values)
}

func TestArrayOutputPathTaken(t *testing.T) {
	m := NewModel()
	_, err := m.CreateVariable("/History/x", Float32, 3)
	require.NoError(t, err)
	_, err = NewArrayOutput[float32](m, "/History/x", 3)
	assert.Error(t, err)
}

func TestElementIDsAreUnique(t *testing.T) {
	m := NewModel()
	seen := map[ElementID]struct{}{}
	for _, path := range []string{"/a", "/b", "/c"} {
		in, err := NewArrayPushInput[int32](m, path, 1)
		require.NoError(t, err)
		_, dup := seen[in.ID()]
		assert.False(t, dup)
		seen[in.ID()] = struct{}{}
	}
}
