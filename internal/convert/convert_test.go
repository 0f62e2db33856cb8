package convert

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type operator string

type payload struct {
	StartAt  time.Time     `json:"start_at"`
	Interval time.Duration `json:"interval"`
}

func TestTo_Primitives(t *testing.T) {
	n, err := To[int](float64(5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = To[int]("42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	b, err := To[bool]("true")
	require.NoError(t, err)
	assert.True(t, b)

	s, err := To[string](7)
	require.NoError(t, err)
	assert.Equal(t, "7", s)

	op, err := To[operator]("less_than")
	require.NoError(t, err)
	assert.Equal(t, operator("less_than"), op)
}

func TestTo_DurationAndTime(t *testing.T) {
	d, err := To[time.Duration]("10m")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)

	d, err = To[time.Duration](float64(time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	ts, err := To[time.Time]("2026-10-19T10:00:00Z")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC).Equal(ts))
}

func TestTo_StructFromPersistedMap(t *testing.T) {
	start := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	original := payload{StartAt: start, Interval: 10 * time.Minute}

	normalized, err := Normalize(original)
	require.NoError(t, err)
	_, isMap := normalized.(map[string]any)
	require.True(t, isMap)

	got, err := To[payload](normalized)
	require.NoError(t, err)
	assert.True(t, original.StartAt.Equal(got.StartAt))
	assert.Equal(t, original.Interval, got.Interval)

	raw, _ := json.Marshal(original)
	got, err = To[payload](string(raw))
	require.NoError(t, err)
	assert.Equal(t, original.Interval, got.Interval)
}

func TestTo_NilYieldsZero(t *testing.T) {
	n, err := To[int](nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	v, err := To[any](nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestTo_ConversionError(t *testing.T) {
	_, err := To[int]("not a number")
	require.Error(t, err)

	var ce *ConversionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "not a number", ce.Value)
	assert.Equal(t, "int", ce.Target.String())

	_, err = To[payload]("plain text")
	require.True(t, errors.As(err, &ce))
}
