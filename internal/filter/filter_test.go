package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testThreshold = 0.0349

func TestForceFilterGrowingFill(t *testing.T) {
	f, err := NewForceFilter(DefaultForceWindow, FillGrowing)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		got := f.Update(0.02)
		assert.InDelta(t, 0.02, got, 1e-12, "sample %d", i+1)
	}
	assert.True(t, f.Filling())
}

func TestForceFilterParityFill(t *testing.T) {
	f, err := NewForceFilter(DefaultForceWindow, FillParity)
	require.NoError(t, err)

	// During fill the legacy behaviour divides by the full window.
	var got float64
	for i := 0; i < 10; i++ {
		got = f.Update(1.0)
	}
	assert.InDelta(t, 10.0/50.0, got, 1e-12)

	for i := 10; i < 50; i++ {
		got = f.Update(1.0)
	}
	assert.False(t, f.Filling())
	assert.InDelta(t, 1.0, got, 1e-12)
}

func TestForceFilterSlidesAfterFill(t *testing.T) {
	f, err := NewForceFilter(4, FillGrowing)
	require.NoError(t, err)

	for _, v := range []float64{1, 2, 3, 4} {
		f.Update(v)
	}
	assert.InDelta(t, 2.5, f.Value(), 1e-12)
	assert.Equal(t, 1.0, f.Reference())

	// Evicts 1.
	assert.InDelta(t, (2+3+4+10)/4.0, f.Update(10), 1e-12)
	assert.Equal(t, 2.0, f.Reference())
}

func TestParseFillMode(t *testing.T) {
	tests := []struct {
		in      string
		want    FillMode
		wantErr bool
	}{
		{"growing", FillGrowing, false},
		{"", FillGrowing, false},
		{" Parity ", FillParity, false},
		{"average", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFillMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func feedConstant(t *testing.T, c *Classifier, v float64, n int) (Level, bool) {
	t.Helper()
	var (
		level Level
		ok    bool
	)
	for i := 0; i < n; i++ {
		level, ok = c.Update(v)
	}
	return level, ok
}

func TestClassifierNotReadyBeforeFullWindow(t *testing.T) {
	c, err := NewClassifier(DefaultFeedbackWindow, testThreshold, DefaultFeedbackBand)
	require.NoError(t, err)

	level, ok := feedConstant(t, c, testThreshold, DefaultFeedbackWindow-1)
	assert.False(t, ok)
	assert.Equal(t, Unknown, level)

	level, ok = c.Update(testThreshold)
	assert.True(t, ok)
	assert.Equal(t, Within, level)
}

func TestClassifierBoundaries(t *testing.T) {
	lower := testThreshold - DefaultFeedbackBand
	upper := testThreshold + DefaultFeedbackBand

	tests := []struct {
		name  string
		value float64
		want  Level
	}{
		{"exactly lower bound is within", lower, Within},
		{"just under lower bound is below", lower - 0.0001, Below},
		{"threshold is within", testThreshold, Within},
		{"just under upper bound is within", upper - 0.0001, Within},
		{"a fraction of a nanovolt under upper bound is within", upper - 5e-10, Within},
		{"a fraction of a nanovolt under lower bound is below", lower - 5e-10, Below},
		{"upper bound is above", upper, Above},
		{"far above", 1.0, Above},
		{"zero", 0, Below},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClassifier(DefaultFeedbackWindow, testThreshold, DefaultFeedbackBand)
			require.NoError(t, err)
			level, ok := feedConstant(t, c, tt.value, 3*DefaultFeedbackWindow)
			require.True(t, ok)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestClassifierIndependentOfForceFilter(t *testing.T) {
	f, err := NewForceFilter(DefaultForceWindow, FillGrowing)
	require.NoError(t, err)
	c, err := NewClassifier(DefaultFeedbackWindow, testThreshold, DefaultFeedbackBand)
	require.NoError(t, err)

	// 50 high samples then 25 low ones: the short window forgets the high
	// samples while the long one still averages them.
	var level Level
	for i := 0; i < 50; i++ {
		f.Update(0.1)
		level, _ = c.Update(0.1)
	}
	assert.Equal(t, Above, level)
	for i := 0; i < 25; i++ {
		f.Update(0.0)
		level, _ = c.Update(0.0)
	}
	assert.Equal(t, Below, level)
	assert.InDelta(t, 0.05, f.Value(), 1e-12)
}

func TestLevelSymbols(t *testing.T) {
	assert.Equal(t, "+++", Below.Symbol())
	assert.Equal(t, "-", Within.Symbol())
	assert.Equal(t, "---", Above.Symbol())
	assert.Equal(t, "", Unknown.Symbol())
	assert.Equal(t, "within", Within.String())
}

func TestNewClassifierRejectsBadArgs(t *testing.T) {
	_, err := NewClassifier(0, testThreshold, DefaultFeedbackBand)
	assert.Error(t, err)
	_, err = NewClassifier(25, testThreshold, -1)
	assert.Error(t, err)
}
