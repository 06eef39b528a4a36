// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/force_feedback/internal/config"
)

// fakePort answers each request with the next scripted reply. An empty
// reply simulates a timeout: Read returns 0, nil as go.bug.st/serial does.
// late is input that arrives just after the next ResetInputBuffer.
type fakePort struct {
	mu      sync.Mutex
	replies []string
	late    string
	pending []byte
	written bytes.Buffer
	resets  int
	timeout time.Duration
	closed  bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written.Write(b)
	if len(p.replies) > 0 {
		p.pending = append(p.pending, p.replies[0]...)
		p.replies = p.replies[1:]
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Close() error                         { p.closed = true; return nil }
func (p *fakePort) SetReadTimeout(t time.Duration) error { p.timeout = t; return nil }
func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	p.pending = []byte(p.late)
	p.late = ""
	return nil
}

func TestSerialDAQParsesSample(t *testing.T) {
	port := &fakePort{replies: []string{"0.1,0.0349,0.2,0.3,0.4,0.5\r\n"}}
	d, err := NewSerialDAQ(port, 6, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, port.timeout)

	got, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.0349, 0.2, 0.3, 0.4, 0.5}, got)
	assert.Equal(t, "R\n", port.written.String())
	assert.Equal(t, 6, d.Channels())
}

func TestSerialDAQTimeoutIsDroppedSample(t *testing.T) {
	port := &fakePort{replies: []string{"", "1,2\n"}}
	d, err := NewSerialDAQ(port, 2, time.Millisecond)
	require.NoError(t, err)

	_, err = d.Read(context.Background())
	assert.True(t, errors.Is(err, ErrSampleTimeout))

	got, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got)
	assert.Equal(t, 1, port.resets)
}

func TestSerialDAQDiscardsLateReply(t *testing.T) {
	// The reply to the timed out request shows up after the input reset.
	port := &fakePort{replies: []string{"", "3,4\n", "5,6\n"}, late: "1,2\n"}
	d, err := NewSerialDAQ(port, 2, time.Millisecond)
	require.NoError(t, err)

	_, err = d.Read(context.Background())
	require.ErrorIs(t, err, ErrSampleTimeout)

	got, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, got)

	got, err = d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, got)
	assert.Equal(t, "R\nR\nR\n", port.written.String())
}

func TestSerialDAQKeepsDrainingWhileLineIsBusy(t *testing.T) {
	port := &fakePort{replies: []string{""}, late: strings.Repeat("9,9\n", maxDrain)}
	d, err := NewSerialDAQ(port, 2, time.Millisecond)
	require.NoError(t, err)

	_, err = d.Read(context.Background())
	require.ErrorIs(t, err, ErrSampleTimeout)

	_, err = d.Read(context.Background())
	assert.ErrorIs(t, err, ErrSampleTimeout)
	assert.Equal(t, "R\n", port.written.String(), "no request while input is still arriving")
}

func TestSerialDAQRejectsMalformedLines(t *testing.T) {
	port := &fakePort{replies: []string{"1,2,3\n", "1,x\n", "7,8\n"}}
	d, err := NewSerialDAQ(port, 2, time.Millisecond)
	require.NoError(t, err)

	_, err = d.Read(context.Background())
	assert.ErrorIs(t, err, ErrMalformedSample)
	assert.ErrorContains(t, err, "expected 2 channels")
	_, err = d.Read(context.Background())
	assert.ErrorIs(t, err, ErrMalformedSample)
	assert.ErrorContains(t, err, "channel 1")
	assert.True(t, IsDropped(err))

	got, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8}, got)
}

func TestIsDropped(t *testing.T) {
	assert.True(t, IsDropped(ErrSampleTimeout))
	assert.True(t, IsDropped(fmt.Errorf("wrapped: %w", ErrMalformedSample)))
	assert.False(t, IsDropped(errors.New("port gone")))
	assert.False(t, IsDropped(nil))
}

func TestNewSerialDAQValidates(t *testing.T) {
	_, err := NewSerialDAQ(&fakePort{}, 0, time.Millisecond)
	assert.Error(t, err)
	_, err = NewSerialDAQ(&fakePort{}, 6, 0)
	assert.Error(t, err)
}

func TestConstantMock(t *testing.T) {
	m := NewConstantMock(6, 1, 0.02)
	for i := 0; i < 10; i++ {
		got, err := m.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0.02, 0, 0, 0, 0}, got)
	}
	m.SetLevel(0.04)
	got, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.04, got[1])
}

func TestMockSwaysAroundLevel(t *testing.T) {
	m := NewMock(6, 1, 0.02)
	for i := 0; i < 3000; i++ {
		got, err := m.Read(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 6)
		assert.InDelta(t, 0.02, got[1], 0.02*0.05+1e-12)
	}
}

func TestMockHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock(6, 1, 0.02).Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenSelectsMock(t *testing.T) {
	cfg := config.Default()
	dev, err := Open(cfg)
	require.NoError(t, err)
	defer dev.Close()
	assert.IsType(t, &Mock{}, dev)
	assert.Equal(t, 6, dev.Channels())

	cfg.DAQDriver = "bogus"
	_, err = Open(cfg)
	assert.Error(t, err)
}
