package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMeter(n int) (*Meter, *bytes.Buffer) {
	m := NewMeter(n)
	buf := &bytes.Buffer{}
	m.out = buf
	m.columns = func() int { return 100 }
	return m, buf
}

func (m *Meter) unthrottle() {
	m.mu.Lock()
	m.lastPrint = time.Now().Add(-2 * printInterval)
	m.mu.Unlock()
}

func TestMeterAddRemoveFinish(t *testing.T) {
	m, _ := newTestMeter(3)

	p := m.Add(0, "a.ts")
	require.NotNil(t, p)
	m.Add(1, "b.ts")

	assert.Panics(t, func() { m.Add(1, "dup.ts") })

	m.Remove(1)
	assert.Equal(t, 1, m.finished)
	assert.Len(t, m.processes, 1)

	m.Finish(0)
	m.processes[0].mu.Lock()
	assert.True(t, m.processes[0].finished)
	m.processes[0].mu.Unlock()
}

func TestMeterExpectedGrows(t *testing.T) {
	m, _ := newTestMeter(1)

	m.Add(0, "a.ts")
	m.Add(1, "b.ts")
	assert.Equal(t, 2, m.expected)

	m.SetNumberOfDownloads(5)
	assert.Equal(t, 5, m.expected)
	m.SetNumberOfDownloads(2)
	assert.Equal(t, 5, m.expected, "expected count never shrinks")
}

func TestMeterPrintThrottled(t *testing.T) {
	m, buf := newTestMeter(1)
	m.Add(0, "a.ts")

	// fresh meter: last render time is construction time
	m.Print()
	assert.Empty(t, buf.String())

	m.unthrottle()
	m.Print()
	assert.NotEmpty(t, buf.String())
}

func TestMeterPrintRendersActiveAndTotal(t *testing.T) {
	m, buf := newTestMeter(2)

	a := m.Add(0, "seg-1.ts")
	m.Add(1, "seg-2.ts")
	a.Update(1000, 500)

	m.unthrottle()
	m.Print()

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "seg-1.ts")
	assert.Contains(t, lines[1], "seg-2.ts")
	assert.Contains(t, lines[2], "total (0/2)")
	assert.Equal(t, 3, m.lastLines)

	// next render rewinds over the previously printed block
	m.unthrottle()
	buf.Reset()
	m.Print()
	assert.Equal(t, 3, strings.Count(buf.String(), cursorUp))
}

func TestMeterFinishedLinePrintedOnceAndDiscarded(t *testing.T) {
	m, buf := newTestMeter(2)

	a := m.Add(0, "done.ts")
	m.Add(1, "running.ts")
	a.Update(100, 100)
	m.Finish(0)

	// a finished transfer bypasses the once-per-second throttle
	m.Print()
	first := buf.String()
	assert.Contains(t, first, "done.ts")
	assert.Contains(t, first, "running.ts")
	assert.Contains(t, first, "total (1/2)")

	assert.Len(t, m.processes, 1)
	assert.Equal(t, 1, m.finished)
	// finished line scrolled away: only running + total get rewound
	assert.Equal(t, 2, m.lastLines)

	m.unthrottle()
	buf.Reset()
	m.Print()
	assert.NotContains(t, buf.String(), "done.ts")
}

func TestMeterTotalKeepsDiscardedBytes(t *testing.T) {
	m, buf := newTestMeter(2)

	a := m.Add(0, "done.ts")
	a.Update(1000, 1000)
	m.Finish(0)
	m.Print() // discards the finished record

	b := m.Add(1, "next.ts")
	b.Update(1000, 250)

	m.unthrottle()
	buf.Reset()
	m.Print()

	m.main.mu.Lock()
	defer m.main.mu.Unlock()
	assert.Equal(t, uint64(1250), m.main.transferred)
	assert.Equal(t, uint64(2000), m.main.total)
}

func TestProcessSamples(t *testing.T) {
	p := newProcess(0, "a.ts", time.Now().Add(-time.Hour))

	require.Len(t, p.samples, 1, "seeded with the start sample")

	p.Update(1000, 10)
	require.Len(t, p.samples, 2)

	// updates in quick succession do not pile up samples
	p.Update(1000, 20)
	p.Update(1000, 30)
	require.Len(t, p.samples, 2)

	p.mu.Lock()
	for i := 0; i < 10; i++ {
		p.appendSample(time.Now().Add(time.Duration(i+2)*2*time.Second), uint64(100*i))
	}
	assert.Len(t, p.samples, maxSamples)
	p.mu.Unlock()
}

func TestProcessUpdateSnapshot(t *testing.T) {
	p := newProcess(0, "a.ts", time.Now())
	p.Update(100, 40)
	s := p.snapshot()
	assert.Equal(t, uint64(40), s.transferred)
	assert.Equal(t, uint64(100), s.total)
	assert.False(t, s.finished)
}
