// Package progress renders a multi-line terminal meter for a set of
// concurrent transfers: one line per active transfer, finished lines printed
// once and scrolled away, and an aggregate total line at the bottom. The same
// block of terminal lines is reused on every render via ANSI control
// sequences.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mad-int/hlsget/pkg/strutil"

	"golang.org/x/term"
)

const (
	clearLine = "\033[2K\r"
	cursorUp  = "\033[A"

	defaultColumns = 80
	printInterval  = time.Second
)

type Meter struct {
	out     io.Writer
	columns func() int

	mu        sync.Mutex
	processes []*Process
	main      *Process

	finished int
	expected int

	// byte counts of records already printed as finished and discarded,
	// carried so the total line never regresses
	doneTransferred uint64
	doneTotal       uint64

	lastLines int
	lastPrint time.Time
}

// NewMeter returns a meter expecting n transfers in total.
func NewMeter(n int) *Meter {
	now := time.Now()
	return &Meter{
		out:       os.Stdout,
		columns:   terminalColumns,
		main:      newProcess(-1, "total", now),
		expected:  n,
		lastPrint: now,
	}
}

// Add registers a new transfer under a meter-unique id and returns its
// progress record. Reusing a live id is a caller bug.
func (m *Meter) Add(id int, name string) *Process {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.find(id) != nil {
		panic(fmt.Sprintf("progress: process %v added twice", id))
	}

	p := newProcess(id, name, time.Now())
	m.processes = append(m.processes, p)

	if size := m.finished + len(m.processes); size > m.expected {
		m.expected = size
	}
	return p
}

// Remove drops a record that never got to transfer anything. The slot still
// counts as finished so the total line adds up.
func (m *Meter) Remove(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discard(id)
	m.finished++
}

// Finish marks the transfer as done; its line is printed for the last time
// on the next render.
func (m *Meter) Finish(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p := m.find(id); p != nil {
		p.finish()
	}
}

// SetNumberOfDownloads raises the expected-transfer count shown in the
// total line. It never lowers it.
func (m *Meter) SetNumberOfDownloads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > m.expected {
		m.expected = n
	}
}

func (m *Meter) find(id int) *Process {
	for _, p := range m.processes {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (m *Meter) discard(id int) {
	for i, p := range m.processes {
		if p.id == id {
			m.processes = append(m.processes[:i], m.processes[i+1:]...)
			return
		}
	}
}

// Print renders the current state. Renders are throttled to one per second
// unless a transfer has just finished, which flushes immediately so its
// final line is not lost.
func (m *Meter) Print() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	var finished, active []lineSnap
	anyFinished := false
	for _, p := range m.processes {
		s := p.snapshot()
		if s.finished {
			finished = append(finished, s)
			anyFinished = true
		} else {
			active = append(active, s)
		}
	}

	if !anyFinished && now.Sub(m.lastPrint) < printInterval {
		return
	}
	m.lastPrint = now

	cols := m.columns()

	for i := 0; i < m.lastLines; i++ {
		fmt.Fprint(m.out, cursorUp, clearLine)
	}

	for _, s := range finished {
		fmt.Fprintln(m.out, formatLine(s, cols, now))
		m.discard(s.id)
		m.finished++
		m.doneTransferred += s.transferred
		if s.total > 0 {
			m.doneTotal += s.total
		} else {
			m.doneTotal += s.transferred
		}
	}

	lines := 0
	for _, s := range active {
		fmt.Fprintln(m.out, formatLine(s, cols, now))
		lines++
	}

	fmt.Fprintln(m.out, formatLine(m.totalSnapshot(active, now), cols, now))
	lines++

	m.lastLines = lines
}

// totalSnapshot aggregates the live records plus everything already
// discarded into the main record. Callers must hold m.mu.
func (m *Meter) totalSnapshot(active []lineSnap, now time.Time) lineSnap {
	transferred := m.doneTransferred
	total := m.doneTotal
	totalKnown := true
	for _, s := range active {
		transferred += s.transferred
		if s.total == 0 {
			totalKnown = false
		}
		total += s.total
	}
	if !totalKnown {
		total = 0
	}

	m.main.mu.Lock()
	m.main.transferred = transferred
	m.main.total = total
	m.main.appendSample(now, transferred)
	m.main.mu.Unlock()

	s := m.main.snapshot()

	width := strutil.CountDigits(m.expected)
	s.name = fmt.Sprintf("total (%-*d/%-*d)", width, m.finished, width, m.expected)
	s.finished = m.expected > 0 && m.finished >= m.expected

	if m.finished < m.expected {
		s.forcedPercent = float64(m.finished) / float64(m.expected)
	} else {
		s.forcedPercent = 1.0
	}
	s.hasForcedPercent = true

	return s
}

func terminalColumns() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultColumns
	}
	return w
}
