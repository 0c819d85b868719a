package progress

import (
	"fmt"
	"strings"
	"time"
)

const undefinedCursor = "<->"

// formatLine renders one meter line:
//
//	<name> <transferred> <unit>  <speed> <unit/s> <mm:ss> [<bar>] <pct>%
//
// The name and the bar share the columns left over after the fixed-width
// fields; a terminal too narrow to fit them yields an empty line.
func formatLine(s lineSnap, cols int, now time.Time) string {
	quantity, unit := shortenBytes(s.transferred)
	transferredStr := fmt.Sprintf("%5.1f %3s", quantity, unit)

	elapsed := now.Sub(s.start)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) - mins*60
	timeStr := fmt.Sprintf("%02d:%02d", mins, secs)

	speed, speedUnit := calcAvgSpeed(s.samples)
	var speedStr string
	if speed < 0 {
		speedStr = fmt.Sprintf("  -.- %5s", speedUnit)
	} else {
		speedStr = fmt.Sprintf("%5.1f %5s", speed, speedUnit)
	}

	percentStr := formatPercent(s)

	fixed := 1 + len(transferredStr) + 2 + len(speedStr) + 1 + len(timeStr) + 1 + len(percentStr)
	if fixed+20 > cols {
		return ""
	}
	left := cols - fixed

	nameWidth := left/2 - 1
	name := fmt.Sprintf("%-*s", nameWidth, shortenString(s.name, nameWidth))

	barWidth := left/2 - 3
	var bar string
	switch {
	case s.total > 0:
		bar = filledBar(s.transferred, s.total, barWidth)
	case s.finished:
		bar = filledBar(1, 1, barWidth)
	default:
		bar = undefinedBar(int(elapsed.Seconds()), undefinedCursor, barWidth)
	}

	return fmt.Sprintf(" %s %s  %s %s [%s] %s", name, transferredStr, speedStr, timeStr, bar, percentStr)
}

func formatPercent(s lineSnap) string {
	var percent float64
	switch {
	case s.hasForcedPercent:
		percent = s.forcedPercent
	case s.total > 0:
		percent = float64(s.transferred) / float64(s.total)
	case s.finished:
		return "100%"
	default:
		return "---%"
	}

	if s.finished || percent >= 1.0 {
		return "100%"
	}
	return fmt.Sprintf("%3d%%", int(percent*100))
}

// calcAvgSpeed estimates bytes/s from the last two samples. With fewer than
// two samples there is nothing to estimate and the quantity is -1.
func calcAvgSpeed(samples []sample) (float64, string) {
	if len(samples) < 2 {
		_, unit := shortenBytes(0)
		return -1, unit + "/s"
	}

	last := samples[len(samples)-1]
	prev := samples[len(samples)-2]
	elapsed := last.at.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		_, unit := shortenBytes(0)
		return -1, unit + "/s"
	}

	speed := float64(last.transferred-prev.transferred) / elapsed
	quantity, unit := shortenBytes(uint64(speed))
	return quantity, unit + "/s"
}

// filledBar returns a barWidth-character bar with floor(barWidth*progress)
// leading '#'.
func filledBar(transferred, total uint64, barWidth int) string {
	if barWidth <= 0 {
		return ""
	}
	percent := float64(transferred) / float64(total)
	filled := int(float64(barWidth) * percent)
	if filled > barWidth {
		filled = barWidth
	}
	return fmt.Sprintf("%-*s", barWidth, strings.Repeat("#", filled))
}

// undefinedBar places a bouncing cursor on an otherwise empty bar. The
// cursor walks right one column per second and turns around at the edges,
// giving a period of 2*(barWidth-len(cursor)+1).
func undefinedBar(secs int, cursor string, barWidth int) string {
	if barWidth <= len(cursor) {
		return strings.Repeat(" ", barWidth)
	}

	span := barWidth - len(cursor)
	pos := secs % (2 * (span + 1))
	if pos > span {
		pos = 2*span - pos + 1
	}

	return strings.Repeat(" ", pos) + cursor + strings.Repeat(" ", span-pos)
}

// shortenBytes scales a byte count down to under 1000 units, 1024-based.
func shortenBytes(bytes uint64) (float64, string) {
	quantity := float64(bytes)
	unit := "B"

	for _, bigger := range []string{"KiB", "MiB", "GiB"} {
		if quantity < 1000 {
			break
		}
		quantity /= 1024
		unit = bigger
	}

	return quantity, unit
}

// shortenString cuts str down to maxLen characters, marking the cut with a
// trailing "..".
func shortenString(str string, maxLen int) string {
	if len(str) <= maxLen {
		return str
	}
	if maxLen <= 2 {
		return str[:maxLen]
	}
	return str[:maxLen-2] + ".."
}
