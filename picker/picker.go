// Package picker asks the user to choose a variant stream from a master
// playlist by pressing a single key.
package picker

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mad-int/hlsget/m3u8"

	"golang.org/x/term"
)

const maxInvalidKeys = 5

const (
	keyCtrlC = 0x03
	keyCtrlD = 0x04
)

// readKey is swapped out in tests.
var readKey = readKeyRaw

var out io.Writer = os.Stdout

// Pick shows the variant menu and returns the chosen index, or -1 when the
// user cancels. At most nine variants are offered; five invalid keypresses
// count as cancelling.
func Pick(variants []m3u8.URLProperties) int {
	if len(variants) == 0 {
		return -1
	}

	n := len(variants)
	if n > 9 {
		n = 9
	}

	fmt.Fprintf(out, "Found %d variant streams:\n", len(variants))
	for i := 0; i < n; i++ {
		fmt.Fprintf(out, "  [%d] %s\n", i+1, describe(variants[i]))
	}
	fmt.Fprintf(out, "Pick a variant (1-%d, ENTER for 1, c to cancel): ", n)

	invalid := 0
	for invalid < maxInvalidKeys {
		key, err := readKey(false)
		if err != nil {
			fmt.Fprintln(out)
			return -1
		}

		switch {
		case key == '\r' || key == '\n':
			fmt.Fprintln(out)
			return 0
		case key >= '1' && key <= '9':
			idx := int(key - '1')
			if idx < n {
				fmt.Fprintf(out, "%c\n", key)
				return idx
			}
			invalid++
		case key == 'c' || key == keyCtrlC || key == keyCtrlD:
			fmt.Fprintln(out)
			return -1
		default:
			invalid++
		}
	}

	fmt.Fprintln(out)
	return -1
}

func describe(v m3u8.URLProperties) string {
	parts := []string{}
	for _, key := range []string{"RESOLUTION", "BANDWIDTH", "CODECS"} {
		if val, ok := v.Properties[key]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", key, val))
		}
	}
	if len(parts) == 0 {
		return v.URL
	}
	return strings.Join(parts, " ")
}

// readKeyRaw reads one keypress with the terminal in raw mode. When stdin is
// not a terminal it falls back to taking the first byte of buffered input.
func readKeyRaw(echo bool) (byte, error) {
	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		b, err := bufio.NewReader(os.Stdin).ReadByte()
		return b, err
	}

	old, err := term.MakeRaw(fd)
	if err != nil {
		return 0, err
	}
	defer term.Restore(fd, old)

	var buf [1]byte
	if _, err := os.Stdin.Read(buf[:]); err != nil {
		return 0, err
	}
	if echo {
		fmt.Fprintf(out, "%c", buf[0])
	}
	return buf[0], nil
}
