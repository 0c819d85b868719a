package m3u8

import (
	"bufio"
	"io"
	"strings"
)

func (p *Playlist) parse(r io.Reader) {
	scanner := bufio.NewScanner(r)

	if firstLine(scanner) != extM3U {
		p.Err = ErrWrongFileFormat
		return
	}

	pending := map[string]string{}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case line == "#EXT-X-ENDLIST":
			return

		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			for k, v := range parseStreamInf(line) {
				pending[k] = v
			}
			p.Master = true

		case strings.HasPrefix(line, "#EXTINF:"):
			for k, v := range parseExtInf(line) {
				pending[k] = v
			}
			p.Media = true

		case line == "":
			pending = map[string]string{}

		case !strings.HasPrefix(line, "#"):
			p.URLs = append(p.URLs, URLProperties{URL: line, Properties: pending})
			pending = map[string]string{}

			// remaining #... lines are unsupported tags, skip them
		}
	}
}

func firstLine(scanner *bufio.Scanner) string {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			return line
		}
	}
	return ""
}

// parseStreamInf handles "#EXT-X-STREAM-INF:KEY1=VALUE1,KEY2=VALUE2,...".
func parseStreamInf(line string) map[string]string {
	_, info, ok := strings.Cut(line, ":")
	if !ok {
		return nil
	}
	return parseProperties(tokenizeProperties(info))
}

// parseExtInf handles "#EXTINF:RUNTIME(,KEY=VALUE)*(,DISPLAY-TITLE)?".
// The leading runtime and the optional trailing title carry no "=", so they
// are stored under RUNTIME and DISPLAY-TITLE; either token that does contain
// "=" is treated as an ordinary attribute instead.
func parseExtInf(line string) map[string]string {
	_, info, ok := strings.Cut(line, ":")
	if !ok {
		return nil
	}

	tokens := tokenizeProperties(info)
	if len(tokens) == 0 {
		return nil
	}

	first := strings.TrimSpace(tokens[0])
	tokens = tokens[1:]

	last := ""
	if len(tokens) > 0 {
		last = strings.TrimSpace(tokens[len(tokens)-1])
		tokens = tokens[:len(tokens)-1]
	}

	props := parseProperties(tokens)

	if !strings.Contains(first, "=") {
		props["RUNTIME"] = first
	} else {
		k, v := parseProperty(first)
		props[k] = v
	}

	if last != "" {
		if !strings.Contains(last, "=") {
			props["DISPLAY-TITLE"] = last
		} else {
			k, v := parseProperty(last)
			props[k] = v
		}
	}

	return props
}

// tokenizeProperties splits an attribute list on commas, reassembling values
// that are double-quoted strings with commas inside, e.g.
// CODECS="mp4a.40.2,avc1.42c01e".
func tokenizeProperties(info string) []string {
	tokens := strings.Split(info, ",")

	fixed := make([]string, 0, len(tokens))
	quoted := ""
	for _, token := range tokens {
		switch {
		case quoted != "":
			quoted += "," + token
			if strings.HasSuffix(token, `"`) {
				fixed = append(fixed, quoted)
				quoted = ""
			}
		case strings.Count(token, `"`) == 1 && !strings.HasSuffix(token, `"`):
			quoted = token
		default:
			fixed = append(fixed, token)
		}
	}
	if quoted != "" { // unterminated quote, keep what we got
		fixed = append(fixed, quoted)
	}

	return fixed
}

// parseProperties turns KEY=VALUE tokens into a map. On duplicate keys the
// first occurrence wins. Tokens without "=" are dropped.
func parseProperties(tokens []string) map[string]string {
	props := map[string]string{}
	for _, t := range tokens {
		if !strings.Contains(t, "=") {
			continue
		}
		k, v := parseProperty(t)
		if _, seen := props[k]; !seen {
			props[k] = v
		}
	}
	return props
}

// parseProperty splits one KEY=VALUE token. Keys are uppercased, values are
// stripped of one pair of outer double quotes.
func parseProperty(prop string) (string, string) {
	k, v, _ := strings.Cut(prop, "=")
	key := strings.ToUpper(strings.TrimSpace(k))
	value := strings.TrimSpace(v)
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		value = value[1 : len(value)-1]
	}
	return key, value
}
