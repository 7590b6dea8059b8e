package header

import (
	"regexp"
	"slices"
	"strings"
	"sync"
)

var (
	addressRegexp = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)

	fieldMu      sync.Mutex
	fieldRegexps = make(map[string]*regexp.Regexp)
)

// Field returns the value of the first "<key>: <value>" line in headers.
// The match is case-insensitive and anchored to the start of a line. The
// value is passed through Clean. ok is false when no line matches.
func Field(headers, key string) (value string, ok bool) {
	if headers == "" || key == "" {
		return "", false
	}
	m := fieldRegexp(key).FindStringSubmatch(headers)
	if m == nil {
		return "", false
	}
	return Clean(m[1]), true
}

func fieldRegexp(key string) *regexp.Regexp {
	k := strings.ToLower(key)
	fieldMu.Lock()
	defer fieldMu.Unlock()
	if re, ok := fieldRegexps[k]; ok {
		return re
	}
	re := regexp.MustCompile(`(?im)^` + regexp.QuoteMeta(k) + `:[ \t]*(.+)$`)
	fieldRegexps[k] = re
	return re
}

// Addresses returns every local-part@domain substring of text, lowercased
// and deduplicated. The result is sorted so callers get a stable order.
// Nothing beyond the pattern is validated.
func Addresses(text string) []string {
	if text == "" {
		return nil
	}
	found := addressRegexp.FindAllString(text, -1)
	if len(found) == 0 {
		return nil
	}
	out := make([]string, 0, len(found))
	for _, a := range found {
		out = append(out, strings.ToLower(a))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Domain returns the lowercased part of addr after the last '@'.
func Domain(addr string) (string, bool) {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 || i == len(addr)-1 {
		return "", false
	}
	return strings.ToLower(addr[i+1:]), true
}
