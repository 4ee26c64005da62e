// Package parse turns positional-free key=value CLI tokens into a map.
package parse

import "strings"

// Args splits each token on the first '='. Tokens with no '=' or with an
// empty key are returned in bad and skipped; "key=" maps key to "".
func Args(argv []string) (opts map[string]string, bad []string) {
	opts = make(map[string]string, len(argv))
	for _, arg := range argv {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			bad = append(bad, arg)
			continue
		}
		opts[k] = v
	}
	return opts, bad
}
