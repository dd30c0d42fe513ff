// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package monitor

import (
	"bufio"
	"io"
	"regexp"
	"time"
)

var (
	logTime    = regexp.MustCompile(`(?:^|\s)time=(\S+)`)
	logOutcome = regexp.MustCompile(`(?:^|\s)outcome=(\S+)`)
)

// HunterLogRate counts resolved lookups at or after since in a hunter
// diagnostic log. Lines are in slog text form, as written by
// `chondro hunt --verbose`; lines without a parseable time or an outcome
// are ignored.
func HunterLogRate(r io.Reader, since time.Time) (int, error) {
	n := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		o := logOutcome.FindStringSubmatch(line)
		if o == nil || !resolved(o[1]) {
			continue
		}
		m := logTime.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, m[1])
		if err != nil {
			continue
		}
		if !ts.Before(since) {
			n++
		}
	}
	return n, sc.Err()
}
