// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package similarity scores how alike two titles are.
package similarity

import (
	"strings"
	"unicode"
)

// Ratio returns the Ratcliff/Obershelp similarity of a and b in [0, 1]:
// twice the number of matched runes divided by the total rune count.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matches(ra, rb)) / float64(total)
}

// TitleRatio compares two titles after Normalize.
func TitleRatio(a, b string) float64 {
	return Ratio(Normalize(a), Normalize(b))
}

// Normalize lowercases s, replaces punctuation with spaces, and collapses
// runs of whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// matches counts runes in the matching blocks found by recursively taking
// the longest common substring and recursing on both sides of it.
func matches(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }
	total := 0
	stack := []span{{0, len(a), 0, len(b)}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		i, j, k := longest(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		total += k
		if s.alo < i && s.blo < j {
			stack = append(stack, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			stack = append(stack, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return total
}

// longest finds the longest common substring of a[alo:ahi] and b[blo:bhi].
// Ties resolve to the earliest position in a, then in b.
func longest(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	prev := make([]int, bhi-blo+1)
	cur := make([]int, bhi-blo+1)
	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			if a[i] == b[j] {
				k := prev[j-blo] + 1
				cur[j-blo+1] = k
				if k > bestk {
					besti, bestj, bestk = i-k+1, j-k+1, k
				}
			} else {
				cur[j-blo+1] = 0
			}
		}
		prev, cur = cur, prev
		for x := range cur {
			cur[x] = 0
		}
	}
	return besti, bestj, bestk
}
