// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sampling

// TrimCommonFrames removes from every stack the longest prefix shared by all
// stacks and then, from what remains, the longest shared suffix. Stacks are
// ordered outermost frame first and frames are compared by address. The
// returned stacks alias the input.
//
// For example, [[A B C D] [A B E D]] is trimmed to [[C] [E]].
func TrimCommonFrames(stacks [][]uintptr) [][]uintptr {
	if len(stacks) == 0 {
		return nil
	}
	prefix := commonPrefixLen(stacks)
	rest := make([][]uintptr, len(stacks))
	for i, s := range stacks {
		rest[i] = s[prefix:]
	}
	suffix := commonSuffixLen(rest)
	for i, s := range rest {
		rest[i] = s[:len(s)-suffix]
	}
	return rest
}

func commonPrefixLen(stacks [][]uintptr) int {
	n := len(stacks[0])
	for _, s := range stacks[1:] {
		n = min(n, len(s))
		for i := 0; i < n; i++ {
			if s[i] != stacks[0][i] {
				n = i
				break
			}
		}
	}
	return n
}

func commonSuffixLen(stacks [][]uintptr) int {
	first := stacks[0]
	n := len(first)
	for _, s := range stacks[1:] {
		n = min(n, len(s))
		for i := 1; i <= n; i++ {
			if s[len(s)-i] != first[len(first)-i] {
				n = i - 1
				break
			}
		}
	}
	return n
}
