/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fixer

import (
	"regexp"
	"strings"

	"chainguard.dev/bugfixer/workspace/patch"
)

var (
	patchBlock       = regexp.MustCompile(`===PATCH\s+(.+?)===\n([\s\S]*?)===END_PATCH===`)
	fencedBlock      = regexp.MustCompile("```[\\w]*\\n([\\s\\S]*?)```")
	explanationBlock = regexp.MustCompile(`===EXPLANATION===\n([\s\S]*?)===END_EXPLANATION===`)
)

// explanationFallbackLines is how many trailing lines stand in for a
// missing explanation.
const explanationFallbackLines = 10

// ParseResponse extracts patches and an explanation from model output.
func ParseResponse(text string) ([]patch.Patch, string) {
	return parsePatches(text), parseExplanation(text)
}

func parsePatches(text string) []patch.Patch {
	var patches []patch.Patch
	for _, m := range patchBlock.FindAllStringSubmatch(text, -1) {
		patches = append(patches, patch.Patch{FilePath: strings.TrimSpace(m[1]), Content: m[2]})
	}
	if len(patches) > 0 {
		return patches
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		first, rest, _ := strings.Cut(m[1], "\n")
		if !strings.ContainsAny(first, "/.") {
			continue
		}
		patches = append(patches, patch.Patch{FilePath: strings.TrimSpace(first), Content: rest})
	}
	return patches
}

func parseExplanation(text string) string {
	if m := explanationBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	lines := strings.Split(text, "\n")
	if len(lines) > explanationFallbackLines {
		lines = lines[len(lines)-explanationFallbackLines:]
	}
	return strings.Join(lines, "\n")
}
