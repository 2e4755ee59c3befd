/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// segment is either literal text or a placeholder name.
type segment struct {
	text        string
	placeholder string
}

// parse splits a template into literal and placeholder segments.
func parse(template string) ([]segment, error) {
	var segs []segment
	for len(template) > 0 {
		start := strings.Index(template, "{{")
		if start < 0 {
			segs = append(segs, segment{text: template})
			break
		}
		if start > 0 {
			segs = append(segs, segment{text: template[:start]})
		}
		end := strings.Index(template[start:], "}}")
		if end < 0 {
			return nil, errors.New("unclosed binding: missing '}}'")
		}
		name := strings.TrimSpace(template[start+2 : start+end])
		if !isIdentifier(name) {
			return nil, fmt.Errorf("invalid binding identifier %q", name)
		}
		segs = append(segs, segment{placeholder: name})
		template = template[start+end+2:]
	}
	return segs, nil
}

// isIdentifier accepts a letter followed by letters, digits, or underscores.
func isIdentifier(s string) bool {
	for i, r := range s {
		if i == 0 && !unicode.IsLetter(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return s != ""
}
