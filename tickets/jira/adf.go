/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package jira

import (
	"encoding/json"
	"strings"
)

// node is an Atlassian Document Format node.
type node struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Content []node `json:"content"`
}

// richText renders a field that is either a plain string or an ADF
// document. Anything else renders as "".
func richText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	var sb strings.Builder
	n.render(&sb)
	return strings.TrimRight(sb.String(), "\n")
}

func (n node) render(sb *strings.Builder) {
	switch n.Type {
	case "text":
		sb.WriteString(n.Text)
	case "hardBreak":
		sb.WriteString("\n")
	case "paragraph", "heading":
		n.children(sb)
		sb.WriteString("\n")
	case "codeBlock":
		sb.WriteString("```\n")
		n.children(sb)
		sb.WriteString("\n```\n")
	case "bulletList", "orderedList":
		for _, item := range n.Content {
			sb.WriteString("- ")
			item.render(sb)
		}
	default:
		n.children(sb)
	}
}

func (n node) children(sb *strings.Builder) {
	for _, c := range n.Content {
		c.render(sb)
	}
}
