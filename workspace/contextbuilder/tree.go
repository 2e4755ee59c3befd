/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package contextbuilder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind distinguishes directories from files in a tree.
type Kind string

const (
	KindDir  Kind = "dir"
	KindFile Kind = "file"
)

// Node is one entry of a directory tree.
type Node struct {
	Kind     Kind
	Name     string
	Children []Node
}

// BuildTree lists root up to maxDepth levels deep. Ignored and hidden
// entries are left out, files only appear when IsCodeFile accepts them, and
// unreadable directories yield an empty subtree.
func BuildTree(root string, maxDepth int) []Node {
	return buildTree(root, maxDepth, 0)
}

func buildTree(dir string, maxDepth, depth int) []Node {
	if depth >= maxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var nodes []Node
	for _, e := range entries {
		if skipped(e.Name()) {
			continue
		}
		switch {
		case e.IsDir():
			nodes = append(nodes, Node{
				Kind:     KindDir,
				Name:     e.Name(),
				Children: buildTree(filepath.Join(dir, e.Name()), maxDepth, depth+1),
			})
		case IsCodeFile(e.Name()):
			nodes = append(nodes, Node{Kind: KindFile, Name: e.Name()})
		}
	}
	return nodes
}

const indentUnit = "  "

// FormatTree renders nodes one per line, two spaces of indent per level,
// with a trailing slash on directories.
func FormatTree(nodes []Node) string {
	var sb strings.Builder
	formatTree(&sb, nodes, "")
	return sb.String()
}

func formatTree(sb *strings.Builder, nodes []Node, indent string) {
	for _, n := range nodes {
		if n.Kind == KindDir {
			fmt.Fprintf(sb, "%s%s/\n", indent, n.Name)
			formatTree(sb, n.Children, indent+indentUnit)
			continue
		}
		fmt.Fprintf(sb, "%s%s\n", indent, n.Name)
	}
}

// ParseTree reverses FormatTree.
func ParseTree(text string) ([]Node, error) {
	root := &Node{Kind: KindDir}
	// stack[i] is the directory that receives nodes at depth i.
	stack := []*Node{root}

	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		trimmed := strings.TrimLeft(line, " ")
		pad := len(line) - len(trimmed)
		if pad%len(indentUnit) != 0 {
			return nil, fmt.Errorf("line %d: indent of %d spaces is not a multiple of %d", i+1, pad, len(indentUnit))
		}
		depth := pad / len(indentUnit)
		if depth >= len(stack) {
			return nil, fmt.Errorf("line %d: depth %d has no parent directory", i+1, depth)
		}
		stack = stack[:depth+1]
		parent := stack[depth]

		if name, ok := strings.CutSuffix(trimmed, "/"); ok {
			parent.Children = append(parent.Children, Node{Kind: KindDir, Name: name})
			stack = append(stack, &parent.Children[len(parent.Children)-1])
			continue
		}
		parent.Children = append(parent.Children, Node{Kind: KindFile, Name: trimmed})
	}
	return root.Children, nil
}
