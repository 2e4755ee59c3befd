/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package contextbuilder

import (
	"path"
	"strings"
)

const (
	// DefaultMaxDepth bounds BuildTree's recursion.
	DefaultMaxDepth = 4
	// MaxRelevantFiles caps SelectRelevantFiles.
	MaxRelevantFiles = 15
	// maxTitleLength bounds TaskContext.Title.
	maxTitleLength = 120
)

var codeExtensions = map[string]struct{}{
	".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {}, ".py": {}, ".java": {},
	".go": {}, ".rb": {}, ".rs": {}, ".c": {}, ".cpp": {}, ".h": {},
	".hpp": {}, ".cs": {}, ".php": {}, ".swift": {}, ".kt": {}, ".vue": {},
	".svelte": {}, ".html": {}, ".css": {}, ".scss": {}, ".json": {},
	".yaml": {}, ".yml": {}, ".toml": {}, ".md": {}, ".sh": {}, ".bash": {},
	".sql": {},
}

var ignoreDirs = map[string]struct{}{
	"node_modules": {}, ".git": {}, "dist": {}, "build": {},
	"__pycache__": {}, ".next": {}, ".nuxt": {}, "vendor": {},
	"target": {}, "coverage": {}, ".venv": {}, "venv": {},
}

// TaskContext is the task as the rest of the pipeline sees it.
type TaskContext struct {
	Title string
	Body  string
}

// NewTaskContext derives a TaskContext from a free-text description.
func NewTaskContext(description string) TaskContext {
	title := []rune(description)
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return TaskContext{Title: string(title), Body: description}
}

func (tc TaskContext) text() string {
	return tc.Title + " " + tc.Body
}

// RelevantFile is a candidate source file for the model prompt.
type RelevantFile struct {
	// Path is relative to the repository root with forward slashes.
	Path    string
	Content string
	Score   int
}

// IsCodeFile reports whether name has a recognised source extension.
func IsCodeFile(name string) bool {
	_, ok := codeExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

func skipped(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := ignoreDirs[name]
	return ok
}
