/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fixer

import (
	"encoding/xml"

	"chainguard.dev/bugfixer/agents/promptbuilder"
	"chainguard.dev/bugfixer/workspace/contextbuilder"
)

// MaxFileChars bounds how much of each relevant file is sent to the model.
const MaxFileChars = 8000

const truncationMarker = "\n… (truncated)"

const systemPrompt = `You are an expert software engineer tasked with fixing bugs in code repositories.

RULES:
1. Analyze the task description, the repository structure, and the relevant source files carefully.
2. Produce MINIMAL, TARGETED changes that fix the problem. Change only what is necessary.
3. Do NOT refactor, reformat, or rename code unrelated to the task.
4. Return your fix as one or more FILE PATCHES in the exact format below.
5. Each patch must specify the FULL file path relative to the repository root and contain the COMPLETE new file content, not a diff.
6. After the patches, provide a short EXPLANATION section.

OUTPUT FORMAT (strict):

===PATCH path/to/file.ext===
<full new file content>
===END_PATCH===

===PATCH path/to/another.ext===
<full new file content>
===END_PATCH===

===EXPLANATION===
<one paragraph describing the root cause and what you changed>
===END_EXPLANATION===`

var userPrompt = promptbuilder.MustNewPrompt(`Fix the bug or implement the task described below.

{{task}}

The repository is laid out as follows (directories end with "/"):

{{tree}}

These are the source files most relevant to the task:

{{files}}

Please fix the bug or implement the task described above. Return your changes using the PATCH format from your instructions.`)

type taskXML struct {
	XMLName     xml.Name `xml:"task"`
	Title       string   `xml:"title"`
	Description string   `xml:"description"`
}

type treeXML struct {
	XMLName xml.Name `xml:"repository_structure"`
	Text    string   `xml:",chardata"`
}

type fileYAML struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

func buildUserPrompt(tc contextbuilder.TaskContext, tree string, files []contextbuilder.RelevantFile) (string, error) {
	p, err := userPrompt.BindXML("task", taskXML{Title: tc.Title, Description: tc.Body})
	if err != nil {
		return "", err
	}
	if p, err = p.BindXML("tree", treeXML{Text: "\n" + tree + "\n"}); err != nil {
		return "", err
	}
	entries := make([]fileYAML, 0, len(files))
	for _, f := range files {
		entries = append(entries, fileYAML{Path: f.Path, Content: truncate(f.Content)})
	}
	if p, err = p.BindYAML("files", entries); err != nil {
		return "", err
	}
	return p.Build()
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxFileChars {
		return s
	}
	return string(r[:MaxFileChars]) + truncationMarker
}
