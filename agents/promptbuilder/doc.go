/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package promptbuilder assembles model prompts from developer-written
templates and untrusted data.

Templates contain {{name}} placeholders and must be string literals, so the
instructions always come from the developer. Untrusted values are bound
through an encoder (XML or YAML) that escapes them, and substitution is a
single pass over the parsed template, so a bound value that itself contains
"{{name}}" is never expanded:

	var fixPrompt = promptbuilder.MustNewPrompt(`Task:
	{{task}}

	Files:
	{{files}}`)

	p, err := fixPrompt.BindXML("task", task)
	...
	p, err = p.BindYAML("files", files)
	...
	text, err := p.Build()

Prompts are immutable; every Bind method returns a new Prompt and binding a
name twice is an error.
*/
package promptbuilder
