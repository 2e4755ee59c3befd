/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package fixer asks a language model for a fix and parses its answer into
full-file patches.

The model is instructed to answer in a fixed marker format:

	===PATCH src/a.js===
	<full new file content>
	===END_PATCH===
	===EXPLANATION===
	<one paragraph>
	===END_EXPLANATION===

ParseResponse also accepts fenced code blocks whose first line is a file path
when no PATCH markers are present, and falls back to the trailing lines of
the response when the explanation markers are missing. A response with no
parseable patches is returned as-is; deciding whether that is fatal is left
to the caller.
*/
package fixer
