/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package contextbuilder

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

const (
	pathMatchScore    = 5
	contentMatchScore = 1
	minTermLength     = 4
)

var (
	codeSpan     = regexp.MustCompile("`([^`]+)`")
	nonTermChars = regexp.MustCompile(`[^a-zA-Z0-9_./-]`)
)

// ExtractTerms returns the search terms for a task in first-seen order:
// back-tick code spans, then words of at least four characters.
func ExtractTerms(tc TaskContext) []string {
	text := tc.text()
	seen := make(map[string]struct{})
	var terms []string
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}

	for _, m := range codeSpan.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, w := range strings.Fields(nonTermChars.ReplaceAllString(text, " ")) {
		if len(w) >= minTermLength {
			add(w)
		}
	}
	return terms
}

// Score rates one file against terms.
func Score(relPath, content string, terms []string) int {
	lowerPath := strings.ToLower(relPath)
	haystack := lowerPath + "\n" + strings.ToLower(content)

	score := 0
	for _, t := range terms {
		lt := strings.ToLower(t)
		if !strings.Contains(haystack, lt) {
			continue
		}
		if strings.Contains(lowerPath, lt) {
			score += pathMatchScore
		} else {
			score += contentMatchScore
		}
	}
	return score
}

// SelectRelevantFiles scores every source file under root against the
// task and returns the best MaxRelevantFiles, highest score first. Equal
// scores keep walk order. Unreadable files and directories are skipped.
func SelectRelevantFiles(ctx context.Context, root string, tc TaskContext) ([]RelevantFile, error) {
	terms := ExtractTerms(tc)
	log := clog.FromContext(ctx)
	if len(terms) == 0 {
		log.Warn("Task has no search terms, no files selected")
		return nil, nil
	}

	var candidates []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && p != root {
				return fs.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}
		if skipped(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsCodeFile(d.Name()) {
			candidates = append(candidates, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]*RelevantFile, len(candidates))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range candidates {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := os.ReadFile(p)
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			content := string(b)
			if s := Score(rel, content, terms); s > 0 {
				results[i] = &RelevantFile{Path: rel, Content: content, Score: s}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var relevant []RelevantFile
	for _, r := range results {
		if r != nil {
			relevant = append(relevant, *r)
		}
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Score > relevant[j].Score
	})
	if len(relevant) > MaxRelevantFiles {
		relevant = relevant[:MaxRelevantFiles]
	}

	log.With("terms", len(terms), "candidates", len(candidates)).Infof("Selected %d relevant files", len(relevant))
	return relevant, nil
}
