/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testrunner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// npmDefaultTest is the placeholder script written by `npm init`.
const npmDefaultTest = `echo "Error: no test specified" && exit 1`

// Strategy is one test ecosystem.
type Strategy struct {
	Name string
	// Detect reports whether dir belongs to this ecosystem.
	Detect func(dir string) bool
	// Command returns the test argv, or nil when the project declares no
	// runnable tests.
	Command func(dir string) []string
	// Install optionally returns a best-effort dependency install argv.
	Install func(dir string) []string
}

// DefaultStrategies returns the built-in strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{{
		Name:    "npm",
		Detect:  hasAny("package.json"),
		Command: npmCommand,
		Install: npmInstall,
	}, {
		Name:    "pytest",
		Detect:  hasAny("pytest.ini", "setup.py", "pyproject.toml"),
		Command: fixed("python", "-m", "pytest", "--tb=short", "-q"),
	}, {
		Name:    "go",
		Detect:  hasAny("go.mod"),
		Command: fixed("go", "test", "./..."),
	}, {
		Name:    "cargo",
		Detect:  hasAny("Cargo.toml"),
		Command: fixed("cargo", "test"),
	}, {
		Name:    "maven",
		Detect:  hasAny("pom.xml"),
		Command: fixed("mvn", "test", "-q"),
	}}
}

func hasAny(markers ...string) func(string) bool {
	return func(dir string) bool {
		for _, m := range markers {
			if fi, err := os.Stat(filepath.Join(dir, m)); err == nil && !fi.IsDir() {
				return true
			}
		}
		return false
	}
}

func fixed(argv ...string) func(string) []string {
	return func(string) []string { return argv }
}

func npmCommand(dir string) []string {
	b, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(b, &pkg); err != nil {
		return nil
	}
	script := strings.TrimSpace(pkg.Scripts["test"])
	if script == "" || script == npmDefaultTest {
		return nil
	}
	return []string{"npm", "test"}
}

func npmInstall(dir string) []string {
	if _, err := os.Stat(filepath.Join(dir, "node_modules")); err == nil {
		return nil
	}
	return []string{"npm", "install", "--ignore-scripts"}
}
