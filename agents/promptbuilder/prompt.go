/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"encoding/xml"
	"fmt"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// stringLiteral only accepts untyped string constants from callers outside
// this package, which keeps runtime data out of templates.
type stringLiteral string

// encoder renders a bound value.
type encoder func() (string, error)

// Prompt is a parsed template plus the values bound so far.
type Prompt struct {
	segments []segment
	values   map[string]encoder
}

// NewPrompt parses template.
func NewPrompt(template stringLiteral) (*Prompt, error) {
	segs, err := parse(string(template))
	if err != nil {
		return nil, err
	}
	values := make(map[string]encoder)
	for _, s := range segs {
		if s.placeholder != "" {
			values[s.placeholder] = nil
		}
	}
	return &Prompt{segments: segs, values: values}, nil
}

// MustNewPrompt is NewPrompt for package-level templates; it panics on a
// malformed template.
func MustNewPrompt(template stringLiteral) *Prompt {
	p, err := NewPrompt(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Placeholders returns the distinct placeholder names, sorted.
func (p *Prompt) Placeholders() []string {
	return slices.Sorted(maps.Keys(p.values))
}

// BindStringLiteral binds developer-supplied text verbatim.
func (p *Prompt) BindStringLiteral(name string, value stringLiteral) (*Prompt, error) {
	return p.bind(name, func() (string, error) { return string(value), nil })
}

// BindXML binds data marshalled as indented XML.
func (p *Prompt) BindXML(name string, data any) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		b, err := xml.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshalling %s as XML: %w", name, err)
		}
		return string(b), nil
	})
}

// BindYAML binds data marshalled as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.bind(name, func() (string, error) {
		b, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("marshalling %s as YAML: %w", name, err)
		}
		return strings.TrimSuffix(string(b), "\n"), nil
	})
}

func (p *Prompt) bind(name string, enc encoder) (*Prompt, error) {
	prev, ok := p.values[name]
	if !ok {
		return nil, fmt.Errorf("binding %q not found in template", name)
	}
	if prev != nil {
		return nil, fmt.Errorf("binding %q already bound", name)
	}
	values := maps.Clone(p.values)
	values[name] = enc
	return &Prompt{segments: p.segments, values: values}, nil
}

// Build renders the prompt. Every placeholder must be bound.
func (p *Prompt) Build() (string, error) {
	rendered := make(map[string]string, len(p.values))
	for _, name := range p.Placeholders() {
		enc := p.values[name]
		if enc == nil {
			return "", fmt.Errorf("unbound placeholder: %s", name)
		}
		v, err := enc()
		if err != nil {
			return "", err
		}
		rendered[name] = v
	}

	var sb strings.Builder
	for _, s := range p.segments {
		if s.placeholder != "" {
			sb.WriteString(rendered[s.placeholder])
			continue
		}
		sb.WriteString(s.text)
	}
	return sb.String(), nil
}
