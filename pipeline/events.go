/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// EventType discriminates Events.
type EventType string

const (
	EventStep     EventType = "step"
	EventStepDone EventType = "step_done"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

// Event is one entry of a run's progress stream.
type Event struct {
	Type    EventType `json:"type"`
	Label   string    `json:"label,omitempty"`
	Data    *Result   `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Stream runs the pipeline in the background and reports it as events. The
// channel carries step and step_done events followed by exactly one result
// or error event, and is then closed. It is buffered for a whole run, so a
// caller that stops reading never blocks the pipeline.
func (o *Orchestrator) Stream(ctx context.Context, owner, repo, description string) <-chan Event {
	ch := make(chan Event, 2*len(stages)+1)
	go func() {
		defer close(ch)
		res, err := o.Run(ctx, owner, repo, description, Callbacks{
			OnProgress: func(label string) { ch <- Event{Type: EventStep, Label: label} },
			OnStepDone: func() { ch <- Event{Type: EventStepDone} },
		})
		if err != nil {
			ch <- Event{Type: EventError, Message: err.Error()}
			return
		}
		ch <- Event{Type: EventResult, Data: res}
	}()
	return ch
}

// sseDone terminates every stream, successful or not.
const sseDone = "data: [DONE]\n\n"

// WriteSSE writes events to w as server-sent events until the channel is
// closed, then writes the completion marker. The marker is attempted even
// after a write error.
func WriteSSE(w io.Writer, events <-chan Event) error {
	var werr error
	for ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			werr = fmt.Errorf("encoding %s event: %w", ev.Type, err)
			break
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			werr = err
			break
		}
		flush(w)
	}
	if _, err := io.WriteString(w, sseDone); err != nil && werr == nil {
		werr = err
	}
	flush(w)
	return werr
}

// SetSSEHeaders prepares an HTTP response for WriteSSE.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
