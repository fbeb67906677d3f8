package main

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Reading is one telemetry sample from a polled device.
type Reading struct {
	Device string                 `json:"device"`
	Time   time.Time              `json:"time"`
	Values map[string]interface{} `json:"values"`
}

// Sink receives telemetry readings.
type Sink interface {
	Publish(Reading) error
}

// jsonSink writes one JSON object per reading to a stream, typically
// stdout.
type jsonSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONSink(w io.Writer) *jsonSink {
	return &jsonSink{enc: json.NewEncoder(w)}
}

func (s *jsonSink) Publish(r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(r)
}
