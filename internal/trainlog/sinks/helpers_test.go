package sinks

import (
	"time"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var runStart = time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local)

type staticIDs string

func (s staticIDs) NewID() (string, error) { return string(s), nil }

type fakeWriter struct {
	points  map[string][]float64
	flushes int
	closed  bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{points: make(map[string][]float64)}
}

func (w *fakeWriter) AddScalar(tag string, value float64, _ int64) error {
	w.points[tag] = append(w.points[tag], value)
	return nil
}

func (w *fakeWriter) AddScalars(mainTag string, values map[string]float64, _ int64) error {
	for phase, v := range values {
		w.points[mainTag+"|"+phase] = append(w.points[mainTag+"|"+phase], v)
	}
	return nil
}

func (w *fakeWriter) Flush() error {
	w.flushes++
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}
