// Package tensorboard writes scalar time series as TensorBoard event files.
//
// Events are framed as TFRecords (little-endian length, masked CRC32C of the
// length, payload, masked CRC32C of the payload) and encoded with protowire
// against the tensorflow Event/Summary field numbers, so no generated proto
// package is needed.
package tensorboard

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// FileVersion is written as the first event of every file.
const FileVersion = "brain.Event:2"

// Event field numbers (tensorflow/core/util/event.proto).
const (
	eventWallTime    protowire.Number = 1
	eventStep        protowire.Number = 2
	eventFileVersion protowire.Number = 3
	eventSummary     protowire.Number = 5

	summaryValue     protowire.Number = 1
	valueTag         protowire.Number = 1
	valueSimpleValue protowire.Number = 2
)

const crcMaskDelta uint32 = 0xa282ead8

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Writer appends scalar events to one event file. AddScalars fans out to
// child writers, one per phase, under the writer's directory.
type Writer struct {
	mu     sync.Mutex
	dir    string
	path   string
	file   *os.File
	buf    *bufio.Writer
	now    func() time.Time
	subs   map[string]*Writer
	closed bool
}

// NewWriter creates dir and opens a fresh event file inside it.
func NewWriter(dir string) (*Writer, error) {
	return newWriter(dir, time.Now)
}

func newWriter(dir string, now func() time.Time) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("event directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create event dir %s: %w", dir, err)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	name := fmt.Sprintf("events.out.tfevents.%d.%s.%d", now().Unix(), host, os.Getpid())
	path := filepath.Join(dir, name)
	// #nosec G304 -- path is built from the configured run directory.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open event file %s: %w", path, err)
	}
	w := &Writer{
		dir:  dir,
		path: path,
		file: f,
		buf:  bufio.NewWriter(f),
		now:  now,
		subs: make(map[string]*Writer),
	}
	if err := w.writeEvent(encodeFileVersion(w.wallTime())); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Dir returns the directory holding the event file.
func (w *Writer) Dir() string { return w.dir }

// Path returns the event file path.
func (w *Writer) Path() string { return w.path }

// AddScalar records value under tag at step.
func (w *Writer) AddScalar(tag string, value float64, step int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("event writer %s is closed", w.path)
	}
	return w.writeEvent(encodeScalar(w.wallTime(), step, tag, value))
}

// AddScalars records one point per phase under mainTag. Each phase is written
// by a child writer in <dir>/<mainTag>_<phase>, with slashes in mainTag
// replaced, so the phases render as separate runs on one chart.
func (w *Writer) AddScalars(mainTag string, values map[string]float64, step int64) error {
	phases := make([]string, 0, len(values))
	for phase := range values {
		phases = append(phases, phase)
	}
	sort.Strings(phases)
	for _, phase := range phases {
		sub, err := w.child(strings.ReplaceAll(mainTag, "/", "_") + "_" + phase)
		if err != nil {
			return err
		}
		if err := sub.AddScalar(mainTag, values[phase], step); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) child(name string) (*Writer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, fmt.Errorf("event writer %s is closed", w.path)
	}
	if sub, ok := w.subs[name]; ok {
		return sub, nil
	}
	sub, err := newWriter(filepath.Join(w.dir, name), w.now)
	if err != nil {
		return nil, err
	}
	w.subs[name] = sub
	return sub, nil
}

// Flush writes buffered events of this writer and its children to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	for _, sub := range w.subs {
		if err := sub.Flush(); err != nil {
			return err
		}
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush event file %s: %w", w.path, err)
	}
	return nil
}

// Close flushes and closes this writer and its children. Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var firstErr error
	for _, sub := range w.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := w.buf.Flush(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("flush event file %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close event file %s: %w", w.path, err)
	}
	return firstErr
}

func (w *Writer) wallTime() float64 {
	return float64(w.now().UnixNano()) / 1e9
}

func (w *Writer) writeEvent(payload []byte) error {
	var header [8]byte
	binary.LittleEndian.PutUint64(header[:], uint64(len(payload)))
	var crc [4]byte
	frame := make([]byte, 0, len(payload)+16)
	frame = append(frame, header[:]...)
	binary.LittleEndian.PutUint32(crc[:], maskedCRC(header[:]))
	frame = append(frame, crc[:]...)
	frame = append(frame, payload...)
	binary.LittleEndian.PutUint32(crc[:], maskedCRC(payload))
	frame = append(frame, crc[:]...)
	if _, err := w.buf.Write(frame); err != nil {
		return fmt.Errorf("write event %s: %w", w.path, err)
	}
	return nil
}

func maskedCRC(data []byte) uint32 {
	c := crc32.Checksum(data, castagnoli)
	return ((c >> 15) | (c << 17)) + crcMaskDelta
}

func encodeFileVersion(wallTime float64) []byte {
	var b []byte
	b = protowire.AppendTag(b, eventWallTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(wallTime))
	b = protowire.AppendTag(b, eventFileVersion, protowire.BytesType)
	b = protowire.AppendString(b, FileVersion)
	return b
}

func encodeScalar(wallTime float64, step int64, tag string, value float64) []byte {
	var v []byte
	v = protowire.AppendTag(v, valueTag, protowire.BytesType)
	v = protowire.AppendString(v, tag)
	v = protowire.AppendTag(v, valueSimpleValue, protowire.Fixed32Type)
	v = protowire.AppendFixed32(v, math.Float32bits(float32(value)))

	var summary []byte
	summary = protowire.AppendTag(summary, summaryValue, protowire.BytesType)
	summary = protowire.AppendBytes(summary, v)

	var b []byte
	b = protowire.AppendTag(b, eventWallTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(wallTime))
	b = protowire.AppendTag(b, eventStep, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(step))
	b = protowire.AppendTag(b, eventSummary, protowire.BytesType)
	b = protowire.AppendBytes(b, summary)
	return b
}
