package tensorboard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrCorrupt is returned when a record fails its checksum or cannot be decoded.
var ErrCorrupt = errors.New("corrupt event record")

// Scalar is one decoded scalar point.
type Scalar struct {
	Tag      string
	Step     int64
	Value    float64
	WallTime float64
}

// ReadScalars decodes every scalar point in the event file at path.
func ReadScalars(path string) ([]Scalar, error) {
	// #nosec G304 -- callers pass event files they own.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event file %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var out []Scalar
	for {
		payload, err := readRecord(f)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		scalars, err := decodeEvent(payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, scalars...)
	}
}

// EventFiles lists event files below dir, sorted by path.
func EventFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), "events.out.tfevents.") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func readRecord(r io.Reader) ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrCorrupt
		}
		return nil, err
	}
	if maskedCRC(header[:8]) != binary.LittleEndian.Uint32(header[8:]) {
		return nil, ErrCorrupt
	}
	n := binary.LittleEndian.Uint64(header[:8])
	body := make([]byte, n+4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, ErrCorrupt
	}
	payload := body[:n]
	if maskedCRC(payload) != binary.LittleEndian.Uint32(body[n:]) {
		return nil, ErrCorrupt
	}
	return payload, nil
}

func decodeEvent(b []byte) ([]Scalar, error) {
	var (
		wall    float64
		step    int64
		summary []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrCorrupt
		}
		b = b[n:]
		switch {
		case num == eventWallTime && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return nil, ErrCorrupt
			}
			wall = math.Float64frombits(v)
			n = m
		case num == eventStep && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, ErrCorrupt
			}
			step = int64(v)
			n = m
		case num == eventSummary && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, ErrCorrupt
			}
			summary = v
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, ErrCorrupt
			}
		}
		b = b[n:]
	}
	if summary == nil {
		return nil, nil
	}
	return decodeSummary(summary, wall, step)
}

func decodeSummary(b []byte, wall float64, step int64) ([]Scalar, error) {
	var out []Scalar
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrCorrupt
		}
		b = b[n:]
		if num != summaryValue || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, ErrCorrupt
			}
			b = b[n:]
			continue
		}
		v, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, ErrCorrupt
		}
		b = b[m:]
		s, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		s.Step = step
		s.WallTime = wall
		out = append(out, s)
	}
	return out, nil
}

func decodeValue(b []byte) (Scalar, error) {
	var s Scalar
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Scalar{}, ErrCorrupt
		}
		b = b[n:]
		switch {
		case num == valueTag && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return Scalar{}, ErrCorrupt
			}
			s.Tag = v
			n = m
		case num == valueSimpleValue && typ == protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return Scalar{}, ErrCorrupt
			}
			s.Value = float64(math.Float32frombits(v))
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Scalar{}, ErrCorrupt
			}
		}
		b = b[n:]
	}
	return s, nil
}
