package plan

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bngseg/collector/pkg/core"
	"github.com/ugorji/go/codec"
)

const (
	// HistoryVersion is the history file format version written by Save.
	HistoryVersion uint16 = 2

	// HistoryExt is the file extension of saved histories.
	HistoryExt = ".bin"

	historyMagic = "BNGH"
)

var historyHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	h.RawToString = true
	return h
}()

// History is the ordered record of shots produced by a plan. It is appended
// to only while the plan is built.
type History struct {
	baseMap      string
	annotatedMap string
	shots        []core.Shot
}

// historyRecord is the msgpack body of a history file.
type historyRecord struct {
	BaseMap      string      `codec:"baseMap"`
	AnnotatedMap string      `codec:"annotatedMap"`
	Shots        []core.Shot `codec:"shots"`
}

// NewHistory returns an empty history for a base/annotated map pair.
func NewHistory(baseMap, annotatedMap string) *History {
	return &History{baseMap: baseMap, annotatedMap: annotatedMap}
}

func (h *History) add(s core.Shot) {
	h.shots = append(h.shots, s)
}

func (h *History) BaseMap() string      { return h.baseMap }
func (h *History) AnnotatedMap() string { return h.annotatedMap }
func (h *History) Len() int             { return len(h.shots) }

// Shots returns a copy of the recorded shots in build order.
func (h *History) Shots() []core.Shot {
	return slices.Clone(h.shots)
}

// ShotsByCar splits the shots into the consecutive runs taken with one car.
// Two cars of the same model are kept apart by their index in the plan.
func (h *History) ShotsByCar() [][]core.Shot {
	var groups [][]core.Shot
	for i, s := range h.shots {
		if i > 0 {
			prev := h.shots[i-1]
			if prev.Car == s.Car && prev.CarModel == s.CarModel {
				groups[len(groups)-1] = append(groups[len(groups)-1], s)
				continue
			}
		}
		groups = append(groups, []core.Shot{s})
	}
	return groups
}

// FileName returns "<base_map_id>_<shot_count>.bin". Path separators and
// spaces in the map id are replaced so the name stays a single file.
func (h *History) FileName() string {
	name := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_").Replace(h.baseMap)
	return fmt.Sprintf("%s_%d%s", name, len(h.shots), HistoryExt)
}

// Encode writes the magic, the format version and the msgpack body to w.
func (h *History) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, historyMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, HistoryVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}

	rec := historyRecord{
		BaseMap:      h.baseMap,
		AnnotatedMap: h.annotatedMap,
		Shots:        h.shots,
	}
	if err := codec.NewEncoder(w, historyHandle).Encode(rec); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return nil
}

// DecodeHistory reads a history written by Encode.
func DecodeHistory(r io.Reader) (*History, error) {
	header := make([]byte, len(historyMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header, []byte(historyMagic)) {
		return nil, fmt.Errorf("%w: not a history file (magic %q)", core.ErrUnsupportedVersion, header)
	}

	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != HistoryVersion {
		return nil, fmt.Errorf("%w: history version %d, want %d", core.ErrUnsupportedVersion, version, HistoryVersion)
	}

	var rec historyRecord
	if err := codec.NewDecoder(r, historyHandle).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	return &History{
		baseMap:      rec.BaseMap,
		annotatedMap: rec.AnnotatedMap,
		shots:        rec.Shots,
	}, nil
}

// Save writes the history into dir under FileName and returns the path.
func (h *History) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create history directory: %w", err)
	}

	path := filepath.Join(dir, h.FileName())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create history file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := h.Encode(bw); err != nil {
		return "", err
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("flush history file: %w", err)
	}
	return path, nil
}

// LoadHistory reads a history file saved by Save.
func LoadHistory(path string) (*History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	h, err := DecodeHistory(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return h, nil
}
