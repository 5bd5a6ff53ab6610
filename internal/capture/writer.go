package capture

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bngseg/collector/internal/imaging"
	"github.com/bngseg/collector/pkg/core"
)

// FolderLayout is the time layout of session folder names: day, month,
// year, hour, minute, second.
const FolderLayout = "02012006150405"

// ManifestName is the file written next to the images describing how they
// were captured.
const ManifestName = "setup.txt"

// Manifest describes the cameras and locations of a saved session. Image
// names index into Rigs and Locations.
type Manifest struct {
	Map          string
	AnnotatedMap string
	CarModel     string
	Rigs         []core.RigState
	Locations    []core.Pose
}

// Writer saves paired images into timestamped folders under Dir.
type Writer struct {
	Dir    string
	Format imaging.Format
	Now    func() time.Time
}

// NewWriter returns a writer saving under dir in format f.
func NewWriter(dir string, f imaging.Format) *Writer {
	return &Writer{Dir: dir, Format: f, Now: time.Now}
}

// SaveImages saves paired images as PNG into a new timestamped folder under
// dir, without a manifest.
func SaveImages(paired map[string]Pair[image.Image], dir string) (string, error) {
	return NewWriter(dir, imaging.PNG).Save(paired, nil)
}

// Save writes each pair as <name>_b.<ext> and <name>_a.<ext> into a folder
// named by the current time, plus the manifest when m is non-nil. It
// returns the folder path. A failure part way leaves the files written so
// far in place.
func (w *Writer) Save(paired map[string]Pair[image.Image], m *Manifest) (string, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	format := w.format()

	folder, err := newFolder(w.Dir, now().Format(FolderLayout))
	if err != nil {
		return "", fmt.Errorf("create session folder: %w", err)
	}

	for _, name := range slices.Sorted(maps.Keys(paired)) {
		p := paired[name]
		if err := imaging.WriteFile(BasePath(folder, name, format), p.Base, format); err != nil {
			return folder, fmt.Errorf("save %s base image: %w", name, err)
		}
		if err := imaging.WriteFile(AnnotatedPath(folder, name, format), p.Annotated, format); err != nil {
			return folder, fmt.Errorf("save %s annotated image: %w", name, err)
		}
	}

	if m != nil {
		if err := m.WriteFile(filepath.Join(folder, ManifestName)); err != nil {
			return folder, err
		}
	}
	return folder, nil
}

// newFolder creates dir/name, or dir/name_N when sessions saved within the
// same second already took the name.
func newFolder(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	folder := filepath.Join(dir, name)
	for n := 1; ; n++ {
		err := os.Mkdir(folder, 0755)
		if err == nil {
			return folder, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		folder = filepath.Join(dir, fmt.Sprintf("%s_%d", name, n))
	}
}

func (w *Writer) format() imaging.Format {
	if w.Format == "" {
		return imaging.PNG
	}
	return w.Format
}

// BasePath returns the path of a pair's base image in folder.
func BasePath(folder, name string, f imaging.Format) string {
	return filepath.Join(folder, name+"_b."+f.Ext())
}

// AnnotatedPath returns the path of a pair's annotated image in folder.
func AnnotatedPath(folder, name string, f imaging.Format) string {
	return filepath.Join(folder, name+"_a."+f.Ext())
}

// WriteFile writes the manifest as text.
func (m *Manifest) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if m.Map != "" {
		fmt.Fprintf(bw, "Map: %s\n", m.Map)
	}
	if m.AnnotatedMap != "" {
		fmt.Fprintf(bw, "Annotated map: %s\n", m.AnnotatedMap)
	}
	if m.CarModel != "" {
		fmt.Fprintf(bw, "Car: %s\n", m.CarModel)
	}
	fmt.Fprintln(bw, "Cameras:")
	for i, r := range m.Rigs {
		fmt.Fprintf(bw, "%d: %s\n", i, r)
	}
	fmt.Fprintln(bw, "Locations:")
	for i, l := range m.Locations {
		fmt.Fprintf(bw, "%d: %s\n", i, l)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return f.Close()
}
