// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bngseg/collector/pkg/core"
)

// ExportVersion is the version of the session export format
const ExportVersion = 1

// SessionExport is the root JSON structure of an exported session
type SessionExport struct {
	Version      int        `json:"version"`
	Name         string     `json:"name"`
	Folder       string     `json:"folder"`
	Map          string     `json:"map"`
	AnnotatedMap string     `json:"annotatedMap"`
	CarModel     string     `json:"carModel"`
	StartedAt    time.Time  `json:"startedAt"`
	PairCount    int        `json:"pairCount"`
	Pairs        []PairJSON `json:"pairs"`
}

// PairJSON is one exported image pair. Paths are relative to the session
// folder.
type PairJSON struct {
	Name      string        `json:"name"`
	Location  core.Pose     `json:"location"`
	Camera    core.RigState `json:"camera"`
	Base      string        `json:"base"`
	Annotated string        `json:"annotated"`
}

// sessionName is the folder base name, or a name built from the map and
// start time for sessions without a folder
func sessionName(s core.SessionInfo) string {
	if s.Folder != "" {
		return filepath.Base(s.Folder)
	}
	name := strings.ReplaceAll(s.Map, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	return fmt.Sprintf("%s_%s", name, s.StartedAt.Format("20060102_150405"))
}

// exportJSON writes the session to session.json (or session.json.gz) in
// the session folder, or in the output directory when it has none
func (b *Backend) exportJSON(rec *SessionRecord) error {
	export := buildExport(rec)

	dir := rec.Session.Folder
	filename := "session.json"
	if dir == "" {
		dir = b.cfg.OutputDir
		filename = export.Name + ".json"
	}
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(dir, filename)

	if b.cfg.CompressOutput {
		return writeGzipJSON(outputPath, export)
	}
	return writeJSON(outputPath, export)
}

func buildExport(rec *SessionRecord) SessionExport {
	s := rec.Session
	export := SessionExport{
		Version:      ExportVersion,
		Name:         sessionName(s),
		Folder:       s.Folder,
		Map:          s.Map,
		AnnotatedMap: s.AnnotatedMap,
		CarModel:     s.CarModel,
		StartedAt:    s.StartedAt.UTC(),
		PairCount:    len(rec.Pairs),
		Pairs:        make([]PairJSON, 0, len(rec.Pairs)),
	}

	for _, p := range rec.Pairs {
		export.Pairs = append(export.Pairs, PairJSON{
			Name:      p.Name,
			Location:  p.Location,
			Camera:    p.Rig,
			Base:      relPath(s.Folder, p.BasePath),
			Annotated: relPath(s.Folder, p.AnnotatedPath),
		})
	}
	return export
}

func relPath(folder, path string) string {
	if folder == "" {
		return path
	}
	if rel, err := filepath.Rel(folder, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
