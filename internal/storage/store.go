// Package storage keeps solved runs on disk, one directory per run.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/export"
	"github.com/san-kum/trajopt/internal/trajectory"
)

var ErrRunNotFound = errors.New("storage: run not found")

const (
	metadataFile   = "metadata.json"
	trajectoryJSON = "trajectory.json"
	trajectoryCSV  = "trajectory.csv"
	trajectoryPNG  = "trajectory.png"
	configFile     = "config.yaml"

	figureWidth  = 800
	figureHeight = 600
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Preset     string             `json:"preset,omitempty"`
	Model      string             `json:"model"`
	Integrator string             `json:"integrator"`
	Timestamp  time.Time          `json:"timestamp"`
	Steps      int                `json:"steps"`
	Status     string             `json:"status"`
	Horizon    float64            `json:"horizon,omitempty"`
	Iterations int                `json:"iterations"`
	Runtime    time.Duration      `json:"runtime_ns"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`

	// HasTrajectory is false for runs that did not converge.
	HasTrajectory bool `json:"has_trajectory"`
}

// Save writes a new run directory and returns its id. traj may be nil for
// a run that did not converge; only metadata and config are written then.
func (s *Store) Save(meta RunMetadata, cfg *config.Config, traj *trajectory.Trajectory) (string, error) {
	now := time.Now().UTC()
	meta.ID = fmt.Sprintf("%s_%s", now.Format("20060102T150405"), uuid.NewString()[:8])
	meta.Timestamp = now
	meta.HasTrajectory = traj != nil
	if traj != nil {
		meta.Horizon = traj.Horizon
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeFile(filepath.Join(runDir, metadataFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return "", err
	}

	if cfg != nil {
		if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
			return "", err
		}
	}

	if traj == nil {
		return meta.ID, nil
	}
	if err := writeFile(filepath.Join(runDir, trajectoryJSON), traj.WriteJSON); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(runDir, trajectoryCSV), traj.WriteCSV); err != nil {
		return "", err
	}
	summary := func(w io.Writer) error {
		return export.FigurePNG(w, traj, 8*vg.Inch, 6*vg.Inch)
	}
	if err := writeFile(filepath.Join(runDir, trajectoryPNG), summary); err != nil {
		return "", err
	}
	for name, svg := range export.Figures(traj, figureWidth, figureHeight) {
		if err := os.WriteFile(filepath.Join(runDir, name), []byte(svg), 0644); err != nil {
			return "", err
		}
	}

	return meta.ID, nil
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}

		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := s.read(runID, metadataFile)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}

	return &meta, nil
}

func (s *Store) LoadTrajectory(runID string) (*trajectory.Trajectory, error) {
	path, err := s.path(runID, trajectoryJSON)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, notFound(runID, err)
	}
	defer f.Close()

	return trajectory.ReadJSON(f)
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	path, err := s.path(runID, configFile)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, notFound(runID, err)
	}
	return config.Load(path)
}

// Export copies a run's trajectory to w as "json" or "csv".
func (s *Store) Export(runID, format string, w io.Writer) error {
	var name string
	switch strings.ToLower(format) {
	case "json":
		name = trajectoryJSON
	case "csv":
		name = trajectoryCSV
	default:
		return fmt.Errorf("storage: unknown export format %q", format)
	}

	data, err := s.read(runID, name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (s *Store) read(runID, name string) ([]byte, error) {
	path, err := s.path(runID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, notFound(runID, err)
	}
	return data, nil
}

// path rejects ids that would escape the base directory.
func (s *Store) path(runID, name string) (string, error) {
	if runID == "" || runID != filepath.Base(runID) || runID == "." || runID == ".." {
		return "", fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	return filepath.Join(s.baseDir, runID, name), nil
}

func notFound(runID string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return err
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
