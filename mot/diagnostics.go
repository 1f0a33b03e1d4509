package mot

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Diagnostics is a snapshot of a tracking run
type Diagnostics struct {
	RunID       uuid.UUID          `yaml:"run_id"`
	WrittenAt   time.Time          `yaml:"written_at"`
	Frame       int                `yaml:"frame"`
	Final       bool               `yaml:"final"`
	Targets     int                `yaml:"targets"`
	LastID      int                `yaml:"last_id"`
	Corrections Corrections        `yaml:"corrections"`
	Ambiguities int                `yaml:"ambiguities"`
	Backgrounds []BackgroundWindow `yaml:"backgrounds"`
}

// DiagnosticsSink persists diagnostics snapshots. Write failures never stop tracking.
type DiagnosticsSink interface {
	Write(snapshot Diagnostics) error
}

// BackgroundArchive is implemented by diagnostics sinks that also keep the background images.
// It is called once, when the run finishes.
type BackgroundArchive interface {
	WriteBackgrounds(history []BackgroundRecord) error
}

// YAMLDiagnosticsFile keeps the latest snapshot in a YAML file
type YAMLDiagnosticsFile struct {
	path string
}

// NewYAMLDiagnosticsFile creates sink writing to path
func NewYAMLDiagnosticsFile(path string) *YAMLDiagnosticsFile {
	return &YAMLDiagnosticsFile{
		path: path,
	}
}

// Path returns target file path
func (file *YAMLDiagnosticsFile) Path() string {
	return file.path
}

// Write replaces the file atomically: the snapshot goes to a temporary file that is renamed over the target
func (file *YAMLDiagnosticsFile) Write(snapshot Diagnostics) error {
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal diagnostics")
	}
	tmp, err := os.CreateTemp(filepath.Dir(file.path), filepath.Base(file.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temporary diagnostics file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "write diagnostics")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "close diagnostics")
	}
	if err := os.Rename(tmp.Name(), file.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "replace diagnostics file")
	}
	return nil
}

// BackgroundPath returns where WriteBackgrounds puts the i-th background
func (file *YAMLDiagnosticsFile) BackgroundPath(i int) string {
	base := strings.TrimSuffix(file.path, filepath.Ext(file.path))
	return fmt.Sprintf("%s.background-%03d.png", base, i)
}

// WriteBackgrounds stores every background as a grayscale PNG next to the diagnostics file
func (file *YAMLDiagnosticsFile) WriteBackgrounds(history []BackgroundRecord) error {
	for i, bg := range history {
		if bg.Image == nil {
			continue
		}
		out, err := os.Create(file.BackgroundPath(i))
		if err != nil {
			return errors.Wrapf(err, "create background %d", i)
		}
		if err := png.Encode(out, bg.Image); err != nil {
			out.Close()
			return errors.Wrapf(err, "encode background %d [%d, %d]", i, bg.Window.First, bg.Window.Last)
		}
		if err := out.Close(); err != nil {
			return errors.Wrapf(err, "close background %d", i)
		}
	}
	return nil
}

// ReadDiagnostics loads snapshot written by YAMLDiagnosticsFile
func ReadDiagnostics(path string) (Diagnostics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Diagnostics{}, errors.Wrap(err, "read diagnostics")
	}
	snapshot := Diagnostics{}
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return Diagnostics{}, errors.Wrap(err, "parse diagnostics")
	}
	return snapshot, nil
}
