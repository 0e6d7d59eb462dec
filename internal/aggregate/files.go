package aggregate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/martinscooper/lighteval/internal/task"
	"github.com/martinscooper/lighteval/internal/topology"
)

// File names written under the run output directory. Rank partial files plus
// the manifest are the whole cross-process handoff: each rank writes its own
// partials exactly once, and aggregation re-reads them on whichever process
// performs the merge.
const (
	ReportFileName   = "results.json"
	ManifestFileName = "manifest.json"
	partialFilePat   = "partials_rank%d.json"
	partialFileGlob  = "partials_rank*.json"
)

// Manifest records the run shape every rank derives deterministically, so
// the merge step needs no communication about partition boundaries.
type Manifest struct {
	Tasks      []string          `json:"tasks"`
	Expected   map[string]int    `json:"expected"`
	TaskErrors map[string]string `json:"task_errors,omitempty"`
	MaxSamples int               `json:"max_samples,omitempty"`
	Topology   topology.Topology `json:"topology"`
	Model      string            `json:"model,omitempty"`
	Provider   string            `json:"provider,omitempty"`
}

// Descriptors re-parses the manifest's descriptor strings.
func (m *Manifest) Descriptors() ([]task.Descriptor, error) {
	out := make([]task.Descriptor, 0, len(m.Tasks))
	for _, s := range m.Tasks {
		d, err := task.ParseDescriptor(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func WriteManifest(dir string, m *Manifest) error {
	return writeJSON(filepath.Join(dir, ManifestFileName), m)
}

func LoadManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("aggregate: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("aggregate: parse manifest: %w", err)
	}
	return &m, nil
}

// SavePartials writes one rank's partial results. One file per rank keeps
// the handoff write-once: no two ranks ever touch the same file.
func SavePartials(dir string, rank int, partials []Partial) error {
	return writeJSON(filepath.Join(dir, fmt.Sprintf(partialFilePat, rank)), partials)
}

// LoadPartials reads every rank partial file under dir, in rank-file name
// order. Aggregation itself is order-independent; the sort just makes reads
// reproducible.
func LoadPartials(dir string) ([]Partial, error) {
	paths, err := filepath.Glob(filepath.Join(dir, partialFileGlob))
	if err != nil {
		return nil, fmt.Errorf("aggregate: list partial files: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("aggregate: no partial files under %s", dir)
	}
	sort.Strings(paths)

	var out []Partial
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("aggregate: read %s: %w", filepath.Base(path), err)
		}
		var ps []Partial
		if err := json.Unmarshal(b, &ps); err != nil {
			return nil, fmt.Errorf("aggregate: parse %s: %w", filepath.Base(path), err)
		}
		out = append(out, ps...)
	}
	return out, nil
}

// WriteReport serializes the report under dir. encoding/json sorts map keys,
// so equal reports serialize byte-identically.
func WriteReport(dir string, rep *Report) (string, error) {
	path := filepath.Join(dir, ReportFileName)
	if err := writeJSON(path, rep); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("aggregate: empty output path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("aggregate: create output dir: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("aggregate: marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("aggregate: write %s: %w", filepath.Base(path), err)
	}
	return nil
}
