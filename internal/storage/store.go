package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/pidctl/internal/dynamo"
	"github.com/san-kum/pidctl/internal/loop"
	"github.com/san-kum/pidctl/internal/pid"
)

const (
	metadataFile = "metadata.json"
	traceFile    = "trace.csv"
)

type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type GainsMetadata struct {
	Kp            float64  `json:"kp"`
	Ki            float64  `json:"ki"`
	Kd            float64  `json:"kd"`
	IntegralLimit *float64 `json:"integral_limit,omitempty"`
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Plant      string             `json:"plant"`
	Timestamp  time.Time          `json:"timestamp"`
	Integrator string             `json:"integrator"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Setpoint   float64            `json:"setpoint"`
	Steps      int                `json:"steps"`
	Gains      GainsMetadata      `json:"gains"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes meta and trace under a new run directory and returns the run
// ID. meta.ID, meta.Timestamp, meta.Steps and meta.Metrics are filled in.
func (s *Store) Save(meta RunMetadata, tr *loop.Trace) (string, error) {
	now := s.now()
	meta.Timestamp = now
	meta.Steps = tr.Steps()
	meta.Metrics = tr.Metrics

	runDir, err := s.createRunDir(fmt.Sprintf("%s_%d", meta.Plant, now.UnixNano()))
	if err != nil {
		return "", err
	}
	meta.ID = filepath.Base(runDir)

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	if err := writeTrace(filepath.Join(runDir, traceFile), tr); err != nil {
		return "", fmt.Errorf("write trace: %w", err)
	}
	return meta.ID, nil
}

// createRunDir creates a directory named id, or id_N if id is taken.
func (s *Store) createRunDir(id string) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	name := id
	for n := 1; ; n++ {
		dir := filepath.Join(s.baseDir, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
		name = fmt.Sprintf("%s_%d", id, n)
	}
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTrace(path string, tr *loop.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	dim := 0
	if len(tr.States) > 0 {
		dim = len(tr.States[0])
	}
	header := []string{"time"}
	for i := 0; i < dim; i++ {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	header = append(header, "error", "output", "p", "i", "d")
	withEnergy := tr.Energy != nil && len(tr.Energy) == len(tr.Times)
	if withEnergy {
		header = append(header, "energy")
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range tr.Times {
		row := make([]string, 0, len(header))
		row = append(row, formatFloat(tr.Times[i]))
		for _, v := range tr.States[i] {
			row = append(row, formatFloat(v))
		}
		terms := tr.Terms[i]
		row = append(row,
			formatFloat(tr.Errors[i]),
			formatFloat(tr.Outputs[i]),
			formatFloat(terms.P),
			formatFloat(terms.I),
			formatFloat(terms.D))
		if withEnergy {
			row = append(row, formatFloat(tr.Energy[i]))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// List returns all readable runs, oldest first.
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
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadTrace reads a run's per-cycle rows back. Metrics and Final are not
// part of the CSV and are left empty.
func (s *Store) LoadTrace(runID string) (*loop.Trace, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, traceFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	tr := &loop.Trace{}
	if len(records) < 2 {
		return tr, nil
	}

	// time, x0..xn, error, output, p, i, d[, energy]
	header := records[0]
	withEnergy := len(header) > 0 && header[len(header)-1] == "energy"
	dim := len(header) - 6
	if withEnergy {
		dim--
	}
	if dim < 0 {
		return nil, fmt.Errorf("run %s: malformed trace header %v", runID, records[0])
	}

	for line, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("run %s: line %d: %w", runID, line+2, err)
			}
			vals[j] = v
		}

		tr.Times = append(tr.Times, vals[0])
		tr.States = append(tr.States, dynamo.State(vals[1:1+dim]))
		rest := vals[1+dim:]
		tr.Errors = append(tr.Errors, rest[0])
		tr.Outputs = append(tr.Outputs, rest[1])
		tr.Terms = append(tr.Terms, pid.Terms{P: rest[2], I: rest[3], D: rest[4]})
		if withEnergy {
			tr.Energy = append(tr.Energy, rest[5])
		}
	}
	return tr, nil
}
