// Package excel reads the behavioral log that accompanies a recording
// session. Each row is one trial; the first column carries the trial
// identifier and every remaining column is a behavioral condition whose
// values attach to trials as covariates.
package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"sourceboot/domain/core"
)

// BehaviorReader handles reading Excel and CSV behavioral logs
type BehaviorReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewBehaviorReader creates a reader that handles both Excel and CSV files
func NewBehaviorReader(filePath string) *BehaviorReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &BehaviorReader{filePath: filePath, fileType: fileType}
}

// BehaviorLog is the parsed behavioral log
type BehaviorLog struct {
	// Conditions lists the behavioral columns in file order
	Conditions []core.ConditionKey
	// trial id column in file order; parallel to numeric
	trialOrder []core.TrialID
	numeric    map[core.TrialID]map[core.ConditionKey]float64
	labels     map[core.TrialID]map[core.ConditionKey]string
}

// ReadLog reads the behavioral log into structured form
func (r *BehaviorReader) ReadLog() (*BehaviorLog, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("behavior file not found: %s", r.filePath)
	}

	var (
		rows [][]string
		err  error
	)
	start := time.Now()
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[BehaviorReader] %s file read in %.2fms (%d rows)",
		strings.ToUpper(r.fileType), float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("behavior file must have at least a header row and one trial row")
	}
	return parseRows(rows)
}

func (r *BehaviorReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	// Always use the first sheet
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func (r *BehaviorReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// parseRows converts raw string rows into the log. Column 0 is the trial
// identifier; the rest are conditions. Cells that do not parse as numbers
// become NaN covariates but keep their label for condition splitting.
func parseRows(rows [][]string) (*BehaviorLog, error) {
	header := rows[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("behavior file needs a trial column and at least one condition column")
	}

	blog := &BehaviorLog{
		numeric: make(map[core.TrialID]map[core.ConditionKey]float64),
		labels:  make(map[core.TrialID]map[core.ConditionKey]string),
	}
	for _, h := range header[1:] {
		name := strings.TrimSpace(h)
		if name == "" {
			continue
		}
		blog.Conditions = append(blog.Conditions, core.ConditionKey(name))
	}

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		id := core.TrialID(strings.TrimSpace(row[0]))
		if _, dup := blog.numeric[id]; dup {
			return nil, fmt.Errorf("duplicate trial id %s at row %d", id, i+1)
		}
		nums := make(map[core.ConditionKey]float64, len(blog.Conditions))
		labs := make(map[core.ConditionKey]string, len(blog.Conditions))
		for j, cond := range blog.Conditions {
			cell := ""
			if j+1 < len(row) {
				cell = strings.TrimSpace(row[j+1])
			}
			labs[cond] = cell
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				nums[cond] = v
			} else {
				nums[cond] = math.NaN()
			}
		}
		blog.numeric[id] = nums
		blog.labels[id] = labs
		blog.trialOrder = append(blog.trialOrder, id)
	}

	if len(blog.trialOrder) == 0 {
		return nil, fmt.Errorf("behavior file has no trial rows")
	}
	return blog, nil
}

// NTrials returns the number of logged trials
func (l *BehaviorLog) NTrials() int {
	return len(l.trialOrder)
}

// TrialIDs returns logged trial identifiers in file order
func (l *BehaviorLog) TrialIDs() []core.TrialID {
	out := make([]core.TrialID, len(l.trialOrder))
	copy(out, l.trialOrder)
	return out
}

// Covariates returns the numeric covariate map for one trial. Missing trials
// return ok=false; individual unparseable cells are NaN.
func (l *BehaviorLog) Covariates(id core.TrialID) (map[core.ConditionKey]float64, bool) {
	m, ok := l.numeric[id]
	if !ok {
		return nil, false
	}
	out := make(map[core.ConditionKey]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, true
}

// Label returns the raw cell text of one condition for one trial
func (l *BehaviorLog) Label(id core.TrialID, cond core.ConditionKey) (string, bool) {
	m, ok := l.labels[id]
	if !ok {
		return "", false
	}
	v, ok := m[cond]
	return v, ok
}

// Values returns the distinct non-empty labels a condition takes across the
// log, sorted. These become the analysis cells of that condition.
func (l *BehaviorLog) Values(cond core.ConditionKey) []core.ValueKey {
	seen := make(map[string]bool)
	for _, id := range l.trialOrder {
		if v, ok := l.labels[id][cond]; ok && v != "" {
			seen[v] = true
		}
	}
	out := make([]core.ValueKey, 0, len(seen))
	for v := range seen {
		out = append(out, core.ValueKey(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasCondition reports whether the log carries a condition column
func (l *BehaviorLog) HasCondition(cond core.ConditionKey) bool {
	for _, c := range l.Conditions {
		if c == cond {
			return true
		}
	}
	return false
}
