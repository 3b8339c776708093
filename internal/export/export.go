package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/storage/models"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// Options configures the export behavior
type Options struct {
	Format    Format
	StartTime time.Time
	EndTime   time.Time
	Outcome   string // only runs with this outcome
	OutputDir string
}

// CycleExporter writes airdrop cycle history to files.
type CycleExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewCycleExporter(logger *zap.Logger) *CycleExporter {
	return &CycleExporter{logger: logger, now: time.Now}
}

// Export writes the runs matching options, oldest first, and returns the
// file path.
func (ce *CycleExporter) Export(runs []*models.CycleRun, options Options) (string, error) {
	filtered := ce.filter(runs, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no cycles match the export criteria")
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.Before(filtered[j].StartedAt)
	})

	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, ce.filename(options))

	var err error
	switch options.Format {
	case FormatCSV:
		err = writeCSV(filtered, outputPath)
	case FormatJSON:
		err = ce.writeJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	ce.logger.Info("Cycles exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))
	return outputPath, nil
}

func (ce *CycleExporter) filter(runs []*models.CycleRun, options Options) []*models.CycleRun {
	var out []*models.CycleRun
	for _, r := range runs {
		if !options.StartTime.IsZero() && r.StartedAt.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && r.StartedAt.After(options.EndTime) {
			continue
		}
		if options.Outcome != "" && r.Outcome != options.Outcome {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (ce *CycleExporter) filename(options Options) string {
	prefix := "cycles_all"
	if options.Outcome != "" {
		prefix = "cycles_" + options.Outcome
	}
	return fmt.Sprintf("%s_%s.%s", prefix, ce.now().Format("20060102_150405"), options.Format)
}

var csvHeaders = []string{
	"started_at", "cycle_time", "outcome", "candidates", "winner", "token_account",
	"amount", "signature", "reset_signature", "execution_ms", "error",
}

func writeCSV(runs []*models.CycleRun, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range runs {
		row := []string{
			r.StartedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(r.CycleTime, 10),
			r.Outcome,
			strconv.Itoa(r.Candidates),
			r.Winner,
			r.TokenAccount,
			strconv.FormatUint(r.Amount, 10),
			r.Signature,
			r.ResetSignature,
			strconv.FormatFloat(r.ExecutionTime, 'f', 3, 64),
			r.ErrorMessage,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write cycle: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (ce *CycleExporter) writeJSON(runs []*models.CycleRun, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	exportData := struct {
		ExportTime time.Time          `json:"export_time"`
		Summary    Summary            `json:"summary"`
		Cycles     []*models.CycleRun `json:"cycles"`
	}{
		ExportTime: ce.now().UTC(),
		Summary:    Summarize(runs),
		Cycles:     runs,
	}
	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Summary contains statistics over exported cycles
type Summary struct {
	TotalCycles   int       `json:"total_cycles"`
	Paid          int       `json:"paid"`
	Skipped       int       `json:"skipped"`
	Races         int       `json:"races"`
	Failed        int       `json:"failed"`
	TotalPaid     uint64    `json:"total_paid"`
	UniqueWinners int       `json:"unique_winners"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

// Summarize expects runs sorted oldest first.
func Summarize(runs []*models.CycleRun) Summary {
	s := Summary{TotalCycles: len(runs)}
	if len(runs) == 0 {
		return s
	}
	s.StartDate = runs[0].StartedAt
	s.EndDate = runs[len(runs)-1].StartedAt

	winners := make(map[string]bool)
	for _, r := range runs {
		switch r.Outcome {
		case "paid":
			s.Paid++
			s.TotalPaid += r.Amount
			winners[r.Winner] = true
		case "skipped":
			s.Skipped++
		case "race":
			s.Races++
		case "failed":
			s.Failed++
		}
	}
	s.UniqueWinners = len(winners)
	return s
}
