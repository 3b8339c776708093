package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/storage/models"
)

func sampleRuns() []*models.CycleRun {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*models.CycleRun{
		{CycleTime: 1_700_000_400, Outcome: "paid", Winner: "B", Amount: 300, StartedAt: base.Add(10 * time.Minute)},
		{CycleTime: 1_700_000_100, Outcome: "paid", Winner: "A", Amount: 500, StartedAt: base},
		{CycleTime: 1_700_000_700, Outcome: "skipped", StartedAt: base.Add(15 * time.Minute)},
		{CycleTime: 1_700_001_000, Outcome: "failed", ErrorMessage: "airdrop: NotEligibleForAirdrop", StartedAt: base.Add(20 * time.Minute)},
		{CycleTime: 1_700_001_000, Outcome: "paid", Winner: "A", Amount: 200, StartedAt: base.Add(21 * time.Minute)},
	}
}

func newExporter() *CycleExporter {
	ce := NewCycleExporter(zap.NewNop())
	ce.now = func() time.Time { return time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) }
	return ce
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	path, err := newExporter().Export(sampleRuns(), Options{Format: FormatCSV, OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cycles_all_20260302_083000.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, csvHeaders, rows[0])
	// отсортировано по времени старта
	assert.Equal(t, "1700000100", rows[1][1])
	assert.Equal(t, "A", rows[1][4])
	assert.Equal(t, "airdrop: NotEligibleForAirdrop", rows[4][10])
}

func TestExportJSONWithFilter(t *testing.T) {
	dir := t.TempDir()
	path, err := newExporter().Export(sampleRuns(), Options{Format: FormatJSON, Outcome: "paid", OutputDir: dir})
	require.NoError(t, err)
	assert.Contains(t, path, "cycles_paid_")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var data struct {
		Summary Summary            `json:"summary"`
		Cycles  []*models.CycleRun `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Len(t, data.Cycles, 3)
	assert.Equal(t, 3, data.Summary.Paid)
	assert.Equal(t, uint64(1_000), data.Summary.TotalPaid)
	assert.Equal(t, 2, data.Summary.UniqueWinners)
}

func TestExportTimeWindowAndEmpty(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ce := newExporter()

	_, err := ce.Export(sampleRuns(), Options{
		Format:    FormatCSV,
		StartTime: base.Add(time.Hour),
		OutputDir: t.TempDir(),
	})
	assert.Error(t, err)

	path, err := ce.Export(sampleRuns(), Options{
		Format:    FormatJSON,
		StartTime: base.Add(12 * time.Minute),
		EndTime:   base.Add(20 * time.Minute),
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"skipped": 1`)
	assert.Contains(t, string(raw), `"failed": 1`)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalCycles)
	assert.True(t, s.StartDate.IsZero())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
