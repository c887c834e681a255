package status

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func readStatus(t *testing.T, path string) Status {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var status Status
	require.NoError(t, json.Unmarshal(data, &status))
	return status
}

func TestReporter_WriteInitial(t *testing.T) {
	// GIVEN
	path := filepath.Join(t.TempDir(), "status.json")
	reporter := NewReporter(Options{StatusFile: path, Now: func() time.Time { return fixedTime }})

	// WHEN
	err := reporter.WriteInitial()

	// THEN
	require.NoError(t, err)
	status := readStatus(t, path)
	assert.False(t, status.Halted)
	assert.Nil(t, status.Last)
	assert.True(t, status.Time.Equal(fixedTime))
}

func TestReporter_ReportFatal(t *testing.T) {
	// GIVEN
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	p := persistence.NewPersistence(filepath.Join(dir, "heat2go.db"))
	reporter := NewReporter(Options{StatusFile: path, Persistence: p, Now: func() time.Time { return fixedTime }})

	// WHEN
	reporter.ReportRecoverable("hotend0", thermal.KindAutotuneTimeout, errors.New("no oscillation"))
	reporter.ReportFatal("hotend0", thermal.KindThermalRunaway, errors.New("hotend0: thermal runaway"))

	// THEN
	status := readStatus(t, path)
	assert.True(t, status.Halted)
	assert.Equal(t, 1, status.Counts.Fatal)
	assert.Equal(t, 1, status.Counts.Recoverable)
	require.NotNil(t, status.Fatal)
	assert.Equal(t, "thermal runaway", status.Fatal.Kind)
	assert.Equal(t, "hotend0", status.Last.Channel)
	assert.Equal(t, status, reporter.Status())

	records, err := p.LoadFaults()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].Fatal)
	assert.Equal(t, "autotune timeout", records[0].Kind)
	assert.True(t, records[1].Fatal)
}

func TestReporter_FirstFatalIsKept(t *testing.T) {
	// GIVEN
	reporter := NewReporter(Options{})

	// WHEN
	reporter.ReportFatal("bed", thermal.KindMaxTemp, nil)
	reporter.ReportFatal("hotend0", thermal.KindMinTemp, nil)

	// THEN
	status := reporter.Status()
	assert.Equal(t, "bed", status.Fatal.Channel)
	assert.Equal(t, "hotend0", status.Last.Channel)
	assert.Equal(t, 2, status.Counts.Fatal)
}

func TestCommandStopper_WithoutCommand(t *testing.T) {
	// does not panic without a command
	CommandStopper{}.Stop()
}
