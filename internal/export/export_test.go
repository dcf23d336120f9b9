package export

import (
	"bytes"
	"testing"
	"time"

	"tattoostudio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleItems() []models.Appointment {
	created := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	return []models.Appointment{
		{ID: "a", Name: "Ana Silva", Email: "ana@example.com", Phone: "11999998888", Date: "2026-10-19", Time: "10:00",
			Description: "Rosa no antebraço, realismo, colorida", Status: models.StatusPending, CreatedAt: created},
		{ID: "b", Name: "Bruno", Email: "bruno@example.com", Phone: "11988887777", Date: "2026-10-20", Time: "14:00",
			Description: "Carpa japonesa nas costas, colorida", Status: models.StatusCompleted, CreatedAt: created},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleItems(), time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, headers, rows[1])
	assert.Equal(t, "Ana Silva", rows[2][0])
	assert.Equal(t, "Pendente", rows[2][6])
	assert.Equal(t, "Concluído", rows[3][6])
}

func TestSaveFile(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveFile(dir, nil, time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, path, "agendamentos_20261018_093000.xlsx")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
