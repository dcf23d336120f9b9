package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tattoostudio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const testSpreadsheet = "appointments_sid"

func setupMockServer(t *testing.T) (*http.ServeMux, *SheetsService) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	s := newSheetsService(srv, testSpreadsheet)
	s.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	return mux, s
}

func testAppointment(id string) *models.Appointment {
	return &models.Appointment{
		ID: id, Name: "Ana Silva", Email: "ana@example.com", Phone: "11999998888",
		Date: "2026-10-20", Time: "10:00", Description: "Rosa no antebraço, realismo",
		Status: models.StatusPending, CreatedAt: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}
}

func TestSheetsService_TestConnection(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values/Agendamentos!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	assert.NoError(t, s.TestConnection(context.Background()))
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values/Agendamentos!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"apt-1"}, {}, {"apt-3"}},
		})
	})

	require.NoError(t, s.WarmUpCache(context.Background()))

	row, ok := s.getCachedRow("apt-1")
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, ok = s.getCachedRow("apt-3")
	assert.True(t, ok)
	assert.Equal(t, 4, row)
	_, ok = s.getCachedRow("ID")
	assert.False(t, ok)
}

func TestSheetsService_UpsertAppendsUnknownAppointment(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values/Agendamentos!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	var appended [][]interface{}
	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values/Agendamentos!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
		assert.Equal(t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))
		var body sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&body)
		appended = body.Values
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Agendamentos!A2:J2"},
		})
	})

	require.NoError(t, s.UpsertAppointment(context.Background(), testAppointment("apt-1")))

	require.Len(t, appended, 1)
	assert.Equal(t, "apt-1", appended[0][0])
	assert.Equal(t, "Pendente", appended[0][7])
	assert.Equal(t, "2026-10-18 09:00:00", appended[0][8])

	row, ok := s.getCachedRow("apt-1")
	assert.True(t, ok)
	assert.Equal(t, 2, row)
}

func TestSheetsService_UpsertUpdatesCachedRow(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow("apt-1", 7)

	var called atomic.Bool
	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values/Agendamentos!A7:J7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		called.Store(true)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	require.NoError(t, s.UpsertAppointment(context.Background(), testAppointment("apt-1")))
	assert.True(t, called.Load())

	assert.Error(t, s.UpsertAppointment(context.Background(), &models.Appointment{}))
}

func TestSheetsService_UpdateAppointmentStatus(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values/Agendamentos!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"apt-0"}, {"apt-1"}}})
	})

	var req sheets.BatchUpdateValuesRequest
	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(sheets.BatchUpdateValuesResponse{})
	})

	require.NoError(t, s.UpdateAppointmentStatus(context.Background(), "apt-1", models.StatusApproved))

	require.Len(t, req.Data, 2)
	assert.Equal(t, "Agendamentos!H3", req.Data[0].Range)
	assert.Equal(t, "Aprovado", req.Data[0].Values[0][0])
	assert.Equal(t, "Agendamentos!J3", req.Data[1].Range)
	assert.Equal(t, "2026-10-18 12:00:00", req.Data[1].Values[0][0])
}

func TestSheetsService_UpdateStatusUnknownRow(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values/Agendamentos!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	err := s.UpdateAppointmentStatus(context.Background(), "missing", models.StatusRejected)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestSheetsService_ReplaceAppointments(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow("stale", 9)

	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values/Agendamentos:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	var written sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/"+testSpreadsheet+"/values/Agendamentos!A1:J3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&written)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	items := []models.Appointment{*testAppointment("apt-1"), *testAppointment("apt-2")}
	require.NoError(t, s.ReplaceAppointments(context.Background(), items))

	require.Len(t, written.Values, 3)
	assert.Equal(t, "ID", written.Values[0][0])
	assert.Equal(t, "apt-2", written.Values[2][0])

	row, ok := s.getCachedRow("apt-2")
	assert.True(t, ok)
	assert.Equal(t, 3, row)
	_, ok = s.getCachedRow("stale")
	assert.False(t, ok)
}

func TestRowFromRange(t *testing.T) {
	row, ok := rowFromRange("Agendamentos!A12:J12")
	assert.True(t, ok)
	assert.Equal(t, 12, row)

	_, ok = rowFromRange("Agendamentos")
	assert.False(t, ok)
}

func TestSheetsService_ClearCache(t *testing.T) {
	_, s := setupMockServer(t)
	s.setCachedRow("apt-1", 2)
	s.ClearCache()
	_, ok := s.getCachedRow("apt-1")
	assert.False(t, ok)
}
