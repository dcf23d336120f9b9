// Package google mirrors appointments into a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"tattoostudio/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	sheetName    = "Agendamentos"
	idColumn     = sheetName + "!A:A"
	rowTimestamp = "2006-01-02 15:04:05"
)

// ErrRowNotFound is returned when no row holds the appointment id.
var ErrRowNotFound = errors.New("appointment row not found")

var sheetHeaders = []interface{}{"ID", "Nome", "E-mail", "Telefone", "Data", "Horário", "Descrição", "Status", "Criado em", "Atualizado em"}

type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	now           func() time.Time

	rowCache map[string]int
	cacheMu  sync.RWMutex
}

// NewSheetsService authenticates with a service-account credentials file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsService(srv, spreadsheetID), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID string) *SheetsService {
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		now:           time.Now,
		rowCache:      make(map[string]int),
	}
}

// TestConnection reads the header cell.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// RefreshCache rebuilds the row index every interval until ctx is done.
func (s *SheetsService) RefreshCache(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_ = s.WarmUpCache(warmCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, idColumn).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if id := cellID(row); id != "" && i > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func cellID(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	id, _ := row[0].(string)
	return id
}

// AppendAppointment adds a row at the end of the sheet.
func (s *SheetsService) AppendAppointment(ctx context.Context, a *models.Appointment) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(a)},
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, idColumn, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(a.ID, row)
		}
	}
	return nil
}

// rowFromRange extracts the first row number of "Sheet!A5:J5".
func rowFromRange(r string) (int, bool) {
	var col string
	var row int
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == '!' {
			r = r[i+1:]
			break
		}
	}
	if _, err := fmt.Sscanf(r, "%1s%d", &col, &row); err != nil || row == 0 {
		return 0, false
	}
	return row, true
}

// UpsertAppointment updates the appointment's row or appends a new one.
func (s *SheetsService) UpsertAppointment(ctx context.Context, a *models.Appointment) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("appointment id is required")
	}

	rowIdx, err := s.FindAppointmentRow(ctx, a.ID)
	if errors.Is(err, ErrRowNotFound) {
		return s.AppendAppointment(ctx, a)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:J%d", sheetName, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(a)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// UpdateAppointmentStatus rewrites the status and updated-at cells.
func (s *SheetsService) UpdateAppointmentStatus(ctx context.Context, appointmentID string, status models.Status) error {
	rowIdx, err := s.FindAppointmentRow(ctx, appointmentID)
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!H%d:J%d", sheetName, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*sheets.ValueRange{
			{Range: fmt.Sprintf("%s!H%d", sheetName, rowIdx), Values: [][]interface{}{{status.Label()}}},
			{Range: fmt.Sprintf("%s!J%d", sheetName, rowIdx), Values: [][]interface{}{{s.now().Format(rowTimestamp)}}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rangeData, err)
	}
	return nil
}

// FindAppointmentRow locates the 1-based row of appointmentID in column A.
func (s *SheetsService) FindAppointmentRow(ctx context.Context, appointmentID string) (int, error) {
	if appointmentID == "" {
		return 0, fmt.Errorf("appointment id is required")
	}

	if row, ok := s.getCachedRow(appointmentID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, idColumn).Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if cellID(row) == appointmentID {
			rowIdx := i + 1
			s.setCachedRow(appointmentID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, ErrRowNotFound
}

// ReplaceAppointments rewrites the whole sheet.
func (s *SheetsService) ReplaceAppointments(ctx context.Context, items []models.Appointment) error {
	values := make([][]interface{}, 0, len(items)+1)
	values = append(values, sheetHeaders)
	cache := make(map[string]int, len(items))
	for i := range items {
		values = append(values, s.rowValues(&items[i]))
		cache[items[i].ID] = i + 2
	}

	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, sheetName, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}

	rangeData := fmt.Sprintf("%s!A1:J%d", sheetName, len(values))
	if _, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return err
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func (s *SheetsService) rowValues(a *models.Appointment) []interface{} {
	return []interface{}{
		a.ID,
		a.Name,
		a.Email,
		a.Phone,
		a.Date,
		a.Time,
		a.Description,
		a.Status.Label(),
		a.CreatedAt.UTC().Format(rowTimestamp),
		s.now().UTC().Format(rowTimestamp),
	}
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}
