// Package spreadsheet wraps the Google Sheets and Drive APIs behind the
// narrow Client interface the tool handlers consume.
package spreadsheet

import (
	"context"

	"google.golang.org/api/sheets/v4"
)

// MaxListedSpreadsheets caps list_spreadsheets results.
const MaxListedSpreadsheets = 50

// Client is the capability-scoped view of the spreadsheet service.
type Client interface {
	ListSpreadsheets(ctx context.Context, limit int) ([]SpreadsheetFile, error)
	GetSpreadsheet(ctx context.Context, spreadsheetID string) (*SpreadsheetInfo, error)
	GetValues(ctx context.Context, spreadsheetID, rng string) (*ValueRange, error)
	UpdateValues(ctx context.Context, spreadsheetID, rng string, values [][]any) (*UpdateResult, error)
	AppendValues(ctx context.Context, spreadsheetID, rng string, values [][]any) (*AppendResult, error)
	ClearValues(ctx context.Context, spreadsheetID, rng string) (string, error)
	CreateSpreadsheet(ctx context.Context, title string, sheetTitles []string) (*CreatedSpreadsheet, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error)
}

type SpreadsheetFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime"`
	WebViewLink  string `json:"webViewLink"`
}

type SpreadsheetProperties struct {
	Title    string `json:"title"`
	Locale   string `json:"locale"`
	TimeZone string `json:"timeZone"`
}

type SheetInfo struct {
	Title   string `json:"title"`
	SheetID int64  `json:"sheetId"`
	Index   int64  `json:"index"`
}

type SpreadsheetInfo struct {
	Properties SpreadsheetProperties `json:"properties"`
	Sheets     []SheetInfo           `json:"sheets"`
}

// SheetByID returns the sheet with the given id, if present.
func (s *SpreadsheetInfo) SheetByID(sheetID int64) (SheetInfo, bool) {
	for _, sh := range s.Sheets {
		if sh.SheetID == sheetID {
			return sh, true
		}
	}
	return SheetInfo{}, false
}

// ValueRange holds a rectangular block of cell values. Values is never nil.
type ValueRange struct {
	Range  string  `json:"range"`
	Values [][]any `json:"values"`
}

type UpdateResult struct {
	UpdatedCells int64  `json:"updatedCells"`
	UpdatedRange string `json:"updatedRange"`
}

type AppendResult struct {
	UpdatedRows  int64  `json:"updatedRows"`
	UpdatedRange string `json:"updatedRange"`
	TableRange   string `json:"tableRange"`
}

type CreatedSpreadsheet struct {
	SpreadsheetID  string   `json:"spreadsheetId"`
	SpreadsheetURL string   `json:"spreadsheetUrl"`
	Sheets         []string `json:"sheets"`
}
