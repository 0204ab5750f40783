// Package spreadsheettest provides an in-memory spreadsheet.Client for tests.
package spreadsheettest

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/sheets/v4"

	"github.com/sheethub/sheethub/internal/spreadsheet"
)

// Call records one client invocation.
type Call struct {
	Method        string
	SpreadsheetID string
	Range         string
	Values        [][]any
	Requests      []*sheets.Request
}

// Fake answers every call with canned data. When Err is set every call
// fails with it; when Panic is set every call panics with it.
type Fake struct {
	Err   error
	Panic any

	Files  []spreadsheet.SpreadsheetFile
	Info   *spreadsheet.SpreadsheetInfo
	Values [][]any

	mu     sync.Mutex
	calls  []Call
	nextID int64
}

var _ spreadsheet.Client = (*Fake)(nil)

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.Panic != nil {
		panic(f.Panic)
	}
	return f.Err
}

// Calls returns a snapshot of recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// LastCall returns the most recent call, or the zero Call.
func (f *Fake) LastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *Fake) ListSpreadsheets(_ context.Context, limit int) ([]spreadsheet.SpreadsheetFile, error) {
	if err := f.record(Call{Method: "ListSpreadsheets"}); err != nil {
		return nil, err
	}
	files := f.Files
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return append([]spreadsheet.SpreadsheetFile{}, files...), nil
}

func (f *Fake) GetSpreadsheet(_ context.Context, spreadsheetID string) (*spreadsheet.SpreadsheetInfo, error) {
	if err := f.record(Call{Method: "GetSpreadsheet", SpreadsheetID: spreadsheetID}); err != nil {
		return nil, err
	}
	if f.Info == nil {
		return &spreadsheet.SpreadsheetInfo{
			Properties: spreadsheet.SpreadsheetProperties{Title: "Untitled", Locale: "en_US", TimeZone: "Etc/GMT"},
			Sheets:     []spreadsheet.SheetInfo{{Title: "Sheet1", SheetID: 0, Index: 0}},
		}, nil
	}
	info := *f.Info
	return &info, nil
}

func (f *Fake) GetValues(_ context.Context, spreadsheetID, rng string) (*spreadsheet.ValueRange, error) {
	if err := f.record(Call{Method: "GetValues", SpreadsheetID: spreadsheetID, Range: rng}); err != nil {
		return nil, err
	}
	values := f.Values
	if values == nil {
		values = [][]any{}
	}
	return &spreadsheet.ValueRange{Range: rng, Values: values}, nil
}

func (f *Fake) UpdateValues(_ context.Context, spreadsheetID, rng string, values [][]any) (*spreadsheet.UpdateResult, error) {
	if err := f.record(Call{Method: "UpdateValues", SpreadsheetID: spreadsheetID, Range: rng, Values: values}); err != nil {
		return nil, err
	}
	var cells int64
	for _, row := range values {
		cells += int64(len(row))
	}
	return &spreadsheet.UpdateResult{UpdatedCells: cells, UpdatedRange: rng}, nil
}

func (f *Fake) AppendValues(_ context.Context, spreadsheetID, rng string, values [][]any) (*spreadsheet.AppendResult, error) {
	if err := f.record(Call{Method: "AppendValues", SpreadsheetID: spreadsheetID, Range: rng, Values: values}); err != nil {
		return nil, err
	}
	return &spreadsheet.AppendResult{UpdatedRows: int64(len(values)), UpdatedRange: rng, TableRange: rng}, nil
}

func (f *Fake) ClearValues(_ context.Context, spreadsheetID, rng string) (string, error) {
	if err := f.record(Call{Method: "ClearValues", SpreadsheetID: spreadsheetID, Range: rng}); err != nil {
		return "", err
	}
	return rng, nil
}

func (f *Fake) CreateSpreadsheet(_ context.Context, title string, sheetTitles []string) (*spreadsheet.CreatedSpreadsheet, error) {
	if err := f.record(Call{Method: "CreateSpreadsheet", Range: title}); err != nil {
		return nil, err
	}
	titles := append([]string{}, sheetTitles...)
	if len(titles) == 0 {
		titles = []string{"Sheet1"}
	}
	id := f.newID()
	return &spreadsheet.CreatedSpreadsheet{
		SpreadsheetID:  fmt.Sprintf("FAKE%d", id),
		SpreadsheetURL: fmt.Sprintf("https://docs.google.com/spreadsheets/d/FAKE%d/edit", id),
		Sheets:         titles,
	}, nil
}

// BatchUpdate answers AddSheet and DuplicateSheet requests with synthetic
// sheet properties and every other request with an empty reply.
func (f *Fake) BatchUpdate(_ context.Context, spreadsheetID string, requests []*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	if err := f.record(Call{Method: "BatchUpdate", SpreadsheetID: spreadsheetID, Requests: requests}); err != nil {
		return nil, err
	}
	resp := &sheets.BatchUpdateSpreadsheetResponse{SpreadsheetId: spreadsheetID}
	for _, req := range requests {
		reply := &sheets.Response{}
		switch {
		case req.AddSheet != nil:
			props := *req.AddSheet.Properties
			props.SheetId = 1000 + f.newID()
			if !forced(props.ForceSendFields, "Index") {
				props.Index = f.sheetCount()
			}
			reply.AddSheet = &sheets.AddSheetResponse{Properties: &props}
		case req.DuplicateSheet != nil:
			title := req.DuplicateSheet.NewSheetName
			if title == "" {
				title = fmt.Sprintf("Copy of sheet %d", req.DuplicateSheet.SourceSheetId)
			}
			reply.DuplicateSheet = &sheets.DuplicateSheetResponse{Properties: &sheets.SheetProperties{
				SheetId: 2000 + f.newID(),
				Title:   title,
				Index:   req.DuplicateSheet.InsertSheetIndex,
			}}
		}
		resp.Replies = append(resp.Replies, reply)
	}
	return resp, nil
}

func (f *Fake) newID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID
}

func (f *Fake) sheetCount() int64 {
	if f.Info == nil {
		return 1
	}
	return int64(len(f.Info.Sheets))
}

func forced(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
