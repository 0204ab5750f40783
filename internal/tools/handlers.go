package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/api/sheets/v4"

	"github.com/sheethub/sheethub/internal/spreadsheet"
)

var (
	spreadsheetIDParam = Param{Name: "spreadsheet_id", Type: TypeString, Required: true, Description: "Spreadsheet ID or full spreadsheet URL"}
	rangeParam         = Param{Name: "range", Type: TypeString, Required: true, Description: "A1 notation range, e.g. Sheet1!A1:D10"}
	valuesParam        = Param{
		Name:        "values",
		Type:        TypeArray,
		Required:    true,
		Description: "Rows of cell values; formulas and numbers are parsed as if typed",
		Items:       &Param{Type: TypeArray},
	}
)

func builtinTools() []Tool {
	return []Tool{
		{
			Name:        ListSpreadsheets,
			Description: "List spreadsheets visible to the service account, most recently modified first (max 50)",
			ReadOnly:    true,
			handler:     handleListSpreadsheets,
		},
		{
			Name:        GetSpreadsheetInfo,
			Description: "Get spreadsheet properties and its sheets",
			Params:      []Param{spreadsheetIDParam},
			ReadOnly:    true,
			handler:     handleGetSpreadsheetInfo,
		},
		{
			Name:        ReadRange,
			Description: "Read cell values from a range",
			Params:      []Param{spreadsheetIDParam, rangeParam},
			ReadOnly:    true,
			handler:     handleReadRange,
		},
		{
			Name:        WriteRange,
			Description: "Overwrite a range with values",
			Params:      []Param{spreadsheetIDParam, rangeParam, valuesParam},
			handler:     handleWriteRange,
		},
		{
			Name:        AppendData,
			Description: "Append rows after the last row of the table found in a range",
			Params:      []Param{spreadsheetIDParam, rangeParam, valuesParam},
			handler:     handleAppendData,
		},
		{
			Name:        ClearRange,
			Description: "Clear values (not formatting) from a range",
			Params:      []Param{spreadsheetIDParam, rangeParam},
			handler:     handleClearRange,
		},
		{
			Name:        CreateSpreadsheet,
			Description: "Create a spreadsheet, optionally with named sheets in the given order",
			Params: []Param{
				{Name: "title", Type: TypeString, Required: true, Description: "Spreadsheet title"},
				{Name: "sheet_titles", Type: TypeArray, Description: "Sheet titles in order; defaults to a single sheet", Items: &Param{Type: TypeString}},
			},
			handler: handleCreateSpreadsheet,
		},
		{
			Name:        AddSheet,
			Description: "Add a sheet to an existing spreadsheet",
			Params: []Param{
				spreadsheetIDParam,
				{Name: "title", Type: TypeString, Required: true, Description: "New sheet title"},
				{Name: "index", Type: TypeInteger, Description: "Zero-based position; defaults to the end"},
			},
			handler: handleAddSheet,
		},
		{
			Name:        DuplicateSheet,
			Description: "Copy a sheet, including formatting, within the same spreadsheet",
			Params: []Param{
				spreadsheetIDParam,
				{Name: "source_sheet_id", Type: TypeInteger, Required: true, Description: "Numeric sheetId of the sheet to copy"},
				{Name: "new_title", Type: TypeString, Description: "Title of the copy; defaults to \"Copy of <source>\""},
				{Name: "insert_index", Type: TypeInteger, Description: "Zero-based position; defaults to right after the source"},
			},
			handler: handleDuplicateSheet,
		},
		{
			Name:        BatchUpdate,
			Description: "Apply structural update requests (formatting, merges, sheet operations) in one batch",
			Params: []Param{
				spreadsheetIDParam,
				{Name: "requests", Type: TypeArray, Required: true, Description: "Sheets API Request objects", Items: &Param{Type: TypeObject}},
			},
			handler: handleBatchUpdate,
		},
	}
}

type spreadsheetList struct {
	Spreadsheets []spreadsheet.SpreadsheetFile `json:"spreadsheets"`
}

func handleListSpreadsheets(ctx context.Context, c spreadsheet.Client, _ Args) (any, error) {
	files, err := c.ListSpreadsheets(ctx, spreadsheet.MaxListedSpreadsheets)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []spreadsheet.SpreadsheetFile{}
	}
	return spreadsheetList{Spreadsheets: files}, nil
}

func handleGetSpreadsheetInfo(ctx context.Context, c spreadsheet.Client, args Args) (any, error) {
	return c.GetSpreadsheet(ctx, args.SpreadsheetID())
}

func handleReadRange(ctx context.Context, c spreadsheet.Client, args Args) (any, error) {
	vr, err := c.GetValues(ctx, args.SpreadsheetID(), args.String("range"))
	if err != nil {
		return nil, err
	}
	if vr.Values == nil {
		vr.Values = [][]any{}
	}
	return vr, nil
}

func handleWriteRange(ctx context.Context, c spreadsheet.Client, args Args) (any, error) {
	return c.UpdateValues(ctx, args.SpreadsheetID(), args.String("range"), args.Rows("values"))
}

func handleAppendData(ctx context.Context, c spreadsheet.Client, args Args) (any, error) {
	return c.AppendValues(ctx, args.SpreadsheetID(), args.String("range"), args.Rows("values"))
}

type clearResult struct {
	ClearedRange string `json:"clearedRange"`
}

func handleClearRange(ctx context.Context, c spreadsheet.Client, args Args) (any, error) {
	cleared, err := c.ClearValues(ctx, args.SpreadsheetID(), args.String("range"))
	if err != nil {
		return nil, err
	}
	return clearResult{ClearedRange: cleared}, nil
}

func handleCreateSpreadsheet(ctx context.Context, c spreadsheet.Client, args Args) (any, error) {
	return c.CreateSpreadsheet(ctx, args.String("title"), args.Strings("sheet_titles"))
}

type sheetResult struct {
	SheetID int64  `json:"sheetId"`
	Title   string `json:"title"`
	Index   int64  `json:"index"`
}

func handleAddSheet(ctx context.Context, c spreadsheet.Client, args Args) (any, error) {
	props := &sheets.SheetProperties{Title: args.String("title")}
	if idx, ok := args.Int("index"); ok {
		props.Index = idx
		props.ForceSendFields = []string{"Index"}
	}

	resp, err := c.BatchUpdate(ctx, args.SpreadsheetID(), []*sheets.Request{
		{AddSheet: &sheets.AddSheetRequest{Properties: props}},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return nil, fmt.Errorf("add sheet: empty reply from spreadsheet service")
	}
	p := resp.Replies[0].AddSheet.Properties
	return sheetResult{SheetID: p.SheetId, Title: p.Title, Index: p.Index}, nil
}

func handleDuplicateSheet(ctx context.Context, c spreadsheet.Client, args Args) (any, error) {
	id := args.SpreadsheetID()
	sourceID, _ := args.Int("source_sheet_id")

	insertIndex, ok := args.Int("insert_index")
	if !ok {
		info, err := c.GetSpreadsheet(ctx, id)
		if err != nil {
			return nil, err
		}
		source, found := info.SheetByID(sourceID)
		if !found {
			return nil, fmt.Errorf("sheet %d not found in spreadsheet %s", sourceID, id)
		}
		insertIndex = source.Index + 1
	}

	req := &sheets.DuplicateSheetRequest{
		SourceSheetId:    sourceID,
		InsertSheetIndex: insertIndex,
		NewSheetName:     args.String("new_title"),
		ForceSendFields:  []string{"SourceSheetId", "InsertSheetIndex"},
	}
	resp, err := c.BatchUpdate(ctx, id, []*sheets.Request{{DuplicateSheet: req}})
	if err != nil {
		return nil, err
	}
	if len(resp.Replies) == 0 || resp.Replies[0].DuplicateSheet == nil || resp.Replies[0].DuplicateSheet.Properties == nil {
		return nil, fmt.Errorf("duplicate sheet: empty reply from spreadsheet service")
	}
	p := resp.Replies[0].DuplicateSheet.Properties
	return sheetResult{SheetID: p.SheetId, Title: p.Title, Index: p.Index}, nil
}

type batchUpdateResult struct {
	RepliesCount int `json:"repliesCount"`
}

func handleBatchUpdate(ctx context.Context, c spreadsheet.Client, args Args) (any, error) {
	raw, err := json.Marshal(args["requests"])
	if err != nil {
		return nil, fmt.Errorf("encode requests: %w", err)
	}
	var requests []*sheets.Request
	if err := json.Unmarshal(raw, &requests); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}

	resp, err := c.BatchUpdate(ctx, args.SpreadsheetID(), requests)
	if err != nil {
		return nil, err
	}
	count := len(resp.Replies)
	if count == 0 {
		count = len(requests)
	}
	return batchUpdateResult{RepliesCount: count}, nil
}
