package spreadsheet

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/sheethub/sheethub/internal/telemetry"
)

const (
	spreadsheetMimeQuery = "mimeType='application/vnd.google-apps.spreadsheet' and trashed=false"
	valueInputOption     = "USER_ENTERED"
	insertDataOption     = "INSERT_ROWS"
)

// GoogleClient implements Client on top of Sheets v4 and Drive v3.
type GoogleClient struct {
	sheets *sheets.Service
	drive  *drive.Service
}

var _ Client = (*GoogleClient)(nil)

// NewGoogleClient builds both services from the same options, typically
// option.WithTokenSource with a *TokenSource.
func NewGoogleClient(ctx context.Context, opts ...option.ClientOption) (*GoogleClient, error) {
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &GoogleClient{sheets: sheetsSvc, drive: driveSvc}, nil
}

func (c *GoogleClient) ListSpreadsheets(ctx context.Context, limit int) ([]SpreadsheetFile, error) {
	if limit <= 0 || limit > MaxListedSpreadsheets {
		limit = MaxListedSpreadsheets
	}
	res, err := c.drive.Files.List().
		Q(spreadsheetMimeQuery).
		OrderBy("modifiedTime desc").
		PageSize(int64(limit)).
		Fields("files(id,name,modifiedTime,webViewLink)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiFailure("drive.files.list", err)
	}

	out := make([]SpreadsheetFile, 0, len(res.Files))
	for _, f := range res.Files {
		out = append(out, SpreadsheetFile{
			ID:           f.Id,
			Name:         f.Name,
			ModifiedTime: f.ModifiedTime,
			WebViewLink:  f.WebViewLink,
		})
	}
	return out, nil
}

func (c *GoogleClient) GetSpreadsheet(ctx context.Context, spreadsheetID string) (*SpreadsheetInfo, error) {
	res, err := c.sheets.Spreadsheets.Get(spreadsheetID).
		Fields("properties(title,locale,timeZone),sheets(properties(sheetId,title,index))").
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiFailure("sheets.spreadsheets.get", err)
	}

	info := &SpreadsheetInfo{Sheets: make([]SheetInfo, 0, len(res.Sheets))}
	if res.Properties != nil {
		info.Properties = SpreadsheetProperties{
			Title:    res.Properties.Title,
			Locale:   res.Properties.Locale,
			TimeZone: res.Properties.TimeZone,
		}
	}
	for _, sh := range res.Sheets {
		if sh.Properties == nil {
			continue
		}
		info.Sheets = append(info.Sheets, SheetInfo{
			Title:   sh.Properties.Title,
			SheetID: sh.Properties.SheetId,
			Index:   sh.Properties.Index,
		})
	}
	return info, nil
}

func (c *GoogleClient) GetValues(ctx context.Context, spreadsheetID, rng string) (*ValueRange, error) {
	res, err := c.sheets.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, apiFailure("sheets.values.get", err)
	}
	values := res.Values
	if values == nil {
		values = [][]any{}
	}
	return &ValueRange{Range: res.Range, Values: values}, nil
}

func (c *GoogleClient) UpdateValues(ctx context.Context, spreadsheetID, rng string, values [][]any) (*UpdateResult, error) {
	res, err := c.sheets.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiFailure("sheets.values.update", err)
	}
	return &UpdateResult{UpdatedCells: res.UpdatedCells, UpdatedRange: res.UpdatedRange}, nil
}

func (c *GoogleClient) AppendValues(ctx context.Context, spreadsheetID, rng string, values [][]any) (*AppendResult, error) {
	res, err := c.sheets.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputOption).
		InsertDataOption(insertDataOption).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiFailure("sheets.values.append", err)
	}
	out := &AppendResult{TableRange: res.TableRange}
	if res.Updates != nil {
		out.UpdatedRows = res.Updates.UpdatedRows
		out.UpdatedRange = res.Updates.UpdatedRange
	}
	return out, nil
}

func (c *GoogleClient) ClearValues(ctx context.Context, spreadsheetID, rng string) (string, error) {
	res, err := c.sheets.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return "", apiFailure("sheets.values.clear", err)
	}
	return res.ClearedRange, nil
}

func (c *GoogleClient) CreateSpreadsheet(ctx context.Context, title string, sheetTitles []string) (*CreatedSpreadsheet, error) {
	body := &sheets.Spreadsheet{Properties: &sheets.SpreadsheetProperties{Title: title}}
	for _, t := range sheetTitles {
		body.Sheets = append(body.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: t}})
	}

	res, err := c.sheets.Spreadsheets.Create(body).Context(ctx).Do()
	if err != nil {
		return nil, apiFailure("sheets.spreadsheets.create", err)
	}

	out := &CreatedSpreadsheet{
		SpreadsheetID:  res.SpreadsheetId,
		SpreadsheetURL: res.SpreadsheetUrl,
		Sheets:         make([]string, 0, len(res.Sheets)),
	}
	for _, sh := range res.Sheets {
		if sh.Properties != nil {
			out.Sheets = append(out.Sheets, sh.Properties.Title)
		}
	}
	return out, nil
}

func (c *GoogleClient) BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	res, err := c.sheets.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiFailure("sheets.spreadsheets.batchUpdate", err)
	}
	return res, nil
}

// apiFailure counts the failure and annotates it with the operation name.
// The *googleapi.Error stays reachable through errors.As.
func apiFailure(operation string, err error) error {
	status := 0
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		status = gerr.Code
	}
	telemetry.IncSheetsAPIError(operation, status)
	return fmt.Errorf("%s: %w", operation, err)
}
