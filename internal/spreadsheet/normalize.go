package spreadsheet

import "regexp"

var documentURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractID returns the spreadsheet id embedded in a document URL, or s
// unchanged when no id segment is present. The id format itself is not
// checked; the service rejects bad ids.
func ExtractID(s string) string {
	m := documentURLPattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[1]
}
