package source

import (
	"encoding/json"
	"net/url"
	"strings"
)

type itemLink struct {
	ApplyAnalyze string `json:"applyAnalyze"`
}

// JobCode derives the detail-endpoint code of a list item from the last
// path segment of link.applyAnalyze, without its query string.
func JobCode(item map[string]json.RawMessage) (string, error) {
	jobNo := stringField(item, "jobNo")

	var link itemLink
	if raw, ok := item["link"]; ok {
		_ = json.Unmarshal(raw, &link)
	}
	if link.ApplyAnalyze == "" {
		return "", &ItemAddressingError{JobNo: jobNo, Message: "missing link.applyAnalyze"}
	}

	code := lastSegment(link.ApplyAnalyze)
	if code == "" {
		return "", &ItemAddressingError{JobNo: jobNo, Link: link.ApplyAnalyze, Message: "no code in link.applyAnalyze"}
	}
	return code, nil
}

// EmployerCode returns the employer code at the end of a custUrl, or "".
func EmployerCode(custURL string) string {
	return lastSegment(custURL)
}

func lastSegment(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	} else if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return strings.TrimSpace(path)
}

func stringField(item map[string]json.RawMessage, name string) string {
	var s string
	if raw, ok := item[name]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}
