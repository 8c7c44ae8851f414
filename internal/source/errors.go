package source

import "fmt"

// MalformedResponseError is a 2xx JSON response that does not have the
// shape an endpoint promises.
type MalformedResponseError struct {
	Endpoint string
	URL      string
	Cause    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response from %s: %v", e.Endpoint, e.URL, e.Cause)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}

// ItemAddressingError is a list item from which no detail code can be derived.
type ItemAddressingError struct {
	JobNo   string
	Link    string
	Message string
}

func (e *ItemAddressingError) Error() string {
	if e.Link == "" {
		return fmt.Sprintf("item %q: %s", e.JobNo, e.Message)
	}
	return fmt.Sprintf("item %q: %s: %s", e.JobNo, e.Message, e.Link)
}
