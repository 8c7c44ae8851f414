// Package jobs defines the harvested job-posting model, the fixed column
// schema of the jobs table, and the normalizer that flattens a posting into
// a storable record.
package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code is a named code from the search API's lookup tables (area, job category).
type Code struct {
	Code string
	Name string
}

// Label returns the display name, falling back to the code.
func (c Code) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Code
}

// FetchTask identifies one sweep: a single region and job category pair.
type FetchTask struct {
	Region   Code
	Category Code
}

func (t FetchTask) String() string {
	return fmt.Sprintf("%s/%s", t.Region.Code, t.Category.Code)
}

// Tasks enumerates region-major FetchTasks: every category for the first
// region, then every category for the next.
func Tasks(regions, categories []Code) []FetchTask {
	tasks := make([]FetchTask, 0, len(regions)*len(categories))
	for _, region := range regions {
		for _, category := range categories {
			tasks = append(tasks, FetchTask{Region: region, Category: category})
		}
	}
	return tasks
}

// JobPosting is one item from the search list, plus whatever enrichment
// succeeded for it.
type JobPosting struct {
	// Fields holds the raw list-stage item keyed by API field name.
	Fields map[string]json.RawMessage
	// Code addresses the item on the detail endpoint.
	Code string
	// Category is the display name of the sweep's job category (stored as JobCat).
	Category string

	Detail   *JobDetail
	Employer *EmployerProfile
}

// Text returns a list-stage field as plain text, or "" if it is absent or not a string.
func (p *JobPosting) Text(name string) string {
	raw, ok := p.Fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// JobDetail is the enrichment returned by the item-detail endpoint. Nil raw
// values mean the response did not carry that part.
type JobDetail struct {
	Condition   json.RawMessage
	JobCategory json.RawMessage
	CustURL     string
}

// EmployerProfile is the enrichment returned by the employer endpoint.
type EmployerProfile struct {
	Employees json.RawMessage
	Capital   json.RawMessage
}

// Batch collects the normalized records of one sweep. It is owned by a
// single sweep and discarded after persisting.
type Batch struct {
	Task    FetchTask
	Records []Record
}

// NewBatch creates an empty batch for a task.
func NewBatch(task FetchTask) *Batch {
	return &Batch{Task: task}
}

// Add appends a record.
func (b *Batch) Add(r Record) {
	b.Records = append(b.Records, r)
}

// Len returns the number of records; a nil batch is empty.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}
