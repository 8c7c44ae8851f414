package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/job-harvester/internal/fetch"
	"github.com/jonathan/job-harvester/internal/jobs"
	"github.com/jonathan/job-harvester/internal/source"
)

type pageResult struct {
	page *source.Page
	err  error
}

type fakeSource struct {
	mu        sync.Mutex
	pages     map[string][]pageResult
	details   map[string]*jobs.JobDetail
	employers map[string]*jobs.EmployerProfile

	listCalls     []int
	detailCalls   []string
	employerCalls []string
}

func (f *fakeSource) SearchPage(_ context.Context, task jobs.FetchTask, page int) (*source.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, page)
	results := f.pages[task.String()]
	if page > len(results) {
		return &source.Page{}, nil
	}
	r := results[page-1]
	return r.page, r.err
}

func (f *fakeSource) JobDetail(_ context.Context, code string) (*jobs.JobDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls = append(f.detailCalls, code)
	if d, ok := f.details[code]; ok {
		return d, nil
	}
	return nil, &fetch.Error{URL: "detail/" + code, Kind: fetch.KindNotFound, StatusCode: 404, Message: "not found"}
}

func (f *fakeSource) Employer(_ context.Context, code string) (*jobs.EmployerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.employerCalls = append(f.employerCalls, code)
	if e, ok := f.employers[code]; ok {
		return e, nil
	}
	return nil, &fetch.Error{URL: "employer/" + code, Kind: fetch.KindNotFound, StatusCode: 404, Message: "not found"}
}

type fakeStore struct {
	mu      sync.Mutex
	batches []*jobs.Batch
	err     error
}

func (s *fakeStore) Persist(_ context.Context, batch *jobs.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return s.err
}

var task = jobs.FetchTask{
	Region:   jobs.Code{Code: "6001001000", Name: "台北市"},
	Category: jobs.Code{Code: "2001001002", Name: "儲備幹部"},
}

func item(jobNo, code string) map[string]json.RawMessage {
	m := map[string]json.RawMessage{
		"jobNo":   json.RawMessage(fmt.Sprintf("%q", jobNo)),
		"jobName": json.RawMessage(fmt.Sprintf("%q", "job "+jobNo)),
	}
	if code != "" {
		m["link"] = json.RawMessage(fmt.Sprintf(`{"applyAnalyze":"https://www.104.com.tw/jobs/apply/analysis/%s?jobsource=2018indexpoc"}`, code))
	}
	return m
}

func onePage(items ...map[string]json.RawMessage) []pageResult {
	return []pageResult{{page: &source.Page{Items: items}}}
}

func TestSweep_OneDetailFetchPerItem(t *testing.T) {
	src := &fakeSource{pages: map[string][]pageResult{
		task.String(): onePage(item("1", "a1"), item("2", "a2"), item("3", "a3")),
	}}
	store := &fakeStore{}

	res, err := New(src, store, Options{}).Sweep(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2", "a3"}, src.detailCalls)
	assert.Equal(t, 3, res.Listed)
	assert.Equal(t, 3, res.Persisted)
	require.Len(t, store.batches, 1)
	assert.Equal(t, 3, store.batches[0].Len())
}

func TestSweep_DropsItemWithoutCode(t *testing.T) {
	src := &fakeSource{pages: map[string][]pageResult{
		task.String(): onePage(item("1", "a1"), item("2", ""), item("3", "a3")),
	}}
	store := &fakeStore{}

	res, err := New(src, store, Options{}).Sweep(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, []string{"a1", "a3"}, src.detailCalls)
	require.Len(t, store.batches, 1)
	assert.Equal(t, 2, store.batches[0].Len())
	for _, rec := range store.batches[0].Records {
		assert.NotEqual(t, "2", rec.Get("jobNo"))
	}
}

func TestSweep_DetailNotFoundKeepsItem(t *testing.T) {
	src := &fakeSource{pages: map[string][]pageResult{
		task.String(): onePage(item("1", "gone")),
	}}
	store := &fakeStore{}

	res, err := New(src, store, Options{}).Sweep(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DetailMisses)
	assert.Empty(t, src.employerCalls)

	require.Len(t, store.batches, 1)
	rec := store.batches[0].Records[0]
	assert.Equal(t, "1", rec.Get("jobNo"))
	assert.Equal(t, "job 1", rec.Get("jobName"))
	assert.Equal(t, "gone", rec.Get(jobs.ColumnCode))
	assert.Nil(t, rec.Get(jobs.ColumnCondition))
	assert.Nil(t, rec.Get(jobs.ColumnJobCategory))
	assert.Nil(t, rec.Get(jobs.ColumnCompanyEmployees))
	assert.Nil(t, rec.Get(jobs.ColumnCompanyCapital))
}

func TestSweep_EndToEnd(t *testing.T) {
	src := &fakeSource{
		pages: map[string][]pageResult{
			task.String(): onePage(item("A", "123"), item("B", "456")),
		},
		details: map[string]*jobs.JobDetail{
			"123": {
				Condition:   json.RawMessage(`{"edu":"大學"}`),
				JobCategory: json.RawMessage(`[{"code":"2001001002"}]`),
				CustURL:     "https://www.104.com.tw/company/c9",
			},
		},
		employers: map[string]*jobs.EmployerProfile{
			"c9": {Employees: json.RawMessage(`"150人"`), Capital: json.RawMessage(`"5億元"`)},
		},
	}
	store := &fakeStore{}

	res, err := New(src, store, Options{}).Sweep(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, []string{"123", "456"}, src.detailCalls)
	assert.Equal(t, []string{"c9"}, src.employerCalls)
	assert.Equal(t, 2, res.Persisted)
	assert.Equal(t, 1, res.DetailMisses)

	require.Len(t, store.batches, 1, "exactly one persist call")
	records := store.batches[0].Records
	require.Len(t, records, 2)

	a, b := records[0], records[1]
	assert.Equal(t, "123", a.Get(jobs.ColumnCode))
	assert.Equal(t, "儲備幹部", a.Get(jobs.ColumnJobCat))
	assert.Equal(t, `{"edu":"大學"}`, a.Get(jobs.ColumnCondition))
	assert.Equal(t, "150人", a.Get(jobs.ColumnCompanyEmployees))
	assert.Equal(t, "5億元", a.Get(jobs.ColumnCompanyCapital))

	assert.Equal(t, "456", b.Get(jobs.ColumnCode))
	assert.Equal(t, "B", b.Get("jobNo"))
	assert.Nil(t, b.Get(jobs.ColumnCondition))
	assert.Nil(t, b.Get(jobs.ColumnCompanyEmployees))
}

func TestSweep_MissingCustURL(t *testing.T) {
	src := &fakeSource{
		pages:   map[string][]pageResult{task.String(): onePage(item("1", "a1"))},
		details: map[string]*jobs.JobDetail{"a1": {Condition: json.RawMessage(`{}`)}},
	}
	store := &fakeStore{}

	res, err := New(src, store, Options{}).Sweep(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmployerMisses)
	assert.Empty(t, src.employerCalls)
	assert.Equal(t, "{}", store.batches[0].Records[0].Get(jobs.ColumnCondition))
}

func TestSweep_PersistFailureLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	src := &fakeSource{pages: map[string][]pageResult{
		task.String(): onePage(item("1", "a1"), item("2", "a2")),
	}}
	store := &fakeStore{err: errors.New("connection lost")}

	res, err := New(src, store, Options{Logger: zap.New(core)}).Sweep(context.Background(), task)
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.Equal(t, 0, res.Persisted)

	errorLogs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errorLogs, 1)
	assert.Equal(t, "failed to persist batch", errorLogs[0].Message)
	fields := errorLogs[0].ContextMap()
	assert.Equal(t, "6001001000", fields["region"])
	assert.Equal(t, "2001001002", fields["category"])
	assert.Equal(t, int64(2), fields["rows"])
}

func TestSweep_EmptyBatchStillHandedToStore(t *testing.T) {
	src := &fakeSource{pages: map[string][]pageResult{
		task.String(): {{err: &source.MalformedResponseError{Endpoint: source.EndpointList, URL: "list", Cause: errors.New("missing data.list")}}},
	}}
	store := &fakeStore{}

	res, err := New(src, store, Options{}).Sweep(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pages)
	require.Len(t, store.batches, 1)
	assert.Equal(t, 0, store.batches[0].Len())
}

func TestSweep_Pagination(t *testing.T) {
	t.Run("stops at empty page", func(t *testing.T) {
		src := &fakeSource{pages: map[string][]pageResult{
			task.String(): append(onePage(item("1", "a1")), pageResult{page: &source.Page{}}),
		}}
		res, err := New(src, &fakeStore{}, Options{MaxPages: 5}).Sweep(context.Background(), task)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, src.listCalls)
		assert.Equal(t, 2, res.Pages)
	})

	t.Run("stops at total page", func(t *testing.T) {
		pages := []pageResult{
			{page: &source.Page{Items: []map[string]json.RawMessage{item("1", "a1")}, TotalPage: 2}},
			{page: &source.Page{Items: []map[string]json.RawMessage{item("2", "a2")}, TotalPage: 2}},
			{page: &source.Page{Items: []map[string]json.RawMessage{item("3", "a3")}, TotalPage: 2}},
		}
		src := &fakeSource{pages: map[string][]pageResult{task.String(): pages}}
		store := &fakeStore{}
		res, err := New(src, store, Options{MaxPages: 5}).Sweep(context.Background(), task)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, src.listCalls)
		assert.Equal(t, 2, res.Persisted)
	})

	t.Run("keeps earlier pages on failure", func(t *testing.T) {
		src := &fakeSource{pages: map[string][]pageResult{
			task.String(): append(onePage(item("1", "a1")), pageResult{err: errors.New("HTTP status 403")}),
		}}
		store := &fakeStore{}
		res, err := New(src, store, Options{MaxPages: 3}).Sweep(context.Background(), task)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, src.listCalls)
		assert.Equal(t, 1, res.Persisted)
	})

	t.Run("defaults to one page", func(t *testing.T) {
		src := &fakeSource{pages: map[string][]pageResult{
			task.String(): append(onePage(item("1", "a1")), onePage(item("2", "a2"))...),
		}}
		_, err := New(src, &fakeStore{}, Options{}).Sweep(context.Background(), task)
		require.NoError(t, err)
		assert.Equal(t, []int{1}, src.listCalls)
	})
}

func TestSweep_PausesAfterEveryPage(t *testing.T) {
	var waits []time.Duration
	pacer := DefaultPacer()
	pacer.Float64 = func() float64 { return 0 }
	pacer.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	src := &fakeSource{pages: map[string][]pageResult{
		task.String(): append(onePage(item("1", "a1")), onePage(item("2", "a2"))...),
	}}

	_, err := New(src, &fakeStore{}, Options{MaxPages: 2, Pacer: pacer}).Sweep(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultPageMin, DefaultPageMin}, waits)
}

func TestSweep_CancelledSkipsPersist(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pacer := Pacer{Sleep: func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}}
	src := &fakeSource{pages: map[string][]pageResult{task.String(): onePage(item("1", "a1"))}}
	store := &fakeStore{}

	_, err := New(src, store, Options{Pacer: pacer}).Sweep(ctx, task)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.batches)
}

func TestRun_Sequential(t *testing.T) {
	second := jobs.FetchTask{Region: task.Region, Category: jobs.Code{Code: "2001001001"}}
	src := &fakeSource{pages: map[string][]pageResult{
		task.String():   onePage(item("1", "a1")),
		second.String(): onePage(item("2", "a2"), item("3", "a3")),
	}}
	store := &fakeStore{}

	var waits []time.Duration
	pacer := DefaultPacer()
	pacer.Float64 = func() float64 { return 0.5 }
	pacer.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	var swept []string
	h := New(src, store, Options{Pacer: pacer, OnSweep: func(r SweepResult) {
		swept = append(swept, r.Task.String())
	}})

	results, err := h.Run(context.Background(), []jobs.FetchTask{task, second})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Persisted)
	assert.Equal(t, 2, results[1].Persisted)
	assert.Equal(t, []string{task.String(), second.String()}, swept)
	assert.Equal(t, 0, Failed(results))

	// page, task, page: no pause after the last sweep
	assert.Equal(t, []time.Duration{3500 * time.Millisecond, 25 * time.Second, 3500 * time.Millisecond}, waits)
	assert.Equal(t, "2001001001", results[1].Task.Category.Code)
	assert.Equal(t, "2001001001", store.batches[1].Records[0].Get(jobs.ColumnJobCat),
		"category without a name falls back to its code")
}

func TestRun_Concurrent(t *testing.T) {
	var tasks []jobs.FetchTask
	pages := make(map[string][]pageResult)
	for i := range 4 {
		tk := jobs.FetchTask{Region: jobs.Code{Code: fmt.Sprintf("r%d", i)}, Category: task.Category}
		tasks = append(tasks, tk)
		pages[tk.String()] = onePage(item(fmt.Sprint(i), fmt.Sprintf("c%d", i)))
	}
	src := &fakeSource{pages: pages}
	store := &fakeStore{err: nil}

	var mu sync.Mutex
	calls := 0
	h := New(src, store, Options{Concurrency: 2, OnSweep: func(SweepResult) {
		mu.Lock()
		calls++
		mu.Unlock()
	}})

	results, err := h.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, tasks[i], r.Task)
		assert.Equal(t, 1, r.Persisted)
	}
	assert.Len(t, store.batches, 4)
	assert.Equal(t, 4, calls)
}

func TestRun_CountsFailedBatches(t *testing.T) {
	src := &fakeSource{pages: map[string][]pageResult{task.String(): onePage(item("1", "a1"))}}
	store := &fakeStore{err: errors.New("deadlock")}

	results, err := New(src, store, Options{}).Run(context.Background(), []jobs.FetchTask{task})
	require.NoError(t, err)
	assert.Equal(t, 1, Failed(results))
}
