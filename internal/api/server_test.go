package api

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/config"
	"github.com/JakeFAU/staticpub/internal/dispatcher"
	"github.com/JakeFAU/staticpub/internal/jobs"
	queueMemory "github.com/JakeFAU/staticpub/internal/queue/memory"
)

func TestServer_SubmitBuild_Site(t *testing.T) {
	t.Parallel()

	jobStore := newAPIFakeJobStore()
	q := queueMemory.NewQueue(10)
	dispatch := dispatcher.New(q, nil, nil)
	idGen := &fakeIDGen{ids: []string{"job-site"}}
	clock := &fakeClock{now: time.Unix(100, 0)}
	server := NewServer(jobStore, dispatch, idGen, clock, testConfig(), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/builds/", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "job-site")
	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-site", item.JobID)
	require.Equal(t, jobs.KindSite, item.Params.Kind)
	require.Equal(t, int64(100), item.Submitted)
	require.Equal(t, jobs.StatusQueued, jobStore.lastStatus("job-site"))
}

func TestServer_SubmitBuild_URLs(t *testing.T) {
	t.Parallel()

	q := queueMemory.NewQueue(10)
	server := NewServer(
		newAPIFakeJobStore(),
		dispatcher.New(q, nil, nil),
		&fakeIDGen{ids: []string{"job-urls"}},
		&fakeClock{now: time.Unix(50, 0)},
		testConfig(),
		zap.NewNop(),
	)

	body := `{"urls":["/about/","/news/"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/builds/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, jobs.KindURLs, item.Params.Kind)
	require.Equal(t, []string{"/about/", "/news/"}, item.Params.URLs)
}

func TestServer_SubmitBuild_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "invalid json", body: "{invalid", want: "invalid JSON"},
		{name: "urls kind without urls", body: `{"kind":"urls"}`, want: "urls required"},
		{name: "absolute url", body: `{"urls":["https://example.com/"]}`, want: "site-relative"},
		{name: "unknown kind", body: `{"kind":"everything"}`, want: "unknown build kind"},
		{name: "urls on error pages", body: `{"kind":"error_pages","urls":["/"]}`, want: "not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/v1/builds/", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			newTestServer().Handler().ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestServer_SubmitBuild_CreateFails(t *testing.T) {
	t.Parallel()

	jobStore := newAPIFakeJobStore()
	jobStore.createErr = errors.New("disk full")
	server := newTestServerWithStore(jobStore)

	req := httptest.NewRequest(http.MethodPost, "/v1/builds/", bytes.NewBufferString(`{"kind":"error_pages"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "disk full")
}

func TestServer_GetJobStatus_ReturnsJob(t *testing.T) {
	t.Parallel()

	jobStore := newAPIFakeJobStore()
	jobStore.jobs["job-status"] = jobs.Job{ID: "job-status", Status: jobs.StatusSucceeded}
	server := newTestServerWithStore(jobStore)

	req := httptest.NewRequest(http.MethodGet, "/v1/builds/job-status/status", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "succeeded")
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/builds/missing/status", nil)
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetJobResult_ReturnsPages(t *testing.T) {
	t.Parallel()

	jobStore := newAPIFakeJobStore()
	jobStore.jobs["job-result"] = jobs.Job{ID: "job-result", Status: jobs.StatusSucceeded}
	jobStore.pages["job-result"] = []jobs.Page{
		{URL: "/about/", Filename: "about/index.html", Name: "about/index.html", Created: true},
	}
	server := newTestServerWithStore(jobStore)

	req := httptest.NewRequest(http.MethodGet, "/v1/builds/job-result/result", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "about/index.html")
}

func TestServer_GetJobResult_StoreError(t *testing.T) {
	t.Parallel()

	jobStore := newAPIFakeJobStore()
	jobStore.jobs["job"] = jobs.Job{ID: "job"}
	jobStore.resultErr = errors.New("boom")
	server := newTestServerWithStore(jobStore)

	req := httptest.NewRequest(http.MethodGet, "/v1/builds/job/result", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_CancelJob_SetsStatusCanceled(t *testing.T) {
	t.Parallel()

	jobStore := newAPIFakeJobStore()
	jobStore.jobs["job-cancel"] = jobs.Job{ID: "job-cancel", Status: jobs.StatusRunning}
	tracker := jobs.NewTracker()
	ctx, done := tracker.Start(context.Background(), "job-cancel")
	defer done()
	server := NewServer(
		jobStore,
		dispatcher.New(queueMemory.NewQueue(1), nil, tracker),
		&fakeIDGen{},
		&fakeClock{now: time.Unix(100, 0)},
		testConfig(),
		zap.NewNop(),
	)

	req := httptest.NewRequest(http.MethodPost, "/v1/builds/job-cancel/cancel", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, jobs.StatusCanceled, jobStore.lastStatus("job-cancel"))
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestServer_CancelJob_AlreadyFinished(t *testing.T) {
	t.Parallel()

	jobStore := newAPIFakeJobStore()
	jobStore.jobs["job-done"] = jobs.Job{ID: "job-done", Status: jobs.StatusSucceeded}
	server := newTestServerWithStore(jobStore)

	req := httptest.NewRequest(http.MethodPost, "/v1/builds/job-done/cancel", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, jobs.StatusSucceeded, jobStore.lastStatus("job-done"))
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	jobStore := newAPIFakeJobStore()
	jobStore.jobs["job"] = jobs.Job{ID: "job", Status: jobs.StatusQueued}
	server := NewServer(
		jobStore,
		dispatcher.New(queueMemory.NewQueue(1), nil, nil),
		&fakeIDGen{},
		&fakeClock{now: time.Unix(100, 0)},
		cfg,
		zap.NewNop(),
	)

	req := httptest.NewRequest(http.MethodGet, "/v1/builds/job/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/builds/job/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "probes stay open")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "staticpub_http_requests_total")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer().Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "id-default", nil
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type apiJobStore struct {
	mu        sync.Mutex
	jobs      map[string]jobs.Job
	pages     map[string][]jobs.Page
	createErr error
	resultErr error
}

func newAPIFakeJobStore() *apiJobStore {
	return &apiJobStore{
		jobs:  make(map[string]jobs.Job),
		pages: make(map[string][]jobs.Page),
	}
}

func (s *apiJobStore) CreateJob(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *apiJobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status jobs.Status,
	errText string,
	counters jobs.Counters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[jobID]
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	s.jobs[jobID] = job
	return nil
}

func (s *apiJobStore) RecordResult(_ context.Context, jobID string, pages []jobs.Page, _ []jobs.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[jobID] = pages
	return nil
}

func (s *apiJobStore) GetJob(_ context.Context, jobID string) (jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return jobs.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return job, nil
}

func (s *apiJobStore) GetResult(_ context.Context, jobID string) (jobs.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultErr != nil {
		return jobs.Result{}, s.resultErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return jobs.Result{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return jobs.Result{Job: job, Pages: append([]jobs.Page{}, s.pages[jobID]...)}, nil
}

func (s *apiJobStore) lastStatus(jobID string) jobs.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID].Status
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Build:   config.BuildConfig{Concurrency: 1, Workers: 1},
		Logging: config.LoggingConfig{Development: true},
	}
}

func newTestServer() *Server {
	return newTestServerWithStore(newAPIFakeJobStore())
}

func newTestServerWithStore(jobStore jobs.Store) *Server {
	q := queueMemory.NewQueue(10)
	dispatch := dispatcher.New(q, nil, nil)
	return NewServer(jobStore, dispatch, &fakeIDGen{}, &fakeClock{now: time.Unix(100, 0)}, testConfig(), zap.NewNop())
}
