package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/internal/ingestion"
	"github.com/family-profiler/backend/internal/middleware/validation"
	"github.com/family-profiler/backend/internal/pipeline"
	"github.com/family-profiler/backend/internal/storage/models"
	"github.com/family-profiler/backend/internal/storage/sqlite"
	"github.com/family-profiler/backend/pkg/config"
)

type memoryStore struct {
	profiles []*domain.FamilyProfile
	err      error
}

func (m *memoryStore) AppendProfile(_ context.Context, p *domain.FamilyProfile) error {
	m.profiles = append(m.profiles, p)
	return nil
}

func (m *memoryStore) GetProfile(_ context.Context, id string) (*domain.FamilyProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := len(m.profiles) - 1; i >= 0; i-- {
		if m.profiles[i].ID == id {
			return m.profiles[i], nil
		}
	}
	return nil, sqlite.ErrNotFound
}

func (m *memoryStore) ListProfiles(_ context.Context, limit, offset int) ([]models.ProfileSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []models.ProfileSummary{}
	for i := len(m.profiles) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		p := m.profiles[i]
		out = append(out, models.ProfileSummary{
			Seq:                 int64(i + 1),
			ProfileID:           p.ID,
			FamilyName:          p.FamilyName,
			MemberCount:         len(p.Members),
			TotalMonthlyPremium: p.TotalMonthlyPremium,
		})
	}
	return out, nil
}

func (m *memoryStore) Stats(context.Context) (models.StoreStats, error) {
	if m.err != nil {
		return models.StoreStats{}, m.err
	}
	return models.StoreStats{Profiles: len(m.profiles)}, nil
}

type failingProcessor struct{ err error }

func (f failingProcessor) ProcessBatch(context.Context, []pipeline.Item) (*domain.FamilyProfile, error) {
	return nil, f.err
}

func workbook(t *testing.T, policies ...[2]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]string{
		{"Policy report"},
		{"Generated", "05.08.25"},
		{"Agent", "Sheli"},
		{"Holder", "-"},
		{"Branch", "-"},
		{"id", "main branch", "sub branch", "company", "plan", "start", "end", "premium"},
	}
	for i, p := range policies {
		rows = append(rows, []string{string(rune('A'+i)) + "-1", p[0], "", "Harel", "plan", "2020", "2030", p[1]})
	}
	for i, row := range rows {
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", axis, &values))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

type upload struct {
	name    string
	content []byte
}

func uploadRequest(t *testing.T, files []upload, hints string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	if hints != "" {
		require.NoError(t, w.WriteField("hints", hints))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/v1/families/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func newTestApp(processor BatchProcessor, store *memoryStore) *fiber.App {
	decimal.MarshalJSONWithoutQuotes = true

	app := fiber.New()
	families := NewFamilyHandler(processor, store, 1<<20)
	status := NewStatusHandler(store, nil, map[string]bool{"narrative": false})

	api := app.Group("/api/v1")
	api.Post("/families/upload", validation.UploadMiddleware(validation.Config{}), families.Upload)
	api.Get("/families", families.List)
	api.Get("/families/:id", families.Get)
	api.Get("/status", status.Status)
	api.Get("/health", status.Health)
	return app
}

func realProcessor(store *memoryStore) *ingestion.Processor {
	fixed := time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC)
	orch := pipeline.NewOrchestrator(config.Default(), pipeline.WithClock(func() time.Time { return fixed }))
	return ingestion.NewProcessor(orch, store)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

type memberJSON struct {
	Age int `json:"age"`
}

type failureJSON struct {
	Reference string `json:"reference"`
}

func TestUpload_BuildsProfile(t *testing.T) {
	store := &memoryStore{}
	app := newTestApp(realProcessor(store), store)

	req := uploadRequest(t, []upload{
		{"avi.xlsx", workbook(t, [2]string{"חיים", "120.50"}, [2]string{"בריאות", "80"})},
		{"noa.xlsx", workbook(t, [2]string{"בריאות", "40"})},
		{"broken.xlsx", []byte("not a workbook")},
	}, `{"avi.xlsx": {"age": 44, "relationship": "father", "total_value": 800000},
	     "noa.xlsx": {"age": 9, "relationship": "daughter"}}`)

	code, body := do(t, app, req)
	require.Equal(t, fiber.StatusCreated, code, string(body))

	var got struct {
		ID                  string        `json:"id"`
		TotalPolicies       int           `json:"total_policies"`
		TotalMonthlyPremium json.Number   `json:"total_monthly_premium"`
		Members             []memberJSON  `json:"family_members"`
		FilesNotProcessed   []failureJSON `json:"files_not_processed"`
		RawAnalysis         string        `json:"raw_analysis"`
	}
	require.NoError(t, json.Unmarshal(body, &got))

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 3, got.TotalPolicies)
	assert.Equal(t, "240.5", got.TotalMonthlyPremium.String())
	require.Len(t, got.Members, 2)
	assert.Equal(t, 44, got.Members[0].Age)
	require.Len(t, got.FilesNotProcessed, 1)
	assert.Equal(t, "broken.xlsx", got.FilesNotProcessed[0].Reference)
	assert.NotEmpty(t, got.RawAnalysis)
	assert.Len(t, store.profiles, 1)
}

func TestUpload_NoUsableData(t *testing.T) {
	store := &memoryStore{}
	app := newTestApp(realProcessor(store), store)

	req := uploadRequest(t, []upload{{"empty.xlsx", workbook(t)}}, "")

	code, body := do(t, app, req)
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
	assert.Contains(t, string(body), "no usable data in this submission")
	assert.Empty(t, store.profiles)
}

func TestUpload_InternalError(t *testing.T) {
	app := newTestApp(failingProcessor{err: errors.New("failed to store profile: disk full")}, &memoryStore{})

	req := uploadRequest(t, []upload{{"a.xlsx", []byte("x")}}, "")

	code, body := do(t, app, req)
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.NotContains(t, string(body), "disk full")
}

func TestListAndGet(t *testing.T) {
	store := &memoryStore{}
	app := newTestApp(realProcessor(store), store)

	code, _ := do(t, app, uploadRequest(t, []upload{{"avi.xlsx", workbook(t, [2]string{"life", "10"})}}, ""))
	require.Equal(t, fiber.StatusCreated, code)
	id := store.profiles[0].ID

	code, body := do(t, app, httptest.NewRequest("GET", "/api/v1/families?limit=500", nil))
	require.Equal(t, fiber.StatusOK, code)
	var list struct {
		Families []models.ProfileSummary `json:"families"`
		Limit    int                     `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, defaultPageSize, list.Limit)
	require.Len(t, list.Families, 1)
	assert.Equal(t, id, list.Families[0].ProfileID)

	code, body = do(t, app, httptest.NewRequest("GET", "/api/v1/families/"+id, nil))
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), `"id":"`+id+`"`)

	code, _ = do(t, app, httptest.NewRequest("GET", "/api/v1/families/missing", nil))
	assert.Equal(t, fiber.StatusNotFound, code)
}

func TestStoreErrors(t *testing.T) {
	store := &memoryStore{err: errors.New("database is closed")}
	app := newTestApp(failingProcessor{}, store)

	code, _ := do(t, app, httptest.NewRequest("GET", "/api/v1/families", nil))
	assert.Equal(t, fiber.StatusInternalServerError, code)

	code, _ = do(t, app, httptest.NewRequest("GET", "/api/v1/families/x", nil))
	assert.Equal(t, fiber.StatusInternalServerError, code)

	code, _ = do(t, app, httptest.NewRequest("GET", "/api/v1/status", nil))
	assert.Equal(t, fiber.StatusInternalServerError, code)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthAndStatus(t *testing.T) {
	store := &memoryStore{}
	app := newTestApp(failingProcessor{}, store)

	code, body := do(t, app, httptest.NewRequest("GET", "/api/v1/health", nil))
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), `"status":"healthy"`)

	code, body = do(t, app, httptest.NewRequest("GET", "/api/v1/status", nil))
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), `"narrative":false`)

	unhealthy := fiber.New()
	unhealthy.Get("/health", NewStatusHandler(store, pinger{err: errors.New("closed")}, nil).Health)
	code, _ = do(t, unhealthy, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
}

func TestSplitIntoWords(t *testing.T) {
	assert.Equal(t, []string{"Hello", "there", "\n", "next", "line"}, splitIntoWords("Hello  there\nnext line"))
	assert.Empty(t, splitIntoWords(""))
}
