package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	tallyHttp "github.com/MrJamesThe3rd/tally/internal/http"
	"github.com/MrJamesThe3rd/tally/internal/http/auth"
	columnsHandler "github.com/MrJamesThe3rd/tally/internal/http/columns"
	importHandler "github.com/MrJamesThe3rd/tally/internal/http/importcsv"
	rulesHandler "github.com/MrJamesThe3rd/tally/internal/http/rules"
	tagsHandler "github.com/MrJamesThe3rd/tally/internal/http/tags"
	txHandler "github.com/MrJamesThe3rd/tally/internal/http/transaction"
	"github.com/MrJamesThe3rd/tally/internal/importer"
	"github.com/MrJamesThe3rd/tally/internal/importer/cgd"
	"github.com/MrJamesThe3rd/tally/internal/profile"
	"github.com/MrJamesThe3rd/tally/internal/rules"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
	"github.com/MrJamesThe3rd/tally/internal/transaction/memstore"
)

type fixture struct {
	router   http.Handler
	rulesRep *rules.MockRepository
	store    *memstore.Store
}

func newFixture(t *testing.T, opts tallyHttp.Options) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	rulesRep := rules.NewMockRepository(ctrl)
	store := memstore.New()

	reg, err := profile.NewRegistry(cgd.Profile())
	require.NoError(t, err)

	var (
		txSvc     = transaction.NewService(store, nil)
		rulesSvc  = rules.NewService(rulesRep, nil)
		importSvc = importer.NewService(txSvc, rulesSvc, reg, importer.Config{}, nil)
	)

	router := tallyHttp.New(opts,
		txHandler.NewHandler(txSvc),
		importHandler.NewHandler(importSvc, 1<<20),
		columnsHandler.NewHandler(importSvc),
		rulesHandler.NewHandler(rulesSvc),
		tagsHandler.NewHandler(txSvc),
	)

	return &fixture{router: router, rulesRep: rulesRep, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

type outcome struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
	Errors   []struct {
		Index int    `json:"index"`
		Kind  string `json:"kind"`
	} `json:"errors"`
}

var salaryBatch = map[string]any{
	"source_id": 1,
	"headers":   []string{"Date", "Description", "Amount", "Tags"},
	"rows": [][]string{
		{"2024-01-15", "SALARY PAYMENT", "3000", "Income, Work"},
		{"2024-01-16", "BOOKS", "-12.99", "leisure"},
	},
}

func TestHealth(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestImportRows(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	rec := f.do(t, http.MethodPost, "/api/v1/import/rows", salaryBatch)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	first := decode[outcome](t, rec)
	assert.Equal(t, 2, first.Imported)
	assert.Equal(t, 2, first.Total)

	rec = f.do(t, http.MethodPost, "/api/v1/import/rows", salaryBatch)
	require.Equal(t, http.StatusCreated, rec.Code)

	second := decode[outcome](t, rec)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 2, second.Skipped)
}

func TestImportRows_InvalidBatch(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	type testCase struct {
		name string
		body any
	}

	tests := []testCase{
		{name: "Missing source", body: map[string]any{"headers": []string{"Date"}, "rows": [][]string{}}},
		{name: "Missing rows", body: map[string]any{"source_id": 1, "headers": []string{"Date"}}},
		{name: "Unknown role in mapping", body: map[string]any{
			"source_id": 1, "headers": []string{"Date"}, "rows": [][]string{}, "mapping": map[string]int{"balance": 0},
		}},
		{name: "Mapping out of range", body: map[string]any{
			"source_id": 1, "headers": []string{"Date"}, "rows": [][]string{}, "mapping": map[string]int{"date": 3},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/import/rows", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestImportRows_RowErrorsStillSucceed(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	rec := f.do(t, http.MethodPost, "/api/v1/import/rows", map[string]any{
		"source_id": 1,
		"headers":   []string{"Date", "Description", "Amount"},
		"rows": [][]string{
			{"2024-01-15", "", "1"},
			{"2024-01-16", "OK", "1"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	out := decode[outcome](t, rec)
	assert.Equal(t, 1, out.Imported)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 0, out.Errors[0].Index)
	assert.Equal(t, "validation", out.Errors[0].Kind)
}

func TestImportFile(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("source_id", "2"))
	require.NoError(t, mw.WriteField("profile", "cgd"))
	require.NoError(t, mw.WriteField("apply_rules", "false"))

	part, err := mw.CreateFormFile("file", "movimentos.csv")
	require.NoError(t, err)

	_, err = part.Write([]byte("Data mov.;Descrição;Montante\n30-01-2026;TEST;-10,00\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[struct {
		Outcome outcome        `json:"outcome"`
		Mapping map[string]int `json:"mapping"`
		Headers []string       `json:"headers"`
	}](t, rec)

	assert.Equal(t, 1, res.Outcome.Imported)
	assert.Equal(t, map[string]int{"date": 0, "description": 1, "amount": 2}, res.Mapping)
	assert.Equal(t, 1, f.store.Len())
}

func TestImportFile_MissingSource(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "x.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("Date,Description,Amount\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/import/rows", salaryBatch).Code)

	batch := map[string]any{
		"source_id": 1,
		"headers":   []string{"Date", "Description", "Amount"},
		"rows": [][]string{
			{"2024-01-15", "SALARY PAYMENT", "3000.00"},
			{"2024-02-15", "SALARY PAYMENT", "3000.00"},
		},
	}

	rec := f.do(t, http.MethodPost, "/api/v1/import/preview", batch)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p := decode[struct {
		New        int `json:"new"`
		Duplicates int `json:"duplicates"`
	}](t, rec)

	assert.Equal(t, 1, p.New)
	assert.Equal(t, 1, p.Duplicates)
	assert.Equal(t, 2, f.store.Len())
}

func TestProfiles(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	rec := f.do(t, http.MethodGet, "/api/v1/import/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]struct {
		Name string `json:"name"`
	}](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "cgd", list[0].Name)
}

func TestColumns(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	type mappingResponse struct {
		Mapping map[string]int `json:"mapping"`
		Missing string         `json:"missing"`
	}

	headers := []string{"Date", "Description", "Amount", "Type", "Category"}

	rec := f.do(t, http.MethodPost, "/api/v1/columns/detect", map[string]any{"headers": headers})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[mappingResponse](t, rec)
	assert.Equal(t, 4, got.Mapping["source_category"])
	assert.Empty(t, got.Missing)

	rec = f.do(t, http.MethodPost, "/api/v1/columns/reassign", map[string]any{
		"headers": headers,
		"mapping": got.Mapping,
		"column":  2,
		"role":    "description",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got = decode[mappingResponse](t, rec)
	assert.Equal(t, 2, got.Mapping["description"])
	assert.NotContains(t, got.Mapping, "amount")
	assert.NotEmpty(t, got.Missing)

	rec = f.do(t, http.MethodPost, "/api/v1/columns/reassign", map[string]any{
		"headers": headers, "column": 9, "role": "date",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/columns/detect", map[string]any{"headers": headers, "profile": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRules(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})

	t.Run("Create", func(t *testing.T) {
		f.rulesRep.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, r *rules.Rule) error {
			r.ID = 7
			return nil
		})

		rec := f.do(t, http.MethodPost, "/api/v1/rules/category", map[string]any{
			"field": "description", "pattern": "^uber", "match_type": "regex", "target_id": 3, "priority": 1,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		got := decode[struct {
			ID     int64  `json:"id"`
			Kind   string `json:"kind"`
			Active bool   `json:"active"`
		}](t, rec)
		assert.Equal(t, int64(7), got.ID)
		assert.Equal(t, "category", got.Kind)
		assert.True(t, got.Active)
	})

	t.Run("Invalid pattern", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/rules/unit", map[string]any{
			"field": "description", "pattern": "(", "match_type": "regex", "target_id": 3,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("Unknown kind", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/rules/merchant", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("List", func(t *testing.T) {
		f.rulesRep.EXPECT().List(gomock.Any(), rules.KindUnit).Return([]rules.Rule{
			{ID: 1, Kind: rules.KindUnit, Field: rules.FieldSource, Pattern: "cgd", MatchType: rules.MatchExact, TargetID: 2, Active: true},
		}, nil)

		rec := f.do(t, http.MethodGet, "/api/v1/rules/unit", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]map[string]any](t, rec), 1)
	})

	t.Run("Toggle missing rule", func(t *testing.T) {
		f.rulesRep.EXPECT().SetActive(gomock.Any(), rules.KindCategory, int64(99), false).Return(rules.ErrNotFound)

		rec := f.do(t, http.MethodPatch, "/api/v1/rules/category/99/active", map[string]any{"active": false})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Reorder", func(t *testing.T) {
		f.rulesRep.EXPECT().Reorder(gomock.Any(), rules.KindCategory, []int64{3, 1, 2}).Return(nil)

		rec := f.do(t, http.MethodPut, "/api/v1/rules/category/order", map[string]any{"ids": []int64{3, 1, 2}})
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodPut, "/api/v1/rules/category/order", map[string]any{"ids": []int64{1, 1}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("Test pattern", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/rules/test", map[string]any{
			"rule":      map[string]any{"field": "description", "pattern": "uber", "match_type": "starts_with"},
			"candidate": map[string]any{"description": "UBER *TRIP"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, decode[struct {
			Matched bool `json:"matched"`
		}](t, rec).Matched)
	})

	t.Run("Suggest", func(t *testing.T) {
		f.rulesRep.EXPECT().ListActiveUnitRules(gomock.Any()).Return(nil, nil)
		f.rulesRep.EXPECT().ListActiveCategoryRules(gomock.Any()).Return([]rules.Rule{
			{ID: 1, Kind: rules.KindCategory, Field: rules.FieldDescription, Pattern: "uber", MatchType: rules.MatchContains, TargetID: 5, Active: true},
		}, nil)

		rec := f.do(t, http.MethodPost, "/api/v1/rules/suggest", map[string]any{"description": "Uber trip"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decode[rules.Suggestion](t, rec)
		assert.Nil(t, got.UnitID)
		require.NotNil(t, got.CategoryID)
		assert.Equal(t, int64(5), *got.CategoryID)
	})
}

func TestTransactions(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/import/rows", salaryBatch).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/transactions/?source_id=1&start_date=2024-01-16", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	type txResponse struct {
		ID          int64    `json:"id"`
		Description string   `json:"description"`
		Amount      string   `json:"amount"`
		Tags        []string `json:"tags"`
		Hash        string   `json:"hash"`
	}

	list := decode[[]txResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "BOOKS", list[0].Description)
	assert.Equal(t, "-12.99", list[0].Amount)

	rec = f.do(t, http.MethodGet, "/api/v1/transactions/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"income", "work"}, decode[txResponse](t, rec).Tags)

	rec = f.do(t, http.MethodGet, "/api/v1/transactions/404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/transactions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/transactions/duplicates", map[string]any{
		"hashes": []string{strings.ToUpper(list[0].Hash), "0000000000000000", "not-a-hash"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{list[0].Hash}, decode[struct {
		Existing []string `json:"existing"`
	}](t, rec).Existing)
}

func TestTags(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{})
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/import/rows", salaryBatch).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/tags/suggest?prefix=IN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"income"}, decode[[]string](t, rec))

	rec = f.do(t, http.MethodGet, "/api/v1/tags/suggest?prefix=zzz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{}, decode[[]string](t, rec))

	rec = f.do(t, http.MethodGet, "/api/v1/tags/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"income", "leisure", "work"}, decode[[]string](t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/tags/normalize", map[string]any{"tags": []string{"Business, Travel, , business"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "business,travel", decode[struct {
		Serialized string `json:"serialized"`
	}](t, rec).Serialized)
}

func TestAuth(t *testing.T) {
	secret := []byte("s3cret")
	f := newFixture(t, tallyHttp.Options{JWTSecret: secret, Issuer: "tally"})

	rec := f.do(t, http.MethodGet, "/api/v1/tags/", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodGet, "/healthz", nil).Code)

	token, err := auth.Issue(secret, "tally", "cli", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tags/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, tallyHttp.Options{AllowedOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tags/", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
