package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vinnividivicci/openingbim-cicd/internal/events"
	"github.com/vinnividivicci/openingbim-cicd/internal/jobs"
	"github.com/vinnividivicci/openingbim-cicd/internal/log"
	"github.com/vinnividivicci/openingbim-cicd/internal/results"
	"github.com/vinnividivicci/openingbim-cicd/internal/store"
)

type fakeConversion struct {
	lastData []byte
	lastName string
}

func (f *fakeConversion) Convert(_ context.Context, raw []byte, fileName string) string {
	f.lastData = raw
	f.lastName = fileName
	return "conv-job-1"
}

type fakeValidation struct {
	lastModel []byte
	lastSpec  []byte
}

func (f *fakeValidation) Validate(_ context.Context, model, ruleSpec []byte, _ string) string {
	f.lastModel = model
	f.lastSpec = ruleSpec
	return "val-job-1"
}

type fakeArtifacts struct {
	files  map[string][]byte
	metas  map[string]store.Metadata
	cached map[string][]byte
}

func (f *fakeArtifacts) GetFile(id string) ([]byte, store.Metadata, error) {
	data, ok := f.files[id]
	if !ok {
		return nil, store.Metadata{}, store.ErrNotFound
	}
	if meta, ok := f.metas[id]; ok {
		return data, meta, nil
	}
	return data, store.Metadata{ID: id, OriginalName: id + ".bin", MimeKind: "application/octet-stream"}, nil
}

func (f *fakeArtifacts) GetCachedIfc(validationJobID string) ([]byte, store.Metadata, error) {
	data, ok := f.cached[validationJobID]
	if !ok {
		return nil, store.Metadata{}, store.ErrNotFound
	}
	return data, store.Metadata{OriginalName: "cached.ifc"}, nil
}

func newTestServer(t *testing.T, apiKey string) (*Server, *fakeConversion, *fakeValidation, *fakeArtifacts, *jobs.Ledger) {
	t.Helper()
	conv := &fakeConversion{}
	val := &fakeValidation{}
	artifacts := &fakeArtifacts{
		files:  map[string][]byte{},
		metas:  map[string]store.Metadata{},
		cached: map[string][]byte{},
	}
	ledger := jobs.NewLedger(nil)
	s := New(Config{Listen: "127.0.0.1:0", APIKey: apiKey},
		conv, val, ledger, artifacts, events.NewHub(8), log.WithComponent("api-test"))
	return s, conv, val, artifacts, ledger
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, data := range files {
		fw, err := mw.CreateFormFile(field, field+".bin")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHealthzUnauthenticated(t *testing.T) {
	t.Parallel()

	s, _, _, _, _ := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthzResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status field = %q", resp.Status)
	}
}

func TestAuthRequiredOnAPI(t *testing.T) {
	t.Parallel()

	s, _, _, _, ledger := newTestServer(t, "secret")
	id := ledger.Create()
	h := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong key = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with key = %d, want 200", rec.Code)
	}
}

func TestConvertUpload(t *testing.T) {
	t.Parallel()

	s, conv, _, _, _ := newTestServer(t, "")
	body, contentType := multipartBody(t, map[string][]byte{"ifcFile": []byte("ifc data")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/fragments", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp AcceptedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.JobID != "conv-job-1" {
		t.Fatalf("jobId = %q", resp.JobID)
	}
	if string(conv.lastData) != "ifc data" {
		t.Fatalf("pipeline received %q", conv.lastData)
	}
}

func TestConvertUploadMissingFile(t *testing.T) {
	t.Parallel()

	s, _, _, _, _ := newTestServer(t, "")
	body, contentType := multipartBody(t, map[string][]byte{"wrongField": []byte("x")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/fragments", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIdsCheckUpload(t *testing.T) {
	t.Parallel()

	s, _, val, _, _ := newTestServer(t, "")
	body, contentType := multipartBody(t, map[string][]byte{
		"ifcFile": []byte("model"),
		"idsFile": []byte("<ids/>"),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ids/check", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if string(val.lastModel) != "model" || string(val.lastSpec) != "<ids/>" {
		t.Fatal("pipeline did not receive both files")
	}
}

func TestConvertFromCachedJob(t *testing.T) {
	t.Parallel()

	s, conv, _, artifacts, _ := newTestServer(t, "")
	artifacts.cached["val-job-1"] = []byte("cached model")
	h := s.routes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/fragments/from-job/val-job-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if string(conv.lastData) != "cached model" || conv.lastName != "cached.ifc" {
		t.Fatalf("conversion received %q / %q", conv.lastData, conv.lastName)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/fragments/from-job/unknown", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status for unknown job = %d, want 404", rec.Code)
	}
}

func TestDownloadArtifact(t *testing.T) {
	t.Parallel()

	s, _, _, artifacts, _ := newTestServer(t, "")
	artifacts.files["f1"] = []byte("fragment bytes")
	h := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fragments/f1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data, _ := io.ReadAll(rec.Body)
	if string(data) != "fragment bytes" {
		t.Fatalf("body = %q", data)
	}
	if rec.Header().Get("Content-Disposition") == "" {
		t.Fatal("missing Content-Disposition header")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/fragments/missing", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status for missing file = %d, want 404", rec.Code)
	}
}

func TestDownloadResultExportFormats(t *testing.T) {
	t.Parallel()

	s, _, _, artifacts, _ := newTestServer(t, "")

	doc := results.NewDocument([]results.ValidationResult{{
		SpecificationID:   "s1",
		SpecificationName: "Wall checks",
		ModelName:         "office.ifc",
		Requirements: []results.Requirement{{
			ID:          "r1",
			Name:        "FireRating present",
			Status:      results.StatusFailed,
			PassedCount: 2,
			FailedCount: 1,
			FailedElements: []results.FailedElement{
				{ElementID: "101", ElementType: "IfcWall", Reason: "missing property"},
			},
		}},
	}}, "office.ifc", "job-1", "ifctester")
	docBytes, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	artifacts.files["r1"] = docBytes
	artifacts.metas["r1"] = store.Metadata{
		ID:           "r1",
		OriginalName: "office.ifc.validation.json",
		MimeKind:     "application/json",
		Category:     store.CategoryResults,
	}
	h := s.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ids/results/r1?format=csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("csv Content-Type = %q", ct)
	}
	csvBody := rec.Body.String()
	if !strings.Contains(csvBody, "Specification,Model,Requirement") ||
		!strings.Contains(csvBody, "Wall checks,office.ifc,FireRating present,failed,1,2,1") {
		t.Fatalf("csv body = %q", csvBody)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ids/results/r1?format=json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("json status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var exported []results.ValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &exported); err != nil {
		t.Fatalf("unmarshal json export: %v", err)
	}
	if len(exported) != 1 || exported[0].SpecificationName != "Wall checks" {
		t.Fatalf("exported = %+v", exported)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ids/results/r1?format=xml", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status for unknown format = %d, want 400", rec.Code)
	}
}

func TestDownloadExportRejectsNonResultFiles(t *testing.T) {
	t.Parallel()

	s, _, _, artifacts, _ := newTestServer(t, "")
	artifacts.files["f1"] = []byte("fragment bytes")

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fragments/f1?format=csv", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetJobStatusFields(t *testing.T) {
	t.Parallel()

	s, _, _, _, ledger := newTestServer(t, "")
	h := s.routes()

	id := ledger.Create()
	ledger.SetProgress(id, 42)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp JobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != jobs.StatusInProgress || resp.Progress != 42 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Result != nil || resp.Error != nil {
		t.Fatal("in-progress job must not expose result or error")
	}

	ledger.Fail(id, jobs.ErrorKindInput, "bad spec")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != jobs.StatusFailed || resp.Error == nil || resp.Error.Reason != "bad spec" {
		t.Fatalf("resp = %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/no-such-job", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status for unknown job = %d, want 404", rec.Code)
	}
}
