package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/examino/internal/bank"
	"github.com/p-n-ai/examino/internal/generator"
	"github.com/p-n-ai/examino/internal/ingest"
	"github.com/p-n-ai/examino/internal/mastery"
	"github.com/p-n-ai/examino/internal/platform/config"
	"github.com/p-n-ai/examino/internal/platform/metrics"
	"github.com/p-n-ai/examino/internal/store"
)

const seedBank = `{
  "EEE": [
    {"type": "mcq", "q": "Unit of resistance?", "opts": ["A. Volt", "B. Ohm", "C. Farad", "D. Henry"], "a": "B. Ohm", "topic": "Ohm's Law", "unit": "Unit 1", "diff": "easy", "source_type": "PDF_UPLOAD", "question_format": "MCQ"}
  ],
  "MES": [
    {"type": "mcq", "q": "Derivative of x^2?", "opts": ["A. x", "B. 2x", "C. x^2", "D. 2"], "a": "B. 2x", "topic": "Calculus", "unit": "Unit 2", "diff": "medium"},
    {"type": "mcq", "q": "", "a": "missing text"}
  ]
}
`

func plainDocument() string {
	var b strings.Builder
	for i := 1; i <= 36; i++ {
		fmt.Fprintf(&b, "Concept %d is a useful idea that appears in chapter %d of this course. ", i, i)
	}
	return strings.TrimSpace(b.String())
}

func newTestServer(t *testing.T, bankJSON string) *server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "question_bank.json")
	if bankJSON != "" {
		if err := os.WriteFile(path, []byte(bankJSON), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	syncer, err := bank.New(bank.Config{Path: path, WriteTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("bank.New() error = %v", err)
	}
	st := store.NewMemoryStore()
	pipeline, err := ingest.New(ingest.Config{
		Runner:   generator.NewRunner(generator.RunnerConfig{}),
		Bank:     syncer,
		Store:    st,
		MinWords: 30,
	})
	if err != nil {
		t.Fatalf("ingest.New() error = %v", err)
	}
	return &server{
		store:          st,
		bank:           syncer,
		ingest:         pipeline,
		mastery:        mastery.NewScheduler(st, nil),
		metrics:        metrics.New(),
		maxUploadBytes: 1 << 20,
	}
}

func serve(h http.Handler, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	mux := newTestServer(t, "").routes()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}` + "\n",
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(mux, http.MethodGet, tt.path, nil, "")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestIngestAttemptFlow(t *testing.T) {
	s := newTestServer(t, "")
	mux := s.routes()

	body, ct := upload(t, "notes.txt", plainDocument(), map[string]string{"subject": "EEE", "topic": "Diodes"})
	rec := serve(mux, http.MethodPost, "/v1/ingest", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rep := decode[ingest.Report](t, rec)
	if rep.Subject != "EEE" || rep.Inserted != 3 || rep.SkippedDuplicates != 0 || rep.TotalInSubject != 3 {
		t.Errorf("report = %+v", rep)
	}

	rec = serve(mux, http.MethodGet, "/v1/questions?subject=EEE&topic=Diodes", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decode[struct {
		Questions []store.Question `json:"questions"`
		Count     int              `json:"count"`
	}](t, rec)
	if list.Count != 3 || len(list.Questions) != 3 {
		t.Fatalf("listed %d questions, want 3", list.Count)
	}
	id := list.Questions[0].ID

	rec = serve(mux, http.MethodGet, "/v1/questions/"+id, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	wantDifficulty := []string{"medium", "medium", "hard"}
	for i, want := range wantDifficulty {
		rec = serve(mux, http.MethodPost, "/v1/attempts",
			bytes.NewBufferString(`{"question_id":"`+id+`","user_answer":" a. true "}`), "application/json")
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d status = %d, body = %s", i+1, rec.Code, rec.Body.String())
		}
		res := decode[attemptResponse](t, rec)
		if !res.Correct {
			t.Errorf("attempt %d: correct = false", i+1)
		}
		if res.CorrectAnswer != "A. True" {
			t.Errorf("attempt %d: correct_answer = %q", i+1, res.CorrectAnswer)
		}
		if !strings.Contains(res.Explanation, "Review 'Diodes' in EEE") {
			t.Errorf("attempt %d: explanation = %q", i+1, res.Explanation)
		}
		if string(res.NewDifficulty) != want {
			t.Errorf("attempt %d: new_difficulty = %q, want %q", i+1, res.NewDifficulty, want)
		}
	}

	rec = serve(mux, http.MethodGet, "/v1/recommendation?topic=Diodes&subject=EEE", nil, "")
	if got := decode[map[string]string](t, rec)["difficulty"]; got != "hard" {
		t.Errorf("recommendation = %q, want hard", got)
	}

	rec = serve(mux, http.MethodGet, "/v1/stats", nil, "")
	stats := decode[struct {
		TotalQuestions  int     `json:"total_questions"`
		TotalAttempts   int     `json:"total_attempts"`
		OverallAccuracy float64 `json:"overall_accuracy"`
	}](t, rec)
	if stats.TotalQuestions != 3 || stats.TotalAttempts != 3 || stats.OverallAccuracy != 100 {
		t.Errorf("stats = %+v", stats)
	}

	rec = serve(mux, http.MethodGet, "/v1/recent?limit=2", nil, "")
	recent := decode[struct {
		Attempts []store.Attempt `json:"attempts"`
	}](t, rec)
	if len(recent.Attempts) != 2 {
		t.Errorf("recent attempts = %d, want 2", len(recent.Attempts))
	}

	rec = serve(mux, http.MethodGet, "/v1/subjects", nil, "")
	if got := decode[map[string][]string](t, rec)["subjects"]; !slices.Equal(got, []string{"EEE"}) {
		t.Errorf("subjects = %v, want [EEE]", got)
	}

	rec = serve(mux, http.MethodGet, "/v1/bank/stats", nil, "")
	bs := decode[bank.Stats](t, rec)
	if bs.Total != 3 || bs.Subjects["EEE"] != 3 {
		t.Errorf("bank stats = %+v", bs)
	}
}

func TestIngest_Errors(t *testing.T) {
	s := newTestServer(t, "")
	s.maxUploadBytes = 4 << 10
	mux := s.routes()

	tests := []struct {
		name       string
		filename   string
		content    string
		fields     map[string]string
		wantStatus int
	}{
		{"missing file", "", "", nil, http.StatusBadRequest},
		{"too short", "notes.txt", "Voltage is potential difference.", nil, http.StatusBadRequest},
		{"bad question count", "notes.txt", plainDocument(), map[string]string{"questions_per_section": "lots"}, http.StatusBadRequest},
		{"too large", "notes.txt", strings.Repeat("x", 8<<10), nil, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := upload(t, tt.filename, tt.content, tt.fields)
			rec := serve(mux, http.MethodPost, "/v1/ingest", body, ct)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	if _, err := os.Stat(s.bank.Path()); !os.IsNotExist(err) {
		t.Errorf("bank file should not exist after rejected uploads, stat error = %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	mux := newTestServer(t, "").routes()

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"attempt invalid json", http.MethodPost, "/v1/attempts", "{", http.StatusBadRequest},
		{"attempt without id", http.MethodPost, "/v1/attempts", `{"user_answer":"A"}`, http.StatusBadRequest},
		{"attempt unknown question", http.MethodPost, "/v1/attempts", `{"question_id":"nope","user_answer":"A"}`, http.StatusNotFound},
		{"recommendation without subject", http.MethodGet, "/v1/recommendation?topic=Diodes", "", http.StatusBadRequest},
		{"unknown question", http.MethodGet, "/v1/questions/nope", "", http.StatusNotFound},
		{"bad difficulty filter", http.MethodGet, "/v1/questions?difficulty=brutal", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/v1/questions?limit=-1", "", http.StatusBadRequest},
		{"bad recent limit", http.MethodGet, "/v1/recent?limit=x", "", http.StatusBadRequest},
		{"export unknown subject", http.MethodGet, "/v1/bank/export?subject=Nope", "", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/v1/ingest", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(mux, tt.method, tt.target, bytes.NewBufferString(tt.body), "application/json")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRecommendation_UnknownTopic(t *testing.T) {
	mux := newTestServer(t, "").routes()

	rec := serve(mux, http.MethodGet, "/v1/recommendation?topic=Diodes&subject=EEE", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["difficulty"]; got != "medium" {
		t.Errorf("difficulty = %q, want medium", got)
	}
}

func TestBankExport(t *testing.T) {
	mux := newTestServer(t, seedBank).routes()

	rec := serve(mux, http.MethodGet, "/v1/bank/export?subject=MES", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	if sheets := f.GetSheetList(); !slices.Equal(sheets, []string{"MES"}) {
		t.Errorf("sheets = %v, want [MES]", sheets)
	}
	rows, err := f.GetRows("MES")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want header + 2", len(rows))
	}
}

func TestSeedStore(t *testing.T) {
	s := newTestServer(t, seedBank)

	n, err := seedStore(t.Context(), s.store, s.bank)
	if err != nil {
		t.Fatalf("seedStore() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("seeded %d questions, want 2", n)
	}

	qs, err := s.store.ListQuestions(t.Context(), store.QuestionFilter{Subject: "EEE"})
	if err != nil {
		t.Fatal(err)
	}
	if len(qs) != 1 {
		t.Fatalf("EEE questions = %d, want 1", len(qs))
	}
	q := qs[0]
	if q.ID == "" || q.Answer != "B. Ohm" || q.Topic != "Ohm's Law" || q.SourceLabel != "question_bank.json" {
		t.Errorf("seeded question = %+v", q.Candidate)
	}

	again, err := seedStore(t.Context(), s.store, s.bank)
	if err != nil {
		t.Fatalf("second seedStore() error = %v", err)
	}
	if again != 0 {
		t.Errorf("second seed inserted %d, want 0", again)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	h := s.metrics.Middleware(s.routes())

	serve(h, http.MethodGet, "/healthz", nil, "")
	rec := serve(h, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `examino_http_requests_total{endpoint="GET /healthz",method="GET",status="200"} 1`) {
		t.Errorf("metrics output missing healthz request counter:\n%s", rec.Body.String())
	}
}

func TestNewAIRouter(t *testing.T) {
	router, err := newAIRouter(config.AIConfig{
		Anthropic:  config.AnthropicConfig{APIKey: "sk-ant-test"},
		Google:     config.GoogleConfig{APIKey: "AIza-test"},
		OpenRouter: config.OpenRouterConfig{APIKey: "sk-or-test"},
		Ollama:     config.OllamaConfig{Enabled: true, URL: "http://localhost:11434"},
	})
	if err != nil {
		t.Fatalf("newAIRouter() error = %v", err)
	}
	want := []string{"anthropic", "google", "openrouter", "ollama"}
	if got := router.Providers(); !slices.Equal(got, want) {
		t.Errorf("Providers() = %v, want %v", got, want)
	}

	empty, err := newAIRouter(config.AIConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if empty.HasProvider() {
		t.Error("router without keys should have no provider")
	}
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name string
		sc   config.StoreConfig
	}{
		{"memory", config.StoreConfig{Driver: "memory"}},
		{"sqlite", config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "examino.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, closeStore, err := openStore(t.Context(), tt.sc)
			if err != nil {
				t.Fatalf("openStore() error = %v", err)
			}
			defer closeStore()
			if err := st.Ping(t.Context()); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		})
	}
}
