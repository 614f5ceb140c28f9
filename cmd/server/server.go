package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/examino/internal/bank"
	"github.com/p-n-ai/examino/internal/ingest"
	"github.com/p-n-ai/examino/internal/mastery"
	"github.com/p-n-ai/examino/internal/platform/cache"
	"github.com/p-n-ai/examino/internal/platform/metrics"
	"github.com/p-n-ai/examino/internal/question"
	"github.com/p-n-ai/examino/internal/store"
)

const (
	bankStatsKey = "bank:stats"
	bankStatsTTL = 5 * time.Minute
	// multipartMemory is how much of an upload is buffered in memory
	// before spilling to temp files.
	multipartMemory = 8 << 20
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type server struct {
	store          store.Store
	bank           *bank.Synchronizer
	ingest         *ingest.Pipeline
	mastery        *mastery.Scheduler
	cache          *cache.Cache // nil when caching is disabled
	metrics        *metrics.Metrics
	maxUploadBytes int64
}

// routes creates the HTTP router.
func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /v1/ingest", s.handleIngest)
	mux.HandleFunc("POST /v1/attempts", s.handleAttempt)
	mux.HandleFunc("GET /v1/recommendation", s.handleRecommendation)
	mux.HandleFunc("GET /v1/questions", s.handleListQuestions)
	mux.HandleFunc("GET /v1/questions/{id}", s.handleGetQuestion)
	mux.HandleFunc("GET /v1/subjects", s.handleSubjects)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/recent", s.handleRecent)
	mux.HandleFunc("GET /v1/bank/stats", s.handleBankStats)
	mux.HandleFunc("GET /v1/bank/export", s.handleBankExport)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondStoreError maps not-found errors to 404 and everything else to 500.
func respondStoreError(w http.ResponseWriter, err error, entity string) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, entity+" not found")
		return
	}
	slog.Error("request failed", "entity", entity, "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		slog.Warn("store not ready", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "store"})
		return
	}
	if s.cache != nil {
		if err := s.cache.HealthCheck(r.Context()); err != nil {
			slog.Warn("cache not ready", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "cache"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		respondError(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	req := ingest.Request{
		Filename: hdr.Filename,
		Data:     data,
		Subject:  r.FormValue("subject"),
		Unit:     r.FormValue("unit"),
		Topic:    r.FormValue("topic"),
	}
	if v := r.FormValue("questions_per_section"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "questions_per_section must be a positive integer")
			return
		}
		req.QuestionsPerSection = n
	}

	rep, err := s.ingest.Ingest(r.Context(), req)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("ingestion failed", "filename", hdr.Filename, "error", err)
		respondJSON(w, http.StatusInternalServerError, struct {
			Error string `json:"error"`
			ingest.Report
		}{Error: "ingestion failed", Report: rep})
		return
	}
	s.invalidateBankStats(r)
	respondJSON(w, http.StatusOK, rep)
}

type attemptRequest struct {
	QuestionID string `json:"question_id"`
	UserAnswer string `json:"user_answer"`
}

type attemptResponse struct {
	Correct       bool                `json:"correct"`
	CorrectAnswer string              `json:"correct_answer"`
	Explanation   string              `json:"explanation"`
	NewDifficulty question.Difficulty `json:"new_difficulty"`
}

func (s *server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.QuestionID == "" {
		respondError(w, http.StatusBadRequest, "question_id is required")
		return
	}

	q, err := s.store.GetQuestion(r.Context(), req.QuestionID)
	if err != nil {
		respondStoreError(w, err, "question")
		return
	}

	correct := question.CheckAnswer(req.UserAnswer, q.Answer)
	res, err := s.mastery.RecordOutcome(r.Context(), mastery.Outcome{
		QuestionID: q.ID,
		UserAnswer: req.UserAnswer,
		Correct:    correct,
		Topic:      q.Topic,
		Subject:    q.Subject,
		Difficulty: q.Difficulty,
	})
	if err != nil {
		respondStoreError(w, err, "attempt")
		return
	}

	respondJSON(w, http.StatusOK, attemptResponse{
		Correct:       correct,
		CorrectAnswer: q.Answer,
		Explanation:   question.Explanation(q.Type, q.Answer, q.Topic, q.Subject),
		NewDifficulty: res.Recommendation,
	})
}

func (s *server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if topic == "" || subject == "" {
		respondError(w, http.StatusBadRequest, "topic and subject are required")
		return
	}

	d, err := s.mastery.RecommendedDifficulty(r.Context(), topic, subject)
	if err != nil {
		respondStoreError(w, err, "topic")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"topic":      topic,
		"subject":    subject,
		"difficulty": string(d),
	})
}

func (s *server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.QuestionFilter{
		Subject:    q.Get("subject"),
		Unit:       q.Get("unit"),
		Topic:      q.Get("topic"),
		SourceType: q.Get("source"),
	}
	if v := q.Get("difficulty"); v != "" {
		d, ok := question.ParseDifficulty(v)
		if !ok {
			respondError(w, http.StatusBadRequest, "difficulty must be easy, medium or hard")
			return
		}
		f.Difficulty = string(d)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	qs, err := s.store.ListQuestions(r.Context(), f)
	if err != nil {
		respondStoreError(w, err, "questions")
		return
	}
	if qs == nil {
		qs = []store.Question{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"questions": qs, "count": len(qs)})
}

func (s *server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.GetQuestion(r.Context(), r.PathValue("id"))
	if err != nil {
		respondStoreError(w, err, "question")
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (s *server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.store.Subjects(r.Context())
	if err != nil {
		respondStoreError(w, err, "subjects")
		return
	}
	if subjects == nil {
		subjects = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"subjects": subjects})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	sum, err := s.mastery.Summary(r.Context())
	if err != nil {
		respondStoreError(w, err, "stats")
		return
	}
	n, err := s.store.CountQuestions(r.Context())
	if err != nil {
		respondStoreError(w, err, "stats")
		return
	}
	respondJSON(w, http.StatusOK, struct {
		TotalQuestions int `json:"total_questions"`
		mastery.Summary
	}{TotalQuestions: n, Summary: sum})
}

func (s *server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	attempts, err := s.store.RecentAttempts(r.Context(), limit)
	if err != nil {
		respondStoreError(w, err, "attempts")
		return
	}
	if attempts == nil {
		attempts = []store.Attempt{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (s *server) handleBankStats(w http.ResponseWriter, r *http.Request) {
	var stats bank.Stats
	if s.cache != nil {
		err := s.cache.GetJSON(r.Context(), bankStatsKey, &stats)
		if err == nil {
			respondJSON(w, http.StatusOK, stats)
			return
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("bank stats cache read failed", "error", err)
		}
	}

	stats, err := s.bank.Stats(r.Context())
	if err != nil {
		slog.Error("reading bank stats failed", "error", err)
		respondError(w, http.StatusInternalServerError, "reading question bank failed")
		return
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(r.Context(), bankStatsKey, stats, bankStatsTTL); err != nil {
			slog.Warn("bank stats cache write failed", "error", err)
		}
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *server) invalidateBankStats(r *http.Request) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(r.Context(), bankStatsKey); err != nil {
		slog.Warn("bank stats cache invalidation failed", "error", err)
	}
}

func (s *server) handleBankExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.bank.Load(r.Context())
	if err != nil {
		slog.Error("loading bank for export failed", "error", err)
		respondError(w, http.StatusInternalServerError, "reading question bank failed")
		return
	}

	var subjects []string
	if subject := r.URL.Query().Get("subject"); subject != "" {
		if !slices.Contains(doc.Subjects(), subject) {
			respondError(w, http.StatusNotFound, "subject not found")
			return
		}
		subjects = append(subjects, subject)
	}

	var buf bytes.Buffer
	if err := bank.ExportXLSX(&buf, doc, subjects...); err != nil {
		slog.Error("exporting bank failed", "error", err)
		respondError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="question_bank.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write export", "error", err)
	}
}
