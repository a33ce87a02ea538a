package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/llm"
	"lemonhealth.app/backend/internal/storage"
	"lemonhealth.app/backend/internal/store"
)

const (
	MaxDocumentBytes   = 10 << 20
	maxAnalysisChars   = 12000
	maxDocumentTags    = 5
	documentQueueDepth = 64
)

type analysisJob struct {
	documentID int64
	filename   string
	text       string
}

// DocumentService stores uploads and analyses text documents on a bounded
// pool of background workers.
type DocumentService struct {
	store    *store.Store
	uploader storage.Uploader
	llm      llm.Completer
	logger   *zap.Logger
	workers  int

	jobs chan analysisJob
	wg   sync.WaitGroup
	once sync.Once
}

func NewDocumentService(db *store.Store, uploader storage.Uploader, completer llm.Completer, workers int, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 2
	}
	return &DocumentService{
		store:    db,
		uploader: uploader,
		llm:      completer,
		logger:   logger,
		workers:  workers,
		jobs:     make(chan analysisJob, documentQueueDepth),
	}
}

// Start launches the workers. They run until Stop or until ctx ends.
func (s *DocumentService) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case job, ok := <-s.jobs:
					if !ok {
						return
					}
					s.analyze(ctx, job)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

// Stop closes the queue and waits for queued jobs to drain.
func (s *DocumentService) Stop() {
	s.once.Do(func() { close(s.jobs) })
	s.wg.Wait()
}

// DetectContentType trusts a declared type only when it is one we accept;
// otherwise it sniffs the bytes.
func DetectContentType(declared string, data []byte) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if acceptedContentType(ct) {
		return ct
	}
	return strings.Split(http.DetectContentType(data), ";")[0]
}

func acceptedContentType(ct string) bool {
	return ct == "application/pdf" || ct == "text/plain" || strings.HasPrefix(ct, "image/")
}

func (s *DocumentService) Upload(ctx context.Context, userID int64, filename, contentType string, data []byte) (*store.DocumentWithAnalysis, error) {
	ct := DetectContentType(contentType, data)
	if len(data) == 0 || len(data) > MaxDocumentBytes || !acceptedContentType(ct) {
		return nil, apperr.New(apperr.UnsupportedFile)
	}
	url, err := s.uploader.UploadBytes(ctx, path.Join("documents", fmt.Sprint(userID)), filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}
	doc := &store.Document{
		UserID:           userID,
		OriginalFilename: path.Base(filename),
		FileURL:          url,
		ContentType:      ct,
		SizeBytes:        int64(len(data)),
	}
	analysis, err := s.store.CreateDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	if ct == "text/plain" && utf8.Valid(data) {
		s.enqueue(ctx, analysisJob{documentID: doc.ID, filename: doc.OriginalFilename, text: string(data)})
	} else {
		msg := "automatic analysis is only available for text documents"
		if err := s.store.SetAnalysisStatus(ctx, doc.ID, store.AnalysisFailed, msg); err != nil {
			s.logger.Warn("failed to mark analysis unsupported", zap.Int64("document_id", doc.ID), zap.Error(err))
		}
		analysis.Status, analysis.ErrorMessage = store.AnalysisFailed, msg
	}
	return &store.DocumentWithAnalysis{Document: *doc, Analysis: analysis}, nil
}

func (s *DocumentService) enqueue(ctx context.Context, job analysisJob) {
	select {
	case s.jobs <- job:
	default:
		s.logger.Warn("analysis queue full", zap.Int64("document_id", job.documentID))
		if err := s.store.SetAnalysisStatus(ctx, job.documentID, store.AnalysisFailed, "analysis queue is full"); err != nil {
			s.logger.Warn("failed to mark analysis failed", zap.Int64("document_id", job.documentID), zap.Error(err))
		}
	}
}

type documentAnalysisResult struct {
	Tags     []string `json:"tags"`
	Filename string   `json:"filename"`
}

func (s *DocumentService) analyze(ctx context.Context, job analysisJob) {
	logger := s.logger.With(zap.Int64("document_id", job.documentID))
	if err := s.store.SetAnalysisStatus(ctx, job.documentID, store.AnalysisProcessing, ""); err != nil {
		logger.Warn("failed to mark analysis processing", zap.Error(err))
	}

	text := job.text
	if utf8.RuneCountInString(text) > maxAnalysisChars {
		text = string([]rune(text)[:maxAnalysisChars])
	}
	out, err := s.llm.Complete(ctx, llm.Request{
		Purpose:     llm.PurposeDocument,
		Prompt:      fmt.Sprintf(documentAnalysisPrompt, job.filename, text),
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err == nil {
		var res *documentAnalysisResult
		res, err = parseDocumentAnalysis(out)
		if err == nil {
			if err := s.store.CompleteAnalysis(ctx, job.documentID, job.text, res.Tags, res.Filename); err != nil {
				logger.Error("failed to store analysis", zap.Error(err))
			}
			return
		}
	}
	logger.Warn("document analysis failed", zap.Error(err))
	if err := s.store.SetAnalysisStatus(ctx, job.documentID, store.AnalysisFailed, "analysis failed"); err != nil {
		logger.Warn("failed to mark analysis failed", zap.Error(err))
	}
}

func parseDocumentAnalysis(out string) (*documentAnalysisResult, error) {
	body := jsonObjectRe.FindString(out)
	if body == "" {
		return nil, fmt.Errorf("no JSON object in analysis")
	}
	var res documentAnalysisResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	tags := make([]string, 0, maxDocumentTags)
	for _, t := range res.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && len(tags) < maxDocumentTags {
			tags = append(tags, t)
		}
	}
	res.Tags = tags
	res.Filename = path.Base(strings.TrimSpace(res.Filename))
	if res.Filename == "." || res.Filename == "/" {
		res.Filename = ""
	}
	return &res, nil
}

func (s *DocumentService) List(ctx context.Context, userID int64) ([]store.DocumentWithAnalysis, error) {
	return s.store.ListDocuments(ctx, userID)
}

func (s *DocumentService) Get(ctx context.Context, userID, id int64) (*store.DocumentWithAnalysis, error) {
	doc, err := s.store.GetDocument(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.New(apperr.DocumentNotFound)
	}
	return doc, nil
}
