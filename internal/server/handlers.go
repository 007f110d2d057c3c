package server

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"multimodal-rag/internal/domain"
)

type queryRequest struct {
	Question  string `json:"question" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Multimodal RAG Backend is running"})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) warmup(c *gin.Context) {
	status := s.models.Warmup(c.Request.Context())
	overall := "ready"
	for _, ok := range status {
		if !ok {
			overall = "partial"
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": overall, "models": status})
}

func (s *Server) modelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.models.Status())
}

func (s *Server) clearCache(c *gin.Context) {
	cleared := 0
	if s.cache != nil {
		cleared = s.cache.Len()
		s.cache.Clear()
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "entries": cleared})
}

func (s *Server) ingestFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No file uploaded", Stage: "upload"})
		return
	}

	session := domain.NewSessionID()
	if raw := c.PostForm("session_id"); raw != "" {
		if session, err = domain.ParseSessionID(raw); err != nil {
			s.fail(c, err)
			return
		}
	}

	dir, err := s.ensureDir(session)
	if err != nil {
		s.fail(c, domain.AtStage("upload", err))
		return
	}
	path := filepath.Join(dir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		s.fail(c, domain.AtStage("upload", err))
		return
	}

	res, err := s.ingester.IngestFile(c.Request.Context(), path, session)
	if err != nil {
		s.fail(c, err)
		return
	}
	body := gin.H{
		"status":     "success",
		"session_id": session.String(),
		"modality":   res.Modality,
	}
	if res.Modality != "image" {
		body["chunks"] = res.Chunks
	}
	if len(res.Warnings) > 0 {
		body["warnings"] = res.Warnings
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "question and session_id are required"})
		return
	}
	session, err := domain.ParseSessionID(req.SessionID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ans, err := s.answerer.Answer(c.Request.Context(), req.Question, session)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": ans.Text})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	stage := domain.StageOf(err)
	s.log.WithError(err).WithField("stage", stage).WithField("status", status).Error("request error")
	c.JSON(status, errorResponse{Error: err.Error(), Stage: stage})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrModelLoad):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
