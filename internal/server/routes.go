package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maintkg/maintkg/internal/queue"
	"github.com/maintkg/maintkg/pkg/logger"
)

func (s *Server) registerRoutes() {
	s.e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	api := s.e.Group("/api")
	api.POST("/query", s.queryHandler)
	api.POST("/ingest", s.ingestHandler)
}

func (s *Server) queryHandler(c echo.Context) error {
	type queryBody struct {
		Question string `json:"question" validate:"required"`
	}
	type errorResponse struct {
		Message string `json:"message"`
	}

	data := new(queryBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
	}

	answer, err := s.query.Ask(c.Request().Context(), data.Question)
	if err != nil {
		logger.Error("[Server] Query failed", "err", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Message: "Query failed"})
	}

	if c.QueryParam("format") == "text" {
		return c.String(http.StatusOK, answer.Text)
	}
	return c.JSON(http.StatusOK, answer)
}

func (s *Server) ingestHandler(c echo.Context) error {
	type ingestBody struct {
		Format string `json:"format" validate:"required,oneof=csv jsonl pdf"`
		Path   string `json:"path" validate:"required"`

		CaseColumn       string `json:"case_column"`
		DateColumn       string `json:"date_column"`
		TechnicianColumn string `json:"technician_column"`
		ReportColumn     string `json:"report_column"`
		PieceColumn      string `json:"piece_column"`
		TextField        string `json:"text_field"`
		IDField          string `json:"id_field"`
	}
	type response struct {
		Message string `json:"message"`
	}

	if s.publish == nil {
		return c.JSON(http.StatusServiceUnavailable, response{Message: "Ingestion queue not configured"})
	}

	data := new(ingestBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, response{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, response{Message: "Invalid request body"})
	}

	job := queue.IngestJobMsg{
		Format:           data.Format,
		Path:             data.Path,
		CaseColumn:       data.CaseColumn,
		DateColumn:       data.DateColumn,
		TechnicianColumn: data.TechnicianColumn,
		ReportColumn:     data.ReportColumn,
		PieceColumn:      data.PieceColumn,
		TextField:        data.TextField,
		IDField:          data.IDField,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, response{Message: "Failed to queue job"})
	}
	if err := s.publish(queue.IngestQueue, body); err != nil {
		logger.Error("[Server] Failed to publish ingest job", "err", err)
		return c.JSON(http.StatusInternalServerError, response{Message: "Failed to queue job"})
	}

	return c.JSON(http.StatusAccepted, response{Message: "Ingest job queued"})
}
