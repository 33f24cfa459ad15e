package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"mediaintel/internal/domain"
)

const defaultQueryLimit = 50

func (s *Server) handleIngest(c echo.Context) error {
	if !s.ingestBusy.CompareAndSwap(false, true) {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "busy",
			"message": "Ingestion already in progress",
		})
	}
	defer s.ingestBusy.Store(false)

	report, err := s.pipeline.Run(c.Request().Context())
	if err != nil {
		s.logger.Error("manual ingestion failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":       "success",
		"new_articles": report.NewArticles,
	})
}

func (s *Server) handleArticles(c echo.Context) error {
	filter := domain.ArticleFilter{Limit: defaultQueryLimit}

	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.ParseUint(v, 10, 32)
		if err != nil || limit == 0 {
			return badRequest(c, "limit must be a positive integer")
		}
		filter.Limit = limit
	}
	if v := c.QueryParam("category"); v != "" {
		filter.Category = v
	}
	if v := c.QueryParam("relevance"); v != "" {
		filter.Relevance = domain.RelevanceTier(strings.ToLower(v))
	}
	if v := c.QueryParam("start_date"); v != "" {
		start, err := parseDate(v, false)
		if err != nil {
			return badRequest(c, "start_date must be YYYY-MM-DD or RFC3339")
		}
		filter.Start = &start
	}
	if v := c.QueryParam("end_date"); v != "" {
		end, err := parseDate(v, true)
		if err != nil {
			return badRequest(c, "end_date must be YYYY-MM-DD or RFC3339")
		}
		filter.End = &end
	}

	articles, err := s.store.Query(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error("article query failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}
	if articles == nil {
		articles = []domain.Article{}
	}

	return c.JSON(http.StatusOK, articles)
}

func (s *Server) handleCategories(c echo.Context) error {
	categories, err := s.store.Categories(c.Request().Context())
	if err != nil {
		s.logger.Error("category query failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}
	if categories == nil {
		categories = []string{}
	}

	return c.JSON(http.StatusOK, categories)
}

func (s *Server) handleDeleteArticle(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "id must be an integer")
	}

	deleted, err := s.store.Delete(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("delete failed", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "Article not found"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleDeleteAll(c echo.Context) error {
	count, err := s.store.DeleteAll(c.Request().Context())
	if err != nil {
		s.logger.Error("delete all failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":        "success",
		"deleted_count": count,
	})
}

func (s *Server) handleGetConfig(c echo.Context) error {
	raw, err := s.config.Raw()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"config": string(raw)})
}

func (s *Server) handleUpdateConfig(c echo.Context) error {
	var req struct {
		Config string `json:"config"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	cfg, err := s.config.Update([]byte(req.Config))
	if err != nil {
		return badRequest(c, fmt.Sprintf("invalid config: %v", err))
	}

	if s.reconfigure != nil {
		s.reconfigure(cfg.Scheduling)
	}
	s.logger.Info("configuration updated",
		"scheduling_enabled", cfg.Scheduling.Enabled,
		"interval_hours", cfg.Scheduling.IntervalHours)

	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleChat(c echo.Context) error {
	if s.chat == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"detail": "chat provider not configured"})
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return badRequest(c, "message is required")
	}

	reply, articles, err := s.chat.Ask(c.Request().Context(), req.Message)
	if err != nil {
		s.logger.Error("chat failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"response": reply,
		"articles": articles,
	})
}

func badRequest(c echo.Context, detail string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"detail": detail})
}

// parseDate accepts a bare date or a full RFC3339 timestamp. Bare end dates
// are widened to the end of that day so the range stays inclusive.
func parseDate(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}

	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	return t.UTC(), nil
}
