package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/contestpulse/internal/app"
	"github.com/pscheid92/contestpulse/internal/domain"
	apperrors "github.com/pscheid92/contestpulse/internal/platform/errors"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleLeaderboard(c echo.Context) error {
	contestID := c.Param("contestID")

	page, err := intQuery(c, "page", 1)
	if err != nil {
		return err
	}
	pageSize, err := intQuery(c, "pageSize", domain.DefaultPageSize)
	if err != nil {
		return err
	}
	refresh := c.QueryParam("refresh") == "true" || c.QueryParam("refresh") == "1"

	result, err := s.leaderboard.Page(c.Request().Context(), contestID, page, pageSize, refresh)
	if err != nil {
		return fmt.Errorf("leaderboard %s: %w", contestID, err)
	}

	if err := c.JSON(http.StatusOK, result); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func intQuery(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ValidationError(name + " must be an integer").WithField(name, raw)
	}
	return v, nil
}

func (s *Server) handleRecordEvent(c echo.Context) error {
	contestID := c.Param("contestID")

	var event domain.SubmissionEvent
	if err := decodeBody(c, &event); err != nil {
		return err
	}
	if event.ContestID != "" && event.ContestID != contestID {
		return apperrors.ValidationError("contestId does not match path").
			WithField("contest_id", contestID).
			WithField("body_contest_id", event.ContestID)
	}
	event.ContestID = contestID
	event.Seq = 0

	seq, err := s.ingest.Record(c.Request().Context(), app.SourceHTTP, &event)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}

	if err := c.JSON(http.StatusAccepted, map[string]int64{"seq": seq}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleExecutionResult(c echo.Context) error {
	contestID := c.Param("contestID")

	var fields map[string]json.RawMessage
	if err := decodeBody(c, &fields); err != nil {
		return err
	}

	var participantID string
	if raw, ok := fields["participantId"]; ok {
		if err := json.Unmarshal(raw, &participantID); err != nil {
			return apperrors.ValidationError("participantId must be a string")
		}
		delete(fields, "participantId")
	}

	if err := s.ingest.ExecutionResult(c.Request().Context(), contestID, participantID, fields); err != nil {
		return fmt.Errorf("execution result: %w", err)
	}

	if err := c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleEndContest(c echo.Context) error {
	contestID := c.Param("contestID")

	if err := s.ingest.EndContest(c.Request().Context(), contestID); err != nil {
		return fmt.Errorf("end contest: %w", err)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ended"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func decodeBody(c echo.Context, v any) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return apperrors.ValidationError("invalid JSON body")
	}
	return nil
}
