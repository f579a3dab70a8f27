package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/contestpulse/internal/domain"
	"github.com/pscheid92/contestpulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/contestpulse/internal/platform/errors"
)

const (
	correlationHeader = "X-Correlation-ID"
	identityKey       = "identity"
)

// correlationMiddleware reuses a caller supplied correlation id or mints one, and echoes it back.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationHeader)
		if id == "" || len(id) > 64 {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlationHeader, id)
		return next(c)
	}
}

// requireRole verifies the bearer token, checks contest access and, when roles are given,
// that the caller holds one of them.
func (s *Server) requireRole(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request())
			if !ok {
				return apperrors.UnauthorizedError("missing bearer token", nil)
			}

			identity, err := s.verifier.Verify(token)
			if err != nil {
				return apperrors.UnauthorizedError("invalid or expired token", err)
			}

			if len(roles) > 0 && !slices.Contains(roles, identity.Role) {
				return apperrors.ForbiddenError("insufficient role").WithField("role", string(identity.Role))
			}
			if contestID := c.Param("contestID"); contestID != "" && !identity.CanAccess(contestID) {
				return apperrors.ForbiddenError("not allowed for this contest").WithField("contest_id", contestID)
			}

			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(fromDomain(err))
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// fromDomain maps domain sentinels onto structured errors. Structured errors pass through.
func fromDomain(err error) error {
	var structuredErr *apperrors.Error
	if errors.As(err, &structuredErr) {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrInvalidEvent):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, domain.ErrContestNotFound):
		return apperrors.NotFoundError("contest not found")
	case errors.Is(err, domain.ErrUnauthorized):
		return apperrors.UnauthorizedError("invalid or expired token", err)
	case errors.Is(err, domain.ErrForbidden):
		return apperrors.ForbiddenError("not allowed")
	default:
		return err
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if identity, ok := c.Get(identityKey).(domain.Identity); ok {
		attrs = append(attrs, "participant_id", identity.ParticipantID, "role", identity.Role)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeUnauthorized, apperrors.TypeForbidden, apperrors.TypeConflict:
		slog.WarnContext(ctx, "Request denied", attrs...)
	case apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Dependency unavailable", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}
