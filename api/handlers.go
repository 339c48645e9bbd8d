package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tessera-modules-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, cron *CronAuth, dedupe Deduper, logger *log.Logger) {
	e.POST("/api/modules/apply", applyModule(store, auth, dedupe, logger), GzipRequestMiddleware())
	e.GET("/api/cron/release-due-staged-tasks", releaseDueStagedTasks(store, cron, logger))
	e.POST("/api/cron/release-due-staged-tasks", releaseDueStagedTasks(store, cron, logger))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		//TODO: ping table storage and redis instead of returning unconditionally
		return c.NoContent(http.StatusOK)
	}
}

func applyModule(store Storage, auth Authenticator, dedupe Deduper, logger *log.Logger) echo.HandlerFunc {
	applier := &domain.Applier{Store: store}
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newApplyRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		lr := io.LimitReader(c.Request().Body, applyMaxBodySize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req domain.ApplyRequest
		if decodeErr := dec.Decode(&req); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Code: codeValidation, Message: "invalid request body"})
			return err
		}

		idemKey := c.Request().Header.Get("Idempotency-Key")
		if idemKey != "" && dedupe != nil {
			fresh, dedupeErr := dedupe.Add(ctx, userID, idemKey)
			if dedupeErr != nil {
				// Dedupe is advisory; a redis outage must not block applies.
				logger.WithError(dedupeErr).Warn("Idempotency check unavailable, continuing")
			} else if !fresh {
				metrics.SetErrorStage("duplicate")
				err = c.JSON(http.StatusConflict, errorResponse{Code: codeDuplicate, Message: "request with this Idempotency-Key was already applied"})
				return err
			}
		}

		applyStart := time.Now()
		result, applyErr := applier.Apply(ctx, req)
		metrics.ObserveApply(time.Since(applyStart))
		if applyErr != nil {
			if idemKey != "" && dedupe != nil {
				if removeErr := dedupe.Remove(ctx, userID, idemKey); removeErr != nil {
					logger.WithError(removeErr).Warn("Unable to release idempotency key")
				}
			}

			var validationErr *domain.ValidationError
			var notFoundErr *domain.NotFoundError
			switch {
			case errors.As(applyErr, &validationErr):
				metrics.SetErrorStage("validation")
				err = c.JSON(http.StatusBadRequest, errorResponse{Code: codeValidation, Message: validationErr.Error()})
			case errors.As(applyErr, &notFoundErr):
				metrics.SetErrorStage("not_found")
				err = c.JSON(http.StatusNotFound, errorResponse{Code: codeNotFound, Message: notFoundErr.Error()})
			default:
				metrics.SetErrorStage("storage")
				c.Logger().Error(applyErr)
				err = c.JSON(http.StatusInternalServerError, errorResponse{Code: codeInternal, Message: "unable to apply module"})
			}
			return err
		}

		metrics.SetTasksCreated(len(result.Tasks))
		metrics.SetEpicReused(result.EpicReused)

		created := make([]any, 0, len(result.Tasks)+2)
		created = append(created, result.Epic, result.UserStory)
		for i := range result.Tasks {
			created = append(created, result.Tasks[i])
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusCreated, applyResponse{Created: created, EpicReused: result.EpicReused})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func releaseDueStagedTasks(store Storage, cron *CronAuth, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if authErr := cron.Authorize(c.Request().Header); authErr != nil {
			if errors.Is(authErr, errCronSecretUnset) {
				c.Logger().Error(authErr)
				return c.JSON(http.StatusInternalServerError, errorResponse{Code: codeInternal, Message: authErr.Error()})
			}
			return c.String(http.StatusUnauthorized, authErr.Error())
		}

		stats, err := domain.ReleaseDueTasks(c.Request().Context(), store, time.Now().UTC(), logger)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Code: codeInternal, Message: "release sweep failed"})
		}
		return c.JSON(http.StatusOK, stats)
	}
}
