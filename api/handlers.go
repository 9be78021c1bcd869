package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

const (
	maxBodySize          = 1 << 20
	headerIdempotencyKey = "Idempotency-Key"
)

// Register wires up all API routes on the provided Echo instance. dedupe may
// be nil, in which case Idempotency-Key headers are ignored.
func Register(e *echo.Echo, svc TaskService, auth Authenticator, dedupe Deduper, logger *log.Logger) {
	e.GET("/healthz", healthz)

	g := e.Group("/api", GzipRequestMiddleware(), RequireUser(auth))
	g.GET("/boards/:id", getBoard(svc))
	g.PUT("/boards/:id/columns", putColumns(svc))
	g.POST("/tasks", postTask(svc))
	g.POST("/tasks/bulk", postBulk(svc, dedupe, logger))
	g.PATCH("/tasks/:id", patchTask(svc))
	g.DELETE("/tasks/:id", deleteTask(svc))
	g.PUT("/tasks/:id/status", putStatus(svc))
	g.PUT("/tasks/:id/assign", putAssign(svc))
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// decodeBody reads a size-limited JSON body into dst, rejecting unknown
// fields.
func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
}

// writeError maps service errors onto status codes.
func writeError(c echo.Context, err error) error {
	switch {
	case domain.IsValidation(err):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case domain.IsNotFound(err):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func getBoard(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap, err := svc.Snapshot(c.Request().Context(), userID(c), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: snap})
	}
}

func putColumns(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req columnsRequest
		if err := decodeBody(c, &req); err != nil {
			return badBody(c)
		}
		cols, err := svc.SaveColumnOrder(c.Request().Context(), userID(c), c.Param("id"), req.Columns)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: domain.Board{ID: c.Param("id"), Columns: cols}})
	}
}

func postTask(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var draft domain.TaskDraft
		if err := decodeBody(c, &draft); err != nil {
			return badBody(c)
		}
		t, err := svc.Create(c.Request().Context(), userID(c), draft)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, dataResponse{Data: t})
	}
}

func patchTask(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return badBody(c)
		}
		t, err := svc.Update(c.Request().Context(), userID(c), c.Param("id"), patch)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: t})
	}
}

func deleteTask(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := svc.Delete(c.Request().Context(), userID(c), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: t})
	}
}

func putStatus(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req statusRequest
		if err := decodeBody(c, &req); err != nil {
			return badBody(c)
		}
		t, err := svc.UpdateStatus(c.Request().Context(), userID(c), c.Param("id"), req.Status)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: t})
	}
}

func putAssign(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req assignRequest
		if err := decodeBody(c, &req); err != nil {
			return badBody(c)
		}
		t, err := svc.Assign(c.Request().Context(), userID(c), c.Param("id"), req.AssignedAgentID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, dataResponse{Data: t})
	}
}

func postBulk(svc TaskService, dedupe Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBulkRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		user := userID(c)

		decodeStart := time.Now()
		var req bulkRequest
		decodeErr := decodeBody(c, &req)
		metrics.ObserveDecode(time.Since(decodeStart))
		if decodeErr != nil {
			metrics.SetErrorStage("decode")
			return badBody(c)
		}
		metrics.SetOperations(len(req.Operations))
		if verr := svc.ValidateBulk(req.Operations); verr != nil {
			metrics.SetErrorStage("validate")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
		}

		key := c.Request().Header.Get(headerIdempotencyKey)
		metrics.SetIdempotencyKeyProvided(key != "")
		if key != "" && dedupe != nil {
			added, derr := dedupe.Add(ctx, user, key)
			if derr != nil {
				metrics.SetErrorStage("idempotency")
				c.Logger().Error(derr)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
			}
			if !added {
				metrics.SetErrorStage("duplicate")
				return c.JSON(http.StatusConflict, errorResponse{Error: "duplicate idempotency key"})
			}
		}

		execStart := time.Now()
		res, berr := svc.Bulk(ctx, user, req.Operations)
		metrics.ObserveExecute(time.Since(execStart))
		if berr != nil {
			metrics.SetErrorStage("execute")
			if key != "" && dedupe != nil {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				if rerr := dedupe.Remove(releaseCtx, user, key); rerr != nil {
					c.Logger().Errorf("release idempotency key: %v", rerr)
				}
				cancel()
			}
			return writeError(c, berr)
		}
		metrics.SetSummary(res.Summary)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, dataResponse{Data: res})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}
