package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow/internal/session"
	"taskflow/internal/storage"
	"taskflow/internal/task"
)

const maxBodySize = 64 << 10

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, s *session.Session, logger *log.Logger) {
	h := &handler{s: s, log: logger.WithField("component", "api")}

	e.GET("/healthz", h.healthz)
	e.GET("/api/state", h.state)
	e.POST("/api/reload", h.reload)
	e.PUT("/api/criteria", h.putCriteria)

	e.POST("/api/tasks", h.createTask)
	e.PATCH("/api/tasks/:id", h.patchTask)
	e.POST("/api/tasks/:id/toggle", h.toggleTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)

	e.POST("/api/categories", h.createCategory)
	e.PATCH("/api/categories/:id", h.patchCategory)
	e.DELETE("/api/categories/:id", h.deleteCategory)
}

type handler struct {
	s   *session.Session
	log *log.Entry
}

func (h *handler) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handler) state(c echo.Context) error {
	return c.JSON(http.StatusOK, newStateResponse(h.s.Snapshot()))
}

func (h *handler) reload(c echo.Context) error {
	if err := h.s.Load(c.Request().Context()); err != nil {
		return h.fail(c, err, http.StatusServiceUnavailable)
	}
	return c.JSON(http.StatusOK, newStateResponse(h.s.Snapshot()))
}

func (h *handler) putCriteria(c echo.Context) error {
	var crit task.Criteria
	if err := decode(c, &crit); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := h.s.SetCriteria(crit); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, newStateResponse(h.s.Snapshot()))
}

func (h *handler) createTask(c echo.Context) error {
	var req createTaskRequest
	if err := decode(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	created, err := h.s.AddTask(c.Request().Context(), req.draft())
	if err != nil {
		return h.fail(c, err, http.StatusNoContent)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *handler) patchTask(c echo.Context) error {
	var req patchTaskRequest
	if err := decode(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	updated, err := h.s.UpdateTask(c.Request().Context(), c.Param("id"), req.patch())
	if err != nil {
		return h.fail(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *handler) toggleTask(c echo.Context) error {
	updated, err := h.s.ToggleCompletion(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *handler) deleteTask(c echo.Context) error {
	if err := h.s.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err, http.StatusBadRequest)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) createCategory(c echo.Context) error {
	var req categoryRequest
	if err := decode(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	created, err := h.s.AddCategory(c.Request().Context(), deref(req.Name), deref(req.Color), deref(req.Icon))
	if err != nil {
		return h.fail(c, err, http.StatusNoContent)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *handler) patchCategory(c echo.Context) error {
	var req categoryRequest
	if err := decode(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	updated, err := h.s.UpdateCategory(c.Request().Context(), c.Param("id"), req.patch())
	if err != nil {
		return h.fail(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *handler) deleteCategory(c echo.Context) error {
	if err := h.s.DeleteCategory(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err, http.StatusBadRequest)
	}
	return c.NoContent(http.StatusNoContent)
}

// fail maps session errors onto status codes. skipStatus is used for
// blank title or name skips, which create endpoints report as 204. Any other
// rejected field is a 400.
func (h *handler) fail(c echo.Context, err error, skipStatus int) error {
	var (
		skip *session.ValidationSkip
		nf   *session.NotFoundError
		lerr *session.LoadError
		merr *session.MutationError
	)
	switch {
	case errors.As(err, &skip):
		if skipStatus == http.StatusNoContent && blankSkip(skip) {
			return c.NoContent(http.StatusNoContent)
		}
		return c.String(http.StatusBadRequest, err.Error())
	case errors.As(err, &nf), errors.Is(err, storage.ErrNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.As(err, &lerr):
		return c.String(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &merr):
		h.log.WithError(err).Warn("store rejected request")
		return c.String(http.StatusBadGateway, err.Error())
	default:
		h.log.WithError(err).Error("unexpected error")
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

func blankSkip(skip *session.ValidationSkip) bool {
	return skip.Field == "title" || skip.Field == "name"
}

func decode(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
