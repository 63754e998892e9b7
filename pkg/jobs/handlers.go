package jobs

import (
	"net/http"
	"strconv"

	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Trigger starts a pass outside the schedule. It reports false when a pass
// is already running.
type Trigger interface {
	Trigger(reason string) bool
}

type handler struct {
	jobService *Service
	trigger    Trigger
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	hasActive, err := h.jobService.HasActiveJobByType(ctx, models.JobTypePass)
	if err != nil {
		return errors.WithStack(err)
	}
	if hasActive || !h.trigger.Trigger(models.TriggerManual) {
		return errcodes.Conflict("A pass is already running.")
	}

	return errors.WithStack(c.NoContent(http.StatusAccepted))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Job")
	}

	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListJobsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	jobs, total, err := h.jobService.ListJobsWithTotal(ctx, ListJobsOptions{
		Limit:    &params.Limit,
		Offset:   &params.Offset,
		Statuses: params.Status,
		Type:     params.Type,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Jobs  []*models.Job `json:"jobs"`
		Total int           `json:"total"`
	}{jobs, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
