package joblogs

import (
	"net/http"
	"strconv"

	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/jobs"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	jobLogService  *Service
	jobService     *jobs.Service
	requestService *requests.Service
}

func (h *handler) listPassLogs(c echo.Context) error {
	ctx := c.Request().Context()

	jobID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Pass")
	}
	job, err := h.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &jobID})
	if err != nil {
		return errors.WithStack(err)
	}

	params := ListJobLogsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	logs, err := h.jobLogService.ListJobLogs(ctx, ListJobLogsOptions{
		JobID:     &jobID,
		AfterID:   params.AfterID,
		Levels:    params.Level,
		RequestID: params.RequestID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Logs []*models.JobLog `json:"logs"`
		Job  *models.Job      `json:"job"`
	}{logs, job}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) listRequestLogs(c echo.Context) error {
	ctx := c.Request().Context()

	requestID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Request")
	}
	req, err := h.requestService.RetrieveRequest(ctx, requests.RetrieveRequestOptions{ID: &requestID})
	if err != nil {
		return errors.WithStack(err)
	}

	params := ListRequestLogsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	logs, err := h.jobLogService.ListJobLogs(ctx, ListJobLogsOptions{
		RequestID: &requestID,
		AfterID:   params.AfterID,
		Levels:    params.Level,
		Limit:     &params.Limit,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Logs    []*models.JobLog `json:"logs"`
		Request *models.Request  `json:"request"`
	}{logs, req}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
