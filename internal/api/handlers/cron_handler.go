// Package handlers contains the handlers for the API
package handlers

import (
	"errors"
	"net/http"

	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
)

// JobRunner runs a named background job
type JobRunner interface {
	RunJob(name string) error
}

type CronHandler struct {
	runner JobRunner
}

func NewCronHandler(runner JobRunner) *CronHandler {
	return &CronHandler{runner: runner}
}

// RunJob queues a cron job to run now
func (h *CronHandler) RunJob(c echo.Context) error {
	job := c.Param("job")
	if err := h.runner.RunJob(job); err != nil {
		if errors.Is(err, service.ErrUnknownJob) {
			return response.ErrorResponse(c, http.StatusNotFound, "DataNotFound", "Unknown job `"+job+"`")
		}
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, job+" queued")
}
