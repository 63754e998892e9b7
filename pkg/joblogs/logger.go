package joblogs

import (
	"context"
	"runtime/debug"

	"github.com/bookferry/bookferry/pkg/models"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

const maxDataValueLen = 1024

// JobLogger writes to the process log and to the job's log rows. Bound to a
// request with ForRequest, every row also carries the request id.
type JobLogger struct {
	jobID     int
	requestID *int
	service   *Service
	log       logger.Logger
	ctx       context.Context
}

func (svc *Service) NewJobLogger(ctx context.Context, jobID int, log logger.Logger) *JobLogger {
	return &JobLogger{
		jobID:   jobID,
		service: svc,
		log:     log.Data(logger.Data{"job_id": jobID}),
		ctx:     ctx,
	}
}

// ForRequest returns a logger whose rows are attributed to requestID.
func (l *JobLogger) ForRequest(requestID int) *JobLogger {
	id := requestID
	return &JobLogger{
		jobID:     l.jobID,
		requestID: &id,
		service:   l.service,
		log:       l.log.Data(logger.Data{"request_id": requestID}),
		ctx:       l.ctx,
	}
}

// Debug goes to the process log only.
func (l *JobLogger) Debug(msg string, data logger.Data) {
	l.log.Debug(msg, data)
}

func (l *JobLogger) Info(msg string, data logger.Data) {
	l.log.Info(msg, data)
	l.persist(models.JobLogLevelInfo, msg, data, nil)
}

func (l *JobLogger) Warn(msg string, data logger.Data) {
	l.log.Warn(msg, data)
	l.persist(models.JobLogLevelWarn, msg, data, nil)
}

// Error logs err and records the current stack with the row.
func (l *JobLogger) Error(msg string, err error, data logger.Data) {
	l.log.Err(err).Error(msg, data)
	if data == nil {
		data = logger.Data{}
	}
	if err != nil {
		data["error"] = err.Error()
	}
	stack := string(debug.Stack())
	l.persist(models.JobLogLevelError, msg, data, &stack)
}

// Fatal is used for recovered panics.
func (l *JobLogger) Fatal(msg string, err error, data logger.Data) {
	if data == nil {
		data = logger.Data{}
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.log.Error(msg, data)
	stack := string(debug.Stack())
	l.persist(models.JobLogLevelFatal, msg, data, &stack)
}

func (l *JobLogger) persist(level, msg string, data logger.Data, stackTrace *string) {
	var dataStr *string
	if len(data) > 0 {
		truncated := make(logger.Data, len(data))
		for k, v := range data {
			if s, ok := v.(string); ok && len(s) > maxDataValueLen {
				truncated[k] = truncateMiddle(s, maxDataValueLen)
			} else {
				truncated[k] = v
			}
		}
		if raw, err := json.Marshal(truncated); err == nil {
			s := string(raw)
			dataStr = &s
		}
	}

	_ = l.service.CreateJobLog(l.ctx, &models.JobLog{
		JobID:      l.jobID,
		RequestID:  l.requestID,
		Level:      level,
		Message:    msg,
		Data:       dataStr,
		StackTrace: stackTrace,
	})
}

func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	half := (maxLen - 5) / 2
	return s[:half] + " ... " + s[len(s)-half:]
}
