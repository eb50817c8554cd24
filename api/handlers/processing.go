package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apierrors "github.com/imsportal/filingstack/api/errors"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/internal/tracing"
)

type ProcessingHandler struct {
	processingLogRepository interfaces.ProcessingLogRepository
	processor               interfaces.EmailProcessor
}

func NewProcessingHandler(repos *repository.Repositories, processor interfaces.EmailProcessor) *ProcessingHandler {
	return &ProcessingHandler{
		processingLogRepository: repos.ProcessingLogRepository,
		processor:               processor,
	}
}

// ProcessNow runs a pass over the mailboxes of one instance and returns its
// summary. Fails with 409 while another pass is running.
func (h *ProcessingHandler) ProcessNow() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ProcessingHandler.ProcessNow")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		summary, err := h.processor.ProcessInstanceNow(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

func (h *ProcessingHandler) ListLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ProcessingHandler.ListLogs")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		limit, offset, err := pagination(c)
		if err != nil {
			respondError(c, span, err)
			return
		}

		status := enum.ProcessingStatus(c.Query("status"))
		if status != "" && !status.IsTerminal() && status != enum.ProcessingPending && status != enum.ProcessingInProgress {
			validation := apierrors.NewMultiErrors()
			validation.Add("status", "unknown processing status", nil)
			respondError(c, span, validation)
			return
		}

		entries, total, err := h.processingLogRepository.List(ctx, interfaces.ProcessingLogFilter{
			InstanceID: c.Param("id"),
			Status:     status,
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"items":  entries,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}

// Retry runs a message that ended in error through the pipeline again.
func (h *ProcessingHandler) Retry() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ProcessingHandler.Retry")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		messageID := c.Param("messageId")
		tracing.TagEntity(span, messageID)

		entry, err := h.processor.RetryMessage(ctx, messageID)
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, entry)
	}
}
