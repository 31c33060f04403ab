package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"librag/internal/dto"
	"librag/internal/retrieval"
	"librag/internal/selector"
	"librag/internal/service"
	"librag/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type RecallHandler struct {
	recallService *service.RecallService
	splitter      config.SplitterConfig
	logger        *zap.Logger
}

func NewRecallHandler(recallService *service.RecallService, splitter config.SplitterConfig, logger *zap.Logger) *RecallHandler {
	return &RecallHandler{
		recallService: recallService,
		splitter:      splitter,
		logger:        logger,
	}
}

// Recall godoc
// @Summary Recall the paragraphs that answer a question
// @Description Narrows domains, categories, documents and paragraphs with the LLM, then scores the result
// @Tags recall
// @Accept json
// @Produce json
// @Param request body dto.RecallRequest true "Recall request"
// @Security Bearer
// @Success 200 {array} dto.ParagraphRecord
// @Failure 400 {object} map[string]string
// @Router /ai/recall [post]
func (h *RecallHandler) Recall(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.RecallRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	records, err := h.recallService.Recall(c.UserContext(), userID, &req)
	if err != nil {
		return respondError(c, h.logger, err, "Recall failed")
	}
	return c.JSON(records)
}

type streamEvent struct {
	Stage   retrieval.Stage `json:"stage"`
	Data    any             `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type stageData struct {
	Items     []selector.Item `json:"items,omitempty"`
	Count     int             `json:"count"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

type completeData struct {
	Paragraphs []dto.ParagraphRecord `json:"paragraphs"`
	ElapsedMS  int64                 `json:"elapsed_ms"`
}

const stageError retrieval.Stage = "error"

// RecallStream godoc
// @Summary Recall with one server-sent event per funnel stage
// @Tags recall
// @Accept json
// @Produce text/event-stream
// @Param request body dto.RecallRequest true "Recall request"
// @Security Bearer
// @Success 200 {string} string "event stream"
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /ai/recall/stream [post]
func (h *RecallHandler) RecallStream(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.RecallRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := h.recallService.Validate(c.UserContext(), userID, &req); err != nil {
		return respondError(c, h.logger, err, "Recall failed")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx := context.WithoutCancel(c.UserContext())
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		started := time.Now()
		records, err := h.recallService.RecallStream(ctx, &req, func(e retrieval.Event) {
			if e.Stage == retrieval.StageComplete {
				return
			}
			h.writeEvent(w, streamEvent{
				Stage: e.Stage,
				Data:  stageData{Items: e.Items, Count: e.Count, ElapsedMS: e.Elapsed.Milliseconds()},
			})
		})
		if err != nil {
			h.logger.Error("Recall stream failed", zap.Error(err))
			h.writeEvent(w, streamEvent{Stage: stageError, Message: err.Error()})
			return
		}
		h.writeEvent(w, streamEvent{
			Stage: retrieval.StageComplete,
			Data:  completeData{Paragraphs: records, ElapsedMS: time.Since(started).Milliseconds()},
		})
	}))

	return nil
}

func (h *RecallHandler) writeEvent(w *bufio.Writer, e streamEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("Failed to marshal stream event", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	if err := w.Flush(); err != nil {
		h.logger.Warn("Stream client went away", zap.Error(err))
	}
}

// Split godoc
// @Summary Split text into overlapping chunks
// @Tags recall
// @Accept json
// @Produce json
// @Param request body dto.SplitRequest true "Split request"
// @Security Bearer
// @Success 200 {object} dto.SplitResponse
// @Failure 400 {object} map[string]string
// @Router /ai/split [post]
func (h *RecallHandler) Split(c *fiber.Ctx) error {
	var req dto.SplitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := service.SplitText(&req, h.splitter)
	if err != nil {
		return respondError(c, h.logger, err, "Split failed")
	}
	return c.JSON(resp)
}
