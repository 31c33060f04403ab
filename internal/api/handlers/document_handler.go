package handlers

import (
	"strconv"

	"librag/internal/models"
	"librag/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DocumentHandler struct {
	docService *service.DocumentService
	logger     *zap.Logger
}

func NewDocumentHandler(docService *service.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		docService: docService,
		logger:     logger,
	}
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

// UploadDocument godoc
// @Summary Upload a document for ingestion
// @Description Stores the file and queues a processing task. Supported files: pdf, txt, md
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document file"
// @Param kb_id formData int true "Knowledge base ID"
// @Param parse_strategy formData string false "page_split (default) or agentic_chunking"
// @Security Bearer
// @Success 201 {object} dto.TaskResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /ai/upload [post]
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	kbID, err := strconv.ParseInt(c.FormValue("kb_id"), 10, 64)
	if err != nil || kbID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kb_id is required",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	strategy := models.ParseStrategy(c.FormValue("parse_strategy"))
	task, err := h.docService.UploadDocument(c.UserContext(), userID, kbID, file.Filename, strategy, src)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to upload document")
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

// ListTasks godoc
// @Summary List processing tasks of a knowledge base
// @Tags documents
// @Produce json
// @Param kb_id query int true "Knowledge base ID"
// @Security Bearer
// @Success 200 {array} dto.TaskResponse
// @Router /ai/tasks [get]
func (h *DocumentHandler) ListTasks(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	kbID := int64(c.QueryInt("kb_id", 0))
	if kbID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kb_id is required",
		})
	}

	tasks, err := h.docService.ListTasks(c.UserContext(), userID, kbID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list tasks")
	}
	return c.JSON(tasks)
}

// DeleteDocument godoc
// @Summary Delete a document and its paragraphs
// @Tags documents
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /ai/document/{id} [delete]
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.docService.DeleteDocument(c.UserContext(), userID, id); err != nil {
		return respondError(c, h.logger, err, "Failed to delete document")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListParagraphs godoc
// @Summary List the paragraphs of a document
// @Tags documents
// @Produce json
// @Param document_id path string true "Document ID"
// @Security Bearer
// @Success 200 {array} dto.ParagraphResponse
// @Failure 404 {object} map[string]string
// @Router /ai/paragraphs/{document_id} [get]
func (h *DocumentHandler) ListParagraphs(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuidParam(c, "document_id")
	if err != nil {
		return err
	}

	paragraphs, err := h.docService.Paragraphs(c.UserContext(), userID, id)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list paragraphs")
	}
	return c.JSON(paragraphs)
}

// GetParagraph godoc
// @Summary Get one paragraph
// @Tags documents
// @Produce json
// @Param id path string true "Paragraph ID"
// @Security Bearer
// @Success 200 {object} dto.ParagraphResponse
// @Failure 404 {object} map[string]string
// @Router /ai/paragraph/{id} [get]
func (h *DocumentHandler) GetParagraph(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	paragraph, err := h.docService.Paragraph(c.UserContext(), userID, id)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to get paragraph")
	}
	return c.JSON(paragraph)
}
