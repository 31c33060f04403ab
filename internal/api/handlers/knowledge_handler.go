package handlers

import (
	"librag/internal/dto"
	"librag/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type KnowledgeHandler struct {
	kbService *service.KnowledgeService
	logger    *zap.Logger
}

func NewKnowledgeHandler(kbService *service.KnowledgeService, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		kbService: kbService,
		logger:    logger,
	}
}

func kbIDParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid knowledge base ID")
	}
	return int64(id), nil
}

// CreateKnowledgeBase godoc
// @Summary Create a knowledge base
// @Tags knowledge_bases
// @Accept json
// @Produce json
// @Param request body dto.KnowledgeBaseRequest true "Knowledge base"
// @Security Bearer
// @Success 201 {object} dto.KnowledgeBaseResponse
// @Failure 400 {object} map[string]string
// @Router /ai/knowledge_bases [post]
func (h *KnowledgeHandler) CreateKnowledgeBase(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.KnowledgeBaseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	kb, err := h.kbService.Create(c.UserContext(), userID, &req)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to create knowledge base")
	}
	return c.Status(fiber.StatusCreated).JSON(kb)
}

// ListKnowledgeBases godoc
// @Summary List knowledge bases
// @Tags knowledge_bases
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.KnowledgeBaseResponse
// @Router /ai/knowledge_bases [get]
func (h *KnowledgeHandler) ListKnowledgeBases(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	kbs, err := h.kbService.List(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list knowledge bases")
	}
	return c.JSON(kbs)
}

// GetKnowledgeBase godoc
// @Summary Get a knowledge base
// @Tags knowledge_bases
// @Produce json
// @Param id path int true "Knowledge base ID"
// @Security Bearer
// @Success 200 {object} dto.KnowledgeBaseResponse
// @Failure 404 {object} map[string]string
// @Router /ai/knowledge_bases/{id} [get]
func (h *KnowledgeHandler) GetKnowledgeBase(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	kbID, err := kbIDParam(c, "id")
	if err != nil {
		return err
	}

	kb, err := h.kbService.Get(c.UserContext(), userID, kbID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to get knowledge base")
	}
	return c.JSON(kb)
}

// UpdateKnowledgeBase godoc
// @Summary Update a knowledge base
// @Tags knowledge_bases
// @Accept json
// @Produce json
// @Param id path int true "Knowledge base ID"
// @Param request body dto.KnowledgeBaseRequest true "Knowledge base"
// @Security Bearer
// @Success 200 {object} dto.KnowledgeBaseResponse
// @Failure 404 {object} map[string]string
// @Router /ai/knowledge_bases/{id} [put]
func (h *KnowledgeHandler) UpdateKnowledgeBase(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	kbID, err := kbIDParam(c, "id")
	if err != nil {
		return err
	}

	var req dto.KnowledgeBaseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	kb, err := h.kbService.Update(c.UserContext(), userID, kbID, &req)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to update knowledge base")
	}
	return c.JSON(kb)
}

// DeleteKnowledgeBase godoc
// @Summary Delete a knowledge base with all its documents
// @Tags knowledge_bases
// @Param id path int true "Knowledge base ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /ai/knowledge_bases/{id} [delete]
func (h *KnowledgeHandler) DeleteKnowledgeBase(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	kbID, err := kbIDParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.kbService.Delete(c.UserContext(), userID, kbID); err != nil {
		return respondError(c, h.logger, err, "Failed to delete knowledge base")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MetaData godoc
// @Summary List the domains, categories or documents of a knowledge base
// @Tags knowledge_bases
// @Produce json
// @Param kb_id path int true "Knowledge base ID"
// @Param meta_type path string true "domain, category or document"
// @Security Bearer
// @Success 200 {array} dto.MetaResponse
// @Failure 400 {object} map[string]string
// @Router /ai/meta_data/{kb_id}/{meta_type} [get]
func (h *KnowledgeHandler) MetaData(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	kbID, err := kbIDParam(c, "kb_id")
	if err != nil {
		return err
	}

	meta, err := h.kbService.Meta(c.UserContext(), userID, kbID, service.MetaType(c.Params("meta_type")))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list metadata")
	}
	return c.JSON(meta)
}

// RebuildIndex godoc
// @Summary Reclassify every document of a knowledge base
// @Tags knowledge_bases
// @Param kb_id path int true "Knowledge base ID"
// @Security Bearer
// @Success 202 {object} map[string]string
// @Router /ai/index/{kb_id} [post]
func (h *KnowledgeHandler) RebuildIndex(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	kbID, err := kbIDParam(c, "kb_id")
	if err != nil {
		return err
	}

	if err := h.kbService.Rebuild(c.UserContext(), userID, kbID); err != nil {
		return respondError(c, h.logger, err, "Failed to schedule rebuild")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "scheduled",
	})
}
