package api

import (
	"errors"

	"librag/docs"
	"librag/internal/api/handlers"
	"librag/pkg/auth"
	"librag/pkg/config"
	"librag/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Knowledge *handlers.KnowledgeHandler
	Recall    *handlers.RecallHandler
	Document  *handlers.DocumentHandler
}

// ErrorHandler renders errors returned by handlers as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func SetupRouter(
	h Handlers,
	jwtManager *auth.JWTManager,
	cfg *config.Config,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// The docs package registers the OpenAPI document in init.
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/ai")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", h.Auth.Register)
	authGroup.Post("/login", h.Auth.Login)
	authGroup.Post("/refresh", h.Auth.RefreshToken)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(jwtManager, cfg.Auth.APIToken, appLogger))

	protected.Post("/recall", h.Recall.Recall)
	protected.Post("/recall/stream", h.Recall.RecallStream)
	protected.Post("/split", h.Recall.Split)

	kbs := protected.Group("/knowledge_bases")
	kbs.Get("", h.Knowledge.ListKnowledgeBases)
	kbs.Post("", h.Knowledge.CreateKnowledgeBase)
	kbs.Get("/:id", h.Knowledge.GetKnowledgeBase)
	kbs.Put("/:id", h.Knowledge.UpdateKnowledgeBase)
	kbs.Delete("/:id", h.Knowledge.DeleteKnowledgeBase)

	protected.Get("/meta_data/:kb_id/:meta_type", h.Knowledge.MetaData)
	protected.Post("/index/:kb_id", h.Knowledge.RebuildIndex)

	protected.Post("/upload", h.Document.UploadDocument)
	protected.Get("/tasks", h.Document.ListTasks)
	protected.Delete("/document/:id", h.Document.DeleteDocument)
	protected.Get("/paragraphs/:document_id", h.Document.ListParagraphs)
	protected.Get("/paragraph/:id", h.Document.GetParagraph)

	return app
}
