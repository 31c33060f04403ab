package ingest

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"librag/internal/llm"
	"librag/internal/models"
	"librag/internal/repository"
	"librag/internal/splitter"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the taxonomy side of ingestion. *repository.Store implements it.
type Store interface {
	ListDocuments(ctx context.Context, kbID int64) ([]*models.Document, error)
	ListCategories(ctx context.Context, kbID int64) ([]*models.Category, error)
	ListDomains(ctx context.Context, kbID int64) ([]*models.Domain, error)
	SaveParsedDocument(ctx context.Context, p *repository.ParsedDocument) error
	ReplaceTaxonomy(ctx context.Context, kbID int64, t *repository.Taxonomy) error
}

// TaskStore tracks processing tasks. *repository.TaskRepository implements
// it.
type TaskStore interface {
	GetTask(ctx context.Context, id uuid.UUID) (*models.ProcessingTask, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus, errMsg string) error
	SetProgress(ctx context.Context, id uuid.UUID, progress int) error
	SetDocument(ctx context.Context, id, documentID uuid.UUID) error
}

// Files reads uploaded files; storage.Storage satisfies it.
type Files interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Invalidator drops cached recall results of a knowledge base.
type Invalidator interface {
	Invalidate(ctx context.Context, kbID int64) error
}

// Parsers are the four pipeline steps in order.
type Parsers struct {
	Paragraph *ParagraphParser
	Document  *DocumentParser
	Category  *CategoryParser
	Domain    *DomainParser
}

func NewParsers(classifier llm.Classifier, prompts llm.Prompts, pool Runner, split *splitter.Splitter, logger *zap.Logger) Parsers {
	return Parsers{
		Paragraph: NewParagraphParser(classifier, prompts, pool, split, logger),
		Document:  NewDocumentParser(classifier, prompts, logger),
		Category:  NewCategoryParser(classifier, prompts, logger),
		Domain:    NewDomainParser(classifier, prompts, logger),
	}
}

type Pipeline struct {
	store       Store
	tasks       TaskStore
	files       Files
	parsers     Parsers
	invalidator Invalidator
	logger      *zap.Logger
}

// NewPipeline wires the parsers to storage. invalidator may be nil.
func NewPipeline(store Store, tasks TaskStore, files Files, parsers Parsers, invalidator Invalidator, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:       store,
		tasks:       tasks,
		files:       files,
		parsers:     parsers,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Process runs the four parsers over the file of task taskID and saves the
// result in one transaction. Progress goes from 0 to 4 as parsers finish.
// A task that already succeeded is left alone.
func (p *Pipeline) Process(ctx context.Context, taskID uuid.UUID) error {
	task, err := p.tasks.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	log := p.logger.With(zap.String("task_id", taskID.String()), zap.Int64("kb_id", task.KBID))

	if task.Status == models.TaskStatusSucceed {
		log.Info("Task already done, skipping")
		return nil
	}
	if err := p.tasks.SetStatus(ctx, taskID, models.TaskStatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark task processing: %w", err)
	}

	started := time.Now()
	doc, err := p.process(ctx, task)
	if err != nil {
		log.Error("Ingestion failed", zap.Error(err))
		if serr := p.tasks.SetStatus(context.WithoutCancel(ctx), taskID, models.TaskStatusFailed, err.Error()); serr != nil {
			log.Error("Failed to mark task failed", zap.Error(serr))
		}
		return err
	}

	if err := p.tasks.SetDocument(ctx, taskID, doc.ID); err != nil {
		return fmt.Errorf("failed to attach document to task: %w", err)
	}
	if err := p.tasks.SetStatus(ctx, taskID, models.TaskStatusSucceed, ""); err != nil {
		return fmt.Errorf("failed to mark task succeeded: %w", err)
	}
	p.invalidate(ctx, task.KBID)

	log.Info("Ingestion done",
		zap.String("document_id", doc.ID.String()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (p *Pipeline) process(ctx context.Context, task *models.ProcessingTask) (*models.Document, error) {
	pages, err := p.readPages(ctx, task)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc := &models.Document{
		ID:            uuid.New(),
		KBID:          task.KBID,
		Name:          strings.TrimSuffix(task.FileName, filepath.Ext(task.FileName)),
		ParseStrategy: task.ParseStrategy,
		FilePath:      task.FilePath,
		Metadata:      models.Metadata{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	paragraphs, err := p.parsers.Paragraph.Parse(ctx, doc, pages)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, task.ID, 1)

	if err := p.parsers.Document.Parse(ctx, doc, paragraphs); err != nil {
		return nil, err
	}
	p.progress(ctx, task.ID, 2)

	knownCategories, err := p.store.ListCategories(ctx, task.KBID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	category, newCategory, err := p.parsers.Category.Classify(ctx, doc, knownCategories)
	if err != nil {
		return nil, err
	}
	p.progress(ctx, task.ID, 3)

	knownDomains, err := p.store.ListDomains(ctx, task.KBID)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	domain, newDomain, err := p.parsers.Domain.Classify(ctx, category, knownDomains)
	if err != nil {
		return nil, err
	}

	err = p.store.SaveParsedDocument(ctx, &repository.ParsedDocument{
		Document:    doc,
		Paragraphs:  paragraphs,
		Category:    category,
		NewCategory: newCategory,
		Domain:      domain,
		NewDomain:   newDomain,
	})
	if err != nil {
		return nil, err
	}
	p.progress(ctx, task.ID, models.TaskProgressDone)
	return doc, nil
}

func (p *Pipeline) readPages(ctx context.Context, task *models.ProcessingTask) ([]string, error) {
	rc, err := p.files.Get(ctx, task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", task.FilePath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", task.FilePath, err)
	}
	return ExtractPages(task.FileName, data)
}

// Rebuild reclassifies every document of a knowledge base from scratch and
// swaps the old categories and domains for the new ones. Documents and
// paragraphs are not touched. Queries keep seeing the old taxonomy until
// the swap commits.
func (p *Pipeline) Rebuild(ctx context.Context, kbID int64) error {
	docs, err := p.store.ListDocuments(ctx, kbID)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	started := time.Now()
	var tax repository.Taxonomy
	for _, doc := range docs {
		cat, isNew, err := p.parsers.Category.Classify(ctx, doc, tax.Categories)
		if err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
		if isNew {
			tax.Categories = append(tax.Categories, cat)
		}
		tax.Links = append(tax.Links, repository.DocumentLink{DocumentID: doc.ID, CategoryID: cat.ID})

		dom, isNew, err := p.parsers.Domain.Classify(ctx, cat, tax.Domains)
		if err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
		if isNew {
			tax.Domains = append(tax.Domains, dom)
		}
	}

	if err := p.store.ReplaceTaxonomy(ctx, kbID, &tax); err != nil {
		return err
	}
	p.invalidate(ctx, kbID)

	p.logger.Info("Knowledge base reindexed",
		zap.Int64("kb_id", kbID),
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (p *Pipeline) progress(ctx context.Context, taskID uuid.UUID, n int) {
	if err := p.tasks.SetProgress(ctx, taskID, n); err != nil {
		p.logger.Warn("Failed to record progress",
			zap.String("task_id", taskID.String()),
			zap.Int("progress", n),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) invalidate(ctx context.Context, kbID int64) {
	if p.invalidator == nil {
		return
	}
	if err := p.invalidator.Invalidate(ctx, kbID); err != nil {
		p.logger.Warn("Failed to invalidate recall cache", zap.Int64("kb_id", kbID), zap.Error(err))
	}
}
