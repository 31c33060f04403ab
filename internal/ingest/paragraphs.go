// Package ingest turns uploaded files into taxonomy nodes: paragraphs,
// a described document, its category and the category's domain.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"librag/internal/llm"
	"librag/internal/models"
	"librag/internal/splitter"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownStrategy = errors.New("unknown parse strategy")
	ErrEmptyDocument   = errors.New("document has no text")
)

// ParentDescriptionPrefix heads the lineage string stored on every paragraph.
const ParentDescriptionPrefix = "此段落来源描述:"

// ParentDescription is the lineage string for paragraphs of a document with
// the given description.
func ParentDescription(documentDescription string) string {
	return ParentDescriptionPrefix + "<" + documentDescription + ">"
}

// PagePosition is the position label of a paragraph taken from page n.
func PagePosition(n int) string {
	return fmt.Sprintf("第%d页", n)
}

// PageNumber reverses PagePosition.
func PageNumber(position string) (int, bool) {
	rest, ok := strings.CutPrefix(position, "第")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, "页")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

func chunkPosition(n int) string {
	return fmt.Sprintf("第%d段", n)
}

// Runner runs n calls with bounded concurrency; *workerpool.Pool
// satisfies it.
type Runner interface {
	Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
}

// promptVars carries every field the ingestion prompts reference.
type promptVars struct {
	Now        string
	FileName   string
	Page       int
	Text       string
	Summaries  []string
	Item       any
	Candidates any
}

type ParagraphParser struct {
	classifier llm.Classifier
	prompts    llm.Prompts
	pool       Runner
	splitter   *splitter.Splitter
	logger     *zap.Logger
	now        func() time.Time
}

// NewParagraphParser builds the first parser of the pipeline. split is used
// by the agentic_chunking strategy.
func NewParagraphParser(classifier llm.Classifier, prompts llm.Prompts, pool Runner, split *splitter.Splitter, logger *zap.Logger) *ParagraphParser {
	return &ParagraphParser{
		classifier: classifier,
		prompts:    prompts,
		pool:       pool,
		splitter:   split,
		logger:     logger,
		now:        time.Now,
	}
}

// Parse cuts the pages of doc into paragraphs according to its parse
// strategy. ParentID and KBID are set; ParentDescription is left for the
// document parser.
func (p *ParagraphParser) Parse(ctx context.Context, doc *models.Document, pages []string) ([]*models.Paragraph, error) {
	if strings.TrimSpace(strings.Join(pages, "")) == "" {
		return nil, ErrEmptyDocument
	}

	var (
		paragraphs []*models.Paragraph
		err        error
	)
	switch doc.ParseStrategy {
	case models.ParseStrategyPageSplit:
		paragraphs, err = p.byPage(ctx, doc, pages)
	case models.ParseStrategyAgenticChunking:
		paragraphs, err = p.byChunk(ctx, doc, pages)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, doc.ParseStrategy)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Info("Paragraphs parsed",
		zap.String("document", doc.Name),
		zap.String("strategy", string(doc.ParseStrategy)),
		zap.Int("pages", len(pages)),
		zap.Int("paragraphs", len(paragraphs)),
	)
	return paragraphs, nil
}

// byPage makes one model call per non-blank page on the pool. Paragraphs
// come out in page order.
func (p *ParagraphParser) byPage(ctx context.Context, doc *models.Document, pages []string) ([]*models.Paragraph, error) {
	perPage := make([][]*models.Paragraph, len(pages))
	now := p.now()

	err := p.pool.Run(ctx, len(pages), func(ctx context.Context, i int) error {
		if strings.TrimSpace(pages[i]) == "" {
			return nil
		}
		msgs, err := p.prompts.Render(llm.PromptPageParse, promptVars{
			Now:      now.Format(models.MetaTimeLayout),
			FileName: doc.Name,
			Page:     i + 1,
			Text:     pages[i],
		})
		if err != nil {
			return err
		}
		res, err := p.classifier.Chat(ctx, msgs, 0)
		if err != nil {
			return fmt.Errorf("failed to parse page %d: %w", i+1, err)
		}

		for _, obj := range objects(res) {
			para := p.newParagraph(doc, obj, now)
			if para.Content == "" {
				continue
			}
			para.Position = PagePosition(i + 1)
			para.SourceText = pages[i]
			perPage[i] = append(perPage[i], para)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []*models.Paragraph
	for _, ps := range perPage {
		out = append(out, ps...)
	}
	return out, nil
}

// byChunk splits the whole text and asks the model to name and summarise
// every chunk. The chunk itself is the paragraph content.
func (p *ParagraphParser) byChunk(ctx context.Context, doc *models.Document, pages []string) ([]*models.Paragraph, error) {
	chunks := p.splitter.Split(strings.Join(pages, "\n"))
	out := make([]*models.Paragraph, len(chunks))
	now := p.now()

	err := p.pool.Run(ctx, len(chunks), func(ctx context.Context, i int) error {
		msgs, err := p.prompts.Render(llm.PromptChunkSummary, promptVars{
			Now:      now.Format(models.MetaTimeLayout),
			FileName: doc.Name,
			Text:     chunks[i],
		})
		if err != nil {
			return err
		}
		res, err := p.classifier.Chat(ctx, msgs, 0)
		if err != nil {
			return fmt.Errorf("failed to summarise chunk %d: %w", i+1, err)
		}

		objs := objects(res)
		if len(objs) == 0 {
			return fmt.Errorf("%w: chunk summary is not a dict", llm.ErrMalformedResponse)
		}

		para := p.newParagraph(doc, objs[0], now)
		para.Content = chunks[i]
		para.SourceText = chunks[i]
		para.Position = chunkPosition(i + 1)
		out[i] = para
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// objects reads a reply as a list of dicts. A bare dict is a list of one;
// models often answer a one-item list that way.
func objects(res llm.Result) []llm.ObjectResult {
	if obj, ok := res.(llm.ObjectResult); ok {
		for _, key := range []string{"paragraph_name", "summary", "content"} {
			if _, ok := obj[key]; ok {
				return []llm.ObjectResult{obj}
			}
		}
	}
	var out []llm.ObjectResult
	for _, item := range res.Items() {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func (p *ParagraphParser) newParagraph(doc *models.Document, obj llm.ObjectResult, now time.Time) *models.Paragraph {
	return &models.Paragraph{
		ID:        uuid.New(),
		KBID:      doc.KBID,
		ParentID:  doc.ID,
		Name:      sanitizeUTF8(llm.String(obj["paragraph_name"])),
		Summary:   sanitizeUTF8(llm.String(obj["summary"])),
		Content:   sanitizeUTF8(llm.String(obj["content"])),
		Keywords:  llm.Strings(obj["keywords"]),
		Metadata:  models.Metadata{}.Touch(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
