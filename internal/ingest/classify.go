package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"librag/internal/idmap"
	"librag/internal/llm"
	"librag/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownChoice means the model picked an existing node that was not
// among the offered ones and gave no name for a new one either.
var ErrUnknownChoice = errors.New("model chose an unknown node")

type DocumentParser struct {
	classifier llm.Classifier
	prompts    llm.Prompts
	logger     *zap.Logger
	now        func() time.Time
}

func NewDocumentParser(classifier llm.Classifier, prompts llm.Prompts, logger *zap.Logger) *DocumentParser {
	return &DocumentParser{
		classifier: classifier,
		prompts:    prompts,
		logger:     logger,
		now:        time.Now,
	}
}

// Parse names and describes doc from the summaries of its paragraphs and
// stamps the lineage string on every paragraph.
func (p *DocumentParser) Parse(ctx context.Context, doc *models.Document, paragraphs []*models.Paragraph) error {
	summaries := make([]string, 0, len(paragraphs))
	for _, para := range paragraphs {
		s := para.Summary
		if s == "" {
			s = para.Name
		}
		if s != "" {
			summaries = append(summaries, s)
		}
	}

	now := p.now()
	msgs, err := p.prompts.Render(llm.PromptDocumentSummary, promptVars{
		Now:       now.Format(models.MetaTimeLayout),
		FileName:  doc.Name,
		Summaries: summaries,
	})
	if err != nil {
		return err
	}
	res, err := p.classifier.Chat(ctx, msgs, 0)
	if err != nil {
		return fmt.Errorf("failed to summarise document: %w", err)
	}
	obj, err := firstObject(res)
	if err != nil {
		return err
	}

	if name := sanitizeUTF8(strings.TrimSpace(llm.String(obj["document_name"]))); name != "" {
		doc.Name = name
	}
	doc.Description = sanitizeUTF8(llm.String(pick(obj, "description", "document_description")))
	if doc.Description == "" {
		return fmt.Errorf("%w: document summary has no description", llm.ErrMalformedResponse)
	}
	doc.Metadata = doc.Metadata.Touch(now)
	doc.UpdatedAt = now

	lineage := ParentDescription(doc.Description)
	for _, para := range paragraphs {
		para.ParentDescription = lineage
	}
	return nil
}

// choiceKeys names the fields of one classify prompt.
type choiceKeys struct {
	isNew       string
	id          string
	name        string
	description string
}

var (
	categoryKeys = choiceKeys{"new_classification", "category_id", "category_name", "category_description"}
	domainKeys   = choiceKeys{"new_domain", "domain_id", "domain_name", "domain_description"}
)

type option struct {
	id          uuid.UUID
	name        string
	description string
}

// choice is the model's verdict: an existing option, or a new node.
type choice struct {
	existing    *option
	name        string
	description string
}

// chooser asks the model to file an item under one of the offered options
// or to propose a new one. Options are offered under numeric aliases.
type chooser struct {
	classifier llm.Classifier
	prompts    llm.Prompts
	prompt     string
	keys       choiceKeys
}

func (c *chooser) choose(ctx context.Context, now time.Time, item map[string]string, options []option) (choice, error) {
	remap := idmap.New()
	byID := make(map[string]*option, len(options))
	candidates := make([]map[string]string, 0, len(options))
	for i := range options {
		o := &options[i]
		alias := remap.Add(o.id.String(), o.description)
		byID[o.id.String()] = o
		candidates = append(candidates, map[string]string{
			c.keys.id:          alias,
			c.keys.name:        o.name,
			c.keys.description: o.description,
		})
	}

	msgs, err := c.prompts.Render(c.prompt, promptVars{
		Now:        now.Format(models.MetaTimeLayout),
		Item:       item,
		Candidates: candidates,
	})
	if err != nil {
		return choice{}, err
	}
	res, err := c.classifier.Chat(ctx, msgs, 0)
	if err != nil {
		return choice{}, err
	}
	obj, err := firstObject(res)
	if err != nil {
		return choice{}, err
	}

	ch := choice{
		name:        sanitizeUTF8(strings.TrimSpace(llm.String(pick(obj, c.keys.name, "name")))),
		description: sanitizeUTF8(llm.String(pick(obj, "description", c.keys.description))),
	}
	if !llm.Bool(obj[c.keys.isNew]) {
		alias := llm.String(obj[c.keys.id])
		if id, ok := remap.External(alias); ok {
			ch.existing = byID[id]
			return ch, nil
		}
		if ch.name == "" {
			return choice{}, fmt.Errorf("%w: %s %q", ErrUnknownChoice, c.keys.id, alias)
		}
	}
	if ch.name == "" {
		return choice{}, fmt.Errorf("%w: new node has no %s", llm.ErrMalformedResponse, c.keys.name)
	}
	return ch, nil
}

type CategoryParser struct {
	chooser chooser
	logger  *zap.Logger
	now     func() time.Time
}

func NewCategoryParser(classifier llm.Classifier, prompts llm.Prompts, logger *zap.Logger) *CategoryParser {
	return &CategoryParser{
		chooser: chooser{classifier: classifier, prompts: prompts, prompt: llm.PromptCategoryClassify, keys: categoryKeys},
		logger:  logger,
		now:     time.Now,
	}
}

// Classify files doc under one of known or under a new category. The
// returned category is one of known (description refreshed) unless isNew.
// A new category has no parent yet.
func (p *CategoryParser) Classify(ctx context.Context, doc *models.Document, known []*models.Category) (cat *models.Category, isNew bool, err error) {
	options := make([]option, len(known))
	for i, c := range known {
		options[i] = option{id: c.ID, name: c.Name, description: c.Description}
	}

	now := p.now()
	ch, err := p.chooser.choose(ctx, now, map[string]string{
		"document_name":        doc.Name,
		"document_description": doc.Description,
	}, options)
	if err != nil {
		return nil, false, fmt.Errorf("failed to classify document: %w", err)
	}

	if ch.existing != nil {
		for _, c := range known {
			if c.ID == ch.existing.id {
				cat = c
				break
			}
		}
		if ch.description != "" {
			cat.Description = ch.description
		}
	} else {
		cat = &models.Category{
			ID:          uuid.New(),
			KBID:        doc.KBID,
			Name:        ch.name,
			Description: ch.description,
			CreatedAt:   now,
		}
		isNew = true
	}
	cat.Metadata = cat.Metadata.Touch(now)
	cat.UpdatedAt = now

	p.logger.Info("Document classified",
		zap.String("document", doc.Name),
		zap.String("category", cat.Name),
		zap.Bool("new", isNew),
	)
	return cat, isNew, nil
}

type DomainParser struct {
	chooser chooser
	logger  *zap.Logger
	now     func() time.Time
}

func NewDomainParser(classifier llm.Classifier, prompts llm.Prompts, logger *zap.Logger) *DomainParser {
	return &DomainParser{
		chooser: chooser{classifier: classifier, prompts: prompts, prompt: llm.PromptDomainClassify, keys: domainKeys},
		logger:  logger,
		now:     time.Now,
	}
}

// Classify places cat in one of known or in a new domain. cat is linked to
// the domain when it has no parent yet.
func (p *DomainParser) Classify(ctx context.Context, cat *models.Category, known []*models.Domain) (dom *models.Domain, isNew bool, err error) {
	options := make([]option, len(known))
	for i, d := range known {
		options[i] = option{id: d.ID, name: d.Name, description: d.Description}
	}

	now := p.now()
	ch, err := p.chooser.choose(ctx, now, map[string]string{
		"category_name":        cat.Name,
		"category_description": cat.Description,
	}, options)
	if err != nil {
		return nil, false, fmt.Errorf("failed to classify category: %w", err)
	}

	if ch.existing != nil {
		for _, d := range known {
			if d.ID == ch.existing.id {
				dom = d
				break
			}
		}
		if ch.description != "" {
			dom.Description = ch.description
		}
	} else {
		dom = &models.Domain{
			ID:          uuid.New(),
			KBID:        cat.KBID,
			Name:        ch.name,
			Description: ch.description,
			CreatedAt:   now,
		}
		isNew = true
	}
	dom.Metadata = dom.Metadata.Touch(now)
	dom.UpdatedAt = now

	if cat.ParentID == nil {
		id := dom.ID
		cat.ParentID = &id
	}

	p.logger.Info("Category placed",
		zap.String("category", cat.Name),
		zap.String("domain", dom.Name),
		zap.Bool("new", isNew),
	)
	return dom, isNew, nil
}

// firstObject reads a reply as one dict. A list answer yields its first
// dict.
func firstObject(res llm.Result) (llm.ObjectResult, error) {
	if obj, ok := res.(llm.ObjectResult); ok {
		return obj, nil
	}
	for _, item := range res.Items() {
		if m, ok := item.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: expected a dict", llm.ErrMalformedResponse)
}

func pick(obj llm.ObjectResult, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
