// Package selector narrows one level of the knowledge taxonomy to the
// entities an LLM judges relevant to a question. The four levels share one
// Stage implementation and differ only in their Level description.
package selector

import (
	"context"
	"fmt"
	"time"

	"librag/internal/idmap"
	"librag/internal/llm"
	"librag/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FallbackPolicy decides what a restricted stage offers the model when no
// candidate is reachable from the selected parents.
type FallbackPolicy int

const (
	// NoFallback leaves the stage empty; nothing is selected.
	NoFallback FallbackPolicy = iota
	// FallbackToLevel offers every entity of the level instead.
	FallbackToLevel
)

func (p FallbackPolicy) String() string {
	if p == FallbackToLevel {
		return "fallback_to_level"
	}
	return "no_fallback"
}

type Candidate struct {
	ID          uuid.UUID
	Name        string
	Description string
}

// Item is the display form of a selected entity.
type Item struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Selection struct {
	IDs   []uuid.UUID
	Items []Item
}

func (s Selection) Empty() bool {
	return len(s.IDs) == 0
}

type Request struct {
	KBID     int64
	Question string
	// Parents are the IDs selected by the previous stage. The root level
	// ignores them.
	Parents []uuid.UUID
}

type Selector interface {
	Select(ctx context.Context, req Request) (Selection, error)
}

// Level describes one taxonomy level to a Stage.
type Level struct {
	Name      string // singular, used for the <name>_id and <name>_description keys
	Plural    string // used for the candidate list and the selected_<plural> key
	Prompt    string
	GroupSize int
	Fallback  FallbackPolicy

	// All loads the whole level. Nil when the level has no unrestricted pool.
	All func(ctx context.Context, kbID int64) ([]Candidate, error)
	// Children loads the candidates reachable from parents. Nil for the root.
	Children func(ctx context.Context, kbID int64, parents []uuid.UUID) ([]Candidate, error)
}

type Stage struct {
	level      Level
	classifier llm.Classifier
	prompts    llm.Prompts
	logger     *zap.Logger
	now        func() time.Time
}

func NewStage(level Level, classifier llm.Classifier, prompts llm.Prompts, logger *zap.Logger) *Stage {
	return &Stage{
		level:      level,
		classifier: classifier,
		prompts:    prompts,
		logger:     logger.With(zap.String("level", level.Name)),
		now:        time.Now,
	}
}

func (s *Stage) Level() Level {
	return s.level
}

type promptVars struct {
	Now        string
	Question   string
	Candidates []map[string]string
}

// Select offers the level's candidates to the model and returns the ones it
// picked, in the order the model returned them. Aliases the model invents
// are dropped. No model call is made when there is no candidate.
func (s *Stage) Select(ctx context.Context, req Request) (Selection, error) {
	remap := idmap.New()
	byID := make(map[string]Candidate)
	add := func(cs []Candidate) {
		for _, c := range cs {
			key := c.ID.String()
			remap.Add(key, c.Description)
			byID[key] = c
		}
	}

	var all []Candidate
	if s.level.All != nil {
		var err error
		if all, err = s.level.All(ctx, req.KBID); err != nil {
			return Selection{}, fmt.Errorf("failed to load %s: %w", s.level.Plural, err)
		}
		add(all)
	}

	candidates := all
	if s.level.Children != nil {
		var children []Candidate
		if len(req.Parents) > 0 {
			var err error
			if children, err = s.level.Children(ctx, req.KBID, req.Parents); err != nil {
				return Selection{}, fmt.Errorf("failed to load %s of selected parents: %w", s.level.Plural, err)
			}
			add(children)
		}
		candidates = children
		if len(children) == 0 && s.level.Fallback == FallbackToLevel {
			s.logger.Debug("No candidates under selected parents, offering the whole level",
				zap.Int("parents", len(req.Parents)),
				zap.Int("candidates", len(all)),
			)
			candidates = all
		}
	}

	if len(candidates) == 0 {
		return Selection{}, nil
	}

	offered := make([]map[string]string, 0, len(candidates))
	for _, c := range candidates {
		alias, _ := remap.Numeric(c.ID.String())
		offered = append(offered, map[string]string{
			s.level.Name + "_id":          alias,
			s.level.Name + "_description": c.Description,
		})
	}

	msgs, err := s.prompts.Render(s.level.Prompt, promptVars{
		Now:        s.now().Format(models.MetaTimeLayout),
		Question:   req.Question,
		Candidates: offered,
	})
	if err != nil {
		return Selection{}, err
	}

	res, err := s.classifier.Chat(ctx, msgs, s.level.GroupSize)
	if err != nil {
		return Selection{}, fmt.Errorf("failed to select %s: %w", s.level.Plural, err)
	}

	aliases := llm.SelectedIDs(res, "selected_"+s.level.Plural)
	external := remap.Resolve(aliases)

	sel := Selection{
		IDs:   make([]uuid.UUID, 0, len(external)),
		Items: make([]Item, 0, len(external)),
	}
	for _, id := range external {
		c := byID[id]
		sel.IDs = append(sel.IDs, c.ID)
		sel.Items = append(sel.Items, Item{ID: c.ID, Name: c.Name})
	}

	s.logger.Info("Selection done",
		zap.Int("offered", len(candidates)),
		zap.Int("returned", len(aliases)),
		zap.Int("selected", len(sel.IDs)),
	)
	return sel, nil
}
