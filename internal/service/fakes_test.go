package service

import (
	"context"
	"errors"
	"sync"

	"librag/internal/dto"
	"librag/internal/models"
	"librag/internal/repository"
	"librag/internal/retrieval"

	"github.com/google/uuid"
)

type fakeUsers struct {
	byID map[uuid.UUID]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uuid.UUID]*models.User{}}
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type fakeKBs struct {
	kbs     map[int64]*models.KnowledgeBase
	deleted []int64
}

func (f *fakeKBs) Create(_ context.Context, kb *models.KnowledgeBase) error {
	kb.ID = int64(len(f.kbs) + 1)
	f.kbs[kb.ID] = kb
	return nil
}

func (f *fakeKBs) GetByID(_ context.Context, id int64) (*models.KnowledgeBase, error) {
	if kb, ok := f.kbs[id]; ok {
		return kb, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeKBs) List(_ context.Context, userID uuid.UUID) ([]*models.KnowledgeBase, error) {
	var out []*models.KnowledgeBase
	for id := int64(1); id <= int64(len(f.kbs)); id++ {
		if kb, ok := f.kbs[id]; ok && (userID == uuid.Nil || kb.UserID == userID) {
			out = append(out, kb)
		}
	}
	return out, nil
}

func (f *fakeKBs) Update(_ context.Context, kb *models.KnowledgeBase) error {
	f.kbs[kb.ID] = kb
	return nil
}

func (f *fakeKBs) Delete(_ context.Context, id int64) error {
	delete(f.kbs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeTaxonomy struct {
	domains    []*models.Domain
	categories []*models.Category
	documents  []*models.Document
	links      map[uuid.UUID][]*models.Category
}

func (f *fakeTaxonomy) ListDomains(context.Context, int64) ([]*models.Domain, error) {
	return f.domains, nil
}

func (f *fakeTaxonomy) ListCategories(context.Context, int64) ([]*models.Category, error) {
	return f.categories, nil
}

func (f *fakeTaxonomy) ListCategoriesByDocument(_ context.Context, id uuid.UUID) ([]*models.Category, error) {
	return f.links[id], nil
}

func (f *fakeTaxonomy) ListDocuments(context.Context, int64) ([]*models.Document, error) {
	return f.documents, nil
}

type fakeQueue struct {
	err      error
	parsed   []uuid.UUID
	rebuilds []int64
}

func (f *fakeQueue) EnqueueParse(_ context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.parsed = append(f.parsed, id)
	return nil
}

func (f *fakeQueue) EnqueueRebuild(_ context.Context, kbID int64) error {
	if f.err != nil {
		return f.err
	}
	f.rebuilds = append(f.rebuilds, kbID)
	return nil
}

type fakeInvalidator struct{ kbIDs []int64 }

func (f *fakeInvalidator) Invalidate(_ context.Context, kbID int64) error {
	f.kbIDs = append(f.kbIDs, kbID)
	return nil
}

type fakeTasks struct {
	created  []*models.ProcessingTask
	statuses map[uuid.UUID]models.TaskStatus
	err      error
}

func (f *fakeTasks) CreateTask(_ context.Context, t *models.ProcessingTask) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, t)
	return nil
}

func (f *fakeTasks) ListTasks(_ context.Context, kbID int64) ([]*models.ProcessingTask, error) {
	var out []*models.ProcessingTask
	for _, t := range f.created {
		if t.KBID == kbID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) SetStatus(_ context.Context, id uuid.UUID, status models.TaskStatus, _ string) error {
	if f.statuses == nil {
		f.statuses = map[uuid.UUID]models.TaskStatus{}
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeTasks) FindActiveTask(_ context.Context, kbID int64, fileName string, strategy models.ParseStrategy) (*models.ProcessingTask, error) {
	for i := len(f.created) - 1; i >= 0; i-- {
		t := f.created[i]
		if t.KBID != kbID || t.FileName != fileName || t.ParseStrategy != strategy {
			continue
		}
		status := t.Status
		if s, ok := f.statuses[t.ID]; ok {
			status = s
		}
		switch {
		case status == models.TaskStatusPending, status == models.TaskStatusProcessing:
			return t, nil
		case status == models.TaskStatusSucceed && t.DocumentID != nil:
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeDocuments struct {
	documents  map[uuid.UUID]*models.Document
	paragraphs []*models.Paragraph
	deleted    []uuid.UUID
}

func (f *fakeDocuments) GetDocument(_ context.Context, id uuid.UUID) (*models.Document, error) {
	if d, ok := f.documents[id]; ok {
		return d, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDocuments) DeleteDocument(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeDocuments) GetParagraph(_ context.Context, id uuid.UUID) (*models.Paragraph, error) {
	for _, p := range f.paragraphs {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDocuments) ListParagraphsByDocument(_ context.Context, id uuid.UUID) ([]*models.Paragraph, error) {
	var out []*models.Paragraph
	for _, p := range f.paragraphs {
		if p.ParentID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeRetriever struct {
	records []dto.ParagraphRecord
	err     error
	calls   int
	opts    retrieval.Options
}

func (f *fakeRetriever) RetrieveObserved(_ context.Context, _ string, _ int64, opts retrieval.Options, observe retrieval.Observer) ([]dto.ParagraphRecord, error) {
	f.calls++
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	if observe != nil {
		observe(retrieval.Event{Stage: retrieval.StageComplete, Count: len(f.records)})
	}
	return f.records, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]dto.ParagraphRecord
}

func cacheKey(req dto.RecallRequest) string {
	return req.Question
}

func (f *fakeCache) Get(_ context.Context, req dto.RecallRequest) ([]dto.ParagraphRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.entries[cacheKey(req)]
	return r, ok
}

func (f *fakeCache) Set(_ context.Context, req dto.RecallRequest, records []dto.ParagraphRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = map[string][]dto.ParagraphRecord{}
	}
	f.entries[cacheKey(req)] = records
}

// allow grants every request; deny refuses them all with err.
type allow struct{}

func (allow) Authorize(context.Context, uuid.UUID, int64) error { return nil }

type deny struct{ err error }

func (d deny) Authorize(context.Context, uuid.UUID, int64) error { return d.err }

var errBoom = errors.New("boom")
