package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"librag/internal/dto"
	"librag/internal/ingest"
	"librag/internal/models"
	"librag/internal/splitter"
	"librag/pkg/config"
	"librag/pkg/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type documentFixture struct {
	files   *storage.LocalStorage
	tasks   *fakeTasks
	docs    *fakeDocuments
	queue   *fakeQueue
	inval   *fakeInvalidator
	service *DocumentService
}

func newDocumentFixture(t *testing.T, access Authorizer) *documentFixture {
	files, err := storage.NewLocalStorage(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	f := &documentFixture{
		files: files,
		tasks: &fakeTasks{},
		docs:  &fakeDocuments{documents: map[uuid.UUID]*models.Document{}},
		queue: &fakeQueue{},
		inval: &fakeInvalidator{},
	}
	f.service = NewDocumentService(f.files, f.tasks, f.docs, f.queue, access, f.inval, zap.NewNop())
	return f
}

func TestDocumentService_Upload(t *testing.T) {
	f := newDocumentFixture(t, allow{})
	ctx := context.Background()

	resp, err := f.service.UploadDocument(ctx, uuid.Nil, 7, "../Fees.TXT", "", strings.NewReader("Annual fee is 10."))
	require.NoError(t, err)

	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "page_split", resp.ParseStrategy)
	assert.Equal(t, "Fees.TXT", resp.FileName)
	require.Len(t, f.tasks.created, 1)
	task := f.tasks.created[0]
	assert.Equal(t, []uuid.UUID{task.ID}, f.queue.parsed)
	assert.Equal(t, "7/"+task.ID.String()+".txt", task.FilePath)

	rc, err := f.files.Get(ctx, task.FilePath)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "Annual fee is 10.", string(data))
}

func TestDocumentService_UploadRejects(t *testing.T) {
	f := newDocumentFixture(t, allow{})
	ctx := context.Background()

	_, err := f.service.UploadDocument(ctx, uuid.Nil, 7, "sheet.xlsx", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = f.service.UploadDocument(ctx, uuid.Nil, 7, "a.pdf", "by_magic", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	f = newDocumentFixture(t, deny{ErrForbidden})
	_, err = f.service.UploadDocument(ctx, uuid.New(), 7, "a.pdf", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.tasks.created)
}

func TestDocumentService_UploadQueueFailure(t *testing.T) {
	f := newDocumentFixture(t, allow{})
	f.queue.err = errBoom

	_, err := f.service.UploadDocument(context.Background(), uuid.Nil, 7, "a.md", models.ParseStrategyAgenticChunking, strings.NewReader("x"))
	require.ErrorIs(t, err, errBoom)

	task := f.tasks.created[0]
	assert.Equal(t, models.TaskStatusFailed, f.tasks.statuses[task.ID])
}

func TestDocumentService_UploadRecordsMD5(t *testing.T) {
	f := newDocumentFixture(t, allow{})

	resp, err := f.service.UploadDocument(context.Background(), uuid.Nil, 7, "fees.txt", "", strings.NewReader("hello"))
	require.NoError(t, err)

	require.Len(t, f.tasks.created, 1)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", f.tasks.created[0].FileHash)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", resp.FileMD5)
}

func TestDocumentService_UploadDuplicate(t *testing.T) {
	f := newDocumentFixture(t, allow{})
	ctx := context.Background()

	_, err := f.service.UploadDocument(ctx, uuid.Nil, 7, "fees.pdf", models.ParseStrategyPageSplit, strings.NewReader("v1"))
	require.NoError(t, err)
	first := f.tasks.created[0]

	_, err = f.service.UploadDocument(ctx, uuid.Nil, 7, "dir/fees.pdf", "", strings.NewReader("v2"))
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, f.tasks.created, 1)
	assert.Len(t, f.queue.parsed, 1)

	// Another strategy, another knowledge base or another name is a new upload.
	_, err = f.service.UploadDocument(ctx, uuid.Nil, 7, "fees.pdf", models.ParseStrategyAgenticChunking, strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = f.service.UploadDocument(ctx, uuid.Nil, 8, "fees.pdf", "", strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = f.service.UploadDocument(ctx, uuid.Nil, 7, "fees-2024.pdf", "", strings.NewReader("v1"))
	require.NoError(t, err)

	// Parsed documents still block; a failed task or a deleted document does not.
	docID := uuid.New()
	first.DocumentID = &docID
	f.tasks.statuses = map[uuid.UUID]models.TaskStatus{first.ID: models.TaskStatusSucceed}
	_, err = f.service.UploadDocument(ctx, uuid.Nil, 7, "fees.pdf", "", strings.NewReader("v2"))
	require.ErrorIs(t, err, ErrDuplicate)

	first.DocumentID = nil
	_, err = f.service.UploadDocument(ctx, uuid.Nil, 7, "fees.pdf", "", strings.NewReader("v2"))
	require.NoError(t, err)
	retried := f.tasks.created[len(f.tasks.created)-1]

	f.tasks.statuses[retried.ID] = models.TaskStatusFailed
	_, err = f.service.UploadDocument(ctx, uuid.Nil, 7, "fees.pdf", "", strings.NewReader("v3"))
	require.NoError(t, err)
}

func TestDocumentService_ListTasks(t *testing.T) {
	f := newDocumentFixture(t, allow{})
	ctx := context.Background()
	for i, kb := range []int64{1, 2, 1} {
		_, err := f.service.UploadDocument(ctx, uuid.Nil, kb, fmt.Sprintf("a%d.txt", i), "", strings.NewReader("x"))
		require.NoError(t, err)
	}

	tasks, err := f.service.ListTasks(ctx, uuid.Nil, 1)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestDocumentService_Paragraphs(t *testing.T) {
	f := newDocumentFixture(t, allow{})
	doc := &models.Document{ID: uuid.New(), KBID: 3, ParseStrategy: models.ParseStrategyPageSplit}
	f.docs.documents[doc.ID] = doc
	for _, pos := range []string{ingest.PagePosition(10), "preface", ingest.PagePosition(2), ingest.PagePosition(2)} {
		f.docs.paragraphs = append(f.docs.paragraphs, &models.Paragraph{ID: uuid.New(), ParentID: doc.ID, Position: pos})
	}
	secondOnPage2 := f.docs.paragraphs[3].ID

	got, err := f.service.Paragraphs(context.Background(), uuid.Nil, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"第2页", "第2页", "第10页", "preface"},
		[]string{got[0].Position, got[1].Position, got[2].Position, got[3].Position})
	assert.Equal(t, secondOnPage2.String(), got[1].ID)

	_, err = f.service.Paragraphs(context.Background(), uuid.Nil, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentService_Paragraph(t *testing.T) {
	f := newDocumentFixture(t, deny{ErrForbidden})
	p := &models.Paragraph{ID: uuid.New(), KBID: 3}
	f.docs.paragraphs = append(f.docs.paragraphs, p)

	_, err := f.service.Paragraph(context.Background(), uuid.New(), p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.Paragraph(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentService_DeleteDocument(t *testing.T) {
	f := newDocumentFixture(t, allow{})
	ctx := context.Background()
	key, err := f.files.Store(ctx, strings.NewReader("x"), "3/doc.txt")
	require.NoError(t, err)
	doc := &models.Document{ID: uuid.New(), KBID: 3, FilePath: key}
	f.docs.documents[doc.ID] = doc

	require.NoError(t, f.service.DeleteDocument(ctx, uuid.Nil, doc.ID))
	assert.Equal(t, []uuid.UUID{doc.ID}, f.docs.deleted)
	assert.Equal(t, []int64{3}, f.inval.kbIDs)

	_, err = f.files.Get(ctx, key)
	assert.Error(t, err)
}

func TestSplitText(t *testing.T) {
	defaults := config.SplitterConfig{Granularity: "sentence", ChunkSize: 1024, OverlapUnits: 2}
	zero := 0

	resp, err := SplitText(&dto.SplitRequest{
		Text: "Para one.\n\nPara two.", Granularity: "paragraph", ChunkSize: 100, OverlapUnits: &zero,
	}, defaults)
	require.NoError(t, err)
	assert.Equal(t, []string{"Para one.", "Para two."}, resp.Chunks)

	resp, err = SplitText(&dto.SplitRequest{Text: "", ChunkSize: 10}, defaults)
	require.NoError(t, err)
	assert.NotNil(t, resp.Chunks)
	assert.Empty(t, resp.Chunks)

	_, err = SplitText(&dto.SplitRequest{Text: "x", ChunkSize: 0}, defaults)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, splitter.ErrInvalidChunkSize)

	_, err = SplitText(&dto.SplitRequest{Text: "x", Granularity: "word", ChunkSize: 5}, defaults)
	assert.ErrorIs(t, err, splitter.ErrUnknownGranularity)
}
