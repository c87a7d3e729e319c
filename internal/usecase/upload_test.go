package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

func TestUploadService_Ingest(t *testing.T) {
	t.Parallel()
	docs := newMemDocs()
	storage := newMemStorage()
	svc := NewUploadService(docs, storage)

	out, err := svc.Ingest(context.Background(), []UploadFile{
		{Name: "cv.pdf", MIME: "application/pdf", Data: []byte("%PDF-1.4")},
		{Name: `..\letters/expert letter.txt`, MIME: "text/plain", Data: []byte("hello")},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "cv.pdf", out[0].Filename)
	assert.Equal(t, int64(8), out[0].Size)
	assert.Equal(t, "documents/"+out[0].ID+"/cv.pdf", out[0].StorageKey)
	assert.Equal(t, "documents/"+out[1].ID+"/expert_letter.txt", out[1].StorageKey)
	assert.Equal(t, []byte("hello"), storage.objects[out[1].StorageKey])

	got, err := docs.Get(context.Background(), out[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", got.MIME)
}

func TestUploadService_Ingest_Invalid(t *testing.T) {
	t.Parallel()
	svc := NewUploadService(newMemDocs(), newMemStorage())

	_, err := svc.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	tooMany := make([]UploadFile, MaxDocumentsPerRequest+1)
	_, err = svc.Ingest(context.Background(), tooMany)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Ingest(context.Background(), []UploadFile{{Name: "empty.txt"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestUploadService_Ingest_RepoFailureRemovesObject(t *testing.T) {
	t.Parallel()
	docs := newMemDocs()
	docs.err = errors.New("insert failed")
	storage := newMemStorage()
	svc := NewUploadService(docs, storage)

	_, err := svc.Ingest(context.Background(), []UploadFile{{Name: "cv.txt", Data: []byte("x")}})
	require.Error(t, err)
	assert.Empty(t, storage.objects)
}

func TestUploadService_Ingest_StorageFailure(t *testing.T) {
	t.Parallel()
	storage := newMemStorage()
	storage.putErr = errors.New("bucket gone")
	docs := newMemDocs()

	_, err := NewUploadService(docs, storage).Ingest(context.Background(), []UploadFile{{Name: "cv.txt", Data: []byte("x")}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bucket gone"))
	assert.Empty(t, docs.docs)
}

func TestStorageKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "documents/x/document", storageKey("x", ""))
	assert.Equal(t, "documents/x/passwd", storageKey("x", "../../etc/passwd"))
	assert.Equal(t, "documents/x/a_b.docx", storageKey("x", "a b.docx"))
}
