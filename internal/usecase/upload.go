package usecase

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// MaxDocumentsPerRequest bounds both uploads and evaluations.
const MaxDocumentsPerRequest = 10

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadFile is one accepted multipart part.
type UploadFile struct {
	Name string
	MIME string
	Data []byte
}

// UploadService stores exhibit bytes in object storage and their metadata in the repository.
type UploadService struct {
	Docs    domain.DocumentRepository
	Storage domain.ObjectStorage
}

// NewUploadService constructs an UploadService.
func NewUploadService(d domain.DocumentRepository, s domain.ObjectStorage) UploadService {
	return UploadService{Docs: d, Storage: s}
}

// Ingest stores every file and returns the created documents in input order.
func (s UploadService) Ingest(ctx domain.Context, files []UploadFile) ([]domain.Document, error) {
	if len(files) == 0 || len(files) > MaxDocumentsPerRequest {
		return nil, fmt.Errorf("op=usecase.Ingest: %w: between 1 and %d files required", domain.ErrInvalidArgument, MaxDocumentsPerRequest)
	}
	out := make([]domain.Document, 0, len(files))
	for _, f := range files {
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("op=usecase.Ingest: %w: %q is empty", domain.ErrInvalidArgument, f.Name)
		}
		id := uuid.New().String()
		doc := domain.Document{
			ID:         id,
			Filename:   f.Name,
			MIME:       f.MIME,
			Size:       int64(len(f.Data)),
			StorageKey: storageKey(id, f.Name),
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.Storage.Put(ctx, doc.StorageKey, doc.MIME, f.Data); err != nil {
			return nil, fmt.Errorf("op=usecase.Ingest: %w", err)
		}
		if _, err := s.Docs.Create(ctx, doc); err != nil {
			_ = s.Storage.Delete(ctx, doc.StorageKey)
			return nil, fmt.Errorf("op=usecase.Ingest: %w", err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func storageKey(id, name string) string {
	base := unsafeKeyChars.ReplaceAllString(path.Base(strings.ReplaceAll(name, "\\", "/")), "_")
	if base == "" || base == "." || base == "_" {
		base = "document"
	}
	return "documents/" + id + "/" + base
}
