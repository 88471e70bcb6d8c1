package services

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/kadunajudiciary/courtsync-go/internal/application/mutation"
	"github.com/kadunajudiciary/courtsync-go/internal/application/reconcile"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/entities/court"
	"github.com/kadunajudiciary/courtsync-go/internal/domain/session"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/transport"
)

// DocumentService handles case filings: the per-case document list plus
// upload and download of the binary content. Downloads bypass the cache;
// only the metadata list is cached.
type DocumentService struct {
	store       *caching.Store
	client      *transport.Client
	coordinator *mutation.Coordinator
	policy      *reconcile.Policy
	session     *session.Session
	logger      *logging.ChanneledLogger
	now         func() time.Time
}

func NewDocumentService(store *caching.Store, client *transport.Client, coordinator *mutation.Coordinator, policy *reconcile.Policy, sess *session.Session, logger *logging.ChanneledLogger) *DocumentService {
	return &DocumentService{
		store:       store,
		client:      client,
		coordinator: coordinator,
		policy:      policy,
		session:     sess,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListForCase returns the filing metadata for one case, cached.
func (s *DocumentService) ListForCase(ctx context.Context, caseID string) ([]court.Document, error) {
	key := caching.CaseDocuments(caseID)
	v, err := s.store.Read(ctx, key, func(fctx context.Context) (any, error) {
		var docs []court.Document
		if err := s.client.Get(fctx, "/cases/"+url.PathEscape(caseID)+"/documents", &docs); err != nil {
			return nil, err
		}
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]court.Document), nil
}

// Upload files a document against a case. The metadata list gains an entry
// under a temporary id immediately; the binary transfer itself is not
// optimistic.
func (s *DocumentService) Upload(ctx context.Context, caseID, filename, mimeType string, size int64, content io.Reader) (*court.Document, error) {
	listKey := caching.CaseDocuments(caseID)
	uploadedBy := ""
	if user := s.session.User(); user != nil {
		uploadedBy = user.ID
	}
	optimistic := court.Document{
		ID:         court.NewTempID(s.now()),
		CaseID:     caseID,
		Filename:   filename,
		MimeType:   mimeType,
		SizeBytes:  size,
		UploadedBy: uploadedBy,
		UploadedAt: s.now(),
	}

	result, err := s.coordinator.Mutate(ctx, mutation.Operation{
		Name:               reconcile.MutationDocumentUpload,
		AffectedKeys:       []caching.Key{listKey},
		InvalidateOnSettle: s.policy.ForMutation(reconcile.MutationDocumentUpload, caseID),
		Patch: func(store *caching.Store) {
			if e, ok := store.Get(listKey); ok && e.HasValue() {
				docs, _ := e.Value.([]court.Document)
				out := make([]court.Document, 0, len(docs)+1)
				out = append(out, docs...)
				store.Set(listKey, append(out, optimistic))
			}
		},
		Call: func(cctx context.Context) (any, error) {
			var uploaded court.Document
			err := s.client.Upload(cctx, "/cases/"+url.PathEscape(caseID)+"/documents",
				"file", filename, content, map[string]string{"mimeType": mimeType}, &uploaded)
			if err != nil {
				return nil, err
			}
			return &uploaded, nil
		},
		OnSuccess: func(store *caching.Store, result any) {
			uploaded := result.(*court.Document)
			if e, ok := store.Get(listKey); ok && e.HasValue() {
				store.Set(listKey, swapDocument(e.Value, optimistic.ID, *uploaded))
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return result.(*court.Document), nil
}

// Download fetches a document's binary content. Returns the server-provided
// filename and the bytes.
func (s *DocumentService) Download(ctx context.Context, id string) (string, []byte, error) {
	return s.client.Download(ctx, "/documents/"+url.PathEscape(id)+"/content")
}

func swapDocument(value any, tempID string, server court.Document) []court.Document {
	docs, _ := value.([]court.Document)
	out := make([]court.Document, 0, len(docs))

	present := false
	for _, d := range docs {
		if d.ID == server.ID {
			present = true
		}
	}
	for _, d := range docs {
		if d.ID == tempID {
			if present {
				continue
			}
			out = append(out, server)
			continue
		}
		out = append(out, d)
	}
	return out
}
