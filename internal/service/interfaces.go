package service

import (
	"context"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/lineage"
)

// DocumentStore is the persistence surface the orchestrator needs.
// *repository.DocumentRepository implements it.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, kind domain.Kind, id string) (*domain.Document, error)
	Child(ctx context.Context, parent domain.Ref) (*domain.Document, error)
	ExecutionRecordBySource(ctx context.Context, source domain.Ref) (*domain.Document, error)
	Chain(ctx context.Context, doc *domain.Document) ([]*domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	Delete(ctx context.Context, kind domain.Kind, id string) error
	NextSequence(ctx context.Context, kind domain.Kind, scopeID string) (int, error)
}

// AuditStore persists immutable audit events.
// *repository.AuditRepository implements it.
type AuditStore interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEvent, error)
}

// AttachmentStoreInterface is the external attachment store collaborator.
type AttachmentStoreInterface interface {
	DeleteAttachment(ctx context.Context, locator string) error
}

// UserDirectoryInterface resolves users with a role for notification fan-out
// and an actor's role set for admin verification.
type UserDirectoryInterface interface {
	GetUsersWithRole(ctx context.Context, role string) ([]string, error)
	GetUserRoles(ctx context.Context, userID string) ([]string, error)
}

// DependentCheckerInterface reports external records (e.g. site visits) that
// block deleting a document.
type DependentCheckerInterface interface {
	Dependents(ctx context.Context, kind domain.Kind, id string) ([]lineage.Dependent, error)
}

// NotificationPublisherInterface publishes lifecycle events. Implementations
// must be non-fatal: they log failures and never return them.
type NotificationPublisherInterface interface {
	PublishProposalEvent(ctx context.Context, eventType, kind, documentID, actorID string, recipients []string, payload map[string]any)
}
