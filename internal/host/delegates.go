package host

import (
	"context"

	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/models"
)

// Store answers model lookups made by plugins. It is owned by the
// persistence layer.
type Store interface {
	GetHTTPRequestByID(ctx context.Context, id string) (*models.HTTPRequest, error)
	FindHTTPResponses(ctx context.Context, requestID string, limit int) ([]models.HTTPResponse, error)
}

// HTTPSender sends and renders HTTP requests on behalf of plugins.
type HTTPSender interface {
	SendHTTPRequest(ctx context.Context, req models.HTTPRequest) (*models.HTTPResponse, error)
	RenderHTTPRequest(ctx context.Context, req models.HTTPRequest, purpose events.RenderPurpose) (*models.HTTPRequest, error)
}

// Toaster displays plugin notifications locally.
type Toaster interface {
	ShowToast(plugin string, toast *events.ShowToastRequest)
}
