// Package pluginsdk lets plugin authors implement hookhost hooks in Go. A
// module implements any subset of the hook interfaces below; Serve advertises
// the matching exports and answers the host's requests.
package pluginsdk

import (
	"github.com/dorcha-inc/hookhost/internal/events"
	"github.com/dorcha-inc/hookhost/internal/models"
	"github.com/dorcha-inc/hookhost/internal/worker"
)

// Payload types shared with the host.
type (
	ImportRequest             = events.ImportRequest
	ImportResponse            = events.ImportResponse
	ImportResources           = events.ImportResources
	FilterRequest             = events.FilterRequest
	FilterResponse            = events.FilterResponse
	ExportHTTPRequestRequest  = events.ExportHTTPRequestRequest
	ExportHTTPRequestResponse = events.ExportHTTPRequestResponse
	Payload                   = events.Payload
	ToastVariant              = events.ToastVariant
	ChangeEvent               = models.ChangeEvent
	HTTPRequest               = models.HTTPRequest
	HTTPResponse              = models.HTTPResponse
)

// Requests a plugin may send with Context.Request, and their replies. The
// host answers with EmptyResponse when it has nothing to return.
type (
	SendHTTPRequestRequest     = events.SendHTTPRequestRequest
	SendHTTPRequestResponse    = events.SendHTTPRequestResponse
	RenderHTTPRequestRequest   = events.RenderHTTPRequestRequest
	RenderHTTPRequestResponse  = events.RenderHTTPRequestResponse
	RenderPurpose              = events.RenderPurpose
	GetHTTPRequestByIDRequest  = events.GetHTTPRequestByIDRequest
	GetHTTPRequestByIDResponse = events.GetHTTPRequestByIDResponse
	FindHTTPResponsesRequest   = events.FindHTTPResponsesRequest
	FindHTTPResponsesResponse  = events.FindHTTPResponsesResponse
	ShowToastRequest           = events.ShowToastRequest
	CopyTextRequest            = events.CopyTextRequest
	EmptyResponse              = events.EmptyResponse
)

const (
	ToastInfo    = events.ToastInfo
	ToastSuccess = events.ToastSuccess
	ToastWarning = events.ToastWarning
	ToastDanger  = events.ToastDanger

	RenderPurposeSend    = events.RenderPurposeSend
	RenderPurposePreview = events.RenderPurposePreview
)

// Importer converts foreign content into workspace resources. Returning a
// nil response means the content is not understood.
type Importer interface {
	Import(ctx *Context, req *ImportRequest) (*ImportResponse, error)
}

// Exporter renders an HTTP request in a foreign format.
type Exporter interface {
	Export(ctx *Context, req *ExportHTTPRequestRequest) (*ExportHTTPRequestResponse, error)
}

// ResponseFilter applies a filter expression to a response body.
type ResponseFilter interface {
	Filter(ctx *Context, req *FilterRequest) (*FilterResponse, error)
}

// ModelObserver is notified of model changes. Notifications expect no reply.
type ModelObserver interface {
	ModelChanged(ctx *Context, ev ChangeEvent)
}

// Concurrent modules accept overlapping requests.
type Concurrent interface {
	Concurrent() bool
}

// Describer lets a module report its own name and version.
type Describer interface {
	Name() string
	Version() string
}

// Exports lists the hook exports module implements, in hook registry order.
func Exports(module any) []string {
	exports := []string{}
	for _, hook := range worker.Hooks() {
		if implements(module, hook.Capability) {
			exports = append(exports, hook.Export)
		}
	}
	return exports
}

func implements(module any, c worker.Capability) bool {
	var ok bool
	switch c {
	case worker.CapabilityImport:
		_, ok = module.(Importer)
	case worker.CapabilityExport:
		_, ok = module.(Exporter)
	case worker.CapabilityFilter:
		_, ok = module.(ResponseFilter)
	case worker.CapabilityModelEvents:
		_, ok = module.(ModelObserver)
	}
	return ok
}

func isConcurrent(module any) bool {
	c, ok := module.(Concurrent)
	return ok && c.Concurrent()
}
