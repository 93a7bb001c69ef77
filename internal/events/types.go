// Package events defines the envelope and tagged payload union exchanged
// between the host, the GUI and plugins.
package events

import "slices"

// PayloadType is the "type" discriminant of an InternalEventPayload.
type PayloadType string

const (
	TypeBootRequest                   PayloadType = "boot_request"
	TypeBootResponse                  PayloadType = "boot_response"
	TypeReloadRequest                 PayloadType = "reload_request"
	TypeReloadResponse                PayloadType = "reload_response"
	TypeImportRequest                 PayloadType = "import_request"
	TypeImportResponse                PayloadType = "import_response"
	TypeFilterRequest                 PayloadType = "filter_request"
	TypeFilterResponse                PayloadType = "filter_response"
	TypeExportHTTPRequestRequest      PayloadType = "export_http_request_request"
	TypeExportHTTPRequestResponse     PayloadType = "export_http_request_response"
	TypeSendHTTPRequestRequest        PayloadType = "send_http_request_request"
	TypeSendHTTPRequestResponse       PayloadType = "send_http_request_response"
	TypeGetHTTPRequestActionsRequest  PayloadType = "get_http_request_actions_request"
	TypeGetHTTPRequestActionsResponse PayloadType = "get_http_request_actions_response"
	TypeCallHTTPRequestActionRequest  PayloadType = "call_http_request_action_request"
	TypeGetTemplateFunctionsRequest   PayloadType = "get_template_functions_request"
	TypeGetTemplateFunctionsResponse  PayloadType = "get_template_functions_response"
	TypeCallTemplateFunctionRequest   PayloadType = "call_template_function_request"
	TypeCallTemplateFunctionResponse  PayloadType = "call_template_function_response"
	TypeCopyTextRequest               PayloadType = "copy_text_request"
	TypeRenderHTTPRequestRequest      PayloadType = "render_http_request_request"
	TypeRenderHTTPRequestResponse     PayloadType = "render_http_request_response"
	TypeShowToastRequest              PayloadType = "show_toast_request"
	TypeGetHTTPRequestByIDRequest     PayloadType = "get_http_request_by_id_request"
	TypeGetHTTPRequestByIDResponse    PayloadType = "get_http_request_by_id_response"
	TypeFindHTTPResponsesRequest      PayloadType = "find_http_responses_request"
	TypeFindHTTPResponsesResponse     PayloadType = "find_http_responses_response"
	TypeEmptyResponse                 PayloadType = "empty_response"
)

// factories maps every discriminant to a constructor for its body.
// Adding a variant means adding a body type and one entry here.
var factories = map[PayloadType]func() Payload{
	TypeBootRequest:                   func() Payload { return &BootRequest{} },
	TypeBootResponse:                  func() Payload { return &BootResponse{} },
	TypeReloadRequest:                 func() Payload { return &ReloadRequest{} },
	TypeReloadResponse:                func() Payload { return &ReloadResponse{} },
	TypeImportRequest:                 func() Payload { return &ImportRequest{} },
	TypeImportResponse:                func() Payload { return &ImportResponse{} },
	TypeFilterRequest:                 func() Payload { return &FilterRequest{} },
	TypeFilterResponse:                func() Payload { return &FilterResponse{} },
	TypeExportHTTPRequestRequest:      func() Payload { return &ExportHTTPRequestRequest{} },
	TypeExportHTTPRequestResponse:     func() Payload { return &ExportHTTPRequestResponse{} },
	TypeSendHTTPRequestRequest:        func() Payload { return &SendHTTPRequestRequest{} },
	TypeSendHTTPRequestResponse:       func() Payload { return &SendHTTPRequestResponse{} },
	TypeGetHTTPRequestActionsRequest:  func() Payload { return &GetHTTPRequestActionsRequest{} },
	TypeGetHTTPRequestActionsResponse: func() Payload { return &GetHTTPRequestActionsResponse{} },
	TypeCallHTTPRequestActionRequest:  func() Payload { return &CallHTTPRequestActionRequest{} },
	TypeGetTemplateFunctionsRequest:   func() Payload { return &GetTemplateFunctionsRequest{} },
	TypeGetTemplateFunctionsResponse:  func() Payload { return &GetTemplateFunctionsResponse{} },
	TypeCallTemplateFunctionRequest:   func() Payload { return &CallTemplateFunctionRequest{} },
	TypeCallTemplateFunctionResponse:  func() Payload { return &CallTemplateFunctionResponse{} },
	TypeCopyTextRequest:               func() Payload { return &CopyTextRequest{} },
	TypeRenderHTTPRequestRequest:      func() Payload { return &RenderHTTPRequestRequest{} },
	TypeRenderHTTPRequestResponse:     func() Payload { return &RenderHTTPRequestResponse{} },
	TypeShowToastRequest:              func() Payload { return &ShowToastRequest{} },
	TypeGetHTTPRequestByIDRequest:     func() Payload { return &GetHTTPRequestByIDRequest{} },
	TypeGetHTTPRequestByIDResponse:    func() Payload { return &GetHTTPRequestByIDResponse{} },
	TypeFindHTTPResponsesRequest:      func() Payload { return &FindHTTPResponsesRequest{} },
	TypeFindHTTPResponsesResponse:     func() Payload { return &FindHTTPResponsesResponse{} },
	TypeEmptyResponse:                 func() Payload { return &EmptyResponse{} },
}

// Known reports whether t is one of the recognized discriminants.
func Known(t PayloadType) bool {
	_, ok := factories[t]
	return ok
}

// AllTypes returns every recognized discriminant, sorted.
func AllTypes() []PayloadType {
	types := make([]PayloadType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// New returns an empty body for t, or false when t is not recognized.
func New(t PayloadType) (Payload, bool) {
	factory, ok := factories[t]
	if !ok {
		return nil, false
	}
	return factory(), true
}
