package events

import "github.com/dorcha-inc/hookhost/internal/models"

// Payload is implemented by every InternalEventPayload body.
type Payload interface {
	PayloadType() PayloadType
}

type BootRequest struct {
	Dir string `json:"dir"`
}

type BootResponse struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

type ReloadRequest struct{}

type ReloadResponse struct{}

type ImportRequest struct {
	Content string `json:"content"`
}

// ImportResources holds everything an importer produced.
type ImportResources struct {
	Workspaces   []models.Workspace   `json:"workspaces"`
	Environments []models.Environment `json:"environments"`
	Folders      []models.Folder      `json:"folders"`
	HTTPRequests []models.HTTPRequest `json:"httpRequests"`
	GRPCRequests []models.GRPCRequest `json:"grpcRequests"`
}

// Empty reports whether the importer produced no resources at all.
func (r ImportResources) Empty() bool {
	return len(r.Workspaces) == 0 &&
		len(r.Environments) == 0 &&
		len(r.Folders) == 0 &&
		len(r.HTTPRequests) == 0 &&
		len(r.GRPCRequests) == 0
}

type ImportResponse struct {
	Resources ImportResources `json:"resources"`
}

type FilterRequest struct {
	Content string `json:"content"`
	Filter  string `json:"filter"`
}

type FilterResponse struct {
	Content string `json:"content"`
}

type ExportHTTPRequestRequest struct {
	HTTPRequest models.HTTPRequest `json:"httpRequest"`
}

type ExportHTTPRequestResponse struct {
	Content string `json:"content"`
}

type SendHTTPRequestRequest struct {
	HTTPRequest models.HTTPRequest `json:"httpRequest"`
}

type SendHTTPRequestResponse struct {
	HTTPResponse models.HTTPResponse `json:"httpResponse"`
}

type GetHTTPRequestActionsRequest struct{}

type HTTPRequestAction struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Icon  *string `json:"icon,omitempty"`
}

type GetHTTPRequestActionsResponse struct {
	Actions     []HTTPRequestAction `json:"actions"`
	PluginRefID string              `json:"pluginRefId"`
}

type CallHTTPRequestActionArgs struct {
	HTTPRequest models.HTTPRequest `json:"httpRequest"`
}

type CallHTTPRequestActionRequest struct {
	Key         string                    `json:"key"`
	PluginRefID string                    `json:"pluginRefId"`
	Args        CallHTTPRequestActionArgs `json:"args"`
}

type GetTemplateFunctionsRequest struct{}

type TemplateFunctionArg struct {
	Type         string  `json:"type"`
	Name         string  `json:"name"`
	Label        *string `json:"label,omitempty"`
	DefaultValue *string `json:"defaultValue,omitempty"`
	Optional     bool    `json:"optional,omitempty"`
}

type TemplateFunction struct {
	Name string                `json:"name"`
	Args []TemplateFunctionArg `json:"args"`
}

type GetTemplateFunctionsResponse struct {
	Functions   []TemplateFunction `json:"functions"`
	PluginRefID string             `json:"pluginRefId"`
}

// RenderPurpose says why a request is being rendered.
type RenderPurpose string

const (
	RenderPurposeSend    RenderPurpose = "send"
	RenderPurposePreview RenderPurpose = "preview"
)

type CallTemplateFunctionArgs struct {
	Purpose RenderPurpose     `json:"purpose"`
	Values  map[string]string `json:"values"`
}

type CallTemplateFunctionRequest struct {
	Name string                   `json:"name"`
	Args CallTemplateFunctionArgs `json:"args"`
}

type CallTemplateFunctionResponse struct {
	Value *string `json:"value"`
}

type CopyTextRequest struct {
	Text string `json:"text"`
}

type RenderHTTPRequestRequest struct {
	HTTPRequest models.HTTPRequest `json:"httpRequest"`
	Purpose     RenderPurpose      `json:"purpose"`
}

type RenderHTTPRequestResponse struct {
	HTTPRequest models.HTTPRequest `json:"httpRequest"`
}

// ToastVariant selects the toast color.
type ToastVariant string

const (
	ToastInfo    ToastVariant = "info"
	ToastSuccess ToastVariant = "success"
	ToastWarning ToastVariant = "warning"
	ToastDanger  ToastVariant = "danger"
)

type ShowToastRequest struct {
	Message string       `json:"message"`
	Variant ToastVariant `json:"variant,omitempty"`
	Icon    *string      `json:"icon,omitempty"`
}

type GetHTTPRequestByIDRequest struct {
	ID string `json:"id"`
}

type GetHTTPRequestByIDResponse struct {
	HTTPRequest *models.HTTPRequest `json:"httpRequest"`
}

type FindHTTPResponsesRequest struct {
	RequestID string `json:"requestId"`
	Limit     *int   `json:"limit,omitempty"`
}

type FindHTTPResponsesResponse struct {
	HTTPResponses []models.HTTPResponse `json:"httpResponses"`
}

type EmptyResponse struct{}

func (*BootRequest) PayloadType() PayloadType { return TypeBootRequest }
func (*BootResponse) PayloadType() PayloadType { return TypeBootResponse }
func (*ReloadRequest) PayloadType() PayloadType { return TypeReloadRequest }
func (*ReloadResponse) PayloadType() PayloadType { return TypeReloadResponse }
func (*ImportRequest) PayloadType() PayloadType { return TypeImportRequest }
func (*ImportResponse) PayloadType() PayloadType { return TypeImportResponse }
func (*FilterRequest) PayloadType() PayloadType { return TypeFilterRequest }
func (*FilterResponse) PayloadType() PayloadType { return TypeFilterResponse }
func (*ExportHTTPRequestRequest) PayloadType() PayloadType { return TypeExportHTTPRequestRequest }
func (*ExportHTTPRequestResponse) PayloadType() PayloadType { return TypeExportHTTPRequestResponse }
func (*SendHTTPRequestRequest) PayloadType() PayloadType { return TypeSendHTTPRequestRequest }
func (*SendHTTPRequestResponse) PayloadType() PayloadType { return TypeSendHTTPRequestResponse }
func (*GetHTTPRequestActionsRequest) PayloadType() PayloadType { return TypeGetHTTPRequestActionsRequest }
func (*GetHTTPRequestActionsResponse) PayloadType() PayloadType { return TypeGetHTTPRequestActionsResponse }
func (*CallHTTPRequestActionRequest) PayloadType() PayloadType { return TypeCallHTTPRequestActionRequest }
func (*GetTemplateFunctionsRequest) PayloadType() PayloadType { return TypeGetTemplateFunctionsRequest }
func (*GetTemplateFunctionsResponse) PayloadType() PayloadType { return TypeGetTemplateFunctionsResponse }
func (*CallTemplateFunctionRequest) PayloadType() PayloadType { return TypeCallTemplateFunctionRequest }
func (*CallTemplateFunctionResponse) PayloadType() PayloadType { return TypeCallTemplateFunctionResponse }
func (*CopyTextRequest) PayloadType() PayloadType { return TypeCopyTextRequest }
func (*RenderHTTPRequestRequest) PayloadType() PayloadType { return TypeRenderHTTPRequestRequest }
func (*RenderHTTPRequestResponse) PayloadType() PayloadType { return TypeRenderHTTPRequestResponse }
func (*ShowToastRequest) PayloadType() PayloadType { return TypeShowToastRequest }
func (*GetHTTPRequestByIDRequest) PayloadType() PayloadType { return TypeGetHTTPRequestByIDRequest }
func (*GetHTTPRequestByIDResponse) PayloadType() PayloadType { return TypeGetHTTPRequestByIDResponse }
func (*FindHTTPResponsesRequest) PayloadType() PayloadType { return TypeFindHTTPResponsesRequest }
func (*FindHTTPResponsesResponse) PayloadType() PayloadType { return TypeFindHTTPResponsesResponse }
func (*EmptyResponse) PayloadType() PayloadType { return TypeEmptyResponse }
