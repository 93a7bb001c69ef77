// Package models defines the workspace domain models that flow through the
// plugin runtime. The models are owned by the persistence layer; the runtime
// only observes and forwards them.
package models

// Kind is the "model" discriminant carried by every domain model.
type Kind string

const (
	KindHTTPRequest    Kind = "http_request"
	KindHTTPResponse   Kind = "http_response"
	KindGRPCConnection Kind = "grpc_connection"
	KindGRPCEvent      Kind = "grpc_event"
	KindGRPCRequest    Kind = "grpc_request"
	KindFolder         Kind = "folder"
	KindWorkspace      Kind = "workspace"
	KindEnvironment    Kind = "environment"
	KindCookieJar      Kind = "cookie_jar"
	KindKeyValue       Kind = "key_value"
	KindSettings       Kind = "settings"
)

var knownKinds = map[Kind]struct{}{
	KindHTTPRequest:    {},
	KindHTTPResponse:   {},
	KindGRPCConnection: {},
	KindGRPCEvent:      {},
	KindGRPCRequest:    {},
	KindFolder:         {},
	KindWorkspace:      {},
	KindEnvironment:    {},
	KindCookieJar:      {},
	KindKeyValue:       {},
	KindSettings:       {},
}

// IsKnownKind reports whether k is one of the model kinds the runtime understands.
func IsKnownKind(k Kind) bool {
	_, ok := knownKinds[k]
	return ok
}

// NamespaceNoSync marks key/value entries that belong to a single window.
const NamespaceNoSync = "no_sync"

// Modeler is implemented by every typed domain model.
type Modeler interface {
	ModelKind() Kind
}

type HTTPHeader struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

type HTTPURLParameter struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

type HTTPRequest struct {
	ID                 string             `json:"id"`
	Model              Kind               `json:"model"`
	WorkspaceID        string             `json:"workspaceId"`
	FolderID           *string            `json:"folderId"`
	CreatedAt          string             `json:"createdAt"`
	UpdatedAt          string             `json:"updatedAt"`
	Name               string             `json:"name"`
	Method             string             `json:"method"`
	URL                string             `json:"url"`
	URLParameters      []HTTPURLParameter `json:"urlParameters"`
	Headers            []HTTPHeader       `json:"headers"`
	Body               map[string]any     `json:"body"`
	BodyType           *string            `json:"bodyType"`
	Authentication     map[string]any     `json:"authentication"`
	AuthenticationType *string            `json:"authenticationType"`
	SortPriority       float64            `json:"sortPriority"`
}

func (HTTPRequest) ModelKind() Kind { return KindHTTPRequest }

type HTTPResponse struct {
	ID          string       `json:"id"`
	Model       Kind         `json:"model"`
	WorkspaceID string       `json:"workspaceId"`
	RequestID   string       `json:"requestId"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
	BodyPath    *string      `json:"bodyPath"`
	ContentLen  *int64       `json:"contentLength"`
	Elapsed     int64        `json:"elapsed"`
	ElapsedHead int64        `json:"elapsedHeaders"`
	Error       *string      `json:"error"`
	Headers     []HTTPHeader `json:"headers"`
	Status      int          `json:"status"`
	StatusText  *string      `json:"statusReason"`
	URL         string       `json:"url"`
	Version     *string      `json:"version"`
}

func (HTTPResponse) ModelKind() Kind { return KindHTTPResponse }

type GRPCMetadataEntry struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

type GRPCRequest struct {
	ID                 string              `json:"id"`
	Model              Kind                `json:"model"`
	WorkspaceID        string              `json:"workspaceId"`
	FolderID           *string             `json:"folderId"`
	CreatedAt          string              `json:"createdAt"`
	UpdatedAt          string              `json:"updatedAt"`
	Name               string              `json:"name"`
	URL                string              `json:"url"`
	Service            *string             `json:"service"`
	Method             *string             `json:"method"`
	Message            string              `json:"message"`
	Metadata           []GRPCMetadataEntry `json:"metadata"`
	Authentication     map[string]any      `json:"authentication"`
	AuthenticationType *string             `json:"authenticationType"`
	SortPriority       float64             `json:"sortPriority"`
}

func (GRPCRequest) ModelKind() Kind { return KindGRPCRequest }

type GRPCConnection struct {
	ID          string            `json:"id"`
	Model       Kind              `json:"model"`
	WorkspaceID string            `json:"workspaceId"`
	RequestID   string            `json:"requestId"`
	CreatedAt   string            `json:"createdAt"`
	UpdatedAt   string            `json:"updatedAt"`
	Service     string            `json:"service"`
	Method      string            `json:"method"`
	Elapsed     int64             `json:"elapsed"`
	Status      int               `json:"status"`
	URL         string            `json:"url"`
	Error       *string           `json:"error"`
	Trailers    map[string]string `json:"trailers"`
}

func (GRPCConnection) ModelKind() Kind { return KindGRPCConnection }

// GRPCEventType classifies entries of a gRPC connection timeline.
type GRPCEventType string

const (
	GRPCEventInfo           GRPCEventType = "info"
	GRPCEventError          GRPCEventType = "error"
	GRPCEventClientMessage  GRPCEventType = "client_message"
	GRPCEventServerMessage  GRPCEventType = "server_message"
	GRPCEventConnectionEnd  GRPCEventType = "connection_end"
	GRPCEventConnectionOpen GRPCEventType = "connection_start"
)

type GRPCEvent struct {
	ID           string            `json:"id"`
	Model        Kind              `json:"model"`
	WorkspaceID  string            `json:"workspaceId"`
	RequestID    string            `json:"requestId"`
	ConnectionID string            `json:"connectionId"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`
	Content      string            `json:"content"`
	EventType    GRPCEventType     `json:"eventType"`
	Metadata     map[string]string `json:"metadata"`
	Status       *int              `json:"status"`
	Error        *string           `json:"error"`
}

func (GRPCEvent) ModelKind() Kind { return KindGRPCEvent }

type Folder struct {
	ID           string  `json:"id"`
	Model        Kind    `json:"model"`
	WorkspaceID  string  `json:"workspaceId"`
	FolderID     *string `json:"folderId"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
	Name         string  `json:"name"`
	SortPriority float64 `json:"sortPriority"`
}

func (Folder) ModelKind() Kind { return KindFolder }

type EnvironmentVariable struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

type Workspace struct {
	ID                         string                `json:"id"`
	Model                      Kind                  `json:"model"`
	CreatedAt                  string                `json:"createdAt"`
	UpdatedAt                  string                `json:"updatedAt"`
	Name                       string                `json:"name"`
	Description                string                `json:"description"`
	Variables                  []EnvironmentVariable `json:"variables"`
	SettingValidateCertificate bool                  `json:"settingValidateCertificates"`
	SettingFollowRedirects     bool                  `json:"settingFollowRedirects"`
	SettingRequestTimeout      int64                 `json:"settingRequestTimeout"`
}

func (Workspace) ModelKind() Kind { return KindWorkspace }

type Environment struct {
	ID          string                `json:"id"`
	Model       Kind                  `json:"model"`
	WorkspaceID string                `json:"workspaceId"`
	CreatedAt   string                `json:"createdAt"`
	UpdatedAt   string                `json:"updatedAt"`
	Name        string                `json:"name"`
	Variables   []EnvironmentVariable `json:"variables"`
}

func (Environment) ModelKind() Kind { return KindEnvironment }

type Cookie struct {
	RawCookie string         `json:"raw_cookie"`
	Domain    map[string]any `json:"domain"`
	Expires   map[string]any `json:"expires"`
	Path      []any          `json:"path"`
}

type CookieJar struct {
	ID          string   `json:"id"`
	Model       Kind     `json:"model"`
	WorkspaceID string   `json:"workspaceId"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
	Name        string   `json:"name"`
	Cookies     []Cookie `json:"cookies"`
}

func (CookieJar) ModelKind() Kind { return KindCookieJar }

type KeyValue struct {
	ID        string `json:"id"`
	Model     Kind   `json:"model"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

func (KeyValue) ModelKind() Kind { return KindKeyValue }

type Settings struct {
	ID                string  `json:"id"`
	Model             Kind    `json:"model"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
	Appearance        string  `json:"appearance"`
	ThemeDark         string  `json:"themeDark"`
	ThemeLight        string  `json:"themeLight"`
	UpdateChannel     string  `json:"updateChannel"`
	InterfaceFontSize int     `json:"interfaceFontSize"`
	InterfaceScale    float64 `json:"interfaceScale"`
	EditorFontSize    int     `json:"editorFontSize"`
	EditorSoftWrap    bool    `json:"editorSoftWrap"`
	OpenWorkspaceNew  *bool   `json:"openWorkspaceNewWindow"`
}

func (Settings) ModelKind() Kind { return KindSettings }
