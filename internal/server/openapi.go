package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/amongirl/internal/amongirl"
)

// HealthResponse documents the /healthz body, one entry per dependency.
type HealthResponse map[string]struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

// Path parameter documents.
type (
	providerPath struct {
		Provider string `path:"provider"`
	}
	taskPath struct {
		TaskID string `path:"taskID"`
	}
	playerPath struct {
		ID string `path:"id"`
	}
	targetPath struct {
		PlayerID string `path:"playerID"`
	}
	statusRequestDoc struct {
		ID string `path:"id"`
		AdminStatusRequest
	}
)

type operation struct {
	method, path string
	summary      string
	description  string
	request      any
	responses    []response
}

type response struct {
	status      int
	body        any
	contentType string
}

func okResp(body any) response { return response{status: http.StatusOK, body: body} }

func errResp(status int) response { return response{status: status, body: ErrorResponse{}} }

var apiOperations = []operation{
	{
		method:      http.MethodGet,
		path:        "/healthz",
		summary:     "Health check",
		description: "Returns the health status of backend dependencies.",
		responses: []response{
			okResp(HealthResponse{}),
			{status: http.StatusServiceUnavailable, body: HealthResponse{}},
		},
	},
	{
		method:      http.MethodGet,
		path:        "/api/auth/{provider}/start",
		summary:     "Start OAuth login",
		description: "Redirects to the provider consent page. Query: success, failure (allowlisted URLs).",
		request:     providerPath{},
		responses: []response{
			{status: http.StatusFound},
			errResp(http.StatusBadRequest),
			errResp(http.StatusNotFound),
		},
	},
	{
		method:      http.MethodGet,
		path:        "/api/auth/{provider}/callback",
		summary:     "OAuth callback",
		description: "Exchanges the code, creates a session and redirects to the success or failure URL.",
		request:     providerPath{},
		responses:   []response{{status: http.StatusFound}, errResp(http.StatusBadRequest)},
	},
	{
		method:      http.MethodPost,
		path:        "/api/auth/local",
		summary:     "Local login",
		description: "Email and password login. Sets the session cookie. Enabled by LOCAL_AUTH.",
		request:     LocalLoginRequest{},
		responses:   []response{okResp(SessionResponse{}), errResp(http.StatusUnauthorized), errResp(http.StatusNotFound)},
	},
	{
		method:    http.MethodGet,
		path:      "/api/session",
		summary:   "Current session",
		responses: []response{okResp(SessionResponse{}), errResp(http.StatusUnauthorized)},
	},
	{
		method:      http.MethodDelete,
		path:        "/api/session",
		summary:     "Logout",
		description: "Deletes the current session and clears the cookie.",
		responses:   []response{{status: http.StatusOK}},
	},
	{
		method:    http.MethodGet,
		path:      "/api/account",
		summary:   "Account details",
		responses: []response{okResp(AccountResponse{}), errResp(http.StatusUnauthorized)},
	},
	{
		method:      http.MethodGet,
		path:        "/api/me",
		summary:     "Current player",
		description: "Returns the caller's player, creating it with its tasks on first sight, and the view to route to.",
		responses:   []response{okResp(MeResponse{}), errResp(http.StatusUnauthorized)},
	},
	{
		method:      http.MethodGet,
		path:        "/api/me/events",
		summary:     "Player event stream",
		description: "Server-Sent Events: state (player and view), task and game events.",
		responses: []response{
			{status: http.StatusOK, contentType: "text/event-stream"},
			errResp(http.StatusUnauthorized),
		},
	},
	{
		method:      http.MethodGet,
		path:        "/api/realtime",
		summary:     "Realtime notifications",
		description: "Upgrades to a WebSocket streaming notifications. Query: channels (comma separated).",
		responses: []response{
			{status: http.StatusSwitchingProtocols, contentType: "text/plain"},
			errResp(http.StatusForbidden),
		},
	},
	{
		method:      http.MethodGet,
		path:        "/api/tasks",
		summary:     "List tasks",
		description: "Returns the caller's tasks in order, restoring the current task if none is visible.",
		responses:   []response{okResp(TasksResponse{}), errResp(http.StatusUnauthorized)},
	},
	{
		method:      http.MethodPost,
		path:        "/api/tasks/{taskID}/complete",
		summary:     "Complete current task",
		description: "Marks the current task complete and reveals the next one atomically.",
		request:     taskPath{},
		responses: []response{
			okResp(CompleteTaskResponse{}),
			errResp(http.StatusNotFound),
			errResp(http.StatusConflict),
		},
	},
	{
		method:      http.MethodPost,
		path:        "/api/meetings",
		summary:     "Call emergency meeting",
		description: "Any alive player may call a meeting once per cooldown window.",
		responses: []response{
			{status: http.StatusCreated, body: amongirl.Event{}},
			{status: http.StatusTooManyRequests, body: CooldownResponse{}},
			errResp(http.StatusForbidden),
		},
	},
	{
		method:    http.MethodGet,
		path:      "/api/game/phase",
		summary:   "Current game phase",
		responses: []response{okResp(amongirl.Phase{})},
	},
	{
		method:      http.MethodGet,
		path:        "/api/game/events",
		summary:     "Recent game events",
		description: "Newest first. Query: limit (default 20, max 100).",
		responses:   []response{okResp([]amongirl.Event{}), errResp(http.StatusBadRequest)},
	},
	{
		method:      http.MethodGet,
		path:        "/api/imposter",
		summary:     "Imposter console",
		description: "Alive targets, eliminated players and counts. Alive imposters only.",
		responses:   []response{okResp(ImposterResponse{}), errResp(http.StatusForbidden)},
	},
	{
		method:      http.MethodPost,
		path:        "/api/imposter/eliminate/{playerID}",
		summary:     "Eliminate player",
		description: "Marks the target dead and records a kill event.",
		request:     targetPath{},
		responses: []response{
			okResp(EliminateResponse{}),
			errResp(http.StatusNotFound),
			errResp(http.StatusConflict),
			errResp(http.StatusForbidden),
		},
	},
	{
		method:      http.MethodGet,
		path:        "/api/admin/players",
		summary:     "List players",
		description: "All players with counts. Query: include=tasks.",
		responses:   []response{okResp(AdminPlayersResponse{}), errResp(http.StatusForbidden)},
	},
	{
		method:    http.MethodPost,
		path:      "/api/admin/players/{id}/role",
		summary:   "Toggle role",
		request:   playerPath{},
		responses: []response{okResp(amongirl.Player{}), errResp(http.StatusNotFound), errResp(http.StatusForbidden)},
	},
	{
		method:    http.MethodPost,
		path:      "/api/admin/players/{id}/admin",
		summary:   "Toggle admin",
		request:   playerPath{},
		responses: []response{okResp(amongirl.Player{}), errResp(http.StatusNotFound), errResp(http.StatusForbidden)},
	},
	{
		method:  http.MethodPut,
		path:    "/api/admin/players/{id}/status",
		summary: "Set status",
		request: statusRequestDoc{},
		responses: []response{
			okResp(amongirl.Player{}),
			errResp(http.StatusBadRequest),
			errResp(http.StatusNotFound),
			errResp(http.StatusForbidden),
		},
	},
	{
		method:      http.MethodPost,
		path:        "/api/admin/tasks/{taskID}/approve",
		summary:     "Approve task",
		description: "Records approval of a completed task. Does not change visibility.",
		request:     taskPath{},
		responses: []response{
			okResp(amongirl.Task{}),
			errResp(http.StatusNotFound),
			errResp(http.StatusConflict),
		},
	},
	{
		method:      http.MethodPost,
		path:        "/api/admin/game/start",
		summary:     "Start game",
		description: "Marks the game active and reveals every player's first task.",
		responses:   []response{okResp(StartGameResponse{}), errResp(http.StatusForbidden)},
	},
	{
		method:    http.MethodPost,
		path:      "/api/admin/game/end",
		summary:   "End game",
		responses: []response{okResp(amongirl.Phase{}), errResp(http.StatusForbidden)},
	},
	{
		method:      http.MethodGet,
		path:        "/api/admin/qr",
		summary:     "Join QR code",
		description: "PNG QR code of the public URL. Query: size (64-1024).",
		responses: []response{
			{status: http.StatusOK, contentType: "image/png"},
			errResp(http.StatusBadRequest),
		},
	},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Among Us IRL API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the Among Us IRL party game.")

	for _, op := range apiOperations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		if op.description != "" {
			oc.SetDescription(op.description)
		}
		if op.request != nil {
			oc.AddReqStructure(op.request)
		}
		for _, resp := range op.responses {
			opts := []openapi.ContentOption{openapi.WithHTTPStatus(resp.status)}
			if resp.contentType != "" {
				opts = append(opts, openapi.WithContentType(resp.contentType))
			}
			oc.AddRespStructure(resp.body, opts...)
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
