package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Status   int                   `json:"status"`
	Error    string                `json:"error"`
	Details  string                `json:"details,omitempty"`
	Path     string                `json:"path,omitempty"`
	ForceURL string                `json:"force_url,omitempty"`
	Conflict *domain.DeploymentRef `json:"conflict,omitempty"`
	// Committed lists the release entries recorded before the failing one.
	Committed []domain.DeploymentView `json:"committed,omitempty"`
}

// statusByKind maps each domain failure kind to the HTTP status reported for it.
var statusByKind = map[domain.ErrorKind]int{
	domain.KindDuplicateKey:    http.StatusConflict,
	domain.KindCyclicParenting: http.StatusConflict,
	domain.KindHasDeployments:  http.StatusConflict,
	domain.KindNotManaged:      http.StatusNotFound,
	domain.KindNoSuchComponent: http.StatusBadRequest,
	domain.KindVersionRedeploy: http.StatusBadRequest,
	domain.KindVersionRollback: http.StatusBadRequest,
	domain.KindInvalidArgument: http.StatusBadRequest,
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Status: status, Error: msg})
}

// writeDomainError reports err using the kind table. Unknown errors become 500 without
// leaking their message.
func (r *Router) writeDomainError(w http.ResponseWriter, req *http.Request, err error) {
	body := r.domainErrorBody(req, err)
	writeJSON(w, body.Status, body)
}

func (r *Router) domainErrorBody(req *http.Request, err error) errorBody {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		return errorBody{
			Status: http.StatusInternalServerError,
			Error:  "internal error",
			Path:   req.URL.Path,
		}
	}
	status, ok := statusByKind[derr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := errorBody{
		Status:  status,
		Error:   string(derr.Kind),
		Details: derr.Error(),
		Path:    req.URL.Path,
	}
	if derr.Forceable() {
		body.ForceURL = forceURL(req)
		if derr.Existing != nil {
			conflict := *derr.Existing
			conflict.TicketReference = r.tickets.Rewrite(conflict.TicketReference)
			body.Conflict = &conflict
		}
	}
	return body
}

// forceURL returns the request URL with /force inserted after the /api segment.
func forceURL(req *http.Request) string {
	u := *req.URL
	if idx := strings.Index(u.Path, "/api/"); idx >= 0 {
		u.Path = u.Path[:idx] + "/api/force/" + u.Path[idx+len("/api/"):]
		u.RawPath = ""
	}
	if u.Host == "" {
		u.Host = req.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if req.TLS != nil {
			u.Scheme = "https"
		}
		if proto := req.Header.Get("X-Forwarded-Proto"); proto != "" {
			u.Scheme = proto
		}
	}
	return u.String()
}
