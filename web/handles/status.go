package handles

import (
	"net/http"
	"time"

	"lifemonitor/app/objects"
	"lifemonitor/app/scheduler"
	"lifemonitor/app/status"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/problem"

	"github.com/julienschmidt/httprouter"
)

type health struct {
	Status    string `json:"status"`
	Instance  string `json:"instance"`
	Heartbeat int64  `json:"heartbeat,omitempty"`
	Sessions  int    `json:"websocket_sessions"`
}

// Health reports the last scheduler heartbeat. A missing or stale one is a 503.
func (h *Handles) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := requestContext(w, r)
	res := &health{Status: "ok", Instance: h.instance}
	if h.hub != nil {
		res.Sessions = h.hub.Sessions()
	}
	beat, err := scheduler.LastHeartbeat(ctx, h.cache)
	if err != nil {
		log.Warnf(ctx, "Unable to read the heartbeat: %v", err)
	}
	code := http.StatusOK
	switch {
	case beat.IsZero():
		res.Status = "unknown"
		code = http.StatusServiceUnavailable
	case time.Since(beat) > healthMaxAge:
		res.Status = "stale"
		res.Heartbeat = beat.Unix()
		code = http.StatusServiceUnavailable
	default:
		res.Heartbeat = beat.Unix()
	}
	writeJSON(w, code, res)
}

// Socket opens a notification session. Clients name their user with the
// user query parameter or the X-Lifemonitor-User header.
func (h *Handles) Socket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := requestContext(w, r)
	if h.hub == nil {
		problem.Write(w, problem.NotImplemented("notification socket"), r.URL.Path)
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		user = r.Header.Get(UserHeader)
	}
	if err := h.hub.ServeWS(w, r, user); err != nil {
		log.Warnf(ctx, "WebSocket upgrade failed: %v", err)
	}
}

type versionRef struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type versionStatus struct {
	Workflow versionRef `json:"workflow"`
	status.Report
}

// VersionStatus renders the aggregated test status of a workflow version.
func (h *Handles) VersionStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := requestContext(w, r)
	id, version := ps.ByName("uuid"), ps.ByName("version")
	if h.lookup == nil {
		problem.Write(w, problem.NotImplemented("workflow status"), r.URL.Path)
		return
	}
	wf, err := objects.QueryWorkflowByID(ctx, id)
	if err != nil {
		log.Errorf(ctx, "Query workflow %s error %v", id, err)
		problem.Write(w, err, r.URL.Path)
		return
	}
	if wf == nil {
		problem.Write(w, problem.NotFound("workflow", id), r.URL.Path)
		return
	}
	v, err := wf.GetVersion(ctx, version)
	if err != nil {
		problem.Write(w, err, r.URL.Path)
		return
	}
	if v == nil {
		problem.Write(w, problem.NotFound("workflow_version", id+"@"+version), r.URL.Path)
		return
	}
	report, err := status.ForVersion(ctx, h.lookup, v)
	if err != nil {
		problem.Write(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, &versionStatus{
		Workflow: versionRef{UUID: wf.ID, Name: wf.Name, Version: v.Version},
		Report:   report,
	})
}
