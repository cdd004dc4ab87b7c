package handles

import (
	"io"
	"net/http"

	"lifemonitor/app/github"
	"lifemonitor/app/metrics"
	"lifemonitor/app/scheduler"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/problem"

	"github.com/julienschmidt/httprouter"
)

const (
	outcomeDispatched = "dispatched"
	outcomeForwarded  = "forwarded"
	outcomeIgnored    = "ignored"
	outcomeRejected   = "rejected"
	outcomeFailed     = "failed"

	maxPayload = 25 << 20
)

// GithubWebhook verifies a delivery, then skips, forwards or enqueues it.
func (h *Handles) GithubWebhook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := requestContext(w, r)
	kind := r.Header.Get(github.HeaderEvent)
	outcome := outcomeRejected
	defer func() { metrics.EventReceived(kind, outcome) }()

	if !h.github.Configured() {
		log.Warnf(ctx, "GitHub integration not configured: dropping %s event", kind)
		writeRes(w, http.StatusServiceUnavailable, "GitHub Integration not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		log.Errorf(ctx, "Body read error %v", err)
		problem.Write(w, problem.Newf(problem.KindBadRequest, "unreadable payload: %v", err), r.URL.Path)
		return
	}
	if err = github.VerifySignature(h.github.WebhookSecret, r.Header.Get(github.SignatureHeader), body); err != nil {
		log.Warnf(ctx, "Rejecting %s delivery %s: %v", kind, r.Header.Get(github.HeaderDelivery), err)
		writeRes(w, http.StatusUnauthorized, "Signature Invalid")
		return
	}
	event, err := github.ParseEvent(r.Header, body)
	if err != nil {
		problem.Write(w, problem.Newf(problem.KindBadRequest, "%v", err), r.URL.Path)
		return
	}
	log.Infof(ctx, "Received %s event (action %q) on %s", event.Type, event.Action, event.FullName())

	if !github.SupportedEvents[event.Type] {
		outcome = outcomeIgnored
		writeRes(w, http.StatusNoContent, "No handler registered for the '"+event.Type+"' event")
		return
	}
	if event.FromBot(h.github.Bot) || event.IsBotBranch() {
		outcome = outcomeIgnored
		log.Debugf(ctx, "Skipping %s event on %s: pushed by LifeMonitor", event.Type, event.RefName())
		writeRes(w, http.StatusNoContent, "Nothing to do for the event '"+event.Type+"' on branch "+event.Branch())
		return
	}

	if h.resolver != nil {
		instance, err := h.resolver.InstanceFor(ctx, event)
		if err != nil {
			log.Warnf(ctx, "Unable to resolve the LifeMonitor instance of %s: %v", event.FullName(), err)
		} else if instance != "" && instance != h.instance {
			if h.relay == nil || !h.relay.Known(instance) {
				outcome = outcomeIgnored
				log.Warnf(ctx, "Event of %s targets unknown LifeMonitor instance %s", event.FullName(), instance)
				writeRes(w, http.StatusNoContent, "Unknown LifeMonitor instance "+instance)
				return
			}
			resp, err := h.relay.Forward(ctx, instance, r.Header, body)
			if err != nil {
				outcome = outcomeFailed
				log.Errorf(ctx, "Unable to forward event to %s: %v", instance, err)
				problem.Write(w, problem.Wrap(problem.KindInternal, err, "unable to forward the event to "+instance), r.URL.Path)
				return
			}
			outcome = outcomeForwarded
			log.Infof(ctx, "Event forwarded to %s: %d", instance, resp.StatusCode)
			writeRaw(w, resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
			return
		}
	}

	id, err := h.jobs.RunJob(ctx, scheduler.JobGithubEvent, event)
	if err != nil {
		outcome = outcomeFailed
		log.Errorf(ctx, "Unable to schedule the %s event handler: %v", event.Type, err)
		problem.Write(w, err, r.URL.Path)
		return
	}
	outcome = outcomeDispatched
	log.Debugf(ctx, "Scheduled job %s for %s event", id, event.Type)
	writeRes(w, http.StatusOK, "Event handler scheduled")
}
