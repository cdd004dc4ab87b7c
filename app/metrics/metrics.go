package metrics

import (
	"net/http"

	"lifemonitor/app/objects"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lifemonitor"

var (
	users = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "users",
		Help:      "Number of registered users",
	})
	workflows = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workflows",
		Help:      "Number of monitored workflows",
	})
	workflowVersions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workflow_versions",
		Help:      "Number of monitored workflow versions",
	})
	registries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workflow_registries",
		Help:      "Number of enabled workflow registries",
	})
	events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "github_events_total",
		Help:      "GitHub webhook deliveries by event type and outcome",
	}, []string{"event", "outcome"})
	jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Executed jobs by name and outcome",
	}, []string{"job", "outcome"})
)

func init() {
	prometheus.MustRegister(users, workflows, workflowVersions, registries, events, jobs)
}

// Update refreshes the gauges from the database.
func Update(ctx *contextx.Context) error {
	n, err := objects.CountUsers(ctx)
	if err != nil {
		return err
	}
	users.Set(float64(n))

	if n, err = objects.CountWorkflows(ctx); err != nil {
		return err
	}
	workflows.Set(float64(n))

	if n, err = objects.CountWorkflowVersions(ctx); err != nil {
		return err
	}
	workflowVersions.Set(float64(n))

	enabled, err := objects.ListEnabledRegistries(ctx)
	if err != nil {
		return err
	}
	registries.Set(float64(len(enabled)))
	log.Debugf(ctx, "Metrics updated: %d workflow versions, %d registries", n, len(enabled))
	return nil
}

func EventReceived(event, outcome string) {
	events.WithLabelValues(event, outcome).Inc()
}

func JobExecuted(job, outcome string) {
	jobs.WithLabelValues(job, outcome).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
