package metrics

import (
	"net/http/httptest"
	"os"
	"testing"

	"lifemonitor/app/db"
	"lifemonitor/app/objects"
	"lifemonitor/pkg/contextx"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDBPath = "/tmp/lifemonitor-metrics-test.db"

func TestUpdate(t *testing.T) {
	asserter := assert.New(t)
	_ = os.Remove(testDBPath)
	require.NoError(t, db.Init(&db.Config{Connection: "sqlite://" + testDBPath}))
	require.NoError(t, db.Migrate())
	ctx := contextx.NewContext()

	user := objects.NewUser("metrics-" + uuid.NewString()[:8])
	require.NoError(t, user.Save(ctx))
	wf := objects.NewWorkflow(uuid.NewString(), "Sorting", user.ID)
	require.NoError(t, wf.Save(ctx))
	require.NoError(t, objects.NewWorkflowVersion(wf.ID, "1.0").Save(ctx))

	if asserter.NoError(Update(ctx)) {
		asserter.Equal(float64(1), testutil.ToFloat64(users))
		asserter.Equal(float64(1), testutil.ToFloat64(workflows))
		asserter.Equal(float64(1), testutil.ToFloat64(workflowVersions))
		asserter.Equal(float64(0), testutil.ToFloat64(registries))
	}
}

func TestCounters(t *testing.T) {
	asserter := assert.New(t)
	EventReceived("push", "dispatched")
	EventReceived("push", "dispatched")
	JobExecuted("heartbeat", "ok")
	asserter.Equal(float64(2), testutil.ToFloat64(events.WithLabelValues("push", "dispatched")))
	asserter.Equal(float64(1), testutil.ToFloat64(jobs.WithLabelValues("heartbeat", "ok")))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	asserter.Equal(200, rec.Code)
	asserter.Contains(rec.Body.String(), "lifemonitor_github_events_total")
}
