package status

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"sync"
	"testing"

	"lifemonitor/app/db"
	"lifemonitor/app/objects"
	ts "lifemonitor/app/testingservice"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/problem"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passed() *ts.Build { return &ts.Build{ID: uuid.NewString(), Status: ts.StatusPassed} }
func failed() *ts.Build { return &ts.Build{ID: uuid.NewString(), Status: ts.StatusFailed} }

func TestFold(t *testing.T) {
	cases := []struct {
		name   string
		suites []SuiteResult
		want   Aggregate
		issues int
	}{
		{"no suites", nil, NotAvailable, 1},
		{"suite without instances", []SuiteResult{{ID: "s1", Name: "suite"}}, NotAvailable, 1},
		{"all passing", []SuiteResult{{ID: "s1", Instances: []InstanceResult{
			{ID: "i1", LastBuild: passed()}, {ID: "i2", LastBuild: passed()},
		}}}, AllPassing, 0},
		{"all failing", []SuiteResult{{ID: "s1", Instances: []InstanceResult{
			{ID: "i1", LastBuild: failed()},
		}}}, AllFailing, 0},
		{"some passing", []SuiteResult{
			{ID: "s1", Instances: []InstanceResult{{ID: "i1", LastBuild: failed()}}},
			{ID: "s2", Instances: []InstanceResult{{ID: "i2", LastBuild: passed()}}},
		}, SomePassing, 0},
		{"missing build", []SuiteResult{{ID: "s1", Instances: []InstanceResult{
			{ID: "i1"}, {ID: "i2", LastBuild: passed()},
		}}}, AllPassing, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			asserter := assert.New(t)
			report := Fold(c.suites)
			asserter.Equal(c.want, report.Status)
			asserter.Len(report.Issues, c.issues)
		})
	}
}

func TestFold_IssueMessages(t *testing.T) {
	asserter := assert.New(t)
	report := Fold(nil)
	asserter.Equal(IssueNoSuites, report.Issues[0].Issue)

	report = Fold([]SuiteResult{{ID: "s1", Name: "smoke"}})
	asserter.Equal("No test instances configured for suite smoke", report.Issues[0].Issue)

	report = Fold([]SuiteResult{{ID: "s1", Instances: []InstanceResult{{ID: "i9", Service: "http://ci", Resource: "job/x"}}}})
	asserter.Equal("No build found for instance i9", report.Issues[0].Issue)
	asserter.Equal("http://ci", report.Issues[0].Service)
}

func TestFold_PermutationInvariant(t *testing.T) {
	asserter := assert.New(t)
	suites := []SuiteResult{
		{ID: "s1", Instances: []InstanceResult{{ID: "a", LastBuild: passed()}, {ID: "b", Err: errors.New("down")}}},
		{ID: "s2", Instances: []InstanceResult{{ID: "c", LastBuild: failed()}, {ID: "d"}}},
		{ID: "s3", Name: "empty"},
		{ID: "s4", Instances: []InstanceResult{{ID: "e", LastBuild: passed()}}},
	}
	expected := Fold(suites)
	asserter.Equal(SomePassing, expected.Status)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]SuiteResult, len(suites))
		for j, s := range suites {
			instances := append([]InstanceResult(nil), s.Instances...)
			rng.Shuffle(len(instances), func(a, b int) { instances[a], instances[b] = instances[b], instances[a] })
			shuffled[j] = SuiteResult{ID: s.ID, Name: s.Name, Instances: instances}
		}
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		asserter.Equal(expected, Fold(shuffled))
	}
}

const testDBPath = "/tmp/lifemonitor-status-test.db"

var setupOnce sync.Once

func setupDB(t *testing.T) *contextx.Context {
	setupOnce.Do(func() {
		_ = os.Remove(testDBPath)
		require.NoError(t, db.Init(&db.Config{Connection: "sqlite://" + testDBPath}))
		require.NoError(t, db.Migrate())
	})
	return contextx.NewContext()
}

type brokenService struct{ url string }

func (s brokenService) Type() string { return ts.TypeJenkins }
func (s brokenService) URL() string  { return s.url }
func (s brokenService) LastBuild(context.Context, ts.Instance) (*ts.Build, error) {
	return nil, problem.TestingServiceException(errors.New("connection refused"), "jenkins service at %s", s.url)
}
func (s brokenService) LastPassedBuild(context.Context, ts.Instance) (*ts.Build, error) {
	return nil, nil
}
func (s brokenService) LastFailedBuild(context.Context, ts.Instance) (*ts.Build, error) {
	return nil, nil
}
func (s brokenService) Builds(context.Context, ts.Instance, int) ([]*ts.Build, error) {
	return nil, nil
}
func (s brokenService) Build(_ context.Context, _ ts.Instance, id string) (*ts.Build, error) {
	return nil, problem.NotFound("TestBuild", id)
}
func (s brokenService) BuildOutput(context.Context, ts.Instance, string, int, int) (string, error) {
	return "", nil
}

func TestForVersion_AdapterFailure(t *testing.T) {
	asserter := assert.New(t)
	ctx := setupDB(t)

	wf := objects.NewWorkflow(objects.WorkflowUUIDFor("https://github.com/"+uuid.NewString()), "wf", "u1")
	require.NoError(t, wf.Save(ctx))
	version := objects.NewWorkflowVersion(wf.ID, "main")
	require.NoError(t, version.Save(ctx))
	suite := objects.NewTestSuite(version.ID, "#suite", "suite", nil)
	require.NoError(t, suite.Save(ctx))
	service, err := objects.GetOrCreateTestingService(ctx, ts.TypeJenkins, "http://jenkins-"+uuid.NewString())
	require.NoError(t, err)
	instance := objects.NewTestInstance(suite.ID, "#instance", "instance", "job/x", service.ID, nil)
	require.NoError(t, instance.Save(ctx))

	lookup := func(ctx *contextx.Context, i *objects.TestInstance) (ts.Service, error) {
		return brokenService{url: service.URL}, nil
	}
	report, err := ForVersion(ctx, lookup, version)
	require.NoError(t, err)
	asserter.Equal(NotAvailable, report.Status)
	if asserter.Len(report.Issues, 1) {
		asserter.Contains(report.Issues[0].Issue, "connection refused")
		asserter.Equal(service.URL, report.Issues[0].Service)
		asserter.Equal("job/x", report.Issues[0].Resource)
	}
	asserter.Empty(report.LatestBuilds)

	report, err = ForSuite(ctx, lookup, suite)
	require.NoError(t, err)
	asserter.Equal(NotAvailable, report.Status)
}

func TestForVersion_NoSuites(t *testing.T) {
	asserter := assert.New(t)
	ctx := setupDB(t)
	version := objects.NewWorkflowVersion(uuid.NewString(), "v1")
	require.NoError(t, version.Save(ctx))

	report, err := ForVersion(ctx, nil, version)
	require.NoError(t, err)
	asserter.Equal(NotAvailable, report.Status)
	asserter.Equal(IssueNoSuites, report.Issues[0].Issue)
}
