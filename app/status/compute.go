package status

import (
	"lifemonitor/app/objects"
	ts "lifemonitor/app/testingservice"
	"lifemonitor/pkg/contextx"
	"lifemonitor/pkg/log"
)

// Lookup returns the adapter serving a test instance.
type Lookup func(ctx *contextx.Context, instance *objects.TestInstance) (ts.Service, error)

func collectSuite(ctx *contextx.Context, lookup Lookup, suite *objects.TestSuite) (SuiteResult, error) {
	result := SuiteResult{ID: suite.ID, Name: suite.Name}
	instances, err := suite.Instances(ctx)
	if err != nil {
		return result, err
	}
	for _, instance := range instances {
		r := InstanceResult{ID: instance.ID, Resource: instance.Resource}
		svc, err := lookup(ctx, instance)
		if err != nil {
			r.Err = err
		} else {
			r.Service = svc.URL()
			r.LastBuild, r.Err = svc.LastBuild(ctx, ts.Instance{ID: instance.ID, Name: instance.Name, Resource: instance.Resource})
		}
		if r.Err != nil {
			log.Warnf(ctx, "status: instance %s: %v", instance.ID, r.Err)
		}
		result.Instances = append(result.Instances, r)
	}
	return result, nil
}

// ForVersion computes the aggregated status of a workflow version. Only storage
// failures are returned; adapter failures become availability issues.
func ForVersion(ctx *contextx.Context, lookup Lookup, version *objects.WorkflowVersion) (Report, error) {
	suites, err := version.Suites(ctx)
	if err != nil {
		return Report{}, err
	}
	results := make([]SuiteResult, 0, len(suites))
	for _, suite := range suites {
		r, err := collectSuite(ctx, lookup, suite)
		if err != nil {
			return Report{}, err
		}
		results = append(results, r)
	}
	return Fold(results), nil
}

func ForSuite(ctx *contextx.Context, lookup Lookup, suite *objects.TestSuite) (Report, error) {
	r, err := collectSuite(ctx, lookup, suite)
	if err != nil {
		return Report{}, err
	}
	return Fold([]SuiteResult{r}), nil
}
