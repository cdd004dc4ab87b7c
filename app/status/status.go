// Package status folds the latest builds of a workflow version into one
// aggregated health value.
package status

import (
	"fmt"
	"sort"

	ts "lifemonitor/app/testingservice"
)

type Aggregate string

const (
	NotAvailable Aggregate = "not_available"
	AllPassing   Aggregate = "all_passing"
	AllFailing   Aggregate = "all_failing"
	SomePassing  Aggregate = "some_passing"
)

const (
	IssueNoSuites    = "No test suite configured for this workflow"
	issueNoInstances = "No test instances configured for suite %s"
	issueNoBuild     = "No build found for instance %s"
)

// Issue explains why part of the status is not available.
type Issue struct {
	Issue      string `json:"issue"`
	SuiteID    string `json:"suite,omitempty"`
	InstanceID string `json:"test_instance,omitempty"`
	Service    string `json:"service,omitempty"`
	Resource   string `json:"resource,omitempty"`
}

type LatestBuild struct {
	SuiteID    string    `json:"suite_uuid"`
	InstanceID string    `json:"instance_uuid"`
	Build      *ts.Build `json:"build"`
}

// InstanceResult is the outcome of asking a testing service for the last
// build of one instance.
type InstanceResult struct {
	ID        string
	Service   string
	Resource  string
	LastBuild *ts.Build
	Err       error
}

type SuiteResult struct {
	ID        string
	Name      string
	Instances []InstanceResult
}

type Report struct {
	Status       Aggregate     `json:"aggregate_test_status"`
	LatestBuilds []LatestBuild `json:"latest_builds"`
	Issues       []Issue       `json:"availability_issues,omitempty"`
}

func next(current Aggregate, passing bool) Aggregate {
	switch current {
	case NotAvailable:
		if passing {
			return AllPassing
		}
		return AllFailing
	case AllPassing:
		if !passing {
			return SomePassing
		}
	case AllFailing:
		if passing {
			return SomePassing
		}
	}
	return current
}

// Fold aggregates the results of every suite. The result does not depend on the
// order of suites or instances.
func Fold(suites []SuiteResult) Report {
	report := Report{Status: NotAvailable, LatestBuilds: []LatestBuild{}}
	if len(suites) == 0 {
		report.Issues = append(report.Issues, Issue{Issue: IssueNoSuites})
	}
	for _, suite := range suites {
		if len(suite.Instances) == 0 {
			name := suite.Name
			if name == "" {
				name = suite.ID
			}
			report.Issues = append(report.Issues, Issue{
				Issue:   fmt.Sprintf(issueNoInstances, name),
				SuiteID: suite.ID,
			})
		}
		for _, instance := range suite.Instances {
			switch {
			case instance.Err != nil:
				report.Issues = append(report.Issues, Issue{
					Issue:      instance.Err.Error(),
					SuiteID:    suite.ID,
					InstanceID: instance.ID,
					Service:    instance.Service,
					Resource:   instance.Resource,
				})
			case instance.LastBuild == nil:
				report.Issues = append(report.Issues, Issue{
					Issue:      fmt.Sprintf(issueNoBuild, instance.ID),
					SuiteID:    suite.ID,
					InstanceID: instance.ID,
					Service:    instance.Service,
					Resource:   instance.Resource,
				})
			default:
				report.LatestBuilds = append(report.LatestBuilds, LatestBuild{
					SuiteID:    suite.ID,
					InstanceID: instance.ID,
					Build:      instance.LastBuild,
				})
				report.Status = next(report.Status, instance.LastBuild.Passed())
			}
		}
	}
	sort.Slice(report.LatestBuilds, func(i, j int) bool {
		a, b := report.LatestBuilds[i], report.LatestBuilds[j]
		if a.SuiteID != b.SuiteID {
			return a.SuiteID < b.SuiteID
		}
		return a.InstanceID < b.InstanceID
	})
	sort.SliceStable(report.Issues, func(i, j int) bool {
		a, b := report.Issues[i], report.Issues[j]
		if a.SuiteID != b.SuiteID {
			return a.SuiteID < b.SuiteID
		}
		if a.InstanceID != b.InstanceID {
			return a.InstanceID < b.InstanceID
		}
		return a.Issue < b.Issue
	})
	return report
}
