package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"lifemonitor/app/config"
	"lifemonitor/app/engine/client"
	"lifemonitor/app/engine/server"
	"lifemonitor/app/objects"
	"lifemonitor/app/status"
	"lifemonitor/app/storage"
	"lifemonitor/pkg/contextx"
)

var (
	ctx          = contextx.NewContext()
	configFile   = flag.String("config", "", "path of the configuration file")
	workflow     = flag.String("w", "", "workflow uuid: print the status of its versions")
	register     = flag.String("register", "", "enqueue the registration of owner/name@ref")
	installation = flag.Int64("i", 0, "GitHub App installation of the repository to register")
	job          = flag.String("job", "", "print the status of a job")
	snapshot     = flag.String("snapshot", "", "upload a database snapshot file to the archive")
	wait         = flag.Duration("wait", 5*time.Minute, "how long to wait for an enqueued job")
	notify       = flag.String("notify", "", "comma separated users notified of the registration progress")
)

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func printRow(cols ...interface{}) {
	for _, c := range cols {
		fmt.Printf("|%-30v", c)
	}
	fmt.Print("\n")
	for range cols {
		fmt.Printf(" %-30v", "----------------------------")
	}
	fmt.Print("\n")
}

func printWorkflow(comps *server.Components, id string) error {
	wf, err := objects.QueryWorkflowByID(ctx, id)
	if err != nil {
		return err
	}
	if wf == nil {
		return fmt.Errorf("workflow %s not found", id)
	}
	versions, err := wf.Versions(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", wf.Name, wf.ID)
	printRow("VERSION", "STATUS", "BUILDS", "ISSUES")
	for _, v := range versions {
		report, err := status.ForVersion(ctx, comps.Resolver.Lookup, v)
		if err != nil {
			return err
		}
		printRow(v.Version, report.Status, len(report.LatestBuilds), len(report.Issues))
	}
	return nil
}

func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func main() {
	flag.Parse()
	if err := config.Initialize(*configFile); err != nil {
		fail(err)
	}
	comps, err := server.Build(ctx, config.Config)
	if err != nil {
		fail(err)
	}

	switch {
	case *workflow != "":
		if err = printWorkflow(comps, *workflow); err != nil {
			fail(err)
		}
	case *register != "":
		ref, err := client.ParseRef(*register)
		if err != nil {
			fail(err)
		}
		clt := client.NewClient(comps.Scheduler)
		var users []string
		if *notify != "" {
			users = strings.Split(*notify, ",")
		}
		id, err := clt.RegisterWorkflow(ctx, *installation, ref, users...)
		if err != nil {
			fail(err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, *wait)
		defer cancel()
		st, err := clt.Wait(waitCtx, id)
		if err != nil {
			fail(err)
		}
		printJSON(st)
	case *job != "":
		st, err := comps.Scheduler.JobStatus(ctx, *job)
		if err != nil {
			fail(err)
		}
		if st == nil {
			fail(fmt.Errorf("job %s not found", *job))
		}
		printJSON(st)
	case *snapshot != "":
		archive, err := storage.NewArchiveFromConfig(ctx, comps.Config.Storage, comps.Cache)
		if err != nil {
			fail(err)
		}
		uri, err := archive.StoreSnapshot(ctx, *snapshot)
		if err != nil {
			fail(err)
		}
		fmt.Println(uri)
	default:
		flag.Usage()
		os.Exit(2)
	}
}
