package main

import (
	"flag"
	"os"

	"lifemonitor/app/config"
	"lifemonitor/app/engine/server"
	"lifemonitor/pkg/log"
	"lifemonitor/pkg/service"
)

var configFile = flag.String("config", "", "path of the configuration file")

func main() {
	flag.Parse()
	if err := config.Initialize(*configFile); err != nil {
		log.Errorf(nil, "Load configuration error %v", err)
		os.Exit(1)
	}
	log.Initialize("", "")

	if err := service.Run("lifemonitor-scheduler", server.NewSchedulerServer()); err != nil {
		log.Error(nil, err)
		os.Exit(1)
	}
}
