package main

import (
	"flag"
	"fmt"

	"lifemonitor/app/config"
	"lifemonitor/app/db"
	"lifemonitor/app/engine/server"
	"lifemonitor/app/objects"
	"lifemonitor/pkg/contextx"
)

var configFile = flag.String("config", "", "path of the configuration file")

func main() {
	flag.Parse()
	if err := config.Initialize(*configFile); err != nil {
		panic(err)
	}
	if err := server.InitDB(config.Config.Database); err != nil {
		panic(err)
	}
	if err := db.Migrate(); err != nil {
		panic(err)
	}
	if err := objects.SyncRegistries(contextx.NewContext(), config.Config.Registries); err != nil {
		panic(err)
	}
	fmt.Println("Create tables over!")
}
