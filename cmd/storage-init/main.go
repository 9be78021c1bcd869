// Command storage-init provisions the Azure tables and queues the board
// server expects.
package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/evercrisp-ai/Ben-OS-sub001/storage"
)

func main() {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("TASKS_TABLE", "Tasks")
	v.SetDefault("BOARDS_TABLE", "Boards")

	if v.GetBool("DEBUG") {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := v.GetString("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	tables := []string{v.GetString("TASKS_TABLE"), v.GetString("BOARDS_TABLE")}
	queues := []string{v.GetString("ACTIVITY_QUEUE")}
	if err := storage.Provision(context.Background(), connStr, tables, queues); err != nil {
		log.Fatalf("provision: %v", err)
	}

	log.Info("storage init complete")
}
