// Command taskctl is the operator CLI for the task queue (SPEC_FULL.md
// §C.2): list stuck tasks, force a stuck-sweep cycle, or replay
// a single task back to pending for another attempt. Grounded on the
// teacher's cmd/embedctl/main.go shape: flag.Parse, config.Load, one
// blocking operation, JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"taskmesh/internal/config"
	"taskmesh/internal/executor"
	"taskmesh/internal/model"
	"taskmesh/internal/persistence/databases"
)

func main() {
	log.SetFlags(0)

	cmd := flag.String("cmd", "list", "operation: list | sweep | replay")
	taskID := flag.String("task", "", "task id (required for -cmd=replay)")
	stuckAfter := flag.Duration("stuck-after", 15*time.Minute, "age threshold for -cmd=sweep")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, err := databases.NewManager(ctx, cfg)
	if err != nil {
		log.Fatalf("init persistence: %v", err)
	}
	defer stores.Close()

	switch *cmd {
	case "list":
		runList(ctx, stores.Tasks, *stuckAfter)
	case "sweep":
		runSweep(ctx, stores.Tasks, *stuckAfter)
	case "replay":
		if *taskID == "" {
			log.Fatal("-task is required for -cmd=replay")
		}
		runReplay(ctx, stores.Tasks, *taskID)
	default:
		log.Fatalf("unknown -cmd %q (want list | sweep | replay)", *cmd)
	}
}

func runList(ctx context.Context, tasks databases.TaskStore, stuckAfter time.Duration) {
	stuck, err := tasks.Stuck(ctx, stuckAfter)
	if err != nil {
		log.Fatalf("list stuck tasks: %v", err)
	}
	printTasks("stuck", stuck)
}

func runSweep(ctx context.Context, tasks databases.TaskStore, stuckAfter time.Duration) {
	reverted, err := executor.SweepStuck(ctx, tasks, stuckAfter)
	if err != nil {
		log.Fatalf("sweep: %v", err)
	}
	fmt.Printf("reverted %d stuck task(s) to pending\n", reverted)
}

func runReplay(ctx context.Context, tasks databases.TaskStore, taskID string) {
	task, ok, err := tasks.Get(ctx, taskID)
	if err != nil {
		log.Fatalf("get task: %v", err)
	}
	if !ok {
		log.Fatalf("task %s not found", taskID)
	}
	if task.Status != model.StatusDeferredToHuman && task.Status != model.StatusFailed {
		log.Fatalf("task %s is %s, not deferred_to_human or failed; refusing to replay", taskID, task.Status)
	}
	ok, err = tasks.CompareAndTransition(ctx, taskID, task.Status, model.TaskTransition{
		TaskID: taskID, FromStatus: task.Status, ToStatus: model.StatusPending, Reason: "operator_replay",
	}, func(t *model.Task) {
		t.Status = model.StatusPending
		t.Metadata.DeferredToHuman = false
	})
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	if !ok {
		log.Fatalf("task %s changed status concurrently, not replayed", taskID)
	}
	fmt.Printf("task %s requeued for another attempt\n", taskID)
}

func printTasks(label string, tasks []model.Task) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{label: tasks})
}
