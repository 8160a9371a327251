// fleetqctl is the operator CLI for queue pause state: pause and resume
// named queues, check one queue's status, or list everything paused.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fleetq/fleetq/internal/circuitbreaker"
	"github.com/fleetq/fleetq/internal/config"
	"github.com/fleetq/fleetq/internal/pause"
	"github.com/fleetq/fleetq/internal/queuename"
)

const usage = `Usage: fleetqctl [flags] <command> [queue]

Commands:
  pause <queue>    pause a queue fleet-wide
  resume <queue>   resume a paused queue
  status <queue>   print whether a queue is paused
  list             print all paused queues

Flags:
`

func main() {
	fs := flag.NewFlagSet("fleetqctl", flag.ExitOnError)
	redisAddr := fs.String("redis", "", "Redis address (overrides config)")
	timeout := fs.Duration("timeout", 5*time.Second, "operation timeout")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}
	command := args[0]

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}

	logger := zap.NewNop()
	rdb := circuitbreaker.NewRedisWrapper(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), logger)
	defer rdb.Close()

	// The CLI mutates and reads the shared store directly; it never starts
	// the watcher side of the coordinator.
	coord := pause.NewCoordinator(pause.Options{
		Store:       pause.NewStore(rdb),
		Broadcaster: pause.NewBroadcaster(rdb, logger),
		Codec:       queuename.NewCodec(cfg.Queue.Prefix),
		Logger:      logger,
		Enabled:     true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case "pause":
		name := queueArg(fs, args)
		if err := coord.Pause(ctx, name); err != nil {
			fatal("pause %q: %v", name, err)
		}
		fmt.Printf("paused %q\n", name)
	case "resume":
		name := queueArg(fs, args)
		if err := coord.Resume(ctx, name); err != nil {
			fatal("resume %q: %v", name, err)
		}
		fmt.Printf("resumed %q\n", name)
	case "status":
		name := queueArg(fs, args)
		paused, err := coord.IsPaused(ctx, name)
		if err != nil {
			fatal("status %q: %v", name, err)
		}
		if paused {
			fmt.Printf("%q is paused\n", name)
		} else {
			fmt.Printf("%q is active\n", name)
		}
	case "list":
		names, err := coord.ListPaused(ctx)
		if err != nil {
			fatal("list: %v", err)
		}
		if len(names) == 0 {
			fmt.Println("no paused queues")
			return
		}
		for _, n := range names {
			fmt.Println(n)
		}
	default:
		fs.Usage()
		os.Exit(2)
	}
}

// queueArg returns the required queue name argument, rejecting empty names.
func queueArg(fs *flag.FlagSet, args []string) string {
	if len(args) < 2 || args[1] == "" {
		fs.Usage()
		os.Exit(2)
	}
	return args[1]
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "fleetqctl: "+format+"\n", args...)
	os.Exit(1)
}
