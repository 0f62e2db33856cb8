package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rendis/waypoint/internal/bookmarkqueue"
	"github.com/rendis/waypoint/internal/dispatch"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/logging"
	"github.com/rendis/waypoint/internal/store"
)

const usage = `usage: waypoint <command> [flags]

commands:
  run <workflow>   start an instance and feed it stdin lines
  serve            fire timers and drain the bookmark queue until interrupted
  send             enqueue a resume message read from stdin for a serving host
  workflows        list the registered workflows
  diagram <wf>     draw a workflow as mermaid, ascii, png, svg or dot
  install          write settings.json
  version          print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "run":
		err = runWorkflow(args)
	case "serve":
		err = runServe(args)
	case "send":
		err = runSend(args)
	case "workflows":
		for _, wf := range sampleWorkflows(io.Discard) {
			fmt.Println(wf.ID)
		}
	case "diagram":
		err = runDiagram(args)
	case "install":
		runInstall(args)
	case "version":
		printVersion()
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(level)})
	return slog.New(logging.NewCorrelationHandler(handler))
}

func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", filepath.Dir(cfg.DBPath), err)
	}
	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// boot opens the store and starts a host with the sample workflows.
func boot(ctx context.Context, cfg Config) (*host, func(), error) {
	logger := newLogger(cfg.LogLevel)
	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	h, err := newHost(cfg, s, nil, logger)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	cleanup := func() {
		h.close()
		s.Close()
	}
	if err := h.register(ctx, sampleWorkflows(os.Stdout)...); err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := h.start(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return h, cleanup, nil
}

func runWorkflow(args []string) error {
	cfg := loadConfig()
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg.registerFlags(fs)
	input := fs.String("input", "", "workflow input as a JSON object")
	correlationID := fs.String("correlation-id", "", "correlation id of the new instance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("run needs exactly one workflow id")
	}

	var in map[string]any
	if *input != "" {
		if err := json.Unmarshal([]byte(*input), &in); err != nil {
			return fmt.Errorf("parse -input: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, cleanup, err := boot(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := h.runtime.Start(ctx, fs.Arg(0), engine.StartOptions{CorrelationID: *correlationID, Input: in})
	if err != nil {
		return err
	}
	h.logger.Info("instance started", "instance_id", snap.InstanceID, "status", snap.Status)

	err = h.follow(ctx, snap.InstanceID, scanLines(os.Stdin))
	switch {
	case errors.Is(err, errInstanceEnded):
		return nil
	case errors.Is(err, io.EOF):
		h.logger.Info("input closed, instance stays suspended", "instance_id", snap.InstanceID)
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

func runServe(args []string) error {
	cfg := loadConfig()
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg.registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, cleanup, err := boot(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	h.logger.Info("waypoint serving", "db_path", cfg.DBPath)
	<-ctx.Done()
	h.logger.Info("shutting down")
	return nil
}

// runSend decodes one resume message from stdin and enqueues it. A serving
// host resumes the matching bookmarks on its next queue sweep.
func runSend(args []string) error {
	cfg := loadConfig()
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	cfg.registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	codec, err := dispatch.NewCodec()
	if err != nil {
		return err
	}
	msg, err := codec.Decode(data)
	if err != nil {
		return err
	}
	item, err := dispatch.QueueItem(msg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	q := bookmarkqueue.New(bookmarkqueue.Config{Store: s, Logger: newLogger(cfg.LogLevel)})
	if err := q.Enqueue(ctx, item); err != nil {
		return err
	}
	fmt.Println(item.ID)
	return nil
}

func scanLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}
