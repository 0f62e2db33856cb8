package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rendis/waypoint/internal/diagram"
	"github.com/rendis/waypoint/internal/engine"
)

// runDiagram draws a registered workflow, optionally overlaid with the state
// of one of its instances.
func runDiagram(args []string) error {
	cfg := loadConfig()
	fs := flag.NewFlagSet("diagram", flag.ExitOnError)
	cfg.registerFlags(fs)
	format := fs.String("format", "mermaid", "output format: mermaid, ascii, png, svg or dot")
	instanceID := fs.String("instance", "", "overlay the state of this instance")
	outPath := fs.String("o", "", "write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("diagram needs exactly one workflow id")
	}

	ctx := context.Background()
	wf, snap, err := loadDiagramSource(ctx, cfg, fs.Arg(0), *instanceID)
	if err != nil {
		return err
	}
	model, err := diagram.Build(wf, snap)
	if err != nil {
		return err
	}

	var out []byte
	switch *format {
	case "mermaid":
		out = []byte(diagram.RenderMermaid(model))
	case "ascii":
		out = []byte(diagram.RenderASCII(model))
	default:
		out, err = diagram.RenderImage(ctx, model, diagram.ImageFormat(*format))
		if err != nil {
			return err
		}
	}

	if *outPath == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(*outPath, out, 0o644)
}

func loadDiagramSource(ctx context.Context, cfg Config, workflowID, instanceID string) (*engine.Workflow, *engine.Snapshot, error) {
	if instanceID == "" {
		for _, wf := range sampleWorkflows(io.Discard) {
			if wf.ID == workflowID {
				return wf, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("unknown workflow %q", workflowID)
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()
	h, err := newHost(cfg, s, nil, newLogger(cfg.LogLevel))
	if err != nil {
		return nil, nil, err
	}
	defer h.close()
	for _, wf := range sampleWorkflows(io.Discard) {
		if err := h.runtime.Register(wf); err != nil {
			return nil, nil, err
		}
	}

	wf, err := h.runtime.Workflow(workflowID)
	if err != nil {
		return nil, nil, err
	}
	snap, err := h.runtime.Instance(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	return wf, snap, nil
}
