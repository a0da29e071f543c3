package app

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/quarry/internal/adapters/config"             //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/fs"                 //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/logger"             //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/metrics"            //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/ondisk"             //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/telemetry"          //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/adapters/watcher"            //nolint:depguard // Wired in app layer
	"go.trai.ch/quarry/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App    *App
	Logger ports.Logger
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			ondisk.NodeID,
			fs.SourceReaderNodeID,
			metrics.NodeID,
			telemetry.TracerNodeID,
			telemetry.ProfilerNodeID,
			progrock.NodeID,
			watcher.WatcherNodeID,
			watcher.HashCacheNodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			a, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return &Components{App: a, Logger: log}, nil
		},
	})
}

//nolint:cyclop // One lookup per dependency
func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	store, err := graft.Dep[ports.IncrementalStore](ctx)
	if err != nil {
		return nil, err
	}
	sources, err := graft.Dep[ports.SourceReader](ctx)
	if err != nil {
		return nil, err
	}
	rec, err := graft.Dep[*metrics.Recorder](ctx)
	if err != nil {
		return nil, err
	}
	otelTracer, err := graft.Dep[*telemetry.OTelTracer](ctx)
	if err != nil {
		return nil, err
	}
	profiler, err := graft.Dep[*telemetry.Profiler](ctx)
	if err != nil {
		return nil, err
	}
	rock, err := graft.Dep[*progrock.Recorder](ctx)
	if err != nil {
		return nil, err
	}
	w, err := graft.Dep[ports.Watcher](ctx)
	if err != nil {
		return nil, err
	}
	hashes, err := graft.Dep[*watcher.HashCache](ctx)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	tracers := Tracers{OTel: otelTracer, Profiler: profiler, Progrock: rock}
	return New(loader, log, store, sources, rec, tracers).
		WithWatcher(w, hashes).
		WithRoot(cwd), nil
}
