package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bentsi/charybdisfs/internal/controlapi"
	"github.com/bentsi/charybdisfs/internal/engine"
	"github.com/bentsi/charybdisfs/internal/faults"
	"github.com/bentsi/charybdisfs/internal/logger"
	"github.com/bentsi/charybdisfs/internal/registry"
	"github.com/bentsi/charybdisfs/internal/syscalltag"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
)

// runMount wires the shared registry into both the operations engine and
// the control API, mounts the filesystem, and blocks until SIGINT or the
// mount unexpectedly exits.
func runMount(ctx context.Context, source, target string, opts Options) error {
	if err := validateDirectory("source", source); err != nil {
		return err
	}
	if err := validateDirectory("target", target); err != nil {
		return err
	}

	reg := registry.New()
	if opts.StaticENOSPC {
		pct := clampedPercent(opts.StaticENOSPCProbability)
		if _, err := reg.Add(faults.NewError(syscalltag.ALL, pct, int(syscall.ENOSPC))); err != nil {
			return fmt.Errorf("installing static ENOSPC rule: %w", err)
		}
		logger.Infof("static ENOSPC rule installed at %d%% on ALL", pct)
	}

	var apiServer *controlapi.Server
	if opts.RestAPI {
		apiServer = controlapi.New(net.JoinHostPort("127.0.0.1", strconv.Itoa(opts.RestAPIPort)), reg)
		go func() {
			if err := apiServer.Serve(); err != nil {
				logger.Errorf("control API: %s", err)
			}
		}()
	}

	server := engine.NewServer(engine.Config{
		Clock:      timeutil.RealClock(),
		SourceRoot: source,
		Registry:   reg,
	})

	mountCfg := &fuse.MountConfig{
		FSName:  "charybdisfs",
		Subtype: "charybdisfs",
	}
	if opts.Debug {
		logger.SetSeverity(logger.TRACE)
		mountCfg.DebugLogger = logger.NewLegacyLogger(logger.LevelTrace, "fuse_debug: ")
	}

	logger.Infof("mounting %s at %s", source, target)
	mfs, err := fuse.Mount(target, server, mountCfg)
	if err != nil {
		return fmt.Errorf("fuse.Mount: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	done := make(chan error, 1)
	go func() { done <- mfs.Join(ctx) }()

	select {
	case <-sigCh:
		logger.Infof("received interrupt, unmounting %s", target)
		if err := fuse.Unmount(target); err != nil {
			return fmt.Errorf("fuse.Unmount: %w", err)
		}
		<-done
		return nil
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mfs.Join: %w", err)
		}
		return nil
	}
}

// runControlAPIOnly serves the control API without mounting a filesystem,
// for --no-mount invocations. The registry it manages is otherwise inert.
func runControlAPIOnly(ctx context.Context, opts Options) error {
	reg := registry.New()
	apiServer := controlapi.New(net.JoinHostPort("127.0.0.1", strconv.Itoa(opts.RestAPIPort)), reg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	done := make(chan error, 1)
	go func() { done <- apiServer.Serve() }()

	select {
	case <-sigCh:
		logger.Infof("received interrupt, shutting down control API")
		return nil
	case err := <-done:
		return err
	}
}

func validateDirectory(label, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s %q: %w", label, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %q is not a directory", label, path)
	}
	return nil
}
