//go:build profiler
// +build profiler

package stationd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"strings"
	"sync"
	"time"

	"github.com/felixge/fgprof"
)

const (
	cpuProfileEnv  = "AGENT_STATION_CPU_PROFILE"
	memProfileEnv  = "AGENT_STATION_MEM_PROFILE"
	fgprofEnv      = "AGENT_STATION_FGPROF"
	profileSecsEnv = "AGENT_STATION_PROFILE_SECS"
	pprofAddrEnv   = "AGENT_STATION_PPROF_ADDR"

	defaultProfileSecs = 30
)

type daemonProfiler struct {
	cpuPath string
	memPath string
	fgPath  string

	mu       sync.Mutex
	cpuFile  *os.File
	fgFile   *os.File
	fgStop   func() error
	server   *http.Server
	listener net.Listener

	stopOnce sync.Once
}

// startProfiler wires env-driven profiling into the daemon. Returns nil
// when no profiling env var is set.
func startProfiler(ctx context.Context) func() {
	p := &daemonProfiler{
		cpuPath: strings.TrimSpace(os.Getenv(cpuProfileEnv)),
		memPath: strings.TrimSpace(os.Getenv(memProfileEnv)),
		fgPath:  strings.TrimSpace(os.Getenv(fgprofEnv)),
	}
	addr := strings.TrimSpace(os.Getenv(pprofAddrEnv))
	if p.cpuPath == "" && p.memPath == "" && p.fgPath == "" && addr == "" {
		return nil
	}
	if addr != "" {
		p.startHTTP(addr)
	}
	dur := profileDuration()
	p.startCPU(ctx, dur)
	p.startFgprof(ctx, dur)
	go func() {
		<-ctx.Done()
		p.stop()
	}()
	return p.stop
}

func profileDuration() time.Duration {
	raw := strings.TrimSpace(os.Getenv(profileSecsEnv))
	if raw == "" {
		return defaultProfileSecs * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return defaultProfileSecs * time.Second
}

func (p *daemonProfiler) startHTTP(addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Warn("stationd: pprof listen failed", slog.String("addr", addr), slog.Any("err", err))
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/fgprof", fgprof.Handler())

	server := &http.Server{Handler: mux}
	p.mu.Lock()
	p.server = server
	p.listener = ln
	p.mu.Unlock()
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("stationd: pprof server error", slog.Any("err", err))
		}
	}()
	slog.Info("stationd: pprof server listening", slog.String("addr", addr))
}

func (p *daemonProfiler) startCPU(ctx context.Context, dur time.Duration) {
	if p.cpuPath == "" {
		return
	}
	file, err := os.OpenFile(p.cpuPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		slog.Warn("stationd: open cpu profile failed", slog.Any("err", err))
		return
	}
	if err := rpprof.StartCPUProfile(file); err != nil {
		_ = file.Close()
		slog.Warn("stationd: start cpu profile failed", slog.Any("err", err))
		return
	}
	p.mu.Lock()
	p.cpuFile = file
	p.mu.Unlock()
	slog.Info("stationd: cpu profile started", slog.String("path", p.cpuPath))
	go func() {
		timer := time.NewTimer(dur)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		p.stopCPU()
	}()
}

func (p *daemonProfiler) startFgprof(ctx context.Context, dur time.Duration) {
	if p.fgPath == "" {
		return
	}
	file, err := os.OpenFile(p.fgPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		slog.Warn("stationd: open fgprof profile failed", slog.Any("err", err))
		return
	}
	stop := fgprof.Start(file, fgprof.FormatPprof)
	p.mu.Lock()
	p.fgFile = file
	p.fgStop = stop
	p.mu.Unlock()
	slog.Info("stationd: fgprof profile started", slog.String("path", p.fgPath))
	go func() {
		timer := time.NewTimer(dur)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		p.stopFgprof()
	}()
}

func (p *daemonProfiler) stopCPU() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cpuFile == nil {
		return
	}
	rpprof.StopCPUProfile()
	_ = p.cpuFile.Close()
	p.cpuFile = nil
}

func (p *daemonProfiler) stopFgprof() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fgFile == nil {
		return
	}
	if p.fgStop != nil {
		if err := p.fgStop(); err != nil {
			slog.Warn("stationd: fgprof stop failed", slog.Any("err", err))
		}
	}
	_ = p.fgFile.Close()
	p.fgFile = nil
	p.fgStop = nil
}

func (p *daemonProfiler) stop() {
	p.stopOnce.Do(func() {
		p.stopCPU()
		p.stopFgprof()
		if p.memPath != "" {
			p.writeHeap()
		}
		p.mu.Lock()
		server := p.server
		ln := p.listener
		p.server = nil
		p.listener = nil
		p.mu.Unlock()
		if server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = server.Shutdown(ctx)
			cancel()
		}
		if ln != nil {
			_ = ln.Close()
		}
	})
}

func (p *daemonProfiler) writeHeap() {
	file, err := os.OpenFile(p.memPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		slog.Warn("stationd: open heap profile failed", slog.Any("err", err))
		return
	}
	defer file.Close()
	runtime.GC()
	if err := rpprof.WriteHeapProfile(file); err != nil {
		slog.Warn("stationd: heap profile failed", slog.Any("err", err))
		return
	}
	slog.Info("stationd: heap profile written", slog.String("path", p.memPath))
}
