// Package skkserver wires config, logging, metrics, the open dictionary
// set, the reload gate, and the connection pool into the running server —
// the "main loop" of spec.md §4.4/§5, grounded on the way the teacher's
// cmd-rpc.go Action assembles a multi-epoch server from its own
// collaborators before calling into a long-running Run.
package skkserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/yaskkserv/yaskkserv-go/internal/config"
	"github.com/yaskkserv/yaskkserv-go/internal/dictionary"
	"github.com/yaskkserv/yaskkserv-go/internal/dispatch"
	"github.com/yaskkserv/yaskkserv-go/internal/imecache"
	"github.com/yaskkserv/yaskkserv-go/internal/metrics"
	"github.com/yaskkserv/yaskkserv-go/internal/pool"
	"github.com/yaskkserv/yaskkserv-go/internal/reload"
)

// Version is the string the '2' command returns.
var Version = "yaskkserv-go"

// Server owns every long-lived collaborator for one run of the listener.
type Server struct {
	cfg          *config.Config
	pool         *pool.Pool
	dispatcher   *dispatch.Dispatcher
	dictionaries []*dictionary.Dictionary
	gate         *reload.Gate
	watcher      interface{ Close() error }
	imeClient    *imecache.Client
}

// Open opens the listener and every configured dictionary, builds the
// dispatcher, and wires the reload gate. Any failure here is
// startup-fatal per §7.
func Open(cfg *config.Config) (*Server, error) {
	dicts := make([]*dictionary.Dictionary, 0, len(cfg.DictionaryPaths))
	handles := make([]dispatch.DictionaryHandle, 0, len(cfg.DictionaryPaths))
	for _, path := range cfg.DictionaryPaths {
		d, err := dictionary.Open(path)
		if err != nil {
			for _, opened := range dicts {
				opened.Close()
			}
			return nil, fmt.Errorf("opening dictionary %q: %w", path, err)
		}
		dicts = append(dicts, d)
		handles = append(handles, dispatch.DictionaryHandle{Dict: d})
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	disp := dispatch.New(Version, hostname)
	disp.Dictionaries = handles
	disp.CompletionLimit = cfg.CompletionMidasiLength
	disp.CompletionBufferSize = cfg.CompletionMidasiStringSize
	disp.CompletionSeparator = cfg.CompletionSeparator()
	disp.CompletionAliasC = cfg.CompletionAliasC()

	var imeClient *imecache.Client
	if cfg.IMEServerURL != "" {
		fastEntries, largeEntries := 256, 256
		imeClient = imecache.NewClient(cfg.IMEServerURL, time.Duration(cfg.IMETimeoutMs)*time.Millisecond, fastEntries, largeEntries)
		if cfg.IMECacheFile != "" {
			if err := imeClient.LoadCache(cfg.IMECacheFile); err != nil {
				klog.Warningf("ime cache: could not load %q, starting empty: %v", cfg.IMECacheFile, err)
			}
		}
		disp.IME = imeClient
	}

	addr := net.JoinHostPort(cfg.Address, fmt.Sprint(cfg.Port))
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		for _, d := range dicts {
			d.Close()
		}
		return nil, fmt.Errorf("resolving listen address %q: %w", addr, err)
	}
	listener, err := net.ListenTCP("tcp4", tcpAddr)
	if err != nil {
		for _, d := range dicts {
			d.Close()
		}
		return nil, fmt.Errorf("listening on %q: %w", addr, err)
	}

	p := pool.New(listener, cfg.MaxConnection)
	p.OnAccept = metrics.ConnectionsAcceptedTotal.Inc
	gate := reload.NewGate()

	s := &Server{
		cfg:          cfg,
		pool:         p,
		dispatcher:   disp,
		dictionaries: dicts,
		gate:         gate,
		imeClient:    imeClient,
	}

	if cfg.CheckUpdate {
		w, err := reload.WatchFiles(gate, cfg.DictionaryPaths)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("starting dictionary watch: %w", err)
		}
		s.watcher = w
	}

	return s, nil
}

// Run drives the connection pool's select loop until ctx is canceled,
// installing the SIGHUP->gate translator for the lifetime of the call.
func (s *Server) Run(ctx context.Context) error {
	stopSighup := make(chan struct{})
	reload.WatchSIGHUP(s.gate, stopSighup)
	defer close(stopSighup)

	handle := func(slot *pool.Slot) ([]byte, bool) {
		metrics.ConnectionsActive.Set(float64(s.activeSlots()))
		start := time.Now()
		cmd := "unknown"
		if slot.ReadProcessIndex > 0 {
			cmd = string(slot.ReadBuf[0])
		}
		switch cmd {
		case "1":
			metrics.LookupsTotal.Inc()
		case "4", "c":
			metrics.CompletionsTotal.Inc()
		}

		reply, closeSlot := s.dispatcher.Handle(slot)

		if cmd == "1" && len(reply) > 0 {
			if reply[0] == '1' {
				metrics.LookupResultTotal.WithLabelValues("hit").Inc()
			} else {
				metrics.LookupResultTotal.WithLabelValues("not_found").Inc()
			}
		}
		metrics.RequestDuration.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
		return reply, closeSlot
	}

	shouldReload := func() bool { return s.gate.TakeRequested() }
	doReload := func() { s.reloadDictionaries() }
	stop := func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	return s.pool.Run(handle, shouldReload, doReload, stop)
}

func (s *Server) activeSlots() int {
	n := 0
	for _, slot := range s.pool.Slots() {
		if slot.InUse() {
			n++
		}
	}
	return n
}

// reloadDictionaries re-opens every dictionary whose mtime changed,
// keeping the previously opened handle when a re-open fails (§7's
// "Background" error kind).
func (s *Server) reloadDictionaries() {
	for i, d := range s.dictionaries {
		changed, err := d.IsUpdate()
		if err != nil {
			klog.Warningf("reload: checking %q: %v", d.Path(), err)
			metrics.ReloadsTotal.WithLabelValues("failed").Inc()
			continue
		}
		if !changed {
			metrics.ReloadsTotal.WithLabelValues("unchanged").Inc()
			continue
		}
		fresh, err := dictionary.Open(d.Path())
		if err != nil {
			klog.Warningf("reload: re-opening %q failed, keeping previous: %v", d.Path(), err)
			metrics.ReloadsTotal.WithLabelValues("failed").Inc()
			continue
		}
		d.Close()
		s.dictionaries[i] = fresh
		s.dispatcher.Dictionaries[i].Dict = fresh
		metrics.ReloadsTotal.WithLabelValues("reloaded").Inc()
		klog.Infof("reload: %q reloaded", fresh.Path())
	}
}

// Close releases every collaborator owned by the server: open
// dictionaries, the file watcher, and the IME cache persistence file.
func (s *Server) Close() error {
	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.imeClient != nil && s.cfg.IMECacheFile != "" {
		if err := s.imeClient.SaveCache(s.cfg.IMECacheFile); err != nil {
			klog.Warningf("ime cache: could not save %q: %v", s.cfg.IMECacheFile, err)
		}
	}
	for _, d := range s.dictionaries {
		d.Close()
	}
	return nil
}
