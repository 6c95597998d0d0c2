package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "hexelev.dev/internal/persistence/log"
	"hexelev.dev/internal/persistence/tilecache"
	"hexelev.dev/internal/protocol"
	"hexelev.dev/internal/sim/stream"
	"hexelev.dev/internal/sim/tuning"
	"hexelev.dev/internal/transport/elev"
	"hexelev.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		device     = flag.String("device", "desktop", "device profile: desktop|constrained")
		dataset    = flag.String("dataset", "mapzen", "elevation dataset")
		elevBase   = flag.String("elev_base", "https://api.opentopodata.org", "elevation service base url")
		originFlag = flag.String("origin", "47.600000,-122.330000", "world origin as lat,lng")
		queryMode  = flag.String("query_mode", "latlng", "sample encoding: latlng|geohash")
		disableDB  = flag.Bool("disable_db", false, "disable the tile cache")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	constrained := tuning.DeviceClass(*device) == tuning.DeviceConstrained
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
			if constrained {
				tune = tuning.Constrained()
			}
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if constrained {
		tune.Device = tuning.DeviceConstrained
	}

	origin, err := parseOrigin(*originFlag)
	if err != nil {
		logger.Fatalf("parse origin: %v", err)
	}

	mode := protocol.QueryLatLng
	if *queryMode == string(protocol.QueryGeohash) {
		mode = protocol.QueryGeohash
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	var cache *tilecache.Cache
	if !*disableDB {
		path := tune.Cache.Path
		if path == "" || path == tuning.Defaults().Cache.Path {
			path = filepath.Join(*dataDir, "tilecache.db")
		}
		cache, err = tilecache.Open(path)
		if err != nil {
			logger.Fatalf("open tile cache: %v", err)
		}
		defer cache.Close()
	}

	statusLog := persistlog.NewStatusLogger(*dataDir)
	fetchLog := persistlog.NewFetchLogger(*dataDir)
	defer statusLog.Close()
	defer fetchLog.Close()

	client := elev.NewClient(strings.TrimRight(*elevBase, "/"),
		time.Duration(tune.Fetch.TimeoutMs)*time.Millisecond)

	streamer := stream.New(tune, stream.Config{
		Origin:    origin,
		Dataset:   *dataset,
		QueryMode: mode,
	}, client, cache, fetchLog, logger)

	wsSrv := ws.NewServer(logger, streamer.ReportFrameRate)
	streamer.OnStatusChange = func(st stream.Status) {
		wsSrv.Publish(st)
		if err := statusLog.Write(st); err != nil {
			logger.Printf("status log: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	go streamer.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/status", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(streamer.Status())
	})
	mux.HandleFunc("/v1/height", func(rw http.ResponseWriter, r *http.Request) {
		x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
		z, errZ := strconv.ParseFloat(r.URL.Query().Get("z"), 64)
		if errX != nil || errZ != nil {
			http.Error(rw, "bad x/z", http.StatusBadRequest)
			return
		}
		h, ok := streamer.HeightAt(x, z)
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"height": h, "known": ok})
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		st := streamer.Status()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP hexelev_tiles Current tile count.\n")
		fmt.Fprintf(rw, "# TYPE hexelev_tiles gauge\n")
		fmt.Fprintf(rw, "hexelev_tiles{dataset=%q} %d\n", st.Dataset, st.Tiles)

		fmt.Fprintf(rw, "# HELP hexelev_in_flight Upstream requests in flight.\n")
		fmt.Fprintf(rw, "# TYPE hexelev_in_flight gauge\n")
		fmt.Fprintf(rw, "hexelev_in_flight{dataset=%q} %d\n", st.Dataset, st.InFlight)

		fmt.Fprintf(rw, "# HELP hexelev_queue_depth Scheduler backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE hexelev_queue_depth gauge\n")
		fmt.Fprintf(rw, "hexelev_queue_depth{queue=%q} %d\n", "interactive", st.Scheduler.Depths[0])
		fmt.Fprintf(rw, "hexelev_queue_depth{queue=%q} %d\n", "visual", st.Scheduler.Depths[1])
		fmt.Fprintf(rw, "hexelev_queue_depth{queue=%q} %d\n", "farfield", st.Scheduler.Depths[2])

		fmt.Fprintf(rw, "# HELP hexelev_fetch_total Upstream fetch counters.\n")
		fmt.Fprintf(rw, "# TYPE hexelev_fetch_total counter\n")
		fmt.Fprintf(rw, "hexelev_fetch_total{result=%q} %d\n", "response", st.Metrics.Responses)
		fmt.Fprintf(rw, "hexelev_fetch_total{result=%q} %d\n", "failure", st.Metrics.Failures)
		fmt.Fprintf(rw, "hexelev_fetch_total{result=%q} %d\n", "retry", st.Metrics.Retries)
		fmt.Fprintf(rw, "hexelev_fetch_total{result=%q} %d\n", "abandoned", st.Metrics.Abandoned)

		fmt.Fprintf(rw, "# HELP hexelev_cache_total Tile cache hit/miss counters.\n")
		fmt.Fprintf(rw, "# TYPE hexelev_cache_total counter\n")
		fmt.Fprintf(rw, "hexelev_cache_total{result=%q} %d\n", "hit", st.Metrics.CacheHits)
		fmt.Fprintf(rw, "hexelev_cache_total{result=%q} %d\n", "miss", st.Metrics.CacheMisses)

		fmt.Fprintf(rw, "# HELP hexelev_degrade_level Governor degradation level.\n")
		fmt.Fprintf(rw, "# TYPE hexelev_degrade_level gauge\n")
		fmt.Fprintf(rw, "hexelev_degrade_level %d\n", st.DegradeLevel)
	})

	if envBool("HE_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (HE_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (dataset=%s origin=%s)", *addr, *dataset, origin.Key())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func parseOrigin(s string) (protocol.Origin, error) {
	lat, lng, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return protocol.Origin{}, fmt.Errorf("origin %q: want lat,lng", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return protocol.Origin{}, err
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return protocol.Origin{}, err
	}
	return protocol.Origin{Lat: la, Lng: ln}, nil
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
