package novaos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/novaos/novaos/internal/journal"
	"github.com/novaos/novaos/internal/producer"
	"github.com/novaos/novaos/internal/relay"
	"github.com/novaos/novaos/internal/server"
	"github.com/novaos/novaos/internal/snapshot"
	"github.com/novaos/novaos/internal/store"
	"github.com/novaos/novaos/internal/telemetry"
)

const (
	defaultRelayPort      = 4000
	defaultMetricsPort    = 5000
	defaultMemoryPort     = 6000
	defaultMaxConcurrency = 4
	defaultOpTimeout      = 2 * time.Second
	defaultSubscribeWait  = 5 * time.Second
)

// Service names, as reported by /healthz and accepted by [NovaOS.Port].
const (
	ServiceRelay   = "relay"
	ServiceMetrics = "metrics"
	ServiceMemory  = "memory"
)

// DefaultRelayChannel is the pub/sub channel relayed to clients when none is
// configured.
const DefaultRelayChannel = relay.DefaultChannel

// NovaOS runs the relay, the snapshot and journal services and the
// background producers against one shared store.
//
// It is created using [New] with functional options and started with
// [NovaOS.Start]:
//
//	n, err := novaos.New(
//	    novaos.WithStoreURL(os.Getenv("REDIS_URL")),
//	    novaos.WithProducer(trend),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	n.Start(ctx) // blocks until ctx is cancelled
type NovaOS struct {
	cfg    config
	logger *zap.Logger

	ready chan struct{}

	mu        sync.Mutex
	started   bool
	ports     map[string]int
	scheduler *producer.Scheduler
}

// New creates a [NovaOS] instance with the given options.
//
// A store URL is required ([WithStoreURL]). Other options default to:
//   - Ports: relay 4000, metrics 5000, memory 6000
//   - Relay channel: "novaos:commands"
//   - Max concurrency: 4 producer runs
//
// Services configured on the same port share one listener.
//
// Returns an error if the store URL is missing, a producer name is repeated
// or any option is invalid.
func New(opts ...Option) (*NovaOS, error) {
	cfg := config{
		opTimeout:      defaultOpTimeout,
		subscribeWait:  defaultSubscribeWait,
		relayPort:      defaultRelayPort,
		metricsPort:    defaultMetricsPort,
		memoryPort:     defaultMemoryPort,
		relayChannel:   relay.DefaultChannel,
		queueKey:       snapshot.DefaultQueueKey,
		journalKey:     journal.DefaultKey,
		clientQueue:    relay.DefaultQueueSize,
		maxConcurrency: defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.storeURL == "" {
		return nil, errors.New("store URL is required")
	}

	// names key the scheduler's per-producer timing and status
	seen := make(map[string]bool, len(cfg.producers))
	for _, p := range cfg.producers {
		if p.run == nil {
			return nil, fmt.Errorf("producer %q was not created with NewProducer", p.name)
		}
		if seen[p.name] {
			return nil, fmt.Errorf("duplicate producer name: %q", p.name)
		}
		seen[p.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}

	return &NovaOS{
		cfg:    cfg,
		logger: logger,
		ready:  make(chan struct{}),
	}, nil
}

// Start connects to the store, binds every service and runs the relay and
// producers.
//
// Start blocks until ctx is cancelled, then shuts everything down and
// returns nil. It returns an error if the store URL cannot be used, a port
// cannot be bound, or Start was already called.
func (n *NovaOS) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return errors.New("novaos already started")
	}
	n.started = true
	n.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}

	st, err := store.Open(store.RedisOptions{
		URL:       n.cfg.storeURL,
		OpTimeout: n.cfg.opTimeout,
		Backoff:   store.Backoff{Base: n.cfg.backoffBase, Max: n.cfg.backoffMax},
		Logger:    n.logger.Named("store"),
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	metrics, err := telemetry.New(n.cfg.registry)
	if err != nil {
		return err
	}

	rl := relay.New(st, n.cfg.relayChannel,
		relay.NewHub(n.cfg.clientQueue, metrics, n.logger.Named("hub")),
		metrics, n.logger.Named("relay"))
	reader := snapshot.NewReader(st, snapshot.DefaultCounters(n.cfg.queueKey), metrics, n.logger.Named("snapshot"))
	snap := snapshot.NewService(st, reader, n.logger.Named("snapshot"))
	jrnl := journal.NewService(st, n.cfg.journalKey, metrics, n.logger.Named("journal"))

	publisher, err := producer.NewPublisher(st, n.cfg.relayChannel)
	if err != nil {
		return err
	}
	tasks := make([]producer.Task, len(n.cfg.producers))
	for i, p := range n.cfg.producers {
		tasks[i] = p.task(st)
	}
	scheduler := producer.NewScheduler(tasks, n.cfg.maxConcurrency, st, publisher, metrics, n.logger.Named("producer"))
	n.mu.Lock()
	n.scheduler = scheduler
	n.mu.Unlock()

	servers := n.buildServers(st, map[string]func(*server.Server){
		ServiceRelay: func(s *server.Server) { rl.Register(s) },
		ServiceMetrics: func(s *server.Server) {
			snap.Register(s)
			s.Handle("GET /prometheus", metrics.Handler())
			s.HandleFunc("GET /producers", n.handleProducers)
		},
		ServiceMemory: func(s *server.Server) { jrnl.Register(s) },
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ports := make(map[string]int, 3)
	for _, b := range servers {
		if err := b.srv.Start(runCtx); err != nil {
			cancel()
			for _, started := range servers {
				if started.srv.Port() != 0 {
					<-started.srv.Done()
				}
			}
			return fmt.Errorf("failed to start %s server: %w", b.srv.Name(), err)
		}
		for _, name := range b.services {
			ports[name] = b.srv.Port()
		}
	}

	n.mu.Lock()
	n.ports = ports
	n.mu.Unlock()

	n.logger.Info("novaos started",
		zap.Int("relay_port", ports[ServiceRelay]),
		zap.Int("metrics_port", ports[ServiceMetrics]),
		zap.Int("memory_port", ports[ServiceMemory]),
		zap.String("channel", n.cfg.relayChannel),
		zap.Int("producers", len(tasks)),
	)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return rl.Run(gctx)
	})

	// producers' first runs publish immediately, so hold them until the
	// relay is listening
	n.awaitSubscription(gctx, rl)

	scheduler.Start(gctx)
	g.Go(func() error {
		for result := range scheduler.Results() {
			// each callback gets its own copy of the event
			for _, cb := range n.cfg.runCallbacks {
				invokeCallbackSafe(cb, toRunResult(result), n.logger)
			}
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	close(n.ready)

	err = g.Wait()
	cancel()
	for _, b := range servers {
		<-b.srv.Done()
	}
	checkClient.Close()

	if err != nil {
		return fmt.Errorf("relay stopped: %w", err)
	}
	n.logger.Info("novaos stopped")
	return nil
}

// awaitSubscription blocks until the relay's subscription is confirmed, the
// subscribe wait expires or ctx is done.
func (n *NovaOS) awaitSubscription(ctx context.Context, rl *relay.Relay) {
	timer := time.NewTimer(n.cfg.subscribeWait)
	defer timer.Stop()

	select {
	case <-rl.Subscribed():
	case <-timer.C:
		n.logger.Warn("relay subscription not confirmed, starting anyway",
			zap.String("channel", n.cfg.relayChannel),
			zap.Duration("waited", n.cfg.subscribeWait),
		)
	case <-ctx.Done():
	}
}

type boundServer struct {
	srv      *server.Server
	services []string
}

// buildServers creates one server per distinct port and mounts every
// service configured on that port.
func (n *NovaOS) buildServers(st store.Store, mounts map[string]func(*server.Server)) []boundServer {
	byPort := map[int][]string{}
	for name, port := range n.Ports() {
		byPort[port] = append(byPort[port], name)
	}

	ports := make([]int, 0, len(byPort))
	for port := range byPort {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	ready := func(ctx context.Context) error { return st.Ping(ctx) }

	servers := make([]boundServer, 0, len(ports))
	for _, port := range ports {
		services := byPort[port]
		sort.Strings(services)
		srv := server.NewServer(strings.Join(services, "+"), port, ready, n.logger.Named("http"))
		for _, name := range services {
			mounts[name](srv)
		}
		servers = append(servers, boundServer{srv: srv, services: services})
	}
	return servers
}

// Ready returns a channel that is closed once every service is listening
// and the relay's subscription is confirmed (or [WithSubscribeWait] has
// expired). A message published after Ready reaches every connected client.
func (n *NovaOS) Ready() <-chan struct{} {
	return n.ready
}

// Ports returns the configured port of each service, keyed by service name.
func (n *NovaOS) Ports() map[string]int {
	return map[string]int{
		ServiceRelay:   n.cfg.relayPort,
		ServiceMetrics: n.cfg.metricsPort,
		ServiceMemory:  n.cfg.memoryPort,
	}
}

// Port returns the port service is actually listening on, or 0 before
// [NovaOS.Ready] is closed. Useful when the configured port is 0.
func (n *NovaOS) Port(service string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ports[service]
}

// Producers returns a copy of the configured producers.
func (n *NovaOS) Producers() []Producer {
	cp := make([]Producer, len(n.cfg.producers))
	copy(cp, n.cfg.producers)
	return cp
}

// RelayChannel returns the channel relayed to clients.
func (n *NovaOS) RelayChannel() string {
	return n.cfg.relayChannel
}

// Statuses returns the supervision record of every producer, in
// configuration order. Before Start, each record is empty.
func (n *NovaOS) Statuses() []ProducerStatus {
	n.mu.Lock()
	scheduler := n.scheduler
	n.mu.Unlock()

	if scheduler == nil {
		out := make([]ProducerStatus, len(n.cfg.producers))
		for i, p := range n.cfg.producers {
			out[i] = ProducerStatus{Name: p.name, Interval: p.interval.String()}
		}
		return out
	}

	statuses := scheduler.Statuses()
	out := make([]ProducerStatus, len(statuses))
	for i, s := range statuses {
		out[i] = toProducerStatus(s)
	}
	return out
}

func (n *NovaOS) handleProducers(w http.ResponseWriter, _ *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string][]ProducerStatus{"producers": n.Statuses()})
}

// invokeCallbackSafe calls a run callback with panic recovery.
func invokeCallbackSafe(cb func(RunResult), result RunResult, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run callback panicked",
				zap.Any("panic", r),
				zap.String("producer", result.Producer),
			)
		}
	}()
	cb(result)
}
