package novaos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/novaos/novaos/internal/producer"
	"github.com/novaos/novaos/internal/snapshot"
)

// Store keys of the counters served by GET /metrics.
const (
	QueueKey         = snapshot.DefaultQueueKey
	StreamsActiveKey = snapshot.StreamsActiveKey
	RevenueKey       = snapshot.RevenueKey
	UsersKey         = snapshot.UsersKey
)

const (
	trendFetcherInterval = 2 * time.Hour
	timeSentinelInterval = 24 * time.Hour

	// DefaultThresholdDays is how close a [TimeSentinel] deadline must be
	// before it starts announcing.
	DefaultThresholdDays = 20

	defaultGoal = "$25k/mo goal"
)

// TrendFetcher returns a producer that increments the active streams
// counter on every run and announces the new value. It runs every 2 hours
// unless opts override the interval.
func TrendFetcher(opts ...ProducerOption) (Producer, error) {
	opts = append([]ProducerOption{WithInterval(trendFetcherInterval)}, opts...)
	return NewProducer("TrendFetcher", func(ctx context.Context, st Store) (*Event, error) {
		n, err := st.Incr(ctx, StreamsActiveKey)
		if err != nil {
			return nil, fmt.Errorf("increment %s: %w", StreamsActiveKey, err)
		}
		return &Event{Text: fmt.Sprintf("Stream incremented to %d", n)}, nil
	}, opts...)
}

// Deadline configures a [TimeSentinel].
type Deadline struct {
	// At is the deadline itself.
	At time.Time

	// Goal names what is due. Defaults to "$25k/mo goal".
	Goal string

	// ThresholdDays: the sentinel announces only while fewer than this many
	// days remain. Defaults to [DefaultThresholdDays].
	ThresholdDays int

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// TimeSentinel returns a producer that counts the days left until d.At,
// rounding partial days up, and announces the count once it drops below the
// threshold. It runs daily unless opts override the interval.
//
// A deadline that has passed counts as 0 days left.
func TimeSentinel(d Deadline, opts ...ProducerOption) (Producer, error) {
	if d.At.IsZero() {
		return Producer{}, errors.New("time sentinel requires a deadline")
	}
	if d.ThresholdDays < 0 {
		return Producer{}, errors.New("threshold days cannot be negative")
	}
	if d.ThresholdDays == 0 {
		d.ThresholdDays = DefaultThresholdDays
	}
	if d.Goal == "" {
		d.Goal = defaultGoal
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}

	opts = append([]ProducerOption{WithInterval(timeSentinelInterval)}, opts...)
	return NewProducer("TimeSentinel", func(context.Context, Store) (*Event, error) {
		days := daysUntil(d.Clock(), d.At)
		if days >= d.ThresholdDays {
			return nil, nil
		}
		return &Event{Text: fmt.Sprintf("%d days to %s - Accelerate streams!", days, d.Goal)}, nil
	}, opts...)
}

// daysUntil returns the whole days from now until at, rounded up, and never
// less than zero.
func daysUntil(now, at time.Time) int {
	const day = 24 * time.Hour
	left := at.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left / day)
	if left%day != 0 {
		days++
	}
	return days
}

// checkClient is shared by every HTTPCheck so they draw from one connection
// pool.
var checkClient = producer.NewClient()

type checkConfig struct {
	method       string
	headers      map[string]string
	extract      HealthExtractor
	everyRun     bool
	producerOpts []ProducerOption
}

// CheckOption configures an [HTTPCheck].
type CheckOption func(*checkConfig) error

// WithMethod sets the request method: GET (default), HEAD or POST.
func WithMethod(method string) CheckOption {
	return func(cfg *checkConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithHeaders adds request headers as key-value pairs.
//
//	novaos.WithHeaders("Authorization", "Bearer token")
func WithHeaders(keyValues ...string) CheckOption {
	return func(cfg *checkConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithExtractor sets how responses are judged. Defaults to [DefaultHealth].
func WithExtractor(e HealthExtractor) CheckOption {
	return func(cfg *checkConfig) error {
		if e == nil {
			return errors.New("extractor cannot be nil")
		}
		cfg.extract = e
		return nil
	}
}

// AnnounceEveryRun makes the check publish its result on every run instead
// of only when the health changes.
func AnnounceEveryRun() CheckOption {
	return func(cfg *checkConfig) error {
		cfg.everyRun = true
		return nil
	}
}

// WithSchedule passes interval and timeout options through to the
// underlying producer.
func WithSchedule(opts ...ProducerOption) CheckOption {
	return func(cfg *checkConfig) error {
		cfg.producerOpts = append(cfg.producerOpts, opts...)
		return nil
	}
}

// HTTPCheck returns a producer that requests rawURL on every run and
// announces "<name> is up|degraded|down (...)". By default it announces the
// first result and then only changes in health.
//
// An unreachable or timed-out target is reported as down and an oversized
// response as degraded; none of these fail the run. A cancelled run or a
// request that cannot be built does fail it.
func HTTPCheck(name, rawURL string, opts ...CheckOption) (Producer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Producer{}, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Producer{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &checkConfig{
		method:  http.MethodGet,
		headers: make(map[string]string),
		extract: DefaultHealth,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Producer{}, err
		}
	}

	var (
		mu   sync.Mutex
		last Health
	)
	return NewProducer(name, func(ctx context.Context, _ Store) (*Event, error) {
		reply, err := checkClient.Check(ctx, producer.Target{Method: cfg.method, URL: rawURL, Headers: cfg.headers})
		health, detail, err := judge(reply, err, cfg.extract)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf("%s is %s (%s)", name, health, detail)

		mu.Lock()
		changed := health != last
		last = health
		mu.Unlock()

		if !changed && !cfg.everyRun {
			return nil, nil
		}
		return &Event{Text: text}, nil
	}, cfg.producerOpts...)
}

// judge turns one check request into a health and the detail announced
// after it.
func judge(reply producer.Reply, err error, extract HealthExtractor) (Health, string, error) {
	if err == nil {
		return extract(reply.Body, reply.StatusCode), fmt.Sprintf("%d, %dms", reply.StatusCode, reply.Latency.Milliseconds()), nil
	}

	reason, ok := producer.FailureOf(err)
	if !ok {
		return "", "", err
	}
	switch reason {
	case producer.ReasonCanceled, producer.ReasonInvalid:
		return "", "", err
	case producer.ReasonTimeout:
		return HealthDown, fmt.Sprintf("timeout after %dms", reply.Latency.Milliseconds()), nil
	case producer.ReasonOversized:
		return HealthDegraded, fmt.Sprintf("%d, %s", reply.StatusCode, reason), nil
	default:
		return HealthDown, string(reason), nil
	}
}
