// Package sceneflow provides a top-level convenience entry point for embedding
// the scene engine — state store plus generation pipeline — without running
// the full HTTP gateway.
//
// Usage:
//
//	import "github.com/BaSui01/sceneflow"
//
//	eng, err := sceneflow.New()
//	eng, err := sceneflow.New(sceneflow.WithBackend("https://api.example.com"))
//	eng, err := sceneflow.New(sceneflow.WithTaskClient(myClient), sceneflow.WithHistoryLimit(200))
//
// The pieces are wired the same way cmd/sceneflow wires them: generation
// progress lands on assets in the store, task results surface as
// notifications, and store events fan out on Store.Events().
package sceneflow

import (
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/gen"
	"github.com/BaSui01/sceneflow/scene"
)

// Engine bundles the wired components for in-process use.
type Engine struct {
	// Store is the editor state engine (scene objects, assets, undo history,
	// camera reconciliation, notifications).
	Store *scene.Store
	// Client is the task API client the pipeline talks to.
	Client *gen.Client
	// Pipeline runs upload → create task → poll chains for assets.
	Pipeline *gen.Pipeline
}

// Option configures the engine created by [New].
type Option func(*options)

type options struct {
	backendURL   string
	apiKey       string
	logger       *zap.Logger
	historyLimit int
	poll         gen.PollConfig
	client       *gen.Client
}

// WithBackend sets the task backend base URL (a local proxy or the vendor
// API directly). Defaults to the local proxy address.
func WithBackend(baseURL string) Option {
	return func(o *options) { o.backendURL = baseURL }
}

// WithAPIKey sets the API key sent with task requests. Only needed when
// talking to the vendor directly instead of a key-injecting proxy.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHistoryLimit caps the undo history depth. Zero keeps every snapshot.
func WithHistoryLimit(limit int) Option {
	return func(o *options) { o.historyLimit = limit }
}

// WithPolling overrides the task polling parameters.
func WithPolling(cfg gen.PollConfig) Option {
	return func(o *options) { o.poll = cfg }
}

// WithTaskClient sets a pre-built task client. Overrides WithBackend and
// WithAPIKey.
func WithTaskClient(c *gen.Client) Option {
	return func(o *options) { o.client = c }
}

// New creates a wired [Engine] with minimal configuration.
func New(opts ...Option) (*Engine, error) {
	o := &options{poll: gen.DefaultPollConfig()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	client := o.client
	if client == nil {
		cfg := gen.DefaultClientConfig()
		if o.backendURL != "" {
			u, err := url.Parse(o.backendURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("backend URL must be an absolute http(s) URL: %q", o.backendURL)
			}
			cfg.BaseURL = o.backendURL
		}
		cfg.APIKey = o.apiKey
		client = gen.NewClient(cfg, o.logger)
	}

	store := scene.NewStore(
		scene.WithLogger(o.logger),
		scene.WithHistoryLimit(o.historyLimit),
	)
	pipeline := gen.NewPipeline(client, store, o.poll, o.logger, gen.WithNotifier(store))

	return &Engine{
		Store:    store,
		Client:   client,
		Pipeline: pipeline,
	}, nil
}

// Close cancels in-flight generation jobs and stops the store.
func (e *Engine) Close() {
	e.Pipeline.Close()
	e.Store.Close()
}
