package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/learnbot-go/internal/assistant"
	"github.com/54b3r/learnbot-go/internal/ingestion"
	"github.com/54b3r/learnbot-go/internal/llm"
	"github.com/54b3r/learnbot-go/internal/logging"
	"github.com/54b3r/learnbot-go/internal/provider"
	"github.com/54b3r/learnbot-go/internal/safety"
	"github.com/54b3r/learnbot-go/internal/server"
	"github.com/54b3r/learnbot-go/internal/store"
	"github.com/54b3r/learnbot-go/internal/tracing"
)

// NewServeCmd constructs the `learnbot serve` command, which starts the HTTP
// server exposing the chat, upload, and conversation API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the learnbot HTTP server",
		Long: `Start the learnbot HTTP server on localhost.

The server exposes a REST/SSE API: document upload, batch and streaming
chat over the ingested material, conversation history, health/readiness
probes, and Prometheus metrics.

Examples:
  learnbot serve
  learnbot serve --port 9090
  MODEL_PROVIDER=azure learnbot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Env and YAML are loaded by the root PersistentPreRunE, so
			// SERVER_HOST/SERVER_PORT are only consulted here, and explicit
			// flags win over both.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SERVER_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SERVER_PORT", port)
			}

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

			// Langfuse tracing is opt-in; a no-op when keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			var gate safety.Gate = safety.NewLLMGate(chatModel)
			if os.Getenv("SAFETY_DISABLED") == "true" {
				gate = safety.AllowAll{}
				log.Warn("moderation gate disabled via SAFETY_DISABLED")
			}

			emb, vectorStore, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer vectorStore.Close()

			// Conversation store. LEARNBOT_HISTORY_DB overrides the default
			// path (~/.learnbot/conversations.db).
			dbPath := os.Getenv("LEARNBOT_HISTORY_DB")
			if dbPath == "" {
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("serve: failed to resolve conversation DB path: %w", err)
				}
			}
			convStore, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("serve: failed to open conversation store: %w", err)
			}
			defer convStore.Close()
			log.Info("conversation store opened", slog.String("path", dbPath))

			asst, err := assistant.New(&assistant.Config{
				Gate:      gate,
				Embedder:  emb,
				Index:     vectorStore,
				Generator: llm.NewEinoGenerator(chatModel),
				Store:     convStore,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise assistant: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(emb, vectorStore, nil)
			if err != nil {
				return fmt.Errorf("serve: failed to create ingestion pipeline: %w", err)
			}

			srv, err := server.New(server.Deps{
				Responder:     asst,
				Ingester:      pipeline,
				Conversations: convStore,
			}, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewLLMPinger(chatModel, getEnvOrDefault("MODEL_PROVIDER", "ollama")),
					server.NewQdrantPinger(vectorStore.Client()),
				},
				APIKey: os.Getenv("LEARNBOT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
