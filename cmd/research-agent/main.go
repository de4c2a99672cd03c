package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/m2tx/research_agent/assets"
	"github.com/m2tx/research_agent/internal/agent"
	"github.com/m2tx/research_agent/internal/config"
	"github.com/m2tx/research_agent/internal/functions"
	"github.com/m2tx/research_agent/internal/model"
	"github.com/m2tx/research_agent/internal/sources"
	"github.com/m2tx/research_agent/internal/web"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/tools"
	"google.golang.org/genai"
)

var version = "dev"

func main() {
	config.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(config.New(assets.SystemInstruction)).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "research-agent",
		Short:         "Answer research questions with arXiv, Wikipedia and web search",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr(), logLevel)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.String("model", "", "Gemini model name")
	flags.Int("max-rounds", 0, "maximum number of tool rounds per question")
	flags.Bool("arxiv-full-text", false, "read the best matching passage from each paper's PDF")
	mustBind(v, config.KeyModel, flags.Lookup("model"))
	mustBind(v, config.KeyMaxRounds, flags.Lookup("max-rounds"))
	mustBind(v, config.KeyArxivFullText, flags.Lookup("arxiv-full-text"))

	serve := newServeCommand(v)
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newAskCommand(v), newMCPCommand(v))

	return root
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := buildAgent(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			s, err := web.New(a, cfg.RequestTimeout)
			if err != nil {
				return err
			}
			return s.ListenAndServe(cmd.Context(), cfg.Addr())
		},
	}
	cmd.Flags().String("port", "", "HTTP port")
	mustBind(v, config.KeyHTTPPort, cmd.Flags().Lookup("port"))
	return cmd
}

func newAskCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a single question and print the conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if strings.TrimSpace(question) == "" {
				return errors.New("please enter a valid query")
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := buildAgent(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
			defer cancel()

			result, runErr := a.Run(ctx, question)
			if result != nil {
				printMessages(cmd.OutOrStdout(), result.Messages)
			}
			return runErr
		},
	}
}

func newMCPCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the search tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if err := cfg.ValidateWebSearch(); err != nil {
				return err
			}

			s := functions.NewMCPServer("research-agent", version, functions.Research(newSources(cfg))...)
			return server.ServeStdio(s)
		},
	}
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return cfg, nil
}

func newSources(cfg *config.Config) (papers, encyclopedia, search tools.Tool) {
	papers = sources.NewArxiv(sources.Limits{MaxResults: cfg.Arxiv.TopK, MaxChars: cfg.Arxiv.MaxChars}, cfg.ArxivFullText)
	encyclopedia = sources.NewWikipedia(sources.Limits{MaxResults: cfg.Wikipedia.TopK, MaxChars: cfg.Wikipedia.MaxChars}, cfg.WikipediaLang)
	search = sources.NewTavily(cfg.TavilyAPIKey, sources.Limits{MaxResults: cfg.Tavily.TopK, MaxChars: cfg.Tavily.MaxChars}, cfg.TavilyDepth)
	return papers, encyclopedia, search
}

func buildAgent(ctx context.Context, cfg *config.Config) (*agent.Agent, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}

	gemini := agent.NewGemini(client, cfg.Model, cfg.SystemInstruction)
	a := agent.New(gemini,
		agent.WithMaxRounds(cfg.MaxRounds),
		agent.WithParallelTools(cfg.ParallelTools),
		agent.WithToolTimeout(cfg.ToolTimeout),
	)

	for _, fd := range functions.Research(newSources(cfg)) {
		if err := a.AddFunctionCall(fd); err != nil {
			return nil, err
		}
	}
	gemini.BindTools(a.Declarations())

	return a, nil
}

func printMessages(w io.Writer, messages []model.Message) {
	for _, m := range messages {
		label := string(m.Role)
		if label != "" {
			label = strings.ToUpper(label[:1]) + label[1:]
		}
		fmt.Fprintf(w, "=== %s Message ===\n", label)
		if m.Name != "" {
			fmt.Fprintf(w, "[%s]\n", m.Name)
		}
		if m.Content != "" {
			fmt.Fprintln(w, m.Content)
		}
		for _, call := range m.ToolCalls {
			fmt.Fprintf(w, "-> %s(%v)\n", call.Name, call.Args)
		}
		fmt.Fprintln(w)
	}
}

func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
