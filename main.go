package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jcpsimmons/ragask/pkg/api"
	"github.com/jcpsimmons/ragask/pkg/config"
	"github.com/jcpsimmons/ragask/pkg/database"
	"github.com/jcpsimmons/ragask/pkg/embedding"
	"github.com/jcpsimmons/ragask/pkg/logging"
	"github.com/jcpsimmons/ragask/pkg/pipeline"
	"github.com/jcpsimmons/ragask/pkg/qa"
	"github.com/jcpsimmons/ragask/pkg/textproc"
	"github.com/jcpsimmons/ragask/pkg/vectorstore"
)

const defaultInputFile = "./Sample.pdf"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ragask",
		Short: "Ask a language model about a PDF or text file",
		Long: "ragask loads a document, splits it into chunks, stores their embeddings in a fresh " +
			"vector store namespace and asks a language model a question with the closest chunks as context.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(createRunCommand())
	rootCmd.AddCommand(createIngestCommand())
	rootCmd.AddCommand(createAskCommand())
	rootCmd.AddCommand(createRunsCommand())
	rootCmd.AddCommand(createInspectCommand())
	rootCmd.AddCommand(createPurgeCommand())
	rootCmd.AddCommand(createServeCommand())

	return rootCmd
}

func createRunCommand() *cobra.Command {
	var inputFile, namespace, query string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest a file into a new namespace and ask one question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.pipeline.Run(cmd.Context(), inputFile, namespace, query)
			return err
		},
	}

	cmd.Flags().StringVarP(&inputFile, "file", "f", defaultInputFile, "Input PDF or text file")
	cmd.Flags().StringVarP(&query, "query", "q", qa.DefaultQuery, "Question to ask")
	cmd.Flags().StringVar(&namespace, "namespace", "", "Namespace to write to (default: current Unix time in ms)")

	return cmd
}

func createIngestCommand() *cobra.Command {
	var inputFile, namespace string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk a file and store its embeddings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.pipeline.Ingest(cmd.Context(), inputFile, namespace)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Namespace: %s\n", run.Namespace)
			fmt.Fprintf(out, "Stored %d chunks in %s (run %s)\n", run.ChunkCount, run.Backend, run.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "Input PDF or text file")
	cmd.Flags().StringVar(&namespace, "namespace", "", "Namespace to write to (default: current Unix time in ms)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func createAskCommand() *cobra.Command {
	var namespace, query string
	var topK int
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a question against an existing namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			if topK > 0 {
				a.pipeline.Asker.TopK = topK
			}

			var runID string
			run, err := a.ledger.GetRunByNamespace(namespace)
			switch {
			case err == nil:
				runID = run.ID
			case !errors.Is(err, database.ErrRunNotFound):
				return err
			}

			answer, err := a.pipeline.Ask(cmd.Context(), runID, namespace, query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Response: %s\n", answer.Text)
			if showSources {
				for i, src := range answer.Sources {
					fmt.Fprintf(out, "\n[%d] score=%.3f page=%d\n%s\n", i+1, src.Score, textproc.PageOf(src), src.PageContent)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to query")
	cmd.Flags().StringVarP(&query, "query", "q", qa.DefaultQuery, "Question to ask")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (0 uses TOP_K)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the retrieved chunks")
	cmd.MarkFlagRequired("namespace")

	return cmd
}

func createRunsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadUnvalidated()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)

			db, err := database.NewDB(cfg.LedgerPath)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer db.Close()

			runs, err := db.GetRuns()
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
}

func printRuns(w io.Writer, runs []database.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAMESPACE\tBACKEND\tCHUNKS\tFILE\tCREATED\tRUN ID")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Namespace, r.Backend, r.ChunkCount, r.FilePath, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.ID)
	}
	return tw.Flush()
}

func createInspectCommand() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show how many vectors and chunks a namespace holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Namespace: %s\n", namespace)
			fmt.Fprintf(out, "Backend:   %s\n", a.store.Backend())

			size, err := a.store.NamespaceSize(cmd.Context(), namespace)
			switch {
			case err == nil:
				fmt.Fprintf(out, "Vectors:   %d\n", size)
			case errors.Is(err, vectorstore.ErrUnsupported):
				fmt.Fprintln(out, "Vectors:   unknown (backend cannot report namespace size)")
			default:
				return err
			}

			chunks, err := a.ledger.CountChunksInNamespace(namespace)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Chunks:    %d (ledger)\n", chunks)
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to inspect")
	cmd.MarkFlagRequired("namespace")

	return cmd
}

func createPurgeCommand() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete a namespace's vectors and its ledger runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.DeleteNamespace(cmd.Context(), namespace); err != nil {
				return err
			}

			n, err := a.ledger.DeleteNamespace(namespace)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Purged namespace %s (%d runs removed from ledger)\n", namespace, n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to delete")
	cmd.MarkFlagRequired("namespace")

	return cmd
}

func createServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API over the ledger and the ask operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			return api.NewServer(a.ledger, a.pipeline).ListenAndServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Server port")

	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// app holds everything a command that touches the vector store needs.
type app struct {
	cfg      *config.Config
	ledger   *database.DB
	store    vectorstore.Store
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context, out io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Provider == config.ProviderOllama {
		client := embedding.NewOllamaClient(cfg.OllamaHost, nil)
		if err := client.CheckConnection(ctx); err != nil {
			return nil, err
		}
		if err := client.CheckModelsAvailable(ctx, cfg.OllamaModel, cfg.OllamaEmbeddingModel); err != nil {
			return nil, err
		}
	}

	embedder, err := embedding.New(cfg)
	if err != nil {
		return nil, err
	}

	llm, err := qa.NewLLM(cfg)
	if err != nil {
		return nil, err
	}

	splitter, err := textproc.NewSplitter(cfg.Splitter, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	ledger, err := database.NewDB(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	store, err := vectorstore.New(ctx, cfg, embedder, ledger)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		ledger: ledger,
		store:  store,
		pipeline: &pipeline.Pipeline{
			Splitter: splitter,
			Store:    store,
			Asker: &qa.Asker{
				LLM:         llm,
				Store:       store,
				TopK:        cfg.TopK,
				Temperature: cfg.Temperature,
			},
			Ledger:          ledger,
			Out:             out,
			Progress:        os.Stderr,
			UpsertBatchSize: cfg.UpsertBatchSize,
			UpsertWorkers:   cfg.UpsertWorkers,
		},
	}, nil
}

func (a *app) Close() error {
	return a.ledger.Close()
}
