package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/semindex/internal/config"
	"github.com/standardbeagle/semindex/internal/debug"
	"github.com/standardbeagle/semindex/internal/embedding"
	"github.com/standardbeagle/semindex/internal/indexer"
	"github.com/standardbeagle/semindex/internal/jsonexchange"
	"github.com/standardbeagle/semindex/internal/langdispatch"
	"github.com/standardbeagle/semindex/internal/mcpserver"
	"github.com/standardbeagle/semindex/internal/query"
	"github.com/standardbeagle/semindex/internal/store"
	"github.com/standardbeagle/semindex/internal/types"
	"github.com/standardbeagle/semindex/internal/vectorstore"
)

func main() {
	app := &cli.App{
		Name:  "semindex",
		Usage: "code intelligence index: scan, extract, embed and query a codebase",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory to index",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write trace logs to a temp file and print the path on exit",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Run one incremental indexing pass over --root",
				Action: indexCommand,
			},
			{
				Name:   "watch",
				Usage:  "Run an initial pass, then keep --root's index in sync as files change",
				Action: watchCommand,
			},
			{
				Name:      "query",
				Usage:     "Run one C10 operation against the local store",
				ArgsUsage: "<operation> [args...]",
				Action:    queryCommand,
			},
			{
				Name:   "serve-mcp",
				Usage:  "Serve the query surface as MCP tools over stdio",
				Action: serveMCPCommand,
			},
			{
				Name:      "import",
				Usage:     "Import newline-delimited FileIngestRecord JSON from stdin",
				ArgsUsage: "",
				Action:    importCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "semindex:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if c.Bool("debug") {
		path, err := debug.InitLogFile()
		if err == nil {
			fmt.Fprintf(os.Stderr, "debug log: %s\n", path)
		}
	}
	return config.Load(c.String("root"))
}

// openStores opens the relational and vector stores at the paths named in
// cfg.Embedding, creating them on first run.
func openStores(cfg *config.Config) (*store.Store, *vectorstore.Store, error) {
	s, err := store.Open(cfg.Embedding.GraphDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open relational store: %w", err)
	}
	vs, err := vectorstore.Open(cfg.Embedding.VectorDBPath)
	if err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("open vector store: %w", err)
	}
	return s, vs, nil
}

// openEmbedder loads the tokenizer and ONNX model from cfg.Embedding.ModelDir.
// A missing model directory is reported, not silently skipped: embedding is
// part of every index run, so failing fast here beats a confusing empty
// vector store later.
func openEmbedder(cfg *config.Config) (*embedding.Embedder, func(), error) {
	tk, err := embedding.LoadTokenizer(cfg.Embedding.ModelDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load tokenizer: %w", err)
	}
	model, err := embedding.LoadModel(cfg.Embedding.ModelDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load model: %w", err)
	}
	return embedding.New(cfg.Embedding.ModelDir, tk, model), model.Close, nil
}

func indexCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	s, vs, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	defer vs.Close()

	embedder, closeModel, err := openEmbedder(cfg)
	if err != nil {
		return err
	}
	defer closeModel()

	projectID, err := s.UpsertProject(c.Context, cfg.Project.Name, cfg.Project.Root, "")
	if err != nil {
		return err
	}

	ix := &indexer.Indexer{
		Store:      s,
		VecStore:   vs,
		Dispatcher: langdispatch.New(),
		Embedder:   embedder,
		Config:     cfg,
		Project:    types.Project{ID: projectID, Name: cfg.Project.Name, Path: cfg.Project.Root},
	}

	report, err := ix.Run(c.Context)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(report)
}

func watchCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Index.WatchMode = true

	s, vs, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	defer vs.Close()

	embedder, closeModel, err := openEmbedder(cfg)
	if err != nil {
		return err
	}
	defer closeModel()

	projectID, err := s.UpsertProject(c.Context, cfg.Project.Name, cfg.Project.Root, "")
	if err != nil {
		return err
	}

	ix := &indexer.Indexer{
		Store:      s,
		VecStore:   vs,
		Dispatcher: langdispatch.New(),
		Embedder:   embedder,
		Config:     cfg,
		Project:    types.Project{ID: projectID, Name: cfg.Project.Name, Path: cfg.Project.Root},
	}

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return ix.Watch(ctx, func(r *indexer.Report) {
		_ = json.NewEncoder(os.Stdout).Encode(r)
	})
}

func serveMCPCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	s, vs, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	defer vs.Close()

	embedder, closeModel, err := openEmbedder(cfg)
	if err != nil {
		// semantic_search degrades gracefully; every other operation works
		// without a loaded model.
		debug.Logf("serve-mcp: embedding model unavailable, semantic_search disabled: %v", err)
		embedder = nil
	} else {
		defer closeModel()
	}

	surface := &query.Surface{Store: s, VecStore: vs, DefaultLimit: cfg.Query.DefaultLimit}
	srv := mcpserver.New(surface, embedder)

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}

func importCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Embedding.GraphDBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := jsonexchange.DecodeAll(os.Stdin)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := jsonexchange.Import(c.Context, s, rec); err != nil {
			return fmt.Errorf("import %s: %w", rec.FilePath, err)
		}
	}
	fmt.Fprintf(os.Stderr, "imported %d records\n", len(records))
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: semindex query <operation> [args...]", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	s, vs, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	defer vs.Close()

	surface := &query.Surface{Store: s, VecStore: vs, DefaultLimit: cfg.Query.DefaultLimit}

	op := c.Args().First()
	args := c.Args().Tail()
	ctx := c.Context

	result, err := dispatchQuery(ctx, cfg, surface, op, args)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(result)
}

func arg(args []string, i int) string {
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}

func dispatchQuery(ctx context.Context, cfg *config.Config, s *query.Surface, op string, args []string) (any, error) {
	projectID, err := s.Store.UpsertProject(ctx, cfg.Project.Name, cfg.Project.Root, "")
	if err != nil {
		return nil, err
	}

	switch op {
	case "get_file_by_path":
		return s.GetFileByPath(ctx, projectID, arg(args, 0))
	case "get_file_block_summary":
		return s.GetFileBlockSummary(ctx, projectID, arg(args, 0))
	case "get_blocks_by_name":
		return s.GetBlocksByName(ctx, &projectID, arg(args, 0), 0)
	case "get_blocks_by_keyword":
		return s.GetBlocksByKeyword(ctx, &projectID, arg(args, 0), 0)
	case "get_block_details":
		id, err := strconv.ParseInt(arg(args, 0), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("block_id must be an integer: %w", err)
		}
		block, file, project, err := s.GetBlockDetails(ctx, types.BlockID(id))
		if err != nil {
			return nil, err
		}
		return map[string]any{"block": block, "file": file, "project": project}, nil
	case "get_file_imports":
		return s.GetFileImports(ctx, projectID, arg(args, 0))
	case "get_dependency_chain":
		depth := 3
		if d, err := strconv.Atoi(arg(args, 1)); err == nil && d > 0 {
			depth = d
		}
		return s.GetDependencyChain(ctx, projectID, arg(args, 0), depth)
	case "semantic_search":
		embedder, closeModel, err := openEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		defer closeModel()
		vec, err := embedder.EmbedQuery(arg(args, 0))
		if err != nil {
			return nil, err
		}
		return s.SemanticSearch(ctx, vec, &projectID, 0, cfg.Query.SimilarityThreshold)
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}
