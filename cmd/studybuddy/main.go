package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"study-buddy-rag/internal/app"
	"study-buddy-rag/internal/chromemdb"
	"study-buddy-rag/internal/config"
	"study-buddy-rag/internal/helper"
	"study-buddy-rag/internal/ingest"
	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/queue"
	"study-buddy-rag/internal/rag"
	"study-buddy-rag/internal/telemetry"
)

const (
	configFilePath = "./configs/config.yaml"
	serviceName    = "study-buddy"
)

type options struct {
	configPath string
	filePath   string
	fileType   string
	owner      string
	document   string
	query      string
	topK       int
	docs       string
	deleteDoc  bool
	enqueue    bool
	exportPath string
	exportKey  string
	provider   string
	model      string
	apiKey     string
	endpoint   string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", configFilePath, "Path to the config file")
	flag.StringVar(&opts.filePath, "file", "", "Path to the document file to ingest")
	flag.StringVar(&opts.fileType, "type", "", "Document type (pdf, docx, txt); derived from the file name when empty")
	flag.StringVar(&opts.owner, "owner", helper.Getenv("STUDY_BUDDY_OWNER", "local"), "Owner of the documents")
	flag.StringVar(&opts.document, "document", "", "Document id; a new UUID is generated for ingestion when empty")
	flag.StringVar(&opts.query, "query", "", "Question to be answered")
	flag.IntVar(&opts.topK, "top-k", 0, "Number of chunks to retrieve (0 uses the configured default)")
	flag.StringVar(&opts.docs, "docs", "", "Comma separated document ids to restrict the query to")
	flag.BoolVar(&opts.deleteDoc, "delete", false, "Delete the chunks of -document")
	flag.BoolVar(&opts.enqueue, "enqueue", false, "Queue the ingestion for the worker instead of running it inline")
	flag.StringVar(&opts.exportPath, "export", "", "Export the chromem collection to this file")
	flag.StringVar(&opts.exportKey, "export-key", "", "Optional 32 byte key to encrypt the export")
	flag.StringVar(&opts.provider, "provider", "", "LLM provider (openai, anthropic, custom)")
	flag.StringVar(&opts.model, "model", "", "LLM model")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key for the selected provider")
	flag.StringVar(&opts.endpoint, "endpoint", "", "Endpoint of a custom OpenAI compatible provider")
	flag.Parse()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		// logger is not configured yet
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log.Level)

	ctx := context.Background()
	shutdown, err := telemetry.InitTracer(ctx, serviceName, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing tracer")
	}
	defer shutdown()

	if err := run(ctx, cfg, opts); err != nil {
		log.Error().Err(err).Str("kind", models.KindOf(err)).Msg("Command failed")
		shutdown()
		os.Exit(1)
	}
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	modes := 0
	for _, set := range []bool{opts.filePath != "", opts.query != "", opts.deleteDoc, opts.exportPath != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("provide exactly one of -file, -query, -delete or -export")
	}

	if opts.filePath != "" && opts.enqueue {
		return enqueueFile(cfg, opts)
	}

	a, err := app.New(ctx, cfg, ingest.LogSink{})
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case opts.filePath != "":
		return ingestFile(ctx, a, opts)
	case opts.query != "":
		return answer(ctx, a, opts)
	case opts.deleteDoc:
		if opts.document == "" {
			return fmt.Errorf("%w: -delete needs -document", models.ErrInvalidRequest)
		}
		if err := a.Pipeline.Delete(ctx, opts.owner, opts.document); err != nil {
			return err
		}
		log.Info().Str("document_id", opts.document).Msg("Document deleted")
		return nil
	default:
		store, ok := a.Store.(*chromemdb.Store)
		if !ok {
			return fmt.Errorf("export needs the chromem vector store, configured %q", cfg.VectorStore.Type)
		}
		return store.Export(opts.exportPath, cfg.VectorStore.Compress, opts.exportKey)
	}
}

func document(opts options) (ingest.Document, error) {
	fileType := models.FileType(opts.fileType)
	if fileType == "" {
		ft, err := models.FileTypeFromName(opts.filePath)
		if err != nil {
			return ingest.Document{}, err
		}
		fileType = ft
	}
	id := opts.document
	if id == "" {
		var err error
		if id, err = helper.GenerateUUID(); err != nil {
			return ingest.Document{}, err
		}
	}
	path, err := filepath.Abs(opts.filePath)
	if err != nil {
		return ingest.Document{}, err
	}
	return ingest.Document{ID: id, OwnerID: opts.owner, Path: path, FileType: fileType}, nil
}

func ingestFile(ctx context.Context, a *app.App, opts options) error {
	doc, err := document(opts)
	if err != nil {
		return err
	}
	res, err := a.Pipeline.Ingest(ctx, doc)
	if err != nil {
		return err
	}
	helper.PrettyPrint(map[string]any{
		"document_id": res.DocumentID,
		"status":      res.Status.String(),
		"chunk_count": res.ChunkCount,
	})
	return nil
}

func enqueueFile(cfg *config.Config, opts options) error {
	if cfg.Redis.Addr == "" {
		return errors.New("-enqueue needs redis.addr")
	}
	doc, err := document(opts)
	if err != nil {
		return err
	}
	task, err := queue.NewIngestTask(queue.IngestPayload{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		FilePath:   doc.Path,
		FileType:   doc.FileType,
	}, cfg.Queue.Name, cfg.Queue.MaxRetry)
	if err != nil {
		return err
	}

	client := asynq.NewClient(app.RedisClientOpt(cfg))
	defer client.Close()
	info, err := client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("failed to enqueue ingestion: %w", err)
	}
	log.Info().Str("task_id", info.ID).Str("queue", info.Queue).Str("document_id", doc.ID).Msg("Ingestion queued")
	return nil
}

func answer(ctx context.Context, a *app.App, opts options) error {
	prefs := models.LLMPreferences{
		Provider:        models.Provider(opts.provider),
		Model:           opts.model,
		OpenAIAPIKey:    helper.Getenv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: helper.Getenv("ANTHROPIC_API_KEY", ""),
		CustomEndpoint:  helper.FirstNonEmpty(opts.endpoint, os.Getenv("CUSTOM_LLM_ENDPOINT")),
		CustomAPIKey:    helper.Getenv("CUSTOM_LLM_API_KEY", ""),
	}
	if opts.apiKey != "" {
		switch prefs.Resolve(models.Provider(a.Config.LLM.DefaultProvider), "").Provider {
		case models.ProviderOpenAI:
			prefs.OpenAIAPIKey = opts.apiKey
		case models.ProviderAnthropic:
			prefs.AnthropicAPIKey = opts.apiKey
		case models.ProviderCustom:
			prefs.CustomAPIKey = opts.apiKey
		}
	}

	log.Info().Msg("Query: ~~~~>>>>")
	res, err := a.RAG.Query(ctx, rag.Request{
		OwnerID:     opts.owner,
		Query:       opts.query,
		TopK:        opts.topK,
		DocumentIDs: helper.SplitList(opts.docs),
		Preferences: prefs,
	})
	if err != nil {
		return err
	}
	helper.PrettyPrint(res)
	return nil
}
