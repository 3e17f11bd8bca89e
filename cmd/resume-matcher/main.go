package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/spf13/pflag"

	"resume-matcher/internal/config"
	"resume-matcher/internal/extractor"
	appLogger "resume-matcher/internal/logger"
	"resume-matcher/internal/parser"
	"resume-matcher/internal/processor"
	"resume-matcher/internal/scoring"
	"resume-matcher/internal/storage"
	"resume-matcher/internal/tracing"
)

var (
	version = "1.0.0" //nolint:gochecknoglobals
)

// options 命令行参数
type options struct {
	configPath string
	serve      bool
	template   string
	jobFile    string
	prefix     string
	workers    int
	progress   bool
	pretty     bool
	paths      []string
}

func parseFlags() options {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "", "配置文件路径，为空时自动查找 config.yaml")
	pflag.BoolVar(&opts.serve, "serve", false, "以 HTTP 服务模式运行")
	pflag.StringVarP(&opts.template, "template", "t", "", "内置岗位模板 slug")
	pflag.StringVarP(&opts.jobFile, "job-file", "j", "", "岗位描述文本文件")
	pflag.StringVar(&opts.prefix, "prefix", "", "从对象存储读取该前缀下的全部简历")
	pflag.IntVarP(&opts.workers, "workers", "w", 0, "并发度，覆盖配置中的 engine.workers")
	pflag.BoolVar(&opts.progress, "progress", false, "在标准错误输出打印进度")
	pflag.BoolVar(&opts.pretty, "pretty", true, "格式化输出 JSON")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "用法:\n  %s [flags] --template <slug>|--job-file <path> <resume>...\n  %s --serve\n\nflags:\n", os.Args[0], os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()
	opts.paths = pflag.Args()
	return opts
}

func main() {
	opts := parseFlags()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if opts.workers > 0 {
		cfg.Engine.Workers = opts.workers
	}
	initLogger(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing, version)
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			glog.Warnf("关闭链路追踪失败: %v", err)
		}
	}()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化失败: %v", err)
	}
	defer app.store.Close()

	if opts.serve {
		err = app.serve(ctx)
	} else {
		err = app.runBatch(ctx, opts)
	}
	if err != nil {
		glog.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}

// initLogger 初始化 zerolog，并让 Hertz 的日志输出到同一个实例
func initLogger(cfg config.LoggerConfig) {
	// CLI 模式的标准输出留给结果
	appLogger.InitWithWriter(cfg, os.Stderr)

	glog.SetLogger(hertzadapter.From(appLogger.Logger))
	switch cfg.Level {
	case "debug":
		glog.SetLevel(glog.LevelDebug)
	case "warn":
		glog.SetLevel(glog.LevelWarn)
	case "error":
		glog.SetLevel(glog.LevelError)
	default:
		glog.SetLevel(glog.LevelInfo)
	}
}

// application 组装好的各个组件
type application struct {
	cfg       *config.Config
	store     *storage.Storage
	extractor *extractor.Extractor
	orch      *processor.Orchestrator
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	store, err := storage.NewStorage(ctx, cfg, appLogger.Component("storage"))
	if err != nil {
		return nil, err
	}

	pdfTimeout := time.Duration(cfg.Engine.PDFTimeoutSeconds) * time.Second
	ingestorOpts := []parser.IngestorOption{
		parser.WithSupportedFormats(cfg.Engine.SupportedFormats),
		parser.WithIngestorLogger(appLogger.Component("ingestor")),
	}
	if cfg.Engine.TikaURL != "" {
		tika, err := parser.NewTikaExtractor(cfg.Engine.TikaURL,
			parser.WithTimeout(pdfTimeout),
			parser.WithTikaLogger(appLogger.Component("tika")),
		)
		if err != nil {
			store.Close()
			return nil, err
		}
		ingestorOpts = append(ingestorOpts, parser.WithExtractor(tika))
	}
	ingestor, err := parser.NewDefaultIngestor(ctx, cfg.Engine.TextEncoding, pdfTimeout, ingestorOpts...)
	if err != nil {
		store.Close()
		return nil, err
	}

	ext, err := extractor.NewFromConfig(cfg.Tables, extractor.WithLogger(appLogger.Component("extractor")))
	if err != nil {
		store.Close()
		return nil, err
	}

	scorer, err := scoring.NewScorerFromConfig(cfg.Engine)
	if err != nil {
		store.Close()
		return nil, err
	}

	orchOpts := append(processor.FromConfig(cfg), processor.WithLogger(appLogger.Component("orchestrator")))
	if cache := store.ProfileCache(); cache != nil {
		orchOpts = append(orchOpts, processor.WithProfileCache(cache))
	}
	if sink := store.EventSink(); sink != nil {
		orchOpts = append(orchOpts, processor.WithEventPublisher(sink))
	}
	orch, err := processor.New(ingestor, ext, scorer, orchOpts...)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &application{cfg: cfg, store: store, extractor: ext, orch: orch}, nil
}
