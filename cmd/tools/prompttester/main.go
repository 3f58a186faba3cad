package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/config"
	sessionHandler "github.com/zhouzirui/chatbot-aggregator/backend/internal/handler/session"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/logger"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	promptModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/prompt"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/adapter"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/dispatch"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/session"
)

// prompttester 在进程内完成一次分发，结果以 JSON 输出到 stdout，错误输出到 stderr。
func main() {
	prompt := flag.String("prompt", "", "要发送的提示词")
	chatbots := flag.String("chatbots", "", "逗号分隔的 chatbot id，留空则使用所有启用的 chatbot")
	setupSessions := flag.Bool("setup-sessions", false, "仅预热会话")
	list := flag.Bool("list", false, "列出 chatbot 注册表")
	all := flag.Bool("all", false, "与 -list 一起使用时包含已禁用的 chatbot")
	timeout := flag.Duration("timeout", 0, "整体超时时间，默认使用 DISPATCH_TIMEOUT")
	flag.Parse()

	if err := run(options{
		prompt:        *prompt,
		chatbots:      splitIDs(*chatbots),
		setupSessions: *setupSessions,
		list:          *list,
		all:           *all,
		timeout:       *timeout,
	}, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	prompt        string
	chatbots      []string
	setupSessions bool
	list          bool
	all           bool
	timeout       time.Duration
}

func run(opts options, out io.Writer) error {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// stdout 只输出 JSON，日志默认只保留警告。
	if strings.TrimSpace(os.Getenv("LOG_LEVEL")) == "" {
		cfg.Log.Level = "warn"
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	registry, err := chatbot.Open(cfg.Registry.File)
	if err != nil {
		return err
	}

	if opts.list {
		if opts.all {
			return writeJSON(out, registry.All())
		}
		return writeJSON(out, registry.List())
	}

	globalTimeout := cfg.Dispatch.GlobalTimeout
	if opts.timeout > 0 {
		globalTimeout = opts.timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), globalTimeout)
	defer cancel()

	adapters := adapter.FromConfig(cfg.Providers, zl)
	defer adapters.Close()

	sessions := session.NewManager(adapters, session.Config{
		TTL:            cfg.Session.TTL,
		AcquireTimeout: cfg.Session.AcquireTimeout,
	}, zl, nil)

	if opts.setupSessions {
		_, resp, err := sessionHandler.Setup(ctx, registry, sessions, opts.chatbots)
		if err != nil {
			return err
		}
		return writeJSON(out, resp)
	}

	if strings.TrimSpace(opts.prompt) == "" {
		flag.Usage()
		return fmt.Errorf("-prompt is required")
	}

	ids := opts.chatbots
	if len(ids) == 0 {
		for _, t := range registry.List() {
			ids = append(ids, t.ID)
		}
	}

	callTimeout := cfg.Dispatch.CallTimeout
	if callTimeout > globalTimeout {
		callTimeout = globalTimeout
	}
	dispatcher := dispatch.New(registry, sessions, adapters, dispatch.Config{
		GlobalTimeout: globalTimeout,
		CallTimeout:   callTimeout,
	}, zl, nil)

	bundle, err := dispatcher.Dispatch(ctx, promptModel.Request{Prompt: opts.prompt, Chatbots: ids})
	if err != nil {
		return err
	}
	zl.Debug("dispatch finished", zap.Int("results", len(bundle.Results)))
	return writeJSON(out, bundle)
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
