package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/config"
	"github.com/TKeians/xuanxuan/internal/domain"
	"github.com/TKeians/xuanxuan/internal/im"
	"github.com/TKeians/xuanxuan/internal/socket"
	"github.com/TKeians/xuanxuan/internal/state"
	"github.com/TKeians/xuanxuan/internal/uploader"
)

// staticIdentity serves the configured account as the current user.
type staticIdentity struct {
	user domain.User
}

func (s staticIdentity) Me() domain.User { return s.user }

// stderrNotifier surfaces user-facing notices on the terminal.
type stderrNotifier struct {
	logger *zap.Logger
}

func (n stderrNotifier) Notify(text string) {
	fmt.Fprintln(os.Stderr, text)
	n.logger.Info("notice", zap.String("text", text))
}

func main() {
	// Load config
	cfgDir := config.Dir()
	cfgPath := filepath.Join(cfgDir, "config.yaml")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", cfgPath, err)
		fmt.Fprintf(os.Stderr, "\nCreate the config file with:\n")
		fmt.Fprintf(os.Stderr, "  mkdir -p %s\n", cfgDir)
		fmt.Fprintf(os.Stderr, "  cat > %s << 'EOF'\n", cfgPath)
		fmt.Fprintf(os.Stderr, "server:\n  url: \"wss://YOUR_SERVER/ws\"\n  token: \"YOUR_TOKEN\"\nupload:\n  url: \"https://YOUR_SERVER/upload\"\naccount: YOUR_ACCOUNT\nEOF\n")
		os.Exit(1)
	}

	// Setup logging to file
	logPath := filepath.Join(cfgDir, "xxc.log")
	logCfg := zap.NewDevelopmentConfig()
	logCfg.OutputPaths = []string{logPath}
	logCfg.ErrorOutputPaths = []string{logPath}
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store := state.New(nil)

	// Push frames from the server flow straight into the cache.
	onEvent := func(ev socket.Event) {
		switch ev.Method {
		case "message":
			var wires []domain.WireMessage
			if err := json.Unmarshal(ev.Data, &wires); err != nil {
				logger.Warn("bad message push", zap.Error(err))
				return
			}
			msgs := make([]*domain.ChatMessage, 0, len(wires))
			for _, w := range wires {
				msgs = append(msgs, w.ToMessage())
			}
			store.UpdateChatMessages(msgs...)
		default:
			logger.Debug("unhandled push", zap.String("method", ev.Method))
		}
	}

	client := socket.NewClient(cfg.Server.URL, cfg.Server.Token, onEvent, logger.Named("socket"))

	uploads := uploader.NewHTTPService(cfg.Upload.URL, cfg.Server.Token, logger.Named("uploader"))

	identity := staticIdentity{user: domain.User{
		ID:      cfg.Account,
		Account: cfg.Account,
	}}

	server := im.NewServer(client, store, identity, uploads, stderrNotifier{logger: logger}, im.Config{
		Version:              cfg.Version,
		InlineImageThreshold: cfg.Upload.InlineImageThreshold,
	}, logger.Named("im"))

	unsub := server.OnChatHistory(func(msgs []*domain.ChatMessage, pager domain.Pager) {
		logger.Info("history page",
			zap.String("gid", pager.Gid),
			zap.Int("messages", len(msgs)),
			zap.Int("page", pager.PageID),
			zap.Bool("done", pager.IsFetchOver()),
		)
	})
	defer unsub()

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	// Discover public chats and backfill history for each known chat.
	go func() {
		chats, err := server.FetchPublicChats(ctx)
		if err != nil {
			logger.Error("public chat list failed", zap.Error(err))
			return
		}
		for _, c := range chats {
			store.UpdateChat(c)
		}
		for _, c := range store.Chats() {
			if err := server.FetchChatHistory(ctx, c.Gid, nil); err != nil {
				logger.Error("history fetch failed", zap.String("gid", c.Gid), zap.Error(err))
			}
		}
	}()

	<-ctx.Done()
}
