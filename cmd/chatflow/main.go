// chatflow, client engine'i komut satırından süren küçük bir araç.
//
// Bir kanal (veya thread) view'ını yükler, isteğe bağlı bir resim ekler,
// mesajı optimistic olarak gönderir ve cache'in son halini yazdırır.
// -listen verilirse canlı akışı o süre boyunca dinler.
//
//	chatflow -channel c1 -text "merhaba"
//	chatflow -channel c1 -thread m42 -text "katılıyorum" -file ./cat.png
//	chatflow -channel c1 -listen 1m
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/chatflow/client"
	"github.com/akinalp/chatflow/config"
	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
	"github.com/akinalp/chatflow/pkg/cache"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/pkg/optimistic"
	"github.com/akinalp/chatflow/services"
	"github.com/akinalp/chatflow/ws"
)

func main() {
	var (
		channelID string
		threadID  string
		text      string
		filePath  string
		name      string
		listen    time.Duration
	)
	flag.StringVar(&channelID, "channel", "", "channel id (required)")
	flag.StringVar(&threadID, "thread", "", "thread root message id; empty sends to the channel feed")
	flag.StringVar(&text, "text", "", "message text")
	flag.StringVar(&filePath, "file", "", "image to attach")
	flag.StringVar(&name, "name", "", "display name for optimistic rows")
	flag.DurationVar(&listen, "listen", 0, "keep listening to the live feed for this long")
	flag.Parse()

	if channelID == "" {
		fmt.Fprintln(os.Stderr, "-channel required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var thread *string
	if threadID != "" {
		thread = &threadID
	}

	opts := runOptions{
		channelID: channelID,
		threadID:  thread,
		text:      text,
		filePath:  filePath,
		name:      name,
		listen:    listen,
	}
	if err := run(ctx, cfg, log, opts); err != nil {
		log.Error("chatflow failed", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	channelID string
	threadID  *string
	text      string
	filePath  string
	name      string
	listen    time.Duration
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, opts runOptions) error {
	selfID, err := subjectOf(cfg.Client.Token)
	if err != nil {
		return err
	}

	api := client.New(cfg.Client.APIURL, cfg.Client.Token, client.WithLogger(log))
	store := cache.NewStore[models.Message]()
	urls := cache.NewTTL[string, string](cfg.Client.SignedURLCacheTTL, time.Minute)
	defer urls.Close()

	sync := services.NewMessageSyncService(
		api,
		store,
		optimistic.NewLedger(),
		optimistic.UUIDSource{Prefix: models.OptimisticIDPrefix},
		optimistic.NewPropagator(),
		models.Author{ID: selfID, Name: opts.name},
		log,
	)
	resolver := services.NewAttachmentResolver(api, urls, cfg.Upload.MaxSize, cfg.Client.ResolveTimeout, log)
	composer := services.NewComposer(sync, resolver, opts.channelID, opts.threadID)

	scope := cache.ChannelFeed(opts.channelID)
	if opts.threadID != nil {
		scope = cache.ThreadFeed(*opts.threadID)
		if err := sync.LoadThreadView(ctx, opts.channelID, *opts.threadID); err != nil {
			return err
		}
	} else if err := sync.LoadChannelFeed(ctx, opts.channelID); err != nil {
		return err
	}

	if opts.filePath != "" {
		data, err := os.ReadFile(opts.filePath)
		if err != nil {
			return fmt.Errorf("failed to read attachment: %w", err)
		}
		// Ek hatası mesajı engellemez; composer sadece eki bırakır.
		if err := composer.Attach(ctx, services.Blob{Filename: filepath.Base(opts.filePath), Data: data}); err != nil {
			if errors.Is(err, pkg.ErrRateLimited) {
				fmt.Fprintln(os.Stderr, "attachment skipped: too many uploads, try again shortly")
			} else {
				fmt.Fprintf(os.Stderr, "attachment skipped: %v\n", err)
			}
		}
	}

	if opts.text != "" || hasAttachment(composer) {
		var content json.RawMessage
		if opts.text != "" {
			content, err = json.Marshal(map[string]string{"text": opts.text})
			if err != nil {
				return err
			}
		}
		msg, err := composer.Submit(ctx, content)
		if err != nil {
			return fmt.Errorf("message not sent: %w", err)
		}
		log.Info("message sent", "id", msg.ID)
	}

	printScope(store, scope)

	if opts.listen <= 0 {
		return nil
	}
	return listenFor(ctx, cfg, log, store, sync, selfID, opts, scope)
}

func listenFor(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	store *cache.Store[models.Message],
	sync services.MessageSyncService,
	selfID string,
	opts runOptions,
	scope cache.Scope,
) error {
	listener := ws.NewListener(store, selfID, log)
	defer listener.Close()

	// Kaçırılan event'ler tahmin edilmez; görünen view yeniden çekilir.
	listener.OnGap(func() {
		var err error
		if opts.threadID != nil {
			_, err = sync.LoadThread(ctx, *opts.threadID)
		} else {
			err = sync.LoadChannelFeed(ctx, opts.channelID)
		}
		if err != nil {
			log.Warn("refetch after gap failed", "error", err)
		}
	})

	listenCtx, cancel := context.WithTimeout(ctx, opts.listen)
	defer cancel()

	if err := listener.Dial(listenCtx, cfg.Client.WSURL, cfg.Client.Token); err != nil {
		return err
	}
	if err := listener.Run(listenCtx); err != nil {
		return err
	}

	printScope(store, scope)
	return nil
}

func hasAttachment(c *services.Composer) bool {
	_, ok := c.Pending()
	return ok
}

// subjectOf, token'ın "sub" claim'ini imzayı doğrulamadan okur.
// Doğrulama sunucunun işidir; client sadece kendi mesajlarını tanımak için kullanır.
func subjectOf(token string) (string, error) {
	if token == "" {
		return "", errors.New("CLIENT_TOKEN is required")
	}
	var claims models.TokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("invalid CLIENT_TOKEN: %w", err)
	}
	if claims.UserID() == "" {
		return "", errors.New("CLIENT_TOKEN has no subject")
	}
	return claims.UserID(), nil
}

func printScope(store *cache.Store[models.Message], scope cache.Scope) {
	pages, ok := store.Pages(scope)
	if !ok {
		fmt.Printf("%s: not loaded\n", scope)
		return
	}

	fmt.Printf("%s:\n", scope)
	for _, page := range pages {
		for _, m := range page.Items {
			line := fmt.Sprintf("  %s  %s: %s", m.ID, m.AuthorName, string(m.Content))
			if m.RepliesCount > 0 {
				line += fmt.Sprintf("  (%d replies)", m.RepliesCount)
			}
			if m.Attachment != nil {
				line += "  [attachment " + m.Attachment.FileID + "]"
			}
			fmt.Println(line)
		}
	}
}
