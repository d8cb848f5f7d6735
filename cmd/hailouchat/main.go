package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/config"
	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
	"github.com/hassan7865/Hailouchat-Widget/internal/session"
	"github.com/hassan7865/Hailouchat-Widget/internal/timeline"
	"github.com/hassan7865/Hailouchat-Widget/internal/transport"
	"github.com/hassan7865/Hailouchat-Widget/internal/upload"
	"github.com/hassan7865/Hailouchat-Widget/internal/widget"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	clientKey  = flag.String("client-key", "", "Client key (overrides config)")
)

// Headless widget client: drives the real session, transport,
// timeline and presentation stack from a terminal.
func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *clientKey != "" {
		cfg.Client.ClientKey = *clientKey
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var (
		ctrl *session.Controller
		sm   *widget.StateMachine
	)

	reconciler := timeline.NewReconciler(logger,
		func(msg domain.Message) {
			printMessage(msg)
			if sm != nil {
				sm.HandleMessage(msg)
			}
		},
		func(typing bool) {
			if typing {
				fmt.Println("  agent is typing...")
			}
		},
	)

	tr := transport.NewManager(cfg.Transport, logger,
		reconciler.Ingest,
		func(status domain.ConnectionStatus) {
			fmt.Printf("  [%s]\n", status)
			if ctrl != nil {
				ctrl.HandleStatus(status)
			}
		},
	)

	api := session.NewAPIClient(cfg.Client.APIBase, cfg.Client.ClientKey, logger)
	enricher := session.NewEnricher(cfg.Metadata, logger)
	ctrl = session.NewController(logger, api, enricher, tr, reconciler, cfg.Client.WSBase)

	sounder := widget.NewSounder(func() { fmt.Print("\a") })
	sm = widget.NewStateMachine(cfg.Widget, logger, ctrl, reconciler, sounder,
		func(msg widget.HostMessage) {
			logger.Debug("host notification", zap.String("type", msg.Type))
		},
	)

	uploads := upload.NewCoordinator(logger, &upload.MultipartUploader{
		Endpoint:  cfg.Client.APIBase + "/chat/upload-attachment",
		ClientKey: cfg.Client.ClientKey,
		SessionID: func() string {
			if s := ctrl.Session(); s != nil {
				return s.SessionID
			}
			return ""
		},
	}, func(t upload.Task) {
		fmt.Printf("  upload %s: %s\n", t.FileName, t.Status)
	})

	ctx := context.Background()
	fmt.Println("hailouchat: /open /close /end /upload <path> /rate <thumbs_up|thumbs_down> /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			tr.Disconnect()
			sm.Close()
			return
		case line == "/open" || line == "/close":
			if err := sm.Toggle(ctx); err != nil {
				fmt.Printf("  error: %v\n", err)
			}
		case line == "/end":
			if err := ctrl.EndChat(); err != nil {
				fmt.Printf("  error: %v\n", err)
			}
		case strings.HasPrefix(line, "/rate "):
			rating := strings.TrimPrefix(line, "/rate ")
			if err := ctrl.RateSession(ctx, rating, ""); err != nil {
				fmt.Printf("  error: %v\n", err)
			}
		case strings.HasPrefix(line, "/upload "):
			path := strings.TrimPrefix(line, "/upload ")
			f, err := os.Open(path)
			if err != nil {
				fmt.Printf("  error: %v\n", err)
				continue
			}
			info, err := f.Stat()
			if err != nil {
				fmt.Printf("  error: %v\n", err)
				f.Close()
				continue
			}
			uploads.Upload(ctx, upload.File{
				Name:    info.Name(),
				Size:    info.Size(),
				Content: f,
			})
		default:
			if err := ctrl.SendMessage(line); err != nil {
				fmt.Printf("  error: %v\n", err)
			}
		}
	}
}

func printMessage(msg domain.Message) {
	if msg.Visibility == domain.VisibilityHidden {
		return
	}
	text := msg.Text
	if msg.Attachment != nil {
		text = fmt.Sprintf("[attachment: %s]", msg.Attachment.FileName)
	}
	fmt.Printf("%s %s: %s\n", msg.Timestamp.Local().Format("15:04:05"), msg.SenderType, text)
}
