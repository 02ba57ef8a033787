package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/logging"
	"github.com/matheus3301/chatline/internal/notify"
	"github.com/matheus3301/chatline/internal/profile"
)

type cli struct {
	cfg     *config.Config
	ident   identity.Provider
	client  *api.Client
	logger  *zap.Logger
	jsonOut bool
}

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := newCLI(name, *jsonFlag)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "conversations":
		err = c.cmdConversations(ctx)
	case "messages":
		if len(args) < 2 {
			usageError("usage: chatctl messages <chat-id>")
		}
		err = c.cmdMessages(ctx, args[1])
	case "send":
		if len(args) < 3 {
			usageError("usage: chatctl send <chat-id> <text>")
		}
		err = c.cmdSend(ctx, args[1], strings.Join(args[2:], " "))
	case "contacts":
		err = c.cmdContacts(ctx)
	case "watch":
		err = c.cmdWatch(ctx)
	case "whoami":
		err = c.cmdWhoami()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  conversations           List conversations")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>      Show the history of a conversation")
	fmt.Fprintln(os.Stderr, "  send <chat-id> <text>   Send a text message")
	fmt.Fprintln(os.Stderr, "  contacts                List users to start a conversation with")
	fmt.Fprintln(os.Stderr, "  watch                   Print push notifications until interrupted")
	fmt.Fprintln(os.Stderr, "  whoami                  Show the configured identity")
}

func usageError(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// newCLI resolves the profile's config and identity. Log output goes to the
// profile log file only, so stdout stays scriptable.
func newCLI(name string, jsonOut bool) (*cli, error) {
	cfg, err := profile.LoadConfig(name)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := profile.EnsureDir(name); err != nil {
		return nil, err
	}
	logger, err := logging.New(profile.LogPath(name), name, cfg.Log.Level, false)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Auth.ResolveToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrNoIdentity, err)
	}
	ident, err := identity.FromToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrNoIdentity, err)
	}

	client, err := api.New(api.Options{
		BaseURL:         cfg.Server.BaseURL,
		Timeout:         cfg.HTTP.Timeout.Duration,
		RetryMaxElapsed: cfg.HTTP.RetryMaxElapsed.Duration,
		BreakerFailures: cfg.HTTP.BreakerFailures,
		BreakerCooldown: cfg.HTTP.BreakerCooldown.Duration,
	}, ident, logger.Named("api"))
	if err != nil {
		return nil, err
	}
	return &cli{cfg: cfg, ident: ident, client: client, logger: logger, jsonOut: jsonOut}, nil
}

func (c *cli) cmdConversations(ctx context.Context) error {
	convs, err := c.client.ListConversations(ctx)
	if err != nil {
		return err
	}
	if c.jsonOut {
		outputJSON(convs)
		return nil
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return nil
	}
	for _, conv := range convs {
		online := " "
		if conv.OtherPartyOnline {
			online = "*"
		}
		fmt.Printf("%s %-36s %-24s %3d  %s\n", online, conv.ID, conv.DisplayName, conv.UnreadCount, conv.LastMessagePreview)
	}
	return nil
}

func (c *cli) cmdMessages(ctx context.Context, chatID string) error {
	msgs, err := c.client.ListMessages(ctx, chatID)
	if err != nil {
		return err
	}
	if c.jsonOut {
		outputJSON(msgs)
		return nil
	}
	for _, m := range msgs {
		body := m.Content
		if m.Type.IsMedia() {
			body = "<" + strings.ToLower(string(m.Type)) + ">"
		}
		fmt.Printf("%s  %-12s %-4s  %s\n", m.CreatedAt.Local().Format(time.DateTime), m.SenderID, m.State, body)
	}
	return nil
}

// cmdSend addresses the message to the other participant of chatID, which the
// conversation list tells.
func (c *cli) cmdSend(ctx context.Context, chatID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("message text is empty")
	}
	convs, err := c.client.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, conv := range convs {
		if conv.ID != chatID {
			continue
		}
		sender, receiver := conv.Route(c.ident.UserID())
		req := chat.SendRequest{
			ChatID:     chatID,
			SenderID:   sender,
			ReceiverID: receiver,
			Content:    text,
			Type:       chat.TypeText,
		}
		if err := c.client.SendMessage(ctx, req); err != nil {
			return err
		}
		if !c.jsonOut {
			fmt.Printf("Sent to %s.\n", conv.DisplayName)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", chat.ErrConversationNotFound, chatID)
}

func (c *cli) cmdContacts(ctx context.Context) error {
	contacts, err := c.client.ListContacts(ctx)
	if err != nil {
		return err
	}
	if c.jsonOut {
		outputJSON(contacts)
		return nil
	}
	for _, ct := range contacts {
		online := " "
		if ct.Online {
			online = "*"
		}
		fmt.Printf("%s %-20s %-24s %s\n", online, ct.ID, ct.DisplayName(), ct.Email)
	}
	return nil
}

func (c *cli) cmdWatch(ctx context.Context) error {
	d := notify.NewDialer(c.cfg.Server.PushURL, c.ident, c.logger.Named("push"))
	sub, err := d.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	if !c.jsonOut {
		fmt.Fprintf(os.Stderr, "watching %s, Ctrl-C to stop\n", notify.Destination(c.ident.UserID()))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-sub.C():
			if !ok {
				return sub.Err()
			}
			if c.jsonOut {
				data, err := chat.EncodeNotification(n)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				continue
			}
			fmt.Printf("%s  %-7s %-36s from %-12s %s\n",
				time.Now().Format(time.TimeOnly), n.Type, n.ChatID, n.SenderID, n.Preview())
		}
	}
}

func (c *cli) cmdWhoami() error {
	info := struct {
		UserID  string `json:"userId"`
		Server  string `json:"server"`
		PushURL string `json:"pushUrl"`
	}{c.ident.UserID(), c.cfg.Server.BaseURL, c.cfg.Server.PushURL}
	if c.jsonOut {
		outputJSON(info)
		return nil
	}
	fmt.Printf("User:   %s\n", info.UserID)
	fmt.Printf("Server: %s\n", info.Server)
	fmt.Printf("Push:   %s\n", info.PushURL)
	return nil
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
