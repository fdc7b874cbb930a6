// peerctl is an interactive client for the relay.
// Usage: go run ./cmd/peerctl --url ws://127.0.0.1:3000/ws --nick alice
//
// Commands read from stdin:
//
//	/who                   list other registered peers
//	/send <nick> <ticket>  hand a ticket to a peer
//	/drop <nick>           unregister a nickname
//	/quit                  disconnect
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rickgao/peerlink/internal/peer"
	"github.com/rickgao/peerlink/internal/protocol"
)

var errQuit = errors.New("quit")

func main() {
	url := pflag.String("url", "ws://127.0.0.1:3000/ws", "relay WebSocket URL")
	nick := pflag.StringP("nick", "n", "", "nickname to register (required)")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *nick == "" {
		fmt.Fprintln(os.Stderr, "--nick is required")
		pflag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := peer.NewClient(peer.DefaultConfig(*url), logger)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Send(protocol.Register{Nickname: *nick}); err != nil {
		logger.Error("failed to register", "error", err)
		os.Exit(1)
	}

	go printEvents(ctx, client, os.Stdout)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-client.Errors():
			logger.Error("connection lost", "error", err)
			os.Exit(1)
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, err := parseLine(line, *nick)
			if errors.Is(err, errQuit) {
				return
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if cmd == nil {
				continue
			}
			if err := client.Send(cmd); err != nil {
				logger.Error("send failed", "error", err)
			}
		}
	}
}

// parseLine turns one input line into a command. A blank line yields nil.
func parseLine(line, self string) (protocol.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	switch fields[0] {
	case "/who":
		return protocol.GetActiveUsersList{Exclude: self}, nil
	case "/send":
		if len(fields) != 3 {
			return nil, errors.New("usage: /send <nick> <ticket>")
		}
		return protocol.SendFile{Recipient: fields[1], Ticket: fields[2]}, nil
	case "/drop":
		if len(fields) != 2 {
			return nil, errors.New("usage: /drop <nick>")
		}
		return protocol.DisconnectUser{Nickname: fields[1]}, nil
	case "/quit":
		return nil, errQuit
	}
	return nil, fmt.Errorf("unknown command %q (try /who, /send, /drop, /quit)", fields[0])
}

func printEvents(ctx context.Context, client peer.Client, w io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-client.Events():
			fmt.Fprintln(w, formatEvent(ev))
		}
	}
}

func formatEvent(ev protocol.Event) string {
	switch e := ev.(type) {
	case protocol.RegisterSuccess:
		return "registered"
	case protocol.ActiveUsersList:
		if len(e.Names) == 0 {
			return "no other peers online"
		}
		return "online: " + strings.Join(e.Names, ", ")
	case protocol.ReceiveFile:
		return "ticket received: " + e.Ticket
	case protocol.UserNotFound:
		return "recipient not found"
	case protocol.ErrorDeserializingJSON:
		return "relay rejected frame: " + e.Description
	}
	return string(ev.Kind())
}
