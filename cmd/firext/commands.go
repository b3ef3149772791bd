package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/immxrtalbeast/firext/internal/clipboard"
	"github.com/immxrtalbeast/firext/internal/config"
	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/mesh"
	"github.com/immxrtalbeast/firext/internal/protocol"
	"github.com/immxrtalbeast/firext/internal/relayclient"
	"github.com/immxrtalbeast/firext/internal/roomcode"
	"github.com/immxrtalbeast/firext/internal/rtc"
	"github.com/immxrtalbeast/firext/internal/transfer"
	"github.com/immxrtalbeast/firext/lib/logger/slogpretty"
	"github.com/spf13/cobra"
)

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Create a new room code",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := roomcode.Generate()
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("new room"))
		fmt.Println(codeStyle.Render(code))
		fmt.Println(mutedStyle.Render("share it, then run: firext join " + code))
		return nil
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and sync the clipboard",
	Long: `Join a room and keep the clipboard in sync with its members.

Every line typed on stdin replaces the shared text. Lines starting with a
slash are commands:
  /paste <path>       add an image or file from disk
  /save <id> <path>   write an image or file to disk
  /rm <id>            remove an image or file
  /clear              empty the clipboard
  /show               print the clipboard
  /peers              list peer connections
  /quit               leave the room`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := roomcode.Normalize(args[0])
		if err != nil {
			return err
		}
		return join(cmd.Context(), code, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagRelayURL != "" {
		cfg.Client.RelayURL = flagRelayURL
	}
	if flagWireFormat != "" {
		cfg.Client.WireFormat = flagWireFormat
	}
	return cfg, cfg.Validate()
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: level},
	}
	return slog.New(opts.NewPrettyHandler(os.Stderr))
}

func join(parent context.Context, code string, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	codec, err := protocol.NewCodec(cfg.Client.WireFormat)
	if err != nil {
		return err
	}

	state := clipboard.New()
	relay := relayclient.New(cfg.Client.RelayURL, nil, log)
	factory := rtc.NewFactory(rtc.ConfigFromWebRTC(cfg.WebRTC), log)

	coordinator, err := mesh.New(relay, factory, state, mesh.Options{
		Room:         code,
		PollInterval: cfg.Client.PollInterval,
		Codec:        codec,
		Transfer: transfer.Options{
			ChunkSize:       cfg.Client.ChunkSize,
			InlineThreshold: cfg.Client.InlineThreshold,
			HighWaterMark:   cfg.Client.HighWaterMark,
			PaceDelay:       cfg.Client.PaceDelay,
		},
		Log: log,
	})
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "%s %s %s\n", titleStyle.Render("room"), codeStyle.Render(code), mutedStyle.Render("as "+coordinator.ID()))
	coordinator.OnStatus(func(s domain.ConnectionStatus) {
		fmt.Fprintln(out, statusBadge(s))
	})
	state.OnChange(func(snap domain.Snapshot) {
		fmt.Fprintln(out, renderSnapshot(snap))
	})

	go func() {
		readCommands(ctx, in, out, coordinator, state)
		stop()
	}()

	err = coordinator.Run(ctx)
	if errors.Is(err, domain.ErrRelayUnreachable) {
		return fmt.Errorf("lost connection to relay %s, join again to retry: %w", cfg.Client.RelayURL, err)
	}
	return err
}

func readCommands(ctx context.Context, in io.Reader, out io.Writer, c *mesh.Coordinator, state *clipboard.State) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "/") {
			c.SetText(line)
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return
		case "/clear":
			c.Clear()
		case "/show":
			fmt.Fprintln(out, renderSnapshot(state.Snapshot()))
		case "/peers":
			fmt.Fprintln(out, renderPeers(c.Peers()))
		case "/paste":
			if len(fields) != 2 {
				printErr(out, "usage: /paste <path>")
				continue
			}
			if err := paste(c, fields[1]); err != nil {
				printErr(out, err.Error())
			}
		case "/save":
			if len(fields) != 3 {
				printErr(out, "usage: /save <id> <path>")
				continue
			}
			if err := save(state, fields[1], fields[2]); err != nil {
				printErr(out, err.Error())
			}
		case "/rm":
			if len(fields) != 2 {
				printErr(out, "usage: /rm <id>")
				continue
			}
			if !c.RemoveImage(fields[1]) && !c.RemoveFile(fields[1]) {
				printErr(out, "no item "+fields[1])
			}
		default:
			printErr(out, "unknown command "+fields[0])
		}
	}
}

func paste(c *mesh.Coordinator, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mimeType := http.DetectContentType(data)
	if strings.HasPrefix(mimeType, "image/") {
		c.AddImage(data)
		return nil
	}
	c.AddFile(filepath.Base(path), mimeType, data)
	return nil
}

func save(state *clipboard.State, id, path string) error {
	if img, ok := state.Image(id); ok {
		return os.WriteFile(path, img.Data, 0o644)
	}
	if f, ok := state.File(id); ok {
		return os.WriteFile(path, f.Data, 0o644)
	}
	return fmt.Errorf("no item %s", id)
}

func printErr(out io.Writer, msg string) {
	fmt.Fprintln(out, errorStyle.Render(msg))
}
