package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iudanet/fieldsync/internal/client/iocli"
	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/internal/client/sync"
)

// EnvToken names the environment variable holding the device access token
const EnvToken = "FIELDSYNC_TOKEN"

// ErrUnknownCommand is returned by Run for commands it does not know
var ErrUnknownCommand = errors.New("unknown command")

type Cli struct {
	io          iocli.IO
	outbox      storage.OutboxStorage
	metadata    storage.MetadataStorage
	syncService sync.Service
	deviceID    string
	getenv      func(string) string
}

func New(io iocli.IO, outbox storage.OutboxStorage, metadata storage.MetadataStorage, syncService sync.Service, deviceID string) *Cli {
	return &Cli{
		io:          io,
		outbox:      outbox,
		metadata:    metadata,
		syncService: syncService,
		deviceID:    deviceID,
		getenv:      os.Getenv,
	}
}

// Run executes one client command with its own arguments
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "enqueue":
		return c.runEnqueue(ctx, args)
	case "push":
		return c.runPush(ctx, args)
	case "pending":
		return c.runPending(ctx, args)
	case "receipt":
		return c.runReceipt(ctx, args)
	case "discard":
		return c.runDiscard(ctx, args)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// accessToken resolves the token from the flag, then the environment, then a prompt
func (c *Cli) accessToken(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := strings.TrimSpace(c.getenv(EnvToken)); v != "" {
		return v, nil
	}

	token, err := c.io.ReadSecret("Access token: ")
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("access token is required (use -token or %s)", EnvToken)
	}
	return token, nil
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "fieldsync device client")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fieldsync-client [OPTIONS] COMMAND [ARGS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -version           Show version information")
	fmt.Fprintln(w, "  -server URL        Server URL (default: http://localhost:8080)")
	fmt.Fprintln(w, "  -db PATH           Path to the local outbox (default: fieldsync-client.db)")
	fmt.Fprintln(w, "  -device ID         Device id sent with every batch")
	fmt.Fprintln(w, "  -batch N           Mutations per submitted batch (default: 100)")
	fmt.Fprintln(w, "  -log-level LEVEL   debug, info, warn or error (default: warn)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  enqueue -type T -id ID -action A [-base N] [-payload JSON] [-key K]")
	fmt.Fprintln(w, "                     Record a local change in the outbox")
	fmt.Fprintln(w, "  push [-token TOKEN]  Send pending changes to the server")
	fmt.Fprintln(w, "  pending [-limit N]   List changes waiting to be pushed")
	fmt.Fprintln(w, "  receipt -key K       Show the server item stored for a pushed change")
	fmt.Fprintln(w, "  discard -seq N [-force]")
	fmt.Fprintln(w, "                     Drop a change the server rejected so later ones can be pushed")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "The access token is read from -token, then %s, then prompted for.\n", EnvToken)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, `  fieldsync-client -device tablet-1 enqueue -type work_order -id wo-17 -action update -base 3 -payload '{"status":"done"}'`)
	fmt.Fprintln(w, "  fieldsync-client -device tablet-1 push")
}
