// Command acsctl is acsd's operator CLI: trigger a run, poll status,
// inspect archived run history, or tail the live event stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/acs-wifi/acsd/acspb"
	"github.com/acs-wifi/acsd/acspb/jsoncodec"
	"github.com/acs-wifi/acsd/pkg/history"
	"github.com/acs-wifi/acsd/pkg/logx"
	"github.com/gorilla/websocket"
)

var (
	trigger     = flag.Bool("trigger", false, "Trigger a new ACS run")
	triggerKind = flag.String("trigger-kind", "manual", "Trigger reason to record (manual|boot|radar)")
	status      = flag.Bool("status", false, "Print the controller's current status")
	watch       = flag.Bool("watch", false, "Tail the live state-transition event stream")
	showHistory = flag.Bool("history", false, "List recently archived runs")
	historyPath = flag.String("history-db", "/var/lib/acsd/history.db", "Path to acsd's survey history database")
	limit       = flag.Int("limit", 10, "Number of history rows to show")

	addr       = flag.String("addr", "127.0.0.1:8121", "acsd gRPC control-plane address")
	healthAddr = flag.String("health-addr", "127.0.0.1:8120", "acsd health/event-stream address")
	logLevel   = flag.String("log-level", "warn", "Log level (trace|debug|info|warn|error)")
	timeout    = flag.Duration("timeout", 10*time.Second, "RPC timeout")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	AppName    = "acsctl"
	AppVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	logger := logx.NewLogger(*logLevel, AppName)

	var err error
	switch {
	case *trigger:
		err = runTrigger(logger)
	case *status:
		err = runStatus(logger)
	case *watch:
		err = runWatch(logger)
	case *showHistory:
		err = runHistory()
	default:
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dial opens a typed client against acsd's control plane, using the JSON
// codec registered by the jsoncodec subpackage instead of grpc-go's
// default protobuf codec.
func dial(ctx context.Context) (acspb.AcsClient, *grpc.ClientConn, error) {
	conn, err := grpc.DialContext(ctx, *addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial acsd at %s: %w", *addr, err)
	}
	return acspb.NewAcsClient(conn), conn, nil
}

func callOpts() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(jsoncodec.Name)}
}

func runTrigger(logger *logx.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := client.Trigger(ctx, &acspb.TriggerRequest{Trigger: *triggerKind}, callOpts()...)
	if err != nil {
		return fmt.Errorf("trigger rpc: %w", err)
	}
	if !resp.Accepted {
		return fmt.Errorf("run not accepted: %s", resp.Reason)
	}
	fmt.Printf("run accepted: run_id=%s\n", resp.RunID)
	return nil
}

func runStatus(logger *logx.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := client.Status(ctx, &acspb.StatusRequest{}, callOpts()...)
	if err != nil {
		return fmt.Errorf("status rpc: %w", err)
	}

	fmt.Printf("state:   %s\n", resp.State)
	if resp.RunID != "" {
		fmt.Printf("run_id:  %s\n", resp.RunID)
	}
	if resp.HasChannel {
		fmt.Printf("channel: %d\n", resp.Channel)
	}
	return nil
}

// runWatch tails acsd's /events websocket, the stream pkg/health
// broadcasts state transitions over for a local operator UI.
func runWatch(logger *logx.Logger) error {
	url := fmt.Sprintf("ws://%s/events", *healthAddr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial event stream at %s: %w", url, err)
	}
	defer conn.Close()

	fmt.Printf("watching %s (ctrl-c to stop)\n", url)
	for {
		var ev map[string]interface{}
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("event stream closed: %w", err)
		}
		fmt.Printf("[%v] %v %v\n", ev["timestamp"], ev["kind"], ev["payload"])
	}
}

// runHistory reads acsd's sqlite3 survey-history database directly; there
// is no RPC for this because it is diagnostic storage, not decision
// state the daemon needs to serve live (see pkg/history's package doc).
func runHistory() error {
	store, err := history.Open(*historyPath)
	if err != nil {
		return fmt.Errorf("open history db %s: %w", *historyPath, err)
	}
	defer store.Close()

	runs, err := store.RecentRuns(*limit)
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("no archived runs")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s  %-8s %-8s channel=%-3d iface=%-6s started=%s\n",
			r.RunID, r.Trigger, r.Outcome, r.WinningChannel, r.Interface, r.StartedAt.Format(time.RFC3339))
	}
	return nil
}
