package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/showwin/speedtest-go/speedtest"

	"pewbot/internal/services/scheduler"
	"pewbot/internal/timer"
	logx "pewbot/pkg/logx"
)

// speedtestJob runs a single-server bandwidth probe and logs the result.
// It is a trimmed version of the old Telegram speedtest plugin's runner:
// no candidate pool, no concurrent pinging, no chat formatting, just the
// closest reachable server and one download/upload pass. Registered under
// the config name "speedtest" when a deployment opts in; it is not wired
// by default the way heartbeat is.
func speedtestJob(log logx.Logger) scheduler.TimerJob {
	return func(ctx context.Context, info timer.TimerInfo) error {
		ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
		defer cancel()

		st := speedtest.New()
		defer func() {
			st.Snapshots().Clean()
			st.Reset()
		}()

		servers, err := st.FetchServerListContext(ctx)
		if err != nil {
			return fmt.Errorf("fetch server list: %w", err)
		}
		if a := servers.Available(); a != nil {
			servers = *a
		}
		if len(servers) == 0 {
			return fmt.Errorf("no speedtest servers available")
		}
		sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
		server := servers[0]

		if err := server.PingTestContext(ctx, nil); err != nil {
			return fmt.Errorf("ping %s: %w", server.Host, err)
		}
		if err := server.DownloadTestContext(ctx); err != nil {
			return fmt.Errorf("download test against %s: %w", server.Host, err)
		}
		if err := server.UploadTestContext(ctx); err != nil {
			return fmt.Errorf("upload test against %s: %w", server.Host, err)
		}

		log.Info("speedtest completed",
			logx.String("timer", info.Name),
			logx.String("server", server.Sponsor),
			logx.String("country", server.Country),
			logx.Float64("download_mbps", server.DLSpeed.Mbps()),
			logx.Float64("upload_mbps", server.ULSpeed.Mbps()),
			logx.Int64("ping_ms", server.Latency.Milliseconds()),
		)
		return nil
	}
}
