package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"discord-insight-go/internal/cache"
	"discord-insight-go/internal/config"
	"discord-insight-go/internal/query"
)

// serverReport is the cached per-server stats unit behind a weekly report.
type serverReport struct {
	Summary     *query.ServerSummary    `json:"summary"`
	TopChannels []query.ChannelActivity `json:"top_channels"`
	NewUsers    []query.UserInfo        `json:"new_users"`
	Days        int                     `json:"days"`
}

// Reporter writes periodic markdown activity reports. All aggregations go
// through the result cache so a report run and an API consumer asking the
// same question share one computation.
type Reporter struct {
	queries *query.Queries
	cache   *cache.Cache
	cfg     config.ReportConfig
	ttl     time.Duration
}

// New creates a new reporter
func New(q *query.Queries, c *cache.Cache, cfg config.ReportConfig, ttl time.Duration) *Reporter {
	return &Reporter{queries: q, cache: c, cfg: cfg, ttl: ttl}
}

// WriteWeeklyReport computes activity stats for every server over the
// configured window and writes one markdown file named after the run date.
// Returns the path of the written report.
func (r *Reporter) WriteWeeklyReport(ctx context.Context) (string, error) {
	days := r.cfg.Days
	if days <= 0 {
		days = 7
	}

	servers, err := r.queries.AllServers(ctx)
	if err != nil {
		return "", err
	}

	// Keyed by server id: display names are not unique.
	reports := make(map[int64]*serverReport, len(servers))
	for _, server := range servers {
		rep, err := r.serverReport(ctx, server.ServerID, days)
		if err != nil {
			return "", fmt.Errorf("failed to build report for server %d: %w", server.ServerID, err)
		}
		reports[server.ServerID] = rep
	}

	runDate := time.Now().UTC().Format("2006-01-02")
	content := renderMarkdown(runDate, days, reports)

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, runDate+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	logrus.Infof("Report saved to %s (%d servers)", path, len(reports))
	return path, nil
}

// serverReport fetches one server's stats through the cache.
func (r *Reporter) serverReport(ctx context.Context, serverID int64, days int) (*serverReport, error) {
	params := map[string]interface{}{"server_id": serverID, "days": days}

	raw, err := r.cache.GetOrCompute(ctx, "server_summary", params, r.ttl, func(ctx context.Context) (interface{}, error) {
		w := query.LastDays(days)
		summary, err := r.queries.ServerSummary(ctx, serverID, w)
		if err != nil {
			return nil, err
		}
		channels, err := r.queries.TopChannels(ctx, serverID, w, 5)
		if err != nil {
			return nil, err
		}
		newUsers, err := r.queries.NewUsers(ctx, serverID, w)
		if err != nil {
			return nil, err
		}
		return &serverReport{
			Summary:     summary,
			TopChannels: channels,
			NewUsers:    newUsers,
			Days:        days,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var rep serverReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("failed to decode cached report: %w", err)
	}
	return &rep, nil
}

func renderMarkdown(runDate string, days int, reports map[int64]*serverReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Discord Weekly Stats — %s (last %d days)\n\n", runDate, days)
	b.WriteString("_Generated from SQL aggregates._\n\n---\n")

	ids := make([]int64, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := reports[ids[i]], reports[ids[j]]
		if ri.Summary.TotalMessages != rj.Summary.TotalMessages {
			return ri.Summary.TotalMessages > rj.Summary.TotalMessages
		}
		if ri.Summary.ServerName != rj.Summary.ServerName {
			return ri.Summary.ServerName < rj.Summary.ServerName
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		rep := reports[id]
		fmt.Fprintf(&b, "\n## %s\n\n", rep.Summary.ServerName)

		if rep.Summary.TotalMessages == 0 {
			b.WriteString("_No activity this period._\n")
			continue
		}

		b.WriteString("| Metric | Value |\n| ------ | ----- |\n")
		fmt.Fprintf(&b, "| Messages | %d |\n", rep.Summary.TotalMessages)
		fmt.Fprintf(&b, "| Unique posters | %d |\n", rep.Summary.ActiveUsers)
		fmt.Fprintf(&b, "| Active channels | %d |\n", rep.Summary.ActiveChannels)
		fmt.Fprintf(&b, "| Thread messages | %d |\n", rep.Summary.ThreadMessages)
		fmt.Fprintf(&b, "| New users | %d |\n", len(rep.NewUsers))

		if len(rep.Summary.TopUsers) > 0 {
			b.WriteString("\n**Top contributors:**\n\n")
			for _, u := range rep.Summary.TopUsers {
				fmt.Fprintf(&b, "- **%s** — %d messages\n", u.CurrentUsername, u.MessageCount)
			}
		}

		if len(rep.TopChannels) > 0 {
			b.WriteString("\n**Most active channels:**\n\n")
			for _, c := range rep.TopChannels {
				fmt.Fprintf(&b, "- #%s — %d messages\n", c.ChannelName, c.MessageCount)
			}
		}
	}

	return b.String()
}
