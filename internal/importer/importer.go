package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"discord-insight-go/internal/membership"
	"discord-insight-go/internal/merger"
	"discord-insight-go/internal/metrics"
	"discord-insight-go/internal/models"
	"discord-insight-go/internal/resolver"
)

// Stats summarizes an import run. Counts are per message record except
// Files and Errors, which are per file.
type Stats struct {
	Files     int
	New       int
	Updated   int
	Unchanged int
	Skipped   int
	Errors    int
}

// Add accumulates another stats value into s.
func (s *Stats) Add(other Stats) {
	s.Files += other.Files
	s.New += other.New
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}

// Importer loads export JSON files into the normalized store. Importing is
// idempotent: re-running the same files any number of times converges on the
// same stored state, so the scheduler can re-run it freely.
type Importer struct {
	db       *gorm.DB
	resolver *resolver.Resolver
	merger   *merger.Merger
	tracker  *membership.Tracker
	metrics  *metrics.Metrics
}

// New creates a new importer
func New(db *gorm.DB, r *resolver.Resolver, m *merger.Merger, t *membership.Tracker, mt *metrics.Metrics) *Importer {
	return &Importer{db: db, resolver: r, merger: m, tracker: t, metrics: mt}
}

// ImportPath imports a single export file, or every .json file under a
// directory tree. A file that cannot be read or parsed counts as one error
// and the run continues with the remaining files.
func (i *Importer) ImportPath(ctx context.Context, path string) (Stats, error) {
	files, err := collectFiles(path)
	if err != nil {
		return Stats{}, err
	}
	if len(files) == 0 {
		logrus.Warnf("No export files found under %s", path)
		return Stats{}, nil
	}

	var total Stats
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("import cancelled: %w", err)
		}
		stats, err := i.ImportFile(ctx, file)
		if err != nil {
			return total, err
		}
		total.Add(stats)
	}

	i.refreshServerGauge()

	logrus.Infof("Import complete: %d file(s), %d new, %d updated, %d skipped, %d errors",
		total.Files, total.New, total.Updated, total.Skipped, total.Errors)
	return total, nil
}

// refreshServerGauge updates the tracked-server gauge after a sweep.
func (i *Importer) refreshServerGauge() {
	if i.metrics == nil {
		return
	}
	var servers int64
	if err := i.db.Model(&models.Server{}).Count(&servers).Error; err != nil {
		logrus.Warnf("Could not count servers for metrics: %v", err)
		return
	}
	i.metrics.ServersTracked.Set(float64(servers))
}

// ImportFile imports one export file.
func (i *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	stats := Stats{Files: 1}

	logrus.Infof("Importing: %s", filepath.Base(path))

	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Could not read %s: %v", path, err)
		stats.Errors++
		if i.metrics != nil {
			i.metrics.ImportFailures.Inc()
		}
		return stats, nil
	}

	export, err := parseExport(data)
	if err != nil {
		logrus.Errorf("Could not parse %s: %v", path, err)
		stats.Errors++
		if i.metrics != nil {
			i.metrics.ImportFailures.Inc()
		}
		return stats, nil
	}

	fileStats, err := i.importExport(ctx, export)
	if err != nil {
		return stats, fmt.Errorf("failed to import %s: %w", path, err)
	}
	stats.Add(fileStats)

	if i.metrics != nil {
		i.metrics.FilesImported.Inc()
		i.metrics.MessagesNew.Add(float64(fileStats.New))
		i.metrics.MessagesUpdated.Add(float64(fileStats.Updated))
		i.metrics.RecordsSkipped.Add(float64(fileStats.Skipped))
	}

	logrus.Infof("%s: %d new, %d updated, %d skipped",
		filepath.Base(path), fileStats.New, fileStats.Updated, fileStats.Skipped)
	return stats, nil
}

// DryRun parses a file, or every .json file under a directory, and reports
// what would be imported without writing anything.
func (i *Importer) DryRun(path string) (Stats, error) {
	files, err := collectFiles(path)
	if err != nil {
		return Stats{}, err
	}

	var total Stats
	for _, file := range files {
		total.Files++
		data, err := os.ReadFile(file)
		if err != nil {
			total.Errors++
			continue
		}
		export, err := parseExport(data)
		if err != nil {
			total.Errors++
			continue
		}
		total.New += len(export.Messages)
	}
	return total, nil
}

func (i *Importer) importExport(ctx context.Context, export *exportFile) (Stats, error) {
	var stats Stats

	serverID := int64(export.Guild.ID)
	if serverID == 0 {
		logrus.Error("Export file has no guild id, skipping")
		stats.Errors++
		return stats, nil
	}
	channelID := int64(export.Channel.ID)
	if channelID == 0 {
		logrus.Error("Export file has no channel id, skipping")
		stats.Errors++
		return stats, nil
	}

	serverName := export.Guild.Name
	if serverName == "" {
		serverName = "Unknown Server"
	}
	if err := i.resolver.ResolveServer(serverID, serverName); err != nil {
		return stats, err
	}

	// Threads export as their own channel files; keep the thread id so
	// queries can tell thread messages from channel messages.
	var threadID *int64
	if threadTypes[export.Channel.Type] {
		id := channelID
		threadID = &id
	}

	batch := make([]merger.Snapshot, 0, len(export.Messages))
	for idx := range export.Messages {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("import cancelled: %w", err)
		}
		snap, ok := i.buildSnapshot(serverID, channelID, export.Channel.Name, threadID, &export.Messages[idx])
		if !ok {
			stats.Skipped++
			continue
		}
		batch = append(batch, *snap)
	}

	mergeStats, err := i.merger.MergeBatch(ctx, batch)
	if err != nil {
		return stats, err
	}
	stats.New += mergeStats.New
	stats.Updated += mergeStats.Updated
	stats.Unchanged += mergeStats.Unchanged
	stats.Skipped += mergeStats.Skipped

	if err := i.importMembershipEvents(serverID, export.MembershipEvents); err != nil {
		return stats, err
	}

	return stats, nil
}

// buildSnapshot resolves a message's author and reactors and maps the record
// to a merge snapshot. Returns ok=false for records missing required fields.
func (i *Importer) buildSnapshot(serverID, channelID int64, channelName string, threadID *int64, msg *exportMessage) (*merger.Snapshot, bool) {
	messageID := int64(msg.ID)
	if messageID == 0 {
		logrus.Warn("Skipping message with no id")
		return nil, false
	}
	authorID := int64(msg.Author.ID)
	if authorID == 0 {
		logrus.Warnf("Skipping message %d with no author id", messageID)
		return nil, false
	}
	createdAt := parseTimestamp(msg.Timestamp)
	if createdAt.IsZero() {
		logrus.Warnf("Skipping message %d with no timestamp", messageID)
		return nil, false
	}

	userID, err := i.resolver.ResolveUser(authorID, formatUsername(&msg.Author), createdAt)
	if err != nil {
		logrus.Warnf("Skipping message %d: %v", messageID, err)
		return nil, false
	}
	if err := i.tracker.TouchActive(serverID, userID, createdAt); err != nil {
		logrus.Warnf("Could not record membership for user %d in server %d: %v", userID, serverID, err)
	}

	snap := &merger.Snapshot{
		MessageID:   messageID,
		ServerID:    serverID,
		ChannelID:   channelID,
		ChannelName: channelName,
		UserID:      userID,
		Content:     messageContent(msg),
		CreatedAt:   createdAt,
		ThreadID:    threadID,
		IsDeleted:   msg.IsDeleted,
	}

	if msg.TimestampEdited != nil {
		if edited := parseTimestamp(*msg.TimestampEdited); !edited.IsZero() {
			snap.EditedAt = &edited
		}
	}
	if msg.TimestampDeleted != nil {
		if deleted := parseTimestamp(*msg.TimestampDeleted); !deleted.IsZero() {
			snap.DeletedAt = &deleted
			snap.IsDeleted = true
		}
	}
	if msg.Reference != nil {
		if replyTo := int64(msg.Reference.MessageID); replyTo != 0 {
			snap.ReplyToMessageID = &replyTo
		}
	}

	for _, reaction := range msg.Reactions {
		if reaction.Emoji.Name == "" {
			continue
		}
		for _, reactor := range reaction.Users {
			reactorDiscordID := int64(reactor.ID)
			if reactorDiscordID == 0 {
				continue
			}
			name := reactor.Name
			if name == "" {
				name = "unknown"
			}
			reactorID, err := i.resolver.ResolveUser(reactorDiscordID, name, createdAt)
			if err != nil {
				logrus.Warnf("Skipping reaction on message %d: %v", messageID, err)
				continue
			}
			snap.Reactions = append(snap.Reactions, merger.ReactionObservation{
				Emoji:  reaction.Emoji.Name,
				UserID: reactorID,
			})
		}
	}

	return snap, true
}

func (i *Importer) importMembershipEvents(serverID int64, events []exportMembershipEvent) error {
	for _, ev := range events {
		discordID := int64(ev.UserID)
		ts := parseTimestamp(ev.Timestamp)
		if discordID == 0 || ts.IsZero() {
			logrus.Warnf("Skipping malformed membership event in server %d", serverID)
			continue
		}
		username := ev.Username
		if username == "" {
			username = "unknown"
		}
		userID, err := i.resolver.ResolveUser(discordID, username, ts)
		if err != nil {
			return err
		}
		var event membership.Event
		switch strings.ToLower(ev.Event) {
		case "joined":
			event = membership.EventJoined
		case "left":
			event = membership.EventLeft
		default:
			logrus.Warnf("Skipping membership event with unknown type %q", ev.Event)
			continue
		}
		if err := i.tracker.RecordEvent(serverID, userID, event, ts); err != nil {
			return err
		}
	}
	return nil
}

// collectFiles returns path itself if it is a file, or all .json files under
// it, sorted, if it is a directory.
func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input path does not exist: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".json") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}
