package importer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thread channel types: the export tool emits threads as standalone channel
// files with one of these types.
var threadTypes = map[string]bool{
	"GuildPublicThread":  true,
	"GuildPrivateThread": true,
	"GuildNewsThread":    true,
}

// exportFile mirrors the JSON layout produced by the export tool. One file
// covers one channel (or thread).
type exportFile struct {
	Guild            exportGuild             `json:"guild"`
	Channel          exportChannel           `json:"channel"`
	Messages         []exportMessage         `json:"messages"`
	MembershipEvents []exportMembershipEvent `json:"membershipEvents"`
}

type exportGuild struct {
	ID   externalID `json:"id"`
	Name string     `json:"name"`
}

type exportChannel struct {
	ID   externalID `json:"id"`
	Name string     `json:"name"`
	Type string     `json:"type"`
}

type exportMessage struct {
	ID               externalID         `json:"id"`
	Timestamp        string             `json:"timestamp"`
	TimestampEdited  *string            `json:"timestampEdited"`
	TimestampDeleted *string            `json:"timestampDeleted"`
	IsDeleted        bool               `json:"isDeleted"`
	Content          string             `json:"content"`
	Author           exportAuthor       `json:"author"`
	Attachments      []exportAttachment `json:"attachments"`
	Reference        *exportReference   `json:"reference"`
	Reactions        []exportReaction   `json:"reactions"`
}

type exportAuthor struct {
	ID            externalID `json:"id"`
	Name          string     `json:"name"`
	Nickname      string     `json:"nickname"`
	Discriminator string     `json:"discriminator"`
}

type exportAttachment struct {
	FileName string `json:"fileName"`
}

type exportReference struct {
	MessageID externalID `json:"messageId"`
	ChannelID externalID `json:"channelId"`
}

type exportReaction struct {
	Emoji exportEmoji  `json:"emoji"`
	Users []exportUser `json:"users"`
}

type exportEmoji struct {
	Name string `json:"name"`
}

type exportUser struct {
	ID   externalID `json:"id"`
	Name string     `json:"name"`
}

type exportMembershipEvent struct {
	UserID    externalID `json:"userId"`
	Username  string     `json:"username"`
	Event     string     `json:"event"`
	Timestamp string     `json:"timestamp"`
}

// externalID tolerates Discord snowflakes encoded as either JSON strings or
// numbers. Zero means absent/unparseable.
type externalID int64

func (e *externalID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*e = 0
		return nil
	}
	*e = externalID(v)
	return nil
}

// parseTimestamp parses an export ISO 8601 timestamp into UTC. Returns the
// zero time for empty or unparseable input.
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// formatUsername builds a display username from an export author. Modern
// accounts carry discriminator "0" / "0000" (no tag); legacy accounts keep
// the "name#1234" form. A server nickname takes precedence over the account
// name.
func formatUsername(a *exportAuthor) string {
	name := a.Name
	if name == "" {
		name = "unknown"
	}
	display := name
	if a.Nickname != "" {
		display = a.Nickname
	}
	if a.Discriminator != "" && a.Discriminator != "0" && a.Discriminator != "0000" {
		return fmt.Sprintf("%s#%s", display, a.Discriminator)
	}
	return display
}

// messageContent renders the stored content for a message. Attachment-only
// messages keep a note of what was attached instead of an empty body.
func messageContent(m *exportMessage) string {
	if m.Content != "" || len(m.Attachments) == 0 {
		return m.Content
	}
	names := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		name := a.FileName
		if name == "" {
			name = "attachment"
		}
		names = append(names, name)
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func parseExport(data []byte) (*exportFile, error) {
	var f exportFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid export JSON: %w", err)
	}
	return &f, nil
}
