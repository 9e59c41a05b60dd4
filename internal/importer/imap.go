package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/adverant/nexus/docingest/internal/config"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/pipeline"
)

// Message is a raw RFC 5322 message fetched from a mailbox
type Message struct {
	UID  uint32
	Body []byte
}

// Attachment is one file extracted from a message
type Attachment struct {
	Name string
	Data []byte
}

// Mailbox is the mail store the IMAP importer polls
type Mailbox interface {
	Unseen(ctx context.Context) ([]Message, error)
	MarkSeen(ctx context.Context, uids []uint32) error
	Close() error
}

// MailboxDialer opens a fresh mailbox session for one poll
type MailboxDialer func(ctx context.Context) (Mailbox, error)

// IMAPImporter imports the attachments of unseen messages. A message is
// marked seen once all of its attachments were handed to the pipeline.
type IMAPImporter struct {
	importer *Importer
	dial     MailboxDialer
	interval time.Duration
	username string
	logger   *logging.Logger
}

func NewIMAPImporter(imp *Importer, dial MailboxDialer, interval time.Duration, username string, logger *logging.Logger) *IMAPImporter {
	if logger == nil {
		logger = logging.NewLogger("IMAPImporter")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &IMAPImporter{importer: imp, dial: dial, interval: interval, username: username, logger: logger}
}

// Run polls until ctx is done
func (m *IMAPImporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Poll(ctx); err != nil {
			m.logger.Error("Mailbox poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll imports every unseen message once and returns the number of
// attachments ingested.
func (m *IMAPImporter) Poll(ctx context.Context) (int, error) {
	box, err := m.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer box.Close()

	msgs, err := box.Unseen(ctx)
	if err != nil {
		return 0, err
	}

	imported := 0
	var done []uint32
	for _, msg := range msgs {
		attachments, err := ExtractAttachments(msg.Body)
		if err != nil {
			m.logger.Warn("Unreadable message skipped", "uid", msg.UID, "error", err)
			done = append(done, msg.UID)
			continue
		}

		ok := true
		for _, a := range attachments {
			doc, err := m.importer.Import(ctx, Request{
				Source:    a.Data,
				Processor: pipeline.ProcessorIMAP,
				Name:      a.Name,
				Username:  m.username,
			})
			if err != nil {
				m.logger.Error("Attachment import failed", "uid", msg.UID, "name", a.Name, "error", err)
				ok = false
				continue
			}
			if doc != nil {
				imported++
			}
		}
		if ok {
			done = append(done, msg.UID)
		}
	}

	if len(done) > 0 {
		if err := box.MarkSeen(ctx, done); err != nil {
			return imported, fmt.Errorf("failed to mark messages seen: %w", err)
		}
	}
	return imported, nil
}

// ExtractAttachments returns the file parts of a raw message. Inline text
// bodies are ignored.
func ExtractAttachments(raw []byte) ([]Attachment, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	var out []Attachment
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return out, nil
		}
		if p == nil || (err != nil && !message.IsUnknownCharset(err)) {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		name := partFilename(p.Header)
		if name == "" {
			continue
		}
		data, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode attachment %s: %w", name, err)
		}
		out = append(out, Attachment{Name: name, Data: data})
	}
}

// partFilename names attachments and named inline parts such as embedded
// scans. Unnamed parts are message bodies.
func partFilename(h mail.PartHeader) string {
	var name string
	switch h := h.(type) {
	case *mail.AttachmentHeader:
		name, _ = h.Filename()
	case *mail.InlineHeader:
		if _, params, err := h.ContentDisposition(); err == nil {
			name = params["filename"]
		}
		if name == "" {
			if _, params, err := h.ContentType(); err == nil {
				name = params["name"]
			}
		}
	}
	if name == "" {
		return ""
	}
	return filepath.Base(strings.ReplaceAll(name, `\`, "/"))
}

// imapMailbox is a Mailbox over one go-imap client session
type imapMailbox struct {
	c *client.Client
}

// DialIMAP returns a MailboxDialer that logs into cfg.Host over TLS and
// selects cfg.Mailbox.
func DialIMAP(cfg config.IMAPConfig) MailboxDialer {
	return func(ctx context.Context) (Mailbox, error) {
		c, err := client.DialTLS(cfg.Host, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Host, err)
		}
		if err := c.Login(cfg.Username, cfg.Password); err != nil {
			c.Logout()
			return nil, fmt.Errorf("imap login failed: %w", err)
		}
		mailbox := cfg.Mailbox
		if mailbox == "" {
			mailbox = "INBOX"
		}
		if _, err := c.Select(mailbox, false); err != nil {
			c.Logout()
			return nil, fmt.Errorf("failed to select %s: %w", mailbox, err)
		}
		return &imapMailbox{c: c}, nil
	}
}

func (b *imapMailbox) Unseen(ctx context.Context) ([]Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := b.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search failed: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// BODY.PEEK keeps the message unseen until every attachment is imported
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	fetched := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- b.c.UidFetch(seqset, items, fetched)
	}()

	var out []Message
	for m := range fetched {
		body := m.GetBody(section)
		if body == nil {
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		out = append(out, Message{UID: m.Uid, Body: data})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch failed: %w", err)
	}
	return out, nil
}

func (b *imapMailbox) MarkSeen(ctx context.Context, uids []uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return b.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil)
}

func (b *imapMailbox) Close() error {
	return b.c.Logout()
}
