// ABOUTME: Telegram sink client over MTProto (gotd/td) using a Telethon string session
// ABOUTME: Uploads media albums in chunks of ten and delivers text reports to Saved Messages

package driver

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"media-archiver/models"
)

// albumChunkSize is the platform limit on media per album message.
const albumChunkSize = 10

// TelegramClient is the archive-channel sink. It maintains one background
// MTProto connection between Connect and Disconnect.
type TelegramClient struct {
	client *telegram.Client
	logger *slog.Logger

	cancel context.CancelFunc
	runErr chan error
}

// NewTelegramClient builds a client from api credentials and a Telethon-format
// string session.
func NewTelegramClient(apiID int, apiHash, stringSession string, logger *slog.Logger) (*TelegramClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := session.TelethonSession(stringSession)
	if err != nil {
		return nil, fmt.Errorf("failed to decode string session: %w", err)
	}

	storage := new(session.StorageMemory)
	loader := session.Loader{Storage: storage}
	if err := loader.Save(context.Background(), data); err != nil {
		return nil, fmt.Errorf("failed to seed session storage: %w", err)
	}

	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: storage,
	})

	return &TelegramClient{client: client, logger: logger}, nil
}

// Connect starts the background connection and blocks until it is usable.
func (c *TelegramClient) Connect(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	runErr := make(chan error, 1)

	go func() {
		runErr <- c.client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		c.cancel = cancel
		c.runErr = runErr
		c.logger.Info("Connected to Telegram")
		return nil
	case err := <-runErr:
		cancel()
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	case <-ctx.Done():
		cancel()
		<-runErr
		return ctx.Err()
	}
}

// Disconnect tears down the background connection.
func (c *TelegramClient) Disconnect() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	err := <-c.runErr
	c.cancel = nil
	c.runErr = nil
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// HealthCheck verifies the session by resolving the authorized user.
func (c *TelegramClient) HealthCheck(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	if _, err := c.client.Self(ctx); err != nil {
		return fmt.Errorf("telegram session check failed: %w", err)
	}
	return nil
}

// SendMediaGroup uploads files to Saved Messages as albums of at most ten,
// captioned with the handle, post time and post URL; chunks after the first
// carry a "[part N]" marker. Returns all message ids in send order.
func (c *TelegramClient) SendMediaGroup(ctx context.Context, postURL, handle string, postedAt time.Time, files []models.LocalFile) ([]int, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	api := c.client.API()
	up := uploader.NewUploader(api)
	sender := message.NewSender(api).WithUploader(up)

	var messageIDs []int
	part := 0
	for start := 0; start < len(files); start += albumChunkSize {
		end := start + albumChunkSize
		if end > len(files) {
			end = len(files)
		}
		part++

		caption := fmt.Sprintf("@%s\n%s\n%s", handle, postedAt.UTC().Format(time.RFC3339), postURL)
		if part > 1 {
			caption += fmt.Sprintf("\n[part %d]", part)
		}

		var items []message.MultiMediaOption
		for i, file := range files[start:end] {
			uploaded, err := up.FromPath(ctx, file.Path)
			if err != nil {
				return messageIDs, fmt.Errorf("failed to upload %s: %w", file.Path, err)
			}

			// The album caption lives on the first item of each chunk.
			var text []message.StyledTextOption
			if i == 0 {
				text = append(text, styling.Plain(caption))
			}

			if file.MediaType == models.MediaTypePhoto {
				items = append(items, message.UploadedPhoto(uploaded, text...))
			} else {
				doc := message.UploadedDocument(uploaded, text...).
					Filename(filepath.Base(file.Path)).
					MIME("video/mp4")
				items = append(items, doc.Video())
			}
		}

		updates, err := sender.Self().Album(ctx, items[0], items[1:]...)
		if err != nil {
			return messageIDs, fmt.Errorf("failed to send album part %d: %w", part, err)
		}
		messageIDs = append(messageIDs, extractMessageIDs(updates)...)
	}

	c.logger.Info("Sent media group",
		"handle", handle,
		"post_url", postURL,
		"files", len(files),
		"parts", part,
		"message_ids", messageIDs)

	return messageIDs, nil
}

// SendText posts a plain text message to Saved Messages.
func (c *TelegramClient) SendText(ctx context.Context, text string) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	sender := message.NewSender(c.client.API())
	if _, err := sender.Self().Text(ctx, text); err != nil {
		return fmt.Errorf("failed to send text message: %w", err)
	}
	return nil
}

// extractMessageIDs pulls message ids out of an updates envelope in order.
func extractMessageIDs(updates tg.UpdatesClass) []int {
	var ids []int

	collect := func(list []tg.UpdateClass) {
		for _, u := range list {
			switch upd := u.(type) {
			case *tg.UpdateNewMessage:
				if msg, ok := upd.Message.(*tg.Message); ok {
					ids = append(ids, msg.ID)
				}
			case *tg.UpdateNewChannelMessage:
				if msg, ok := upd.Message.(*tg.Message); ok {
					ids = append(ids, msg.ID)
				}
			}
		}
	}

	switch u := updates.(type) {
	case *tg.Updates:
		collect(u.Updates)
	case *tg.UpdatesCombined:
		collect(u.Updates)
	}

	return ids
}
