package bot

import (
	"context"
	"fmt"
	"log/slog"

	"matrixbot/internal/domain"
	"matrixbot/internal/metrics"
)

// ImageSender routes produced images: the destination is the origin room
// unless an administrator mapped it elsewhere, in which case a deep-link
// notice is posted back to the origin.
type ImageSender struct {
	client   domain.Client
	mappings domain.MappingStore
	linkHost string
	logger   *slog.Logger
}

func NewImageSender(client domain.Client, mappings domain.MappingStore, linkHost string, logger *slog.Logger) *ImageSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageSender{client: client, mappings: mappings, linkHost: linkHost, logger: logger}
}

func (s *ImageSender) Route(ctx context.Context, originRoom, filename string, data []byte) error {
	target := originRoom
	mapping, err := s.mappings.Mapping(ctx, originRoom)
	if err != nil {
		return fmt.Errorf("mapping lookup for %s: %w", originRoom, err)
	}
	if mapping != nil {
		// Targets were validated when the mapping was created; they are
		// not re-resolved at delivery time.
		target = mapping.TargetRoomID
	}

	eventID, err := s.client.SendImage(ctx, target, filename, data)
	if err != nil {
		return fmt.Errorf("image delivery to %s: %w", target, err)
	}
	metrics.ImagesRouted.Inc()

	if target != originRoom {
		link := fmt.Sprintf("%s/#/%s/%s", s.linkHost, target, eventID)
		if _, err := s.client.SendMessage(ctx, originRoom, "Image posted to image channel: "+link); err != nil {
			// The artifact is already delivered; a lost notice is not
			// worth failing the command over.
			s.logger.Warn("could not post cross-reference notice", "room", originRoom, "err", err)
		}
	}
	return nil
}
