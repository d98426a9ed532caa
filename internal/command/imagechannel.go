package command

import (
	"context"
	"fmt"
	"strings"

	"matrixbot/internal/domain"
)

const imageChannelUsage = "Usage: !image-channel <source> <target> | !image-channel remove <source>"

// ImageChannel manages the image redirect table. Only the configured
// root user may run it; everyone else gets a refusal and no mutation
// takes place.
type ImageChannel struct {
	rootUserID string
}

func NewImageChannel(rootUserID string) *ImageChannel {
	return &ImageChannel{rootUserID: rootUserID}
}

func (c *ImageChannel) Trigger() string { return "!image-channel" }

func (c *ImageChannel) Execute(ctx context.Context, inv *domain.Invocation) error {
	if c.rootUserID == "" || inv.SenderID != c.rootUserID {
		_, err := inv.Client.SendMessage(ctx, inv.RoomID, "You are not authorized to manage image channels.")
		return err
	}

	fields := strings.Fields(inv.Args)
	switch {
	case len(fields) == 2 && fields[0] == "remove":
		return c.remove(ctx, inv, fields[1])
	case len(fields) == 2:
		return c.set(ctx, inv, fields[0], fields[1])
	default:
		_, err := inv.Client.SendMessage(ctx, inv.RoomID, imageChannelUsage)
		return err
	}
}

func (c *ImageChannel) set(ctx context.Context, inv *domain.Invocation, source, target string) error {
	sourceID, err := inv.Resolver.Resolve(ctx, source)
	if err != nil {
		_, serr := inv.Client.SendMessage(ctx, inv.RoomID, err.Error())
		return serr
	}
	targetID, err := inv.Resolver.Resolve(ctx, target)
	if err != nil {
		_, serr := inv.Client.SendMessage(ctx, inv.RoomID, err.Error())
		return serr
	}

	if err := inv.Mappings.PutMapping(ctx, sourceID, targetID); err != nil {
		return fmt.Errorf("store channel mapping: %w", err)
	}

	_, err = inv.Client.SendMessage(ctx, inv.RoomID,
		fmt.Sprintf("Images from %s will be posted to %s.", sourceID, targetID))
	return err
}

func (c *ImageChannel) remove(ctx context.Context, inv *domain.Invocation, source string) error {
	sourceID, err := inv.Resolver.Resolve(ctx, source)
	if err != nil {
		_, serr := inv.Client.SendMessage(ctx, inv.RoomID, err.Error())
		return serr
	}

	existed, err := inv.Mappings.DeleteMapping(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("delete channel mapping: %w", err)
	}

	msg := fmt.Sprintf("No image channel mapping exists for %s.", sourceID)
	if existed {
		msg = fmt.Sprintf("Image channel mapping for %s removed.", sourceID)
	}
	_, err = inv.Client.SendMessage(ctx, inv.RoomID, msg)
	return err
}
