package discord

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"simp-tracker/backend/internal/constants"
	"simp-tracker/backend/internal/tracker"
)

// reply is a transport-neutral command response
type reply struct {
	content    string
	embeds     []*discordgo.MessageEmbed
	files      []*discordgo.File
	components []discordgo.MessageComponent
	ephemeral  bool
}

func noMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
}

// respond answers the interaction directly
func (h *Handler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, out reply) {
	data := &discordgo.InteractionResponseData{
		Content:         out.content,
		Embeds:          out.embeds,
		Files:           out.files,
		Components:      out.components,
		AllowedMentions: noMentions(),
	}
	if out.ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		h.logger.Error("Failed to respond to interaction",
			zap.String("interaction_id", i.ID),
			zap.Error(err),
		)
	}
}

// followUp fills in a deferred response
func (h *Handler) followUp(s *discordgo.Session, i *discordgo.InteractionCreate, out reply) {
	edit := &discordgo.WebhookEdit{
		Content:         &out.content,
		Files:           out.files,
		AllowedMentions: noMentions(),
	}
	if len(out.embeds) > 0 {
		edit.Embeds = &out.embeds
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		h.logger.Error("Failed to edit deferred response",
			zap.String("interaction_id", i.ID),
			zap.Error(err),
		)
	}
}

// mapReply attaches the rendered image inside an embed
func mapReply(user *discordgo.User, rendering *tracker.Rendering) reply {
	name := constants.MapImageName + "." + rendering.Extension
	embed := &discordgo.MessageEmbed{
		Color: constants.EmbedColourMap,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    userName(user),
			IconURL: user.AvatarURL(""),
		},
		Image: &discordgo.MessageEmbedImage{
			URL: "attachment://" + name,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	return reply{
		embeds: []*discordgo.MessageEmbed{embed},
		files: []*discordgo.File{{
			Name:        name,
			ContentType: rendering.ContentType,
			Reader:      bytes.NewReader(rendering.Image),
		}},
	}
}

// listingEmbed lays out a listing the way the list command shows it
func listingEmbed(user *discordgo.User, listing *tracker.Listing) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color: constants.EmbedColourList,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    userName(user),
			IconURL: user.AvatarURL(""),
		},
	}

	hasMutual := len(listing.Mutual) > 0
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{
			Name:  "Simping For",
			Value: relationField(listing.SimpingFor, emptyValue("Nobody... 🤔", hasMutual)),
		},
		&discordgo.MessageEmbedField{
			Name:  "Being Simped By",
			Value: relationField(listing.SimpedBy, emptyValue("Nobody... 😒", hasMutual)),
		},
	)
	if hasMutual {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Mutual Simping owo",
			Value: relationField(listing.Mutual, ""),
		})
	}
	return embed
}

func emptyValue(lonely string, hasMutual bool) string {
	if hasMutual {
		return "Nobody"
	}
	return lonely
}

// relationField renders one mention per line with a relative timestamp
func relationField(relations []tracker.Relation, empty string) string {
	if len(relations) == 0 {
		return empty
	}
	var b strings.Builder
	for _, rel := range relations {
		line := fmt.Sprintf("<@%d>", rel.UserID)
		if !rel.Since.IsZero() {
			line += fmt.Sprintf(" (<t:%d:R>)", rel.Since.Unix())
		}
		if b.Len()+len(line)+1 > constants.DiscordMaxEmbedFieldLength-len("…") {
			b.WriteString("…")
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	return b.String()
}

func userName(user *discordgo.User) string {
	if user.GlobalName != "" {
		return user.GlobalName
	}
	if user.Username != "" {
		return user.Username
	}
	return user.ID
}
