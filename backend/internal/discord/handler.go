package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"simp-tracker/backend/internal/constants"
	"simp-tracker/backend/internal/drawing"
	"simp-tracker/backend/internal/simps"
	"simp-tracker/backend/internal/tracker"
	apperrors "simp-tracker/backend/pkg/errors"
)

// Tracker is the command core the handler drives
type Tracker interface {
	AddRelation(ctx context.Context, req tracker.AddRequest) (simps.Edge, error)
	RemoveRelation(ctx context.Context, guildID, actorID, targetID int64) (simps.Edge, error)
	ListRelations(ctx context.Context, guildID, userID int64, member drawing.MembershipTest) (*tracker.Listing, error)
	Targets(guildID, userID int64, member drawing.MembershipTest) []int64
	RenderGraph(ctx context.Context, req tracker.RenderRequest) (*tracker.Rendering, error)
}

// Handler handles slash commands and component interactions
type Handler struct {
	tracker Tracker
	isOwner func(userID int64) bool
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler creates a new interaction handler. timeout bounds one
// interaction, including rendering.
func NewHandler(t Tracker, isOwner func(userID int64) bool, timeout time.Duration, logger *zap.Logger) *Handler {
	if isOwner == nil {
		isOwner = func(int64) bool { return false }
	}
	return &Handler{
		tracker: t,
		isOwner: isOwner,
		timeout: timeout,
		logger:  logger,
	}
}

// invocation is the caller context shared by every command
type invocation struct {
	guildID int64
	actor   *discordgo.User
	actorID int64
	botID   string
	roster  *roster
}

// HandleInteraction is registered with discordgo.Session.AddHandler
func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(s, i)
	}
}

func (h *Handler) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	inv, ok := h.newInvocation(s, i)
	if !ok {
		h.respond(s, i, reply{content: "This command cannot be run in DMs.", ephemeral: true})
		return
	}

	h.logger.Info("Processing command",
		zap.String("command", data.Name),
		zap.Int64("guild_id", inv.guildID),
		zap.Int64("user_id", inv.actorID),
	)

	opts := newCommandOptions(data)
	target, targetMember := opts.user("user")
	inv.roster.seed(targetMember)

	// Map rendering can outlive the three second acknowledgement window.
	if data.Name == constants.CommandMap {
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			h.logger.Error("Failed to defer interaction", zap.Error(err))
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var out reply
	switch data.Name {
	case constants.CommandSimp:
		out = h.simp(ctx, inv, target)
	case constants.CommandUnsimp:
		out = h.unsimp(ctx, inv, target)
	case constants.CommandList:
		out = h.list(ctx, inv, target)
	case constants.CommandMap:
		h.followUp(s, i, h.drawMap(ctx, inv, target, opts.bool("everyone")))
		return
	default:
		h.logger.Warn("Unknown command", zap.String("command", data.Name))
		return
	}
	h.respond(s, i, out)
}

func (h *Handler) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	if data.CustomID != constants.ComponentSimpRemove {
		return
	}
	inv, ok := h.newInvocation(s, i)
	if !ok {
		h.respond(s, i, reply{content: "Missing guild ID from interaction.", ephemeral: true})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	out := h.unsimpSelected(ctx, inv, data.Values)
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:         out.content,
			Components:      []discordgo.MessageComponent{},
			AllowedMentions: noMentions(),
		},
	}); err != nil {
		h.logger.Error("Failed to update component message", zap.Error(err))
	}
}

func (h *Handler) newInvocation(s *discordgo.Session, i *discordgo.InteractionCreate) (invocation, bool) {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return invocation{}, false
	}
	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		return invocation{}, false
	}
	actorID, err := strconv.ParseInt(i.Member.User.ID, 10, 64)
	if err != nil {
		return invocation{}, false
	}

	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}

	r := newRoster(i.GuildID, sessionFetcher(s), h.logger)
	r.seed(i.Member)
	return invocation{
		guildID: guildID,
		actor:   i.Member.User,
		actorID: actorID,
		botID:   botID,
		roster:  r,
	}, true
}

func (h *Handler) simp(ctx context.Context, inv invocation, target *discordgo.User) reply {
	if target == nil {
		return reply{content: "Who are you simping for?", ephemeral: true}
	}
	if msg := h.rejectTarget(inv, target, constants.CommandSimp); msg != "" {
		return reply{content: msg}
	}
	targetID, err := strconv.ParseInt(target.ID, 10, 64)
	if err != nil {
		return reply{content: "I don't know who that is.", ephemeral: true}
	}

	_, err = h.tracker.AddRelation(ctx, tracker.AddRequest{
		GuildID:     inv.guildID,
		ActorID:     inv.actorID,
		TargetID:    targetID,
		Member:      inv.roster.IsMember,
		BypassLimit: h.isOwner(inv.actorID),
	})
	if err != nil {
		return h.errorReply(err, target.Mention())
	}
	return reply{content: fmt.Sprintf("You're now simping for %s~", target.Mention())}
}

func (h *Handler) unsimp(ctx context.Context, inv invocation, target *discordgo.User) reply {
	if target == nil {
		return h.removeMenu(inv)
	}
	if msg := h.rejectTarget(inv, target, constants.CommandUnsimp); msg != "" {
		return reply{content: msg}
	}
	targetID, err := strconv.ParseInt(target.ID, 10, 64)
	if err != nil {
		return reply{content: "I don't know who that is.", ephemeral: true}
	}

	if _, err := h.tracker.RemoveRelation(ctx, inv.guildID, inv.actorID, targetID); err != nil {
		return h.errorReply(err, target.Mention())
	}
	return reply{content: fmt.Sprintf("You're no longer simping for %s :<", target.Mention())}
}

// removeMenu offers the caller's current targets in a select menu
func (h *Handler) removeMenu(inv invocation) reply {
	targets := h.tracker.Targets(inv.guildID, inv.actorID, nil)
	if len(targets) == 0 {
		return reply{content: "You are not simping for anyone at the moment.", ephemeral: true}
	}
	if len(targets) > constants.DiscordMaxSelectOptions {
		targets = targets[:constants.DiscordMaxSelectOptions]
	}

	options := make([]discordgo.SelectMenuOption, 0, len(targets))
	for _, id := range targets {
		options = append(options, discordgo.SelectMenuOption{
			Label: inv.roster.Label(id),
			Value: strconv.FormatInt(id, 10),
		})
	}
	return reply{
		content:   "Which user do you want to stop simping for?",
		ephemeral: true,
		components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType: discordgo.StringSelectMenu,
					CustomID: constants.ComponentSimpRemove,
					Options:  options,
				},
			}},
		},
	}
}

func (h *Handler) unsimpSelected(ctx context.Context, inv invocation, values []string) reply {
	if len(values) == 0 {
		return reply{content: "Nobody was selected."}
	}
	targetID, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return reply{content: "I don't know who that is."}
	}

	mention := fmt.Sprintf("<@%d>", targetID)
	if _, err := h.tracker.RemoveRelation(ctx, inv.guildID, inv.actorID, targetID); err != nil {
		var notFound *apperrors.ErrEdgeNotFound
		if errors.As(err, &notFound) {
			return reply{content: fmt.Sprintf("You're not simping for %s anyway :/", mention)}
		}
		return h.errorReply(err, mention)
	}
	return reply{content: fmt.Sprintf("You are no longer simping for %s :<", mention)}
}

func (h *Handler) list(ctx context.Context, inv invocation, user *discordgo.User) reply {
	if user == nil {
		user = inv.actor
	}
	userID, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return reply{content: "I don't know who that is.", ephemeral: true}
	}

	listing, err := h.tracker.ListRelations(ctx, inv.guildID, userID, inv.roster.IsMember)
	if err != nil {
		return h.errorReply(err, user.Mention())
	}
	return reply{embeds: []*discordgo.MessageEmbed{listingEmbed(user, listing)}}
}

func (h *Handler) drawMap(ctx context.Context, inv invocation, user *discordgo.User, everyone bool) reply {
	if user == nil {
		user = inv.actor
	}
	focalID, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return reply{content: "I don't know who that is."}
	}

	mode := drawing.ModeFocal
	if everyone {
		mode = drawing.ModeClosure
	}
	rendering, err := h.tracker.RenderGraph(ctx, tracker.RenderRequest{
		GuildID:     inv.guildID,
		FocalID:     focalID,
		RequesterID: inv.actorID,
		Member:      inv.roster.IsMember,
		Label:       inv.roster.Label,
		Mode:        mode,
	})
	if err != nil {
		return h.errorReply(err, user.Mention())
	}
	if rendering.Empty {
		return reply{content: constants.EmptyGraphMarker}
	}
	return mapReply(user, rendering)
}

// rejectTarget applies the per-command rules about who may be targeted
func (h *Handler) rejectTarget(inv invocation, target *discordgo.User, command string) string {
	switch {
	case target.ID == inv.actor.ID:
		return "Well, _obviously_."
	case target.ID == inv.botID && command == constants.CommandUnsimp:
		return "I won't pretend I'm not offended."
	case target.ID == inv.botID:
		return "Well, _obviously_."
	case target.Bot && !h.isOwner(inv.actorID) && command == constants.CommandUnsimp:
		return "Who needs bots, anyway?"
	case target.Bot && !h.isOwner(inv.actorID):
		return "That's just a bit sad, really."
	}
	return ""
}

// errorReply turns a command failure into user-facing text
func (h *Handler) errorReply(err error, mention string) reply {
	var (
		duplicate *apperrors.ErrDuplicateEdge
		notFound  *apperrors.ErrEdgeNotFound
		limit     *apperrors.ErrSimpLimitReached
		timeout   *apperrors.ErrRenderTimeout
	)
	switch {
	case errors.Is(err, apperrors.ErrSelfReference):
		return reply{content: "Well, _obviously_."}
	case errors.As(err, &duplicate):
		return reply{content: fmt.Sprintf("You're already simping for %s!", mention)}
	case errors.As(err, &notFound):
		return reply{content: fmt.Sprintf("You're not simping for %s!", mention)}
	case errors.As(err, &limit):
		return reply{content: fmt.Sprintf("You can only simp for **%d** users at once.", limit.Limit)}
	case errors.As(err, &timeout):
		return reply{content: "That map took too long to draw, try again in a bit."}
	case apperrors.IsErrorType(err, apperrors.ErrorTypeRender):
		h.logger.Error("Failed to render map", zap.Error(err))
		return reply{content: "I couldn't draw that map right now."}
	}

	h.logger.Error("Command failed",
		zap.Error(err),
		zap.String("error_type", apperrors.TypeOf(err)),
	)
	return reply{content: "Something went wrong, try again later.", ephemeral: true}
}
