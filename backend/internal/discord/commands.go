package discord

import (
	"github.com/bwmarrin/discordgo"

	"simp-tracker/backend/internal/constants"
)

// Commands returns the slash commands the bot registers
func Commands() []*discordgo.ApplicationCommand {
	dmPermission := false
	sendMessages := int64(discordgo.PermissionSendMessages)

	userOption := func(description string, required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: description,
			Required:    required,
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     constants.CommandSimp,
			Description:              "Add a person that you're simping for.",
			DMPermission:             &dmPermission,
			DefaultMemberPermissions: &sendMessages,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("The user who you want to simp for.", true),
			},
		},
		{
			Name:                     constants.CommandUnsimp,
			Description:              "Stop simping for a person.",
			DMPermission:             &dmPermission,
			DefaultMemberPermissions: &sendMessages,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("The user who you want to stop simping for. Leave empty to pick from a list.", false),
			},
		},
		{
			Name:                     constants.CommandList,
			Description:              "Show who is simping for whom.",
			DMPermission:             &dmPermission,
			DefaultMemberPermissions: &sendMessages,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("The user who you want to check out.", false),
			},
		},
		{
			Name:                     constants.CommandMap,
			Description:              "Show who is simping for whom - now with visuals!",
			DMPermission:             &dmPermission,
			DefaultMemberPermissions: &sendMessages,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("The user who you want to check out.", false),
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "everyone",
					Description: "Follow every connection instead of only the user's own.",
					Required:    false,
				},
			},
		},
	}
}

// commandOptions indexes the invoked options by name
type commandOptions struct {
	byName   map[string]*discordgo.ApplicationCommandInteractionDataOption
	resolved *discordgo.ApplicationCommandInteractionDataResolved
}

func newCommandOptions(data discordgo.ApplicationCommandInteractionData) commandOptions {
	opts := commandOptions{
		byName:   make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options)),
		resolved: data.Resolved,
	}
	for _, opt := range data.Options {
		opts.byName[opt.Name] = opt
	}
	return opts
}

// user returns the user option and, when resolved, the matching member
func (o commandOptions) user(name string) (*discordgo.User, *discordgo.Member) {
	opt, ok := o.byName[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionUser {
		return nil, nil
	}
	id, ok := opt.Value.(string)
	if !ok {
		return nil, nil
	}

	user := &discordgo.User{ID: id}
	var member *discordgo.Member
	if o.resolved != nil {
		if resolved, ok := o.resolved.Users[id]; ok {
			user = resolved
		}
		if resolved, ok := o.resolved.Members[id]; ok {
			member = resolved
			if member.User == nil {
				member.User = user
			}
		}
	}
	return user, member
}

func (o commandOptions) bool(name string) bool {
	opt, ok := o.byName[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionBoolean {
		return false
	}
	value, _ := opt.Value.(bool)
	return value
}
