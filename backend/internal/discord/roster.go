package discord

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// memberFetcher resolves one guild member; an error means "not a member"
type memberFetcher func(guildID, userID string) (*discordgo.Member, error)

// sessionFetcher reads the state cache first and falls back to REST
func sessionFetcher(s *discordgo.Session) memberFetcher {
	return func(guildID, userID string) (*discordgo.Member, error) {
		if s.State != nil {
			if member, err := s.State.Member(guildID, userID); err == nil {
				return member, nil
			}
		}
		return s.GuildMember(guildID, userID)
	}
}

// roster answers membership and label questions for one interaction.
// Lookups are memoised, so a map of n users costs at most n fetches.
type roster struct {
	guildID string
	fetch   memberFetcher
	members map[int64]*discordgo.Member
	logger  *zap.Logger
}

func newRoster(guildID string, fetch memberFetcher, logger *zap.Logger) *roster {
	return &roster{
		guildID: guildID,
		fetch:   fetch,
		members: make(map[int64]*discordgo.Member),
		logger:  logger,
	}
}

// seed records members that arrived with the interaction payload
func (r *roster) seed(members ...*discordgo.Member) {
	for _, member := range members {
		if member == nil || member.User == nil {
			continue
		}
		id, err := strconv.ParseInt(member.User.ID, 10, 64)
		if err != nil {
			continue
		}
		r.members[id] = member
	}
}

func (r *roster) member(userID int64) *discordgo.Member {
	if member, ok := r.members[userID]; ok {
		return member
	}
	member, err := r.fetch(r.guildID, strconv.FormatInt(userID, 10))
	if err != nil {
		r.logger.Debug("User is not a guild member",
			zap.String("guild_id", r.guildID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		member = nil
	}
	r.members[userID] = member
	return member
}

// IsMember is a drawing.MembershipTest
func (r *roster) IsMember(userID int64) bool {
	return r.member(userID) != nil
}

// Label is a drawing.Labeler returning the member's display name
func (r *roster) Label(userID int64) string {
	return displayName(r.member(userID), userID)
}

func displayName(member *discordgo.Member, userID int64) string {
	if member == nil || member.User == nil {
		return fmt.Sprintf("User ID %d", userID)
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName
	}
	return member.User.Username
}
