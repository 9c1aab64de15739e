package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"simp-tracker/backend/internal/constants"
	"simp-tracker/backend/internal/drawing"
	"simp-tracker/backend/internal/simps"
	"simp-tracker/backend/internal/tracker"
	apperrors "simp-tracker/backend/pkg/errors"
)

type fakeTracker struct {
	addReq     tracker.AddRequest
	addErr     error
	removeErr  error
	removed    [][2]int64
	listing    *tracker.Listing
	targets    []int64
	renderReq  tracker.RenderRequest
	rendering  *tracker.Rendering
	renderErr  error
	listMember drawing.MembershipTest
}

func (f *fakeTracker) AddRelation(_ context.Context, req tracker.AddRequest) (simps.Edge, error) {
	f.addReq = req
	if f.addErr != nil {
		return simps.Edge{}, f.addErr
	}
	return simps.Edge{GuildID: req.GuildID, UserID: req.ActorID, TargetID: req.TargetID}, nil
}

func (f *fakeTracker) RemoveRelation(_ context.Context, guildID, actorID, targetID int64) (simps.Edge, error) {
	f.removed = append(f.removed, [2]int64{actorID, targetID})
	if f.removeErr != nil {
		return simps.Edge{}, f.removeErr
	}
	return simps.Edge{GuildID: guildID, UserID: actorID, TargetID: targetID}, nil
}

func (f *fakeTracker) ListRelations(_ context.Context, _, userID int64, member drawing.MembershipTest) (*tracker.Listing, error) {
	f.listMember = member
	if f.listing == nil {
		return &tracker.Listing{UserID: userID}, nil
	}
	return f.listing, nil
}

func (f *fakeTracker) Targets(int64, int64, drawing.MembershipTest) []int64 {
	return f.targets
}

func (f *fakeTracker) RenderGraph(_ context.Context, req tracker.RenderRequest) (*tracker.Rendering, error) {
	f.renderReq = req
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	return f.rendering, nil
}

var testMembers = map[string]*discordgo.Member{
	"1": {User: &discordgo.User{ID: "1", Username: "alice"}},
	"2": {User: &discordgo.User{ID: "2", Username: "bob", GlobalName: "Bobby"}},
	"3": {User: &discordgo.User{ID: "3", Username: "carol"}, Nick: "Caz"},
}

func fakeFetcher(calls *int) memberFetcher {
	return func(_, userID string) (*discordgo.Member, error) {
		if calls != nil {
			*calls++
		}
		if member, ok := testMembers[userID]; ok {
			return member, nil
		}
		return nil, errors.New("HTTP 404 Not Found, Unknown Member")
	}
}

func newTestHandler(t Tracker, owners ...int64) *Handler {
	ownerSet := make(map[int64]bool)
	for _, id := range owners {
		ownerSet[id] = true
	}
	return NewHandler(t, func(id int64) bool { return ownerSet[id] }, 5*time.Second, zap.NewNop())
}

func testInvocation() invocation {
	return invocation{
		guildID: 10,
		actor:   &discordgo.User{ID: "1", Username: "alice"},
		actorID: 1,
		botID:   "99",
		roster:  newRoster("10", fakeFetcher(nil), zap.NewNop()),
	}
}

func TestRejectTarget(t *testing.T) {
	bot := &discordgo.User{ID: "50", Bot: true}
	tests := []struct {
		name    string
		target  *discordgo.User
		command string
		owner   bool
		want    string
	}{
		{"simp self", &discordgo.User{ID: "1"}, constants.CommandSimp, false, "Well, _obviously_."},
		{"unsimp self", &discordgo.User{ID: "1"}, constants.CommandUnsimp, false, "Well, _obviously_."},
		{"simp this bot", &discordgo.User{ID: "99", Bot: true}, constants.CommandSimp, true, "Well, _obviously_."},
		{"unsimp this bot", &discordgo.User{ID: "99", Bot: true}, constants.CommandUnsimp, false, "I won't pretend I'm not offended."},
		{"simp other bot", bot, constants.CommandSimp, false, "That's just a bit sad, really."},
		{"unsimp other bot", bot, constants.CommandUnsimp, false, "Who needs bots, anyway?"},
		{"owner may simp bots", bot, constants.CommandSimp, true, ""},
		{"regular user", &discordgo.User{ID: "2"}, constants.CommandSimp, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var owners []int64
			if tt.owner {
				owners = append(owners, 1)
			}
			h := newTestHandler(&fakeTracker{}, owners...)
			assert.Equal(t, tt.want, h.rejectTarget(testInvocation(), tt.target, tt.command))
		})
	}
}

func TestSimp(t *testing.T) {
	fake := &fakeTracker{}
	h := newTestHandler(fake, 1)

	out := h.simp(context.Background(), testInvocation(), &discordgo.User{ID: "2"})

	assert.Equal(t, "You're now simping for <@2>~", out.content)
	assert.Equal(t, int64(10), fake.addReq.GuildID)
	assert.Equal(t, int64(1), fake.addReq.ActorID)
	assert.Equal(t, int64(2), fake.addReq.TargetID)
	assert.True(t, fake.addReq.BypassLimit)
	require.NotNil(t, fake.addReq.Member)
	assert.True(t, fake.addReq.Member(3))
	assert.False(t, fake.addReq.Member(404))
}

func TestSimp_RejectedTargetNeverReachesTracker(t *testing.T) {
	fake := &fakeTracker{}
	h := newTestHandler(fake)

	out := h.simp(context.Background(), testInvocation(), &discordgo.User{ID: "1"})

	assert.Equal(t, "Well, _obviously_.", out.content)
	assert.Zero(t, fake.addReq.TargetID)
}

func TestErrorReply(t *testing.T) {
	h := newTestHandler(&fakeTracker{})
	tests := []struct {
		name      string
		err       error
		want      string
		ephemeral bool
	}{
		{"self", apperrors.ErrSelfReference, "Well, _obviously_.", false},
		{"duplicate", apperrors.NewDuplicateEdge(10, 1, 2), "You're already simping for <@2>!", false},
		{"not found", apperrors.NewEdgeNotFound(10, 1, 2), "You're not simping for <@2>!", false},
		{"limit", apperrors.NewSimpLimitReached(1, 5, 5), "You can only simp for **5** users at once.", false},
		{"render timeout", apperrors.NewRenderTimeout("neato", time.Second), "That map took too long to draw, try again in a bit.", false},
		{"render failure", apperrors.NewRenderProcess("neato", "boom", nil), "I couldn't draw that map right now.", false},
		{"unknown", errors.New("kaboom"), "Something went wrong, try again later.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := h.errorReply(tt.err, "<@2>")
			assert.Equal(t, tt.want, out.content)
			assert.Equal(t, tt.ephemeral, out.ephemeral)
		})
	}
}

func TestUnsimp(t *testing.T) {
	fake := &fakeTracker{}
	h := newTestHandler(fake)

	out := h.unsimp(context.Background(), testInvocation(), &discordgo.User{ID: "2"})
	assert.Equal(t, "You're no longer simping for <@2> :<", out.content)
	assert.Equal(t, [][2]int64{{1, 2}}, fake.removed)

	fake.removeErr = apperrors.NewEdgeNotFound(10, 1, 3)
	out = h.unsimp(context.Background(), testInvocation(), &discordgo.User{ID: "3"})
	assert.Equal(t, "You're not simping for <@3>!", out.content)
}

func TestUnsimp_WithoutUserShowsMenu(t *testing.T) {
	fake := &fakeTracker{targets: []int64{2, 3, 404}}
	h := newTestHandler(fake)

	out := h.unsimp(context.Background(), testInvocation(), nil)

	assert.True(t, out.ephemeral)
	require.Len(t, out.components, 1)
	row, ok := out.components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	menu, ok := row.Components[0].(discordgo.SelectMenu)
	require.True(t, ok)
	assert.Equal(t, constants.ComponentSimpRemove, menu.CustomID)
	assert.Equal(t, []discordgo.SelectMenuOption{
		{Label: "Bobby", Value: "2"},
		{Label: "Caz", Value: "3"},
		{Label: "User ID 404", Value: "404"},
	}, menu.Options)
}

func TestUnsimp_WithoutUserAndNoTargets(t *testing.T) {
	h := newTestHandler(&fakeTracker{})

	out := h.unsimp(context.Background(), testInvocation(), nil)

	assert.Equal(t, "You are not simping for anyone at the moment.", out.content)
	assert.Empty(t, out.components)
}

func TestUnsimpSelected(t *testing.T) {
	fake := &fakeTracker{}
	h := newTestHandler(fake)

	out := h.unsimpSelected(context.Background(), testInvocation(), []string{"2"})
	assert.Equal(t, "You are no longer simping for <@2> :<", out.content)

	fake.removeErr = apperrors.NewEdgeNotFound(10, 1, 2)
	out = h.unsimpSelected(context.Background(), testInvocation(), []string{"2"})
	assert.Equal(t, "You're not simping for <@2> anyway :/", out.content)

	out = h.unsimpSelected(context.Background(), testInvocation(), nil)
	assert.Equal(t, "Nobody was selected.", out.content)
}

func TestList(t *testing.T) {
	since := time.Unix(1700000000, 0)
	fake := &fakeTracker{listing: &tracker.Listing{
		UserID:     1,
		SimpingFor: []tracker.Relation{{UserID: 2, Since: since}},
		Mutual:     []tracker.Relation{{UserID: 3}},
	}}
	h := newTestHandler(fake)

	out := h.list(context.Background(), testInvocation(), nil)

	require.Len(t, out.embeds, 1)
	embed := out.embeds[0]
	assert.Equal(t, constants.EmbedColourList, embed.Color)
	assert.Equal(t, "alice", embed.Author.Name)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "<@2> (<t:1700000000:R>)", embed.Fields[0].Value)
	assert.Equal(t, "Nobody", embed.Fields[1].Value)
	assert.Equal(t, "Mutual Simping owo", embed.Fields[2].Name)
	assert.Equal(t, "<@3>", embed.Fields[2].Value)
	assert.NotNil(t, fake.listMember)
}

func TestListingEmbed_Lonely(t *testing.T) {
	embed := listingEmbed(&discordgo.User{ID: "1", Username: "alice"}, &tracker.Listing{UserID: 1})

	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "Nobody... 🤔", embed.Fields[0].Value)
	assert.Equal(t, "Nobody... 😒", embed.Fields[1].Value)
}

func TestRelationField_Truncates(t *testing.T) {
	relations := make([]tracker.Relation, 200)
	for i := range relations {
		relations[i] = tracker.Relation{UserID: int64(100000000000000000 + i)}
	}

	value := relationField(relations, "")

	assert.LessOrEqual(t, len(value), constants.DiscordMaxEmbedFieldLength)
	assert.Contains(t, value, "…")
}

func TestDrawMap(t *testing.T) {
	fake := &fakeTracker{rendering: &tracker.Rendering{
		Image:       []byte("png"),
		Extension:   "png",
		ContentType: "image/png",
		Dot:         "digraph{}",
	}}
	h := newTestHandler(fake)

	out := h.drawMap(context.Background(), testInvocation(), &discordgo.User{ID: "2", Username: "bob"}, true)

	require.Len(t, out.files, 1)
	assert.Equal(t, "simps.png", out.files[0].Name)
	assert.Equal(t, "image/png", out.files[0].ContentType)
	require.Len(t, out.embeds, 1)
	assert.Equal(t, "attachment://simps.png", out.embeds[0].Image.URL)
	assert.Equal(t, int64(2), fake.renderReq.FocalID)
	assert.Equal(t, int64(1), fake.renderReq.RequesterID)
	assert.Equal(t, drawing.ModeClosure, fake.renderReq.Mode)
	assert.Equal(t, "Caz", fake.renderReq.Label(3))
}

func TestDrawMap_AttachmentFollowsFormat(t *testing.T) {
	fake := &fakeTracker{rendering: &tracker.Rendering{
		Image:       []byte("<svg/>"),
		Extension:   "svg",
		ContentType: "image/svg+xml",
	}}
	h := newTestHandler(fake)

	out := h.drawMap(context.Background(), testInvocation(), nil, false)

	require.Len(t, out.files, 1)
	assert.Equal(t, "simps.svg", out.files[0].Name)
	assert.Equal(t, "image/svg+xml", out.files[0].ContentType)
	assert.Equal(t, "attachment://simps.svg", out.embeds[0].Image.URL)
}

func TestDrawMap_Empty(t *testing.T) {
	fake := &fakeTracker{rendering: &tracker.Rendering{Empty: true}}
	h := newTestHandler(fake)

	out := h.drawMap(context.Background(), testInvocation(), nil, false)

	assert.Equal(t, constants.EmptyGraphMarker, out.content)
	assert.Empty(t, out.files)
	assert.Equal(t, int64(1), fake.renderReq.FocalID)
	assert.Equal(t, drawing.ModeFocal, fake.renderReq.Mode)
}

func TestDrawMap_RenderTimeout(t *testing.T) {
	fake := &fakeTracker{renderErr: apperrors.NewRenderTimeout("neato", 10*time.Second)}
	h := newTestHandler(fake)

	out := h.drawMap(context.Background(), testInvocation(), nil, false)

	assert.Equal(t, "That map took too long to draw, try again in a bit.", out.content)
}
