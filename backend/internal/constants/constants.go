package constants

// Discord constants
const (
	// DiscordMaxMessageLength is the maximum character limit for Discord messages
	DiscordMaxMessageLength = 2000

	// DiscordMaxSelectOptions is the maximum number of options in a select menu
	DiscordMaxSelectOptions = 25

	// DiscordMaxEmbedFieldLength is the maximum length of an embed field value
	DiscordMaxEmbedFieldLength = 1024
)

// Slash command names
const (
	CommandSimp   = "simp"
	CommandUnsimp = "unsimp"
	CommandList   = "list"
	CommandMap    = "map"
)

// Component custom IDs
const (
	// ComponentSimpRemove is the select menu shown by /unsimp without a user
	ComponentSimpRemove = "SIMP_REMOVE"
)

// Graph output
const (
	// EmptyGraphMarker is sent alongside a map with no edges
	EmptyGraphMarker = ":c"

	// MapImageName is the attachment name for rendered maps, before the extension
	MapImageName = "simps"
)

// Drawing colours
const (
	ColourMutual    = "purple"
	ColourHighlight = "red"
	ColourDefault   = "blue"
)

// Embed colours
const (
	EmbedColourList = 0xAC393B
	EmbedColourMap  = 0x6896CD
)
