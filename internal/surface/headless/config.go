package headless

import "time"

// Selectors locate the player controls and the chat panel. Chat item
// selectors are resolved inside the chat frame document.
type Selectors struct {
	ChatFrame         string   `mapstructure:"chat_frame"`
	ChatItem          string   `mapstructure:"chat_item"`
	ChatContent       string   `mapstructure:"chat_content"`
	Timestamp         string   `mapstructure:"timestamp"`
	AuthorName        string   `mapstructure:"author_name"`
	Message           string   `mapstructure:"message"`
	Avatar            string   `mapstructure:"avatar"`
	MuteButton        string   `mapstructure:"mute_button"`
	AutoplayToggle    string   `mapstructure:"autoplay_toggle"`
	PlayButton        string   `mapstructure:"play_button"`
	Overflow          string   `mapstructure:"overflow"`
	TimestampMenuItem string   `mapstructure:"timestamp_menu_item"`
	ShowMore          string   `mapstructure:"show_more"`
	ReplayTitles      []string `mapstructure:"replay_titles"`
}

// DefaultSelectors returns the selectors of the replay page layout the
// crawler was built against.
func DefaultSelectors() Selectors {
	return Selectors{
		ChatFrame:         "#chatframe",
		ChatItem:          "yt-live-chat-text-message-renderer",
		ChatContent:       "#content",
		Timestamp:         "#timestamp",
		AuthorName:        "#author-name",
		Message:           "#message",
		Avatar:            "#img",
		MuteButton:        ".ytp-mute-button",
		AutoplayToggle:    "#improved-toggle",
		PlayButton:        ".ytp-play-button",
		Overflow:          "#overflow",
		TimestampMenuItem: "#items > ytd-menu-service-item-renderer",
		ShowMore:          "#show-more",
		ReplayTitles:      []string{"Replay", "다시보기"},
	}
}

// withDefaults fills any empty selector from DefaultSelectors.
func (s Selectors) withDefaults() Selectors {
	def := DefaultSelectors()
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&s.ChatFrame, def.ChatFrame)
	fill(&s.ChatItem, def.ChatItem)
	fill(&s.ChatContent, def.ChatContent)
	fill(&s.Timestamp, def.Timestamp)
	fill(&s.AuthorName, def.AuthorName)
	fill(&s.Message, def.Message)
	fill(&s.Avatar, def.Avatar)
	fill(&s.MuteButton, def.MuteButton)
	fill(&s.AutoplayToggle, def.AutoplayToggle)
	fill(&s.PlayButton, def.PlayButton)
	fill(&s.Overflow, def.Overflow)
	fill(&s.TimestampMenuItem, def.TimestampMenuItem)
	fill(&s.ShowMore, def.ShowMore)
	if len(s.ReplayTitles) == 0 {
		s.ReplayTitles = def.ReplayTitles
	}
	return s
}

// Config controls the browser each surface launches.
type Config struct {
	ExecPath string `mapstructure:"exec_path"`
	Headless bool   `mapstructure:"headless"`
	// NoSandbox is needed when Chrome runs as root, e.g. in containers.
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout"`
	MenuWait          time.Duration `mapstructure:"menu_wait"`
	Selectors         Selectors     `mapstructure:"selectors"`
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 10 * time.Second
	}
	if c.MenuWait <= 0 {
		c.MenuWait = 500 * time.Millisecond
	}
	c.Selectors = c.Selectors.withDefaults()
	return c
}
