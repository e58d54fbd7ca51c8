package config

// Config is the on-disk configuration. The file may be JSON, YAML or TOML;
// durations are Go duration strings ("30s", "5m").
type Config struct {
	General   GeneralConfig   `json:"general"`
	Source    SourceConfig    `json:"source"`
	Schedule  ScheduleConfig  `json:"schedule"`
	State     StateConfig     `json:"state"`
	Notify    NotifyConfig    `json:"notify"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Render    RenderConfig    `json:"render"`
	Channels  []ChannelConfig `json:"channels"`
	Logging   LoggingConfig   `json:"logging"`
	Diag      DiagConfig      `json:"diag"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
}

// GeneralConfig holds the operator toggles. They are re-read every cycle.
//
// PostUpdates, GenerateImages default to true; pointers tell "omitted" from
// an explicit false.
type GeneralConfig struct {
	PostUpdates    *bool  `json:"post_updates,omitempty"`
	PrintOutput    bool   `json:"print_output,omitempty"`
	GenerateImages *bool  `json:"generate_images,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

type SourceConfig struct {
	URL       string `json:"url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	RetryMax  *int   `json:"retry_max,omitempty"`
}

type ScheduleConfig struct {
	SkewRetry    string `json:"skew_retry,omitempty"`
	GuardOffset  string `json:"guard_offset,omitempty"`
	ErrorBackoff string `json:"error_backoff,omitempty"`
}

// StateConfig selects the last-state store. Driver is "file" (default),
// "sqlite" or "postgres".
type StateConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	Name        string `json:"name,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type NotifyConfig struct {
	// CooldownSplitBudget keeps the upcoming reward list in the primary
	// post when everything fits in this many characters. 0 always splits.
	CooldownSplitBudget int   `json:"cooldown_split_budget,omitempty"`
	AnnounceErrors      *bool `json:"announce_errors,omitempty"`
}

type DispatchConfig struct {
	PostTimeout string `json:"post_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	RetryFailed bool   `json:"retry_failed,omitempty"`
	RetryDelay  string `json:"retry_delay,omitempty"`
}

type RenderConfig struct {
	AssetsDir string `json:"assets_dir,omitempty"`
}

// ChannelConfig describes one output channel. Announce (default true) puts
// the channel in the announcement fan-out; operator channels used only as
// the log relay destination set it to false. Fields apply per Type:
//   - telegram: token, chat_id, thread_id, parse_mode, disable_preview, api_url
//   - webhook: url, username, thread
//   - console: nothing
type ChannelConfig struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
	Announce *bool  `json:"announce,omitempty"`
	Timeout  string `json:"timeout,omitempty"`

	Token          string `json:"token,omitempty"`
	ChatID         int64  `json:"chat_id,omitempty"`
	ThreadID       int    `json:"thread_id,omitempty"`
	ParseMode      string `json:"parse_mode,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	APIURL         string `json:"api_url,omitempty"`

	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Thread   string `json:"thread,omitempty"`
	RetryMax int    `json:"retry_max,omitempty"`
}

// IsEnabled defaults to true.
func (c ChannelConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// Announces defaults to true.
func (c ChannelConfig) Announces() bool { return boolOr(c.Announce, true) }

// DisplayName is Name, or Type when Name is empty.
func (c ChannelConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file"`
	Relay   LogRelay      `json:"relay"`
}

type LogFileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// LogRelay forwards WARN+ log lines to one of the configured channels,
// referenced by name.
type LogRelay struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

type HeartbeatConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (g GeneralConfig) Posting() bool { return boolOr(g.PostUpdates, true) }
func (g GeneralConfig) Images() bool  { return boolOr(g.GenerateImages, true) }

func (n NotifyConfig) ErrorsAnnounced() bool { return boolOr(n.AnnounceErrors, true) }

func (l LoggingConfig) ConsoleEnabled() bool { return boolOr(l.Console, true) }
