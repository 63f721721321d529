package config

const (
	defaultConfigPath         = "~/.config/syndicate/config.toml"
	defaultDataDir            = "~/.local/share/syndicate"
	defaultLogDir             = "~/.local/share/syndicate/logs"
	defaultInboxDir           = "~/.local/share/syndicate/inbox"
	defaultOutboxDir          = "~/.local/share/syndicate/outbox"
	defaultAPIBind            = "127.0.0.1:7591"
	defaultCompanyName        = "Syndicate News Network"
	defaultTimeZone           = "UTC"
	defaultItemsAge           = 7
	defaultDuplicateWindow    = 2
	defaultRatePerSecond      = 5
	defaultBurst              = 5
	defaultDeliveryTimeout    = 30
	defaultRedisAddr          = "127.0.0.1:6379"
	defaultEventsNamespace    = "default"
	defaultTokenTTLHours      = 24 * 30
	defaultNotifyTimeout      = 10
	defaultPollInterval       = 60
	defaultErrorRetry         = 300
	defaultRefreshConcurrency = 4
	defaultInboxScanInterval  = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			InboxDir:  defaultInboxDir,
			OutboxDir: defaultOutboxDir,
			APIBind:   defaultAPIBind,
		},
		Syndication: Syndication{
			CompanyName:     defaultCompanyName,
			TimeZone:        defaultTimeZone,
			DefaultItemsAge: defaultItemsAge,
		},
		Delivery: Delivery{
			RatePerSecond:  defaultRatePerSecond,
			Burst:          defaultBurst,
			TimeoutSeconds: defaultDeliveryTimeout,
		},
		Events: Events{
			RedisAddr: defaultRedisAddr,
			Namespace: defaultEventsNamespace,
		},
		Auth: Auth{
			TokenTTLHours: defaultTokenTTLHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Transmission:   true,
			Errors:         true,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetry,
			RefreshConcurrency: defaultRefreshConcurrency,
			InboxScanInterval:  defaultInboxScanInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
