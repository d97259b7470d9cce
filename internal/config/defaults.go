package config

const (
	defaultConfigPath            = "~/.config/animstore/config.toml"
	defaultDataDir               = "~/.local/share/animstore"
	defaultLogDir                = "~/.local/share/animstore/logs"
	defaultCatalogPath           = "~/.local/share/animstore/catalog.db"
	defaultTrackCapacity         = 3600
	defaultTimeEpsilon           = 0.001
	defaultIDFormat              = "uuid"
	defaultFrameRate             = 30
	defaultMarginFactor          = 1.1
	defaultMaxMemoryFraction     = 0.5
	defaultTimeDecimals          = 3
	defaultValueDecimals         = 2
	defaultTimelineFileName      = "timeline_data.json"
	defaultMusicFileName         = "music_data.json"
	defaultHistoryFileName       = "history_data.json"
	defaultChildrenSizeThreshold = 4 << 20
	defaultChildVertexThreshold  = 10000
	defaultChildSizeThreshold    = 512 << 10
	defaultMinFreeBytes          = 64 << 20
	defaultLogFormat             = "auto"
	defaultLogLevel              = "info"
	maxDecimals                  = 9
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			CatalogPath: defaultCatalogPath,
		},
		Tracks: Tracks{
			Capacity:         defaultTrackCapacity,
			TimeEpsilon:      defaultTimeEpsilon,
			IDFormat:         defaultIDFormat,
			DefaultFrameRate: defaultFrameRate,
		},
		Precompute: Precompute{
			MarginFactor:      defaultMarginFactor,
			MemoryGuard:       true,
			MaxMemoryFraction: defaultMaxMemoryFraction,
		},
		Codec: Codec{
			Compress:      true,
			TimeDecimals:  defaultTimeDecimals,
			ValueDecimals: defaultValueDecimals,
		},
		Packager: Packager{
			SplitTimeline:         true,
			SplitMusic:            true,
			SplitHistory:          true,
			TimelineFileName:      defaultTimelineFileName,
			MusicFileName:         defaultMusicFileName,
			HistoryFileName:       defaultHistoryFileName,
			ChildrenSizeThreshold: defaultChildrenSizeThreshold,
			ChildVertexThreshold:  defaultChildVertexThreshold,
			ChildSizeThreshold:    defaultChildSizeThreshold,
			MinFreeBytes:          defaultMinFreeBytes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
