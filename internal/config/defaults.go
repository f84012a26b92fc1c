package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:              "~/.local/share/watchvault",
			SQLiteFile:        "watchvault.db",
			SQLiteJournalMode: "wal",
			BusyTimeoutMS:     5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "pretty",
		},
		Query: QueryConfig{
			DefaultLimit: 50,
			MaxLimit:     1000,
		},
		Archive: ArchiveConfig{
			ExportBatchSize: 500,
			ImportBatchSize: 500,
		},
		Ingest: IngestConfig{
			TitlePrefix:     "Watched ",
			AdMarker:        "From Google Ads",
			ExcludeChannels: []string{},
		},
		Retention: RetentionConfig{
			Days: 0,
		},
	}
}
