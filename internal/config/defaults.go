package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Backend:       "exec",
			Command:       "hark-engine",
			DialTimeoutMS: 3000,
		},
		Session: SessionConfig{
			MaxResults: 5,
		},
		Availability: AvailabilityConfig{
			RequireInput: false,
			Input:        "default",
		},
		Popup: PopupConfig{
			TimeoutMS: 60000,
		},
		History: HistoryConfig{
			Enable:        true,
			RetentionDays: 30,
		},
		Bus: BusConfig{
			Enable:           false,
			Servers:          []string{"nats://127.0.0.1:4222"},
			SubjectPrefix:    "hark",
			ConnectTimeoutMS: 2000,
		},
		HTTP: ListenConfig{Bind: "127.0.0.1:7373"},
		Log:  LogConfig{Level: "info"},
	}
}
