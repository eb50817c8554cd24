package email_processor

import "time"

type Config struct {
	// Page size for one ListMessages call.
	BatchSize int `env:"PROCESSOR_BATCH_SIZE" envDefault:"50"`
	// Pages fetched per source before the pass moves on.
	MaxPagesPerTick int `env:"PROCESSOR_MAX_PAGES_PER_TICK" envDefault:"10"`
	// How far back a configuration that has never been processed starts.
	InitialLookback time.Duration `env:"PROCESSOR_INITIAL_LOOKBACK" envDefault:"24h"`
	// Upper bound for handling one message, filing included.
	MessageTimeout time.Duration `env:"PROCESSOR_MESSAGE_TIMEOUT" envDefault:"5m"`
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxPagesPerTick <= 0 {
		c.MaxPagesPerTick = 10
	}
	if c.InitialLookback <= 0 {
		c.InitialLookback = 24 * time.Hour
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 5 * time.Minute
	}
	return c
}
