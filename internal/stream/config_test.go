package stream

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := LoadConfig()

	if cfg.Backend != BackendRedis {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendRedis)
	}

	if cfg.URL != "redis://localhost:6379" {
		t.Errorf("URL = %q, want redis://localhost:6379", cfg.URL)
	}

	if cfg.StreamName != "events" {
		t.Errorf("StreamName = %q, want events", cfg.StreamName)
	}

	if cfg.ConsumerGroup != "workers" {
		t.Errorf("ConsumerGroup = %q, want workers", cfg.ConsumerGroup)
	}

	if cfg.BlockTimeout != 5*time.Second {
		t.Errorf("BlockTimeout = %s, want 5s", cfg.BlockTimeout)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("EVENTFLOW_BROKER_BACKEND", "KAFKA")
	t.Setenv("EVENTFLOW_BROKER_URL", "broker-1:9092,broker-2:9092")
	t.Setenv("EVENTFLOW_STREAM_NAME", "events-staging")
	t.Setenv("EVENTFLOW_CONSUMER_GROUP", "staging-workers")
	t.Setenv("EVENTFLOW_BLOCK_TIMEOUT_MS", "2500")

	cfg := LoadConfig()

	if cfg.Backend != BackendKafka {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendKafka)
	}

	if got := cfg.Brokers(); len(got) != 2 || got[0] != "broker-1:9092" || got[1] != "broker-2:9092" {
		t.Errorf("Brokers() = %v, want [broker-1:9092 broker-2:9092]", got)
	}

	if cfg.StreamName != "events-staging" {
		t.Errorf("StreamName = %q, want events-staging", cfg.StreamName)
	}

	if cfg.BlockTimeout != 2500*time.Millisecond {
		t.Errorf("BlockTimeout = %s, want 2.5s", cfg.BlockTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := func() *Config {
		return &Config{
			Backend:       BackendRedis,
			URL:           "redis://localhost:6379",
			StreamName:    "events",
			ConsumerGroup: "workers",
			BlockTimeout:  time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "valid redis config",
			mutate:  func(*Config) {},
			wantErr: nil,
		},
		{
			name:    "valid kafka config",
			mutate:  func(c *Config) { c.Backend = BackendKafka; c.URL = "localhost:9092" },
			wantErr: nil,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Backend = "sqs" },
			wantErr: ErrUnknownBackend,
		},
		{
			name:    "empty URL",
			mutate:  func(c *Config) { c.URL = "  " },
			wantErr: ErrBrokerURLEmpty,
		},
		{
			name:    "empty stream name",
			mutate:  func(c *Config) { c.StreamName = "" },
			wantErr: ErrStreamNameEmpty,
		},
		{
			name:    "empty consumer group",
			mutate:  func(c *Config) { c.ConsumerGroup = "" },
			wantErr: ErrConsumerGroupEmpty,
		},
		{
			name:    "zero block timeout",
			mutate:  func(c *Config) { c.BlockTimeout = 0 },
			wantErr: ErrBlockTimeoutInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}

				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
