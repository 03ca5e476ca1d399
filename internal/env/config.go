package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	LogLevel    string `env:"AGI_LOG_LEVEL,default=info"`
	LogEncoding string `env:"AGI_LOG_ENCODING,default=json"`

	// Trace logs every command and response line at debug level
	Trace bool `env:"AGI_TRACE"`

	// CommandTimeout bounds each command's round trip, zero means no limit
	CommandTimeout time.Duration `env:"AGI_COMMAND_TIMEOUT,default=0s"`
}

// LoadConfig reads the config from the environment, after loading
// .env.local if there is one.
func LoadConfig(ctx context.Context) (*Config, error) {
	return loadConfig(ctx, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}
