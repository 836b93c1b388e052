package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// JSONConfig mirrors [Config] with JSON tags and string-friendly durations.
type JSONConfig struct {
	App struct {
		LogLevel  string `json:"log_level"`
		AuthToken string `json:"auth_token"`
	} `json:"app,omitempty"`

	Remote struct {
		BaseURL        string   `json:"base_url"`
		RequestTimeout Duration `json:"request_timeout"`
	} `json:"remote,omitempty"`

	Storage struct {
		DSN string `json:"dsn"`
	} `json:"storage,omitempty"`

	Sync struct {
		Interval         Duration `json:"interval"`
		PageSize         int      `json:"page_size"`
		MinUploadSpacing Duration `json:"min_upload_spacing"`
		RetryBatchSize   int      `json:"retry_batch_size"`
	} `json:"sync,omitempty"`

	Metrics struct {
		Address string `json:"address"`
	} `json:"metrics,omitempty"`
}

func parseJSON(jsonFilePath string) (*Config, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg JSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &Config{
		App: App{
			LogLevel:  jsonCfg.App.LogLevel,
			AuthToken: jsonCfg.App.AuthToken,
		},
		Remote: Remote{
			BaseURL:        jsonCfg.Remote.BaseURL,
			RequestTimeout: time.Duration(jsonCfg.Remote.RequestTimeout),
		},
		Storage: Storage{
			DSN: jsonCfg.Storage.DSN,
		},
		Sync: Sync{
			Interval:         time.Duration(jsonCfg.Sync.Interval),
			PageSize:         jsonCfg.Sync.PageSize,
			MinUploadSpacing: time.Duration(jsonCfg.Sync.MinUploadSpacing),
			RetryBatchSize:   jsonCfg.Sync.RetryBatchSize,
		},
		Metrics: Metrics{
			Address: jsonCfg.Metrics.Address,
		},
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling
// from strings like "1h", "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return json.Unmarshal(b, (*time.Duration)(d))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
