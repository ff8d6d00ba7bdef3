package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type StructuredJSONConfig struct {
	Auth struct {
		TokenSignKey  string   `json:"token_sign_key"`
		TokenIssuer   string   `json:"token_issuer"`
		TokenDuration Duration `json:"token_duration"`
	} `json:"auth,omitempty"`

	Storage struct {
		DB struct {
			DSN string `json:"dsn"`
		} `json:"db,omitempty"`

		Local struct {
			DSN string `json:"dsn"`
		} `json:"local,omitempty"`

		Assets struct {
			Dir       string `json:"dir"`
			Backend   string `json:"backend"`
			Endpoint  string `json:"endpoint"`
			Bucket    string `json:"bucket"`
			AccessKey string `json:"access_key"`
			SecretKey string `json:"secret_key"`
		} `json:"assets,omitempty"`
	} `json:"storage,omitempty"`

	Server struct {
		HTTPAddress        string   `json:"http_address"`
		RequestTimeout     Duration `json:"request_timeout"`
		RateLimitPerMinute int      `json:"rate_limit_per_minute"`
	} `json:"server,omitempty"`

	Remote struct {
		BaseURL        string   `json:"base_url"`
		Device         string   `json:"device"`
		AccessKey      string   `json:"access_key"`
		RequestTimeout Duration `json:"request_timeout"`
		ZoneName       string   `json:"zone"`
		BatchLimit     int      `json:"batch_limit"`
	} `json:"remote,omitempty"`

	Workers struct {
		SyncInterval Duration `json:"sync_interval"`
		SaveDebounce Duration `json:"save_debounce"`
	} `json:"workers,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &StructuredConfig{
		Auth: Auth{
			TokenSignKey:  jsonCfg.Auth.TokenSignKey,
			TokenIssuer:   jsonCfg.Auth.TokenIssuer,
			TokenDuration: time.Duration(jsonCfg.Auth.TokenDuration),
		},
		Storage: Storage{
			DB:    DB{DSN: jsonCfg.Storage.DB.DSN},
			Local: LocalDB{DSN: jsonCfg.Storage.Local.DSN},
			Assets: Assets{
				Dir:       jsonCfg.Storage.Assets.Dir,
				Backend:   jsonCfg.Storage.Assets.Backend,
				Endpoint:  jsonCfg.Storage.Assets.Endpoint,
				Bucket:    jsonCfg.Storage.Assets.Bucket,
				AccessKey: jsonCfg.Storage.Assets.AccessKey,
				SecretKey: jsonCfg.Storage.Assets.SecretKey,
			},
		},
		Server: Server{
			HTTPAddress:        jsonCfg.Server.HTTPAddress,
			RequestTimeout:     time.Duration(jsonCfg.Server.RequestTimeout),
			RateLimitPerMinute: jsonCfg.Server.RateLimitPerMinute,
		},
		Remote: Remote{
			BaseURL:        jsonCfg.Remote.BaseURL,
			Device:         jsonCfg.Remote.Device,
			AccessKey:      jsonCfg.Remote.AccessKey,
			RequestTimeout: time.Duration(jsonCfg.Remote.RequestTimeout),
			ZoneName:       jsonCfg.Remote.ZoneName,
			BatchLimit:     jsonCfg.Remote.BatchLimit,
		},
		Workers: Workers{
			SyncInterval: time.Duration(jsonCfg.Workers.SyncInterval),
			SaveDebounce: time.Duration(jsonCfg.Workers.SaveDebounce),
		},
		JSONFilePath: "",
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
