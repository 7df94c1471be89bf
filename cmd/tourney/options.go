package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/alex65536/tourney/internal/app"
	"github.com/alex65536/tourney/internal/database"
	"github.com/joho/godotenv"
)

type HTTPSOptions struct {
	Port                 int      `toml:"port"`
	CachePath            string   `toml:"cache-path"`
	AllowedSecureDomains []string `toml:"allowed-secure-domains"`
	ExposeInsecure       bool     `toml:"expose-insecure"`
}

type Options struct {
	Host            string           `toml:"host"`
	Port            int              `toml:"port"`
	Debug           bool             `toml:"debug"`
	ShutdownTimeout time.Duration    `toml:"shutdown-timeout"`
	HTTPS           *HTTPSOptions    `toml:"https"`
	DB              database.Options `toml:"db"`
	App             app.Options      `toml:"app"`
}

func (o *Options) FillDefaults() {
	if o.Host == "" {
		o.Host = "127.0.0.1"
	}
	if o.Port == 0 {
		o.Port = 8080
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if o.HTTPS != nil && o.HTTPS.Port == 0 {
		o.HTTPS.Port = 443
	}
	if o.DB.Path == "" {
		o.DB.Path = "tourney.db"
	}
	o.DB.FillDefaults()
	o.App.FillDefaults()
}

func (o *Options) AddrWithPort() string {
	return net.JoinHostPort(o.Host, fmt.Sprint(o.Port))
}

func (o *Options) SecureAddrWithPort() string {
	return net.JoinHostPort(o.Host, fmt.Sprint(o.HTTPS.Port))
}

type Secrets struct {
	S3AccessKeyID     string `toml:"s3-access-key-id"`
	S3SecretAccessKey string `toml:"s3-secret-access-key"`
	InterpreterAPIKey string `toml:"interpreter-api-key"`
}

var secretEnvs = []struct {
	name string
	dst  func(s *Secrets) *string
}{
	{"TOURNEY_S3_ACCESS_KEY_ID", func(s *Secrets) *string { return &s.S3AccessKeyID }},
	{"TOURNEY_S3_SECRET_ACCESS_KEY", func(s *Secrets) *string { return &s.S3SecretAccessKey }},
	{"TOURNEY_INTERPRETER_API_KEY", func(s *Secrets) *string { return &s.InterpreterAPIKey }},
}

// MixEnv overrides the secrets with the environment. Variables from the .env file do not
// override the ones already set in the process environment.
func (s *Secrets) MixEnv(envPath string) error {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	for _, e := range secretEnvs {
		if v := os.Getenv(e.name); v != "" {
			*e.dst(s) = v
		}
	}
	return nil
}

func (o *Options) MixSecrets(s *Secrets) error {
	if s.S3AccessKeyID != "" {
		o.App.Artifact.S3.AccessKeyID = s.S3AccessKeyID
	}
	if s.S3SecretAccessKey != "" {
		o.App.Artifact.S3.SecretAccessKey = s.S3SecretAccessKey
	}
	if (o.App.Artifact.S3.AccessKeyID == "") != (o.App.Artifact.S3.SecretAccessKey == "") {
		return fmt.Errorf("s3 access key id and secret must be set together")
	}
	if s.InterpreterAPIKey != "" {
		o.App.Interpreter.APIKey = s.InterpreterAPIKey
	}
	return nil
}

func readSecrets(path string) (Secrets, error) {
	var secrets Secrets
	if path == "" {
		return secrets, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return secrets, nil
		}
		return Secrets{}, fmt.Errorf("read secrets: %w", err)
	}
	if err := toml.Unmarshal(raw, &secrets); err != nil {
		return Secrets{}, fmt.Errorf("unmarshal secrets: %w", err)
	}
	return secrets, nil
}

func loadOptions(optsPath, secretsPath, envPath string) (Options, error) {
	var opts Options
	if optsPath != "" {
		raw, err := os.ReadFile(optsPath)
		if err != nil {
			return Options{}, fmt.Errorf("read options: %w", err)
		}
		if err := toml.Unmarshal(raw, &opts); err != nil {
			return Options{}, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	secrets, err := readSecrets(secretsPath)
	if err != nil {
		return Options{}, err
	}
	if err := secrets.MixEnv(envPath); err != nil {
		return Options{}, err
	}
	if err := opts.MixSecrets(&secrets); err != nil {
		return Options{}, fmt.Errorf("mix secrets into options: %w", err)
	}
	opts.FillDefaults()
	return opts, nil
}
