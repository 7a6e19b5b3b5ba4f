// Package fleetctl — дерево команд операторского CLI поверх HTTP API оркестратора.
package fleetctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	keyServer = "server"
	keyToken  = "token"
)

// Factory — общие зависимости команд: конфиг CLI и вывод.
type Factory struct {
	Config     *viper.Viper
	ConfigFile string
	Out        io.Writer
	HTTP       *http.Client
}

// NewFactory читает ~/.fleetctl.yaml (если есть) и ENV с префиксом FLEETCTL.
func NewFactory(configFile string) (*Factory, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FLEETCTL")
	v.AutomaticEnv()
	v.SetDefault(keyServer, "http://localhost:8080")
	v.SetDefault(keyToken, "")

	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("fleetctl: resolve home dir: %w", err)
		}
		configFile = filepath.Join(home, ".fleetctl.yaml")
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fleetctl: read config: %w", err)
		}
	}

	return &Factory{
		Config:     v,
		ConfigFile: configFile,
		Out:        os.Stdout,
		HTTP:       &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// SaveToken запоминает токен оператора в файле конфигурации.
func (f *Factory) SaveToken(token string) error {
	f.Config.Set(keyToken, token)
	if err := os.MkdirAll(filepath.Dir(f.ConfigFile), 0o700); err != nil {
		return err
	}
	if err := f.Config.WriteConfigAs(f.ConfigFile); err != nil {
		return fmt.Errorf("fleetctl: save config: %w", err)
	}
	return os.Chmod(f.ConfigFile, 0o600)
}

// APIError — ответ оркестратора с ошибкой.
type APIError struct {
	Status  int
	Message string `json:"error"`
	Kind    string `json:"kind"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Do выполняет запрос к API. dst == nil — тело ответа игнорируется.
func (f *Factory) Do(ctx context.Context, method, path string, body, dst any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}
	base := strings.TrimRight(f.Config.GetString(keyServer), "/")
	req, err := http.NewRequestWithContext(ctx, method, base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := f.Config.GetString(keyToken); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("fleetctl: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func pathID(id string) string { return url.PathEscape(id) }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
