package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/ipc"
	"loom/internal/queue"
)

type commandContext struct {
	socketFlag *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) socketPath() string {
	if c.socketFlag == nil {
		return defaultSocketPath()
	}
	if strings.TrimSpace(*c.socketFlag) == "" {
		*c.socketFlag = defaultSocketPath()
	}
	return *c.socketFlag
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

// withStore routes queue operations through the daemon socket when it is
// reachable and opens the job database directly otherwise. Exactly one
// of client and store is non-nil inside fn.
func (c *commandContext) withStore(fn func(client *ipc.Client, store *queue.Store) error) error {
	client, err := c.dialClient()
	if err == nil {
		defer client.Close()
		return fn(client, nil)
	}
	cfg, cfgErr := c.ensureConfig()
	if cfgErr != nil {
		return cfgErr
	}
	store, openErr := queue.Open(cfg)
	if openErr != nil {
		return fmt.Errorf("open job database: %w", openErr)
	}
	defer store.Close()
	return fn(nil, store)
}

// withService is withStore with the fallback side wrapped in the API
// service, for commands whose semantics live above the raw store.
func (c *commandContext) withService(fn func(client *ipc.Client, svc *api.Service) error) error {
	return c.withStore(func(client *ipc.Client, store *queue.Store) error {
		if client != nil {
			return fn(client, nil)
		}
		return fn(nil, api.NewService(store, api.DefaultsFromConfig(c.configValue())))
	})
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return nil, wrapDialError(err, socket)
	}
	return client, nil
}

// apiClient builds an HTTP client for the daemon's API listener from
// the configured bind address and bearer token.
func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := apiBaseURL(cfg.Paths.APIBind)
	if base == "" {
		return nil, fmt.Errorf("api_bind is not configured")
	}
	var opts []api.ClientOption
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		opts = append(opts, api.WithToken(token))
	}
	return api.NewClient(base, opts...), nil
}

func apiBaseURL(bind string) string {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return ""
	}
	if strings.HasPrefix(bind, ":") {
		return "http://127.0.0.1" + bind
	}
	return "http://" + bind
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `loom start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

func defaultSocketPath() string {
	cfg, _, _, err := config.Load("")
	if err == nil {
		return cfg.SocketPath()
	}

	logDir, err2 := config.ExpandPath("~/.local/share/loom/logs")
	if err2 != nil {
		return filepath.Join(os.TempDir(), "loomd.sock")
	}
	return filepath.Join(logDir, "loomd.sock")
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
