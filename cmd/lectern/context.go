package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	outputFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag, outputFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		outputFlag: outputFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
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

// apiAddress prefers --api over the configured bind address.
func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil {
		if flag := strings.TrimSpace(*c.apiFlag); flag != "" {
			return flag
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.APIURL()
	}
	return ""
}

func (c *commandContext) outputFormat() string {
	if c.outputFlag == nil {
		return outputTable
	}
	return strings.ToLower(strings.TrimSpace(*c.outputFlag))
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	addr := c.apiAddress()
	token := ""
	if cfg := c.configValue(); cfg != nil {
		token = cfg.Paths.APIToken
	}
	client, err := api.NewClient(addr, token)
	if err != nil {
		return fmt.Errorf("api address %q: %w", addr, err)
	}
	if client == nil {
		return errors.New("no daemon address configured; set paths.api_bind or pass --api")
	}
	return wrapDialError(fn(client), addr)
}

func wrapDialError(err error, addr string) error {
	if err == nil {
		return nil
	}
	if api.IsUnavailable(err) {
		return fmt.Errorf("connect to daemon at %s: not reachable; start it with `lectern daemon`", addr)
	}
	return err
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
