// Package bringup applies a completed channel-selection decision to the
// running access point: it writes the chosen channel into UCI and
// reloads the wifi subsystem.
package bringup

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/acs-wifi/acsd/pkg/acs"
	"github.com/acs-wifi/acsd/pkg/logx"
	"github.com/acs-wifi/acsd/pkg/uci"
)

// Config configures the bring-up collaborator.
type Config struct {
	// Radio is the UCI wireless radio section, e.g. "radio0". ACS is
	// scoped to one interface, so this is fixed per Collaborator
	// instance rather than looked up per call.
	Radio string
	// DryRun logs the channel that would be applied instead of writing
	// it and reloading wifi.
	DryRun bool
	// ReloadTimeout bounds the `wifi reload` invocation.
	ReloadTimeout time.Duration
}

// Collaborator implements acs.BringUp against OpenWrt's UCI wireless
// configuration.
type Collaborator struct {
	cfg    Config
	uci    *uci.UCI
	logger *logx.Logger
}

// New builds a bring-up collaborator for the given UCI client.
func New(cfg Config, uciClient *uci.UCI, logger *logx.Logger) *Collaborator {
	if cfg.ReloadTimeout == 0 {
		cfg.ReloadTimeout = 15 * time.Second
	}
	return &Collaborator{cfg: cfg, uci: uciClient, logger: logger}
}

// Complete writes iface.Conf.Channel into wireless.<radio>.channel,
// commits, and reloads wifi. It reports StatusValid on success and
// StatusInvalid (with the error describing what failed) otherwise. The
// controller ends the run in Terminated-OK on StatusValid and in
// Terminated-Fail on anything else.
func (c *Collaborator) Complete(iface *acs.Iface) (acs.Status, error) {
	ch := iface.Conf.Channel

	c.logger.Info("bringup: applying selected channel",
		"interface", iface.Name, "radio", c.cfg.Radio, "channel", ch, "dry_run", c.cfg.DryRun)

	if c.cfg.DryRun {
		c.logger.Info("bringup: dry run, not applying", "channel", ch)
		return acs.StatusValid, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReloadTimeout)
	defer cancel()

	if err := c.uci.ValidateUCI(ctx); err != nil {
		return acs.StatusInvalid, fmt.Errorf("bringup: %w", err)
	}

	key := fmt.Sprintf("wireless.%s.channel", c.cfg.Radio)
	if err := c.setUCIValue(ctx, key, strconv.Itoa(ch)); err != nil {
		return acs.StatusInvalid, fmt.Errorf("bringup: set channel: %w", err)
	}

	// acsd's own UCI client is scoped to the "acs" config tree
	// (pkg/uci.configTree); the channel itself lives under "wireless",
	// so that commit is shelled directly rather than through uci.UCI.
	if out, err := exec.CommandContext(ctx, "uci", "commit", "wireless").CombinedOutput(); err != nil {
		return acs.StatusInvalid, fmt.Errorf("bringup: commit wireless: %w (%s)", err, out)
	}

	cmd := exec.CommandContext(ctx, "wifi", "reload")
	if out, err := cmd.CombinedOutput(); err != nil {
		c.logger.Error("bringup: wifi reload failed", "output", string(out), "error", err)
		return acs.StatusInvalid, fmt.Errorf("bringup: wifi reload: %w", err)
	}

	c.logger.Info("bringup: channel applied", "interface", iface.Name, "channel", ch)
	return acs.StatusValid, nil
}

func (c *Collaborator) setUCIValue(ctx context.Context, key, value string) error {
	cmd := exec.CommandContext(ctx, "uci", "set", fmt.Sprintf("%s=%s", key, value))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("uci set %s: %w (%s)", key, err, out)
	}
	return nil
}
