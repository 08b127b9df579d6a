package uci

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/acs-wifi/acsd/pkg/logx"
)

// configTree is the UCI package name acsd reads and writes, matching the
// `config acs 'radio0'` style blocks documented alongside the daemon.
const configTree = "acs"

// UCI is a thin wrapper over the `uci` command line tool, the same
// shellout idiom this tree already uses for every OpenWrt config read or
// write.
type UCI struct {
	logger *logx.Logger
}

// NewUCI creates a new UCI client. logger may be nil.
func NewUCI(logger *logx.Logger) *UCI {
	return &UCI{logger: logger}
}

// loadInto fills cfg from `uci show acs`, leaving any option it doesn't
// recognize at its current (default) value. ctx.Background is used since
// this only ever runs once at daemon startup, on acsd's main goroutine.
func (u *UCI) loadInto(cfg *Config) error {
	output, err := u.execUCI(context.Background(), "show", configTree)
	if err != nil {
		return err
	}

	var section string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" || !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		left := parts[0]
		right := strings.Trim(parts[1], "'\"")
		leftParts := strings.Split(left, ".")

		switch {
		case len(leftParts) == 2:
			// acs.radio0=acs or acs.@acs[0]=acs section-definition line;
			// its value is the section *type*, which tells us which
			// parseXxxOption table to use for the option lines that follow.
			section = right
		case len(leftParts) >= 3:
			parseOption(cfg, section, leftParts[2], right)
		}
	}
	return nil
}

func sectionType(raw string) string {
	t := strings.TrimPrefix(raw, "@")
	if i := strings.Index(t, "["); i != -1 {
		t = t[:i]
	}
	return t
}

// SetOption sets a UCI option value under the acs config tree.
func (u *UCI) SetOption(ctx context.Context, section, option, value string) error {
	_, err := u.execUCI(ctx, "set", fmt.Sprintf("%s.%s.%s=%s", configTree, section, option, value))
	return err
}

// DeleteOption deletes a UCI option.
func (u *UCI) DeleteOption(ctx context.Context, section, option string) error {
	_, err := u.execUCI(ctx, "delete", fmt.Sprintf("%s.%s.%s", configTree, section, option))
	return err
}

// Commit commits pending UCI changes to the acs config tree.
func (u *UCI) Commit(ctx context.Context) error {
	_, err := u.execUCI(ctx, "commit", configTree)
	return err
}

// Revert reverts pending UCI changes.
func (u *UCI) Revert(ctx context.Context) error {
	_, err := u.execUCI(ctx, "revert", configTree)
	return err
}

// AddSection adds a new UCI section.
func (u *UCI) AddSection(ctx context.Context, sectionType, sectionName string) error {
	if _, err := u.execUCI(ctx, "add", configTree, sectionType); err != nil {
		return err
	}
	if sectionName != "" {
		return u.SetOption(ctx, sectionName, "name", sectionName)
	}
	return nil
}

// DeleteSection deletes a UCI section.
func (u *UCI) DeleteSection(ctx context.Context, sectionName string) error {
	_, err := u.execUCI(ctx, "delete", fmt.Sprintf("%s.%s", configTree, sectionName))
	return err
}

// GetSections returns all sections of a given type.
func (u *UCI) GetSections(ctx context.Context, sectionType string) ([]string, error) {
	output, err := u.execUCI(ctx, "show", configTree)
	if err != nil {
		return nil, err
	}

	var sections []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if strings.Contains(line, "="+sectionType) {
			parts := strings.Split(line, "=")
			if len(parts) >= 2 {
				sectionParts := strings.Split(parts[0], ".")
				if len(sectionParts) >= 2 {
					sections = append(sections, sectionParts[1])
				}
			}
		}
	}
	return sections, nil
}

// execUCI executes a UCI command.
func (u *UCI) execUCI(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "uci", args...)
	output, err := cmd.Output()
	if err != nil {
		if u.logger != nil {
			u.logger.Error("uci command failed", "command", "uci "+strings.Join(args, " "), "error", err)
		}
		return "", fmt.Errorf("uci command failed: %w", err)
	}
	return string(output), nil
}

// ValidateUCI checks if UCI is available and working.
func (u *UCI) ValidateUCI(ctx context.Context) error {
	if _, err := u.execUCI(ctx, "version"); err != nil {
		return fmt.Errorf("UCI is not available: %w", err)
	}
	return nil
}

// BackupConfig creates a backup of the current configuration.
func (u *UCI) BackupConfig(ctx context.Context) (string, error) {
	output, err := u.execUCI(ctx, "export", configTree)
	if err != nil {
		return "", fmt.Errorf("failed to export config: %w", err)
	}
	return output, nil
}

// RestoreConfig restores configuration from a backup produced by
// BackupConfig.
func (u *UCI) RestoreConfig(ctx context.Context, backup string) error {
	if err := u.Revert(ctx); err != nil {
		return fmt.Errorf("failed to revert before restore: %w", err)
	}
	if _, err := u.execUCI(ctx, "import", backup); err != nil {
		return fmt.Errorf("failed to import backup: %w", err)
	}
	return u.Commit(ctx)
}

// GetConfigHash returns a cheap change-detection hash of the current
// configuration. It is not cryptographic; pkg/audit's blake2b digests are
// used where a tamper-evident hash actually matters.
func (u *UCI) GetConfigHash(ctx context.Context) (string, error) {
	output, err := u.execUCI(ctx, "export", configTree)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(len(output)), nil
}

// WatchConfig polls for configuration changes and invokes callback when
// the exported config tree differs from its last observed value. acsd's
// daemon does not call it.
func (u *UCI) WatchConfig(ctx context.Context, callback func()) error {
	initialHash, err := u.GetConfigHash(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			currentHash, err := u.GetConfigHash(ctx)
			if err != nil {
				if u.logger != nil {
					u.logger.Error("failed to get config hash", "error", err)
				}
				continue
			}
			if currentHash != initialHash {
				if u.logger != nil {
					u.logger.Info("configuration changed, triggering reload")
				}
				callback()
				initialHash = currentHash
			}
		}
	}
}
