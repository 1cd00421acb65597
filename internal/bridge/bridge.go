package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

const exportPattern = "shopping_list_*.json"

const automationTimeout = 5 * time.Minute

// Notifier posts a status message back to the team channel.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Bridge hands an exported shopping list to the downstream purchase
// automation. The automation endpoint is either an HTTP URL that receives the
// item list as JSON, or an executable invoked with the list file path.
type Bridge struct {
	exportDir      string
	automationPath string
	httpClient     *http.Client
	logger         *zap.Logger
}

// New creates a bridge rooted at exportDir.
func New(exportDir, automationPath string, logger *zap.Logger) *Bridge {
	return &Bridge{
		exportDir:      exportDir,
		automationPath: automationPath,
		httpClient:     &http.Client{Timeout: automationTimeout},
		logger:         logger,
	}
}

// LoadShoppingList reads an exported item list.
func LoadShoppingList(path string) ([]domain.ShoppingItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading shopping list: %w", err)
	}
	var items []domain.ShoppingItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding shopping list %s: %w", path, err)
	}
	return items, nil
}

// WriteShoppingList writes items as a timestamped export file in dir and
// returns its path. The file name matches the pattern LatestExport scans for,
// so a written list is immediately discoverable for reruns.
func WriteShoppingList(dir string, items []domain.ShoppingItem) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("shopping_list_%s.json", time.Now().Format("20060102_150405")))

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding shopping list: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing shopping list %s: %w", path, err)
	}
	return path, nil
}

// LatestExport returns the newest export file in the export directory.
func (b *Bridge) LatestExport() (string, error) {
	matches, err := filepath.Glob(filepath.Join(b.exportDir, exportPattern))
	if err != nil {
		return "", fmt.Errorf("scanning export directory: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no export files in %s", b.exportDir)
	}

	sort.Slice(matches, func(i, j int) bool {
		return modTime(matches[i]).After(modTime(matches[j]))
	})
	return matches[0], nil
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Launch runs the purchase automation for the list at path.
func (b *Bridge) Launch(ctx context.Context, path string, items []domain.ShoppingItem) error {
	if len(items) == 0 {
		return fmt.Errorf("no items in shopping list to process")
	}
	if b.automationPath == "" {
		return fmt.Errorf("no automation path configured")
	}

	b.logger.Info("launching automation",
		zap.String("target", b.automationPath),
		zap.Int("items", len(items)))
	for _, item := range items {
		b.logger.Info("ordering item",
			zap.Int("quantity", item.Quantity),
			zap.String("title", item.ProductTitle))
	}

	if strings.HasPrefix(b.automationPath, "http://") || strings.HasPrefix(b.automationPath, "https://") {
		return b.launchHTTP(ctx, items)
	}
	return b.launchCommand(ctx, path)
}

func (b *Bridge) launchHTTP(ctx context.Context, items []domain.ShoppingItem) error {
	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding item list: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.automationPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building automation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling automation endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("automation endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (b *Bridge) launchCommand(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, automationTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.automationPath, path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("automation command failed: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Process loads the list at path (or the latest export when empty), launches
// the automation and optionally reports the outcome through notifier. The
// returned error reflects the automation result; notification failures only
// log.
func (b *Bridge) Process(ctx context.Context, path string, notifier Notifier) error {
	var err error
	if path == "" {
		path, err = b.LatestExport()
		if err != nil {
			return err
		}
	}

	items, err := LoadShoppingList(path)
	if err == nil {
		b.logger.Info("loaded shopping list", zap.String("path", path), zap.Int("items", len(items)))
		err = b.Launch(ctx, path, items)
	}

	if notifier != nil {
		message := fmt.Sprintf("✅ Successfully processed shopping list with %d items for Target automation!", len(items))
		if err != nil {
			message = "❌ Failed to process shopping list for Target automation. Check logs for details."
		}
		if nerr := notifier.Notify(ctx, message); nerr != nil {
			b.logger.Error("could not send status notification", zap.Error(nerr))
		}
	}
	return err
}
