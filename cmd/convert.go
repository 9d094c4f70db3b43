package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"stickergif/pkg/bus"
	"stickergif/pkg/cache"
	"stickergif/pkg/config"
	"stickergif/pkg/gateway"
	"stickergif/pkg/intake"
	"stickergif/pkg/job"
	"stickergif/pkg/logger"
	"stickergif/pkg/render"

	"github.com/spf13/cobra"
)

var convertOutDir string

// localOrigin tags jobs run from the command line.
var localOrigin = bus.ChatHandle{Channel: "local"}

var convertCmd = &cobra.Command{
	Use:   "convert <file.tgs|file.webp|symbols>",
	Short: "Convert one sticker file or symbol string locally",
	Long:  "Runs the same conversion jobs as the bot without Telegram and prints the produced gif paths. Results land in the cache directory.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConvertConfig()
		if err != nil {
			return err
		}
		if dir := strings.TrimSpace(convertOutDir); dir != "" {
			cfg.Pipeline.CacheDir = dir
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		paths, err := runConvert(cmd.Context(), cfg, args[0], appLogger)
		for _, path := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVarP(&convertOutDir, "out-dir", "o", "", "directory for produced gifs (defaults to pipeline.cache_dir)")
}

// loadConvertConfig falls back to defaults only when no config file exists.
func loadConvertConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if errors.Is(err, config.ErrConfigNotFound) {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// runConvert executes the job matching input and returns the produced paths.
func runConvert(ctx context.Context, cfg *config.Config, input string, log *slog.Logger) ([]string, error) {
	store, err := cache.New(cfg.Pipeline.CacheDir)
	if err != nil {
		return nil, err
	}

	switch ext := strings.ToLower(filepath.Ext(input)); ext {
	case "." + cache.ExtTGS, "." + cache.ExtWebP:
		path, err := convertFile(ctx, cfg, store, input, ext[1:], log)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	default:
		return convertSymbols(ctx, cfg, store, input, log)
	}
}

func convertFile(ctx context.Context, cfg *config.Config, store *cache.Cache, input string, ext string, log *slog.Logger) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	key := cache.StickerKey(stem)
	if path, ok := store.Lookup(key); ok {
		return path, nil
	}

	staging := store.StagingPath(key, ext)
	inPlace, err := samePath(input, staging)
	if err != nil {
		return "", err
	}
	if !inPlace {
		if err := copyFile(input, staging); err != nil {
			return "", err
		}
	}

	info, err := os.Stat(staging)
	if err != nil {
		return "", job.WrapError(job.FailureInputMissing, "stat staged input", err)
	}
	if info.Size() == 0 {
		if !inPlace {
			_ = os.Remove(staging)
		}
		return "", job.NewError(job.FailureInputMissing, "input file is empty: "+input)
	}

	var j job.Job
	if ext == cache.ExtTGS {
		converter := gateway.NewConverter(cfg.Converter, log)
		j = job.NewAnimatedSticker(key, localOrigin, staging, converter, job.AnimatedOptions{
			Timeout:        cfg.Converter.Timeout(),
			MinOutputBytes: cfg.Converter.MinOutputBytes,
		}, log)
	} else {
		j = job.NewStaticSticker(key, localOrigin, staging, log)
	}

	out := j.Execute(ctx)
	if !out.OK() {
		return "", out.Err
	}
	if out.Placeholder {
		log.Warn("Conversion fell back to placeholder", "path", out.Path)
	}
	return out.Path, nil
}

func convertSymbols(ctx context.Context, cfg *config.Config, store *cache.Cache, input string, log *slog.Logger) ([]string, error) {
	symbols := intake.ExtractSymbols(input)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%q is neither a .tgs/.webp file nor contains a recognized symbol", input)
	}

	renderer, err := render.New(render.Options{
		FontPath:   cfg.Render.FontPath,
		FontSize:   cfg.Render.FontSize,
		CanvasSize: cfg.Render.CanvasSize,
	}, log)
	if err != nil {
		return nil, err
	}
	defer renderer.Close()

	paths := make([]string, 0, len(symbols))
	var errs []error
	for _, symbol := range symbols {
		key := cache.SymbolKey(symbol)
		if path, ok := store.Lookup(key); ok {
			paths = append(paths, path)
			continue
		}

		out := job.NewSymbol(key, localOrigin, symbol, store.OutputPath(key), renderer, log).Execute(ctx)
		if !out.OK() {
			errs = append(errs, fmt.Errorf("symbol %q: %w", symbol, out.Err))
			continue
		}
		paths = append(paths, out.Path)
	}

	return paths, errors.Join(errs...)
}

// samePath reports whether a and b name the same file.
func samePath(a string, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, fmt.Errorf("resolve input path: %w", err)
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, fmt.Errorf("resolve staging path: %w", err)
	}
	if absA == absB {
		return true, nil
	}

	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB), nil
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy input: %w", err)
	}
	return out.Close()
}
