package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gabrielmiguelok/livecorrect/internal/correcter"
	"github.com/gabrielmiguelok/livecorrect/pkg/editor"
	"github.com/gabrielmiguelok/livecorrect/pkg/logging"
	"github.com/gabrielmiguelok/livecorrect/pkg/shutdown"
)

var (
	openFlag bool
	addrFlag string
)

var editCmd = &cobra.Command{
	Use:   "edit <page>",
	Short: "Serve a page for correction and store it on finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd, args[0], editor.ModeEditor)
	},
}

var viewCmd = &cobra.Command{
	Use:   "view <page>",
	Short: "Serve a page read-only with the display toggles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd, args[0], editor.ModeViewer)
	},
}

func init() {
	for _, c := range []*cobra.Command{editCmd, viewCmd} {
		c.Flags().BoolVar(&openFlag, "open", false, "open the page in the default browser")
		c.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides config)")
		rootCmd.AddCommand(c)
	}
}

func serve(cmd *cobra.Command, arg string, mode editor.Mode) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addrFlag != "" {
		cfg.Address = addrFlag
	}
	root, page, err := resolvePage(cfg.Root, arg)
	if err != nil {
		return err
	}
	cfg.Root = root
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	logging.SetDefault(logger)

	shcfg := shutdown.DefaultConfig()
	shcfg.Timeout = cfg.Shutdown.Timeout.Std()
	shcfg.Logger = logger
	sh := shutdown.NewHandler(shcfg)

	srv, err := correcter.NewServer(cfg, page, mode, logger, sh)
	if err != nil {
		return err
	}
	srv.RegisterHooks(sh)
	if err := srv.Start(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s at %s\n", page, srv.URL())
	if openFlag || cfg.OpenBrowser {
		openBrowser(srv.URL())
	}
	return sh.Wait(cmd.Context())
}

// resolvePage splits the page argument into a served root and a page path
// relative to it. Pages outside root are served from their own directory.
func resolvePage(root, arg string) (string, string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", "", err
	}
	absPage, err := filepath.Abs(arg)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(absPage)
	if err != nil {
		return "", "", fmt.Errorf("page %s: %w", arg, err)
	}
	if info.IsDir() {
		return "", "", fmt.Errorf("page %s is a directory", arg)
	}

	rel, err := filepath.Rel(absRoot, absPage)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Dir(absPage), filepath.Base(absPage), nil
	}
	return absRoot, filepath.ToSlash(rel), nil
}

// openBrowser opens the given URL in the default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
