// Package cli implements the fuslink command-line interface.
package cli

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fuslink/fuslink/internal/config"
	"github.com/fuslink/fuslink/internal/firmware"
	"github.com/fuslink/fuslink/internal/fus"
	"github.com/fuslink/fuslink/internal/httpx"
	"github.com/fuslink/fuslink/internal/imei"
	"github.com/fuslink/fuslink/internal/logging"
	"github.com/fuslink/fuslink/internal/version"
)

var (
	regionFlag string
	modelFlag  string
	imeiFlag   string
	verbose    bool

	logger *logging.Logger
)

// app bundles the collaborators every command needs. The shared HTTP
// client stays reachable so side channels like the S3 mirror ride the
// same tuned transport.
type app struct {
	cfg     *config.Config
	http    *nethttp.Client
	fus     *fus.Client
	catalog *firmware.Catalog
	tacs    *imei.Table
}

// newApp loads configuration and wires the protocol clients. mode selects
// the log format: "cli" for console output, "server" for JSON.
func newApp(mode string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger = logging.NewLogger(mode)
	if verbose || cfg.Verbose {
		logging.SetGlobalLevel(zerolog.DebugLevel)
	}

	client, err := httpx.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	var fusOpts []fus.Option
	if cfg.FUSBaseURL != "" {
		fusOpts = append(fusOpts, fus.WithBaseURL(cfg.FUSBaseURL))
	}
	if cfg.DownloadURL != "" {
		fusOpts = append(fusOpts, fus.WithDownloadURL(cfg.DownloadURL))
	}
	if cfg.RequestTimeout > 0 {
		fusOpts = append(fusOpts, fus.WithTimeout(cfg.RequestTimeout))
	}

	var catalogOpts []firmware.CatalogOption
	if cfg.CatalogURL != "" {
		catalogOpts = append(catalogOpts, firmware.WithCatalogURL(cfg.CatalogURL))
	}

	tacs := imei.DefaultTable()
	if cfg.TACTableFile != "" {
		tacs, err = imei.LoadTableFile(cfg.TACTableFile)
		if err != nil {
			return nil, err
		}
	}

	return &app{
		cfg:     cfg,
		http:    client,
		fus:     fus.NewClient(client, fus.NewKiesCrypto(), logger, fusOpts...),
		catalog: firmware.NewCatalog(client, logger, catalogOpts...),
		tacs:    tacs,
	}, nil
}

// resolveFirmware normalizes an explicit version, or asks the catalog for
// the latest when none was given.
func (a *app) resolveFirmware(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return firmware.Normalize(explicit)
	}
	return a.catalog.Latest(ctx, regionFlag, modelFlag)
}

// binaryInfoRequest builds the metadata request from the flags, falling
// back to the TAC table when no explicit identity was supplied.
func (a *app) binaryInfoRequest(fw string) (fus.BinaryInfoRequest, error) {
	req := fus.BinaryInfoRequest{
		Region:   regionFlag,
		Model:    modelFlag,
		Firmware: fw,
		Identity: imeiFlag,
	}
	if req.Identity == "" {
		tac, ok := a.tacs.TAC(modelFlag)
		if !ok {
			return req, fmt.Errorf("no TAC known for model %s; pass --imei or point FUSLINK_TAC_TABLE_FILE at an extended table", modelFlag)
		}
		req.TACSeed = tac
	}
	return req, nil
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fuslink",
		Short: "fuslink - Samsung firmware retrieval client and proxy",
		Long: `fuslink ` + version.Version + ` - Built: ` + version.BuildTime + `
Talks to the Samsung firmware update servers: lists published firmware
versions, fetches binary metadata with decryption keys, and streams
downloads with on-the-fly decryption.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

// Execute runs the CLI with signal-aware cancellation. SIGINT and
// SIGTERM cancel the command context so in-flight downloads unwind
// cleanly instead of leaving half-written files without a message.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// addDeviceFlags registers the region/model pair shared by the device
// commands.
func addDeviceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&regionFlag, "region", "r", "", "Region code (CSC), e.g. EUX")
	cmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Device model, e.g. SM-G960F")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("model")
}
