package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/mailingest/internal/daemon"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type domainList []string

func (d *domainList) String() string { return strings.Join(*d, ",") }

func (d *domainList) Set(v string) error {
	*d = append(*d, v)
	return nil
}

func main() {
	var orgDomains domainList
	archiveFlag := flag.String("archive", "", "path of the mail archive to ingest (directory, .mbox or .eml)")
	importFlag := flag.String("import-id", "", "import id (UUID) to record the run under; generated when empty")
	batchFlag := flag.Int("batch-size", 0, "records per insert batch (overrides config)")
	configFlag := flag.String("config", "", "config file (default ~/.mailingest/config.toml)")
	dbFlag := flag.String("db", "", "database path (overrides config)")
	flag.Var(&orgDomains, "org-domain", "organization mail domain; repeatable")
	flag.Parse()

	if *archiveFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: mailingestd --archive PATH [--import-id UUID] [--org-domain D]... [--batch-size N] [--config FILE] [--db PATH]")
		os.Exit(2)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ArchivePath: *archiveFlag,
			ImportID:    *importFlag,
			ConfigPath:  *configFlag,
			OrgDomains:  orgDomains,
			BatchSize:   *batchFlag,
			DBPath:      *dbFlag,
		}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	app.Run()
}
