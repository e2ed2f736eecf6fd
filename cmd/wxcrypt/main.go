package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zing22845/go-wxcrypt/batch"
	"github.com/zing22845/go-wxcrypt/datcrypt"
	"github.com/zing22845/go-wxcrypt/dbcrypt"
	"github.com/zing22845/go-wxcrypt/internal/config"
	"github.com/zing22845/go-wxcrypt/internal/version"
	"github.com/zing22845/go-wxcrypt/sink"
)

// errHardFailures makes the process exit non-zero after a partly failed batch.
var errHardFailures = errors.New("some files failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	parser := argparse.NewParser("wxcrypt", "Decrypts chat databases and image attachments from local storage")
	configPath := parser.String("c", "config", &argparse.Options{
		Help: "Config file (default: wxcrypt.yaml in . or $HOME/.wxcrypt)",
	})
	logLevel := parser.String("", "log-level", &argparse.Options{
		Help: "Log level, overrides the config",
	})

	versionCmd := parser.NewCommand("version", "display version information")

	dbCmd := parser.NewCommand("db", "decrypt one database container")
	dbInput := dbCmd.String("i", "input", &argparse.Options{Required: true, Help: "Encrypted container"})
	dbOutput := dbCmd.String("o", "output", &argparse.Options{Help: "Output file (default: <input>.dec.db)"})
	dbKey := dbCmd.String("k", "key", &argparse.Options{Help: "64 hex digit key"})
	dbProfile := dbCmd.Selector("p", "profile", []string{"auto", "v3", "v4"}, &argparse.Options{Help: "Container generation"})
	dbZeroPage := dbCmd.Selector("z", "zero-page", []string{"default", "stop", "verify"}, &argparse.Options{Help: "What to do with all-zero pages"})
	dbPadding := dbCmd.Selector("", "padding", []string{"raw", "strip"}, &argparse.Options{Help: "Keep or strip page padding"})
	dbVerify := dbCmd.Flag("", "verify", &argparse.Options{Help: "Open the output with sqlite afterwards"})
	dbDetect := dbCmd.Flag("", "detect", &argparse.Options{Help: "Only report the container generation"})

	datCmd := parser.NewCommand("dat", "decode one image attachment")
	datInput := datCmd.String("i", "input", &argparse.Options{Required: true, Help: "Encoded .dat file"})
	datOutDIR := datCmd.String("o", "output-dir", &argparse.Options{Help: "Output directory (default: next to the input)"})
	datName := datCmd.String("n", "name", &argparse.Options{Help: "Output base name without extension"})
	datXorKey := datCmd.String("x", "xor-key", &argparse.Options{Help: "Tail xor key of v4 files, decimal or 0x hex"})

	batchCmd := parser.NewCommand("batch", "decrypt every container and attachment below a directory")
	batchSrc := batchCmd.String("s", "source", &argparse.Options{Required: true, Help: "Source directory"})
	batchDest := batchCmd.String("d", "dest", &argparse.Options{Required: true, Help: "Destination directory"})
	batchKey := batchCmd.String("k", "key", &argparse.Options{Help: "64 hex digit key"})
	batchXorKey := batchCmd.String("x", "xor-key", &argparse.Options{Help: "Tail xor key, searched below the source when absent"})
	batchProfile := batchCmd.Selector("p", "profile", []string{"auto", "v3", "v4"}, &argparse.Options{Help: "Container generation"})
	batchZeroPage := batchCmd.Selector("z", "zero-page", []string{"default", "stop", "verify"}, &argparse.Options{Help: "What to do with all-zero pages"})
	batchPadding := batchCmd.Selector("", "padding", []string{"raw", "strip"}, &argparse.Options{Help: "Keep or strip page padding"})
	batchWorkers := batchCmd.Int("w", "workers", &argparse.Options{Help: "Parallel workers (default: CPUs, capped by max_workers)"})
	batchTimeout := batchCmd.String("t", "timeout", &argparse.Options{Help: "Per file timeout, e.g. 5m"})
	batchLimitRate := batchCmd.Int("", "limit-rate", &argparse.Options{Help: "Output bytes per second across workers, 0 for unlimited"})
	batchVerify := batchCmd.Flag("", "verify", &argparse.Options{Help: "Open decrypted containers with sqlite"})
	batchLedger := batchCmd.String("l", "ledger", &argparse.Options{Help: "Record every result in this sqlite file"})
	batchUpload := batchCmd.Flag("u", "upload", &argparse.Options{Help: "Upload outputs to the configured s3 bucket"})

	xorCmd := parser.NewCommand("xorkey", "recover the tail xor key from thumbnails")
	xorDIR := xorCmd.String("d", "dir", &argparse.Options{Required: true, Help: "Account directory"})

	if err := parser.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, parser.Usage(err))
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err = cfg.Log.Apply(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	switch {
	case versionCmd.Happened():
		fmt.Fprintln(stdout, version.Get())
		return 0
	case dbCmd.Happened():
		overrideString(&cfg.Profile, *dbProfile)
		overrideString(&cfg.ZeroPage, *dbZeroPage)
		overrideString(&cfg.Padding, *dbPadding)
		err = decryptDB(ctx, cfg, stdout, *dbInput, *dbOutput, *dbKey, *dbVerify, *dbDetect)
	case datCmd.Happened():
		overrideString(&cfg.XorKey, *datXorKey)
		err = decodeDat(ctx, cfg, stdout, *datInput, *datOutDIR, *datName)
	case batchCmd.Happened():
		overrideString(&cfg.Profile, *batchProfile)
		overrideString(&cfg.ZeroPage, *batchZeroPage)
		overrideString(&cfg.Padding, *batchPadding)
		overrideString(&cfg.XorKey, *batchXorKey)
		overrideString(&cfg.Batch.Ledger, *batchLedger)
		if *batchWorkers > 0 {
			cfg.Batch.Workers = *batchWorkers
		}
		if *batchLimitRate > 0 {
			cfg.Batch.LimitRate = uint64(*batchLimitRate)
		}
		if *batchTimeout != "" {
			if cfg.Batch.TaskTimeout, err = time.ParseDuration(*batchTimeout); err != nil {
				fmt.Fprintln(os.Stderr, errors.Wrap(err, "timeout"))
				return 2
			}
		}
		cfg.Batch.Verify = cfg.Batch.Verify || *batchVerify
		err = runBatch(ctx, cfg, stdout, *batchSrc, *batchDest, *batchKey, *batchUpload)
	case xorCmd.Happened():
		err = findXorKey(stdout, *xorDIR)
	default:
		fmt.Fprintln(os.Stderr, parser.Usage("no command specified"))
		return 2
	}
	if err != nil {
		if err != errHardFailures {
			log.WithError(err).Error("failed")
		}
		return 1
	}
	return 0
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func containerSettings(cfg *config.Config) (p dbcrypt.Profile, zp dbcrypt.ZeroPagePolicy, pad dbcrypt.Padding, err error) {
	var ok bool
	if p, ok = dbcrypt.ProfileByName(cfg.Profile); !ok {
		return p, zp, pad, errors.Errorf("unknown profile %q", cfg.Profile)
	}
	if zp, ok = dbcrypt.ParseZeroPagePolicy(cfg.ZeroPage); !ok {
		return p, zp, pad, errors.Errorf("unknown zero page policy %q", cfg.ZeroPage)
	}
	if pad, ok = dbcrypt.ParsePadding(cfg.Padding); !ok {
		return p, zp, pad, errors.Errorf("unknown padding %q", cfg.Padding)
	}
	return p, zp, pad, nil
}

func decryptDB(ctx context.Context, cfg *config.Config, stdout io.Writer, in, out, key string, verify, detectOnly bool) error {
	key, err := resolveKey(key, cfg.Key)
	if err != nil {
		return err
	}
	if detectOnly {
		p, err := dbcrypt.DetectFile(key, in)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, p)
		return nil
	}
	p, zp, pad, err := containerSettings(cfg)
	if err != nil {
		return err
	}
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + ".dec.db"
	}
	res, err := dbcrypt.DecryptFile(ctx, p, key, in, out,
		dbcrypt.WithZeroPagePolicy(zp),
		dbcrypt.WithPadding(pad),
	)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"output":  out,
		"profile": res.Profile,
		"pages":   res.Pages,
		"zero":    res.StoppedAtZero,
	}).Info("container decrypted")
	if verify {
		info, err := dbcrypt.CheckDatabase(out)
		if err != nil {
			return err
		}
		if !info.OK() {
			return errors.Errorf("%s: quick_check reported %q", out, info.QuickCheck)
		}
		fmt.Fprintf(stdout, "%s: %d tables\n", out, len(info.Tables))
	}
	fmt.Fprintln(stdout, out)
	return nil
}

func decodeDat(ctx context.Context, cfg *config.Config, stdout io.Writer, in, outDIR, name string) error {
	xorKey, _, err := config.ParseXorKey(cfg.XorKey)
	if err != nil {
		return err
	}
	if outDIR == "" {
		outDIR = filepath.Dir(in)
	}
	res, err := datcrypt.DecodeFile(ctx, xorKey, in, outDIR, name)
	if err != nil {
		return err
	}
	if res.Skipped {
		log.WithField("output", res.Output).Info("output exists, skipped")
	}
	fmt.Fprintln(stdout, res.Output)
	return nil
}

func runBatch(ctx context.Context, cfg *config.Config, stdout io.Writer, src, dest, key string, upload bool) error {
	key, err := resolveKey(key, cfg.Key)
	if err != nil {
		return err
	}
	if _, err = dbcrypt.DecodeKey(key); err != nil {
		return err
	}
	p, zp, pad, err := containerSettings(cfg)
	if err != nil {
		return err
	}

	xorKey, ok, err := config.ParseXorKey(cfg.XorKey)
	if err != nil {
		return err
	}
	if !ok {
		if xorKey, err = datcrypt.FindXorKey(src); err != nil {
			log.WithError(err).Warn("no xor key, v4 attachments will keep an obfuscated tail")
		}
	}

	tasks, err := batch.Discover(src, dest, key, xorKey, p)
	if err != nil {
		return err
	}
	r := &batch.Runner{
		Workers:        cfg.Batch.Workers,
		MaxWorkers:     cfg.Batch.MaxWorkers,
		TaskTimeout:    cfg.Batch.TaskTimeout,
		BytesPerSecond: cfg.Batch.LimitRate,
		Verify:         cfg.Batch.Verify,
		ZeroPage:       zp,
		Padding:        pad,
		UploadRoot:     dest,
	}
	if upload {
		if r.Uploader, err = sink.NewS3Uploader(ctx, &cfg.S3); err != nil {
			return err
		}
	}
	if cfg.Batch.Ledger != "" {
		if r.Ledger, err = batch.OpenLedger(cfg.Batch.Ledger, 0); err != nil {
			return err
		}
	}

	start := time.Now()
	results := r.Run(ctx, tasks)
	if r.Ledger != nil {
		if err = r.Ledger.Close(); err != nil {
			log.WithError(err).Warn("ledger incomplete")
		}
		log.WithField("run_id", r.Ledger.RunID).Info("results recorded")
	}
	report := batch.Summary(results)
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info(report)
	fmt.Fprintln(stdout, report)
	if batch.HasHardFailures(results) {
		return errHardFailures
	}
	return nil
}

func findXorKey(stdout io.Writer, dir string) error {
	key, err := datcrypt.FindXorKey(dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "0x%02x\n", key)
	return nil
}
