package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresuchdata/stockledger/internal/config"
	"github.com/andresuchdata/stockledger/internal/export"
	"github.com/andresuchdata/stockledger/internal/repository"
	"github.com/andresuchdata/stockledger/internal/storage"
	"github.com/andresuchdata/stockledger/pkg/logger"
	"github.com/shopspring/decimal"
)

type uploader interface {
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
}

// importPurchases receives every purchase in a local file, or in objects
// fetched from the configured bucket first: one object, or every purchase
// file under a prefix.
func importPurchases(ctx context.Context, l *ledger, cfg config.StorageConfig, file, prefix, object string) error {
	remote := prefix != "" || object != ""
	if (file == "") == !remote {
		return fmt.Errorf("give either --file or --prefix/--object")
	}
	if file != "" {
		return importFile(ctx, l, file)
	}

	client, err := storage.NewS3Client(cfg)
	if err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "ledger-import-")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	return importObjects(ctx, l, &objectDownloader{client: client, destDir: dir}, prefix, object)
}

func importObjects(ctx context.Context, l *ledger, d *objectDownloader, prefix, object string) error {
	paths, err := d.download(ctx, prefix, object)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := importFile(ctx, l, path); err != nil {
			return err
		}
	}
	logger.Log.Info().Str("prefix", prefix).Int("files", len(paths)).Msg("object import finished")
	return nil
}

func importFile(ctx context.Context, l *ledger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := export.ReadPurchaseFile(path, f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	purchases, err := export.ImportPurchases(ctx, l.inventory, l.catalog, rows)
	if err != nil {
		return fmt.Errorf("%s: imported %d purchases before failing: %w", path, len(purchases), err)
	}
	logger.Log.Info().Str("file", path).Int("purchases", len(purchases)).Msg("purchases imported")
	return nil
}

// exportAudit writes the workbook to out, or uploads it under the storage
// prefix when out is empty.
func exportAudit(ctx context.Context, store repository.Store, cfg config.StorageConfig, days int, out string, now time.Time) error {
	if days <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	since := now.AddDate(0, 0, -days)

	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := export.WriteAuditWorkbook(ctx, store, since, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", out, err)
		}
		logger.Log.Info().Str("path", out).Msg("audit workbook written")
		return nil
	}

	client, err := storage.NewS3Client(cfg)
	if err != nil {
		return fmt.Errorf("no --out given and object storage unusable: %w", err)
	}
	_, err = uploadAudit(ctx, store, client, cfg.Prefix, since, now)
	return err
}

func uploadAudit(ctx context.Context, store repository.Store, up uploader, prefix string, since, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := export.WriteAuditWorkbook(ctx, store, since, &buf); err != nil {
		return "", err
	}
	key := storage.Key(prefix, export.AuditFileName(now))
	if err := up.UploadObject(ctx, key, buf.Bytes(), export.XLSXContentType); err != nil {
		return "", err
	}
	logger.Log.Info().Str("key", key).Int("bytes", buf.Len()).Msg("audit workbook uploaded")
	return key, nil
}

func printRecommendations(ctx context.Context, l *ledger, days int, threshold decimal.Decimal, w io.Writer) error {
	recs, err := l.reorder.Recommendations(ctx, days, threshold)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		_, err := fmt.Fprintf(w, "No reorders needed for the next %d days\n", days)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tSTOCK\tDEMAND\tGAP\tUNIT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ItemName, r.CurrentStock.StringFixed(2), r.PredictedDemand.StringFixed(2), r.Gap.StringFixed(2), r.Unit)
	}
	return tw.Flush()
}
