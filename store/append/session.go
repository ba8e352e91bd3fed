package appendlog

import (
	"archive/tar"
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/sym"
)

// CloseDay runs the post-session maintenance for one trading day:
// every CSV is deduplicated by timestamp (last occurrence wins) and
// sorted ascending, then the day directory is packed into
// {kind}/{day}.tar.gz and removed. Re-running for an already-archived
// day is a no-op.
func CloseDay(baseDir, day string, log *zap.SugaredLogger) error {
	var errs error
	for _, kind := range []string{kindTick, kindBar} {
		root := filepath.Join(baseDir, kind)
		dayDir := filepath.Join(root, day)

		if _, err := os.Stat(dayDir); os.IsNotExist(err) {
			continue
		}

		if err := dedupDir(dayDir); err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		if err := archiveDay(root, day); err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		if err := os.RemoveAll(dayDir); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "remove %s", dayDir))
			continue
		}
		log.Infow(sym.CSV+" Session closed",
			"kind", kind,
			"day", day,
			"archive", filepath.Join(root, day+".tar.gz"))
	}
	return errs
}

// dedupDir rewrites every CSV in a day directory deduplicated and
// sorted. The operation is idempotent: a second pass changes nothing.
func dedupDir(dayDir string) error {
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return errors.Wrapf(err, "list %s", dayDir)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".csv" {
			continue
		}
		if err := DedupFile(filepath.Join(dayDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// DedupFile deduplicates one CSV by its timestamp column (the last
// column), keeping the last occurrence of each key, sorts rows
// ascending by timestamp, and atomically replaces the file.
func DedupFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	records, err := csv.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if len(records) <= 1 {
		return nil
	}

	header, rows := records[0], records[1:]
	keyCol := len(header) - 1

	// Last occurrence per timestamp wins: later appends supersede
	// earlier ones for the same instant.
	byKey := make(map[string]int, len(rows))
	var order []string
	for i, rec := range rows {
		key := rec[keyCol]
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = i
	}
	sort.Strings(order)

	out := make([][]string, 0, len(order)+1)
	out = append(out, header)
	for _, key := range order {
		out = append(out, rows[byKey[key]])
	}

	tmp := path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}
	cw := csv.NewWriter(tf)
	if err := cw.WriteAll(out); err != nil {
		tf.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", tmp)
	}
	cw.Flush()
	if err := errors.CombineErrors(cw.Error(), tf.Close()); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "finish %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "replace %s", path)
}

// archiveDay packs {root}/{day}/ into {root}/{day}.tar.gz with the day
// directory as the entry prefix.
func archiveDay(root, day string) error {
	dayDir := filepath.Join(root, day)
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return errors.Wrapf(err, "list %s", dayDir)
	}

	out, err := os.OpenFile(filepath.Join(root, day+".tar.gz"),
		os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return errors.Wrapf(err, "create archive for %s", day)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := addTarEntry(tw, filepath.Join(dayDir, e.Name()), day+"/"+e.Name()); err != nil {
			tw.Close()
			gz.Close()
			return err
		}
	}

	if err := errors.CombineErrors(tw.Close(), gz.Close()); err != nil {
		return errors.Wrapf(err, "finish archive for %s", day)
	}
	return nil
}

func addTarEntry(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return errors.Wrapf(err, "header %s", path)
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "write header %s", name)
	}
	_, err = io.Copy(tw, f)
	return errors.Wrapf(err, "pack %s", name)
}
