package catalog

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/logger"
)

// Download fetches src into dst unless dst already exists. The file is
// stored as served: go-getter's archive handling is switched off so the
// .gz is not unpacked.
func Download(ctx context.Context, src, dst string, log *zap.SugaredLogger) (downloaded bool, err error) {
	log = logger.OrNop(log)
	if _, err := os.Stat(dst); err == nil {
		log.Infow("Catalog already present", logger.FieldPath, dst)
		return false, nil
	}

	u, err := url.Parse(src)
	if err != nil {
		return false, errors.Wrapf(err, "invalid catalog url %q", src)
	}
	q := u.Query()
	q.Set("archive", "false")
	u.RawQuery = q.Encode()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, errors.Wrapf(err, "create %s", filepath.Dir(dst))
	}

	log.Infow("Downloading catalog", "url", src, logger.FieldPath, dst)
	client := &getter.Client{
		Ctx:     ctx,
		Src:     u.String(),
		Dst:     dst,
		Mode:    getter.ClientModeFile,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		os.Remove(dst)
		return false, errors.Wrapf(err, "download %s", src)
	}
	return true, nil
}
