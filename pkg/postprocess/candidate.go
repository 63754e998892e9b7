package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bookferry/bookferry/pkg/fileutils"
	"github.com/bookferry/bookferry/pkg/joblogs"
	"github.com/bookferry/bookferry/pkg/mediafile"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// btsSuffix marks a folder that BitTorrent Sync is still filling.
const btsSuffix = ".bts"

// source is the directory a delivery is committed from. scratch is set for
// folders this process created, which are always removed once committed.
type source struct {
	dir     string
	scratch bool
}

// unpackLabel turns a title into a name usable for an .unpack folder.
func unpackLabel(title string) string {
	label := strings.NewReplacer("/", " ", `\`, " ").Replace(title)
	label = strings.Join(strings.Fields(label), " ")
	if label == "" || label == "." || label == ".." {
		return "download"
	}
	return label
}

func hasBTS(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.EqualFold(filepath.Ext(e.Name()), btsSuffix) {
			return true
		}
	}
	return false
}

// resolveCandidate turns the matched entry name in dir into a directory that
// holds the payload for req.
func (p *Processor) resolveCandidate(ctx context.Context, jobLog *joblogs.JobLogger, dir, name string, req *models.Request) (*source, error) {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	label := unpackLabel(req.Title)

	switch {
	case info.Mode().IsRegular():
		if p.types.IsPayload(name) {
			if hasBTS(dir) {
				return nil, errors.Wrapf(ErrNotReady, "found a %s file in %s", btsSuffix, dir)
			}
			// Give the file its own folder so nothing else in the root is
			// touched. Seeding torrents keep their copy in place.
			copyOnly := p.seeding(req) || p.cfg.KeepOriginalFiles
			res, err := fileutils.OrganizeRootLevelFile(path, p.travelsWithPayload, copyOnly, p.cfg.FileMode(), p.cfg.DirMode())
			if err != nil {
				return nil, err
			}
			jobLog.Debug("moved download into its own folder", logger.Data{"folder": res.Folder, "copied": copyOnly, "siblings": res.Siblings})
			return &source{dir: res.Folder, scratch: copyOnly}, nil
		}

		unpacked, err := p.extractor.Extract(ctx, path, dir, label, p.types.IsPayload)
		if err != nil {
			return nil, errors.Wrap(ErrArchiveExtraction, err.Error())
		}
		if unpacked == "" {
			return nil, errors.Wrapf(ErrNotReady, "unhandled file %s", name)
		}
		return p.checkPayload(&source{dir: unpacked, scratch: true}, req)

	case info.IsDir():
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if len(entries) == 0 {
			return nil, errors.Wrapf(ErrNotReady, "%s is empty", path)
		}
		if hasBTS(path) {
			return nil, errors.Wrapf(ErrNotReady, "found a %s file in %s", btsSuffix, path)
		}

		for _, e := range entries {
			if !e.Type().IsRegular() || p.types.IsPayload(e.Name()) {
				continue
			}
			unpacked, err := p.extractor.Extract(ctx, filepath.Join(path, e.Name()), path, label, p.types.IsPayload)
			if err != nil {
				return nil, errors.Wrap(ErrArchiveExtraction, err.Error())
			}
			if unpacked != "" {
				jobLog.Debug("unpacked archive", logger.Data{"archive": e.Name(), "target": unpacked})
				return p.checkPayload(&source{dir: unpacked, scratch: true}, req)
			}
		}
		return p.checkPayload(&source{dir: path}, req)
	}

	return nil, errors.Wrapf(ErrNotReady, "%s is not a file or a directory", path)
}

// checkPayload confirms src holds at least one file of the requested kind.
// travelsWithPayload reports whether a root-level sibling of a matched file
// belongs in its folder.
func (p *Processor) travelsWithPayload(name string) bool {
	return p.types.IsPayload(name) || mediafile.IsOPF(name) || mediafile.IsCover(name)
}

func (p *Processor) checkPayload(src *source, req *models.Request) (*source, error) {
	if !p.containsKind(src.dir, req.MediaKind) {
		return nil, errors.Wrapf(ErrNotReady, "no %s found in %s", req.MediaKind, src.dir)
	}
	return src, nil
}

func (p *Processor) containsKind(dir, kind string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	is := p.types.Predicate(kind)
	for _, e := range entries {
		if e.Type().IsRegular() && is(e.Name()) {
			return true
		}
	}
	return false
}
