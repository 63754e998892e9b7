package worker

import (
	"path/filepath"
	"time"

	"github.com/bookferry/bookferry/pkg/matcher"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

func (w *Worker) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WithStack(err)
	}
	for _, dir := range w.config.DownloadDirs {
		if err := watcher.Add(dir); err != nil {
			w.log.Err(err).Warn("unable to watch download directory", logger.Data{"dir": dir})
		}
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.watch()
	return nil
}

// relevant filters out events that cannot complete a download: removals,
// permission changes and names the matcher never looks at.
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	return !matcher.Skippable(filepath.Base(event.Name))
}

// watch triggers a pass once a download directory has been quiet for the
// debounce interval.
func (w *Worker) watch() {
	defer w.wg.Done()

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			w.log.Debug("download directory changed", logger.Data{"path": event.Name, "op": event.Op.String()})
			debounce.Reset(w.config.WatchDebounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Err(err).Warn("watcher error")
		case <-debounce.C:
			if !w.Trigger(models.TriggerWatch) {
				w.log.Debug("pass already pending, ignoring change")
			}
		}
	}
}
