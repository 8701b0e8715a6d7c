package texture

import (
	"log/slog"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

const watchBuffer = 128

// Watcher records changes to texture source files. The fsnotify pump runs
// on its own goroutine; the registry is only touched from Drain, which the
// frame loop calls.
type Watcher struct {
	reg  *Registry
	dir  string
	w    *fsnotify.Watcher
	log  *slog.Logger
	evC  chan string
	done chan struct{}

	overflow chan struct{}
}

// NewWatcher watches dir, the directory source files are relative to.
// Subdirectories are added with Add.
func NewWatcher(r *Registry, dir string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "texture: create watcher")
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "texture: watch %s", dir)
	}
	fw := &Watcher{
		reg:      r,
		dir:      dir,
		w:        w,
		log:      r.log,
		evC:      make(chan string, watchBuffer),
		done:     make(chan struct{}),
		overflow: make(chan struct{}, 1),
	}
	go fw.loop()
	return fw, nil
}

// Add watches a subdirectory of the source directory.
func (fw *Watcher) Add(sub string) error {
	return fw.w.Add(filepath.Join(fw.dir, filepath.FromSlash(sub)))
}

func (fw *Watcher) loop() {
	defer close(fw.done)
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(fw.dir, ev.Name)
			if err != nil {
				continue
			}
			select {
			case fw.evC <- filepath.ToSlash(rel):
			default:
				// too many changes to track one by one
				select {
				case fw.overflow <- struct{}{}:
				default:
				}
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			fw.log.Warn("texture watcher error", "err", err)
		}
	}
}

// Drain invalidates textures whose source changed since the last call and
// returns how many were affected. It never blocks.
func (fw *Watcher) Drain() int {
	n := 0
	for {
		select {
		case <-fw.overflow:
			fw.log.Warn("texture watcher overflowed, invalidating everything")
			for i := range fw.reg.table {
				if e := &fw.reg.table[i]; e.live && !e.desc.Source.InMemory() {
					e.recheck = true
					n++
				}
			}
		case file := <-fw.evC:
			if c := fw.reg.Invalidate(file); c > 0 {
				fw.log.Debug("texture source changed on disk", "file", file, "textures", c)
				n += c
			}
		default:
			return n
		}
	}
}

// Close stops watching.
func (fw *Watcher) Close() error {
	err := fw.w.Close()
	<-fw.done
	return err
}
