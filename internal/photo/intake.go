package photo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/brightpath-energy/fieldsync/internal/errors"
	"github.com/brightpath-energy/fieldsync/internal/logging"
	"github.com/brightpath-energy/fieldsync/internal/models"
	"github.com/brightpath-energy/fieldsync/internal/uuid"
)

// PhotoStore persists photos into the offline backlog. Implemented by
// db.Repository.
type PhotoStore interface {
	SavePhoto(p *models.Photo) error
}

// Intake watches a drop directory for captured photos and registers them in
// the offline backlog. Files are named <inspectionID>__<caption>.<ext>;
// the caption segment is optional. Registered files are deleted from the
// drop directory, which is the commit point for the hand-off.
type Intake struct {
	dir      string
	store    PhotoStore
	category string
	log      *logging.Logger

	// OnRegistered, when set, runs after each successful registration.
	// Typically wired to the sync engine's trigger.
	OnRegistered func(ctx context.Context, p *models.Photo)

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup

	// Write events arrive in bursts while the camera app streams the file
	// out; a short debounce lets the file settle before it is read.
	debounceDelay time.Duration
	mu            sync.Mutex
	pending       map[string]*time.Timer
	running       bool
}

// NewIntake creates an Intake over the given drop directory.
func NewIntake(dir string, store PhotoStore) *Intake {
	return &Intake{
		dir:           dir,
		store:         store,
		category:      "field-capture",
		log:           logging.Get(),
		debounceDelay: 500 * time.Millisecond,
		pending:       make(map[string]*time.Timer),
	}
}

// Start begins watching the drop directory. Files already present are
// registered before the watch begins so a restart misses nothing.
func (in *Intake) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.running {
		in.mu.Unlock()
		return nil
	}
	in.running = true
	in.mu.Unlock()

	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.ErrIntakeRejected, "failed to create drop directory", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to create watcher", err)
	}
	if err := watcher.Add(in.dir); err != nil {
		watcher.Close()
		return apperrors.Wrap(apperrors.ErrIntakeRejected, "failed to watch drop directory", err)
	}
	in.watcher = watcher

	in.sweep(ctx)

	in.wg.Add(1)
	go in.watchLoop(ctx)

	in.log.Info("Photo intake started", map[string]interface{}{"dir": in.dir})
	return nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (in *Intake) Stop() {
	in.mu.Lock()
	if !in.running {
		in.mu.Unlock()
		return
	}
	in.running = false
	for path, timer := range in.pending {
		timer.Stop()
		delete(in.pending, path)
	}
	in.mu.Unlock()

	if in.watcher != nil {
		in.watcher.Close()
	}
	in.wg.Wait()

	in.log.Info("Photo intake stopped", nil)
}

// sweep registers any files that were dropped while the intake was down.
func (in *Intake) sweep(ctx context.Context) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.log.Error("Failed to sweep drop directory", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		in.register(ctx, filepath.Join(in.dir, entry.Name()))
	}
}

func (in *Intake) watchLoop(ctx context.Context) {
	defer in.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-in.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				in.schedule(ctx, event.Name)
			}
		case err, ok := <-in.watcher.Errors:
			if !ok {
				return
			}
			in.log.Error("Watcher error", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer for a path.
func (in *Intake) schedule(ctx context.Context, path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.running {
		return
	}
	if timer, ok := in.pending[path]; ok {
		timer.Reset(in.debounceDelay)
		return
	}
	in.pending[path] = time.AfterFunc(in.debounceDelay, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		in.register(ctx, path)
	})
}

// register reads a dropped file, persists it as an offline photo and
// removes the file. Rejected files are left in place for the operator.
func (in *Intake) register(ctx context.Context, path string) {
	inspectionID, caption, err := parseDropName(filepath.Base(path))
	if err != nil {
		in.log.Warn("Ignoring drop file with bad name",
			map[string]interface{}{"file": filepath.Base(path), "error": err.Error()})
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			in.log.Error("Failed to read drop file", err,
				map[string]interface{}{"file": filepath.Base(path)})
		}
		return
	}

	contentType, err := ValidateImage(data)
	if err != nil {
		in.log.Warn("Rejecting non-image drop file",
			map[string]interface{}{"file": filepath.Base(path), "error": err.Error()})
		return
	}

	p := &models.Photo{
		ID:           models.UUID(uuid.New()),
		InspectionID: models.UUID(inspectionID),
		Data:         data,
		Caption:      caption,
		Category:     in.category,
		ContentType:  contentType,
		CreatedAt:    time.Now().UnixNano(),
	}

	if err := in.store.SavePhoto(p); err != nil {
		in.log.ErrorWithCode("Failed to register photo", string(apperrors.ErrQueueStore), err,
			map[string]interface{}{"file": filepath.Base(path)})
		return
	}

	if err := os.Remove(path); err != nil {
		in.log.Warn("Failed to remove registered drop file",
			map[string]interface{}{"file": filepath.Base(path), "error": err.Error()})
	}

	in.log.Info("Photo registered from drop directory", map[string]interface{}{
		"photo_id":      uuid.Short(p.ID.String()),
		"inspection_id": uuid.Short(inspectionID),
		"bytes":         len(data),
	})

	if in.OnRegistered != nil {
		in.OnRegistered(ctx, p)
	}
}

// parseDropName splits <inspectionID>__<caption>.<ext> into its parts. The
// caption segment is optional; the inspection id must be a UUID.
func parseDropName(name string) (inspectionID, caption string, err error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		return "", "", apperrors.New(apperrors.ErrIntakeRejected, "empty file name")
	}

	inspectionID = base
	if idx := strings.Index(base, "__"); idx >= 0 {
		inspectionID = base[:idx]
		caption = strings.ReplaceAll(base[idx+2:], "_", " ")
	}

	if err := uuid.Validate(inspectionID); err != nil {
		return "", "", apperrors.New(apperrors.ErrIntakeRejected,
			"file name must start with an inspection id")
	}
	return inspectionID, caption, nil
}
