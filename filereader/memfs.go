package filereader

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Directory is a node in the memory filesystem tree (spec §4.6
// "Memory-file-system backend"). Deletion is soft: Deleted() flips a
// flag but the node and its subtree remain reachable through existing
// handles until those handles are dropped.
type Directory struct {
	mu       sync.RWMutex
	name     string
	parent   *Directory
	children map[string]*Directory
	files    map[string]*File
	deleted  bool
}

// File is a leaf node holding content (spec §4.6 "File { name, parent,
// content: Buffer, timestamp, readonly, deleted }").
type File struct {
	mu        sync.RWMutex
	name      string
	parent    *Directory
	content   []byte
	timestamp time.Time
	readonly  bool
	deleted   bool
}

func (d *Directory) Name() string { return d.name }
func (d *Directory) Deleted() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.deleted
}

func (f *File) Name() string { return f.name }
func (f *File) Timestamp() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.timestamp
}
func (f *File) Readonly() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.readonly
}
func (f *File) Deleted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.deleted
}

// Content returns a copy of the file's current bytes.
func (f *File) Content() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]byte, len(f.content))
	copy(out, f.content)
	return out
}

// Reader returns a memory-backed Reader over this file's current
// content. Subsequent writes to the file are not reflected in readers
// already handed out, matching "view keeps reader alive" independent
// lifetime semantics.
func (f *File) Reader() Reader {
	return NewFromBuffer(f.Content(), f.path())
}

func (f *File) path() string {
	if f.parent == nil {
		return f.name
	}
	return f.parent.path() + "/" + f.name
}

func (d *Directory) path() string {
	if d.parent == nil {
		return "/" + d.name
	}
	return d.parent.path() + "/" + d.name
}

// FileSystem is the root of the memory-file-system backend.
type FileSystem struct {
	mu       sync.RWMutex
	roots    map[string]*Directory
	watchers []*Watcher
	opts     WatcherOptions
}

// NewFileSystem creates an empty memory filesystem.
func NewFileSystem(opts WatcherOptions) *FileSystem {
	if opts.Debounce <= 0 && opts.Expiry <= 0 {
		opts = DefaultWatcherOptions()
	}
	return &FileSystem{roots: make(map[string]*Directory), opts: opts}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// CreatePath creates (if missing) every directory along path and
// returns the leaf directory.
func (fs *FileSystem) CreatePath(path string) (*Directory, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("filereader: empty path")
	}
	fs.mu.Lock()
	root, ok := fs.roots[parts[0]]
	if !ok {
		root = &Directory{name: parts[0], children: map[string]*Directory{}, files: map[string]*File{}}
		fs.roots[parts[0]] = root
		fs.mu.Unlock()
		fs.emit(Event{Type: DirectoryAdded, Path: root.path()})
	} else {
		fs.mu.Unlock()
	}

	cur := root
	for _, part := range parts[1:] {
		cur.mu.Lock()
		child, ok := cur.children[part]
		if !ok {
			child = &Directory{name: part, parent: cur, children: map[string]*Directory{}, files: map[string]*File{}}
			cur.children[part] = child
		}
		cur.mu.Unlock()
		if !ok {
			fs.emit(Event{Type: DirectoryAdded, Path: child.path()})
		}
		cur = child
	}
	return cur, nil
}

// CreateFile creates (or overwrites) a file at path with the given
// content, stamped with the current time.
func (fs *FileSystem) CreateFile(path string, content []byte) (*File, error) {
	return fs.createFileStamped(path, content, stampNow(), false)
}

// createFileStamped is CreateFile's timestamp-preserving core, used
// directly by CopyFile and MoveFile so a re-added file carries its
// source's timestamp and readonly flag instead of a fresh stamp,
// matching the original memoryFileSystem.cpp's copyFile/moveFile.
func (fs *FileSystem) createFileStamped(path string, content []byte, timestamp time.Time, readonly bool) (*File, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("filereader: empty path")
	}
	dirParts, name := parts[:len(parts)-1], parts[len(parts)-1]
	if len(dirParts) == 0 {
		return nil, fmt.Errorf("filereader: %q has no containing directory (roots hold only directories)", path)
	}
	dir, err := fs.CreatePath(strings.Join(dirParts, "/"))
	if err != nil {
		return nil, err
	}

	dir.mu.Lock()
	existing, existed := dir.files[name]
	f := &File{name: name, parent: dir, content: append([]byte(nil), content...), timestamp: timestamp, readonly: readonly}
	dir.files[name] = f
	dir.mu.Unlock()

	if existed && !existing.Deleted() {
		fs.emit(Event{Type: FileContentChanged, Path: f.path()})
	} else {
		fs.emit(Event{Type: FileAdded, Path: f.path()})
	}
	return f, nil
}

// WriteFile overwrites an existing file's content in place, emitting
// FileContentChanged.
func (fs *FileSystem) WriteFile(f *File, content []byte) error {
	f.mu.Lock()
	if f.readonly {
		f.mu.Unlock()
		return fmt.Errorf("filereader: %s is readonly", f.name)
	}
	f.content = append([]byte(nil), content...)
	f.timestamp = stampNow()
	f.mu.Unlock()
	fs.emit(Event{Type: FileContentChanged, Path: f.path()})
	return nil
}

// DeleteFile soft-deletes the file at path: existing handles remain
// valid, but it no longer appears in enumeration.
func (fs *FileSystem) DeleteFile(path string) error {
	f, err := fs.lookupFile(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.deleted = true
	f.mu.Unlock()
	fs.emit(Event{Type: FileRemoved, Path: path})
	return nil
}

// DeleteDir soft-deletes the directory at path. Only that node is
// flagged: EnumSubdirs and EnumRoots skip it, but its files and
// subdirectories are not flagged and stay reachable by path.
func (fs *FileSystem) DeleteDir(path string) error {
	d, err := fs.lookupDir(path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.deleted = true
	d.mu.Unlock()
	fs.emit(Event{Type: DirectoryRemoved, Path: path})
	return nil
}

// CopyFile duplicates srcPath's current content to dstPath, preserving
// the source's timestamp and readonly flag.
func (fs *FileSystem) CopyFile(srcPath, dstPath string) (*File, error) {
	src, err := fs.lookupFile(srcPath)
	if err != nil {
		return nil, err
	}
	src.mu.RLock()
	content := append([]byte(nil), src.content...)
	timestamp := src.timestamp
	readonly := src.readonly
	src.mu.RUnlock()
	return fs.createFileStamped(dstPath, content, timestamp, readonly)
}

// MoveFile implements spec's "Move is implemented as soft-delete-
// plus-readd and re-issues add events": the source is soft-deleted and
// a new file is created at dstPath with the same content, timestamp,
// and readonly flag as the source (memoryFileSystem.cpp's moveFile
// passes srcEntry->timestamp into the re-add rather than re-stamping).
func (fs *FileSystem) MoveFile(srcPath, dstPath string) (*File, error) {
	src, err := fs.lookupFile(srcPath)
	if err != nil {
		return nil, err
	}
	src.mu.Lock()
	content := append([]byte(nil), src.content...)
	timestamp := src.timestamp
	readonly := src.readonly
	src.deleted = true
	src.mu.Unlock()
	fs.emit(Event{Type: FileRemoved, Path: srcPath})
	return fs.createFileStamped(dstPath, content, timestamp, readonly)
}

// EnumFiles visits every non-deleted file directly in dirPath until fn
// returns false.
func (fs *FileSystem) EnumFiles(dirPath string, fn func(*File) bool) error {
	d, err := fs.lookupDir(dirPath)
	if err != nil {
		return err
	}
	d.mu.RLock()
	files := make([]*File, 0, len(d.files))
	for _, f := range d.files {
		files = append(files, f)
	}
	d.mu.RUnlock()
	for _, f := range files {
		if f.Deleted() {
			continue
		}
		if !fn(f) {
			return nil
		}
	}
	return nil
}

// EnumSubdirs visits every non-deleted direct child directory of
// dirPath until fn returns false.
func (fs *FileSystem) EnumSubdirs(dirPath string, fn func(*Directory) bool) error {
	d, err := fs.lookupDir(dirPath)
	if err != nil {
		return err
	}
	d.mu.RLock()
	subs := make([]*Directory, 0, len(d.children))
	for _, c := range d.children {
		subs = append(subs, c)
	}
	d.mu.RUnlock()
	for _, c := range subs {
		if c.Deleted() {
			continue
		}
		if !fn(c) {
			return nil
		}
	}
	return nil
}

// EnumRoots visits every non-deleted root directory until fn returns
// false.
func (fs *FileSystem) EnumRoots(fn func(*Directory) bool) {
	fs.mu.RLock()
	roots := make([]*Directory, 0, len(fs.roots))
	for _, r := range fs.roots {
		roots = append(roots, r)
	}
	fs.mu.RUnlock()
	for _, r := range roots {
		if r.Deleted() {
			continue
		}
		if !fn(r) {
			return
		}
	}
}

func (fs *FileSystem) lookupDir(path string) (*Directory, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("filereader: empty path")
	}
	fs.mu.RLock()
	cur, ok := fs.roots[parts[0]]
	fs.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("filereader: no such directory %q", path)
	}
	for _, part := range parts[1:] {
		cur.mu.RLock()
		next, ok := cur.children[part]
		cur.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("filereader: no such directory %q", path)
		}
		cur = next
	}
	return cur, nil
}

func (fs *FileSystem) lookupFile(path string) (*File, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("filereader: empty path")
	}
	dir, err := fs.lookupDir(strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, err
	}
	name := parts[len(parts)-1]
	dir.mu.RLock()
	f, ok := dir.files[name]
	dir.mu.RUnlock()
	if !ok || f.Deleted() {
		return nil, fmt.Errorf("filereader: no such file %q", path)
	}
	return f, nil
}

// Watch creates a Watcher receiving events for paths under prefix.
func (fs *FileSystem) Watch(prefix string) *Watcher {
	w := &Watcher{
		events: make(chan Event, 64),
		prefix: prefix,
		fs:     fs,
		opts:   fs.opts,
	}
	w.expireTimer = time.AfterFunc(fs.opts.Expiry, w.Close)
	fs.mu.Lock()
	fs.watchers = append(fs.watchers, w)
	fs.mu.Unlock()
	return w
}

func (fs *FileSystem) detachWatcher(w *Watcher) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for i, existing := range fs.watchers {
		if existing == w {
			fs.watchers = append(fs.watchers[:i], fs.watchers[i+1:]...)
			return
		}
	}
}

func (fs *FileSystem) emit(ev Event) {
	fs.mu.RLock()
	watchers := make([]*Watcher, 0, len(fs.watchers))
	for _, w := range fs.watchers {
		if strings.HasPrefix(ev.Path, w.prefix) {
			watchers = append(watchers, w)
		}
	}
	fs.mu.RUnlock()
	for _, w := range watchers {
		w.touch()
		w.notify(ev)
	}
}

// stampNow is a seam over time.Now so tests can assert ordering
// without depending on wall-clock granularity.
var stampNow = time.Now
