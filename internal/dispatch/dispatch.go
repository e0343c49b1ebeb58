// Package dispatch routes request paths to workers, templates and static
// files below a sandboxed document root.
//
// Routing order:
//
//  1. paths under /private answer 404 unless reached through an internal
//     dispatch from a worker or template;
//  2. /ext/<Name> invokes the worker registered as Name;
//  3. the route table maps exact paths to worker names;
//  4. anything else is a file below the document root. Template files are
//     parsed (through the cache) and executed; other files are streamed
//     with their MIME type and exact length.
package dispatch

import (
	"fmt"
	"io"
	"os"
	pathpkg "path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/scriptserv/internal/engine"
	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/logging"
	"github.com/conneroisu/scriptserv/internal/webctx"
)

const (
	PrivatePrefix = "/private"
	WorkerPrefix  = "/ext/"
)

// Worker handles a request on its own.
type Worker interface {
	Process(rc *webctx.RequestContext) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(rc *webctx.RequestContext) error

// Process calls f(rc).
func (f WorkerFunc) Process(rc *webctx.RequestContext) error { return f(rc) }

// Options configures a Dispatcher.
type Options struct {
	Root               string
	TemplateExtensions []string
	MimeTypes          map[string]string
	DefaultMime        string
	// Routes maps exact request paths to worker names.
	Routes map[string]string
	Logger logging.Logger
}

// Dispatcher implements webctx.Dispatcher. Workers and routes are fixed
// once serving starts; the dispatcher is then safe for concurrent use.
type Dispatcher struct {
	root         *Root
	engine       *engine.Engine
	cache        *TemplateCache
	mime         *MimeTable
	templateExts map[string]bool
	routes       map[string]string
	workers      map[string]Worker
	logger       logging.Logger
}

var _ webctx.Dispatcher = (*Dispatcher)(nil)

// New creates a dispatcher over opts.Root.
func New(opts Options, eng *engine.Engine) (*Dispatcher, error) {
	root, err := NewRoot(opts.Root)
	if err != nil {
		return nil, errors.NewConfigError("invalid document root", err)
	}
	if eng == nil {
		eng = engine.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	exts := make(map[string]bool, len(opts.TemplateExtensions))
	for _, ext := range opts.TemplateExtensions {
		exts[normalizeExt(ext)] = true
	}
	routes := make(map[string]string, len(opts.Routes))
	for path, name := range opts.Routes {
		routes[path] = name
	}

	return &Dispatcher{
		root:         root,
		engine:       eng,
		cache:        NewTemplateCache(),
		mime:         NewMimeTable(opts.MimeTypes, opts.DefaultMime),
		templateExts: exts,
		routes:       routes,
		workers:      make(map[string]Worker),
		logger:       logger.WithComponent("dispatch"),
	}, nil
}

// Register makes w reachable as /ext/<name> and through the route table.
func (d *Dispatcher) Register(name string, w Worker) {
	d.workers[name] = w
}

// Workers returns the registered worker names in sorted order.
func (d *Dispatcher) Workers() []string {
	names := make([]string, 0, len(d.workers))
	for name := range d.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckRoutes reports routes naming unregistered workers.
func (d *Dispatcher) CheckRoutes() error {
	var missing []string
	for path, name := range d.routes {
		if _, ok := d.workers[name]; !ok {
			missing = append(missing, fmt.Sprintf("%s -> %s", path, name))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.NewConfigError("routes name unknown workers: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// Root returns the document root.
func (d *Dispatcher) Root() *Root { return d.root }

// Cache returns the template cache.
func (d *Dispatcher) Cache() *TemplateCache { return d.cache }

// IsTemplate reports whether name carries a template extension.
func (d *Dispatcher) IsTemplate(name string) bool {
	return d.templateExts[normalizeExt(filepath.Ext(name))]
}

// Serve routes a path requested by a client.
func (d *Dispatcher) Serve(rc *webctx.RequestContext, path string) error {
	return d.route(rc, path, true)
}

// Dispatch routes a path on behalf of a running worker or template.
// Private paths are reachable.
func (d *Dispatcher) Dispatch(rc *webctx.RequestContext, path string) error {
	return d.route(rc, path, false)
}

func (d *Dispatcher) route(rc *webctx.RequestContext, path string, direct bool) error {
	if direct && isPrivate(path) {
		return errors.NewNotFoundError(path, fmt.Errorf("private path requested directly"))
	}

	if strings.HasPrefix(path, WorkerPrefix) {
		name := strings.TrimPrefix(path, WorkerPrefix)
		w, ok := d.workers[name]
		if !ok {
			return errors.NewNotFoundError(path, fmt.Errorf("no worker named %q", name))
		}
		return d.runWorker(rc, name, w)
	}

	if name, ok := d.routes[path]; ok {
		w, ok := d.workers[name]
		if !ok {
			return errors.NewNotFoundError(path, fmt.Errorf("route names unknown worker %q", name))
		}
		return d.runWorker(rc, name, w)
	}

	file, info, err := d.root.Resolve(path)
	if err != nil {
		if errors.StatusCode(err) == 403 {
			logging.LogSecurityEvent(rc.Context(), d.logger, "document_root_escape", map[string]interface{}{
				"path": path,
			})
		}
		return err
	}

	if d.IsTemplate(file) {
		return d.executeTemplate(rc, file, info)
	}
	return d.streamFile(rc, file, info.Size())
}

func (d *Dispatcher) runWorker(rc *webctx.RequestContext, name string, w Worker) error {
	if err := w.Process(rc); err != nil {
		return fmt.Errorf("worker %s: %w", name, err)
	}
	return nil
}

func (d *Dispatcher) executeTemplate(rc *webctx.RequestContext, file string, info os.FileInfo) error {
	doc, err := d.cache.Load(file, info)
	if err != nil {
		return err
	}
	if err := d.engine.Execute(rc.Context(), doc, rc); err != nil {
		return errors.WrapTemplate(err, errors.ErrCodeExecution, file)
	}
	return nil
}

func (d *Dispatcher) streamFile(rc *webctx.RequestContext, file string, size int64) error {
	f, err := os.Open(file)
	if err != nil {
		return errors.NewNotFoundError(file, err)
	}
	defer f.Close()

	if !rc.HeaderGenerated() {
		rc.SetMimeType(d.mime.Lookup(file))
		rc.SetContentLength(size)
	}
	if err := rc.WriteHeader(); err != nil {
		return err
	}
	if _, err := io.Copy(rc, f); err != nil {
		return errors.WrapIO(err, "ERR_WRITE", "streaming "+filepath.Base(file))
	}
	return nil
}

// isPrivate checks the cleaned path so "/a/../private/x" is caught too.
func isPrivate(path string) bool {
	path = pathpkg.Clean("/" + path)
	return path == PrivatePrefix || strings.HasPrefix(path, PrivatePrefix+"/")
}
