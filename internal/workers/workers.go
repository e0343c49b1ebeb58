// Package workers contains the named request handlers shipped with the
// server. Each one is reachable as /ext/<Name> and through configured
// routes.
package workers

import (
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/conneroisu/scriptserv/internal/dispatch"
	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/webctx"
)

// Registrar accepts named workers.
type Registrar interface {
	Register(name string, w dispatch.Worker)
}

// Register adds every built-in worker to r.
func Register(r Registrar) {
	r.Register("HelloWorker", &HelloWorker{Now: time.Now})
	r.Register("EchoParams", dispatch.WorkerFunc(EchoParams))
	r.Register("CircleWorker", &CircleWorker{Size: 200, Fill: color.RGBA{R: 0xff, G: 0xaa, B: 0x00, A: 0xff}})
	r.Register("SumWorker", dispatch.WorkerFunc(SumWorker))
	r.Register("Home", dispatch.WorkerFunc(Home))
	r.Register("BgColorWorker", dispatch.WorkerFunc(BgColorWorker))
}

// DefaultRoutes maps request paths onto the built-in workers.
func DefaultRoutes() map[string]string {
	return map[string]string{
		"/hello":       "HelloWorker",
		"/echo":        "EchoParams",
		"/cw":          "CircleWorker",
		"/calc":        "SumWorker",
		"/index2.html": "Home",
		"/setbgcolor":  "BgColorWorker",
	}
}

// HelloWorker greets the caller and reports the length of the name
// parameter.
type HelloWorker struct {
	Now func() time.Time
}

// Process implements dispatch.Worker.
func (w *HelloWorker) Process(rc *webctx.RequestContext) error {
	rc.SetMimeType("text/html")

	var sb strings.Builder
	sb.WriteString("<html><body>\n<h1>Hello!!!</h1>\n")
	fmt.Fprintf(&sb, "<p>Now is: %s</p>\n", w.Now().Format("2006-01-02 15:04:05"))

	name, ok := rc.Parameter("name")
	if !ok || strings.TrimSpace(name) == "" {
		sb.WriteString("<p>You did not send me your name!</p>\n")
	} else {
		fmt.Fprintf(&sb, "<p>Your name has %d letters.</p>\n", utf8.RuneCountInString(strings.TrimSpace(name)))
	}
	sb.WriteString("</body></html>\n")

	_, err := rc.WriteString(sb.String())
	return err
}

// EchoParams writes an HTML table of the request parameters.
func EchoParams(rc *webctx.RequestContext) error {
	rc.SetMimeType("text/html")

	var sb strings.Builder
	sb.WriteString("<html><body>\n<table border=\"1\">\n<tr><th>Name</th><th>Value</th></tr>\n")
	for _, name := range rc.ParameterNames() {
		v, _ := rc.Parameter(name)
		fmt.Fprintf(&sb, "<tr><td>%s</td><td>%s</td></tr>\n", html.EscapeString(name), html.EscapeString(v))
	}
	sb.WriteString("</table>\n</body></html>\n")

	_, err := rc.WriteString(sb.String())
	return err
}

// CircleWorker draws a filled circle as a PNG.
type CircleWorker struct {
	Size int
	Fill color.Color
}

// Process implements dispatch.Worker.
func (w *CircleWorker) Process(rc *webctx.RequestContext) error {
	img := image.NewRGBA(image.Rect(0, 0, w.Size, w.Size))
	r := float64(w.Size) / 2
	for y := 0; y < w.Size; y++ {
		for x := 0; x < w.Size; x++ {
			dx, dy := float64(x)+0.5-r, float64(y)+0.5-r
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, w.Fill)
			}
		}
	}

	rc.SetMimeType("image/png")
	if err := png.Encode(rc, img); err != nil {
		return errors.WrapIO(err, "ERR_WRITE", "encoding circle")
	}
	return nil
}

// SumWorker adds the integer parameters a and b (defaults 1 and 2) and
// renders the result through the private calc page.
func SumWorker(rc *webctx.RequestContext) error {
	a := intParam(rc, "a", 1)
	b := intParam(rc, "b", 2)
	sum := a + b

	rc.SetTemporaryParameter("varA", strconv.Itoa(a))
	rc.SetTemporaryParameter("varB", strconv.Itoa(b))
	rc.SetTemporaryParameter("zbroj", strconv.Itoa(sum))
	if sum%2 == 0 {
		rc.SetTemporaryParameter("imgName", "/images/even.png")
	} else {
		rc.SetTemporaryParameter("imgName", "/images/odd.png")
	}
	return rc.Dispatch("/private/pages/calc.smscr")
}

// DefaultBackground is the page colour used until a session picks one.
const DefaultBackground = "7F7F7F"

// Home renders the private home page in the session's background colour.
func Home(rc *webctx.RequestContext) error {
	bg, ok := rc.PersistentParameter("bgcolor")
	if !ok {
		bg = DefaultBackground
	}
	rc.SetTemporaryParameter("background", bg)
	return rc.Dispatch("/private/pages/home.smscr")
}

var hexColor = regexp.MustCompile(`^[0-9A-Fa-f]{6}$`)

// BgColorWorker stores a valid bgcolor parameter in the session.
func BgColorWorker(rc *webctx.RequestContext) error {
	rc.SetMimeType("text/html")

	bg, _ := rc.Parameter("bgcolor")
	updated := hexColor.MatchString(bg)
	if updated {
		rc.SetPersistentParameter("bgcolor", strings.ToUpper(bg))
	}

	var sb strings.Builder
	sb.WriteString("<html><body>\n")
	if updated {
		sb.WriteString("<p>Background color updated.</p>\n")
	} else {
		sb.WriteString("<p>Background color was not updated.</p>\n")
	}
	sb.WriteString("<a href=\"/index2.html\">Back to home</a>\n</body></html>\n")

	_, err := rc.WriteString(sb.String())
	return err
}

func intParam(rc *webctx.RequestContext, name string, dv int) int {
	s, ok := rc.Parameter(name)
	if !ok {
		return dv
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return dv
	}
	return n
}
