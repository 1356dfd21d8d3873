// Package logging centralizes the logrus setup shared by every
// component, mirroring the teacher's `log "github.com/sirupsen/logrus"`
// usage in entrypoint/ocp and entrypoint/spec.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Root is the process-wide logger. Components should derive a
// component-scoped entry from it with For rather than calling it
// directly.
var Root = newRoot()

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl := os.Getenv("PESDE_LOG"); lvl != "" {
		if parsed, err := logrus.ParseLevel(lvl); err == nil {
			l.SetLevel(parsed)
		}
	}
	return l
}

// For returns a logger entry scoped to a single component, e.g.
// "resolver", "cas", "download", "linker".
func For(component string) *logrus.Entry {
	return Root.WithField("component", component)
}

// Warn reports one of the non-fatal warnings of spec.md §7 (deprecated
// packages, yanked versions, engine mismatches). It never fails the
// calling operation.
func Warn(component, msg string, fields map[string]interface{}) {
	e := For(component)
	for k, v := range fields {
		e = e.WithField(k, v)
	}
	e.Warn(msg)
}
