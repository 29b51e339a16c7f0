// Package envconfig parses the validator's environment configuration
// once on first use, per spec.md §6: LKSMITH_LOG selects the sink
// destination, LKSMITH_IGNORED_FRAMES and LKSMITH_IGNORED_FRAME_PATTERNS
// seed the ignore-list.
//
// rtcheck/main.go configures itself once at startup via flag.Parse();
// a library has no argv of its own to parse, so the equivalent
// one-shot configuration step here reads the environment instead,
// gated by sync.Once exactly as spec.md requires ("Parsing is
// performed once on first use").
package envconfig

import (
	"log"
	"os"
	"strings"
	"sync"

	"github.com/lockvet/lockvet/ignorelist"
	"github.com/lockvet/lockvet/sink"
)

var once sync.Once

// Load parses LKSMITH_LOG, LKSMITH_IGNORED_FRAMES, and
// LKSMITH_IGNORED_FRAME_PATTERNS exactly once per process, no matter
// how many times it is called.
func Load() {
	once.Do(load)
}

func load() {
	loadIgnoreLists()
	loadLogDestination()
}

func loadIgnoreLists() {
	var exact, patterns []string
	if v := os.Getenv("LKSMITH_IGNORED_FRAMES"); v != "" {
		exact = splitNonEmpty(v)
	}
	if v := os.Getenv("LKSMITH_IGNORED_FRAME_PATTERNS"); v != "" {
		patterns = splitNonEmpty(v)
	}
	ignorelist.Load(exact, patterns)
}

func splitNonEmpty(v string) []string {
	parts := strings.Split(v, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadLogDestination() {
	v := os.Getenv("LKSMITH_LOG")
	if v == "" {
		sink.SetWriter(os.Stderr)
		return
	}

	switch {
	case v == "stderr":
		sink.SetWriter(os.Stderr)
	case v == "stdout":
		sink.SetWriter(os.Stdout)
	case v == "syslog":
		w, err := sink.NewSyslogWriter("lockvet")
		if err != nil {
			log.Printf("lockvet: LKSMITH_LOG=syslog unavailable (%v), falling back to stderr", err)
			sink.SetWriter(os.Stderr)
			return
		}
		sink.SetWriter(w)
	case strings.HasPrefix(v, "file://"):
		path := strings.TrimPrefix(v, "file://")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Printf("lockvet: LKSMITH_LOG=%s unavailable (%v), falling back to stderr", v, err)
			sink.SetWriter(os.Stderr)
			return
		}
		sink.SetWriter(f)
	case strings.HasPrefix(v, "callback://"):
		handle := strings.TrimPrefix(v, "callback://")
		if !strings.HasPrefix(handle, "0x") {
			log.Printf("lockvet: LKSMITH_LOG=%s rejected (callback address must start with 0x), falling back to stderr", v)
			sink.SetWriter(os.Stderr)
			return
		}
		fn, ok := sink.LookupCallback(handle)
		if !ok {
			log.Printf("lockvet: LKSMITH_LOG=%s has no callback registered for %s, falling back to stderr", v, handle)
			sink.SetWriter(os.Stderr)
			return
		}
		sink.SetCallback(fn)
	default:
		log.Printf("lockvet: malformed LKSMITH_LOG=%q, falling back to stderr", v)
		sink.SetWriter(os.Stderr)
	}
}
