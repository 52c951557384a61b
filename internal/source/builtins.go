package source

import (
	"errors"
	"io/fs"

	"golang.org/x/time/rate"

	"github.com/smileynet/sldview/internal/diagram"
)

// fetchBurst lets the requests of a single fetch proceed without waiting on each other.
const fetchBurst = 3

// Settings holds what the built-in sources need to be constructed.
type Settings struct {
	URL       string  // http: API root, DefaultBaseURL when empty
	RateLimit float64 // http: requests per second, 0 is unlimited
	Dir       fs.FS   // dir: diagram files
}

// RegisterBuiltins registers the "http" and "dir" sources on reg.
func RegisterBuiltins(reg *Registry, s Settings) {
	reg.Register("http", func() (diagram.Runtime, error) {
		var opts []HTTPOption
		if s.RateLimit > 0 {
			opts = append(opts, WithRateLimit(rate.NewLimiter(rate.Limit(s.RateLimit), fetchBurst)))
		}
		rt, err := NewHTTPRuntime(s.URL, opts...)
		if err != nil {
			return nil, err
		}
		return rt, nil
	})
	reg.Register("dir", func() (diagram.Runtime, error) {
		if s.Dir == nil {
			return nil, errors.New("no diagram directory configured")
		}
		return NewDirRuntime(s.Dir), nil
	})
}
