package backend

import (
	"io"
	"math"
)

// progressReader reports how much of a fixed-size body has been read by the
// transport.
type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}

// Percent converts a progress report into a whole percentage in [0,100].
// ok is false when total is unknown.
func Percent(sent, total int64) (pct int, ok bool) {
	if total <= 0 {
		return 0, false
	}
	pct = int(math.Round(float64(sent) / float64(total) * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}
